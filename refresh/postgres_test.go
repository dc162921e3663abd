package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordCols = []string{
	"id", "user_id", "token_hash", "issued_at", "expires_at", "created_by_ip", "user_agent",
	"revoked_at", "revoked_reason", "replaced_by_token_id",
}

func newPostgresLedger(t *testing.T) (*PostgresLedger, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewPostgresLedger(mock, Config{TTL: time.Hour, Now: func() time.Time { return now }})
	return l, mock, now
}

func TestPostgresLedgerCreate(t *testing.T) {
	l, mock, now := newPostgresLedger(t)

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(pgxmock.AnyArg(), "u1", pgxmock.AnyArg(), now, now.Add(time.Hour), "10.0.0.1", "curl/8").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tok, err := l.Create(context.Background(), "u1", "10.0.0.1", "curl/8")
	require.NoError(t, err)
	assert.Equal(t, HashValue(tok.Value), tok.Record.TokenHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerRotate(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		l, mock, now := newPostgresLedger(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id").
			WithArgs(HashValue("old")).
			WillReturnRows(pgxmock.NewRows(recordCols).
				AddRow("t1", "u1", HashValue("old"), now.Add(-time.Minute), now.Add(time.Minute), "", "", nil, nil, nil))
		mock.ExpectExec("INSERT INTO refresh_tokens").
			WithArgs(pgxmock.AnyArg(), "u1", pgxmock.AnyArg(), now, now.Add(time.Hour), "ip", "ua").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("UPDATE refresh_tokens").
			WithArgs("t1", now, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		next, err := l.Rotate(ctx, "old", "ip", "ua")
		require.NoError(t, err)
		assert.Equal(t, "u1", next.Record.UserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replay revokes chain", func(t *testing.T) {
		l, mock, now := newPostgresLedger(t)
		revoked := now.Add(-time.Minute)
		reason := ReasonRotated
		successor := "t2"
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id").
			WithArgs(HashValue("old")).
			WillReturnRows(pgxmock.NewRows(recordCols).
				AddRow("t1", "u1", HashValue("old"), now.Add(-time.Hour), now.Add(time.Hour), "", "", &revoked, &reason, &successor))
		mock.ExpectExec("WITH RECURSIVE chain").
			WithArgs("t2", now, ReasonReplay).
			WillReturnResult(pgxmock.NewResult("UPDATE", 2))
		mock.ExpectCommit()

		_, err := l.Rotate(ctx, "old", "", "")
		require.Error(t, err)
		var replay *ReplayError
		require.True(t, errors.As(err, &replay))
		assert.Equal(t, "u1", replay.UserID)
		assert.Equal(t, 2, replay.Revoked)
		assert.ErrorIs(t, err, ErrReplayDetected)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired", func(t *testing.T) {
		l, mock, now := newPostgresLedger(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id").
			WithArgs(HashValue("old")).
			WillReturnRows(pgxmock.NewRows(recordCols).
				AddRow("t1", "u1", HashValue("old"), now.Add(-2*time.Hour), now.Add(-time.Hour), "", "", nil, nil, nil))
		mock.ExpectRollback()

		_, err := l.Rotate(ctx, "old", "", "")
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("unknown", func(t *testing.T) {
		l, mock, _ := newPostgresLedger(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id").
			WithArgs(HashValue("missing")).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := l.Rotate(ctx, "missing", "", "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		l, mock, _ := newPostgresLedger(t)
		mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

		_, err := l.Rotate(ctx, "old", "", "")
		assert.ErrorIs(t, err, ErrLedgerUnavailable)
	})
}

func TestPostgresLedgerFindActive(t *testing.T) {
	l, mock, now := newPostgresLedger(t)
	revoked := now.Add(-time.Second)

	mock.ExpectQuery("SELECT id, user_id").
		WithArgs(HashValue("live")).
		WillReturnRows(pgxmock.NewRows(recordCols).
			AddRow("t1", "u1", HashValue("live"), now, now.Add(time.Hour), "", "", nil, nil, nil))
	mock.ExpectQuery("SELECT id, user_id").
		WithArgs(HashValue("dead")).
		WillReturnRows(pgxmock.NewRows(recordCols).
			AddRow("t2", "u1", HashValue("dead"), now, now.Add(time.Hour), "", "", &revoked, nil, nil))

	rec, err := l.FindActive(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, "t1", rec.ID)

	_, err = l.FindActive(context.Background(), "dead")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresLedgerRevokeAndChain(t *testing.T) {
	ctx := context.Background()
	l, mock, now := newPostgresLedger(t)

	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(HashValue("v"), now, ReasonLogout).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("u1", now, ReasonRevoked).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	succ := "t2"
	mock.ExpectQuery("WITH RECURSIVE chain").
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows(recordCols).
			AddRow("t1", "u1", "h1", now, now.Add(time.Hour), "", "", &now, nil, &succ).
			AddRow("t2", "u1", "h2", now, now.Add(time.Hour), "", "", nil, nil, nil))

	require.NoError(t, l.Revoke(ctx, "v", ReasonLogout))
	require.NoError(t, l.RevokeAllForUser(ctx, "u1", ReasonRevoked))

	chain, err := l.Chain(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "t2", chain[0].ReplacedByTokenID)
	assert.Nil(t, chain[1].RevokedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
