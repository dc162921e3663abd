package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
)

var userCols = []string{
	"id", "email", "username", "password_hash", "role", "tenant_id", "first_name", "last_name",
	"two_factor_enabled", "two_factor_secret_pending", "two_factor_secret_encrypted",
}

func newStore(t *testing.T) (*UserStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewUserStore(mock), mock
}

func TestGetByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		s, mock := newStore(t)
		pending := "enc-pending"
		mock.ExpectQuery("SELECT id, email").
			WithArgs("niko.nikic@unsa.ba").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow("u4", "niko.nikic@unsa.ba", "student", "hash", "Student", SeedTenantID, "Niko", "Nikic", false, &pending, nil))

		u, err := s.GetByEmail(ctx, "  niko.nikic@unsa.ba ")
		require.NoError(t, err)
		assert.Equal(t, "u4", u.ID)
		assert.Equal(t, "Niko Nikic", u.FullName)
		assert.Equal(t, "enc-pending", u.TwoFactorSecretPending)
		assert.Empty(t, u.TwoFactorSecretEncrypted)
		assert.Equal(t, identity.TwoFactorPendingSetup, u.TwoFactorState())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newStore(t)
		mock.ExpectQuery("SELECT id, email").
			WithArgs("nobody@unsa.ba").
			WillReturnError(pgx.ErrNoRows)

		_, err := s.GetByEmail(ctx, "nobody@unsa.ba")
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		s, mock := newStore(t)
		mock.ExpectQuery("SELECT id, email").
			WithArgs("a@unsa.ba").
			WillReturnError(errors.New("connection reset"))

		_, err := s.GetByEmail(ctx, "a@unsa.ba")
		require.Error(t, err)
		assert.NotErrorIs(t, err, identity.ErrUserNotFound)
	})
}

func TestGetByIDEnabledUser(t *testing.T) {
	s, mock := newStore(t)
	secret := "enc-secret"
	mock.ExpectQuery("SELECT id, email").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow("u1", "admin@unsa.ba", "admin", "hash", "Admin", SeedTenantID, "System", "", true, nil, &secret))

	u, err := s.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "System", u.FullName)
	assert.Equal(t, identity.TwoFactorEnabled, u.TwoFactorState())
	assert.Equal(t, "enc-secret", u.TwoFactorSecretEncrypted)
}

func TestActivateTwoFactor(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		s, mock := newStore(t)
		mock.ExpectExec("UPDATE users").
			WithArgs("u1", "enc").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.ActivateTwoFactor(ctx, "u1", "enc"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		s, mock := newStore(t)
		mock.ExpectExec("UPDATE users").
			WithArgs("ghost", "enc").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		assert.ErrorIs(t, s.ActivateTwoFactor(ctx, "ghost", "enc"), identity.ErrUserNotFound)
	})
}

func TestSavePendingAndPasswordHash(t *testing.T) {
	ctx := context.Background()
	s, mock := newStore(t)

	mock.ExpectExec("UPDATE users").
		WithArgs("u1", "enc-pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("u1", "$argon2id$new").
		WillReturnError(errors.New("read only transaction"))

	require.NoError(t, s.SavePendingTwoFactor(ctx, "u1", "enc-pending"))
	err := s.UpdatePasswordHash(ctx, "u1", "$argon2id$new")
	assert.ErrorContains(t, err, "update password hash")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	assert.ErrorContains(t, NewUserStore(mock).Ping(context.Background()), "ping")
}
