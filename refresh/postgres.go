package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by PostgresLedger.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const recordColumns = `id, user_id, token_hash, issued_at, expires_at, created_by_ip, user_agent, revoked_at, revoked_reason, replaced_by_token_id`

const (
	insertTokenSQL = `
		INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, created_by_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	selectByHashSQL = `SELECT ` + recordColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	selectForUpdateSQL = selectByHashSQL + ` FOR UPDATE`

	markRotatedSQL = `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = 'rotated', replaced_by_token_id = $3
		WHERE id = $1`

	revokeChainSQL = `
		WITH RECURSIVE chain AS (
			SELECT id, replaced_by_token_id, 1 AS depth FROM refresh_tokens WHERE id = $1
			UNION ALL
			SELECT t.id, t.replaced_by_token_id, c.depth + 1
			FROM refresh_tokens t
			JOIN chain c ON t.id = c.replaced_by_token_id
			WHERE c.depth < 1000
		)
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE id IN (SELECT id FROM chain) AND revoked_at IS NULL`

	revokeByHashSQL = `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE token_hash = $1 AND revoked_at IS NULL`

	revokeAllForUserSQL = `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL`

	selectChainSQL = `
		WITH RECURSIVE chain AS (
			SELECT ` + recordColumns + `, 1 AS depth FROM refresh_tokens WHERE id = $1
			UNION ALL
			SELECT t.id, t.user_id, t.token_hash, t.issued_at, t.expires_at, t.created_by_ip, t.user_agent,
			       t.revoked_at, t.revoked_reason, t.replaced_by_token_id, c.depth + 1
			FROM refresh_tokens t
			JOIN chain c ON t.id = c.replaced_by_token_id
			WHERE c.depth < 1000
		)
		SELECT ` + recordColumns + ` FROM chain ORDER BY depth`
)

// PostgresLedger stores tokens in the refresh_tokens table. Rotation locks the presented
// row with SELECT ... FOR UPDATE so concurrent rotations of one token serialize.
type PostgresLedger struct {
	db  DB
	cfg Config
}

func NewPostgresLedger(db DB, cfg Config) *PostgresLedger {
	return &PostgresLedger{db: db, cfg: cfg.normalized()}
}

func (l *PostgresLedger) Create(ctx context.Context, userID, ip, userAgent string) (*Token, error) {
	tok, err := mint(l.cfg, userID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	if err := insertRecord(ctx, l.db, tok.Record); err != nil {
		return nil, err
	}
	return tok, nil
}

func (l *PostgresLedger) FindActive(ctx context.Context, value string) (*Record, error) {
	rec, err := scanRecord(l.db.QueryRow(ctx, selectByHashSQL, HashValue(value)))
	if err != nil {
		return nil, err
	}
	if !rec.Active(l.cfg.Now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (l *PostgresLedger) Rotate(ctx context.Context, value, ip, userAgent string) (*Token, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanRecord(tx.QueryRow(ctx, selectForUpdateSQL, HashValue(value)))
	if err != nil {
		return nil, err
	}

	now := l.cfg.Now()
	if cur.RevokedAt != nil {
		if cur.ReplacedByTokenID == "" {
			return nil, ErrNotFound
		}
		n, err := revokeChain(ctx, tx, cur.ReplacedByTokenID, ReasonReplay, now)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		return nil, &ReplayError{UserID: cur.UserID, TokenID: cur.ID, Revoked: n}
	}
	if !now.Before(cur.ExpiresAt) {
		return nil, ErrExpired
	}

	next, err := mint(l.cfg, cur.UserID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	if err := insertRecord(ctx, tx, next.Record); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, markRotatedSQL, cur.ID, now, next.Record.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return next, nil
}

func (l *PostgresLedger) RevokeChain(ctx context.Context, tokenID, reason string) (int, error) {
	return revokeChain(ctx, l.db, tokenID, reason, l.cfg.Now())
}

func (l *PostgresLedger) Revoke(ctx context.Context, value, reason string) error {
	if _, err := l.db.Exec(ctx, revokeByHashSQL, HashValue(value), l.cfg.Now(), reason); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func (l *PostgresLedger) RevokeAllForUser(ctx context.Context, userID, reason string) error {
	if _, err := l.db.Exec(ctx, revokeAllForUserSQL, userID, l.cfg.Now(), reason); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func (l *PostgresLedger) Chain(ctx context.Context, tokenID string) ([]Record, error) {
	rows, err := l.db.Query(ctx, selectChainSQL, tokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertRecord(ctx context.Context, db execer, rec Record) error {
	_, err := db.Exec(ctx, insertTokenSQL,
		rec.ID, rec.UserID, rec.TokenHash, rec.IssuedAt, rec.ExpiresAt, rec.CreatedByIP, rec.UserAgent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func revokeChain(ctx context.Context, db execer, tokenID, reason string, now time.Time) (int, error) {
	tag, err := db.Exec(ctx, revokeChainSQL, tokenID, now, reason)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec        Record
		revokedAt  *time.Time
		reason     *string
		replacedBy *string
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.TokenHash,
		&rec.IssuedAt,
		&rec.ExpiresAt,
		&rec.CreatedByIP,
		&rec.UserAgent,
		&revokedAt,
		&reason,
		&replacedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	rec.RevokedAt = revokedAt
	if reason != nil {
		rec.RevokedReason = *reason
	}
	if replacedBy != nil {
		rec.ReplacedByTokenID = *replacedBy
	}
	return &rec, nil
}
