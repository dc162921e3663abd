// Package postgres implements identity.UserStore over the users table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
)

// DB is the subset of *pgxpool.Pool used by UserStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const userColumns = `id, email, username, password_hash, role, tenant_id::text, first_name, last_name,
	two_factor_enabled, two_factor_secret_pending, two_factor_secret_encrypted`

const (
	selectUserByIDSQL    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	selectUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	savePendingSQL = `
		UPDATE users
		SET two_factor_secret_pending = $2, updated_at = now()
		WHERE id = $1`

	activateTwoFactorSQL = `
		UPDATE users
		SET two_factor_secret_encrypted = $2, two_factor_enabled = TRUE,
		    two_factor_secret_pending = NULL, updated_at = now()
		WHERE id = $1`

	updatePasswordHashSQL = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
)

// UserStore reads and writes identity.UserRecord rows. It also implements
// identity.PasswordHashUpdater.
type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (*identity.UserRecord, error) {
	return scanUser(s.db.QueryRow(ctx, selectUserByIDSQL, userID))
}

// GetByEmail matches case-insensitively.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*identity.UserRecord, error) {
	return scanUser(s.db.QueryRow(ctx, selectUserByEmailSQL, strings.TrimSpace(email)))
}

func (s *UserStore) SavePendingTwoFactor(ctx context.Context, userID, encryptedSecret string) error {
	return s.update(ctx, "save pending secret", savePendingSQL, userID, encryptedSecret)
}

func (s *UserStore) ActivateTwoFactor(ctx context.Context, userID, encryptedSecret string) error {
	return s.update(ctx, "activate two-factor", activateTwoFactorSQL, userID, encryptedSecret)
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.update(ctx, "update password hash", updatePasswordHashSQL, userID, hash)
}

func (s *UserStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

func (s *UserStore) update(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*identity.UserRecord, error) {
	var (
		u                   identity.UserRecord
		firstName, lastName string
		pending, confirmed  *string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.Role,
		&u.TenantID,
		&firstName,
		&lastName,
		&u.TwoFactorEnabled,
		&pending,
		&confirmed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("postgres: scan user: %w", err)
	}
	u.FullName = strings.TrimSpace(firstName + " " + lastName)
	if pending != nil {
		u.TwoFactorSecretPending = *pending
	}
	if confirmed != nil {
		u.TwoFactorSecretEncrypted = *confirmed
	}
	return &u, nil
}
