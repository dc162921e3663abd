package identity

import (
	"context"
	"strings"
	"time"

	internalaudit "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/audit"
)

// UserRecord is the slice of the user row this package reads and writes.
// Empty strings mean "not set" for the two secret columns.
type UserRecord struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         string
	TenantID     string
	FullName     string

	TwoFactorEnabled         bool
	TwoFactorSecretPending   string
	TwoFactorSecretEncrypted string
}

// TwoFactorState derives the enrollment state from the stored columns.
func (u *UserRecord) TwoFactorState() TwoFactorState {
	switch {
	case u == nil:
		return TwoFactorDisabled
	case u.TwoFactorEnabled:
		return TwoFactorEnabled
	case u.TwoFactorSecretPending != "":
		return TwoFactorPendingSetup
	default:
		return TwoFactorDisabled
	}
}

// AccountLabel is the name shown in authenticator apps.
func (u *UserRecord) AccountLabel() string {
	switch {
	case strings.TrimSpace(u.Username) != "":
		return u.Username
	case strings.TrimSpace(u.Email) != "":
		return u.Email
	default:
		return "user-" + u.ID
	}
}

// TwoFactorState is one of Disabled, PendingSetup or Enabled.
type TwoFactorState uint8

const (
	TwoFactorDisabled TwoFactorState = iota
	TwoFactorPendingSetup
	TwoFactorEnabled
)

func (s TwoFactorState) String() string {
	switch s {
	case TwoFactorPendingSetup:
		return "pending_setup"
	case TwoFactorEnabled:
		return "enabled"
	default:
		return "disabled"
	}
}

// UserStore is implemented by the application's user repository.
//
// Lookups return an error matching ErrUserNotFound when no row exists. Any other
// error is treated as an infrastructure failure.
type UserStore interface {
	GetByID(ctx context.Context, userID string) (*UserRecord, error)
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
	// SavePendingTwoFactor stores an encrypted secret awaiting confirmation.
	SavePendingTwoFactor(ctx context.Context, userID, encryptedSecret string) error
	// ActivateTwoFactor stores the confirmed secret, sets the enabled flag and clears the
	// pending column in a single write.
	ActivateTwoFactor(ctx context.Context, userID, encryptedSecret string) error
}

// PasswordHashUpdater is optionally implemented by a UserStore. When present and
// Password.UpgradeOnLogin is set, legacy hashes are replaced after a successful login.
type PasswordHashUpdater interface {
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(password, encoded string) (bool, error)
}

// LoginResult tells the caller which second factor step comes next.
// Exactly one of the two flags is set.
type LoginResult struct {
	UserID           string
	Requires2FASetup bool
	Requires2FA      bool
}

// AuthResult is returned whenever tokens are issued.
type AuthResult struct {
	AccessToken      string
	ExpiresAt        time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	UserID           string
	Email            string
	Role             string
	TenantID         string
	FullName         string
}

// TwoFactorSetup carries the only plaintext copy of a new secret.
type TwoFactorSetup struct {
	Secret    string
	QRPayload string
	Message   string
}

// VerificationResult is returned on a successful code check.
type VerificationResult struct {
	UserID  string
	Message string
}

// AuditEvent is the structured record delivered to audit sinks.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = internalaudit.Sink
