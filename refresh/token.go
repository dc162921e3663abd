package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const tokenRawSize = 64

var (
	// ErrNotFound is returned for unknown tokens and for revoked tokens without a successor.
	ErrNotFound = errors.New("refresh token not found")
	// ErrExpired is returned when an otherwise active token is past its expiry.
	ErrExpired = errors.New("refresh token expired")
	// ErrReplayDetected is returned when a rotated token is presented again.
	ErrReplayDetected = errors.New("refresh token replay detected")
	// ErrLedgerUnavailable wraps storage failures.
	ErrLedgerUnavailable = errors.New("refresh ledger unavailable")
)

const (
	ReasonRotated  = "rotated"
	ReasonReplay   = "replay"
	ReasonLogout   = "logout"
	ReasonRevoked  = "revoked"
	ReasonOrphaned = "user_missing"
)

// Record is the persisted state of one refresh token.
type Record struct {
	ID                string
	UserID            string
	TokenHash         string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	CreatedByIP       string
	UserAgent         string
	RevokedAt         *time.Time
	RevokedReason     string
	ReplacedByTokenID string
}

// Active reports whether the record is unrevoked and unexpired at now.
func (r Record) Active(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// Token pairs a freshly minted value with its record. Value is never stored.
type Token struct {
	Value  string
	Record Record
}

// ReplayError reports a replayed token and how many descendants were revoked.
type ReplayError struct {
	UserID  string
	TokenID string
	Revoked int
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("%s: token %s, %d descendants revoked", ErrReplayDetected, e.TokenID, e.Revoked)
}

func (e *ReplayError) Unwrap() error { return ErrReplayDetected }

// Config controls token lifetime and ledger bookkeeping.
type Config struct {
	TTL time.Duration
	// RetainAfterExpiry keeps rows around after expiry so late replays are still recognised.
	RetainAfterExpiry time.Duration
	Prefix            string
	Now               func() time.Time
}

func (c Config) normalized() Config {
	if c.TTL <= 0 {
		c.TTL = 7 * 24 * time.Hour
	}
	if c.RetainAfterExpiry <= 0 {
		c.RetainAfterExpiry = 24 * time.Hour
	}
	if c.Prefix == "" {
		c.Prefix = "idt:rt"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// NewTokenValue returns a fresh opaque token value.
func NewTokenValue() (string, error) {
	raw := make([]byte, tokenRawSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashValue returns the at-rest representation of a token value.
func HashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func mint(cfg Config, userID, ip, userAgent string) (*Token, error) {
	value, err := NewTokenValue()
	if err != nil {
		return nil, err
	}
	now := cfg.Now()
	return &Token{
		Value: value,
		Record: Record{
			ID:          uuid.NewString(),
			UserID:      userID,
			TokenHash:   HashValue(value),
			IssuedAt:    now,
			ExpiresAt:   now.Add(cfg.TTL),
			CreatedByIP: ip,
			UserAgent:   userAgent,
		},
	}, nil
}
