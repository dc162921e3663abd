package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/jwt"
)

// Config holds every engine setting. Obtain one from DefaultConfig and override fields.
type Config struct {
	// Environment is "development", "test" or "production".
	Environment string
	JWT         JWTConfig
	Refresh     RefreshConfig
	TwoFactor   TwoFactorConfig
	Password    PasswordConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default), "hs384", "hs512"
	SigningKey    []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	// VerifyKeys maps retired kids to keys still accepted for verification.
	VerifyKeys map[string][]byte
}

/*
====================================
REFRESH CONFIG
====================================
*/

type RefreshConfig struct {
	TTL               time.Duration
	RetainAfterExpiry time.Duration
	RedisPrefix       string
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// ReenrollPolicy decides what EnableTwoFactor does while a setup is pending.
type ReenrollPolicy int

const (
	// ReenrollReject fails with ErrSetupInProgress.
	ReenrollReject ReenrollPolicy = iota
	// ReenrollReissue replaces the pending secret with a new one.
	ReenrollReissue
)

type TwoFactorConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Skew      int
	Algorithm string

	MaxAttempts   int
	AttemptWindow time.Duration
	LimiterPrefix string

	// EncryptionKey is the AES key (16, 24 or 32 bytes) for secrets at rest.
	EncryptionKey  []byte
	ReenrollPolicy ReenrollPolicy
}

/*
====================================
PASSWORD / AUDIT / METRICS
====================================
*/

// PasswordConfig holds Argon2id parameters for re-hashed passwords.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// DefaultConfig returns development defaults. SigningKey and EncryptionKey are empty
// and must be supplied.
func DefaultConfig() Config {
	return Config{
		Environment: EnvDevelopment,
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "student-system-identity",
			Audience:      "student-system",
			Leeway:        30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL:               7 * 24 * time.Hour,
			RetainAfterExpiry: 24 * time.Hour,
			RedisPrefix:       "idt:rt",
		},
		TwoFactor: TwoFactorConfig{
			Issuer:         "StudentSystem",
			Digits:         6,
			Period:         30,
			Skew:           1,
			Algorithm:      "SHA1",
			MaxAttempts:    5,
			AttemptWindow:  5 * time.Minute,
			LimiterPrefix:  "idt:2fa",
			ReenrollPolicy: ReenrollReject,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SigningKey = cloneBytes(cfg.JWT.SigningKey)
	out.TwoFactor.EncryptionKey = cloneBytes(cfg.TwoFactor.EncryptionKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodHS256, jwt.MethodHS384, jwt.MethodHS512:
	default:
		return fmt.Errorf("JWT SigningMethod %q not supported", c.JWT.SigningMethod)
	}
	if len(c.JWT.SigningKey) < 32 {
		return errors.New("JWT SigningKey must be at least 32 bytes")
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return errors.New("JWT Issuer and Audience are required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > time.Minute {
		return errors.New("JWT Leeway must be between 0 and 1m")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if c.Refresh.RetainAfterExpiry < 0 {
		return errors.New("Refresh RetainAfterExpiry must be >= 0")
	}

	// Two-factor
	if c.TwoFactor.Digits != 6 && c.TwoFactor.Digits != 8 {
		return errors.New("TwoFactor Digits must be 6 or 8")
	}
	if c.TwoFactor.Period <= 0 {
		return errors.New("TwoFactor Period must be > 0")
	}
	if c.TwoFactor.Skew < 0 || c.TwoFactor.Skew > 2 {
		return errors.New("TwoFactor Skew must be between 0 and 2")
	}
	if c.TwoFactor.MaxAttempts <= 0 {
		return errors.New("TwoFactor MaxAttempts must be > 0")
	}
	if c.TwoFactor.AttemptWindow <= 0 {
		return errors.New("TwoFactor AttemptWindow must be > 0")
	}
	switch len(c.TwoFactor.EncryptionKey) {
	case 16, 24, 32:
	default:
		return errors.New("TwoFactor EncryptionKey must be 16, 24 or 32 bytes")
	}
	if c.Environment == EnvProduction && isDevelopmentKey(c.TwoFactor.EncryptionKey) {
		return errors.New("TwoFactor EncryptionKey must not be the development key in production")
	}
	if c.TwoFactor.ReenrollPolicy != ReenrollReject && c.TwoFactor.ReenrollPolicy != ReenrollReissue {
		return errors.New("TwoFactor ReenrollPolicy invalid")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	return nil
}
