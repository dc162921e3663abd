// Package config loads process settings from the environment and an optional .env file
// using Viper, and converts them to an identity.Config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
)

// Ledger backends accepted by LEDGER_BACKEND.
const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Config holds process configuration.
type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// LedgerBackend selects where refresh tokens live: "postgres" or "redis".
	LedgerBackend string `mapstructure:"LEDGER_BACKEND"`

	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTL  string `mapstructure:"JWT_ACCESS_TTL"`
	RefreshTTL    string `mapstructure:"REFRESH_TTL"`

	TwoFactorIssuer string `mapstructure:"TWO_FACTOR_ISSUER"`
	// TwoFactorEncryptionKey is the raw AES key, 16, 24 or 32 characters.
	TwoFactorEncryptionKey string `mapstructure:"TWO_FACTOR_ENCRYPTION_KEY"`
	TwoFactorMaxAttempts   int    `mapstructure:"TWO_FACTOR_MAX_ATTEMPTS"`
	TwoFactorWindow        string `mapstructure:"TWO_FACTOR_WINDOW"`

	AuditEnabled    bool   `mapstructure:"AUDIT_ENABLED"`
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	MetricsEnabled bool   `mapstructure:"METRICS_ENABLED"`
	OTLPEndpoint   string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env if present, then the environment. Environment variables win.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", identity.EnvDevelopment)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LEDGER_BACKEND", LedgerPostgres)
	v.SetDefault("JWT_SIGNING_KEY", "")
	v.SetDefault("JWT_ISSUER", "student-system-identity")
	v.SetDefault("JWT_AUDIENCE", "student-system")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "168h")
	v.SetDefault("TWO_FACTOR_ISSUER", "StudentSystem")
	v.SetDefault("TWO_FACTOR_ENCRYPTION_KEY", "")
	v.SetDefault("TWO_FACTOR_MAX_ATTEMPTS", 5)
	v.SetDefault("TWO_FACTOR_WINDOW", "5m")
	v.SetDefault("AUDIT_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "identity-audit")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SERVICE_NAME", "identity")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	switch cfg.LedgerBackend {
	case LedgerPostgres, LedgerRedis:
	default:
		return nil, fmt.Errorf("config: LEDGER_BACKEND must be %q or %q, got %q", LedgerPostgres, LedgerRedis, cfg.LedgerBackend)
	}
	if cfg.LedgerBackend == LedgerRedis && cfg.RedisAddr == "" {
		return nil, errors.New("config: REDIS_ADDR must be set when LEDGER_BACKEND=redis")
	}
	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL. It returns 15m when unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTokenTTL parses RefreshTTL. It returns 7 days when unset or invalid.
func (c *Config) RefreshTokenTTL() time.Duration {
	return parseDuration(c.RefreshTTL, 7*24*time.Hour)
}

func (c *Config) AttemptWindow() time.Duration {
	return parseDuration(c.TwoFactorWindow, 5*time.Minute)
}

// KafkaBrokerList splits KafkaBrokers on commas, dropping blanks.
func (c *Config) KafkaBrokerList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ToEngineConfig overlays the process settings on identity.DefaultConfig and validates
// the result. In development an empty encryption key falls back to the development key.
func (c *Config) ToEngineConfig() (identity.Config, error) {
	cfg := identity.DefaultConfig()
	cfg.Environment = c.Env

	cfg.JWT.SigningKey = []byte(c.JWTSigningKey)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.AccessTTL = c.AccessTTL()
	cfg.Refresh.TTL = c.RefreshTokenTTL()

	cfg.TwoFactor.Issuer = c.TwoFactorIssuer
	if c.TwoFactorMaxAttempts > 0 {
		cfg.TwoFactor.MaxAttempts = c.TwoFactorMaxAttempts
	}
	cfg.TwoFactor.AttemptWindow = c.AttemptWindow()
	cfg.TwoFactor.EncryptionKey = []byte(c.TwoFactorEncryptionKey)
	if len(cfg.TwoFactor.EncryptionKey) == 0 && c.Env == identity.EnvDevelopment {
		cfg.TwoFactor.EncryptionKey = append([]byte(nil), identity.DevelopmentEncryptionKey...)
	}

	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return identity.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
