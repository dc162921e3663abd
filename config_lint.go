package identity

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks lint findings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// LintWarning is an advisory finding about a configuration that is valid but risky.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

type LintWarnings []LintWarning

func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the findings at or above min.
func (ws LintWarnings) BySeverity(min LintSeverity) LintWarnings {
	var out LintWarnings
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError folds findings at or above min into one error, or returns nil.
func (ws LintWarnings) AsError(min LintSeverity) error {
	hits := ws.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// DevelopmentEncryptionKey is accepted outside production so local setups work
// without a managed secret. Lint flags it everywhere.
var DevelopmentEncryptionKey = []byte("dev-only-2fa-encryption-key-32b!")

// Lint reports risky settings. It never fails; call Validate for hard errors.
func (c Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.JWT.Leeway > 30*time.Second {
		add("leeway_large", LintWarn, "JWT leeway above 30s widens the replay window for expired tokens")
	}
	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens live longer than 15 minutes")
	}
	if c.Refresh.TTL > 30*24*time.Hour {
		add("refresh_ttl_long", LintInfo, "refresh tokens live longer than 30 days")
	}
	if c.TwoFactor.MaxAttempts > 10 {
		add("two_factor_attempts_high", LintWarn, "more than 10 two-factor attempts per window")
	}
	if c.TwoFactor.ReenrollPolicy == ReenrollReissue {
		add("two_factor_reissue", LintWarn, "pending two-factor secrets can be replaced by any caller knowing the user id")
	}
	if isDevelopmentKey(c.TwoFactor.EncryptionKey) {
		sev := LintWarn
		if c.Environment == EnvProduction {
			sev = LintHigh
		}
		add("dev_encryption_key", sev, "two-factor secrets are encrypted with the development key")
	}
	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintInfo, "Argon2id memory below 64 MB")
	}
	if c.Environment == EnvProduction && !c.Audit.Enabled {
		add("audit_disabled", LintWarn, "audit events are disabled in production")
	}
	return ws
}

func isDevelopmentKey(key []byte) bool {
	a := sha256.Sum256(key)
	b := sha256.Sum256(DevelopmentEncryptionKey)
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
