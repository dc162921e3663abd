// Package totp implements RFC 6238 time-based one-time passwords and otpauth
// provisioning URIs.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultIssuer labels provisioning URIs when Config.Issuer is empty.
	DefaultIssuer      = "StudentSystem"
	defaultDigits      = 6
	defaultPeriod      = 30
	defaultSecretBytes = 20
	minSecretBytes     = 20
)

var (
	// ErrInvalidConfig is returned by New for out-of-range settings.
	ErrInvalidConfig = errors.New("totp: invalid config")
	// ErrUnsupportedAlgorithm is returned for HMAC algorithms other than SHA1/SHA256/SHA512.
	ErrUnsupportedAlgorithm = errors.New("totp: unsupported algorithm")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config controls code shape and acceptance window. Zero values take defaults:
// issuer StudentSystem, 6 digits, 30s period, 20-byte secrets, SHA1, skew 1.
type Config struct {
	Issuer      string
	Digits      int
	Period      int
	SecretBytes int
	Skew        int
	Algorithm   string
}

// Manager generates secrets and validates codes.
type Manager struct {
	config Config
	now    func() time.Time
}

// New returns a Manager for cfg. A negative Skew disables adjacent steps.
func New(cfg Config) (*Manager, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Digits == 0 {
		cfg.Digits = defaultDigits
	}
	if cfg.Period == 0 {
		cfg.Period = defaultPeriod
	}
	if cfg.SecretBytes == 0 {
		cfg.SecretBytes = defaultSecretBytes
	}
	if cfg.Skew == 0 {
		cfg.Skew = 1
	}
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	cfg.Algorithm = strings.ToUpper(cfg.Algorithm)

	if cfg.Digits < 6 || cfg.Digits > 8 {
		return nil, fmt.Errorf("%w: digits must be 6..8", ErrInvalidConfig)
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("%w: period must be > 0", ErrInvalidConfig)
	}
	if cfg.SecretBytes < minSecretBytes {
		return nil, fmt.Errorf("%w: secret must be at least 160 bits", ErrInvalidConfig)
	}
	if cfg.Skew > 2 {
		return nil, fmt.Errorf("%w: skew must be <= 2", ErrInvalidConfig)
	}
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, err
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// Config returns the effective configuration after defaults.
func (m *Manager) Config() Config {
	return m.config
}

// GenerateSecret returns a fresh Base32 (unpadded) shared secret.
func (m *Manager) GenerateSecret() (string, error) {
	raw := make([]byte, m.config.SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// ProvisioningURI builds
// otpauth://totp/<issuer>:<username>?secret=..&issuer=..&digits=..&period=..
// with issuer and username percent-encoded individually.
func (m *Manager) ProvisioningURI(username, secret string) string {
	issuer := escape(m.config.Issuer)

	var b strings.Builder
	b.WriteString("otpauth://totp/")
	b.WriteString(issuer)
	b.WriteByte(':')
	b.WriteString(escape(username))
	b.WriteString("?secret=")
	b.WriteString(secret)
	b.WriteString("&issuer=")
	b.WriteString(issuer)
	b.WriteString("&digits=")
	b.WriteString(strconv.Itoa(m.config.Digits))
	b.WriteString("&period=")
	b.WriteString(strconv.Itoa(m.config.Period))
	if m.config.Algorithm != "SHA1" {
		b.WriteString("&algorithm=")
		b.WriteString(m.config.Algorithm)
	}
	return b.String()
}

// Validate reports whether code matches secret at the current time.
func (m *Manager) Validate(secret, code string) bool {
	return m.ValidateAt(secret, code, m.now())
}

// ValidateAt checks code against the counters in [now-skew, now+skew]. Non-digit
// characters in code are ignored; a wrong digit count or malformed secret yields false.
func (m *Manager) ValidateAt(secret, code string, now time.Time) bool {
	digits := SanitizeCode(code)
	if len(digits) != m.config.Digits {
		return false
	}
	key, err := DecodeSecret(secret)
	if err != nil || len(key) == 0 {
		return false
	}

	base := now.Unix() / int64(m.config.Period)
	matched := 0
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		expected, err := HOTP(key, uint64(counter), m.config.Digits, m.config.Algorithm)
		if err != nil {
			return false
		}
		matched |= subtle.ConstantTimeCompare([]byte(expected), []byte(digits))
	}
	return matched == 1
}

// CodeAt returns the code for secret at t.
func (m *Manager) CodeAt(secret string, t time.Time) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return HOTP(key, uint64(t.Unix()/int64(m.config.Period)), m.config.Digits, m.config.Algorithm)
}

// SanitizeCode strips every non-digit rune from code.
func SanitizeCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DecodeSecret accepts Base32 with or without padding, any case, spaces ignored.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	s = strings.TrimRight(s, "=")
	return b32.DecodeString(s)
}

// HOTP computes the RFC 4226 code with dynamic truncation.
func HOTP(key []byte, counter uint64, digits int, algorithm string) (string, error) {
	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)
	mac := hmac.New(hf, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

// escape percent-encodes like a URI data-string escaper: spaces become %20, not '+'.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
