package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		AccessTTL:  15 * time.Minute,
		SigningKey: testKey,
		Issuer:     "student-system",
		Audience:   "student-system-api",
		Leeway:     30 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func sign(t *testing.T, method gjwt.SigningMethod, key []byte, claims AccessClaims) string {
	t.Helper()
	s, err := gjwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func baseClaims(now time.Time) AccessClaims {
	return AccessClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "student-system",
		Audience:  gjwt.ClaimStrings{"student-system-api"},
		IssuedAt:  gjwt.NewNumericDate(now),
		ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
	}}
}

func TestCreateAccessRoundTripCarriesIdentity(t *testing.T) {
	m := newTestManager(t, nil)
	token, exp, err := m.CreateAccess(Identity{
		UserID:   "u1",
		Email:    "niko.nikic@unsa.ba",
		Role:     "Student",
		TenantID: "11111111-1111-1111-1111-111111111111",
		FullName: "Niko Nikic",
	})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if time.Until(exp) < 14*time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "u1" || claims.Subject != "u1" || claims.Role != "Student" || claims.Email != "niko.nikic@unsa.ba" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.TenantID != "11111111-1111-1111-1111-111111111111" || claims.Name != "Niko Nikic" {
		t.Fatalf("unexpected tenant/name claims %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
}

func TestParseAccessClassifiesFailures(t *testing.T) {
	m := newTestManager(t, nil)
	now := time.Now()

	wrongAlg := sign(t, gjwt.SigningMethodHS512, testKey, baseClaims(now))
	if _, err := m.ParseAccess(wrongAlg); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("wrong alg: expected ErrInvalidSignature, got %v", err)
	}

	wrongKey := sign(t, gjwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"), baseClaims(now))
	if _, err := m.ParseAccess(wrongKey); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("wrong key: expected ErrInvalidSignature, got %v", err)
	}

	c := baseClaims(now)
	c.Issuer = "other"
	if _, err := m.ParseAccess(sign(t, gjwt.SigningMethodHS256, testKey, c)); !errors.Is(err, ErrWrongIssuer) {
		t.Fatalf("expected ErrWrongIssuer, got %v", err)
	}

	c = baseClaims(now)
	c.Audience = gjwt.ClaimStrings{"other-api"}
	if _, err := m.ParseAccess(sign(t, gjwt.SigningMethodHS256, testKey, c)); !errors.Is(err, ErrWrongAudience) {
		t.Fatalf("expected ErrWrongAudience, got %v", err)
	}

	c = baseClaims(now)
	c.ExpiresAt = gjwt.NewNumericDate(now.Add(-15 * time.Second))
	if _, err := m.ParseAccess(sign(t, gjwt.SigningMethodHS256, testKey, c)); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	c = baseClaims(now)
	c.ExpiresAt = gjwt.NewNumericDate(now.Add(-2 * time.Minute))
	if _, err := m.ParseAccess(sign(t, gjwt.SigningMethodHS256, testKey, c)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	if _, err := m.ParseAccess("not.a.jwt"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestNewManagerRejectsUnsafeConfig(t *testing.T) {
	base := Config{AccessTTL: time.Minute, SigningKey: testKey, Issuer: "i", Audience: "a"}

	cases := map[string]func(*Config){
		"leeway above one minute": func(c *Config) { c.Leeway = 2 * time.Minute },
		"short key":               func(c *Config) { c.SigningKey = []byte("short") },
		"missing issuer":          func(c *Config) { c.Issuer = "" },
		"missing audience":        func(c *Config) { c.Audience = "" },
		"unknown method":          func(c *Config) { c.SigningMethod = "rs256" },
		"zero ttl":                func(c *Config) { c.AccessTTL = 0 },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseAccessKeyRotation(t *testing.T) {
	oldKey := []byte("old-key-old-key-old-key-old-key-")
	m := newTestManager(t, func(c *Config) {
		c.KeyID = "k2"
		c.VerifyKeys = map[string][]byte{"k1": oldKey}
	})
	now := time.Now()

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, baseClaims(now))
	tok.Header["kid"] = "k1"
	old, _ := tok.SignedString(oldKey)
	if _, err := m.ParseAccess(old); err != nil {
		t.Fatalf("expected rotated key accepted: %v", err)
	}

	tok = gjwt.NewWithClaims(gjwt.SigningMethodHS256, baseClaims(now))
	tok.Header["kid"] = "k9"
	unknown, _ := tok.SignedString(testKey)
	if _, err := m.ParseAccess(unknown); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected unknown kid rejected, got %v", err)
	}

	noKid := sign(t, gjwt.SigningMethodHS256, testKey, baseClaims(now))
	if _, err := m.ParseAccess(noKid); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected missing kid rejected, got %v", err)
	}
}
