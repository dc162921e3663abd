package totp

import (
	"encoding/base32"
	"errors"
	"strings"
	"testing"
	"time"
)

func mustManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func encodeKey(raw string) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(raw))
}

func TestValidateRFCVectors(t *testing.T) {
	cases := []struct {
		algorithm string
		key       string
		vectors   map[int64]string
	}{
		{
			algorithm: "SHA1",
			key:       "12345678901234567890",
			vectors: map[int64]string{
				59:          "94287082",
				1111111109:  "07081804",
				1111111111:  "14050471",
				1234567890:  "89005924",
				2000000000:  "69279037",
				20000000000: "65353130",
			},
		},
		{
			algorithm: "SHA256",
			key:       "12345678901234567890123456789012",
			vectors: map[int64]string{
				59:          "46119246",
				1111111109:  "68084774",
				1111111111:  "67062674",
				1234567890:  "91819424",
				2000000000:  "90698825",
				20000000000: "77737706",
			},
		},
		{
			algorithm: "SHA512",
			key:       "1234567890123456789012345678901234567890123456789012345678901234",
			vectors: map[int64]string{
				59:          "90693936",
				1111111109:  "25091201",
				1111111111:  "99943326",
				1234567890:  "93441116",
				2000000000:  "38618901",
				20000000000: "47863826",
			},
		},
	}

	for _, tc := range cases {
		m := mustManager(t, Config{Digits: 8, Algorithm: tc.algorithm, Skew: -1})
		secret := encodeKey(tc.key)
		for ts, code := range tc.vectors {
			if !m.ValidateAt(secret, code, time.Unix(ts, 0)) {
				t.Fatalf("%s vector failed at t=%d", tc.algorithm, ts)
			}
		}
	}
}

func TestValidateAcceptsAdjacentStepsOnly(t *testing.T) {
	m := mustManager(t, Config{})
	secret := encodeKey("12345678901234567890")
	now := time.Unix(1234567890, 0)

	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := m.CodeAt(secret, now.Add(offset))
		if err != nil {
			t.Fatalf("CodeAt: %v", err)
		}
		if !m.ValidateAt(secret, code, now) {
			t.Fatalf("expected code at offset %v accepted", offset)
		}
	}

	for _, offset := range []time.Duration{-90 * time.Second, 90 * time.Second} {
		code, _ := m.CodeAt(secret, now.Add(offset))
		if m.ValidateAt(secret, code, now) {
			t.Fatalf("expected code at offset %v rejected", offset)
		}
	}
}

func TestValidateSanitizesAndRejectsMalformedInput(t *testing.T) {
	m := mustManager(t, Config{})
	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	now := time.Unix(1700000000, 0)
	code, _ := m.CodeAt(secret, now)

	spaced := code[:3] + " " + code[3:]
	if !m.ValidateAt(secret, spaced, now) {
		t.Fatal("expected spaced code accepted")
	}
	if m.ValidateAt(secret, code[:5], now) {
		t.Fatal("expected short code rejected")
	}
	if m.ValidateAt(secret, code+"1", now) {
		t.Fatal("expected long code rejected")
	}
	if m.ValidateAt("not*base32", code, now) {
		t.Fatal("expected malformed secret rejected")
	}
	if m.ValidateAt("", code, now) {
		t.Fatal("expected empty secret rejected")
	}
}

func TestGenerateSecretLength(t *testing.T) {
	m := mustManager(t, Config{})
	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	raw, err := DecodeSecret(secret)
	if err != nil {
		t.Fatalf("DecodeSecret: %v", err)
	}
	if len(raw)*8 < 160 {
		t.Fatalf("expected >= 160 bits, got %d", len(raw)*8)
	}
	if strings.Contains(secret, "=") {
		t.Fatal("expected unpadded secret")
	}
}

func TestProvisioningURIFormat(t *testing.T) {
	m := mustManager(t, Config{})
	got := m.ProvisioningURI("ana maria@unsa.ba", "JBSWY3DPEHPK3PXP")
	want := "otpauth://totp/StudentSystem:ana%20maria%40unsa.ba?secret=JBSWY3DPEHPK3PXP&issuer=StudentSystem&digits=6&period=30"
	if got != want {
		t.Fatalf("unexpected uri:\n got  %s\n want %s", got, want)
	}
}

func TestNewRejectsWeakSecretsAndUnknownAlgorithm(t *testing.T) {
	if _, err := New(Config{SecretBytes: 10}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := New(Config{Algorithm: "MD5"}); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestSanitizeCode(t *testing.T) {
	if got := SanitizeCode(" 12-34 56\n"); got != "123456" {
		t.Fatalf("SanitizeCode = %q", got)
	}
}
