package password

import (
	"encoding/base64"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("Test123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("Test123!", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected password verification to succeed")
	}

	ok, err = hasher.Verify("Test124!", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestArgon2HashRejectsShortPassword(t *testing.T) {
	hasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	for _, pw := range []string{"", "short", "1234567"} {
		if _, err := hasher.Hash(pw); err == nil {
			t.Fatalf("expected %q to be rejected", pw)
		}
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	old, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2(old) error: %v", err)
	}
	hash, err := old.Hash("upgrade-me-please")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := testConfig()
	stronger.Time = 2
	current, err := NewArgon2(stronger)
	if err != nil {
		t.Fatalf("NewArgon2(current) error: %v", err)
	}

	if up, err := current.NeedsUpgrade(hash); err != nil || !up {
		t.Fatalf("expected upgrade for weaker hash, got %v err=%v", up, err)
	}
	if up, err := old.NeedsUpgrade(hash); err != nil || up {
		t.Fatalf("expected no upgrade for same parameters, got %v err=%v", up, err)
	}
}

func TestArgon2VerifyRejectsMalformed(t *testing.T) {
	hasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	hash, err := hasher.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	salt := base64.RawStdEncoding.EncodeToString([]byte("0123456789abcdef"))
	cases := map[string]string{
		"not phc":       "not-a-phc-hash",
		"wrong version": strings.Replace(hash, "$v=19$", "$v=18$", 1),
		"wrong algo":    strings.Replace(hash, "argon2id", "argon2i", 1),
		"low memory":    "$argon2id$v=19$m=1024,t=1,p=1$" + salt + "$AAAA",
		"missing param": "$argon2id$v=19$m=8192,t=1$" + salt + "$AAAA",
		"short salt":    "$argon2id$v=19$m=8192,t=1,p=1$AAAA$AAAA",
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := hasher.Verify("version-test", encoded); err == nil {
				t.Fatal("expected verification error")
			}
		})
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	mutations := []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
	}
	for i, mutate := range mutations {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected config rejection", i)
		}
	}
}
