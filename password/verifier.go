package password

import "strings"

// Verifier hashes with Argon2id and verifies Argon2id, bcrypt and ASP.NET Identity hashes.
type Verifier struct {
	argon *Argon2
}

func NewVerifier(cfg Config) (*Verifier, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Verifier{argon: a}, nil
}

func (v *Verifier) Hash(password string) (string, error) {
	return v.argon.Hash(password)
}

// Verify reports whether password matches encoded. An empty encoded hash never matches.
func (v *Verifier) Verify(password, encoded string) (bool, error) {
	switch {
	case encoded == "":
		return false, nil
	case strings.HasPrefix(encoded, argon2Prefix):
		return v.argon.Verify(password, encoded)
	case isBcrypt(encoded):
		return verifyBcrypt(password, encoded)
	default:
		return verifyIdentity(password, encoded)
	}
}

// NeedsUpgrade reports whether encoded should be replaced by a fresh Argon2id hash.
func (v *Verifier) NeedsUpgrade(encoded string) bool {
	if !strings.HasPrefix(encoded, argon2Prefix) {
		return true
	}
	weak, err := v.argon.NeedsUpgrade(encoded)
	return err != nil || weak
}
