package password

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	identityV2Marker   = 0x00
	identityV3Marker   = 0x01
	identityV2SaltLen  = 16
	identityV2KeyLen   = 32
	identityV2Iter     = 1000
	identityV3Header   = 13
	identityV3MinSalt  = 16
	identityV3MaxIters = 10_000_000
)

func isBcrypt(encoded string) bool {
	return len(encoded) > 4 && encoded[0] == '$' && encoded[1] == '2' && encoded[3] == '$'
}

func verifyBcrypt(password, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// verifyIdentity checks hashes written by the ASP.NET Core Identity password hasher.
func verifyIdentity(password, encoded string) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 {
		return false, ErrUnsupportedFormat
	}

	switch raw[0] {
	case identityV2Marker:
		if len(raw) != 1+identityV2SaltLen+identityV2KeyLen {
			return false, ErrUnsupportedFormat
		}
		salt := raw[1 : 1+identityV2SaltLen]
		want := raw[1+identityV2SaltLen:]
		got := pbkdf2.Key([]byte(password), salt, identityV2Iter, identityV2KeyLen, sha1.New)
		return subtle.ConstantTimeCompare(got, want) == 1, nil

	case identityV3Marker:
		if len(raw) < identityV3Header {
			return false, ErrUnsupportedFormat
		}
		prf, err := identityPRF(binary.BigEndian.Uint32(raw[1:5]))
		if err != nil {
			return false, err
		}
		iter := binary.BigEndian.Uint32(raw[5:9])
		saltLen := int(binary.BigEndian.Uint32(raw[9:13]))
		if iter == 0 || iter > identityV3MaxIters || saltLen < identityV3MinSalt || len(raw) < identityV3Header+saltLen+16 {
			return false, ErrUnsupportedFormat
		}
		salt := raw[identityV3Header : identityV3Header+saltLen]
		want := raw[identityV3Header+saltLen:]
		got := pbkdf2.Key([]byte(password), salt, int(iter), len(want), prf)
		return subtle.ConstantTimeCompare(got, want) == 1, nil
	}
	return false, ErrUnsupportedFormat
}

func identityPRF(id uint32) (func() hash.Hash, error) {
	switch id {
	case 0:
		return sha1.New, nil
	case 1:
		return sha256.New, nil
	case 2:
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}
