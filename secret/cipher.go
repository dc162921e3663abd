package secret

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidKey is returned by NewCipher when the key is not a valid AES key size.
	ErrInvalidKey = errors.New("secret: key must be 16, 24 or 32 bytes")
	// ErrMalformedCiphertext is returned by Decrypt for blobs that are not base64, are
	// shorter than one IV plus one block, or carry invalid padding.
	ErrMalformedCiphertext = errors.New("secret: malformed ciphertext")
)

// Cipher performs AES-CBC encryption of short secrets with a random IV per call.
//
// Cipher is immutable after construction and safe for concurrent use.
type Cipher struct {
	block cipher.Block
	rand  io.Reader
}

// NewCipher builds a Cipher for the given AES key.
func NewCipher(key []byte) (*Cipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Cipher{block: block, rand: rand.Reader}, nil
}

// Encrypt returns base64(IV || AES-CBC(PKCS7(plaintext))).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	bs := c.block.BlockSize()
	iv := make([]byte, bs)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("secret: read iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), bs)
	out := make([]byte, bs+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[bs:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. The first block of the decoded blob is the IV.
func (c *Cipher) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	bs := c.block.BlockSize()
	if len(raw) < 2*bs || len(raw)%bs != 0 {
		return "", ErrMalformedCiphertext
	}

	iv := raw[:bs]
	body := make([]byte, len(raw)-bs)
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(body, raw[bs:])

	plain, err := pkcs7Unpad(body, bs)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrMalformedCiphertext
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrMalformedCiphertext
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrMalformedCiphertext
		}
	}
	return data[:len(data)-n], nil
}
