// Package secret encrypts two-factor shared secrets before they are persisted.
//
// # Wire format
//
// Encrypt produces base64(IV || ciphertext) where IV is a fresh 16-byte value and the
// ciphertext is AES-CBC with PKCS#7 padding. Rows written by earlier deployments use the
// same layout, so the format must not change without a migration.
//
// # What this package must NOT do
//
//   - Log or return plaintext in errors.
//   - Reuse an IV across calls.
package secret
