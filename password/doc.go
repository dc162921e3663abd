// Package password hashes new passwords with Argon2id and verifies every stored format
// the user table may contain.
//
// # Formats
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>   new hashes
//	$2a$ / $2b$ / $2y$                                            bcrypt
//	base64(0x01 | prf | iterations | saltLen | salt | subkey)       ASP.NET Identity v3
//	base64(0x00 | salt[16] | subkey[32])                            ASP.NET Identity v2
//
// [Verifier.NeedsUpgrade] reports true for anything that is not Argon2id with the current
// parameters so callers can re-hash after a successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Log plaintext passwords or hash parameters at runtime.
package password
