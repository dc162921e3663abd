// Package refresh implements the refresh-token ledger: opaque rotating tokens,
// replay detection and chain revocation.
//
// # Token format
//
// A token value is 64 random bytes encoded as unpadded base64url. Values are returned to
// the caller exactly once. Ledgers persist only the hex SHA-256 of the value and look tokens
// up by that hash.
//
// # Rotation
//
// Rotate revokes the presented token, links it to its successor through ReplacedByTokenID and
// creates the successor in one atomic step. Presenting a token that was already rotated revokes
// every token that descends from it and reports ErrReplayDetected.
//
// # What this package must NOT do
//
//   - Log or persist raw token values.
//   - Import the identity root package.
package refresh
