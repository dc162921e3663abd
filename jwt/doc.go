// Package jwt issues and verifies HMAC-signed access tokens.
//
// Access tokens carry the user identity claims (uid, email, role, tid, name) plus the
// registered iss, aud, sub, iat, nbf, exp and jti claims. Verification checks the signature,
// issuer, audience and lifetime with a leeway of at most one minute and classifies every
// failure into one of the exported sentinel errors.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import the identity root package.
package jwt
