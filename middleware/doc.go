// Package middleware provides net/http guards that require a valid access token.
//
// [Guard] reads the Authorization header, calls ValidateAccessToken on the engine and
// stores the claims in the request context for [ClaimsFromContext].
//
// # What this package must NOT do
//
//   - Parse or sign JWTs itself. Validation is delegated to the engine.
//   - Make role or permission decisions.
package middleware
