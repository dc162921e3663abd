// Package identity is the authentication core of the student-system backend: password
// login, TOTP two-factor enrollment and verification, short-lived signed access tokens
// and rotating opaque refresh tokens with replay detection.
//
// Engine methods are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Login sequence
//
//  1. [Engine.Login] checks the password and reports whether the user must enroll
//     ([LoginResult.Requires2FASetup]) or verify ([LoginResult.Requires2FA]). It never
//     issues tokens.
//  2. [Engine.EnableTwoFactor] and [Engine.ConfirmTwoFactorSetup] move a user from
//     Disabled through PendingSetup to Enabled.
//  3. [Engine.CompleteTwoFactorLogin] verifies a code and issues an [AuthResult].
//  4. [Engine.RefreshAuthentication] rotates the refresh token; [Engine.RevokeAuthentication]
//     ends it.
//
// Two-factor failures are counted per user and flow (setup and login separately). Five
// failures inside five minutes block further attempts until the window ends; the error
// is a [*RateLimitedError].
//
// # Architecture boundaries
//
// identity is the public surface. It exposes [Engine], [Builder], [Config], the
// [UserStore] contract and value types. Flow orchestration, attempt limiting and audit
// dispatch live under internal/.
//
// # What this package must NOT do
//
//   - Log or return refresh token values other than to the caller that minted them.
//   - Store plaintext two-factor secrets.
//   - Map errors to HTTP status codes. Use [OutcomeOf] and [Message] at the transport layer.
package identity
