package identity

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	// The two cases are deliberately indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when a user id does not resolve to a stored user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCodeFormat is returned when a verification code is not exactly the configured
	// number of digits after non-digit characters are stripped.
	ErrInvalidCodeFormat = errors.New("invalid verification code format")
	// ErrRateLimited is matched by every *RateLimitedError.
	ErrRateLimited = errors.New("too many invalid two-factor attempts")
	// ErrInvalidCode is returned when a well-formed code does not verify.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrSetupInProgress is returned by EnableTwoFactor while a pending secret exists.
	ErrSetupInProgress = errors.New("two-factor setup already in progress")
	// ErrSetupNotInitialized is returned by ConfirmTwoFactorSetup when no pending secret exists.
	ErrSetupNotInitialized = errors.New("two-factor setup not initialized")
	// ErrTwoFactorNotEnabled is returned by VerifyTwoFactorLogin for users without 2FA.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrTwoFactorAlreadyEnabled is returned by EnableTwoFactor for users with 2FA.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrTwoFactorSecretMissing is returned when 2FA is enabled but no confirmed secret is stored.
	ErrTwoFactorSecretMissing = errors.New("two-factor secret missing")
	// ErrTokenExpiredOrInvalid covers unknown, revoked and expired refresh tokens.
	ErrTokenExpiredOrInvalid = errors.New("refresh token expired or invalid")
	// ErrTokenReplayDetected is returned when a rotated refresh token is presented again.
	ErrTokenReplayDetected = errors.New("refresh token replay detected")
	// ErrAccessTokenInvalid is returned by ValidateAccessToken for any rejected token.
	ErrAccessTokenInvalid = errors.New("invalid access token")

	// ErrEngineNotReady is returned when the engine was not built through Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable wraps user store failures other than not-found.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrTwoFactorUnavailable wraps limiter, cipher and secret generation failures.
	ErrTwoFactorUnavailable = errors.New("two-factor backend unavailable")
	// ErrTokenIssueFailed wraps signing and refresh ledger failures during issuance.
	ErrTokenIssueFailed = errors.New("token issuance failed")
)

// RateLimitedError reports how long the caller must wait before the next attempt.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// RetryAfterSeconds rounds up and never reports less than one second.
func (e *RateLimitedError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func newRateLimitedError(retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

// messageError refines a sentinel with the user-facing text of one flow.
type messageError struct {
	kind    error
	message string
}

func (e *messageError) Error() string { return e.kind.Error() }
func (e *messageError) Unwrap() error { return e.kind }

var (
	errCodeRequired     = &messageError{kind: ErrInvalidCodeFormat, message: "Two-factor code is required."}
	errInvalidSetupCode = &messageError{kind: ErrInvalidCode, message: "Invalid or expired verification code."}
	errInvalidLoginCode = &messageError{kind: ErrInvalidCode, message: "Invalid code. Please try again."}
)
