package identity

import (
	"errors"
	"fmt"
)

// Outcome is the transport-neutral classification of an engine result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeInvalidCredentials
	OutcomeUserNotFound
	OutcomeTwoFactorNotEnabled
	OutcomeTwoFactorAlreadyEnabled
	OutcomeSetupInProgress
	OutcomeSetupNotInitialized
	OutcomeSecretMissing
	OutcomeInvalidCodeFormat
	OutcomeRateLimited
	OutcomeInvalidCode
	OutcomeTokenInvalid
	OutcomeTokenReplay
	OutcomeUnavailable
	OutcomeInternal
)

var outcomeNames = [...]string{
	OutcomeSuccess:                 "success",
	OutcomeInvalidCredentials:      "invalid_credentials",
	OutcomeUserNotFound:            "user_not_found",
	OutcomeTwoFactorNotEnabled:     "two_factor_not_enabled",
	OutcomeTwoFactorAlreadyEnabled: "two_factor_already_enabled",
	OutcomeSetupInProgress:         "setup_in_progress",
	OutcomeSetupNotInitialized:     "setup_not_initialized",
	OutcomeSecretMissing:           "secret_missing",
	OutcomeInvalidCodeFormat:       "invalid_code_format",
	OutcomeRateLimited:             "rate_limited",
	OutcomeInvalidCode:             "invalid_code",
	OutcomeTokenInvalid:            "token_invalid",
	OutcomeTokenReplay:             "token_replay",
	OutcomeUnavailable:             "unavailable",
	OutcomeInternal:                "internal",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// OutcomeOf maps an error returned by the Engine to its Outcome. nil is OutcomeSuccess.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInvalidCredentials):
		return OutcomeInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return OutcomeUserNotFound
	case errors.Is(err, ErrTwoFactorNotEnabled):
		return OutcomeTwoFactorNotEnabled
	case errors.Is(err, ErrTwoFactorAlreadyEnabled):
		return OutcomeTwoFactorAlreadyEnabled
	case errors.Is(err, ErrSetupInProgress):
		return OutcomeSetupInProgress
	case errors.Is(err, ErrSetupNotInitialized):
		return OutcomeSetupNotInitialized
	case errors.Is(err, ErrTwoFactorSecretMissing):
		return OutcomeSecretMissing
	case errors.Is(err, ErrInvalidCodeFormat):
		return OutcomeInvalidCodeFormat
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, ErrInvalidCode):
		return OutcomeInvalidCode
	case errors.Is(err, ErrTokenReplayDetected):
		return OutcomeTokenReplay
	case errors.Is(err, ErrTokenExpiredOrInvalid), errors.Is(err, ErrAccessTokenInvalid):
		return OutcomeTokenInvalid
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrTwoFactorUnavailable),
		errors.Is(err, ErrTokenIssueFailed),
		errors.Is(err, ErrEngineNotReady):
		return OutcomeUnavailable
	default:
		return OutcomeInternal
	}
}

// Message returns the user-facing text for err. Infrastructure failures get a generic
// message so internal details never reach clients.
func Message(err error) string {
	var me *messageError
	if errors.As(err, &me) {
		return me.message
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return fmt.Sprintf("Too many invalid 2FA attempts. Try again in %d seconds.", rl.RetryAfterSeconds())
	}

	switch OutcomeOf(err) {
	case OutcomeSuccess:
		return ""
	case OutcomeInvalidCredentials:
		return "Invalid email or password"
	case OutcomeUserNotFound:
		return "User does not exist."
	case OutcomeTwoFactorNotEnabled:
		return "Two-factor authentication is not enabled for this user."
	case OutcomeTwoFactorAlreadyEnabled:
		return "Two-factor authentication is already enabled."
	case OutcomeSetupInProgress:
		return "A 2FA setup is already in progress. Verify it first."
	case OutcomeSetupNotInitialized:
		return "2FA setup was not initialized."
	case OutcomeSecretMissing:
		return "Two-factor secret is missing. Reconfigure 2FA."
	case OutcomeInvalidCodeFormat:
		return "Enter a 6-digit verification code."
	case OutcomeRateLimited:
		return "Too many invalid 2FA attempts. Try again later."
	case OutcomeInvalidCode:
		return "Invalid or expired verification code."
	case OutcomeTokenInvalid, OutcomeTokenReplay:
		return "Invalid or expired refresh token"
	default:
		return "An unexpected error occurred."
	}
}

const (
	messageTwoFactorSetup     = "Scan the QR code with your authenticator app, then confirm with a 6-digit code."
	messageTwoFactorActivated = "Two-factor authentication has been successfully activated."
	messageLoginSuccessful    = "Login successful."
)
