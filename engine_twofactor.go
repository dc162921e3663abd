package identity

import "context"

// EnableTwoFactor starts enrollment for userID. The returned Secret is the only
// plaintext copy; only its encrypted form is stored, as the pending secret.
//
// It fails with ErrTwoFactorAlreadyEnabled once enrollment is complete, and with
// ErrSetupInProgress while a setup is pending unless the re-enroll policy is
// ReenrollReissue.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	setup, err := e.flows.EnableTwoFactor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &TwoFactorSetup{
		Secret:    setup.Secret,
		QRPayload: setup.URI,
		Message:   messageTwoFactorSetup,
	}, nil
}

// ConfirmTwoFactorSetup checks code against the pending secret. On success the secret
// becomes the confirmed one and two-factor login is enabled.
//
// Failed codes count toward the setup attempt window; the failure that exhausts it
// returns a *RateLimitedError.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, userID, code string) (*VerificationResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.flows.ConfirmTwoFactorSetup(ctx, userID, code); err != nil {
		return nil, err
	}
	return &VerificationResult{UserID: userID, Message: messageTwoFactorActivated}, nil
}

// VerifyTwoFactorLogin checks code against the confirmed secret. It does not issue
// tokens; see CompleteTwoFactorLogin.
func (e *Engine) VerifyTwoFactorLogin(ctx context.Context, userID, code string) (*VerificationResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.flows.VerifyTwoFactorLogin(ctx, userID, code); err != nil {
		return nil, err
	}
	return &VerificationResult{UserID: userID, Message: messageLoginSuccessful}, nil
}
