package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Tokens.Ledger != nil && s.deps.Login.GetUserByEmail != nil
}

func (s Service) AuthenticatePassword(ctx context.Context, email, password string) (LoginUser, error) {
	return RunAuthenticatePassword(ctx, email, password, s.deps.Login)
}

func (s Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	return RunLogin(ctx, email, password, s.deps.Login)
}

func (s Service) EnableTwoFactor(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	return RunEnableTwoFactor(ctx, userID, s.deps.TwoFactor)
}

func (s Service) ConfirmTwoFactorSetup(ctx context.Context, userID, code string) error {
	return RunConfirmTwoFactorSetup(ctx, userID, code, s.deps.TwoFactor)
}

func (s Service) VerifyTwoFactorLogin(ctx context.Context, userID, code string) error {
	return RunVerifyTwoFactorLogin(ctx, userID, code, s.deps.TwoFactor)
}

func (s Service) IssueTokens(ctx context.Context, userID string) (*IssuedTokens, error) {
	return RunIssueTokens(ctx, userID, s.deps.Tokens)
}

func (s Service) Refresh(ctx context.Context, value, ip, userAgent string) RefreshResult {
	return RunRefresh(ctx, value, ip, userAgent, s.deps.Tokens)
}

func (s Service) Revoke(ctx context.Context, value string) error {
	return RunRevoke(ctx, value, s.deps.Tokens)
}
