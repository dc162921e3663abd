package flows

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// LoginUser is the flow-local view of a user during password login.
type LoginUser struct {
	ID               string
	Email            string
	Username         string
	Role             string
	FullName         string
	TenantID         string
	PasswordHash     string
	TwoFactorEnabled bool
}

// LoginResult names the second-factor step the caller must take next.
type LoginResult struct {
	UserID           string
	Requires2FASetup bool
	Requires2FA      bool
}

type LoginMetrics struct {
	LoginSuccess int
	LoginFailure int
}

type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
}

type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	StoreUnavailable   error
}

// LoginDeps captures password login dependencies.
type LoginDeps struct {
	PasswordUpgradeOnLogin bool

	GetUserByEmail func(context.Context, string) (LoginUser, error)
	IsUserNotFound func(error) bool

	VerifyPassword       func(password, encoded string) (bool, error)
	PasswordNeedsUpgrade func(string) bool
	HashPassword         func(string) (string, error)
	// UpdatePasswordHash is nil when the user store cannot persist upgraded hashes.
	UpdatePasswordHash func(context.Context, string, string) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)
	Warn      func(string, ...zap.Field)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunAuthenticatePassword checks email and password without issuing tokens.
func RunAuthenticatePassword(ctx context.Context, email, password string, deps LoginDeps) (LoginUser, error) {
	normalizeLoginDeps(&deps)
	if deps.GetUserByEmail == nil || deps.VerifyPassword == nil {
		return LoginUser{}, deps.Errors.EngineNotReady
	}

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", deps.Errors.InvalidCredentials, nil)
		return LoginUser{}, deps.Errors.InvalidCredentials
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if deps.IsUserNotFound(err) {
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", deps.Errors.InvalidCredentials, nil)
			return LoginUser{}, deps.Errors.InvalidCredentials
		}
		return LoginUser{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			deps.Warn("identity: stored password hash rejected", zap.String("user_id", user.ID), zap.Error(err))
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.ID, user.TenantID, deps.Errors.InvalidCredentials, nil)
		return LoginUser{}, deps.Errors.InvalidCredentials
	}

	if deps.PasswordUpgradeOnLogin && deps.UpdatePasswordHash != nil &&
		deps.PasswordNeedsUpgrade != nil && deps.HashPassword != nil &&
		deps.PasswordNeedsUpgrade(user.PasswordHash) {
		if upgraded, err := deps.HashPassword(password); err == nil {
			if err := deps.UpdatePasswordHash(ctx, user.ID, upgraded); err != nil {
				deps.Warn("identity: password hash upgrade update failed", zap.String("user_id", user.ID), zap.Error(err))
			}
		} else {
			deps.Warn("identity: password hash upgrade generation failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return user, nil
}

// RunLogin authenticates the password and reports which two-factor step follows.
// Tokens are never issued here.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*LoginResult, error) {
	normalizeLoginDeps(&deps)

	user, err := RunAuthenticatePassword(ctx, email, password, deps)
	if err != nil {
		return nil, err
	}

	out := &LoginResult{UserID: user.ID}
	next := "2fa"
	if user.TwoFactorEnabled {
		out.Requires2FA = true
	} else {
		out.Requires2FASetup = true
		next = "2fa_setup"
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, user.TenantID, nil, func() map[string]string {
		return map[string]string{"next_step": next}
	})
	return out, nil
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.IsUserNotFound == nil {
		deps.IsUserNotFound = func(error) bool { return false }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...zap.Field) {}
	}
}
