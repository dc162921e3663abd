package flows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/limiters"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/totp"
	"go.uber.org/zap"
)

// TwoFactorUser is the part of a user record the two-factor flows read.
type TwoFactorUser struct {
	ID              string
	TenantID        string
	Label           string
	Enabled         bool
	PendingSecret   string
	ConfirmedSecret string
}

type TwoFactorSetup struct {
	Secret string
	URI    string
}

type TwoFactorMetrics struct {
	SetupRequested int
	Enabled        int
	Failure        int
	Success        int
	RateLimited    int
}

type TwoFactorEvents struct {
	SetupRequested string
	Enabled        string
	SetupFailure   string
	LoginSuccess   string
	LoginFailure   string
	RateLimited    string
}

type TwoFactorErrors struct {
	EngineNotReady      error
	UserNotFound        error
	StoreUnavailable    error
	Unavailable         error
	AlreadyEnabled      error
	SetupInProgress     error
	SetupNotInitialized error
	NotEnabled          error
	SecretMissing       error
	CodeRequired        error
	InvalidCodeFormat   error
	InvalidCode         error
	// InvalidLoginCode replaces InvalidCode for login verification when set.
	InvalidLoginCode error
}

// TwoFactorDeps captures enrollment and verification dependencies.
type TwoFactorDeps struct {
	// ReissuePendingSetup lets EnableTwoFactor overwrite a pending secret instead of
	// rejecting the call.
	ReissuePendingSetup bool
	CodeDigits          int

	Now func() time.Time

	GetUser           func(context.Context, string) (TwoFactorUser, error)
	IsUserNotFound    func(error) bool
	SavePendingSecret func(context.Context, string, string) error
	ActivateSecret    func(context.Context, string, string) error

	GenerateSecret  func() (string, error)
	ProvisioningURI func(label, secret string) string
	ValidateCode    func(secret, code string, now time.Time) bool
	Encrypt         func(string) (string, error)
	Decrypt         func(string) (string, error)

	Limiter     limiters.AttemptLimiter
	RateLimited func(time.Duration) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)
	Warn      func(string, ...zap.Field)

	Metrics TwoFactorMetrics
	Events  TwoFactorEvents
	Errors  TwoFactorErrors
}

func RunEnableTwoFactor(ctx context.Context, userID string, deps TwoFactorDeps) (*TwoFactorSetup, error) {
	normalizeTwoFactorDeps(&deps)
	if deps.GetUser == nil || deps.SavePendingSecret == nil || deps.GenerateSecret == nil ||
		deps.ProvisioningURI == nil || deps.Encrypt == nil {
		return nil, deps.Errors.EngineNotReady
	}

	user, err := loadTwoFactorUser(ctx, userID, deps)
	if err != nil {
		return nil, err
	}
	if user.Enabled {
		return nil, deps.Errors.AlreadyEnabled
	}
	if user.PendingSecret != "" && !deps.ReissuePendingSetup {
		return nil, deps.Errors.SetupInProgress
	}

	plain, err := deps.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	sealed, err := deps.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if err := deps.SavePendingSecret(ctx, user.ID, sealed); err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	deps.MetricInc(deps.Metrics.SetupRequested)
	deps.EmitAudit(ctx, deps.Events.SetupRequested, true, user.ID, user.TenantID, nil, func() map[string]string {
		if user.PendingSecret != "" {
			return map[string]string{"reissued": "true"}
		}
		return nil
	})

	return &TwoFactorSetup{
		Secret: plain,
		URI:    deps.ProvisioningURI(user.Label, plain),
	}, nil
}

// RunConfirmTwoFactorSetup checks code against the pending secret and promotes it on success.
func RunConfirmTwoFactorSetup(ctx context.Context, userID, code string, deps TwoFactorDeps) error {
	normalizeTwoFactorDeps(&deps)
	if deps.GetUser == nil || deps.ActivateSecret == nil || deps.ValidateCode == nil ||
		deps.Decrypt == nil || deps.Limiter == nil {
		return deps.Errors.EngineNotReady
	}

	user, err := loadTwoFactorUser(ctx, userID, deps)
	if err != nil {
		return err
	}
	if err := checkCodeFormat(code, deps); err != nil {
		return err
	}
	if err := checkAttemptLimit(ctx, limiters.FlowSetup, user, deps); err != nil {
		return err
	}
	if user.PendingSecret == "" {
		return deps.Errors.SetupNotInitialized
	}

	plain, err := deps.Decrypt(user.PendingSecret)
	if err != nil {
		deps.Warn("identity: pending two-factor secret could not be decrypted", zap.String("user_id", user.ID))
		return failAttempt(ctx, limiters.FlowSetup, user, deps, deps.Events.SetupFailure)
	}
	if !deps.ValidateCode(plain, code, deps.Now()) {
		return failAttempt(ctx, limiters.FlowSetup, user, deps, deps.Events.SetupFailure)
	}

	if err := deps.ActivateSecret(ctx, user.ID, user.PendingSecret); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if err := deps.Limiter.Reset(ctx, limiters.FlowSetup, user.ID); err != nil {
		deps.Warn("identity: setup attempt window reset failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	deps.MetricInc(deps.Metrics.Enabled)
	deps.EmitAudit(ctx, deps.Events.Enabled, true, user.ID, user.TenantID, nil, nil)
	return nil
}

// RunVerifyTwoFactorLogin checks code against the confirmed secret. It never changes
// enrollment state.
func RunVerifyTwoFactorLogin(ctx context.Context, userID, code string, deps TwoFactorDeps) error {
	normalizeTwoFactorDeps(&deps)
	if deps.GetUser == nil || deps.ValidateCode == nil || deps.Decrypt == nil || deps.Limiter == nil {
		return deps.Errors.EngineNotReady
	}

	user, err := loadTwoFactorUser(ctx, userID, deps)
	if err != nil {
		return err
	}
	if !user.Enabled {
		return deps.Errors.NotEnabled
	}
	if err := checkCodeFormat(code, deps); err != nil {
		return err
	}
	if err := checkAttemptLimit(ctx, limiters.FlowLogin, user, deps); err != nil {
		return err
	}
	if user.ConfirmedSecret == "" {
		return deps.Errors.SecretMissing
	}

	plain, err := deps.Decrypt(user.ConfirmedSecret)
	if err != nil {
		deps.Warn("identity: two-factor secret could not be decrypted", zap.String("user_id", user.ID))
		return failAttempt(ctx, limiters.FlowLogin, user, deps, deps.Events.LoginFailure)
	}
	if !deps.ValidateCode(plain, code, deps.Now()) {
		return failAttempt(ctx, limiters.FlowLogin, user, deps, deps.Events.LoginFailure)
	}

	if err := deps.Limiter.Reset(ctx, limiters.FlowLogin, user.ID); err != nil {
		deps.Warn("identity: login attempt window reset failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, user.TenantID, nil, nil)
	return nil
}

func loadTwoFactorUser(ctx context.Context, userID string, deps TwoFactorDeps) (TwoFactorUser, error) {
	if userID == "" {
		return TwoFactorUser{}, deps.Errors.UserNotFound
	}
	user, err := deps.GetUser(ctx, userID)
	if err != nil {
		if deps.IsUserNotFound(err) {
			return TwoFactorUser{}, deps.Errors.UserNotFound
		}
		return TwoFactorUser{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	return user, nil
}

func checkAttemptLimit(ctx context.Context, flow limiters.Flow, user TwoFactorUser, deps TwoFactorDeps) error {
	limited, retryAfter, err := deps.Limiter.IsLimited(ctx, flow, user.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if !limited {
		return nil
	}

	rateErr := deps.RateLimited(retryAfter)
	deps.MetricInc(deps.Metrics.RateLimited)
	deps.EmitAudit(ctx, deps.Events.RateLimited, false, user.ID, user.TenantID, rateErr, func() map[string]string {
		return map[string]string{"flow": string(flow)}
	})
	return rateErr
}

// failAttempt records a failure and reports RateLimited when it was the one that
// exhausted the window.
func failAttempt(ctx context.Context, flow limiters.Flow, user TwoFactorUser, deps TwoFactorDeps, failureEvent string) error {
	deps.MetricInc(deps.Metrics.Failure)
	invalid := deps.Errors.InvalidCode
	if flow == limiters.FlowLogin && deps.Errors.InvalidLoginCode != nil {
		invalid = deps.Errors.InvalidLoginCode
	}
	deps.EmitAudit(ctx, failureEvent, false, user.ID, user.TenantID, invalid, nil)

	if err := deps.Limiter.RegisterFailure(ctx, flow, user.ID); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if err := checkAttemptLimit(ctx, flow, user, deps); err != nil {
		return err
	}
	return invalid
}

func checkCodeFormat(code string, deps TwoFactorDeps) error {
	if strings.TrimSpace(code) == "" {
		return deps.Errors.CodeRequired
	}
	if len(totp.SanitizeCode(code)) != deps.CodeDigits {
		return deps.Errors.InvalidCodeFormat
	}
	return nil
}

func normalizeTwoFactorDeps(deps *TwoFactorDeps) {
	if deps.CodeDigits <= 0 {
		deps.CodeDigits = 6
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.IsUserNotFound == nil {
		deps.IsUserNotFound = func(error) bool { return false }
	}
	if deps.Errors.CodeRequired == nil {
		deps.Errors.CodeRequired = deps.Errors.InvalidCodeFormat
	}
	if deps.RateLimited == nil {
		deps.RateLimited = func(time.Duration) error { return deps.Errors.InvalidCode }
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
