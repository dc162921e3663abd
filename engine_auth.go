package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	internalflows "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/flows"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/jwt"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/refresh"
	"go.uber.org/zap"
)

// Login checks email and password and reports which second-factor step follows.
// It never issues tokens. Unknown emails and wrong passwords both return
// ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res, err := e.flows.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		UserID:           res.UserID,
		Requires2FASetup: res.Requires2FASetup,
		Requires2FA:      res.Requires2FA,
	}, nil
}

// AuthenticatePasswordOnly checks email and password and returns the matching user
// with password hash and two-factor secrets removed.
func (e *Engine) AuthenticatePasswordOnly(ctx context.Context, email, password string) (*UserRecord, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	u, err := e.flows.AuthenticatePassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return &UserRecord{
		ID:               u.ID,
		Email:            u.Email,
		Username:         u.Username,
		Role:             u.Role,
		TenantID:         u.TenantID,
		FullName:         u.FullName,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}, nil
}

// IssueTokensForUser mints an access token and a refresh token for userID. The client
// IP and user agent stored with the refresh token are read from ctx.
func (e *Engine) IssueTokensForUser(ctx context.Context, userID string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	issued, err := e.flows.IssueTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	return authResultFrom(issued), nil
}

// CompleteTwoFactorLogin verifies a login code and, on success, issues tokens.
func (e *Engine) CompleteTwoFactorLogin(ctx context.Context, userID, code string) (*AuthResult, error) {
	if _, err := e.VerifyTwoFactorLogin(ctx, userID, code); err != nil {
		return nil, err
	}
	return e.IssueTokensForUser(ctx, userID)
}

// RefreshAuthentication rotates refreshToken and signs a new access token for its
// owner. Presenting an already rotated token revokes the whole chain issued after it
// and returns ErrTokenReplayDetected.
func (e *Engine) RefreshAuthentication(ctx context.Context, refreshToken, ip, userAgent string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken, ip, userAgent)
	if res.Failure == internalflows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.Tokens.User.TenantID, nil, nil)
		return authResultFrom(res.Tokens), nil
	}

	err := e.refreshError(res)
	switch res.Failure {
	case internalflows.RefreshFailureReplay:
		e.metricInc(MetricRefreshReplayDetected)
		e.warn("identity: refresh token replay detected",
			zap.String("user_id", res.UserID),
			zap.Int("revoked", res.Revoked),
			zap.String("ip", ip),
		)
		e.emitAudit(ctx, auditEventRefreshReplayDetected, false, res.UserID, "", err, func() map[string]string {
			return map[string]string{"revoked": strconv.Itoa(res.Revoked)}
		})
	case internalflows.RefreshFailureLedger, internalflows.RefreshFailureStore, internalflows.RefreshFailureIssueAccess:
		e.metricInc(MetricRefreshFailure)
		e.warn("identity: refresh failed", zap.String("user_id", res.UserID), zap.Error(res.Err))
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", err, nil)
	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", err, func() map[string]string {
			return map[string]string{"reason": refreshFailureReason(res.Failure)}
		})
	}
	return nil, err
}

func (e *Engine) refreshError(res internalflows.RefreshResult) error {
	switch res.Failure {
	case internalflows.RefreshFailureReplay:
		return ErrTokenReplayDetected
	case internalflows.RefreshFailureMissing,
		internalflows.RefreshFailureInvalid,
		internalflows.RefreshFailureExpired,
		internalflows.RefreshFailureUserMissing:
		return ErrTokenExpiredOrInvalid
	case internalflows.RefreshFailureIssueAccess:
		return fmt.Errorf("%w: %v", ErrTokenIssueFailed, res.Err)
	default:
		if errors.Is(res.Err, ErrEngineNotReady) {
			return ErrEngineNotReady
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	}
}

func refreshFailureReason(kind internalflows.RefreshFailureKind) string {
	switch kind {
	case internalflows.RefreshFailureMissing:
		return "missing"
	case internalflows.RefreshFailureExpired:
		return "expired"
	case internalflows.RefreshFailureUserMissing:
		return "user_missing"
	default:
		return "invalid"
	}
}

// RevokeAuthentication revokes refreshToken on logout. Unknown, expired and already
// revoked tokens are not an error.
func (e *Engine) RevokeAuthentication(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return ErrTokenExpiredOrInvalid
	}

	var userID string
	if rec, err := e.ledger.FindActive(ctx, refreshToken); err == nil {
		userID = rec.UserID
	}

	if err := e.flows.Revoke(ctx, refreshToken); err != nil && !errors.Is(err, refresh.ErrNotFound) {
		if errors.Is(err, ErrEngineNotReady) {
			return err
		}
		e.warn("identity: refresh token revocation failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, "", nil, nil)
	return nil
}

// ValidateAccessToken verifies signature, issuer, audience and lifetime of an access
// token. Failures wrap ErrAccessTokenInvalid together with the jwt package sentinel.
func (e *Engine) ValidateAccessToken(token string) (*jwt.AccessClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}

	claims, err := e.jwtManager.ParseAccess(token)
	if !start.IsZero() {
		e.metrics.Observe(MetricAccessValidateLatency, time.Since(start))
	}
	if err != nil {
		e.metricInc(MetricAccessValidateFailure)
		return nil, fmt.Errorf("%w: %w", ErrAccessTokenInvalid, err)
	}
	return claims, nil
}

func authResultFrom(t *internalflows.IssuedTokens) *AuthResult {
	return &AuthResult{
		AccessToken:      t.AccessToken,
		ExpiresAt:        t.AccessExpiresAt,
		RefreshToken:     t.Refresh.Value,
		RefreshExpiresAt: t.Refresh.Record.ExpiresAt,
		UserID:           t.User.ID,
		Email:            t.User.Email,
		Role:             t.User.Role,
		TenantID:         t.User.TenantID,
		FullName:         t.User.FullName,
	}
}
