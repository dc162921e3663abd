package identity

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess            = "login_success"
	auditEventLoginFailure            = "login_failure"
	auditEventTwoFactorSetupRequested = "two_factor_setup_requested"
	auditEventTwoFactorEnabled        = "two_factor_enabled"
	auditEventTwoFactorSetupFailure   = "two_factor_setup_failure"
	auditEventTwoFactorSuccess        = "two_factor_success"
	auditEventTwoFactorFailure        = "two_factor_failure"
	auditEventTwoFactorRateLimited    = "two_factor_rate_limited"
	auditEventTokenIssued             = "token_issued"
	auditEventRefreshSuccess          = "refresh_success"
	auditEventRefreshInvalid          = "refresh_invalid"
	auditEventRefreshReplayDetected   = "refresh_replay_detected"
	auditEventLogout                  = "logout"
)

// AuditErrorCode is the stable error label written to audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrReplay             AuditErrorCode = "refresh_replay"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tenantID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TenantID:  tenantID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrInvalidCodeFormat):
		return auditErrInvalidCode
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenReplayDetected):
		return auditErrReplay
	case errors.Is(err, ErrTokenExpiredOrInvalid),
		errors.Is(err, ErrAccessTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrTwoFactorUnavailable),
		errors.Is(err, ErrTokenIssueFailed):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

// now is the engine clock used for code validation and audit timestamps.
func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
