package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/refresh"
	"go.uber.org/zap"
)

// TokenUser is the identity snapshot embedded in issued access tokens.
type TokenUser struct {
	ID       string
	Email    string
	Role     string
	TenantID string
	FullName string
}

// IssuedTokens is an access token plus the refresh token minted alongside it.
type IssuedTokens struct {
	User            TokenUser
	AccessToken     string
	AccessExpiresAt time.Time
	Refresh         *refresh.Token
}

type TokenMetrics struct {
	TokenIssued int
}

type TokenEvents struct {
	TokenIssued string
}

type TokenErrors struct {
	EngineNotReady   error
	UserNotFound     error
	StoreUnavailable error
	IssueFailed      error
}

// TokenDeps captures token issuance dependencies. Refresh and logout reuse it.
type TokenDeps struct {
	GetUser        func(context.Context, string) (TokenUser, error)
	IsUserNotFound func(error) bool

	ClientIPFromContext  func(context.Context) string
	UserAgentFromContext func(context.Context) string

	IssueAccess func(TokenUser) (string, time.Time, error)
	Ledger      refresh.Ledger

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)
	Warn      func(string, ...zap.Field)

	Metrics TokenMetrics
	Events  TokenEvents
	Errors  TokenErrors
}

// RunIssueTokens mints a refresh token and an access token for userID. The client IP
// and user agent recorded on the refresh token come from ctx.
func RunIssueTokens(ctx context.Context, userID string, deps TokenDeps) (*IssuedTokens, error) {
	normalizeTokenDeps(&deps)
	if deps.GetUser == nil || deps.IssueAccess == nil || deps.Ledger == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil, deps.Errors.UserNotFound
	}

	user, err := deps.GetUser(ctx, userID)
	if err != nil {
		if deps.IsUserNotFound(err) {
			return nil, deps.Errors.UserNotFound
		}
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	rt, err := deps.Ledger.Create(ctx, user.ID, deps.ClientIPFromContext(ctx), deps.UserAgentFromContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.IssueFailed, err)
	}

	access, expiresAt, err := deps.IssueAccess(user)
	if err != nil {
		if revokeErr := deps.Ledger.Revoke(ctx, rt.Value, refresh.ReasonRevoked); revokeErr != nil {
			deps.Warn("identity: refresh token cleanup after signing failure failed", zap.String("user_id", user.ID), zap.Error(revokeErr))
		}
		return nil, fmt.Errorf("%w: %v", deps.Errors.IssueFailed, err)
	}

	deps.MetricInc(deps.Metrics.TokenIssued)
	deps.EmitAudit(ctx, deps.Events.TokenIssued, true, user.ID, user.TenantID, nil, nil)

	return &IssuedTokens{
		User:            user,
		AccessToken:     access,
		AccessExpiresAt: expiresAt,
		Refresh:         rt,
	}, nil
}

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissing
	RefreshFailureInvalid
	RefreshFailureExpired
	RefreshFailureReplay
	RefreshFailureLedger
	RefreshFailureUserMissing
	RefreshFailureStore
	RefreshFailureIssueAccess
)

// RefreshResult carries either the rotated tokens or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	// Revoked counts tokens revoked because of a replay.
	Revoked int
	Tokens  *IssuedTokens
}

// RunRefresh signs a new access token for the owner of value, then rotates value.
//
// The user lookup and signing happen while value is still active, so a store or signing
// failure leaves the presented token usable for a retry. Rotate runs last; when it fails
// the signed access token is discarded.
func RunRefresh(ctx context.Context, value, ip, userAgent string, deps TokenDeps) RefreshResult {
	normalizeTokenDeps(&deps)
	if deps.GetUser == nil || deps.IssueAccess == nil || deps.Ledger == nil {
		return RefreshResult{Failure: RefreshFailureLedger, Err: deps.Errors.EngineNotReady}
	}
	if value == "" {
		return RefreshResult{Failure: RefreshFailureMissing, Err: refresh.ErrNotFound}
	}

	rec, err := deps.Ledger.FindActive(ctx, value)
	switch {
	case err == nil:
	case errors.Is(err, refresh.ErrNotFound), errors.Is(err, refresh.ErrExpired):
		// Rotate tells unknown, expired and replayed tokens apart and revokes the chain on replay.
		return rotateInactive(ctx, value, ip, userAgent, deps)
	default:
		return RefreshResult{Failure: RefreshFailureLedger, Err: err}
	}

	userID := rec.UserID
	user, err := deps.GetUser(ctx, userID)
	if err != nil {
		kind := RefreshFailureStore
		if deps.IsUserNotFound(err) {
			kind = RefreshFailureUserMissing
			if _, revokeErr := deps.Ledger.RevokeChain(ctx, rec.ID, refresh.ReasonOrphaned); revokeErr != nil {
				deps.Warn("identity: orphaned refresh token revocation failed", zap.String("user_id", userID), zap.Error(revokeErr))
			}
		}
		return RefreshResult{Failure: kind, Err: err, UserID: userID}
	}

	access, expiresAt, err := deps.IssueAccess(user)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, UserID: userID}
	}

	next, err := deps.Ledger.Rotate(ctx, value, ip, userAgent)
	if err != nil {
		return rotateFailure(err)
	}

	return RefreshResult{
		UserID: userID,
		Tokens: &IssuedTokens{
			User:            user,
			AccessToken:     access,
			AccessExpiresAt: expiresAt,
			Refresh:         next,
		},
	}
}

func rotateInactive(ctx context.Context, value, ip, userAgent string, deps TokenDeps) RefreshResult {
	next, err := deps.Ledger.Rotate(ctx, value, ip, userAgent)
	if err != nil {
		return rotateFailure(err)
	}
	// value was inactive a moment ago; a successor minted now was never checked
	// against the user store, so it is not handed out.
	if _, revokeErr := deps.Ledger.RevokeChain(ctx, next.Record.ID, refresh.ReasonRevoked); revokeErr != nil {
		deps.Warn("identity: unexpected refresh successor revocation failed", zap.String("user_id", next.Record.UserID), zap.Error(revokeErr))
	}
	return RefreshResult{Failure: RefreshFailureInvalid, Err: refresh.ErrNotFound, UserID: next.Record.UserID}
}

func rotateFailure(err error) RefreshResult {
	var replay *refresh.ReplayError
	switch {
	case errors.As(err, &replay):
		return RefreshResult{Failure: RefreshFailureReplay, Err: err, UserID: replay.UserID, Revoked: replay.Revoked}
	case errors.Is(err, refresh.ErrExpired):
		return RefreshResult{Failure: RefreshFailureExpired, Err: err}
	case errors.Is(err, refresh.ErrNotFound):
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	default:
		return RefreshResult{Failure: RefreshFailureLedger, Err: err}
	}
}

// RunRevoke revokes value for logout. Unknown and already revoked tokens succeed.
func RunRevoke(ctx context.Context, value string, deps TokenDeps) error {
	normalizeTokenDeps(&deps)
	if deps.Ledger == nil {
		return deps.Errors.EngineNotReady
	}
	if value == "" {
		return refresh.ErrNotFound
	}
	return deps.Ledger.Revoke(ctx, value, refresh.ReasonLogout)
}

func normalizeTokenDeps(deps *TokenDeps) {
	if deps.IsUserNotFound == nil {
		deps.IsUserNotFound = func(error) bool { return false }
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.UserAgentFromContext == nil {
		deps.UserAgentFromContext = func(context.Context) string { return "" }
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
