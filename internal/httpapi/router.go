// Package httpapi exposes the identity engine over HTTP with gin.
//
// Routes live under /api/auth. The refresh token travels only in the HttpOnly
// refreshToken cookie and is replaced on every rotation.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/jwt"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/middleware"
)

// Authenticator is the engine surface the handlers use. *identity.Engine implements it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*identity.LoginResult, error)
	EnableTwoFactor(ctx context.Context, userID string) (*identity.TwoFactorSetup, error)
	ConfirmTwoFactorSetup(ctx context.Context, userID, code string) (*identity.VerificationResult, error)
	CompleteTwoFactorLogin(ctx context.Context, userID, code string) (*identity.AuthResult, error)
	RefreshAuthentication(ctx context.Context, refreshToken, ip, userAgent string) (*identity.AuthResult, error)
	RevokeAuthentication(ctx context.Context, refreshToken string) error
	ValidateAccessToken(token string) (*jwt.AccessClaims, error)
	Ready(ctx context.Context) error
}

type Options struct {
	Auth   Authenticator
	Logger *zap.Logger
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
}

type handler struct {
	auth   Authenticator
	logger *zap.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{auth: opts.Auth, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", h.login)
		auth.POST("/enable-2fa", h.enableTwoFactor)
		auth.POST("/verify-2fa-setup", h.verifyTwoFactorSetup)
		auth.POST("/verify-2fa", h.verifyTwoFactor)
		auth.POST("/refresh", h.refresh)
		auth.POST("/logout", h.logout)
		auth.GET("/me", gin.WrapH(middleware.Guard(opts.Auth)(http.HandlerFunc(me))))
	}

	r.GET("/healthz", h.healthz)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	return r
}
