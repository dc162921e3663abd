package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/middleware"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type codeRequest struct {
	UserID string `json:"userId" binding:"required"`
	Code   string `json:"code"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type setupResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type loginResponse struct {
	Requires2FASetup bool   `json:"requires2FASetup,omitempty"`
	Requires2FA      bool   `json:"requires2FA,omitempty"`
	UserID           string `json:"userId"`
}

type enableResponse struct {
	Secret    string `json:"secret"`
	QRPayload string `json:"qrPayload"`
	Message   string `json:"message,omitempty"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresOn   time.Time `json:"expiresOn"`
	UserID      string    `json:"userId,omitempty"`
	Email       string    `json:"email,omitempty"`
	Role        string    `json:"role,omitempty"`
	TenantID    string    `json:"tenantId,omitempty"`
	FullName    string    `json:"fullName,omitempty"`
}

// requestContext carries the caller's IP and user agent to the engine.
func requestContext(c *gin.Context) context.Context {
	ctx := identity.WithClientIP(c.Request.Context(), c.ClientIP())
	return identity.WithUserAgent(ctx, c.Request.UserAgent())
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, messageResponse{Message: "Email and password are required."})
		return
	}

	res, err := h.auth.Login(requestContext(c), req.Email, req.Password)
	if err != nil {
		if identity.OutcomeOf(err) == identity.OutcomeInvalidCredentials {
			c.JSON(http.StatusUnauthorized, messageResponse{Message: identity.Message(err)})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "An error occurred during login"})
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Requires2FASetup: res.Requires2FASetup,
		Requires2FA:      res.Requires2FA,
		UserID:           res.UserID,
	})
}

func (h *handler) enableTwoFactor(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, messageResponse{Message: "userId is required."})
		return
	}

	setup, err := h.auth.EnableTwoFactor(requestContext(c), req.UserID)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusUnauthorized || status == http.StatusTooManyRequests {
			status = http.StatusBadRequest
		}
		if isServerError(status) {
			h.logger.Error("enable 2fa failed", zap.String("user_id", req.UserID), zap.Error(err))
		}
		c.JSON(status, messageResponse{Message: identity.Message(err)})
		return
	}

	c.JSON(http.StatusOK, enableResponse{
		Secret:    setup.Secret,
		QRPayload: setup.QRPayload,
		Message:   setup.Message,
	})
}

// verifyTwoFactorSetup reports every client-side failure as 400 with success=false.
func (h *handler) verifyTwoFactorSetup(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, setupResponse{Success: false, Message: "userId is required."})
		return
	}

	res, err := h.auth.ConfirmTwoFactorSetup(requestContext(c), req.UserID, req.Code)
	if err != nil {
		status := http.StatusBadRequest
		if isServerError(statusFor(err)) {
			status = statusFor(err)
			h.logger.Error("verify 2fa setup failed", zap.String("user_id", req.UserID), zap.Error(err))
		}
		setRetryAfter(c, err)
		c.JSON(status, setupResponse{Success: false, Message: identity.Message(err)})
		return
	}

	c.JSON(http.StatusOK, setupResponse{Success: true, Message: res.Message})
}

func (h *handler) verifyTwoFactor(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, messageResponse{Message: "userId is required."})
		return
	}

	res, err := h.auth.CompleteTwoFactorLogin(requestContext(c), req.UserID, req.Code)
	if err != nil {
		status := statusFor(err)
		if isServerError(status) {
			h.logger.Error("verify 2fa failed", zap.String("user_id", req.UserID), zap.Error(err))
		}
		setRetryAfter(c, err)
		c.JSON(status, messageResponse{Message: identity.Message(err)})
		return
	}

	setRefreshCookie(c.Writer, res.RefreshToken, res.RefreshExpiresAt)
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresOn:   res.ExpiresAt,
		UserID:      res.UserID,
		Email:       res.Email,
		Role:        res.Role,
		TenantID:    res.TenantID,
		FullName:    res.FullName,
	})
}

func (h *handler) refresh(c *gin.Context) {
	token, ok := refreshCookie(c.Request)
	if !ok {
		c.JSON(http.StatusBadRequest, messageResponse{Message: "Refresh token is required"})
		return
	}

	res, err := h.auth.RefreshAuthentication(c.Request.Context(), token, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		status := statusFor(err)
		if isServerError(status) {
			h.logger.Error("token refresh failed", zap.Error(err))
			c.JSON(status, messageResponse{Message: "An error occurred during token refresh"})
			return
		}
		c.JSON(http.StatusUnauthorized, messageResponse{Message: identity.Message(err)})
		return
	}

	setRefreshCookie(c.Writer, res.RefreshToken, res.RefreshExpiresAt)
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresOn:   res.ExpiresAt,
	})
}

func (h *handler) logout(c *gin.Context) {
	token, ok := refreshCookie(c.Request)
	if !ok {
		c.JSON(http.StatusBadRequest, messageResponse{Message: "Refresh token is required"})
		return
	}

	if err := h.auth.RevokeAuthentication(c.Request.Context(), token); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "An error occurred during logout"})
		return
	}

	clearRefreshCookie(c.Writer)
	c.JSON(http.StatusOK, messageResponse{Message: "Successfully logged out"})
}

func (h *handler) healthz(c *gin.Context) {
	if err := h.auth.Ready(c.Request.Context()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type meResponse struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TenantID  string    `json:"tenantId"`
	FullName  string    `json:"fullName"`
	ExpiresOn time.Time `json:"expiresOn"`
}

// me runs behind middleware.Guard and echoes the validated claims.
func me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	resp := meResponse{
		UserID:   claims.UID,
		Email:    claims.Email,
		Role:     claims.Role,
		TenantID: claims.TenantID,
		FullName: claims.Name,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresOn = claims.ExpiresAt.Time
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
