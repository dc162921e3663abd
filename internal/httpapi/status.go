package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
)

// statusFor maps an engine error to the status used by the two-factor and token
// routes. Routes with a narrower contract override it.
func statusFor(err error) int {
	switch identity.OutcomeOf(err) {
	case identity.OutcomeUserNotFound:
		return http.StatusNotFound
	case identity.OutcomeInvalidCredentials, identity.OutcomeInvalidCode,
		identity.OutcomeTokenInvalid, identity.OutcomeTokenReplay:
		return http.StatusUnauthorized
	case identity.OutcomeRateLimited:
		return http.StatusTooManyRequests
	case identity.OutcomeUnavailable:
		return http.StatusServiceUnavailable
	case identity.OutcomeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func isServerError(status int) bool {
	return status >= http.StatusInternalServerError
}

// setRetryAfter adds a Retry-After header when err carries a limiter window.
func setRetryAfter(c *gin.Context, err error) {
	var rl *identity.RateLimitedError
	if errors.As(err, &rl) {
		c.Header("Retry-After", strconv.Itoa(rl.RetryAfterSeconds()))
	}
}
