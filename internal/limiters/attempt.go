package limiters

import (
	"context"
	"errors"
	"time"
)

const (
	defaultAttemptMax    = 5
	defaultAttemptWindow = 5 * time.Minute
)

// ErrAttemptLimiterUnavailable wraps backend failures of a shared limiter.
var ErrAttemptLimiterUnavailable = errors.New("attempt limiter unavailable")

// Flow partitions attempt windows so setup failures never count against login.
type Flow string

const (
	FlowSetup Flow = "setup"
	FlowLogin Flow = "login"
)

// AttemptConfig holds the failure budget per (flow, user) window.
type AttemptConfig struct {
	MaxAttempts int
	Window      time.Duration
	Now         func() time.Time
}

func (c AttemptConfig) normalized() AttemptConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultAttemptMax
	}
	if c.Window <= 0 {
		c.Window = defaultAttemptWindow
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// AttemptLimiter counts failed two-factor verifications per (flow, user).
//
// A window starts at the first failure and lasts Window. Once MaxAttempts failures
// are recorded inside it, IsLimited reports true with the time left until the window
// ends. Windows expire lazily on the next read or write.
type AttemptLimiter interface {
	IsLimited(ctx context.Context, flow Flow, userID string) (bool, time.Duration, error)
	RegisterFailure(ctx context.Context, flow Flow, userID string) error
	Reset(ctx context.Context, flow Flow, userID string) error
}

// Window is an immutable snapshot of one (flow, user) failure window.
type Window struct {
	Start time.Time
	Count int
}

// expired reports whether strictly more than length has passed since the first failure.
func (w Window) expired(now time.Time, length time.Duration) bool {
	return now.After(w.Start.Add(length))
}

func (w Window) retryAfter(now time.Time, length time.Duration) time.Duration {
	d := w.Start.Add(length).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
