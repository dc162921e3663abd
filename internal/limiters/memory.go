package limiters

import (
	"context"
	"sync"
	"time"
)

type attemptKey struct {
	flow   Flow
	userID string
}

// MemoryAttemptLimiter keeps windows in process memory. Each key is updated with a
// compare-and-swap loop over immutable *Window values, so concurrent failures for the
// same user are never lost.
type MemoryAttemptLimiter struct {
	cfg     AttemptConfig
	windows sync.Map
}

func NewMemoryAttemptLimiter(cfg AttemptConfig) *MemoryAttemptLimiter {
	return &MemoryAttemptLimiter{cfg: cfg.normalized()}
}

func (l *MemoryAttemptLimiter) IsLimited(_ context.Context, flow Flow, userID string) (bool, time.Duration, error) {
	key := attemptKey{flow: flow, userID: userID}
	v, ok := l.windows.Load(key)
	if !ok {
		return false, 0, nil
	}

	w := v.(*Window)
	now := l.cfg.Now()
	if w.expired(now, l.cfg.Window) {
		l.windows.CompareAndDelete(key, w)
		return false, 0, nil
	}
	if w.Count < l.cfg.MaxAttempts {
		return false, 0, nil
	}
	return true, w.retryAfter(now, l.cfg.Window), nil
}

func (l *MemoryAttemptLimiter) RegisterFailure(_ context.Context, flow Flow, userID string) error {
	key := attemptKey{flow: flow, userID: userID}
	for {
		now := l.cfg.Now()
		fresh := &Window{Start: now, Count: 1}

		v, loaded := l.windows.LoadOrStore(key, fresh)
		if !loaded {
			return nil
		}

		cur := v.(*Window)
		next := fresh
		if !cur.expired(now, l.cfg.Window) {
			next = &Window{Start: cur.Start, Count: cur.Count + 1}
		}
		if l.windows.CompareAndSwap(key, cur, next) {
			return nil
		}
	}
}

func (l *MemoryAttemptLimiter) Reset(_ context.Context, flow Flow, userID string) error {
	l.windows.Delete(attemptKey{flow: flow, userID: userID})
	return nil
}

// Snapshot returns the current window for (flow, user), if any.
func (l *MemoryAttemptLimiter) Snapshot(flow Flow, userID string) (Window, bool) {
	v, ok := l.windows.Load(attemptKey{flow: flow, userID: userID})
	if !ok {
		return Window{}, false
	}
	return *v.(*Window), true
}
