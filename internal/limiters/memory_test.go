package limiters

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func TestMemoryAttemptLimiterLimitsAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	l := NewMemoryAttemptLimiter(AttemptConfig{Now: clock.Now})

	for i := 0; i < 4; i++ {
		if err := l.RegisterFailure(ctx, FlowLogin, "u1"); err != nil {
			t.Fatalf("RegisterFailure: %v", err)
		}
		limited, _, _ := l.IsLimited(ctx, FlowLogin, "u1")
		if limited {
			t.Fatalf("limited after %d failures", i+1)
		}
	}

	clock.Advance(time.Minute)
	_ = l.RegisterFailure(ctx, FlowLogin, "u1")
	limited, retry, err := l.IsLimited(ctx, FlowLogin, "u1")
	if err != nil || !limited {
		t.Fatalf("expected limited after 5 failures, limited=%v err=%v", limited, err)
	}
	if retry != 4*time.Minute {
		t.Fatalf("expected retryAfter 4m, got %v", retry)
	}

	clock.Advance(4 * time.Minute)
	limited, retry, _ = l.IsLimited(ctx, FlowLogin, "u1")
	if !limited || retry != 0 {
		t.Fatalf("expected still limited at exactly start+5m, limited=%v retry=%v", limited, retry)
	}

	clock.Advance(time.Millisecond)
	limited, _, _ = l.IsLimited(ctx, FlowLogin, "u1")
	if limited {
		t.Fatal("expected window to expire just after start+5m")
	}
	if _, ok := l.Snapshot(FlowLogin, "u1"); ok {
		t.Fatal("expected expired window removed")
	}
}

func TestMemoryAttemptLimiterFlowsAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryAttemptLimiter(AttemptConfig{Now: newClock().Now})

	for i := 0; i < 5; i++ {
		_ = l.RegisterFailure(ctx, FlowSetup, "u1")
	}
	if limited, _, _ := l.IsLimited(ctx, FlowSetup, "u1"); !limited {
		t.Fatal("expected setup flow limited")
	}
	if limited, _, _ := l.IsLimited(ctx, FlowLogin, "u1"); limited {
		t.Fatal("login flow must not share setup window")
	}
	if limited, _, _ := l.IsLimited(ctx, FlowSetup, "u2"); limited {
		t.Fatal("other users must not share window")
	}
}

func TestMemoryAttemptLimiterResetClearsWindow(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryAttemptLimiter(AttemptConfig{Now: newClock().Now})

	for i := 0; i < 5; i++ {
		_ = l.RegisterFailure(ctx, FlowLogin, "u1")
	}
	if err := l.Reset(ctx, FlowLogin, "u1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if limited, _, _ := l.IsLimited(ctx, FlowLogin, "u1"); limited {
		t.Fatal("expected reset to clear limit")
	}
}

func TestMemoryAttemptLimiterFailureAfterExpiryStartsNewWindow(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	l := NewMemoryAttemptLimiter(AttemptConfig{Now: clock.Now})

	for i := 0; i < 3; i++ {
		_ = l.RegisterFailure(ctx, FlowLogin, "u1")
	}
	clock.Advance(6 * time.Minute)
	_ = l.RegisterFailure(ctx, FlowLogin, "u1")

	w, ok := l.Snapshot(FlowLogin, "u1")
	if !ok || w.Count != 1 || !w.Start.Equal(clock.Now()) {
		t.Fatalf("expected fresh window, got %+v ok=%v", w, ok)
	}
}

func TestMemoryAttemptLimiterConcurrentFailuresAreCounted(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryAttemptLimiter(AttemptConfig{MaxAttempts: 1000, Now: newClock().Now})

	const workers = 64
	const perWorker = 10
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < perWorker; j++ {
				_ = l.RegisterFailure(ctx, FlowLogin, "u1")
			}
		}()
	}
	close(start)
	wg.Wait()

	w, ok := l.Snapshot(FlowLogin, "u1")
	if !ok || w.Count != workers*perWorker {
		t.Fatalf("expected %d failures, got %+v", workers*perWorker, w)
	}
}
