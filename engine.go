package identity

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/audit"
	internalflows "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/flows"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/limiters"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/jwt"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/refresh"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/secret"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/totp"
	"go.uber.org/zap"
)

// Engine runs password login, two-factor enrollment and verification, and the
// refresh-token lifecycle.
//
// An Engine is immutable after Build and safe for concurrent use.
type Engine struct {
	config Config
	logger *zap.Logger
	clock  func() time.Time

	users     UserStore
	passwords PasswordVerifier
	ledger    refresh.Ledger
	limiter   limiters.AttemptLimiter

	totp       *totp.Manager
	cipher     *secret.Cipher
	jwtManager *jwt.Manager

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	flows   internalflows.Service
}

// Close flushes pending audit events. It is safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

// AuditDropped reports how many audit events were discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration with key material removed.
func (e *Engine) Config() Config {
	cfg := cloneConfig(e.config)
	cfg.JWT.SigningKey = nil
	cfg.JWT.VerifyKeys = nil
	cfg.TwoFactor.EncryptionKey = nil
	return cfg
}

// Ready reports whether every backend the engine depends on answers. Stores that do not
// implement Ping are assumed healthy.
func (e *Engine) Ready(ctx context.Context) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	type pinger interface {
		Ping(context.Context) error
	}
	var errs []error
	for _, dep := range []any{e.users, e.ledger, e.limiter} {
		if p, ok := dep.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, fields ...zap.Field) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Warn(msg, fields...)
}

func (e *Engine) getUserByID(ctx context.Context, userID string) (*UserRecord, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func isUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}
