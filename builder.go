package identity

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/audit"
	internalflows "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/flows"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/limiters"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/jwt"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/password"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/refresh"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/secret"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/totp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Configure it during initialization; Build may be
// called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	pg     refresh.DB

	users     UserStore
	ledger    refresh.Ledger
	passwords PasswordVerifier
	auditSink AuditSink
	logger    *zap.Logger
	clock     func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithRedis shares refresh tokens and two-factor attempt windows through client.
// Without it attempt windows are process-local.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgresLedger stores refresh tokens in the refresh_tokens table through db.
// It takes precedence over the Redis ledger.
func (b *Builder) WithPostgresLedger(db refresh.DB) *Builder {
	b.pg = db
	return b
}

// WithLedger installs a custom refresh ledger. It takes precedence over Redis and Postgres.
func (b *Builder) WithLedger(ledger refresh.Ledger) *Builder {
	b.ledger = ledger
	return b
}

// WithPasswordVerifier replaces the default Argon2id/bcrypt/ASP.NET Identity verifier.
func (b *Builder) WithPasswordVerifier(v PasswordVerifier) *Builder {
	b.passwords = v
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source for tokens, codes, limiter windows and audit events.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	// -------- CRYPTO --------
	totpManager, err := totp.New(totp.Config{
		Issuer:    cfg.TwoFactor.Issuer,
		Digits:    cfg.TwoFactor.Digits,
		Period:    cfg.TwoFactor.Period,
		Skew:      totpSkew(cfg.TwoFactor.Skew),
		Algorithm: cfg.TwoFactor.Algorithm,
	})
	if err != nil {
		return nil, err
	}
	cipher, err := secret.NewCipher(cfg.TwoFactor.EncryptionKey)
	if err != nil {
		return nil, err
	}
	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		SigningKey:    cfg.JWT.SigningKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           clock,
	})
	if err != nil {
		return nil, err
	}

	passwords := b.passwords
	if passwords == nil {
		v, err := password.NewVerifier(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		passwords = v
	}

	// -------- STORES --------
	ledgerCfg := refresh.Config{
		TTL:               cfg.Refresh.TTL,
		RetainAfterExpiry: cfg.Refresh.RetainAfterExpiry,
		Prefix:            cfg.Refresh.RedisPrefix,
		Now:               clock,
	}
	ledger := b.ledger
	switch {
	case ledger != nil:
	case b.pg != nil:
		ledger = refresh.NewPostgresLedger(b.pg, ledgerCfg)
	case b.redis != nil:
		ledger = refresh.NewRedisLedger(b.redis, ledgerCfg)
	default:
		return nil, errors.New("refresh ledger required: configure Redis, Postgres or a custom ledger")
	}

	attemptCfg := limiters.AttemptConfig{
		MaxAttempts: cfg.TwoFactor.MaxAttempts,
		Window:      cfg.TwoFactor.AttemptWindow,
		Now:         clock,
	}
	var limiter limiters.AttemptLimiter
	if b.redis != nil {
		limiter = limiters.NewRedisAttemptLimiter(b.redis, cfg.TwoFactor.LimiterPrefix, attemptCfg)
	} else {
		limiter = limiters.NewMemoryAttemptLimiter(attemptCfg)
		if cfg.Environment == EnvProduction {
			logger.Warn("identity: two-factor attempt windows are process-local; configure Redis for multi-instance deployments")
		}
	}

	for _, w := range cfg.Lint() {
		logger.Warn("identity: config lint", zap.String("code", w.Code), zap.String("message", w.Message))
	}

	e := &Engine{
		config:     cfg,
		logger:     logger,
		clock:      clock,
		users:      b.users,
		passwords:  passwords,
		ledger:     ledger,
		limiter:    limiter,
		totp:       totpManager,
		cipher:     cipher,
		jwtManager: jwtManager,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink, logger),
		metrics: NewMetrics(cfg.Metrics),
	}
	e.flows = internalflows.New(e.buildFlowDeps())

	b.built = true
	return e, nil
}

func totpSkew(skew int) int {
	if skew == 0 {
		return -1
	}
	return skew
}

func (e *Engine) buildFlowDeps() internalflows.Deps {
	metricInc := func(id int) { e.metricInc(MetricID(id)) }

	login := internalflows.LoginDeps{
		PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		GetUserByEmail: func(ctx context.Context, email string) (internalflows.LoginUser, error) {
			u, err := e.users.GetByEmail(ctx, email)
			if err != nil {
				return internalflows.LoginUser{}, err
			}
			if u == nil {
				return internalflows.LoginUser{}, ErrUserNotFound
			}
			return internalflows.LoginUser{
				ID:               u.ID,
				Email:            u.Email,
				Username:         u.Username,
				Role:             u.Role,
				FullName:         u.FullName,
				TenantID:         u.TenantID,
				PasswordHash:     u.PasswordHash,
				TwoFactorEnabled: u.TwoFactorEnabled,
			}, nil
		},
		IsUserNotFound: isUserNotFound,
		VerifyPassword: e.passwords.Verify,
		MetricInc:      metricInc,
		EmitAudit:      e.emitAudit,
		Warn:           e.warn,
		Metrics: internalflows.LoginMetrics{
			LoginSuccess: int(MetricLoginSuccess),
			LoginFailure: int(MetricLoginFailure),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess: auditEventLoginSuccess,
			LoginFailure: auditEventLoginFailure,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			StoreUnavailable:   ErrStoreUnavailable,
		},
	}
	if up, ok := e.passwords.(interface {
		NeedsUpgrade(string) bool
		Hash(string) (string, error)
	}); ok {
		login.PasswordNeedsUpgrade = up.NeedsUpgrade
		login.HashPassword = up.Hash
	}
	if updater, ok := e.users.(PasswordHashUpdater); ok {
		login.UpdatePasswordHash = updater.UpdatePasswordHash
	}

	twoFactor := internalflows.TwoFactorDeps{
		ReissuePendingSetup: e.config.TwoFactor.ReenrollPolicy == ReenrollReissue,
		CodeDigits:          e.config.TwoFactor.Digits,
		Now:                 e.now,
		GetUser: func(ctx context.Context, userID string) (internalflows.TwoFactorUser, error) {
			u, err := e.getUserByID(ctx, userID)
			if err != nil {
				return internalflows.TwoFactorUser{}, err
			}
			return internalflows.TwoFactorUser{
				ID:              u.ID,
				TenantID:        u.TenantID,
				Label:           u.AccountLabel(),
				Enabled:         u.TwoFactorEnabled,
				PendingSecret:   u.TwoFactorSecretPending,
				ConfirmedSecret: u.TwoFactorSecretEncrypted,
			}, nil
		},
		IsUserNotFound:    isUserNotFound,
		SavePendingSecret: e.users.SavePendingTwoFactor,
		ActivateSecret:    e.users.ActivateTwoFactor,
		GenerateSecret:    e.totp.GenerateSecret,
		ProvisioningURI:   e.totp.ProvisioningURI,
		ValidateCode:      e.totp.ValidateAt,
		Encrypt:           e.cipher.Encrypt,
		Decrypt:           e.cipher.Decrypt,
		Limiter:           e.limiter,
		RateLimited:       newRateLimitedError,
		MetricInc:         metricInc,
		EmitAudit:         e.emitAudit,
		Warn:              e.warn,
		Metrics: internalflows.TwoFactorMetrics{
			SetupRequested: int(MetricTwoFactorSetupRequested),
			Enabled:        int(MetricTwoFactorEnabled),
			Failure:        int(MetricTwoFactorFailure),
			Success:        int(MetricTwoFactorSuccess),
			RateLimited:    int(MetricTwoFactorRateLimited),
		},
		Events: internalflows.TwoFactorEvents{
			SetupRequested: auditEventTwoFactorSetupRequested,
			Enabled:        auditEventTwoFactorEnabled,
			SetupFailure:   auditEventTwoFactorSetupFailure,
			LoginSuccess:   auditEventTwoFactorSuccess,
			LoginFailure:   auditEventTwoFactorFailure,
			RateLimited:    auditEventTwoFactorRateLimited,
		},
		Errors: internalflows.TwoFactorErrors{
			EngineNotReady:      ErrEngineNotReady,
			UserNotFound:        ErrUserNotFound,
			StoreUnavailable:    ErrStoreUnavailable,
			Unavailable:         ErrTwoFactorUnavailable,
			AlreadyEnabled:      ErrTwoFactorAlreadyEnabled,
			SetupInProgress:     ErrSetupInProgress,
			SetupNotInitialized: ErrSetupNotInitialized,
			NotEnabled:          ErrTwoFactorNotEnabled,
			SecretMissing:       ErrTwoFactorSecretMissing,
			CodeRequired:        errCodeRequired,
			InvalidCodeFormat:   ErrInvalidCodeFormat,
			InvalidCode:         errInvalidSetupCode,
			InvalidLoginCode:    errInvalidLoginCode,
		},
	}

	tokens := internalflows.TokenDeps{
		GetUser: func(ctx context.Context, userID string) (internalflows.TokenUser, error) {
			u, err := e.getUserByID(ctx, userID)
			if err != nil {
				return internalflows.TokenUser{}, err
			}
			return internalflows.TokenUser{
				ID:       u.ID,
				Email:    u.Email,
				Role:     u.Role,
				TenantID: u.TenantID,
				FullName: u.FullName,
			}, nil
		},
		IsUserNotFound:       isUserNotFound,
		ClientIPFromContext:  clientIPFromContext,
		UserAgentFromContext: userAgentFromContext,
		IssueAccess: func(u internalflows.TokenUser) (string, time.Time, error) {
			return e.jwtManager.CreateAccess(jwt.Identity{
				UserID:   u.ID,
				Email:    u.Email,
				Role:     u.Role,
				TenantID: u.TenantID,
				FullName: u.FullName,
			})
		},
		Ledger:    e.ledger,
		MetricInc: metricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.warn,
		Metrics: internalflows.TokenMetrics{
			TokenIssued: int(MetricTokenIssued),
		},
		Events: internalflows.TokenEvents{
			TokenIssued: auditEventTokenIssued,
		},
		Errors: internalflows.TokenErrors{
			EngineNotReady:   ErrEngineNotReady,
			UserNotFound:     ErrUserNotFound,
			StoreUnavailable: ErrStoreUnavailable,
			IssueFailed:      ErrTokenIssueFailed,
		},
	}

	return internalflows.Deps{
		Login:     login,
		TwoFactor: twoFactor,
		Tokens:    tokens,
	}
}
