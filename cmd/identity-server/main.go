// identity-server serves the authentication API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
	internalaudit "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/audit"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/config"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/db"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/httpapi"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/logging"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/store/postgres"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/telemetry"
	otelexport "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/metrics/export/otel"
	promexport "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/metrics/export/prometheus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "identity-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	engineCfg, err := cfg.ToEngineConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.Open(startCtx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(startCtx).Err(); err != nil {
			return fmt.Errorf("redis: ping: %w", err)
		}
	}

	engine, err := buildEngine(cfg, engineCfg, pool, rdb, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	tp, err := telemetry.NewProvider(startCtx, cfg.OTLPEndpoint, cfg.ServiceName, 0)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()
	otelExp, err := otelexport.NewOTelExporter(tp.MeterProvider.Meter("identity"), engine)
	if err != nil {
		return err
	}
	defer func() { _ = otelExp.Close() }()

	router := httpapi.NewRouter(httpapi.Options{
		Auth:    engine,
		Logger:  logger,
		Metrics: promexport.NewPrometheusExporter(engine).Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("identity-server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("identity-server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildEngine(cfg *config.Config, engineCfg identity.Config, pool *pgxpool.Pool, rdb *redis.Client, logger *zap.Logger) (*identity.Engine, error) {
	b := identity.New().
		WithConfig(engineCfg).
		WithUserStore(postgres.NewUserStore(pool)).
		WithLogger(logger)

	switch cfg.LedgerBackend {
	case config.LedgerRedis:
		// Limiter and ledger both use Redis.
	default:
		b.WithPostgresLedger(pool)
	}
	if rdb != nil {
		b.WithRedis(rdb)
	}

	if sink := auditSink(cfg, logger); sink != nil {
		b.WithAuditSink(sink)
	}
	return b.Build()
}

func auditSink(cfg *config.Config, logger *zap.Logger) identity.AuditSink {
	if !cfg.AuditEnabled {
		return nil
	}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		return internalaudit.MultiSink{
			internalaudit.NewZapSink(logger),
			internalaudit.NewKafkaSink(brokers, cfg.AuditKafkaTopic, logger),
		}
	}
	return internalaudit.NewZapSink(logger)
}
