// Package logging builds the process zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
)

// New returns a development logger for the development environment and a JSON
// production logger otherwise. The test environment only logs warnings and above.
func New(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	switch env {
	case identity.EnvDevelopment:
		logger, err = zap.NewDevelopment()
	case identity.EnvTest:
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		logger, err = cfg.Build()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return logger.With(zap.String("env", env)), nil
}
