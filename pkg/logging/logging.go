// Package logging builds the process-wide logr.Logger, backed by zap the way
// the teacher's tools/internal/logger and internal/mcp packages do.
// Components receive it as a constructor argument or config field rather
// than importing zap directly; Into and From also carry it through a
// context.
package logging

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kagent-dev/codemode/pkg/env"
)

// New builds a logr.Logger from the CODEMODE_LOG_LEVEL / CODEMODE_ENV_DEVELOPMENT
// environment variables.
func New() logr.Logger {
	cfg := zap.NewProductionConfig()

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(env.LogLevel.Get())); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	if env.LogDevelopment.Get() {
		cfg.Development = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build()
	if err != nil {
		panic("logging: failed to build zap logger: " + err.Error())
	}
	return zapr.NewLogger(zl)
}

type ctxKey struct{}

// Into stores logger in ctx for downstream logr.FromContextOrDiscard reads.
func Into(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// From is a thin alias over logr.FromContextOrDiscard for call-site brevity.
func From(ctx context.Context) logr.Logger {
	return logr.FromContextOrDiscard(ctx)
}
