package logging

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/guidepath/guidepath/pkg/config"
)

// New builds a zap logger for the configured format and level.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, err
		}
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

type ctxKey int

const (
	executionIDKey ctxKey = iota
	stepIndexKey
	actorIDKey
	requestIDKey
)

func WithExecution(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionIDKey, executionID)
}

func WithStep(ctx context.Context, stepIndex int) context.Context {
	return context.WithValue(ctx, stepIndexKey, stepIndex)
}

func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// From returns logger enriched with the correlation fields found in ctx.
func From(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if ctx == nil {
		return logger
	}
	fields := make([]zap.Field, 0, 4)
	if v := RequestID(ctx); v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if v, ok := ctx.Value(executionIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("execution_id", v))
	}
	if v, ok := ctx.Value(stepIndexKey).(int); ok {
		fields = append(fields, zap.Int("step_index", v))
	}
	if v, ok := ctx.Value(actorIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("actor_id", v))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
