package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/guidepath/guidepath/pkg/config"
)

func TestFromAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithExecution(ctx, "exec-1")
	ctx = WithStep(ctx, 2)
	ctx = WithActor(ctx, "user-1")

	From(ctx, logger).Info("step snoozed")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["execution_id"] != "exec-1" || fields["actor_id"] != "user-1" || fields["request_id"] != "req-1" {
		t.Fatalf("missing correlation fields: %v", fields)
	}
	if fields["step_index"] != int64(2) {
		t.Fatalf("expected step_index 2, got %v", fields["step_index"])
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "console"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug level enabled")
	}
}
