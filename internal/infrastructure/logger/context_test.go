package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func spanContext(t *testing.T) (context.Context, trace.SpanContext) {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	return trace.ContextWithSpanContext(context.Background(), sc), sc
}

func TestWithContext(t *testing.T) {
	logger := zap.NewExample()
	ctx := WithContext(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
	assert.NotNil(t, FromContext(WithContext(context.Background(), nil)))
}

func TestFields(t *testing.T) {
	assert.Empty(t, Fields(context.Background()))

	ctx, sc := spanContext(t)
	ctx = WithCommandID(ctx, "cmd-1")
	ctx = WithCompanyID(ctx, "company-1")

	core, recorded := observer.New(zapcore.InfoLevel)
	zap.New(core).Info("fields", Fields(ctx)...)

	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "cmd-1", fields["command_id"])
	assert.Equal(t, "company-1", fields["company_id"])
	assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
	assert.Equal(t, sc.SpanID().String(), fields["span_id"])
	assert.NotContains(t, fields, "actor_id")
	assert.Equal(t, "cmd-1", CommandID(ctx))
	assert.Empty(t, CommandID(context.Background()))
}

func TestFields_InvalidSpanContext(t *testing.T) {
	ctx := trace.ContextWithSpanContext(context.Background(), trace.SpanContext{})
	assert.Empty(t, Fields(ctx))
}

func TestFor(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	assert.Same(t, base, For(context.Background(), base))

	ctx := WithActorID(context.Background(), "actor-1")
	For(ctx, base).Info("enriched")

	assert.Equal(t, "actor-1", recorded.All()[0].ContextMap()["actor_id"])
}

func TestL(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx, sc := spanContext(t)
	ctx = WithContext(ctx, zap.New(core))
	ctx = WithCommandID(ctx, "cmd-9")
	ctx = WithCompanyID(ctx, "company-9")

	log := L(ctx).With(zap.String("operation", "refund"))
	log.Debug("debug")
	log.Warn("warn")

	logs := recorded.All()
	require.Len(t, logs, 2)
	for _, entry := range logs {
		fields := entry.ContextMap()
		assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
		assert.Equal(t, "cmd-9", fields["command_id"])
		assert.Equal(t, "company-9", fields["company_id"])
		assert.Equal(t, "refund", fields["operation"])
	}

	assert.NotPanics(t, func() {
		L(context.Background()).Info("no logger attached")
	})
}
