package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs a TracerProvider backed by an in-memory span
// recorder and restores the previous global provider on cleanup.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestStartSpan(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "reconcile.allocate", "subcommand", "allocate", "dangling")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "reconcile.allocate", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "allocate", attrs["subcommand"].AsString())
	assert.NotContains(t, attrs, "dangling")
}

func TestStartServiceSpan_NestsUnderParent(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, parent := telemetry.StartSpan(context.Background(), "reconcile.refund")
	_, child := telemetry.StartServiceSpan(ctx, "reconciliation", "refund")
	child.End()
	parent.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "reconciliation.refund", spans[0].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, spans[1].SpanContext().TraceID(), spans[0].SpanContext().TraceID())
}

func TestSetAttributes(t *testing.T) {
	sr := setupTestTracer(t)
	paymentID := uuid.New()

	_, span := telemetry.StartSpan(context.Background(), "test")
	telemetry.SetAttributes(span,
		"payment_id", paymentID,
		"invoice_count", 3,
		"amount", decimal.RequireFromString("125.50"),
		"ratio", 0.5,
		"auto", true,
		"sequence", int64(7),
		"methods", []string{"fifo", "lifo"},
		"other", struct{ N int }{N: 1},
	)
	telemetry.SetAttributes(span, 42, "ignored")
	span.End()

	attrs := attrMap(sr.Ended()[0].Attributes())
	assert.Equal(t, paymentID.String(), attrs["payment_id"].AsString())
	assert.Equal(t, int64(3), attrs["invoice_count"].AsInt64())
	assert.Equal(t, "125.5", attrs["amount"].AsString())
	assert.Equal(t, 0.5, attrs["ratio"].AsFloat64())
	assert.True(t, attrs["auto"].AsBool())
	assert.Equal(t, int64(7), attrs["sequence"].AsInt64())
	assert.Equal(t, []string{"fifo", "lifo"}, attrs["methods"].AsStringSlice())
	assert.Equal(t, "{1}", attrs["other"].AsString())
	assert.NotContains(t, attrs, "ignored")
}

func TestRecordError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "test")
	telemetry.RecordError(span, errors.New("payment row locked"))
	telemetry.RecordError(span, nil)
	span.End()

	spans := sr.Ended()
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "payment row locked", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestSetOK(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "test")
	telemetry.SetOK(span)
	span.End()

	assert.Equal(t, codes.Ok, sr.Ended()[0].Status().Code)
}

func TestAddEvent(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "test")
	telemetry.AddEvent(span, "idempotent_replay", "key", "k-1")
	span.End()

	events := sr.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "idempotent_replay", events[0].Name)
	assert.Equal(t, "k-1", attrMap(events[0].Attributes)["key"].AsString())
}

func TestHelpers_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		telemetry.SetAttributes(nil, "k", "v")
		telemetry.RecordError(nil, errors.New("x"))
		telemetry.SetOK(nil)
		telemetry.AddEvent(nil, "e")
	})
}
