package audit

import (
	"context"
	"testing"
	"time"

	domain "github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sampleEvent(outcome domain.AuditOutcome) domain.AuditEvent {
	return domain.AuditEvent{
		Operation:  "allocate",
		Outcome:    outcome,
		CompanyID:  uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		ActorID:    uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		PaymentID:  uuid.MustParse("44444444-4444-4444-4444-444444444444"),
		OccurredAt: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
	}
}

func closeSink(t *testing.T, s *ZapSink) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
}

func TestZapSink_WritesAcceptedEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core), 8)

	event := sampleEvent(domain.AuditOutcomeAccepted)
	event.IdempotencyKey = "retry-1"
	event.DomainEvents = []string{"PaymentAllocated"}
	sink.Record(context.Background(), event)
	closeSink(t, sink)

	entries := logs.FilterMessage("reconciliation command audited").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "audit", entries[0].LoggerName)

	fields := entries[0].ContextMap()
	assert.Equal(t, "allocate", fields["operation"])
	assert.Equal(t, "accepted", fields["outcome"])
	assert.Equal(t, "44444444-4444-4444-4444-444444444444", fields["payment_id"])
	assert.Equal(t, "retry-1", fields["idempotency_key"])
	assert.Equal(t, []interface{}{"PaymentAllocated"}, fields["domain_events"])
	assert.NotContains(t, fields, "error_class")
	assert.NotContains(t, fields, "trace_id")
}

func TestZapSink_WritesRejectionsAtWarn(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core), 8)

	event := sampleEvent(domain.AuditOutcomeRejected)
	event.ErrorClass = "validation"
	event.Message = "validation failed"
	event.Violations = []shared.Violation{
		shared.NewViolation("allocations.0.amount", "EXCEEDS_REMAINING", "Amount exceeds remaining"),
	}
	sink.Record(context.Background(), event)
	closeSink(t, sink)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "validation", fields["error_class"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{
			"field":   "allocations.0.amount",
			"code":    "EXCEEDS_REMAINING",
			"message": "Amount exceeds remaining",
		},
	}, fields["violations"])
}

func TestZapSink_CapturesTraceID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core), 8)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	sink.Record(ctx, sampleEvent(domain.AuditOutcomeAccepted))
	closeSink(t, sink)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", logs.All()[0].ContextMap()["trace_id"])
}

// gatedCore holds every write until the gate is closed
type gatedCore struct {
	zapcore.Core
	gate <-chan struct{}
}

func (c *gatedCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *gatedCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	<-c.gate
	return c.Core.Write(e, fields)
}

func TestZapSink_DropsWhenBufferIsFull(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	gate := make(chan struct{})
	sink := NewZapSink(zap.New(&gatedCore{Core: observed, gate: gate}), 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			sink.Record(context.Background(), sampleEvent(domain.AuditOutcomeAccepted))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
	assert.GreaterOrEqual(t, sink.Dropped(), uint64(1))

	close(gate)
	closeSink(t, sink)

	written := len(logs.FilterMessage("reconciliation command audited").All())
	assert.Equal(t, uint64(3), uint64(written)+sink.Dropped())
	assert.Equal(t, 1, logs.FilterMessage("audit events dropped").Len())
}

func TestZapSink_RecordAfterCloseIsDropped(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core), 4)
	closeSink(t, sink)

	assert.NotPanics(t, func() {
		sink.Record(context.Background(), sampleEvent(domain.AuditOutcomeAccepted))
	})
	assert.Equal(t, uint64(1), sink.Dropped())
	assert.Equal(t, 0, logs.Len())

	// Closing twice is harmless
	closeSink(t, sink)
}

func TestNewZapSink_Defaults(t *testing.T) {
	sink := NewZapSink(nil, 0)
	assert.Equal(t, DefaultBufferSize, cap(sink.entries))
	closeSink(t, sink)
}
