// Package audit ships reconciliation audit events to a zap logger.
package audit

import (
	"context"
	"sync"
	"sync/atomic"

	domain "github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultBufferSize is used when a non-positive buffer size is configured
const DefaultBufferSize = 1024

type entry struct {
	event   domain.AuditEvent
	traceID string
}

// ZapSink writes audit events as structured log entries from a single
// background goroutine. Record never blocks; events that do not fit in the
// buffer are dropped and counted.
type ZapSink struct {
	logger  *zap.Logger
	entries chan entry
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewZapSink starts a sink that buffers up to bufferSize events
func NewZapSink(logger *zap.Logger, bufferSize int) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	s := &ZapSink{
		logger:  logger.Named("audit"),
		entries: make(chan entry, bufferSize),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s
}

// Record queues the event. The trace id is captured now because ctx may be
// finished by the time the event is written.
func (s *ZapSink) Record(ctx context.Context, event domain.AuditEvent) {
	e := entry{event: event}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		e.traceID = sc.TraceID().String()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.entries <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded
func (s *ZapSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits until the buffer is written out or
// ctx is done
func (s *ZapSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.entries)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if n := s.Dropped(); n > 0 {
			s.logger.Warn("audit events dropped", zap.Uint64("dropped", n))
		}
		_ = s.logger.Sync()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ZapSink) writeLoop() {
	defer s.wg.Done()
	for e := range s.entries {
		s.write(e)
	}
}

func (s *ZapSink) write(e entry) {
	ev := e.event
	fields := []zap.Field{
		zap.String("operation", ev.Operation),
		zap.String("outcome", string(ev.Outcome)),
		zap.String("company_id", ev.CompanyID.String()),
		zap.String("actor_id", ev.ActorID.String()),
		zap.String("payment_id", ev.PaymentID.String()),
		zap.Time("occurred_at", ev.OccurredAt),
	}
	if ev.IdempotencyKey != "" {
		fields = append(fields, zap.String("idempotency_key", ev.IdempotencyKey))
	}
	if ev.ErrorClass != "" {
		fields = append(fields, zap.String("error_class", ev.ErrorClass))
	}
	if ev.Message != "" {
		fields = append(fields, zap.String("message", ev.Message))
	}
	if len(ev.Violations) > 0 {
		fields = append(fields, zap.Array("violations", violations(ev.Violations)))
	}
	if len(ev.DomainEvents) > 0 {
		fields = append(fields, zap.Strings("domain_events", ev.DomainEvents))
	}
	if e.traceID != "" {
		fields = append(fields, zap.String("trace_id", e.traceID))
	}

	level := zapcore.InfoLevel
	if ev.Outcome == domain.AuditOutcomeRejected {
		level = zapcore.WarnLevel
	}
	if ce := s.logger.Check(level, "reconciliation command audited"); ce != nil {
		ce.Write(fields...)
	}
}

type violations []shared.Violation

func (v violations) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, vi := range v {
		if err := enc.AppendObject(zapcore.ObjectMarshalerFunc(func(oe zapcore.ObjectEncoder) error {
			oe.AddString("field", vi.Field)
			oe.AddString("code", vi.Code)
			oe.AddString("message", vi.Message)
			return nil
		})); err != nil {
			return err
		}
	}
	return nil
}
