package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	commandIDKey
	companyIDKey
	actorIDKey
)

// WithContext attaches l to ctx
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger attached to ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// WithCommandID tags ctx with the id of the CLI invocation or request that
// issued the command
func WithCommandID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, commandIDKey, id)
}

// WithCompanyID tags ctx with the company a command runs for
func WithCompanyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, companyIDKey, id)
}

// WithActorID tags ctx with the acting subject
func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorIDKey, id)
}

// CommandID returns the command id carried by ctx, if any
func CommandID(ctx context.Context) string {
	return stringValue(ctx, commandIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// Fields returns the correlation fields carried by ctx: command, company and
// actor ids plus the trace and span of the active span.
func Fields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)
	for _, kv := range []struct {
		name string
		key  ctxKey
	}{
		{"command_id", commandIDKey},
		{"company_id", companyIDKey},
		{"actor_id", actorIDKey},
	} {
		if v := stringValue(ctx, kv.key); v != "" {
			fields = append(fields, zap.String(kv.name, v))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return fields
}

// For returns base enriched with the correlation fields of ctx
func For(ctx context.Context, base *zap.Logger) *zap.Logger {
	fields := Fields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// L returns the logger attached to ctx enriched with its correlation fields.
//
//	logger.L(ctx).Info("Payment allocated", zap.String("payment_number", p.PaymentNumber))
func L(ctx context.Context) *zap.Logger {
	return For(ctx, FromContext(ctx))
}
