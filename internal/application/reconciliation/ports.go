package reconciliation

import (
	"context"
	"time"

	domain "github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CapabilityChecker answers whether a subject may perform an action such as
// "payments.allocate". Identity resolution happens outside the engine.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, subject uuid.UUID, action string) bool
}

// AuditSink receives one event per command. Record must not block and its
// failures never affect the command.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent)
}

// Metrics records command outcomes
type Metrics interface {
	RecordCommand(ctx context.Context, operation, outcome string, duration time.Duration)
	RecordAmount(ctx context.Context, operation string, amount decimal.Decimal)
}

type noopAuditSink struct{}

func (noopAuditSink) Record(context.Context, domain.AuditEvent) {}

type noopMetrics struct{}

func (noopMetrics) RecordCommand(context.Context, string, string, time.Duration) {}
func (noopMetrics) RecordAmount(context.Context, string, decimal.Decimal) {}
