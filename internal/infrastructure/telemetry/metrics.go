package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of reconciliation metrics
const MeterName = "reconcile/reconciliation"

// Metric attribute keys
var (
	AttrOperation = attribute.Key("operation")
	AttrOutcome   = attribute.Key("outcome")
)

// commandDurationBuckets are in seconds. Commands hold row locks, so the low
// end matters most.
var commandDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// ReconciliationMetrics records the outcome, latency and money volume of
// reconciliation commands.
type ReconciliationMetrics struct {
	commands metric.Int64Counter     // reconciliation_commands_total
	duration metric.Float64Histogram // reconciliation_command_duration_seconds
	amount   metric.Int64Counter     // reconciliation_amount_total
}

// NewReconciliationMetrics creates the reconciliation instruments on the
// pipeline's meter
func NewReconciliationMetrics(p *Pipeline) (*ReconciliationMetrics, error) {
	meter := p.Meter(MeterName)

	commands, err := meter.Int64Counter("reconciliation_commands_total",
		metric.WithDescription("Reconciliation commands by operation and outcome"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create commands counter: %w", err)
	}

	duration, err := meter.Float64Histogram("reconciliation_command_duration_seconds",
		metric.WithDescription("Reconciliation command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(commandDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	amount, err := meter.Int64Counter("reconciliation_amount_total",
		metric.WithDescription("Money moved by accepted commands, in minor units"),
		metric.WithUnit("{cent}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create amount counter: %w", err)
	}

	return &ReconciliationMetrics{commands: commands, duration: duration, amount: amount}, nil
}

// RecordCommand counts a finished command and records its duration.
// outcome is "accepted", "replayed" or an error class.
func (m *ReconciliationMetrics) RecordCommand(ctx context.Context, operation, outcome string, duration time.Duration) {
	m.commands.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(operation), AttrOutcome.String(outcome)))
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrOperation.String(operation)))
}

// RecordAmount adds the whole cents allocated, voided or refunded by an
// accepted command. Sub-cent digits are dropped.
func (m *ReconciliationMetrics) RecordAmount(ctx context.Context, operation string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	m.amount.Add(ctx, valueobject.MinorUnits(amount), metric.WithAttributes(AttrOperation.String(operation)))
}
