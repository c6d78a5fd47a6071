package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

// collect returns the metric named name from the reader, failing the test
// when it was never recorded.
func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %s not recorded", name)
	return metricdata.Metrics{}
}

func TestReconciliationMetrics(t *testing.T) {
	p, s := startTestPipeline(t, 1.0)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	ctx := context.Background()

	m, err := NewReconciliationMetrics(p)
	require.NoError(t, err)

	m.RecordCommand(ctx, "allocate", "accepted", 12*time.Millisecond)
	m.RecordCommand(ctx, "allocate", "accepted", 8*time.Millisecond)
	m.RecordCommand(ctx, "allocate", "validation", time.Millisecond)
	m.RecordCommand(ctx, "refund", "replayed", time.Millisecond)
	m.RecordAmount(ctx, "allocate", decimal.RequireFromString("100.25"))
	m.RecordAmount(ctx, "allocate", decimal.RequireFromString("0.0099"))
	m.RecordAmount(ctx, "void", decimal.Zero)

	t.Run("commands by operation and outcome", func(t *testing.T) {
		sum, ok := collect(t, s.metrics, "reconciliation_commands_total").Data.(metricdata.Sum[int64])
		require.True(t, ok)
		assert.True(t, sum.IsMonotonic)

		got := map[attribute.Distinct]int64{}
		for _, dp := range sum.DataPoints {
			got[dp.Attributes.Equivalent()] = dp.Value
		}
		key := func(op, outcome string) attribute.Distinct {
			set := attribute.NewSet(AttrOperation.String(op), AttrOutcome.String(outcome))
			return set.Equivalent()
		}
		assert.Equal(t, int64(2), got[key("allocate", "accepted")])
		assert.Equal(t, int64(1), got[key("allocate", "validation")])
		assert.Equal(t, int64(1), got[key("refund", "replayed")])
	})

	t.Run("duration per operation", func(t *testing.T) {
		hist, ok := collect(t, s.metrics, "reconciliation_command_duration_seconds").Data.(metricdata.Histogram[float64])
		require.True(t, ok)

		counts := map[string]uint64{}
		for _, dp := range hist.DataPoints {
			op, _ := dp.Attributes.Value(AttrOperation)
			counts[op.AsString()] = dp.Count
			assert.Equal(t, commandDurationBuckets, dp.Bounds)
		}
		assert.Equal(t, uint64(3), counts["allocate"])
		assert.Equal(t, uint64(1), counts["refund"])
	})

	t.Run("amount in whole cents skips zero", func(t *testing.T) {
		sum, ok := collect(t, s.metrics, "reconciliation_amount_total").Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		assert.Equal(t, int64(10025), sum.DataPoints[0].Value)
	})
}

func TestReconciliationMetrics_DisabledPipeline(t *testing.T) {
	p, err := Start(context.Background(), Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	m, err := NewReconciliationMetrics(p)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordCommand(context.Background(), "void", "accepted", time.Millisecond)
		m.RecordAmount(context.Background(), "void", decimal.NewFromInt(5))
	})
}
