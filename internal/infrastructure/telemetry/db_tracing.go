package telemetry

import (
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultDBSystem  = "postgresql"
	defaultSlowQuery = 200 * time.Millisecond
	startedKey       = "telemetry:started"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled  bool
	DBSystem string
	// WithVariables keeps bound values in the recorded SQL. Development only.
	WithVariables bool
	SlowQuery     time.Duration
}

// DBTracingConfigFrom builds the database tracing configuration from the
// telemetry settings
func DBTracingConfigFrom(enabled, logFullSQL bool, slowQuery time.Duration) DBTracingConfig {
	if slowQuery <= 0 {
		slowQuery = defaultSlowQuery
	}
	return DBTracingConfig{
		Enabled:       enabled,
		DBSystem:      defaultDBSystem,
		WithVariables: logFullSQL,
		SlowQuery:     slowQuery,
	}
}

// DBTracingPlugin registers otelgorm on a connection and annotates each
// statement span with its table, affected rows and slowness.
type DBTracingPlugin struct {
	cfg DBTracingConfig
	log *zap.Logger
}

// NewDBTracingPlugin creates a database tracing plugin
func NewDBTracingPlugin(cfg DBTracingConfig, log *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{cfg: cfg, log: log}
}

// Register installs otelgorm and the annotation callbacks on db. It does
// nothing when tracing is disabled.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.cfg.Enabled {
		return nil
	}

	// Registered ahead of otelgorm so the annotations land before it ends the span
	cb := db.Callback()
	err := errors.Join(
		cb.Create().Before("gorm:create").Register("telemetry:start_create", p.start),
		cb.Create().After("gorm:create").Register("telemetry:annotate_create", p.annotate),
		cb.Query().Before("gorm:query").Register("telemetry:start_query", p.start),
		cb.Query().After("gorm:query").Register("telemetry:annotate_query", p.annotate),
		cb.Update().Before("gorm:update").Register("telemetry:start_update", p.start),
		cb.Update().After("gorm:update").Register("telemetry:annotate_update", p.annotate),
		cb.Delete().Before("gorm:delete").Register("telemetry:start_delete", p.start),
		cb.Delete().After("gorm:delete").Register("telemetry:annotate_delete", p.annotate),
		cb.Row().Before("gorm:row").Register("telemetry:start_row", p.start),
		cb.Row().After("gorm:row").Register("telemetry:annotate_row", p.annotate),
		cb.Raw().Before("gorm:raw").Register("telemetry:start_raw", p.start),
		cb.Raw().After("gorm:raw").Register("telemetry:annotate_raw", p.annotate),
	)
	if err != nil {
		return err
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.cfg.DBSystem)}
	if !p.cfg.WithVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	p.log.Info("Database tracing enabled",
		zap.Bool("with_variables", p.cfg.WithVariables),
		zap.Duration("slow_query_threshold", p.cfg.SlowQuery),
		zap.String("db_system", p.cfg.DBSystem),
	)
	return nil
}

func (p *DBTracingPlugin) start(db *gorm.DB) {
	db.InstanceSet(startedKey, time.Now())
}

// annotate runs after a statement. A missing row is a normal outcome of the
// ledger lookups, so it does not fail the span.
func (p *DBTracingPlugin) annotate(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}

	v, ok := db.InstanceGet(startedKey)
	if !ok {
		return
	}
	started, ok := v.(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(started); elapsed > p.cfg.SlowQuery {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("threshold_ms", p.cfg.SlowQuery.Milliseconds()),
		))
	}
}
