package main

import (
	"context"
	"time"

	"github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/audit"
	"github.com/erp/reconciliation/internal/infrastructure/auth"
	"github.com/erp/reconciliation/internal/infrastructure/cache"
	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/erp/reconciliation/internal/infrastructure/persistence"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const serviceVersion = "1.0.0"

// app owns everything a single CLI invocation needs and tears it down again
type app struct {
	log     *zap.Logger
	service *reconciliation.Service

	closers []func(ctx context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	base, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Name:       cfg.App.Name,
	})
	if err != nil {
		return nil, err
	}
	a := &app{log: base}
	a.onClose(func(context.Context) error {
		_ = base.Sync()
		return nil
	})

	if err := a.wire(ctx, cfg); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(shutdownCtx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg *config.Config) error {
	tel := cfg.Telemetry

	pipeline, err := telemetry.Start(ctx, telemetry.Config{
		Enabled:           tel.Enabled,
		CollectorEndpoint: tel.CollectorEndpoint,
		Insecure:          tel.Insecure,
		ServiceName:       tel.ServiceName,
		ServiceVersion:    serviceVersion,
		SamplingRatio:     tel.SamplingRatio,
	}, a.log)
	if err != nil {
		return err
	}
	a.onClose(pipeline.Shutdown)

	// From here on log records also leave through the OTLP logs pipeline
	a.log = pipeline.Bridge(a.log, tel.ServiceName, logger.ParseLevel(cfg.Log.Level))

	var dbOpts []persistence.DatabaseOption
	if tel.Enabled && tel.DBTraceEnabled {
		dbOpts = append(dbOpts, persistence.WithDBTracing(
			telemetry.DBTracingConfigFrom(tel.DBTraceEnabled, tel.DBLogFullSQL, tel.DBSlowQueryThresh),
		))
	}
	db, err := persistence.NewDatabase(&cfg.Database, a.log, dbOpts...)
	if err != nil {
		return err
	}
	a.onClose(func(context.Context) error { return db.Close() })

	store, err := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(a.log)).CreateStore(ctx, cfg.Idempotency)
	if err != nil {
		return err
	}
	if store != nil {
		a.onClose(func(context.Context) error { return store.Close() })
	}

	capabilities, err := auth.NewStaticCapabilityChecker(cfg.Capabilities)
	if err != nil {
		return err
	}

	metrics, err := telemetry.NewReconciliationMetrics(pipeline)
	if err != nil {
		return err
	}

	sink := audit.NewZapSink(a.log, cfg.Audit.BufferSize)
	a.onClose(sink.Close)

	opts := []reconciliation.Option{
		reconciliation.WithAuditSink(sink),
		reconciliation.WithMetrics(metrics),
		reconciliation.WithLogger(a.log),
		reconciliation.WithOldPaymentDays(cfg.Reconciliation.OldPaymentDays),
	}
	if store != nil {
		opts = append(opts, reconciliation.WithIdempotencyStore(store, cfg.Idempotency.TTL))
	}
	a.service = reconciliation.NewService(db.UnitOfWork(), capabilities, opts...)

	a.log.Debug("Reconciliation service ready",
		zap.String("env", cfg.App.Env),
		zap.Bool("telemetry", tel.Enabled),
		zap.Bool("idempotency", store != nil),
	)
	return nil
}

func (a *app) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("Error during shutdown", zap.Error(err))
		}
	}
	a.closers = nil
}
