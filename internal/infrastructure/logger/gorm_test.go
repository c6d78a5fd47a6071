package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

const lockQuery = `SELECT * FROM "payments" WHERE id = $1 LIMIT 1 FOR UPDATE`

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func TestNewGormLogger(t *testing.T) {
	gormLog, _ := newObservedGormLogger(gormlogger.Info)
	assert.Equal(t, gormlogger.Info, gormLog.level)
	assert.Equal(t, defaultSlowQuery, gormLog.slowQuery)

	gormLog, _ = newObservedGormLogger(gormlogger.Warn, WithSlowThreshold(500*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, gormLog.slowQuery)

	var _ gormlogger.Interface = gormLog
}

func TestNewGormLogger_NamedOnce(t *testing.T) {
	gormLog, recorded := newObservedGormLogger(gormlogger.Warn)
	gormLog.Warn(context.Background(), "lock wait")

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "gorm", recorded.All()[0].LoggerName)
}

func TestGormLogger_LogMode(t *testing.T) {
	gormLog, _ := newObservedGormLogger(gormlogger.Info)
	changed, ok := gormLog.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)

	assert.Equal(t, gormlogger.Info, gormLog.level)
	assert.Equal(t, gormlogger.Warn, changed.level)
}

func TestGormLogger_Messages(t *testing.T) {
	gormLog, recorded := newObservedGormLogger(gormlogger.Warn)
	ctx := WithCommandID(context.Background(), "cmd-7")

	gormLog.Info(ctx, "suppressed %d", 1)
	gormLog.Warn(ctx, "warn %s", "payments")
	gormLog.Error(ctx, "error %s", "invoices")

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "warn payments", logs[0].Message)
	assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	assert.Equal(t, "cmd-7", logs[0].ContextMap()["command_id"])
	assert.Equal(t, "error invoices", logs[1].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name      string
		level     gormlogger.LogLevel
		opts      []GormLoggerOption
		elapsed   time.Duration
		err       error
		wantMsg   string
		wantLevel zapcore.Level
	}{
		{name: "error", level: gormlogger.Error, err: errors.New("could not serialize access"), wantMsg: "SQL failed", wantLevel: zapcore.ErrorLevel},
		{name: "record not found is not an error", level: gormlogger.Error, err: gormlogger.ErrRecordNotFound},
		{name: "record not found at info", level: gormlogger.Info, err: gormlogger.ErrRecordNotFound, wantMsg: "SQL", wantLevel: zapcore.DebugLevel},
		{
			name:      "slow query",
			level:     gormlogger.Warn,
			opts:      []GormLoggerOption{WithSlowThreshold(time.Millisecond)},
			elapsed:   time.Second,
			wantMsg:   "Slow SQL",
			wantLevel: zapcore.WarnLevel,
		},
		{
			name:    "slow query logging disabled",
			level:   gormlogger.Warn,
			opts:    []GormLoggerOption{WithSlowThreshold(0)},
			elapsed: time.Hour,
		},
		{name: "normal query at info", level: gormlogger.Info, wantMsg: "SQL", wantLevel: zapcore.DebugLevel},
		{name: "normal query at warn", level: gormlogger.Warn},
		{name: "silent", level: gormlogger.Silent, err: errors.New("ignored")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormLog, recorded := newObservedGormLogger(tt.level, tt.opts...)
			begin := time.Now().Add(-tt.elapsed)

			gormLog.Trace(context.Background(), begin, func() (string, int64) { return lockQuery, 1 }, tt.err)

			if tt.wantMsg == "" {
				assert.Zero(t, recorded.Len())
				return
			}
			require.Equal(t, 1, recorded.Len())
			entry := recorded.All()[0]
			assert.Equal(t, tt.wantMsg, entry.Message)
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, lockQuery, entry.ContextMap()["sql"])
		})
	}
}

func TestGormLogger_Trace_CorrelationFields(t *testing.T) {
	gormLog, recorded := newObservedGormLogger(gormlogger.Info)

	ctx, sc := spanContext(t)
	ctx = WithCommandID(ctx, "cmd-42")

	gormLog.Trace(ctx, time.Now(), func() (string, int64) { return lockQuery, 1 }, nil)

	require.Equal(t, 1, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "cmd-42", fields["command_id"])
	assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
	assert.Equal(t, int64(1), fields["rows"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"unknown", gormlogger.Warn},
		{"", gormlogger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGormLogLevel(tt.level))
		})
	}
}
