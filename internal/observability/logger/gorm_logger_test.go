package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/cdrbill/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql   string
		op    string
		table string
	}{
		{`SELECT * FROM "customers" WHERE id = $1`, "SELECT", "customers"},
		{`INSERT INTO "monthly_cdr_summaries" ("id") VALUES ($1) ON CONFLICT ("customer_id","month") DO UPDATE SET call_count = excluded.call_count`, "UPSERT", "monthly_cdr_summaries"},
		{`INSERT INTO cdr_runs (id) VALUES (1)`, "INSERT", "cdr_runs"},
		{`UPDATE "cdr_runs" SET status = $1`, "UPDATE", "cdr_runs"},
		{`DELETE FROM customer_sip_lines WHERE customer_id = 7`, "DELETE", "customer_sip_lines"},
		{`WITH x AS (SELECT 1) SELECT * FROM x`, "SELECT", "x"},
		{``, "UNKNOWN", ""},
		{`VACUUM`, "UNKNOWN", ""},
	}
	for _, tc := range cases {
		op, table := describeSQL(tc.sql)
		assert.Equal(t, tc.op, op, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}

func TestParseGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, ParseGormLevel("silent"))
	assert.Equal(t, gormlogger.Error, ParseGormLevel(" ERROR "))
	assert.Equal(t, gormlogger.Info, ParseGormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, ParseGormLevel("bogus"))
}

func TestGormTraceLogsSlowQueryWithRunContext(t *testing.T) {
	logs := observeGlobal(t)

	l := NewGormLogger(GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: time.Second})
	begin := time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return begin.Add(2 * time.Second) }

	ctx := obscontext.WithRunID(context.Background(), "42")
	l.Trace(ctx, begin, func() (string, int64) {
		return `DELETE FROM monthly_cdr_summaries WHERE month = $1`, 3
	}, nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "gorm.query.slow", e.Message)
	assert.Equal(t, zapcore.WarnLevel, e.Level)
	fields := e.ContextMap()
	assert.Equal(t, "42", fields["run_id"])
	assert.Equal(t, "DELETE", fields["operation"])
	assert.Equal(t, "monthly_cdr_summaries", fields["table"])
	assert.Equal(t, int64(2000), fields["duration_ms"])
	assert.Equal(t, int64(3), fields["rows_affected"])
}

func TestGormTraceSkipsFastQueriesAndIgnoredNotFound(t *testing.T) {
	logs := observeGlobal(t)

	l := NewGormLogger(DefaultGormLoggerConfig())
	begin := time.Now()
	l.now = func() time.Time { return begin.Add(time.Millisecond) }

	sql := func() (string, int64) { return `SELECT * FROM customers`, 0 }
	l.Trace(context.Background(), begin, sql, nil)
	l.Trace(context.Background(), begin, sql, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(context.Background(), begin, sql, errors.New("connection reset"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}

func TestGormSilentLevel(t *testing.T) {
	logs := observeGlobal(t)

	l := NewGormLogger(DefaultGormLoggerConfig()).LogMode(gormlogger.Silent)
	l.Error(context.Background(), "boom")
	l.Trace(context.Background(), time.Now().Add(-time.Hour), func() (string, int64) { return "SELECT 1", 1 }, errors.New("x"))
	assert.Zero(t, logs.Len())
}
