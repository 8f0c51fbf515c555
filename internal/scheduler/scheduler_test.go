package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	cdrdomain "github.com/smallbiznis/cdrbill/internal/cdr/domain"
	cdrservice "github.com/smallbiznis/cdrbill/internal/cdr/service"
	"github.com/smallbiznis/cdrbill/internal/clock"
	"github.com/smallbiznis/cdrbill/internal/config"
	invoicedomain "github.com/smallbiznis/cdrbill/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/cdrbill/internal/observability/metrics"
	"github.com/smallbiznis/cdrbill/internal/providers/carrier"
	"github.com/smallbiznis/cdrbill/internal/runlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCDR struct {
	cdrdomain.Service
	clock    clock.Clock
	loc      *time.Location
	runs     int
	failures []error
}

func (f *fakeCDR) TargetPeriod() cdrdomain.Period {
	return cdrservice.PeriodFor(f.clock.Now(), f.loc)
}

func (f *fakeCDR) Run(ctx context.Context, req cdrdomain.RunRequest) (cdrdomain.Report, error) {
	f.runs++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return cdrdomain.Report{}, err
	}
	return cdrdomain.Report{Month: f.TargetPeriod().Key()}, nil
}

type fakeInvoices struct {
	months []time.Time
	err    error
}

func (f *fakeInvoices) Generate(ctx context.Context, req invoicedomain.GenerateRequest) (invoicedomain.Result, error) {
	f.months = append(f.months, req.Month)
	return invoicedomain.Result{}, f.err
}

type fixture struct {
	sched    *Scheduler
	clock    *clock.FakeClock
	cdr      *fakeCDR
	invoices *fakeInvoices
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	pipeline := config.DefaultPipelineConfig()
	clk := clock.NewFakeClock(start)
	f := &fixture{
		clock:    clk,
		cdr:      &fakeCDR{clock: clk, loc: pipeline.Location()},
		invoices: &fakeInvoices{},
	}
	f.sched, err = New(Params{
		Log:        zap.NewNop(),
		CDRSvc:     f.cdr,
		InvoiceSvc: f.invoices,
		Pipeline:   config.NewStaticPipelineHolder(pipeline),
		GenID:      node,
		Clock:      clk,
		Metrics:    obsmetrics.Scheduler(),
	})
	require.NoError(t, err)
	return f
}

func brussels(t *testing.T, year int, month time.Month, day, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)
	return time.Date(year, month, day, hour, min, 0, 0, loc)
}

func TestRunsCDRThenInvoicesOncePerMonth(t *testing.T) {
	f := newFixture(t, brussels(t, 2024, time.February, 1, 2, 59))
	ctx := context.Background()

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 0, f.cdr.runs)

	f.clock.Advance(time.Minute) // 03:00
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 1, f.cdr.runs)
	assert.Empty(t, f.invoices.months)

	f.clock.Advance(30 * time.Minute)
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 1, f.cdr.runs)
	assert.Empty(t, f.invoices.months)

	f.clock.Advance(30 * time.Minute) // 04:00
	require.NoError(t, f.sched.RunOnce(ctx))
	require.Len(t, f.invoices.months, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), f.invoices.months[0])

	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 1, f.cdr.runs)
	assert.Len(t, f.invoices.months, 1)

	f.clock.Set(brussels(t, 2024, time.March, 1, 4, 0))
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 2, f.cdr.runs)
	require.Len(t, f.invoices.months, 2)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), f.invoices.months[1])
}

func TestRetriesRetryableCDRFailureOnNextTick(t *testing.T) {
	f := newFixture(t, brussels(t, 2024, time.February, 1, 3, 0))
	f.cdr.failures = []error{carrier.ErrExportTimeout}
	ctx := context.Background()

	err := f.sched.RunOnce(ctx)
	assert.ErrorIs(t, err, carrier.ErrExportTimeout)
	assert.Equal(t, 1, f.cdr.runs)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 2, f.cdr.runs)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Len(t, f.invoices.months, 1)
}

func TestPermanentCDRFailureSkipsInvoices(t *testing.T) {
	f := newFixture(t, brussels(t, 2024, time.February, 1, 3, 0))
	f.cdr.failures = []error{cdrdomain.ErrMalformedRecord}
	ctx := context.Background()

	assert.Error(t, f.sched.RunOnce(ctx))
	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))

	assert.Equal(t, 1, f.cdr.runs)
	assert.Empty(t, f.invoices.months)
}

func TestHeldLockIsNotRetried(t *testing.T) {
	f := newFixture(t, brussels(t, 2024, time.February, 1, 3, 0))
	f.cdr.failures = []error{runlock.ErrLocked}
	ctx := context.Background()

	assert.ErrorIs(t, f.sched.RunOnce(ctx), runlock.ErrLocked)
	f.clock.Advance(time.Minute)
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 1, f.cdr.runs)
}

func TestLateStartStillRunsForPreviousMonth(t *testing.T) {
	f := newFixture(t, brussels(t, 2024, time.February, 12, 9, 0))
	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, 1, f.cdr.runs)
	assert.Len(t, f.invoices.months, 1)
}

func TestInvoiceFailureIsReported(t *testing.T) {
	f := newFixture(t, brussels(t, 2024, time.February, 1, 4, 0))
	f.invoices.err = errors.New("disk full")

	err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobInvoice)
}

func TestDue(t *testing.T) {
	at := func(day, hour int) time.Time { return time.Date(2024, 2, day, hour, 0, 0, 0, time.UTC) }
	assert.False(t, due(at(1, 2), 1, 3))
	assert.True(t, due(at(1, 3), 1, 3))
	assert.True(t, due(at(2, 0), 1, 3))
	assert.False(t, due(at(4, 23), 5, 0))
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

type recordingPusher struct {
	pushes int
	err    error
}

func (p *recordingPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	p.pushes++
	return p.err
}

func TestPushesMetricsAfterEachJob(t *testing.T) {
	f := newFixture(t, brussels(t, 2024, time.February, 1, 4, 30))
	pusher := &recordingPusher{err: errors.New("gateway down")}
	f.sched.pusher = pusher

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, 1, f.cdr.runs)
	assert.Len(t, f.invoices.months, 1)
	assert.Equal(t, 2, pusher.pushes)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, 2, pusher.pushes)
}
