package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/cdrbill/internal/cdr/domain"
	"github.com/smallbiznis/cdrbill/internal/cdr/repository"
	"github.com/smallbiznis/cdrbill/internal/clock"
	"github.com/smallbiznis/cdrbill/internal/config"
	customerdomain "github.com/smallbiznis/cdrbill/internal/customer/domain"
	customerrepo "github.com/smallbiznis/cdrbill/internal/customer/repository"
	customerservice "github.com/smallbiznis/cdrbill/internal/customer/service"
	"github.com/smallbiznis/cdrbill/internal/money"
	"github.com/smallbiznis/cdrbill/internal/providers/carrier"
	"github.com/smallbiznis/cdrbill/internal/providers/carrier/carriertest"
	ratingservice "github.com/smallbiznis/cdrbill/internal/rating/service"
	"github.com/smallbiznis/cdrbill/internal/runlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	svc    domain.Service
	db     *gorm.DB
	srv    *carriertest.Server
	clock  *clock.FakeClock
	timer  *clock.FakeTimer
	locker *runlock.LocalLocker
	notes  *recordingNotifier
}

type recordingNotifier struct {
	reports []domain.Report
	errs    []error
}

func (n *recordingNotifier) RunFinished(_ context.Context, report domain.Report, err error) {
	n.reports = append(n.reports, report)
	n.errs = append(n.errs, err)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithRepo(t, repository.Provide())
}

func newHarnessWithRepo(t *testing.T, repo domain.Repository) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&customerdomain.SipLine{},
		&customerdomain.DdiName{},
		&customerdomain.Subscription{},
		&domain.MonthlySummary{},
		&domain.Run{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC))
	timer := clock.NewFakeTimer(clk)
	srv := carriertest.New(t)
	client := carrier.NewClient(carrier.Config{
		Username: "ops",
		Password: "secret",
		LoginURL: srv.LoginURL(),
		CDRURL:   srv.CDRURL(),
		DIDURL:   srv.DIDURL(),
		BaseURL:  srv.URL,
	}, clk, zap.NewNop(), carrier.WithTimer(func() backoff.Timer { return timer }))

	customers := customerservice.New(customerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  customerrepo.Provide(),
	})

	pipeline := config.DefaultPipelineConfig()
	pipeline.PollTimeout = time.Minute

	locker := runlock.NewLocalLocker()
	notes := &recordingNotifier{}
	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clk,
		GenID:     node,
		Repo:      repo,
		Customers: customers,
		Rating:    ratingservice.NewService(ratingservice.ServiceParam{Log: zap.NewNop()}),
		Carrier:   client,
		Pipeline:  config.NewStaticPipelineHolder(pipeline),
		Locker:    locker,
		Notifier:  notes,
	})

	return &harness{svc: svc, db: db, srv: srv, clock: clk, timer: timer, locker: locker, notes: notes}
}

func (h *harness) addCustomer(t *testing.T, id int64, name string, profile [4]float64, lines ...string) {
	t.Helper()
	c := customerdomain.Customer{
		ID:          snowflake.ID(id),
		Name:        name,
		NatioMobPct: profile[0],
		NatioFixPct: profile[1],
		InterMobPct: profile[2],
		InterFixPct: profile[3],
		CreatedAt:   h.clock.Now(),
		UpdatedAt:   h.clock.Now(),
	}
	for i, line := range lines {
		c.SipLines = append(c.SipLines, customerdomain.SipLine{
			ID:              snowflake.ID(id*100 + int64(i)),
			CustomerID:      c.ID,
			DescriptionName: line,
		})
	}
	require.NoError(t, customerrepo.Provide().Insert(context.Background(), h.db, &c))
}

func (h *harness) summaries(t *testing.T) []domain.MonthlySummary {
	t.Helper()
	rows, err := h.svc.ListSummaries(context.Background(), "2024-01")
	require.NoError(t, err)
	return rows
}

func cdr(line, direction, duration, rate, cost, category, numberType string) map[string]any {
	rec := map[string]any{
		"begin_time":      "2024-01-15T10:00:00+01:00",
		"duration":        duration,
		"rate":            map[string]any{"direction": direction, "rate": rate},
		"cost":            cost,
		"description":     line,
		"additional_info": map[string]any{"NumberType": numberType},
		"cdr_attr":        map[string]any{"X-sipuser": "sip-" + line},
	}
	if category != "" {
		rec["category"] = category
	}
	return rec
}

func TestRunRatesLine42(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, 7, "Acme", [4]float64{10, 0, 20, 5}, "line-42")
	h.srv.PendingPolls = 1
	h.srv.Records = []map[string]any{
		cdr("line-42", "outbound", "90", "0.05", "4.3", "national", "MOBILE"),
		cdr("line-42", "inbound", "90", "0.05", "4.3", "national", "MOBILE"),
		cdr("line-99", "outbound", "90", "0.05", "4.3", "national", "MOBILE"),
		cdr("line-42", "outbound", "0", "0.05", "0", "national", "MOBILE"),
	}

	report, err := h.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, "2024-01", report.Month)
	assert.Equal(t, "2024-01-01", report.StartDate)
	assert.Equal(t, "2024-02-01", report.StopDate)
	assert.Equal(t, "ref-1", report.FileReference)
	assert.Equal(t, int64(4), report.TotalRecords)
	assert.Equal(t, int64(3), report.OutboundRecords)
	assert.Equal(t, int64(1), report.RatedRecords)
	assert.Equal(t, 1, report.CustomersAggregated)

	assert.Equal(t, []map[string]string{{
		"start_date":    "2024-01-01",
		"stop_date":     "2024-02-01",
		"export_format": "json",
	}}, h.srv.Exports())

	rows := h.summaries(t)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, snowflake.ID(7), row.CustomerID)
	assert.Equal(t, "Acme", row.CustomerName)
	assert.Equal(t, int64(1), row.CallCount)
	assert.Equal(t, int64(1), row.CountNatioMob)
	assert.Equal(t, int64(90), row.TimeNatioMob)
	assert.Equal(t, int64(90), row.TotalDurationSec)
	assert.Equal(t, "0.110000", row.BillNatioMob.String())
	assert.Equal(t, "0.110000", row.TotalBilledCost.String())
	assert.Equal(t, money.MustParse("4.3"), row.TotalBaseCost)
	assert.Equal(t, money.MustParse("4.3"), row.BaseNatioMob)
	assert.True(t, row.Balanced())
	assert.Equal(t, report.RunID, row.RunID)

	runs, err := h.svc.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, int64(1), runs[0].RatedRecords)
	require.NotNil(t, runs[0].FinishedAt)

	require.Len(t, h.notes.errs, 1)
	assert.NoError(t, h.notes.errs[0])
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, 7, "Acme", [4]float64{10, 0, 20, 5}, "line-42")
	h.addCustomer(t, 8, "Beta", [4]float64{0, 12.5, 0, 0}, "line-7")
	h.srv.Records = []map[string]any{
		cdr("line-42", "outbound", "90", "0.05", "4.3", "national", "MOBILE"),
		cdr("line-7", "outbound", "61", "0.02", "0.04", "national", "FIXED_LINE"),
		cdr("line-7", "outbound", "30", "0.30", "0.3", "international", ""),
	}

	_, err := h.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	first := h.summaries(t)

	_, err = h.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	second := h.summaries(t)

	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].CustomerID, second[i].CustomerID)
		assert.Equal(t, first[i].CallCount, second[i].CallCount)
		assert.Equal(t, first[i].TotalBilledCost, second[i].TotalBilledCost)
		assert.Equal(t, first[i].TotalBaseCost, second[i].TotalBaseCost)
		assert.True(t, second[i].Balanced())
	}

	beta := second[1]
	assert.Equal(t, int64(2), beta.CallCount)
	// 0.02 * 2 min = 0.04, +12.5% = 0.045
	assert.Equal(t, "0.045000", beta.BillNatioFix.String())
	// 0.30 * 1 min, no markup, unresolved number type
	assert.Equal(t, "0.300000", beta.BillInterFix.String())
	assert.Equal(t, "0.345000", beta.TotalBilledCost.String())
}

func TestRunReplacesOnlyFilteredCustomers(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, 7, "Acme", [4]float64{10, 0, 20, 5}, "line-42")
	h.addCustomer(t, 8, "Beta", [4]float64{0, 0, 0, 0}, "line-7")
	h.srv.Records = []map[string]any{
		cdr("line-42", "outbound", "90", "0.05", "4.3", "national", "MOBILE"),
		cdr("line-7", "outbound", "60", "0.10", "0.1", "national", "FIXED_LINE"),
	}
	_, err := h.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	require.Len(t, h.summaries(t), 2)

	// Beta made no calls according to the corrected export.
	h.srv.Records = []map[string]any{
		cdr("line-42", "outbound", "600", "0.05", "4.3", "national", "MOBILE"),
	}
	report, err := h.svc.Run(context.Background(), domain.RunRequest{CustomerIDs: []snowflake.ID{8}})
	require.NoError(t, err)
	assert.Equal(t, 0, report.CustomersAggregated)

	rows := h.summaries(t)
	require.Len(t, rows, 1)
	assert.Equal(t, snowflake.ID(7), rows[0].CustomerID)
	assert.Equal(t, "0.110000", rows[0].TotalBilledCost.String())
}

func TestRunTimeoutCommitsNothing(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, 7, "Acme", [4]float64{10, 0, 20, 5}, "line-42")
	h.srv.Records = []map[string]any{
		cdr("line-42", "outbound", "90", "0.05", "4.3", "national", "MOBILE"),
	}
	_, err := h.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	before := h.summaries(t)

	h.srv.NeverReady = true
	h.srv.Records = []map[string]any{
		cdr("line-42", "outbound", "600", "1.00", "4.3", "national", "MOBILE"),
	}
	_, err = h.svc.Run(context.Background(), domain.RunRequest{})
	require.ErrorIs(t, err, carrier.ErrExportTimeout)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 1, h.srv.Downloads())

	after := h.summaries(t)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].TotalBilledCost, after[0].TotalBilledCost)

	runs, err := h.svc.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, domain.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "carrier_export_timeout")
	assert.ErrorIs(t, h.notes.errs[1], carrier.ErrExportTimeout)
}

// failingCommitRepo writes part of the month and then fails.
type failingCommitRepo struct {
	domain.Repository
}

var errDiskFull = errors.New("disk full")

func (r failingCommitRepo) ReplaceMonth(ctx context.Context, db *gorm.DB, month time.Time, scope []snowflake.ID, rows []domain.MonthlySummary) error {
	if len(rows) > 1 {
		rows = rows[:1]
	}
	if err := r.Repository.ReplaceMonth(ctx, db, month, scope, rows); err != nil {
		return err
	}
	return errDiskFull
}

func TestRunCarrierRejectionCommitsNothing(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*carriertest.Server)
		phase carrier.Phase
	}{
		{name: "export_request", setup: func(s *carriertest.Server) { s.ExportStatus = http.StatusInternalServerError }, phase: carrier.PhaseExport},
		{name: "export_poll", setup: func(s *carriertest.Server) { s.PollStatus = http.StatusBadGateway }, phase: carrier.PhasePoll},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.addCustomer(t, 7, "Acme", [4]float64{10, 0, 20, 5}, "line-42")
			h.srv.Records = []map[string]any{
				cdr("line-42", "outbound", "90", "0.05", "4.3", "national", "MOBILE"),
			}
			tc.setup(h.srv)

			_, err := h.svc.Run(context.Background(), domain.RunRequest{})
			var perr *carrier.ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.phase, perr.Phase)
			assert.GreaterOrEqual(t, perr.StatusCode, 500)
			assert.True(t, IsRetryable(err))
			assert.Equal(t, 0, h.srv.Downloads())
			assert.Empty(t, h.summaries(t))

			runs, err := h.svc.ListRuns(context.Background(), 10)
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, domain.RunStatusFailed, runs[0].Status)
			assert.Contains(t, runs[0].Error, string(tc.phase))
			require.NotNil(t, runs[0].FinishedAt)

			require.Len(t, h.notes.errs, 1)
			assert.ErrorAs(t, h.notes.errs[0], &perr)
		})
	}
}

func TestRunCommitFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, 7, "Acme", [4]float64{10, 0, 20, 5}, "line-42")
	h.addCustomer(t, 8, "Beta", [4]float64{0, 12.5, 0, 0}, "line-7")
	h.srv.Records = []map[string]any{
		cdr("line-42", "outbound", "90", "0.05", "4.3", "national", "MOBILE"),
		cdr("line-7", "outbound", "61", "0.02", "0.04", "national", "FIXED_LINE"),
	}
	_, err := h.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	before := h.summaries(t)
	require.Len(t, before, 2)

	failing := newHarnessWithRepo(t, failingCommitRepo{Repository: repository.Provide()})
	failing.srv.Records = []map[string]any{
		cdr("line-42", "outbound", "600", "1.00", "4.3", "national", "MOBILE"),
		cdr("line-7", "outbound", "600", "1.00", "0.04", "national", "FIXED_LINE"),
	}

	_, err = failing.svc.Run(context.Background(), domain.RunRequest{})
	require.ErrorIs(t, err, errDiskFull)

	after := failing.summaries(t)
	require.Len(t, after, 2)
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].TotalBilledCost, after[i].TotalBilledCost)
		assert.Equal(t, before[i].RunID, after[i].RunID)
	}

	runs, err := failing.svc.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, domain.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "disk full")
}

func TestRunFailsFastWithoutLineMappings(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Run(context.Background(), domain.RunRequest{})
	require.ErrorIs(t, err, customerdomain.ErrNoLineMappings)
	assert.Empty(t, h.srv.Exports())
	assert.Equal(t, 0, h.srv.Polls())
	assert.False(t, IsRetryable(err))
}

func TestRunMalformedRecordCommitsNothing(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, 7, "Acme", [4]float64{10, 0, 20, 5}, "line-42")
	h.srv.Records = []map[string]any{
		cdr("line-42", "outbound", "90", "0.05", "4.3", "national", "MOBILE"),
		cdr("line-42", "outbound", "90", "five cents", "4.3", "national", "MOBILE"),
	}

	_, err := h.svc.Run(context.Background(), domain.RunRequest{})
	require.ErrorIs(t, err, domain.ErrMalformedRecord)
	assert.Empty(t, h.summaries(t))
}

func TestRunRejectsConcurrentRunForSameMonth(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, 7, "Acme", [4]float64{10, 0, 20, 5}, "line-42")

	lease, err := h.locker.Acquire(context.Background(), runlock.Key("cdr", "2024-01"), time.Minute)
	require.NoError(t, err)
	defer lease.Release(context.Background())

	_, err = h.svc.Run(context.Background(), domain.RunRequest{})
	assert.ErrorIs(t, err, runlock.ErrLocked)
	assert.Empty(t, h.srv.Exports())
}

func TestListSummariesRejectsBadMonth(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ListSummaries(context.Background(), "January")
	assert.ErrorIs(t, err, domain.ErrInvalidMonth)
}

func TestPeriodForUsesPipelineTimezone(t *testing.T) {
	brussels, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)

	// 23:30 UTC on Feb 29 is already March 1st in Brussels.
	p := PeriodFor(time.Date(2024, 2, 29, 23, 30, 0, 0, time.UTC), brussels)
	assert.Equal(t, "2024-02", p.Key())
	assert.Equal(t, "2024-02-01", p.StartDate)
	assert.Equal(t, "2024-03-01", p.StopDate)
	assert.Equal(t, time.UTC, p.Month.Location())

	p = PeriodFor(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, "2023-12", p.Key())
	assert.Equal(t, "2024-01-01", p.StopDate)
}
