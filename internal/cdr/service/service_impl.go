package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cdrbill/internal/cdr/domain"
	"github.com/smallbiznis/cdrbill/internal/clock"
	"github.com/smallbiznis/cdrbill/internal/config"
	customerdomain "github.com/smallbiznis/cdrbill/internal/customer/domain"
	obscontext "github.com/smallbiznis/cdrbill/internal/observability/context"
	"github.com/smallbiznis/cdrbill/internal/observability/logger"
	"github.com/smallbiznis/cdrbill/internal/observability/metrics"
	"github.com/smallbiznis/cdrbill/internal/observability/tracing"
	"github.com/smallbiznis/cdrbill/internal/providers/carrier"
	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
	"github.com/smallbiznis/cdrbill/internal/runlock"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const jobName = "cdr_monthly"

// Carrier opens authenticated sessions against the CDR export API.
type Carrier interface {
	Login(ctx context.Context) (*carrier.Session, error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Repo       domain.Repository
	Customers  customerdomain.Service
	Rating     ratingdomain.Service
	Carrier    Carrier
	Pipeline   *config.PipelineHolder
	Locker     runlock.Locker
	Metrics    *metrics.Metrics          `optional:"true"`
	JobMetrics *metrics.SchedulerMetrics `optional:"true"`
	Notifier   domain.Notifier           `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	repo       domain.Repository
	customers  customerdomain.Service
	rating     ratingdomain.Service
	carrier    Carrier
	pipeline   *config.PipelineHolder
	locker     runlock.Locker
	metrics    *metrics.Metrics
	jobMetrics *metrics.SchedulerMetrics
	notifier   domain.Notifier
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("cdr.service"),
		clock:      p.Clock,
		genID:      p.GenID,
		repo:       p.Repo,
		customers:  p.Customers,
		rating:     p.Rating,
		carrier:    p.Carrier,
		pipeline:   p.Pipeline,
		locker:     p.Locker,
		metrics:    p.Metrics,
		jobMetrics: p.JobMetrics,
		notifier:   p.Notifier,
	}
}

// TargetPeriod is the calendar month before now in the pipeline timezone.
func (s *Service) TargetPeriod() domain.Period {
	return PeriodFor(s.clock.Now(), s.pipeline.Get().Location())
}

// PeriodFor returns the month preceding now in loc. The stop date is the
// first day of now's month.
func PeriodFor(now time.Time, loc *time.Location) domain.Period {
	local := now.In(loc)
	current := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	previous := current.AddDate(0, -1, 0)
	return domain.Period{
		Month:     time.Date(previous.Year(), previous.Month(), 1, 0, 0, 0, 0, time.UTC),
		StartDate: previous.Format("2006-01-02"),
		StopDate:  current.Format("2006-01-02"),
	}
}

// Run fetches last month's CDRs, rates them and replaces the month's
// summaries for every customer in scope. Nothing is written to the summary
// table unless the whole download was folded.
func (s *Service) Run(ctx context.Context, req domain.RunRequest) (domain.Report, error) {
	pipeline := s.pipeline.Get()
	period := PeriodFor(s.clock.Now(), pipeline.Location())

	lease, err := s.locker.Acquire(ctx, runlock.Key("cdr", period.Key()), pipeline.PollTimeout+15*time.Minute)
	if err != nil {
		s.jobMetrics.IncJobSkipped(jobName, metrics.ClassifyJobReason(err))
		return domain.Report{}, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("cdr.run.unlock_failed", zap.Error(err))
		}
	}()

	run := &domain.Run{
		ID:        s.genID.Generate(),
		Month:     period.Month,
		StartDate: period.StartDate,
		StopDate:  period.StopDate,
		Status:    domain.RunStatusRunning,
		StartedAt: s.clock.Now().UTC(),
	}
	if len(req.CustomerIDs) > 0 {
		raw, err := json.Marshal(req.CustomerIDs)
		if err != nil {
			return domain.Report{}, err
		}
		run.CustomerFilter = datatypes.JSON(raw)
	}

	ctx = obscontext.WithRunID(ctx, run.ID.String())
	ctx, span := tracing.StartSpan(ctx, "cdr.run",
		attribute.String("month", period.Key()),
		attribute.Int("customer_filter", len(req.CustomerIDs)),
	)
	log := logger.WithRun(logger.WithContext(ctx, s.log), period.Key(), run.ID.String())

	if err := s.repo.InsertRun(ctx, s.db, run); err != nil {
		tracing.EndSpan(span, err)
		return domain.Report{}, fmt.Errorf("record run: %w", err)
	}

	log.Info("cdr.run.start",
		zap.String("start_date", period.StartDate),
		zap.String("stop_date", period.StopDate),
		zap.Int("customer_filter", len(req.CustomerIDs)),
	)
	s.jobMetrics.IncJobRun(jobName)
	started := s.clock.Now()

	report, err := s.execute(ctx, log, run, period, req, pipeline)
	tracing.EndSpan(span, err)

	finished := s.clock.Now().UTC()
	run.FinishedAt = &finished
	run.FileReference = report.FileReference
	run.TotalRecords = report.TotalRecords
	run.OutboundRecords = report.OutboundRecords
	run.RatedRecords = report.RatedRecords
	run.CustomersAggregated = int64(report.CustomersAggregated)
	run.Status = domain.RunStatusSucceeded
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
	}
	if ferr := s.repo.FinishRun(context.WithoutCancel(ctx), s.db, run); ferr != nil {
		log.Warn("cdr.run.record_failed", zap.Error(ferr))
	}

	s.jobMetrics.ObserveJobDuration(jobName, finished.Sub(started))
	if err != nil {
		if errors.Is(err, carrier.ErrExportTimeout) || errors.Is(err, context.DeadlineExceeded) {
			s.jobMetrics.IncJobTimeout(jobName)
		}
		s.jobMetrics.IncJobError(jobName, err)
		log.Error("cdr.run.finish",
			zap.String("status", string(run.Status)),
			zap.Bool("retryable", IsRetryable(err)),
			zap.Error(err),
		)
	} else {
		s.jobMetrics.MarkJobSuccess(jobName, finished)
		log.Info("cdr.run.finish",
			zap.String("status", string(run.Status)),
			zap.Int64("total_cdr", report.TotalRecords),
			zap.Int64("outbound_cdr", report.OutboundRecords),
			zap.Int64("rated_cdr", report.RatedRecords),
			zap.Int("customers", report.CustomersAggregated),
			zap.Duration("elapsed", finished.Sub(started)),
		)
	}

	if s.notifier != nil {
		s.notifier.RunFinished(context.WithoutCancel(ctx), report, err)
	}
	if err != nil {
		return domain.Report{}, err
	}
	return report, nil
}

func (s *Service) execute(ctx context.Context, log *zap.Logger, run *domain.Run, period domain.Period, req domain.RunRequest, pipeline config.PipelineConfig) (domain.Report, error) {
	report := domain.Report{
		RunID:             run.ID,
		Month:             period.Key(),
		StartDate:         period.StartDate,
		StopDate:          period.StopDate,
		FilteredCustomers: req.CustomerIDs,
	}

	resolver, err := s.customers.Resolver(ctx, req.CustomerIDs)
	if err != nil {
		return report, err
	}
	log.Debug("cdr.run.resolver_ready", zap.Int("lines", resolver.Len()))

	session, err := s.login(ctx)
	if err != nil {
		return report, err
	}

	ref, err := s.requestExport(ctx, session, period)
	if err != nil {
		return report, err
	}
	report.FileReference = ref
	log.Info("cdr.run.export_requested", zap.String("file_reference", ref))

	export, err := s.waitReady(ctx, session, ref, carrier.PolicyFromPipeline(pipeline))
	if err != nil {
		return report, err
	}

	acc := NewAccumulator(resolver, s.rating)
	if err := s.download(ctx, session, export, acc); err != nil {
		counters := acc.Counters()
		report.TotalRecords = counters.Total
		report.OutboundRecords = counters.Outbound
		report.RatedRecords = counters.Rated
		return report, err
	}

	counters := acc.Counters()
	report.TotalRecords = counters.Total
	report.OutboundRecords = counters.Outbound
	report.RatedRecords = counters.Rated
	s.recordOutcomes(ctx, counters)

	rows := acc.Summaries(period.Month, run.ID, s.genID.Generate, s.clock.Now().UTC())
	for _, row := range rows {
		if !row.Balanced() {
			return report, fmt.Errorf("%w: customer %s", domain.ErrUnbalanced, row.CustomerID)
		}
	}

	if err := s.commit(ctx, period.Month, resolver.CustomerIDs(), rows); err != nil {
		return report, err
	}
	report.CustomersAggregated = len(rows)
	return report, nil
}

func (s *Service) login(ctx context.Context) (*carrier.Session, error) {
	ctx, span := tracing.StartSpan(ctx, "cdr.carrier.login")
	session, err := s.carrier.Login(ctx)
	s.metrics.RecordCarrierRequest(ctx, string(carrier.PhaseLogin), err)
	tracing.EndSpan(span, err)
	return session, err
}

func (s *Service) requestExport(ctx context.Context, session *carrier.Session, period domain.Period) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "cdr.carrier.export_request")
	ref, err := session.RequestExport(ctx, period.StartDate, period.StopDate)
	s.metrics.RecordCarrierRequest(ctx, string(carrier.PhaseExport), err)
	tracing.EndSpan(span, err)
	return ref, err
}

func (s *Service) waitReady(ctx context.Context, session *carrier.Session, ref string, policy carrier.PollPolicy) (carrier.Export, error) {
	ctx, span := tracing.StartSpan(ctx, "cdr.carrier.export_poll", attribute.String("file_reference", ref))
	export, err := session.WaitReady(ctx, ref, policy)
	s.metrics.RecordCarrierRequest(ctx, string(carrier.PhasePoll), err)
	tracing.EndSpan(span, err)
	return export, err
}

func (s *Service) download(ctx context.Context, session *carrier.Session, export carrier.Export, acc *Accumulator) error {
	ctx, span := tracing.StartSpan(ctx, "cdr.carrier.download")
	_, err := session.Download(ctx, export.DownloadLink, func(rec domain.Record) error {
		_, err := acc.Add(rec)
		return err
	})
	s.metrics.RecordCarrierRequest(ctx, string(carrier.PhaseDownload), err)
	span.SetAttributes(attribute.Int64("records", acc.Counters().Total))
	tracing.EndSpan(span, err)
	return err
}

func (s *Service) commit(ctx context.Context, month time.Time, scope []snowflake.ID, rows []domain.MonthlySummary) error {
	ctx, span := tracing.StartSpan(ctx, "cdr.commit", attribute.Int("rows", len(rows)))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.ReplaceMonth(ctx, tx, month, scope, rows)
	})
	tracing.EndSpan(span, err)
	if err != nil {
		return fmt.Errorf("commit summaries: %w", err)
	}
	return nil
}

func (s *Service) recordOutcomes(ctx context.Context, c Counters) {
	outcomes := map[Outcome]int64{
		OutcomeRated:            c.Rated,
		OutcomeSkippedDirection: c.Total - c.Outbound,
		OutcomeSkippedUnmapped:  c.Unmapped,
		OutcomeSkippedEmpty:     c.EmptyCall,
	}
	for outcome, n := range outcomes {
		s.metrics.RecordCDRs(ctx, string(outcome), n)
		s.jobMetrics.AddRecords(string(outcome), n)
	}
}

func (s *Service) ListSummaries(ctx context.Context, month string) ([]domain.MonthlySummary, error) {
	m, err := domain.ParseMonth(month)
	if err != nil {
		return nil, err
	}
	return s.MonthSummaries(ctx, m, nil)
}

func (s *Service) MonthSummaries(ctx context.Context, month time.Time, customerIDs []snowflake.ID) ([]domain.MonthlySummary, error) {
	return s.repo.ListByMonth(ctx, s.db, month, customerIDs)
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	return s.repo.ListRuns(ctx, s.db, limit)
}
