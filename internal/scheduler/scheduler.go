package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	cdrdomain "github.com/smallbiznis/cdrbill/internal/cdr/domain"
	cdrservice "github.com/smallbiznis/cdrbill/internal/cdr/service"
	"github.com/smallbiznis/cdrbill/internal/clock"
	"github.com/smallbiznis/cdrbill/internal/config"
	invoicedomain "github.com/smallbiznis/cdrbill/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/cdrbill/internal/observability/metrics"
	"github.com/smallbiznis/cdrbill/internal/runlock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobCDR     = "cdr_monthly"
	JobInvoice = "invoice_monthly"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	CDRSvc     cdrdomain.Service
	InvoiceSvc invoicedomain.Service
	Pipeline   *config.PipelineHolder
	GenID      *snowflake.Node
	Clock      clock.Clock
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	Pusher     obsmetrics.Pusher            `optional:"true"`
	Gatherer   prometheus.Gatherer          `optional:"true"`
	Config     Config                       `optional:"true"`
}

// Scheduler runs the monthly CDR job once the configured day and hour have
// passed in the pipeline timezone, then renders invoices at the invoice
// hour. Each job completes at most once per target month per process.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	pipeline   *config.PipelineHolder
	cdrSvc     cdrdomain.Service
	invoiceSvc invoicedomain.Service
	metrics    *obsmetrics.SchedulerMetrics
	pusher     obsmetrics.Pusher
	gatherer   prometheus.Gatherer

	mu          sync.Mutex
	cdrDone     map[string]bool
	cdrOK       map[string]bool
	invoiceDone map[string]bool
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.CDRSvc == nil || p.InvoiceSvc == nil || p.Pipeline == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	m := p.Metrics
	if m == nil {
		m = obsmetrics.Scheduler()
	}
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		pipeline:    p.Pipeline,
		cdrSvc:      p.CDRSvc,
		invoiceSvc:  p.InvoiceSvc,
		metrics:     m,
		pusher:      p.Pusher,
		gatherer:    gatherer,
		cdrDone:     make(map[string]bool),
		cdrOK:       make(map[string]bool),
		invoiceDone: make(map[string]bool),
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	month string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, month)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		run.err = err
		s.logJobFinish(ctx, run)
	}
	defer s.pushMetrics(parent, name)
	if err == nil {
		s.metrics.MarkJobSuccess(name, s.clock.Now())
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) pushMetrics(parent context.Context, job string) {
	if s.pusher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()
	if err := s.pusher.Push(ctx, s.gatherer); err != nil {
		s.log.Warn("scheduler.metrics.push_failed", zap.String("job", job), zap.Error(err))
	}
}

// RunOnce runs whichever monthly jobs are due.
func (s *Scheduler) RunOnce(parent context.Context) error {
	pipeline := s.pipeline.Get()
	now := s.clock.Now().In(pipeline.Location())
	period := s.cdrSvc.TargetPeriod()
	month := period.Key()

	var err error
	if due(now, pipeline.RunDay, pipeline.RunHour) && !s.isDone(s.cdrDone, month) {
		cdrErr := s.runJob(parent, JobCDR, month, pipeline.PollTimeout+s.cfg.CDRTimeoutSlack, func(ctx context.Context) error {
			_, err := s.cdrSvc.Run(ctx, cdrdomain.RunRequest{})
			return err
		})
		s.mu.Lock()
		s.cdrOK[month] = cdrErr == nil
		s.cdrDone[month] = cdrErr == nil || !retryable(cdrErr)
		s.mu.Unlock()
		err = errors.Join(err, cdrErr)
	}

	if due(now, pipeline.RunDay, pipeline.InvoiceHour) && s.isDone(s.cdrOK, month) && !s.isDone(s.invoiceDone, month) {
		invErr := s.runJob(parent, JobInvoice, month, s.cfg.InvoiceTimeout, func(ctx context.Context) error {
			_, err := s.invoiceSvc.Generate(ctx, invoicedomain.GenerateRequest{Month: period.Month})
			return err
		})
		s.mu.Lock()
		s.invoiceDone[month] = invErr == nil || !retryable(invErr)
		s.mu.Unlock()
		err = errors.Join(err, invErr)
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isDone(m map[string]bool, month string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m[month]
}

// due reports whether now is on or after day at hour within its month.
func due(now time.Time, day, hour int) bool {
	if now.Day() != day {
		return now.Day() > day
	}
	return now.Hour() >= hour
}

// retryable errors leave the job pending for the next tick. A held lock means
// another process owns the month.
func retryable(err error) bool {
	if errors.Is(err, runlock.ErrLocked) {
		return false
	}
	return cdrservice.IsRetryable(err)
}
