package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/cdrbill/internal/observability/context"
	obslogger "github.com/smallbiznis/cdrbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cdrbill/internal/observability/metrics"
	"go.uber.org/zap"
)

type jobRun struct {
	job       string
	runID     string
	month     string
	startedAt time.Time
	err       error
}

type jobRunKey struct{}

func (s *Scheduler) ensureJobRun(ctx context.Context, job, month string) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		month:     month,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithJob(ctx, job)
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("job_run_id", run.runID),
		zap.String("month", run.month),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("job_run_id", run.runID),
		zap.String("month", run.month),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
	}
	log := s.logger(ctx)
	if run.err != nil {
		log.Warn("scheduler.job.finish", append(fields,
			zap.String("reason", obsmetrics.ClassifyJobReason(run.err)),
			zap.Error(run.err),
		)...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}
