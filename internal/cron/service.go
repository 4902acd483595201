package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs the registered jobs every interval. Only the instance holding
// the lock runs a cycle; the lease is renewed between jobs.
type Service struct {
	logg     *logger.Logger
	jobs     *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron: logger required")
	case params.Lock == nil:
		return nil, errors.New("cron: lock required")
	}
	s := &Service{
		logg:     params.Logger,
		jobs:     params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if s.jobs == nil {
		s.jobs = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run starts a cycle right away and then one per tick. It returns ctx.Err()
// once ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycleReport summarises one pass over the registry.
type cycleReport struct {
	ran, failed int
	stoppedAt   string
}

// RunOnce runs a single locked cycle. Job failures are logged and counted;
// only lock errors are returned.
func (s *Service) RunOnce(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("cron: acquire lock: %w", err)
	}
	if !acquired {
		s.metrics.IncSkipped(metrics.CronSkipLockHeld)
		s.logg.Info(ctx, "cron lock held elsewhere; skipping cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()

	start := time.Now()
	report, err := s.runJobs(ctx, s.jobs.Jobs())
	fields := map[string]any{
		"ran":         report.ran,
		"failed":      report.failed,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if report.stoppedAt != "" {
		fields["stopped_before"] = report.stoppedAt
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "cron cycle finished")
	return err
}

func (s *Service) runJobs(ctx context.Context, jobs []Job) (cycleReport, error) {
	var report cycleReport
	for i, job := range jobs {
		if i > 0 {
			held, err := s.lock.Extend(ctx)
			if err != nil {
				return report, fmt.Errorf("cron: extend lock: %w", err)
			}
			if !held {
				s.metrics.IncSkipped(metrics.CronSkipLeaseLost)
				s.logg.Warn(s.logg.WithField(ctx, "next_job", job.Name()), "cron lock lost; ending cycle early")
				report.stoppedAt = job.Name()
				return report, nil
			}
		}
		report.ran++
		if !s.runJob(ctx, job) {
			report.failed++
		}
	}
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) bool {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(name, elapsed)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(s.logg.WithFields(jobCtx, map[string]any{
			"code":      pkgerrors.CodeOf(err),
			"retryable": pkgerrors.IsRetryable(err),
		}), "job failed", err)
		return false
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(jobCtx, "job completed")
	return true
}
