package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/identitywear/storefront-backend/pkg/logger"
	"github.com/identitywear/storefront-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Hour
	defaultJobTimeout = 10 * time.Minute
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job run. Keep it below the lock TTL.
	JobTimeout time.Duration
}

// Service runs every registered job once per interval while holding the
// cluster-wide lock. A failing job never stops the jobs after it.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// CycleReport maps job name to its error. Jobs that succeeded map to nil.
// A nil report means the cycle was skipped.
type CycleReport map[string]error

// Err joins the failures of the cycle.
func (r CycleReport) Err() error {
	var errs []error
	for name, err := range r {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	svc := &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	if svc.jobTimeout <= 0 {
		svc.jobTimeout = defaultJobTimeout
	}
	return svc, nil
}

// Run fires a cycle immediately and then once per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single cycle. The error covers lock problems only; job
// failures are in the report.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance holds the lock, skipping cycle")
		return nil, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	jobs := s.registry.Jobs()
	report := make(CycleReport, len(jobs))
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		report[job.Name()] = s.runJob(ctx, job)
	}
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	runCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	started := time.Now()
	err := job.Run(runCtx)
	elapsed := time.Since(started)

	s.metrics.ObserveDuration(name, elapsed)
	jobCtx = s.logg.WithField(jobCtx, "durationMs", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(jobCtx, "job failed", err)
		return err
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(jobCtx, "job completed")
	return nil
}
