package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

type Options struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// Budget caps one cycle. Keep it below the lock TTL so the lock cannot lapse while jobs still run.
	Budget time.Duration
}

// Service runs every registered job once at start and then once per interval, skipping a cycle when
// another instance holds the lock.
type Service struct {
	opts Options
	logg *logger.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Logger == nil {
		return nil, errors.New("cron: logger required")
	}
	if opts.Lock == nil {
		return nil, errors.New("cron: lock required")
	}
	if opts.Registry == nil {
		opts.Registry = &Registry{byName: map[string]Job{}}
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	return &Service{opts: opts, logg: opts.Logger}, nil
}

// Run blocks until ctx is canceled. Cycle failures are logged, never returned.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single cycle. A failing job does not stop the ones after it; their errors are
// combined into the result.
func (s *Service) RunOnce(ctx context.Context) error {
	jobs := s.opts.Registry.Jobs()

	held, err := s.opts.Lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !held {
		s.logg.Debug(ctx, "cron lock held by another instance")
		for _, job := range jobs {
			s.opts.Metrics.IncSkipped(job.Name())
		}
		return nil
	}
	defer func() {
		if err := s.opts.Lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("failed to release cron lock: %v", err))
		}
	}()

	if s.opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Budget)
		defer cancel()
	}

	var errs error
	for _, job := range jobs {
		if err := s.run(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errs
}

func (s *Service) run(ctx context.Context, job Job) error {
	name := job.Name()
	ctx = s.logg.WithField(ctx, "job", name)

	started := time.Now()
	err := job.Run(ctx)
	took := time.Since(started)
	s.opts.Metrics.ObserveDuration(name, took)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.opts.Metrics.IncFailure(name)
		return err
	}
	s.opts.Metrics.IncSuccess(name)
	s.logg.Info(ctx, "job finished")
	return nil
}
