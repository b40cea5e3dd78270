package reconciliation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ScheduleRepair queues accounts for reconciliation without blocking. When the queue is full the
// request is dropped; the periodic sweep picks the account up later.
func (s *Service) ScheduleRepair(ctx context.Context, accountIDs ...string) {
	for _, id := range accountIDs {
		s.mu.Lock()
		if _, queued := s.pending[id]; queued {
			s.mu.Unlock()
			continue
		}
		s.pending[id] = struct{}{}
		s.mu.Unlock()

		select {
		case s.queue <- id:
		default:
			s.mu.Lock()
			delete(s.pending, id)
			s.mu.Unlock()
			s.metrics.IncDropped()
			s.logg.Warn(s.logg.WithAccountID(ctx, id), "repair queue full, leaving account to the periodic sweep")
		}
	}
}

// Run consumes the repair queue until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for range s.opts.Workers {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case id := <-s.queue:
					s.repair(gctx, id)
				}
			}
		})
	}
	return g.Wait()
}

func (s *Service) repair(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()

	if _, err := s.ReconcileAccount(ctx, id); err != nil {
		s.metrics.IncFailure()
		s.logg.Error(s.logg.WithAccountID(ctx, id), "scheduled repair failed", err)
	}
}

// Job runs ReconcileAll under the cron service.
type Job struct {
	service *Service
}

func NewJob(service *Service) *Job {
	return &Job{service: service}
}

func (j *Job) Name() string { return "reconciliation" }

func (j *Job) Run(ctx context.Context) error {
	summary, err := j.service.ReconcileAll(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation sweep: %w", err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("reconciliation sweep: %d accounts failed", summary.Failed)
	}
	return nil
}
