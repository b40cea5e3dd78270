// Package reconciliation recomputes stored balances from the ledger and repairs any drift.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/mycotrack/wallet-ledger/pkg/config"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/metrics"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/notify"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

type Options struct {
	Workers       int
	QueueSize     int
	RepairRetries int
}

func OptionsFromConfig(cfg config.ReconciliationConfig) Options {
	return Options{
		Workers:       cfg.Workers,
		QueueSize:     cfg.QueueSize,
		RepairRetries: cfg.RepairRetries,
	}
}

type Dependencies struct {
	Accounts storage.AccountStore
	Ledger   storage.LedgerReader
	Gateway  notify.Gateway
	Metrics  *metrics.ReconciliationMetrics
	Logger   *logger.Logger
}

// Summary aggregates one ReconcileAll sweep.
type Summary struct {
	Checked  int                           `json:"checked"`
	InSync   int                           `json:"in_sync"`
	Repaired int                           `json:"repaired"`
	Flagged  int                           `json:"flagged"`
	Failed   int                           `json:"failed"`
	Reports  []models.ReconciliationReport `json:"reports"`
}

// Service never takes account locks. Repairs go through the same versioned write the transfer path
// uses, so a concurrent transfer simply makes the repair retry.
type Service struct {
	accounts storage.AccountStore
	ledger   storage.LedgerReader
	gateway  notify.Gateway
	metrics  *metrics.ReconciliationMetrics
	logg     *logger.Logger
	opts     Options
	now      func() time.Time

	queue   chan string
	mu      sync.Mutex
	pending map[string]struct{}
}

func NewService(deps Dependencies, opts Options) (*Service, error) {
	if deps.Accounts == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("reconciliation requires account and ledger stores")
	}
	if deps.Gateway == nil {
		deps.Gateway = notify.NoOp{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.RepairRetries <= 0 {
		opts.RepairRetries = 1
	}
	return &Service{
		accounts: deps.Accounts,
		ledger:   deps.Ledger,
		gateway:  deps.Gateway,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		queue:    make(chan string, opts.QueueSize),
		pending:  make(map[string]struct{}),
	}, nil
}

// ReconcileAccount replays the account's ledger and writes the result over the stored balance when
// they differ. The account is read before the ledger: a transfer landing in between bumps the version
// and the write retries against fresh data.
func (s *Service) ReconcileAccount(ctx context.Context, accountID string) (*models.ReconciliationReport, error) {
	ctx = s.logg.WithAccountID(ctx, accountID)

	for attempt := 1; ; attempt++ {
		account, err := s.accounts.GetAccount(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to load account %s: %w", accountID, err)
		}

		report, err := s.replay(ctx, account)
		if err != nil {
			return nil, err
		}

		if report.LedgerBalance != account.Balance {
			_, err = s.accounts.CompareAndUpdateBalance(ctx, account.ID, account.Version, report.LedgerBalance)
			if errors.Is(err, storage.ErrVersionConflict) && attempt < s.opts.RepairRetries {
				s.logg.Debug(ctx, fmt.Sprintf("repair attempt %d raced a transfer, retrying", attempt))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to repair account %s: %w", accountID, err)
			}
			report.Outcome = models.OutcomeRepaired
			s.logg.Warn(ctx, fmt.Sprintf("repaired balance from %d to %d", report.StoredBalance, report.LedgerBalance))
		}

		s.record(ctx, report)
		return report, nil
	}
}

func (s *Service) replay(ctx context.Context, account *models.Account) (*models.ReconciliationReport, error) {
	report := &models.ReconciliationReport{
		AccountID:     account.ID,
		StoredBalance: account.Balance,
		Outcome:       models.OutcomeInSync,
		CheckedAt:     s.now(),
	}

	var running int64
	for entry, err := range s.ledger.ListByAccount(ctx, account.ID, 0) {
		if err != nil {
			return nil, fmt.Errorf("failed to replay ledger for %s: %w", account.ID, err)
		}
		if entry.BalanceBefore != running {
			report.SnapshotBreaks++
		}
		running += entry.Signed()
		report.EntryCount++
	}
	report.LedgerBalance = running

	if report.SnapshotBreaks > 0 {
		report.Outcome = models.OutcomeFlagged
	}
	return report, nil
}

func (s *Service) record(ctx context.Context, report *models.ReconciliationReport) {
	s.metrics.IncOutcome(string(report.Outcome))
	if report.Outcome == models.OutcomeInSync {
		return
	}
	if report.Outcome == models.OutcomeFlagged {
		s.logg.Warn(s.logg.WithField(ctx, "snapshot_breaks", report.SnapshotBreaks), "ledger snapshots do not chain")
	}
	if err := s.gateway.Publish(ctx, notify.ReconciledEvent(report)); err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("failed to publish reconciliation event: %v", err))
	}
}

// ReconcileAll checks every account with bounded parallelism. Failures are collected and returned
// together; they do not stop the sweep.
func (s *Service) ReconcileAll(ctx context.Context) (*Summary, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = &Summary{}
		errs    error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, account := range accounts {
		g.Go(func() error {
			report, err := s.ReconcileAccount(gctx, account.ID)

			mu.Lock()
			defer mu.Unlock()
			summary.Checked++
			if err != nil {
				summary.Failed++
				s.metrics.IncFailure()
				errs = multierr.Append(errs, err)
				return nil
			}
			summary.Reports = append(summary.Reports, *report)
			switch report.Outcome {
			case models.OutcomeRepaired:
				summary.Repaired++
			case models.OutcomeFlagged:
				summary.Flagged++
			default:
				summary.InSync++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"checked":  summary.Checked,
		"repaired": summary.Repaired,
		"flagged":  summary.Flagged,
		"failed":   summary.Failed,
	}), "reconciliation sweep complete")
	return summary, errs
}
