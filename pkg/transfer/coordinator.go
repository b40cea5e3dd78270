// Package transfer moves balance between two accounts: it validates, serializes, records and applies a
// transfer, and returns the same result for every retry of the same reference.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mycotrack/wallet-ledger/pkg/config"
	"github.com/mycotrack/wallet-ledger/pkg/idempotency"
	"github.com/mycotrack/wallet-ledger/pkg/lock"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/metrics"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/notify"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

// Request describes a transfer. Kind defaults to payment.
type Request struct {
	Reference     string            `json:"reference"`
	Kind          models.Kind       `json:"kind"`
	FromAccountID string            `json:"from_account_id"`
	ToAccountID   string            `json:"to_account_id"`
	Amount        int64             `json:"amount"`
	Description   string            `json:"description"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (r Request) normalized() Request {
	r.Reference = strings.TrimSpace(r.Reference)
	r.FromAccountID = strings.TrimSpace(r.FromAccountID)
	r.ToAccountID = strings.TrimSpace(r.ToAccountID)
	if r.Kind == "" {
		r.Kind = models.KindPayment
	}
	return r
}

func (r Request) ref() models.Reference {
	return models.Reference{ID: r.Reference, Kind: r.Kind}
}

// Repairer brings stored balances back in line with the ledger.
type Repairer interface {
	ScheduleRepair(ctx context.Context, accountIDs ...string)
}

// Options tunes the coordinator.
type Options struct {
	PlatformAccountID string
	AppendAttempts    int
	AppendBackoff     time.Duration
	LockTimeout       time.Duration
}

func OptionsFromConfig(cfg config.TransferConfig) Options {
	return Options{
		PlatformAccountID: cfg.PlatformAccountID,
		AppendAttempts:    cfg.AppendAttempts,
		AppendBackoff:     cfg.AppendBackoff,
		LockTimeout:       cfg.LockTimeout,
	}
}

// Dependencies are the collaborators of a Coordinator. Repairer, Gateway, Metrics and Logger are optional.
type Dependencies struct {
	Accounts storage.AccountStore
	Ledger   storage.LedgerStore
	Guard    *idempotency.Guard
	Locker   lock.Locker
	Repairer Repairer
	Gateway  notify.Gateway
	Metrics  *metrics.TransferMetrics
	Logger   *logger.Logger
}

type Coordinator struct {
	accounts storage.AccountStore
	ledger   storage.LedgerStore
	guard    *idempotency.Guard
	locker   lock.Locker
	repairer Repairer
	gateway  notify.Gateway
	metrics  *metrics.TransferMetrics
	logg     *logger.Logger
	opts     Options

	now   func() time.Time
	sleep func(time.Duration)
}

func NewCoordinator(deps Dependencies, opts Options) (*Coordinator, error) {
	if deps.Accounts == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("transfer coordinator requires account and ledger stores")
	}
	if deps.Locker == nil {
		return nil, fmt.Errorf("transfer coordinator requires a locker")
	}
	if deps.Guard == nil {
		deps.Guard = idempotency.NewGuard(deps.Ledger, nil, deps.Logger)
	}
	if deps.Gateway == nil {
		deps.Gateway = notify.NoOp{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if opts.PlatformAccountID == "" {
		opts.PlatformAccountID = "platform"
	}
	if opts.AppendAttempts <= 0 {
		opts.AppendAttempts = 1
	}

	return &Coordinator{
		accounts: deps.Accounts,
		ledger:   deps.Ledger,
		guard:    deps.Guard,
		locker:   deps.Locker,
		repairer: deps.Repairer,
		gateway:  deps.Gateway,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    time.Sleep,
	}, nil
}

// PlatformAccountID returns the holding account used as counter-party for top-ups and withdrawals.
func (c *Coordinator) PlatformAccountID() string {
	return c.opts.PlatformAccountID
}

// EnsurePlatformAccount creates the platform holding account if it does not exist yet.
func (c *Coordinator) EnsurePlatformAccount(ctx context.Context) (*models.Account, error) {
	account, err := c.accounts.GetAccount(ctx, c.opts.PlatformAccountID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, storage.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to load platform account: %w", err)
	}

	account, err = c.accounts.CreateAccount(ctx, &models.Account{
		ID:   c.opts.PlatformAccountID,
		Role: models.RolePlatform,
		Name: "Platform holding account",
	})
	if errors.Is(err, storage.ErrAccountExists) {
		return c.accounts.GetAccount(ctx, c.opts.PlatformAccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create platform account: %w", err)
	}
	c.logg.Info(c.logg.WithAccountID(ctx, account.ID), "created platform holding account")
	return account, nil
}

// Transfer moves req.Amount from req.FromAccountID to req.ToAccountID exactly once per (reference, kind).
// A retry of a settled reference returns the original result with Replayed set. Any returned error
// means nothing was written.
func (c *Coordinator) Transfer(ctx context.Context, req Request) (*models.TransferResult, error) {
	started := time.Now()
	req = req.normalized()
	ctx = c.logg.WithFields(ctx, map[string]any{
		"reference": req.Reference,
		"kind":      string(req.Kind),
	})

	result, err := c.transfer(ctx, req)
	c.metrics.Observe(string(req.Kind), outcomeOf(result, err), time.Since(started))
	if err != nil {
		if meta := MetadataFor(codeOf(err)); meta.Retryable {
			c.logg.Error(ctx, "transfer failed", err)
		} else {
			c.logg.Debug(ctx, fmt.Sprintf("transfer rejected: %v", err))
		}
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) transfer(ctx context.Context, req Request) (*models.TransferResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	// A settled reference replays even if either account has since been deactivated.
	settled, prior, release, err := c.guard.CheckAndReserve(ctx, req.ref())
	if err != nil {
		return nil, waitError(err, "failed to check reference")
	}
	if settled {
		return replay(prior), nil
	}
	defer release()

	// Rejects a bad account pair before queueing on its locks.
	if _, _, err := c.loadPair(ctx, req); err != nil {
		return nil, err
	}

	result, err := c.settle(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	c.guard.Remember(ctx, req.ref(), result)
	if result.Replayed {
		return result, nil
	}
	if err := c.gateway.Publish(ctx, notify.TransferEvent(result)); err != nil {
		c.logg.Warn(ctx, fmt.Sprintf("failed to publish transfer event: %v", err))
	}
	return result, nil
}

// settle runs the locked part of a transfer. Locks are released when it returns.
func (c *Coordinator) settle(ctx context.Context, req Request) (*models.TransferResult, error) {
	lockCtx := ctx
	if c.opts.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, c.opts.LockTimeout)
		defer cancel()
	}

	waitStarted := time.Now()
	unlock, err := c.locker.LockAll(lockCtx, req.FromAccountID, req.ToAccountID)
	c.metrics.ObserveLockWait(time.Since(waitStarted))
	if err != nil {
		return nil, waitError(err, "failed to lock accounts")
	}
	defer unlock()

	// Another process may have settled the reference while we queued.
	settled, prior, err := c.guard.Lookup(ctx, req.ref())
	if err != nil {
		return nil, Wrap(CodeStorageUnavailable, err, "failed to check reference")
	}
	if settled {
		return replay(prior), nil
	}

	from, to, err := c.loadPair(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, account := range []*models.Account{from, to} {
		if err := c.syncWithLedger(ctx, account); err != nil {
			return nil, err
		}
	}
	if !from.Role.AllowsNegative() && from.Balance < req.Amount {
		return nil, New(CodeInsufficientFunds, fmt.Sprintf("account %s has %d, needs %d", from.ID, from.Balance, req.Amount))
	}

	entries := c.buildEntries(req, from, to)
	txID := entries[0].TransactionID
	ctx = c.logg.WithTransactionID(ctx, txID)

	// Once the ledger write starts the transfer runs to completion.
	ctx = context.WithoutCancel(ctx)
	winner, err := c.appendEntries(ctx, req, entries)
	if err != nil {
		return nil, err
	}
	if winner != nil {
		return replay(winner), nil
	}

	result := &models.TransferResult{
		TransactionID: txID,
		Reference:     req.Reference,
		Kind:          req.Kind,
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		Amount:        req.Amount,
		FromBalance:   entries[0].BalanceAfter,
		ToBalance:     entries[1].BalanceAfter,
		Description:   entries[0].Description,
		SettledAt:     entries[0].CreatedAt,
	}

	// Both writes are attempted so one lagging account does not leave the other stale too.
	fromErr := c.updateBalance(ctx, from, result.FromBalance)
	toErr := c.updateBalance(ctx, to, result.ToBalance)
	if fromErr != nil || toErr != nil {
		c.deferToReconciliation(ctx, result)
		return result, nil
	}

	c.logg.Info(ctx, fmt.Sprintf("settled %d from %s to %s", req.Amount, from.ID, to.ID))
	return result, nil
}

// appendEntries writes the batch with bounded retries. A non-nil winner means another transaction already
// settled the reference.
func (c *Coordinator) appendEntries(ctx context.Context, req Request, entries []models.LedgerEntry) (*models.TransferResult, error) {
	txID := entries[0].TransactionID
	backoff := c.opts.AppendBackoff

	var lastErr error
	for attempt := 1; attempt <= c.opts.AppendAttempts; attempt++ {
		err := c.ledger.Append(ctx, entries)
		if err == nil {
			return nil, nil
		}

		if errors.Is(err, storage.ErrDuplicateReference) {
			return c.resolveDuplicate(ctx, req, txID)
		}
		if errors.Is(err, storage.ErrInvalidBatch) {
			return nil, Wrap(CodeInvalidRequest, err, "ledger rejected transfer batch")
		}

		lastErr = err
		if attempt < c.opts.AppendAttempts {
			c.metrics.IncAppendRetry()
			c.logg.Warn(ctx, fmt.Sprintf("ledger append attempt %d failed: %v", attempt, err))
			if backoff > 0 {
				c.sleep(backoff)
				backoff *= 2
			}
		}
	}

	// The last attempt may have landed even though it reported an error.
	landed, err := c.ledger.FindByReference(ctx, req.Reference, req.Kind)
	if err == nil && len(landed) > 0 {
		return c.resolveDuplicate(ctx, req, txID)
	}
	return nil, Wrap(CodeStorageUnavailable, lastErr, "failed to append ledger entries")
}

func (c *Coordinator) resolveDuplicate(ctx context.Context, req Request, txID string) (*models.TransferResult, error) {
	entries, err := c.ledger.FindByReference(ctx, req.Reference, req.Kind)
	if err != nil {
		return nil, Wrap(CodeStorageUnavailable, err, "failed to load settled reference")
	}
	result, err := models.ResultFromEntries(entries)
	if err != nil {
		return nil, Wrap(CodeStorageUnavailable, err, "settled reference has inconsistent entries")
	}
	if result.TransactionID == txID {
		return nil, nil
	}
	return result, nil
}

// syncWithLedger replaces the cached balance with the balance the account's ledger history ends at.
// The two differ only while an earlier balance write is waiting for reconciliation. Callers must hold
// the account lock.
func (c *Coordinator) syncWithLedger(ctx context.Context, account *models.Account) error {
	latest, err := c.ledger.LatestByAccount(ctx, account.ID, 1)
	if err != nil {
		return Wrap(CodeStorageUnavailable, err, fmt.Sprintf("failed to read ledger of account %s", account.ID))
	}
	var head int64
	if len(latest) > 0 {
		head = latest[0].BalanceAfter
	}
	if head != account.Balance {
		c.logg.Warn(c.logg.WithAccountID(ctx, account.ID),
			fmt.Sprintf("stored balance %d lags ledger balance %d", account.Balance, head))
		account.Balance = head
	}
	return nil
}

func (c *Coordinator) updateBalance(ctx context.Context, account *models.Account, balance int64) error {
	_, err := c.accounts.CompareAndUpdateBalance(ctx, account.ID, account.Version, balance)
	if err != nil {
		c.logg.Warn(c.logg.WithAccountID(ctx, account.ID), fmt.Sprintf("balance update deferred to reconciliation: %v", err))
	}
	return err
}

// deferToReconciliation records that the ledger holds the transfer but a balance write did not land. The ledger is
// authoritative, so the caller still gets a success and reconciliation finishes the job.
func (c *Coordinator) deferToReconciliation(ctx context.Context, result *models.TransferResult) {
	result.Deferred = true
	if c.repairer != nil {
		c.repairer.ScheduleRepair(ctx, result.FromAccountID, result.ToAccountID)
	}
}

func (c *Coordinator) loadPair(ctx context.Context, req Request) (*models.Account, *models.Account, error) {
	from, err := c.loadAccount(ctx, req.FromAccountID)
	if err != nil {
		return nil, nil, err
	}
	to, err := c.loadAccount(ctx, req.ToAccountID)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func (c *Coordinator) loadAccount(ctx context.Context, id string) (*models.Account, error) {
	account, err := c.accounts.GetAccount(ctx, id)
	if errors.Is(err, storage.ErrAccountNotFound) {
		return nil, Wrap(CodeAccountNotFound, err, fmt.Sprintf("account %s not found", id))
	}
	if err != nil {
		return nil, Wrap(CodeStorageUnavailable, err, fmt.Sprintf("failed to load account %s", id))
	}
	if !account.Active {
		return nil, New(CodeAccountInactive, fmt.Sprintf("account %s is inactive", id))
	}
	return account, nil
}

func (c *Coordinator) buildEntries(req Request, from, to *models.Account) []models.LedgerEntry {
	txID := uuid.NewString()
	createdAt := c.now()
	description := req.Description
	if description == "" {
		description = defaultDescription(req)
	}

	base := models.LedgerEntry{
		TransactionID: txID,
		Amount:        req.Amount,
		Reference:     req.Reference,
		Kind:          req.Kind,
		Description:   description,
		CreatedAt:     createdAt,
	}

	debit := base
	debit.ID = uuid.NewString()
	debit.AccountID = from.ID
	debit.Role = from.Role
	debit.Direction = models.DEBIT
	debit.BalanceBefore = from.Balance
	debit.BalanceAfter = from.Balance - req.Amount
	debit.Metadata = maps.Clone(req.Metadata)

	credit := base
	credit.ID = uuid.NewString()
	credit.AccountID = to.ID
	credit.Role = to.Role
	credit.Direction = models.CREDIT
	credit.BalanceBefore = to.Balance
	credit.BalanceAfter = to.Balance + req.Amount
	credit.Metadata = maps.Clone(req.Metadata)

	return []models.LedgerEntry{debit, credit}
}

func validate(req Request) error {
	switch {
	case req.Amount <= 0:
		return New(CodeInvalidAmount, fmt.Sprintf("amount %d must be positive", req.Amount))
	case req.FromAccountID == "" || req.ToAccountID == "":
		return New(CodeInvalidRequest, "both accounts are required")
	case req.FromAccountID == req.ToAccountID:
		return New(CodeSameAccount, fmt.Sprintf("account %s cannot pay itself", req.FromAccountID))
	case req.Reference == "":
		return New(CodeInvalidRequest, "reference is required")
	case !req.Kind.IsValid():
		return New(CodeInvalidRequest, fmt.Sprintf("unknown kind %q", req.Kind))
	}
	return nil
}

func defaultDescription(req Request) string {
	switch req.Kind {
	case models.KindTopUp:
		method := req.Metadata["payment_method"]
		if method == "" {
			method = "QRIS"
		}
		return fmt.Sprintf("Top up via %s", method)
	case models.KindWithdrawal:
		if bank := req.Metadata["bank_name"]; bank != "" {
			return fmt.Sprintf("Withdrawal to %s - %s", bank, req.Metadata["account_name"])
		}
		return "Withdrawal"
	case models.KindRefund:
		return fmt.Sprintf("Refund for order %s", req.Reference)
	default:
		return fmt.Sprintf("Payment for order %s", req.Reference)
	}
}

func replay(prior *models.TransferResult) *models.TransferResult {
	result := *prior
	result.Replayed = true
	result.Deferred = false
	return &result
}

func waitError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(CodeTimeout, err, message)
	}
	return Wrap(CodeStorageUnavailable, err, message)
}

func codeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeStorageUnavailable
}

func outcomeOf(result *models.TransferResult, err error) string {
	switch {
	case err != nil && MetadataFor(codeOf(err)).Retryable:
		return metrics.OutcomeFailed
	case err != nil:
		return metrics.OutcomeRejected
	case result.Replayed:
		return metrics.OutcomeReplayed
	case result.Deferred:
		return metrics.OutcomeDeferred
	default:
		return metrics.OutcomeSettled
	}
}
