package storage

import (
	"context"
	"iter"
	"time"

	"github.com/mycotrack/wallet-ledger/pkg/models"
)

// LedgerFilter narrows the cross-account feed. Zero fields do not filter.
type LedgerFilter struct {
	Role  models.Role
	Since time.Time // inclusive
	Until time.Time // exclusive
	Limit int
}

// Matches reports whether the entry passes the role and time window of the filter.
func (f LedgerFilter) Matches(e models.LedgerEntry) bool {
	if f.Role != "" && e.Role != f.Role {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}

// LedgerReader defines the interface for reading ledger data.
type LedgerReader interface {
	// FindByReference returns the entries written under (reference, kind), or an empty slice.
	FindByReference(ctx context.Context, reference string, kind models.Kind) ([]models.LedgerEntry, error)

	// ListByAccount lazily yields the account's entries in sequence order, starting after the given cursor.
	// Passing 0 starts from the beginning of the account's history.
	ListByAccount(ctx context.Context, accountID string, after int64) iter.Seq2[models.LedgerEntry, error]

	// LatestByAccount returns up to limit of the account's most recent entries, newest first.
	// The first entry's BalanceAfter is the balance the ledger holds for the account.
	LatestByAccount(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error)

	// ListRecent retrieves the most recent ledger entries across all accounts that match the filter,
	// newest first.
	ListRecent(ctx context.Context, filter LedgerFilter) ([]models.LedgerEntry, error)
}

// LedgerStore defines the append-only ledger.
type LedgerStore interface {
	LedgerReader

	// Append publishes one transfer batch atomically and assigns each entry its sequence.
	// It returns ErrDuplicateReference if the batch's (reference, kind) already exists,
	// ErrInvalidBatch if the batch is not balanced and ErrSequenceConflict if another writer
	// took one of the batch's positions in an account history.
	Append(ctx context.Context, entries []models.LedgerEntry) error
}
