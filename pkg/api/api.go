// Package api holds the HTTP request and response bodies.
package api

import (
	"time"
)

// NewAccount is the body of POST /accounts.
type NewAccount struct {
	ID   string `json:"id" validate:"required,max=128,excludesall=/\\"`
	Role string `json:"role" validate:"required,oneof=customer farmer"`
	Name string `json:"name" validate:"max=256"`
}

type Account struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Name      string    `json:"name,omitempty"`
	Balance   int64     `json:"balance"`
	Version   int64     `json:"version"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTransfer is the body of POST /transfers and POST /transfers/async. Amount and account checks are
// left to the coordinator so every rejection carries a transfer error code.
type NewTransfer struct {
	Reference     string            `json:"reference" validate:"required,max=256"`
	Kind          string            `json:"kind" validate:"omitempty,oneof=payment top-up withdrawal refund"`
	FromAccountID string            `json:"from_account_id" validate:"required"`
	ToAccountID   string            `json:"to_account_id" validate:"required"`
	Amount        int64             `json:"amount"`
	Description   string            `json:"description" validate:"max=512"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// FundsMovement is the body of the top-up and withdrawal endpoints.
type FundsMovement struct {
	Reference   string            `json:"reference" validate:"required,max=256"`
	Amount      int64             `json:"amount"`
	Description string            `json:"description" validate:"max=512"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewRefund is the body of POST /refunds.
type NewRefund struct {
	OrderID     string `json:"order_id" validate:"required,max=256"`
	FarmerID    string `json:"farmer_id" validate:"required"`
	CustomerID  string `json:"customer_id" validate:"required"`
	Amount      int64  `json:"amount"`
	Description string `json:"description" validate:"max=512"`
}

type Transfer struct {
	TransactionID string    `json:"transaction_id"`
	Reference     string    `json:"reference"`
	Kind          string    `json:"kind"`
	FromAccountID string    `json:"from_account_id"`
	ToAccountID   string    `json:"to_account_id"`
	Amount        int64     `json:"amount"`
	FromBalance   int64     `json:"from_balance"`
	ToBalance     int64     `json:"to_balance"`
	Description   string    `json:"description"`
	Replayed      bool      `json:"replayed"`
	Deferred      bool      `json:"deferred"`
	SettledAt     time.Time `json:"settled_at"`
}

// ScheduledTransfer acknowledges a transfer handed to the queue.
type ScheduledTransfer struct {
	Reference string `json:"reference"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
}

type LedgerEntry struct {
	ID            string            `json:"id"`
	TransactionID string            `json:"transaction_id"`
	AccountID     string            `json:"account_id"`
	Role          string            `json:"role"`
	Direction     string            `json:"direction"`
	Amount        int64             `json:"amount"`
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Reference     string            `json:"reference"`
	Kind          string            `json:"kind"`
	Description   string            `json:"description"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Sequence      int64             `json:"sequence"`
	CreatedAt     time.Time         `json:"created_at"`
}

// LedgerPage is one page of an account history. NextAfter is the cursor for the following page and
// is zero when the history is exhausted.
type LedgerPage struct {
	Entries   []*LedgerEntry `json:"entries"`
	NextAfter int64          `json:"next_after,omitempty"`
}

type ReconciliationReport struct {
	AccountID      string    `json:"account_id"`
	StoredBalance  int64     `json:"stored_balance"`
	LedgerBalance  int64     `json:"ledger_balance"`
	EntryCount     int       `json:"entry_count"`
	SnapshotBreaks int       `json:"snapshot_breaks"`
	Outcome        string    `json:"outcome"`
	CheckedAt      time.Time `json:"checked_at"`
}

type ReconciliationSummary struct {
	Checked  int                     `json:"checked"`
	InSync   int                     `json:"in_sync"`
	Repaired int                     `json:"repaired"`
	Flagged  int                     `json:"flagged"`
	Failed   int                     `json:"failed"`
	Reports  []*ReconciliationReport `json:"reports"`
}

type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ReferenceLookup is the settlement recorded under one (kind, reference) pair.
type ReferenceLookup struct {
	Transfer *Transfer      `json:"transfer"`
	Entries  []*LedgerEntry `json:"entries"`
}
