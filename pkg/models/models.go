package models

import (
	"fmt"
	"time"
)

// Role identifies which kind of participant owns an account.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleFarmer   Role = "farmer"
	// RolePlatform is the operator-owned holding account on the other side of top-ups and withdrawals.
	RolePlatform Role = "platform"
)

// IsValid reports whether the role is one of the known participant roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleFarmer, RolePlatform:
		return true
	}
	return false
}

// AllowsNegative reports whether the balance of an account with this role may drop below zero.
// Only the platform holding account mirrors money that entered the closed loop from outside.
func (r Role) AllowsNegative() bool {
	return r == RolePlatform
}

// Direction is the side of a transfer a ledger entry records.
type Direction string

const (
	DEBIT  Direction = "debit"
	CREDIT Direction = "credit"
)

// Kind scopes a reference for idempotency purposes.
type Kind string

const (
	KindPayment    Kind = "payment"
	KindTopUp      Kind = "top-up"
	KindWithdrawal Kind = "withdrawal"
	KindRefund     Kind = "refund"
)

var validKinds = []Kind{KindPayment, KindTopUp, KindWithdrawal, KindRefund}

// IsValid reports whether the value matches a known kind.
func (k Kind) IsValid() bool {
	for _, candidate := range validKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseKind converts raw input into a Kind.
func ParseKind(value string) (Kind, error) {
	for _, candidate := range validKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger kind %q", value)
}

// Reference is the idempotency key of a transfer: an external id (usually an order id) plus its kind.
type Reference struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
}

// Key returns the canonical string form of the reference.
func (r Reference) Key() string {
	return string(r.Kind) + ":" + r.ID
}

func (r Reference) String() string {
	return r.Key()
}

// Account is the stored balance record of one participant.
// Balance is a cache of the account's ledger history; it only changes through a versioned
// compare-and-swap write.
type Account struct {
	ID        string    `json:"id" dynamodbav:"account_id"`
	Role      Role      `json:"role" dynamodbav:"role"`
	Name      string    `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Balance   int64     `json:"balance" dynamodbav:"balance"`
	Version   int64     `json:"version" dynamodbav:"version"`
	Active    bool      `json:"active" dynamodbav:"active"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// LedgerEntry is one immutable side of a transfer.
type LedgerEntry struct {
	ID            string            `json:"id" dynamodbav:"entry_id"`
	TransactionID string            `json:"transaction_id" dynamodbav:"transaction_id"`
	AccountID     string            `json:"account_id" dynamodbav:"account_id"`
	Role          Role              `json:"role" dynamodbav:"role"`
	Direction     Direction         `json:"direction" dynamodbav:"direction"`
	Amount        int64             `json:"amount" dynamodbav:"amount"`
	BalanceBefore int64             `json:"balance_before" dynamodbav:"balance_before"`
	BalanceAfter  int64             `json:"balance_after" dynamodbav:"balance_after"`
	Reference     string            `json:"reference" dynamodbav:"reference"`
	Kind          Kind              `json:"kind" dynamodbav:"kind"`
	Description   string            `json:"description" dynamodbav:"description"`
	Metadata      map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	Sequence      int64             `json:"sequence" dynamodbav:"sequence"`
	CreatedAt     time.Time         `json:"created_at" dynamodbav:"created_at"`
}

// Ref returns the idempotency key the entry was written under.
func (e LedgerEntry) Ref() Reference {
	return Reference{ID: e.Reference, Kind: e.Kind}
}

// Signed returns the entry amount with the sign it contributes to the account balance.
func (e LedgerEntry) Signed() int64 {
	if e.Direction == DEBIT {
		return -e.Amount
	}
	return e.Amount
}

// TransferResult is the outcome of a settled transfer. A replayed transfer returns the result of the
// original settlement unchanged apart from the Replayed flag.
type TransferResult struct {
	TransactionID string    `json:"transaction_id"`
	Reference     string    `json:"reference"`
	Kind          Kind      `json:"kind"`
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

// ReconciliationOutcome classifies the result of reconciling one account.
type ReconciliationOutcome string

const (
	OutcomeInSync   ReconciliationOutcome = "in_sync"
	OutcomeRepaired ReconciliationOutcome = "repaired"
	// OutcomeFlagged means the stored balance matches the ledger but the entry snapshots do not chain.
	OutcomeFlagged ReconciliationOutcome = "flagged"
)

// ReconciliationReport describes one account checked against its ledger history.
type ReconciliationReport struct {
	AccountID      string                `json:"account_id"`
	StoredBalance  int64                 `json:"stored_balance"`
	LedgerBalance  int64                 `json:"ledger_balance"`
	EntryCount     int                   `json:"entry_count"`
	SnapshotBreaks int                   `json:"snapshot_breaks"`
	Outcome        ReconciliationOutcome `json:"outcome"`
	CheckedAt      time.Time             `json:"checked_at"`
}
