package notify

import (
	"time"

	"github.com/mycotrack/wallet-ledger/pkg/models"
)

// EventType defines the type of an outcome event.
type EventType string

const (
	// EventTransferSettled is emitted once both balances reflect a transfer.
	EventTransferSettled EventType = "transfer.settled"
	// EventTransferDeferred is emitted when the ledger holds a transfer but a balance update was left to reconciliation.
	EventTransferDeferred EventType = "transfer.deferred"
	// EventAccountReconciled is emitted when reconciliation repaired or flagged an account.
	EventAccountReconciled EventType = "account.reconciled"
)

// Event represents a generic outcome event.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// BalanceChange is the per-account part of a transfer event.
type BalanceChange struct {
	AccountID  string `json:"account_id"`
	Change     int64  `json:"change"`
	NewBalance int64  `json:"new_balance"`
}

// TransferPayload is the payload for transfer events.
type TransferPayload struct {
	TransactionID string          `json:"transaction_id"`
	Reference     string          `json:"reference"`
	Kind          models.Kind     `json:"kind"`
	Amount        int64           `json:"amount"`
	Description   string          `json:"description"`
	Changes       []BalanceChange `json:"changes"`
}

// ReconciledPayload is the payload for account.reconciled events.
type ReconciledPayload struct {
	AccountID     string                       `json:"account_id"`
	StoredBalance int64                        `json:"stored_balance"`
	LedgerBalance int64                        `json:"ledger_balance"`
	Outcome       models.ReconciliationOutcome `json:"outcome"`
}

// TransferEvent builds the event describing a transfer result.
func TransferEvent(result *models.TransferResult) Event {
	eventType := EventTransferSettled
	if result.Deferred {
		eventType = EventTransferDeferred
	}
	return Event{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload: TransferPayload{
			TransactionID: result.TransactionID,
			Reference:     result.Reference,
			Kind:          result.Kind,
			Amount:        result.Amount,
			Description:   result.Description,
			Changes: []BalanceChange{
				{AccountID: result.FromAccountID, Change: -result.Amount, NewBalance: result.FromBalance},
				{AccountID: result.ToAccountID, Change: result.Amount, NewBalance: result.ToBalance},
			},
		},
	}
}

// ReconciledEvent builds the event describing a reconciliation report.
func ReconciledEvent(report *models.ReconciliationReport) Event {
	return Event{
		Type:       EventAccountReconciled,
		OccurredAt: time.Now().UTC(),
		Payload: ReconciledPayload{
			AccountID:     report.AccountID,
			StoredBalance: report.StoredBalance,
			LedgerBalance: report.LedgerBalance,
			Outcome:       report.Outcome,
		},
	}
}
