package mapping

import (
	"github.com/mycotrack/wallet-ledger/pkg/api"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/reconciliation"
	"github.com/mycotrack/wallet-ledger/pkg/transfer"
)

// ToApiAccount converts a domain Account model to an API Account model.
func ToApiAccount(account *models.Account) *api.Account {
	return &api.Account{
		ID:        account.ID,
		Role:      string(account.Role),
		Name:      account.Name,
		Balance:   account.Balance,
		Version:   account.Version,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}
}

// ToDomainNewAccount converts an API NewAccount model to a domain Account model.
// New accounts always start at a zero balance; money only enters through a top-up.
func ToDomainNewAccount(newAccount *api.NewAccount) *models.Account {
	return &models.Account{
		ID:   newAccount.ID,
		Role: models.Role(newAccount.Role),
		Name: newAccount.Name,
	}
}

// ToTransferRequest converts an API NewTransfer model to a coordinator request.
func ToTransferRequest(newTransfer *api.NewTransfer) transfer.Request {
	return transfer.Request{
		Reference:     newTransfer.Reference,
		Kind:          models.Kind(newTransfer.Kind),
		FromAccountID: newTransfer.FromAccountID,
		ToAccountID:   newTransfer.ToAccountID,
		Amount:        newTransfer.Amount,
		Description:   newTransfer.Description,
		Metadata:      newTransfer.Metadata,
	}
}

func ToApiTransfer(result *models.TransferResult) *api.Transfer {
	return &api.Transfer{
		TransactionID: result.TransactionID,
		Reference:     result.Reference,
		Kind:          string(result.Kind),
		FromAccountID: result.FromAccountID,
		ToAccountID:   result.ToAccountID,
		Amount:        result.Amount,
		FromBalance:   result.FromBalance,
		ToBalance:     result.ToBalance,
		Description:   result.Description,
		Replayed:      result.Replayed,
		Deferred:      result.Deferred,
		SettledAt:     result.SettledAt,
	}
}

func ToApiLedgerEntry(entry *models.LedgerEntry) *api.LedgerEntry {
	return &api.LedgerEntry{
		ID:            entry.ID,
		TransactionID: entry.TransactionID,
		AccountID:     entry.AccountID,
		Role:          string(entry.Role),
		Direction:     string(entry.Direction),
		Amount:        entry.Amount,
		BalanceBefore: entry.BalanceBefore,
		BalanceAfter:  entry.BalanceAfter,
		Reference:     entry.Reference,
		Kind:          string(entry.Kind),
		Description:   entry.Description,
		Metadata:      entry.Metadata,
		Sequence:      entry.Sequence,
		CreatedAt:     entry.CreatedAt,
	}
}

func ToApiLedgerEntries(entries []models.LedgerEntry) []*api.LedgerEntry {
	out := make([]*api.LedgerEntry, len(entries))
	for i := range entries {
		out[i] = ToApiLedgerEntry(&entries[i])
	}
	return out
}

func ToApiReconciliationReport(report *models.ReconciliationReport) *api.ReconciliationReport {
	return &api.ReconciliationReport{
		AccountID:      report.AccountID,
		StoredBalance:  report.StoredBalance,
		LedgerBalance:  report.LedgerBalance,
		EntryCount:     report.EntryCount,
		SnapshotBreaks: report.SnapshotBreaks,
		Outcome:        string(report.Outcome),
		CheckedAt:      report.CheckedAt,
	}
}

func ToApiReconciliationSummary(summary *reconciliation.Summary) *api.ReconciliationSummary {
	reports := make([]*api.ReconciliationReport, len(summary.Reports))
	for i := range summary.Reports {
		reports[i] = ToApiReconciliationReport(&summary.Reports[i])
	}
	return &api.ReconciliationSummary{
		Checked:  summary.Checked,
		InSync:   summary.InSync,
		Repaired: summary.Repaired,
		Flagged:  summary.Flagged,
		Failed:   summary.Failed,
		Reports:  reports,
	}
}
