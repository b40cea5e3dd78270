package models

import (
	"errors"
	"fmt"
)

// ErrInvalidBatch is returned when a ledger batch is not exactly one balanced debit and credit.
var ErrInvalidBatch = errors.New("invalid ledger batch")

// ValidateBatch checks that entries form one transfer: a single debit and a single credit that share
// a transaction id, reference, kind and amount, with balance snapshots consistent with their direction.
// It returns the debit and credit entries on success.
func ValidateBatch(entries []LedgerEntry) (debit, credit LedgerEntry, err error) {
	if len(entries) != 2 {
		return debit, credit, fmt.Errorf("%w: expected 2 entries, got %d", ErrInvalidBatch, len(entries))
	}

	for _, e := range entries {
		switch e.Direction {
		case DEBIT:
			debit = e
		case CREDIT:
			credit = e
		default:
			return LedgerEntry{}, LedgerEntry{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidBatch, e.Direction)
		}
	}

	switch {
	case debit.TransactionID == "" || credit.TransactionID == "":
		err = fmt.Errorf("%w: batch needs one debit and one credit with a transaction id", ErrInvalidBatch)
	case debit.TransactionID != credit.TransactionID:
		err = fmt.Errorf("%w: entries belong to different transactions", ErrInvalidBatch)
	case debit.Amount <= 0 || debit.Amount != credit.Amount:
		err = fmt.Errorf("%w: debit %d and credit %d do not balance", ErrInvalidBatch, debit.Amount, credit.Amount)
	case debit.Reference == "" || debit.Reference != credit.Reference || debit.Kind != credit.Kind:
		err = fmt.Errorf("%w: entries do not share a reference", ErrInvalidBatch)
	case !debit.Kind.IsValid():
		err = fmt.Errorf("%w: unknown kind %q", ErrInvalidBatch, debit.Kind)
	case debit.AccountID == "" || debit.AccountID == credit.AccountID:
		err = fmt.Errorf("%w: debit and credit must name two different accounts", ErrInvalidBatch)
	case debit.BalanceAfter != debit.BalanceBefore-debit.Amount:
		err = fmt.Errorf("%w: debit snapshot %d -> %d does not match amount", ErrInvalidBatch, debit.BalanceBefore, debit.BalanceAfter)
	case credit.BalanceAfter != credit.BalanceBefore+credit.Amount:
		err = fmt.Errorf("%w: credit snapshot %d -> %d does not match amount", ErrInvalidBatch, credit.BalanceBefore, credit.BalanceAfter)
	}
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}
	return debit, credit, nil
}

// ResultFromEntries rebuilds the settlement result recorded by a ledger batch.
func ResultFromEntries(entries []LedgerEntry) (*TransferResult, error) {
	debit, credit, err := ValidateBatch(entries)
	if err != nil {
		return nil, err
	}
	return &TransferResult{
		TransactionID: debit.TransactionID,
		Reference:     debit.Reference,
		Kind:          debit.Kind,
		FromAccountID: debit.AccountID,
		ToAccountID:   credit.AccountID,
		Amount:        debit.Amount,
		FromBalance:   debit.BalanceAfter,
		ToBalance:     credit.BalanceAfter,
		Description:   debit.Description,
		SettledAt:     debit.CreatedAt,
	}, nil
}
