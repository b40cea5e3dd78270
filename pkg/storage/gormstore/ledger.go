package gormstore

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
	"gorm.io/gorm"
)

const pageSize = 200

// Append inserts both entries in one database transaction, debit first.
func (s *Store) Append(ctx context.Context, entries []models.LedgerEntry) error {
	debit, credit, err := models.ValidateBatch(entries)
	if err != nil {
		return err
	}

	rows := []ledgerRow{newLedgerRow(debit), newLedgerRow(credit)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&ledgerRow{}).
			Where("reference = ? AND kind = ?", debit.Reference, string(debit.Kind)).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return storage.ErrDuplicateReference
		}
		for i := range rows {
			if err := tx.Create(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, storage.ErrDuplicateReference) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("reference %s: %w", debit.Ref().Key(), storage.ErrDuplicateReference)
	}
	if err != nil {
		return fmt.Errorf("failed to append ledger batch: %w", err)
	}

	for i := range entries {
		if entries[i].Direction == models.DEBIT {
			entries[i].Sequence = rows[0].Sequence
		} else {
			entries[i].Sequence = rows[1].Sequence
		}
	}
	return nil
}

func (s *Store) FindByReference(ctx context.Context, reference string, kind models.Kind) ([]models.LedgerEntry, error) {
	var rows []ledgerRow
	if err := s.db.WithContext(ctx).
		Where("reference = ? AND kind = ?", reference, string(kind)).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find ledger entries by reference: %w", err)
	}
	return toModels(rows), nil
}

// ListByAccount runs one keyset-paginated query per page as the caller consumes entries.
func (s *Store) ListByAccount(ctx context.Context, accountID string, after int64) iter.Seq2[models.LedgerEntry, error] {
	return func(yield func(models.LedgerEntry, error) bool) {
		cursor := after
		for {
			var rows []ledgerRow
			if err := s.db.WithContext(ctx).
				Where("account_id = ? AND sequence > ?", accountID, cursor).
				Order("sequence ASC").
				Limit(pageSize).
				Find(&rows).Error; err != nil {
				yield(models.LedgerEntry{}, fmt.Errorf("failed to list ledger entries for account %s: %w", accountID, err))
				return
			}
			for _, r := range rows {
				if !yield(r.toModel(), nil) {
					return
				}
				cursor = r.Sequence
			}
			if len(rows) < pageSize {
				return
			}
		}
	}
}

// LatestByAccount reads the account's tail in one descending query.
func (s *Store) LatestByAccount(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	query := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("sequence DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []ledgerRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read latest ledger entries for account %s: %w", accountID, err)
	}
	return toModels(rows), nil
}

func (s *Store) ListRecent(ctx context.Context, filter storage.LedgerFilter) ([]models.LedgerEntry, error) {
	query := s.db.WithContext(ctx).Order("sequence DESC")
	if filter.Role != "" {
		query = query.Where("role = ?", string(filter.Role))
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at < ?", filter.Until)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []ledgerRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent ledger entries: %w", err)
	}
	return toModels(rows), nil
}

func toModels(rows []ledgerRow) []models.LedgerEntry {
	entries := make([]models.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toModel())
	}
	return entries
}
