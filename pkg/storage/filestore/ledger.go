package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"path/filepath"
	"sort"

	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

// pageSize bounds how many entries ListByAccount copies out of the index per lock acquisition.
const pageSize = 256

// Append publishes a transfer batch. The batch is written to the staging directory and renamed into
// the batches directory, so it becomes visible in full or not at all.
func (s *Store) Append(ctx context.Context, entries []models.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	debit, _, err := models.ValidateBatch(entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := debit.Ref().Key()
	if len(s.byRef[key]) > 0 {
		return fmt.Errorf("reference %s: %w", key, storage.ErrDuplicateReference)
	}

	batch := make([]models.LedgerEntry, len(entries))
	copy(batch, entries)
	// Debit first so that a replay of the batch reads in a stable order.
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Direction == models.DEBIT && batch[j].Direction != models.DEBIT })
	for i := range batch {
		batch[i].Sequence = s.lastSeq + int64(i) + 1
	}

	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger batch: %w", err)
	}
	name := fmt.Sprintf("%020d-%s.json", batch[0].Sequence, batch[0].TransactionID)
	target := filepath.Join(s.root, batchesDir, name)
	if err := writeFileAtomic(filepath.Join(s.root, stagingDir), target, data); err != nil {
		return fmt.Errorf("failed to append ledger batch: %w", err)
	}

	for _, e := range batch {
		s.index(e)
		for j := range entries {
			if entries[j].Direction == e.Direction {
				entries[j].Sequence = e.Sequence
			}
		}
	}
	return nil
}

// FindByReference returns the entries recorded under (reference, kind).
func (s *Store) FindByReference(ctx context.Context, reference string, kind models.Kind) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := s.byRef[models.Reference{ID: reference, Kind: kind}.Key()]
	out := make([]models.LedgerEntry, len(found))
	copy(out, found)
	return out, nil
}

// ListByAccount yields the account's entries with a sequence greater than after, in sequence order.
// Entries published while iterating are picked up by later pages.
func (s *Store) ListByAccount(ctx context.Context, accountID string, after int64) iter.Seq2[models.LedgerEntry, error] {
	return func(yield func(models.LedgerEntry, error) bool) {
		cursor := after
		for {
			if err := ctx.Err(); err != nil {
				yield(models.LedgerEntry{}, err)
				return
			}

			page := s.pageAfter(accountID, cursor)
			if len(page) == 0 {
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
				cursor = e.Sequence
			}
		}
	}
}

func (s *Store) pageAfter(accountID string, cursor int64) []models.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.byAccount[accountID]
	start := sort.Search(len(history), func(i int) bool { return history[i].Sequence > cursor })
	end := min(start+pageSize, len(history))
	page := make([]models.LedgerEntry, end-start)
	copy(page, history[start:end])
	return page
}

// LatestByAccount returns up to limit of the account's entries, newest first.
func (s *Store) LatestByAccount(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.byAccount[accountID]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]models.LedgerEntry, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

// ListRecent returns up to filter.Limit matching entries, newest first.
func (s *Store) ListRecent(ctx context.Context, filter storage.LedgerFilter) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]models.LedgerEntry, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		if filter.Matches(s.recent[i]) {
			out = append(out, s.recent[i])
		}
	}
	return out, nil
}
