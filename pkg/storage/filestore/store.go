// Package filestore implements the storage interfaces on a local directory of JSON files.
//
// Layout:
//
//	<root>/accounts/<id>.json              one file per account
//	<root>/ledger/staging/                 batches being written
//	<root>/ledger/batches/<seq>-<txid>.json one file per published transfer batch
//
// Every file is written to a temporary name, flushed and renamed into place, so a reader
// never observes a partially written record.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

const (
	accountsDir = "accounts"
	stagingDir  = "ledger/staging"
	batchesDir  = "ledger/batches"
)

// Store implements storage.Storage on the local filesystem.
// A Store owns its directory: only one Store per directory may be open at a time.
type Store struct {
	root string

	mu        sync.RWMutex
	accounts  map[string]models.Account
	byAccount map[string][]models.LedgerEntry
	byRef     map[string][]models.LedgerEntry
	recent    []models.LedgerEntry
	lastSeq   int64
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

// Open prepares the directory layout under root and loads the account and ledger indexes.
// Staging files left behind by an interrupted write are discarded: they were never published.
func Open(root string) (*Store, error) {
	for _, dir := range []string{accountsDir, stagingDir, batchesDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	s := &Store{
		root:      root,
		accounts:  make(map[string]models.Account),
		byAccount: make(map[string][]models.LedgerEntry),
		byRef:     make(map[string][]models.LedgerEntry),
	}

	if err := s.clearStaging(); err != nil {
		return nil, err
	}
	if err := s.loadAccounts(); err != nil {
		return nil, err
	}
	if err := s.loadLedger(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) clearStaging() error {
	leftovers, err := os.ReadDir(filepath.Join(s.root, stagingDir))
	if err != nil {
		return fmt.Errorf("failed to read staging directory: %w", err)
	}
	for _, f := range leftovers {
		if err := os.Remove(filepath.Join(s.root, stagingDir, f.Name())); err != nil {
			return fmt.Errorf("failed to remove staging file %s: %w", f.Name(), err)
		}
	}
	return nil
}

func (s *Store) loadAccounts() error {
	files, err := os.ReadDir(filepath.Join(s.root, accountsDir))
	if err != nil {
		return fmt.Errorf("failed to read accounts directory: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		var account models.Account
		if err := readJSON(filepath.Join(s.root, accountsDir, f.Name()), &account); err != nil {
			return fmt.Errorf("failed to load account file %s: %w", f.Name(), err)
		}
		s.accounts[account.ID] = account
	}
	return nil
}

func (s *Store) loadLedger() error {
	files, err := os.ReadDir(filepath.Join(s.root, batchesDir))
	if err != nil {
		return fmt.Errorf("failed to read ledger directory: %w", err)
	}

	var entries []models.LedgerEntry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		var batch []models.LedgerEntry
		if err := readJSON(filepath.Join(s.root, batchesDir, f.Name()), &batch); err != nil {
			return fmt.Errorf("failed to load ledger batch %s: %w", f.Name(), err)
		}
		entries = append(entries, batch...)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })
	for _, e := range entries {
		s.index(e)
	}
	return nil
}

// index adds a published entry to the in-memory views. Callers must hold the write lock.
func (s *Store) index(e models.LedgerEntry) {
	s.byAccount[e.AccountID] = append(s.byAccount[e.AccountID], e)
	key := e.Ref().Key()
	s.byRef[key] = append(s.byRef[key], e)
	s.recent = append(s.recent, e)
	if e.Sequence > s.lastSeq {
		s.lastSeq = e.Sequence
	}
}

func (s *Store) accountPath(id string) string {
	return filepath.Join(s.root, accountsDir, id+".json")
}

// writeFileAtomic writes data to a temporary file in stageDir, flushes it and renames it to target.
func writeFileAtomic(stageDir, target string, data []byte) error {
	tmp, err := os.CreateTemp(stageDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("failed to publish %s: %w", filepath.Base(target), err)
	}
	return syncDir(filepath.Dir(target))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open directory %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("failed to sync directory %s: %w", dir, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
