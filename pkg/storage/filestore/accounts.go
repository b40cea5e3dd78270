package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

// GetAccount retrieves an account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, storage.ErrAccountNotFound)
	}
	return &account, nil
}

// ListAccounts retrieves all accounts ordered by id.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// CreateAccount registers a new account with a zero balance.
func (s *Store) CreateAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if account.ID == "" || filepath.Base(account.ID) != account.ID {
		return nil, fmt.Errorf("invalid account id %q", account.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return nil, fmt.Errorf("account %s: %w", account.ID, storage.ErrAccountExists)
	}

	now := time.Now().UTC()
	created := *account
	created.Balance = 0
	created.Version = 0
	created.Active = true
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := s.writeAccount(created); err != nil {
		return nil, fmt.Errorf("failed to create account %s: %w", account.ID, err)
	}
	s.accounts[created.ID] = created
	return &created, nil
}

// CompareAndUpdateBalance writes newBalance if the stored version still equals expectedVersion.
func (s *Store) CompareAndUpdateBalance(ctx context.Context, id string, expectedVersion, newBalance int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", id, storage.ErrAccountNotFound)
	}
	if account.Version != expectedVersion {
		return 0, fmt.Errorf("account %s at version %d, expected %d: %w", id, account.Version, expectedVersion, storage.ErrVersionConflict)
	}
	if newBalance < 0 && !account.Role.AllowsNegative() {
		return 0, fmt.Errorf("account %s: %w", id, storage.ErrNegativeBalance)
	}

	account.Balance = newBalance
	account.Version++
	account.UpdatedAt = time.Now().UTC()

	if err := s.writeAccount(account); err != nil {
		return 0, fmt.Errorf("failed to update balance of account %s: %w", id, err)
	}
	s.accounts[id] = account
	return account.Version, nil
}

// DeactivateAccount marks the account inactive without touching its balance or version.
func (s *Store) DeactivateAccount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, storage.ErrAccountNotFound)
	}
	if !account.Active {
		return nil
	}
	account.Active = false
	account.UpdatedAt = time.Now().UTC()

	if err := s.writeAccount(account); err != nil {
		return fmt.Errorf("failed to deactivate account %s: %w", id, err)
	}
	s.accounts[id] = account
	return nil
}

func (s *Store) writeAccount(account models.Account) error {
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.root, accountsDir), s.accountPath(account.ID), data)
}
