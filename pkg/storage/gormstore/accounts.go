package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
	"gorm.io/gorm"
)

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("account %s: %w", id, storage.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	account := row.toModel()
	return &account, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var rows []accountRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	accounts := make([]models.Account, 0, len(rows))
	for _, r := range rows {
		accounts = append(accounts, r.toModel())
	}
	return accounts, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	now := time.Now().UTC()
	row := accountRow{
		ID:        account.ID,
		Role:      string(account.Role),
		Name:      account.Name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("account %s: %w", account.ID, storage.ErrAccountExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	created := row.toModel()
	return &created, nil
}

// CompareAndUpdateBalance issues UPDATE ... WHERE version = ? and classifies a zero-row result.
func (s *Store) CompareAndUpdateBalance(ctx context.Context, id string, expectedVersion, newBalance int64) (int64, error) {
	query := s.db.WithContext(ctx).Model(&accountRow{}).
		Where("id = ? AND version = ?", id, expectedVersion)
	if newBalance < 0 {
		query = query.Where("role = ?", string(models.RolePlatform))
	}

	result := query.Updates(map[string]any{
		"balance":    newBalance,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update account balance: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return expectedVersion + 1, nil
	}

	current, err := s.GetAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	if current.Version != expectedVersion {
		return 0, fmt.Errorf("account %s at version %d, expected %d: %w", id, current.Version, expectedVersion, storage.ErrVersionConflict)
	}
	return 0, fmt.Errorf("account %s: %w", id, storage.ErrNegativeBalance)
}

func (s *Store) DeactivateAccount(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&accountRow{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("account %s: %w", id, storage.ErrAccountNotFound)
	}
	return nil
}
