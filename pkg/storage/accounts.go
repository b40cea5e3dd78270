package storage

import (
	"context"

	"github.com/mycotrack/wallet-ledger/pkg/models"
)

// AccountReader defines read access to account records.
type AccountReader interface {
	// GetAccount retrieves an account by id. It returns ErrAccountNotFound if the account does not exist.
	GetAccount(ctx context.Context, id string) (*models.Account, error)

	// ListAccounts retrieves every registered account, active or not.
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

// AccountStore defines the interface for managing account balance records.
type AccountStore interface {
	AccountReader

	// CreateAccount registers a new account with a zero balance and version.
	CreateAccount(ctx context.Context, account *models.Account) (*models.Account, error)

	// CompareAndUpdateBalance replaces the balance if and only if the stored version equals expectedVersion.
	// On success the version is incremented and returned; the write is durable before this returns.
	CompareAndUpdateBalance(ctx context.Context, id string, expectedVersion, newBalance int64) (int64, error)

	// DeactivateAccount marks an account inactive. Accounts are never deleted.
	DeactivateAccount(ctx context.Context, id string) error
}
