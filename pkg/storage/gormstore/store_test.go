package gormstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := New(conn)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func batch(txID, reference string, kind models.Kind, from, to string, amount, fromBefore, toBefore int64) []models.LedgerEntry {
	return []models.LedgerEntry{
		{ID: uuid.NewString(), TransactionID: txID, AccountID: from, Direction: models.DEBIT, Amount: amount,
			BalanceBefore: fromBefore, BalanceAfter: fromBefore - amount, Reference: reference, Kind: kind,
			Metadata: map[string]string{"channel": "checkout"}},
		{ID: uuid.NewString(), TransactionID: txID, AccountID: to, Direction: models.CREDIT, Amount: amount,
			BalanceBefore: toBefore, BalanceAfter: toBefore + amount, Reference: reference, Kind: kind},
	}
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("Create And Get", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CreateAccount(ctx, &models.Account{ID: "cust-1", Role: models.RoleCustomer, Name: "Ada", Balance: 50})
		require.NoError(t, err)

		account, err := store.GetAccount(ctx, "cust-1")
		require.NoError(t, err)
		assert.Equal(t, models.RoleCustomer, account.Role)
		assert.Equal(t, int64(0), account.Balance)
		assert.True(t, account.Active)
	})

	t.Run("Duplicate", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CreateAccount(ctx, &models.Account{ID: "cust-1", Role: models.RoleCustomer})
		require.NoError(t, err)

		_, err = store.CreateAccount(ctx, &models.Account{ID: "cust-1", Role: models.RoleCustomer})
		assert.ErrorIs(t, err, storage.ErrAccountExists)
	})

	t.Run("Not Found", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.GetAccount(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
		assert.ErrorIs(t, store.DeactivateAccount(ctx, "missing"), storage.ErrAccountNotFound)
	})

	t.Run("Compare And Update", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CreateAccount(ctx, &models.Account{ID: "cust-1", Role: models.RoleCustomer})
		require.NoError(t, err)

		version, err := store.CompareAndUpdateBalance(ctx, "cust-1", 0, 400)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)

		_, err = store.CompareAndUpdateBalance(ctx, "cust-1", 0, 900)
		assert.ErrorIs(t, err, storage.ErrVersionConflict)

		_, err = store.CompareAndUpdateBalance(ctx, "cust-1", 1, -10)
		assert.ErrorIs(t, err, storage.ErrNegativeBalance)

		account, err := store.GetAccount(ctx, "cust-1")
		require.NoError(t, err)
		assert.Equal(t, int64(400), account.Balance)
		assert.Equal(t, int64(1), account.Version)
	})

	t.Run("Platform Negative", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CreateAccount(ctx, &models.Account{ID: "platform", Role: models.RolePlatform})
		require.NoError(t, err)

		version, err := store.CompareAndUpdateBalance(ctx, "platform", 0, -1000)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
	})

	t.Run("List And Deactivate", func(t *testing.T) {
		store := newTestStore(t)
		for _, id := range []string{"farmer-1", "cust-1"} {
			_, err := store.CreateAccount(ctx, &models.Account{ID: id, Role: models.RoleCustomer})
			require.NoError(t, err)
		}
		require.NoError(t, store.DeactivateAccount(ctx, "farmer-1"))

		accounts, err := store.ListAccounts(ctx)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, "cust-1", accounts[0].ID)
		assert.False(t, accounts[1].Active)
	})
}

func TestLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("Append Assigns Sequences", func(t *testing.T) {
		store := newTestStore(t)
		entries := batch("tx-1", "order-1", models.KindPayment, "cust-1", "farmer-1", 300, 1000, 0)

		require.NoError(t, store.Append(ctx, entries))
		assert.Equal(t, int64(1), entries[0].Sequence)
		assert.Equal(t, int64(2), entries[1].Sequence)

		found, err := store.FindByReference(ctx, "order-1", models.KindPayment)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "checkout", found[0].Metadata["channel"])
	})

	t.Run("Duplicate Reference", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Append(ctx, batch("tx-1", "order-1", models.KindPayment, "cust-1", "farmer-1", 300, 1000, 0)))

		err := store.Append(ctx, batch("tx-2", "order-1", models.KindPayment, "cust-1", "farmer-1", 300, 700, 300))
		assert.ErrorIs(t, err, storage.ErrDuplicateReference)

		require.NoError(t, store.Append(ctx, batch("tx-3", "order-1", models.KindRefund, "farmer-1", "cust-1", 300, 300, 700)))
	})

	t.Run("Invalid Batch", func(t *testing.T) {
		store := newTestStore(t)
		entries := batch("tx-1", "order-1", models.KindPayment, "cust-1", "farmer-1", 300, 1000, 0)
		entries[1].TransactionID = "tx-other"

		assert.ErrorIs(t, store.Append(ctx, entries), storage.ErrInvalidBatch)
	})

	t.Run("List By Account And Recent", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Append(ctx, batch("tx-1", "order-1", models.KindPayment, "cust-1", "farmer-1", 300, 1000, 0)))
		require.NoError(t, store.Append(ctx, batch("tx-2", "order-2", models.KindPayment, "cust-2", "farmer-1", 100, 100, 300)))
		require.NoError(t, store.Append(ctx, batch("tx-3", "order-3", models.KindPayment, "cust-1", "farmer-2", 200, 700, 0)))

		var seqs []int64
		for e, err := range store.ListByAccount(ctx, "cust-1", 0) {
			require.NoError(t, err)
			seqs = append(seqs, e.Sequence)
		}
		assert.Equal(t, []int64{1, 5}, seqs)

		var rest []models.LedgerEntry
		for e, err := range store.ListByAccount(ctx, "farmer-1", 2) {
			require.NoError(t, err)
			rest = append(rest, e)
		}
		require.Len(t, rest, 1)
		assert.Equal(t, "tx-2", rest[0].TransactionID)

		recent, err := store.ListRecent(ctx, storage.LedgerFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, int64(6), recent[0].Sequence)

		latest, err := store.LatestByAccount(ctx, "farmer-1", 1)
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.Equal(t, "tx-2", latest[0].TransactionID)
		assert.Equal(t, int64(400), latest[0].BalanceAfter)
	})

	t.Run("Recent Filters", func(t *testing.T) {
		store := newTestStore(t)
		day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		first := batch("tx-1", "order-1", models.KindPayment, "cust-1", "farmer-1", 300, 1000, 0)
		second := batch("tx-2", "order-2", models.KindPayment, "cust-1", "farmer-1", 100, 700, 300)
		for i := range first {
			first[i].CreatedAt = day
			second[i].CreatedAt = day.AddDate(0, 0, 2)
		}
		first[0].Role, first[1].Role = models.RoleCustomer, models.RoleFarmer
		second[0].Role, second[1].Role = models.RoleCustomer, models.RoleFarmer
		require.NoError(t, store.Append(ctx, first))
		require.NoError(t, store.Append(ctx, second))

		farmers, err := store.ListRecent(ctx, storage.LedgerFilter{Role: models.RoleFarmer})
		require.NoError(t, err)
		require.Len(t, farmers, 2)
		assert.Equal(t, "tx-2", farmers[0].TransactionID)

		window, err := store.ListRecent(ctx, storage.LedgerFilter{Since: day.AddDate(0, 0, 1), Until: day.AddDate(0, 0, 3)})
		require.NoError(t, err)
		require.Len(t, window, 2)
		for _, e := range window {
			assert.Equal(t, "tx-2", e.TransactionID)
		}
	})
}
