package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage/mocks"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var orderRef = models.Reference{ID: "order-1", Kind: models.KindPayment}

func settledEntries() []models.LedgerEntry {
	return []models.LedgerEntry{
		{ID: "e-1", TransactionID: "tx-1", AccountID: "cust-1", Direction: models.DEBIT, Amount: 300,
			BalanceBefore: 1000, BalanceAfter: 700, Reference: "order-1", Kind: models.KindPayment, Description: "Order order-1"},
		{ID: "e-2", TransactionID: "tx-1", AccountID: "farmer-1", Direction: models.CREDIT, Amount: 300,
			BalanceBefore: 0, BalanceAfter: 300, Reference: "order-1", Kind: models.KindPayment, Description: "Order order-1"},
	}
}

func TestGuardLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("Settled In Ledger", func(t *testing.T) {
		ledger := mocks.NewLedgerStore(t)
		ledger.On("FindByReference", mock.Anything, "order-1", models.KindPayment).Return(settledEntries(), nil).Once()
		guard := NewGuard(ledger, NewMemoryCache(10, time.Minute), nil)

		settled, prior, err := guard.Lookup(ctx, orderRef)
		require.NoError(t, err)
		assert.True(t, settled)
		assert.Equal(t, "tx-1", prior.TransactionID)
		assert.Equal(t, int64(700), prior.FromBalance)
		assert.Equal(t, int64(300), prior.ToBalance)

		// Second lookup is served from the cache.
		settled, _, err = guard.Lookup(ctx, orderRef)
		require.NoError(t, err)
		assert.True(t, settled)
	})

	t.Run("Not Settled", func(t *testing.T) {
		ledger := mocks.NewLedgerStore(t)
		ledger.On("FindByReference", mock.Anything, "order-1", models.KindPayment).Return([]models.LedgerEntry{}, nil).Twice()
		guard := NewGuard(ledger, NewMemoryCache(10, time.Minute), nil)

		for i := 0; i < 2; i++ {
			settled, prior, err := guard.Lookup(ctx, orderRef)
			require.NoError(t, err)
			assert.False(t, settled)
			assert.Nil(t, prior)
		}
	})

	t.Run("Ledger Error", func(t *testing.T) {
		ledger := mocks.NewLedgerStore(t)
		ledger.On("FindByReference", mock.Anything, "order-1", models.KindPayment).Return(nil, errors.New("disk gone"))
		guard := NewGuard(ledger, nil, nil)

		_, _, err := guard.Lookup(ctx, orderRef)
		assert.ErrorContains(t, err, "disk gone")
	})

	t.Run("Cache Failure Falls Through", func(t *testing.T) {
		ledger := mocks.NewLedgerStore(t)
		ledger.On("FindByReference", mock.Anything, "order-1", models.KindPayment).Return(settledEntries(), nil)
		store := newFakeStore()
		store.getErr = errors.New("redis down")
		cache, err := NewRedisCache(store, time.Hour)
		require.NoError(t, err)
		guard := NewGuard(ledger, cache, nil)

		settled, prior, err := guard.Lookup(ctx, orderRef)
		require.NoError(t, err)
		assert.True(t, settled)
		assert.Equal(t, "tx-1", prior.TransactionID)
	})
}

func TestGuardCheckAndReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("Reserves Unsettled Key", func(t *testing.T) {
		ledger := mocks.NewLedgerStore(t)
		ledger.On("FindByReference", mock.Anything, "order-1", models.KindPayment).Return([]models.LedgerEntry{}, nil)
		guard := NewGuard(ledger, nil, nil)

		settled, prior, release, err := guard.CheckAndReserve(ctx, orderRef)
		require.NoError(t, err)
		assert.False(t, settled)
		assert.Nil(t, prior)
		require.NotNil(t, release)
		release()
		release()
	})

	t.Run("Waiter Sees Holder Result", func(t *testing.T) {
		ledger := mocks.NewLedgerStore(t)
		var mu sync.Mutex
		written := false
		ledger.On("FindByReference", mock.Anything, "order-1", models.KindPayment).Return(
			func(context.Context, string, models.Kind) ([]models.LedgerEntry, error) {
				mu.Lock()
				defer mu.Unlock()
				if written {
					return settledEntries(), nil
				}
				return []models.LedgerEntry{}, nil
			})
		guard := NewGuard(ledger, nil, nil)

		_, _, release, err := guard.CheckAndReserve(ctx, orderRef)
		require.NoError(t, err)

		type outcome struct {
			settled bool
			prior   *models.TransferResult
			err     error
		}
		done := make(chan outcome, 1)
		go func() {
			settled, prior, _, err := guard.CheckAndReserve(ctx, orderRef)
			done <- outcome{settled, prior, err}
		}()

		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		written = true
		mu.Unlock()
		release()

		got := <-done
		require.NoError(t, got.err)
		assert.True(t, got.settled)
		assert.Equal(t, "tx-1", got.prior.TransactionID)
	})

	t.Run("Waiter Honors Context", func(t *testing.T) {
		ledger := mocks.NewLedgerStore(t)
		ledger.On("FindByReference", mock.Anything, "order-1", models.KindPayment).Return([]models.LedgerEntry{}, nil)
		guard := NewGuard(ledger, nil, nil)

		_, _, release, err := guard.CheckAndReserve(ctx, orderRef)
		require.NoError(t, err)
		defer release()

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, _, _, err = guard.CheckAndReserve(waitCtx, orderRef)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Different Kinds Are Independent", func(t *testing.T) {
		ledger := mocks.NewLedgerStore(t)
		ledger.On("FindByReference", mock.Anything, "order-1", mock.Anything).Return([]models.LedgerEntry{}, nil)
		guard := NewGuard(ledger, nil, nil)

		_, _, releasePayment, err := guard.CheckAndReserve(ctx, orderRef)
		require.NoError(t, err)
		defer releasePayment()

		_, _, releaseRefund, err := guard.CheckAndReserve(ctx, models.Reference{ID: "order-1", Kind: models.KindRefund})
		require.NoError(t, err)
		releaseRefund()
	})
}

func TestGuardRememberClearsCallFlags(t *testing.T) {
	ledger := mocks.NewLedgerStore(t)
	cache := NewMemoryCache(10, time.Minute)
	guard := NewGuard(ledger, cache, nil)

	guard.Remember(context.Background(), orderRef, &models.TransferResult{TransactionID: "tx-1", Deferred: true, Replayed: true})

	settled, prior, err := guard.Lookup(context.Background(), orderRef)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.False(t, prior.Deferred)
	assert.False(t, prior.Replayed)
}

type fakeStore struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = string(value.([]byte))
	return nil
}

func (f *fakeStore) IdempotencyKey(reference string) string {
	return "test:idempotency:" + reference
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	cache, err := NewRedisCache(store, time.Hour)
	require.NoError(t, err)

	_, ok, err := cache.Get(ctx, "payment:order-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, "payment:order-1", &models.TransferResult{TransactionID: "tx-1", Amount: 300}))
	assert.Contains(t, store.values, "test:idempotency:payment:order-1")

	got, ok, err := cache.Get(ctx, "payment:order-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(300), got.Amount)

	_, err = NewRedisCache(nil, time.Hour)
	assert.Error(t, err)
}

func TestMemoryCacheBounded(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(2, 0)
	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Put(ctx, key, &models.TransferResult{TransactionID: key}))
	}

	_, ok, _ := cache.Get(ctx, "a")
	assert.False(t, ok)
	got, ok, _ := cache.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, "c", got.TransactionID)
}
