package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycotrack/wallet-ledger/pkg/api"
	"github.com/mycotrack/wallet-ledger/pkg/lock"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/reconciliation"
	"github.com/mycotrack/wallet-ledger/pkg/storage/filestore"
	"github.com/mycotrack/wallet-ledger/pkg/transfer"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := filestore.Open(t.TempDir())
	require.NoError(t, err)

	reconciler, err := reconciliation.NewService(reconciliation.Dependencies{
		Accounts: store,
		Ledger:   store,
		Logger:   logger.Nop(),
	}, reconciliation.Options{})
	require.NoError(t, err)

	coordinator, err := transfer.NewCoordinator(transfer.Dependencies{
		Accounts: store,
		Ledger:   store,
		Locker:   lock.NewLocal(),
		Repairer: reconciler,
		Logger:   logger.Nop(),
	}, transfer.Options{AppendAttempts: 3, LockTimeout: time.Second})
	require.NoError(t, err)
	_, err = coordinator.EnsurePlatformAccount(context.Background())
	require.NoError(t, err)

	return NewRouter(Dependencies{
		Accounts:    store,
		Ledger:      store,
		Coordinator: coordinator,
		Reconciler:  reconciler,
		Logger:      logger.Nop(),
	})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(method, path, &payload))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestRouter_PaymentLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	for _, account := range []api.NewAccount{
		{ID: "cust-1", Role: "customer", Name: "Ani"},
		{ID: "farm-1", Role: "farmer", Name: "Budi"},
	} {
		rr = do(t, router, http.MethodPost, "/accounts", account)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr = do(t, router, http.MethodPost, "/accounts/cust-1/topup", api.FundsMovement{Reference: "tu-1", Amount: 1000})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	topUp := decode[api.Transfer](t, rr)
	assert.Equal(t, "Top up via QRIS", topUp.Description)
	assert.Equal(t, int64(1000), topUp.ToBalance)

	payment := api.NewTransfer{Reference: "order-1", FromAccountID: "cust-1", ToAccountID: "farm-1", Amount: 250}
	rr = do(t, router, http.MethodPost, "/transfers", payment)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	settled := decode[api.Transfer](t, rr)
	assert.Equal(t, int64(750), settled.FromBalance)
	assert.Equal(t, int64(250), settled.ToBalance)

	t.Run("Replay returns the original settlement", func(t *testing.T) {
		rr := do(t, router, http.MethodPost, "/transfers", payment)
		require.Equal(t, http.StatusOK, rr.Code)
		replayed := decode[api.Transfer](t, rr)
		assert.True(t, replayed.Replayed)
		assert.Equal(t, settled.TransactionID, replayed.TransactionID)
	})

	t.Run("Overdraft is rejected", func(t *testing.T) {
		rr := do(t, router, http.MethodPost, "/transfers", api.NewTransfer{Reference: "order-2", FromAccountID: "cust-1", ToAccountID: "farm-1", Amount: 5000})
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "INSUFFICIENT_FUNDS", decode[api.Error](t, rr).Code)
	})

	t.Run("Balances", func(t *testing.T) {
		rr := do(t, router, http.MethodGet, "/accounts/cust-1", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, int64(750), decode[api.Account](t, rr).Balance)

		rr = do(t, router, http.MethodGet, "/accounts/platform", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, int64(-1000), decode[api.Account](t, rr).Balance)
	})

	t.Run("Account history", func(t *testing.T) {
		rr := do(t, router, http.MethodGet, "/accounts/cust-1/ledger", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		page := decode[api.LedgerPage](t, rr)
		require.Len(t, page.Entries, 2)
		assert.Equal(t, "credit", page.Entries[0].Direction)
		assert.Equal(t, "debit", page.Entries[1].Direction)
		assert.Equal(t, page.Entries[0].BalanceAfter, page.Entries[1].BalanceBefore)
	})

	t.Run("Reference lookup", func(t *testing.T) {
		rr := do(t, router, http.MethodGet, "/ledger/references/payment/order-1", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		lookup := decode[api.ReferenceLookup](t, rr)
		assert.Equal(t, settled.TransactionID, lookup.Transfer.TransactionID)

		rr = do(t, router, http.MethodGet, "/ledger/references/refund/order-1", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Reconciliation finds nothing to repair", func(t *testing.T) {
		rr := do(t, router, http.MethodPost, "/reconciliations", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		summary := decode[api.ReconciliationSummary](t, rr)
		assert.Equal(t, 3, summary.Checked)
		assert.Equal(t, 3, summary.InSync)
	})

	t.Run("Deactivated accounts stop transacting", func(t *testing.T) {
		rr := do(t, router, http.MethodDelete, "/accounts/farm-1", nil)
		require.Equal(t, http.StatusNoContent, rr.Code)

		rr = do(t, router, http.MethodPost, "/transfers", api.NewTransfer{Reference: "order-3", FromAccountID: "cust-1", ToAccountID: "farm-1", Amount: 10})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("Async submission is disabled without a queue", func(t *testing.T) {
		rr := do(t, router, http.MethodPost, "/transfers/async", payment)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}
