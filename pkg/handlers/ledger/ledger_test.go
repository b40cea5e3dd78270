package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mycotrack/wallet-ledger/pkg/api"
	"github.com/mycotrack/wallet-ledger/pkg/handlers/ledger"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
	"github.com/mycotrack/wallet-ledger/pkg/storage/mocks"
)

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func history(accountID string, n int) []models.LedgerEntry {
	entries := make([]models.LedgerEntry, n)
	for i := range entries {
		entries[i] = models.LedgerEntry{
			ID:            "entry-" + string(rune('a'+i)),
			AccountID:     accountID,
			Direction:     models.CREDIT,
			Amount:        10,
			BalanceBefore: int64(i * 10),
			BalanceAfter:  int64(i*10 + 10),
			Sequence:      int64(i + 1),
		}
	}
	return entries
}

func seqFrom(entries []models.LedgerEntry, after int64) iter.Seq2[models.LedgerEntry, error] {
	return func(yield func(models.LedgerEntry, error) bool) {
		for _, entry := range entries {
			if entry.Sequence <= after {
				continue
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func TestListAccountEntries(t *testing.T) {
	entries := history("cust-1", 5)

	t.Run("Pages forward", func(t *testing.T) {
		store := mocks.NewLedgerStore(t)
		store.On("ListByAccount", mock.Anything, "cust-1", int64(0)).Return(seqFrom(entries, 0))
		h := ledger.NewLedgerHandler(store)

		req := withURLParams(httptest.NewRequest(http.MethodGet, "/accounts/cust-1/ledger?limit=2", nil), map[string]string{"accountID": "cust-1"})
		rr := httptest.NewRecorder()
		h.ListAccountEntries(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var page api.LedgerPage
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
		require.Len(t, page.Entries, 2)
		assert.Equal(t, int64(1), page.Entries[0].Sequence)
		assert.Equal(t, int64(2), page.NextAfter)
	})

	t.Run("Last page has no cursor", func(t *testing.T) {
		store := mocks.NewLedgerStore(t)
		store.On("ListByAccount", mock.Anything, "cust-1", int64(3)).Return(seqFrom(entries, 3))
		h := ledger.NewLedgerHandler(store)

		req := withURLParams(httptest.NewRequest(http.MethodGet, "/accounts/cust-1/ledger?after=3&limit=2", nil), map[string]string{"accountID": "cust-1"})
		rr := httptest.NewRecorder()
		h.ListAccountEntries(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var page api.LedgerPage
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
		require.Len(t, page.Entries, 2)
		assert.Equal(t, int64(4), page.Entries[0].Sequence)
		assert.Zero(t, page.NextAfter)
	})

	t.Run("Newest first", func(t *testing.T) {
		store := mocks.NewLedgerStore(t)
		store.On("LatestByAccount", mock.Anything, "cust-1", 3).Return([]models.LedgerEntry{entries[4], entries[3], entries[2]}, nil)
		h := ledger.NewLedgerHandler(store)

		req := withURLParams(httptest.NewRequest(http.MethodGet, "/accounts/cust-1/ledger?order=desc&limit=3", nil), map[string]string{"accountID": "cust-1"})
		rr := httptest.NewRecorder()
		h.ListAccountEntries(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var page api.LedgerPage
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
		require.Len(t, page.Entries, 3)
		assert.Equal(t, []int64{5, 4, 3}, []int64{page.Entries[0].Sequence, page.Entries[1].Sequence, page.Entries[2].Sequence})
		store.AssertNotCalled(t, "ListByAccount", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Bad limit", func(t *testing.T) {
		h := ledger.NewLedgerHandler(mocks.NewLedgerStore(t))

		req := withURLParams(httptest.NewRequest(http.MethodGet, "/accounts/cust-1/ledger?limit=0", nil), map[string]string{"accountID": "cust-1"})
		rr := httptest.NewRecorder()
		h.ListAccountEntries(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Read failure", func(t *testing.T) {
		store := mocks.NewLedgerStore(t)
		failing := iter.Seq2[models.LedgerEntry, error](func(yield func(models.LedgerEntry, error) bool) {
			yield(models.LedgerEntry{}, errors.New("disk on fire"))
		})
		store.On("ListByAccount", mock.Anything, "cust-1", int64(0)).Return(failing)
		h := ledger.NewLedgerHandler(store)

		req := withURLParams(httptest.NewRequest(http.MethodGet, "/accounts/cust-1/ledger", nil), map[string]string{"accountID": "cust-1"})
		rr := httptest.NewRecorder()
		h.ListAccountEntries(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestListLedgerEntries(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		store := mocks.NewLedgerStore(t)
		expectedEntries := []models.LedgerEntry{
			{ID: "entry-2", CreatedAt: time.Now()},
			{ID: "entry-1", CreatedAt: time.Now().Add(-1 * time.Minute)},
		}
		store.On("ListRecent", mock.Anything, storage.LedgerFilter{Limit: 20}).Return(expectedEntries, nil)
		h := ledger.NewLedgerHandler(store)

		rr := httptest.NewRecorder()
		h.ListLedgerEntries(rr, httptest.NewRequest(http.MethodGet, "/ledger?limit=20", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var returned []api.LedgerEntry
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &returned))
		require.Len(t, returned, 2)
		assert.Equal(t, "entry-2", returned[0].ID)
	})

	t.Run("Storage failure", func(t *testing.T) {
		store := mocks.NewLedgerStore(t)
		store.On("ListRecent", mock.Anything, storage.LedgerFilter{Limit: 50}).Return(nil, errors.New("db error"))
		h := ledger.NewLedgerHandler(store)

		rr := httptest.NewRecorder()
		h.ListLedgerEntries(rr, httptest.NewRequest(http.MethodGet, "/ledger", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("Role and dates", func(t *testing.T) {
		store := mocks.NewLedgerStore(t)
		want := storage.LedgerFilter{
			Role:  models.RoleFarmer,
			Since: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			Until: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			Limit: 50,
		}
		store.On("ListRecent", mock.Anything, want).Return([]models.LedgerEntry{{ID: "entry-1"}}, nil)
		h := ledger.NewLedgerHandler(store)

		rr := httptest.NewRecorder()
		h.ListLedgerEntries(rr, httptest.NewRequest(http.MethodGet, "/ledger?role=farmer&start_date=2026-03-01&end_date=2026-03-31", nil))

		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Timestamp window", func(t *testing.T) {
		store := mocks.NewLedgerStore(t)
		since := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		store.On("ListRecent", mock.Anything, mock.MatchedBy(func(f storage.LedgerFilter) bool {
			return f.Since.Equal(since) && f.Until.Equal(since.Add(time.Hour+time.Nanosecond))
		})).Return([]models.LedgerEntry{}, nil)
		h := ledger.NewLedgerHandler(store)

		rr := httptest.NewRecorder()
		h.ListLedgerEntries(rr, httptest.NewRequest(http.MethodGet, "/ledger?start_date=2026-03-01T08:00:00Z&end_date=2026-03-01T09:00:00Z", nil))

		require.Equal(t, http.StatusOK, rr.Code)
	})

	rejected := map[string]string{
		"unknown role":     "/ledger?role=admin",
		"bad date":         "/ledger?start_date=yesterday",
		"inverted window":  "/ledger?start_date=2026-03-02&end_date=2026-03-01",
		"limit over bound": "/ledger?limit=501",
	}
	for name, target := range rejected {
		t.Run(name, func(t *testing.T) {
			h := ledger.NewLedgerHandler(mocks.NewLedgerStore(t))

			rr := httptest.NewRecorder()
			h.ListLedgerEntries(rr, httptest.NewRequest(http.MethodGet, target, nil))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestGetByReference(t *testing.T) {
	batch := []models.LedgerEntry{
		{TransactionID: "tx-1", AccountID: "cust-1", Direction: models.DEBIT, Amount: 30, BalanceBefore: 100, BalanceAfter: 70, Reference: "order-1", Kind: models.KindPayment, Description: "Payment for order order-1"},
		{TransactionID: "tx-1", AccountID: "farm-1", Direction: models.CREDIT, Amount: 30, BalanceBefore: 0, BalanceAfter: 30, Reference: "order-1", Kind: models.KindPayment, Description: "Payment for order order-1"},
	}

	t.Run("Found", func(t *testing.T) {
		store := mocks.NewLedgerStore(t)
		store.On("FindByReference", mock.Anything, "order-1", models.KindPayment).Return(batch, nil)
		h := ledger.NewLedgerHandler(store)

		req := withURLParams(httptest.NewRequest(http.MethodGet, "/ledger/references/payment/order-1", nil), map[string]string{"kind": "payment", "reference": "order-1"})
		rr := httptest.NewRecorder()
		h.GetByReference(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var lookup api.ReferenceLookup
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lookup))
		assert.Equal(t, "tx-1", lookup.Transfer.TransactionID)
		assert.Equal(t, "cust-1", lookup.Transfer.FromAccountID)
		assert.Equal(t, int64(70), lookup.Transfer.FromBalance)
		assert.Len(t, lookup.Entries, 2)
	})

	t.Run("Not settled", func(t *testing.T) {
		store := mocks.NewLedgerStore(t)
		store.On("FindByReference", mock.Anything, "order-2", models.KindRefund).Return([]models.LedgerEntry{}, nil)
		h := ledger.NewLedgerHandler(store)

		req := withURLParams(httptest.NewRequest(http.MethodGet, "/ledger/references/refund/order-2", nil), map[string]string{"kind": "refund", "reference": "order-2"})
		rr := httptest.NewRecorder()
		h.GetByReference(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Unknown kind", func(t *testing.T) {
		h := ledger.NewLedgerHandler(mocks.NewLedgerStore(t))

		req := withURLParams(httptest.NewRequest(http.MethodGet, "/ledger/references/bogus/order-1", nil), map[string]string{"kind": "bogus", "reference": "order-1"})
		rr := httptest.NewRecorder()
		h.GetByReference(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
