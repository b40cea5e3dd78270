package reconciliations_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mycotrack/wallet-ledger/pkg/api"
	"github.com/mycotrack/wallet-ledger/pkg/handlers/reconciliations"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/reconciliation"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) ReconcileAccount(ctx context.Context, accountID string) (*models.ReconciliationReport, error) {
	args := m.Called(ctx, accountID)
	report, _ := args.Get(0).(*models.ReconciliationReport)
	return report, args.Error(1)
}

func (m *mockReconciler) ReconcileAll(ctx context.Context) (*reconciliation.Summary, error) {
	args := m.Called(ctx)
	summary, _ := args.Get(0).(*reconciliation.Summary)
	return summary, args.Error(1)
}

func TestReconcileAccount(t *testing.T) {
	t.Run("Repaired", func(t *testing.T) {
		reconciler := new(mockReconciler)
		reconciler.On("ReconcileAccount", mock.Anything, "cust-1").Return(&models.ReconciliationReport{
			AccountID:     "cust-1",
			StoredBalance: 0,
			LedgerBalance: 40,
			EntryCount:    1,
			Outcome:       models.OutcomeRepaired,
		}, nil)
		h := reconciliations.NewReconciliationsHandler(reconciler, logger.Nop())

		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("accountID", "cust-1")
		req := httptest.NewRequest(http.MethodPost, "/accounts/cust-1/reconcile", nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rr := httptest.NewRecorder()
		h.ReconcileAccount(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var report api.ReconciliationReport
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
		assert.Equal(t, "repaired", report.Outcome)
		assert.Equal(t, int64(40), report.LedgerBalance)
		reconciler.AssertExpectations(t)
	})

	t.Run("Unknown account", func(t *testing.T) {
		reconciler := new(mockReconciler)
		reconciler.On("ReconcileAccount", mock.Anything, "ghost").Return(nil, storage.ErrAccountNotFound)
		h := reconciliations.NewReconciliationsHandler(reconciler, nil)

		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("accountID", "ghost")
		req := httptest.NewRequest(http.MethodPost, "/accounts/ghost/reconcile", nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rr := httptest.NewRecorder()
		h.ReconcileAccount(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestReconcileAll(t *testing.T) {
	t.Run("Partial failure still reports", func(t *testing.T) {
		reconciler := new(mockReconciler)
		reconciler.On("ReconcileAll", mock.Anything).Return(&reconciliation.Summary{
			Checked: 3,
			InSync:  2,
			Failed:  1,
			Reports: []models.ReconciliationReport{{AccountID: "a"}, {AccountID: "b"}},
		}, errors.New("account c: version conflict"))
		h := reconciliations.NewReconciliationsHandler(reconciler, logger.Nop())

		rr := httptest.NewRecorder()
		h.ReconcileAll(rr, httptest.NewRequest(http.MethodPost, "/reconciliations", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var summary api.ReconciliationSummary
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
		assert.Equal(t, 3, summary.Checked)
		assert.Equal(t, 1, summary.Failed)
		assert.Len(t, summary.Reports, 2)
	})

	t.Run("Listing failure", func(t *testing.T) {
		reconciler := new(mockReconciler)
		reconciler.On("ReconcileAll", mock.Anything).Return(nil, errors.New("store down"))
		h := reconciliations.NewReconciliationsHandler(reconciler, logger.Nop())

		rr := httptest.NewRecorder()
		h.ReconcileAll(rr, httptest.NewRequest(http.MethodPost, "/reconciliations", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
