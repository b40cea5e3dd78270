package reconciliations

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mycotrack/wallet-ledger/pkg/api"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/mapping"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/reconciliation"
)

type Reconciler interface {
	ReconcileAccount(ctx context.Context, accountID string) (*models.ReconciliationReport, error)
	ReconcileAll(ctx context.Context) (*reconciliation.Summary, error)
}

type ReconciliationsHandler struct {
	Reconciler Reconciler
	logg       *logger.Logger
}

func NewReconciliationsHandler(reconciler Reconciler, logg *logger.Logger) *ReconciliationsHandler {
	if logg == nil {
		logg = logger.Nop()
	}
	return &ReconciliationsHandler{Reconciler: reconciler, logg: logg}
}

// ReconcileAll runs a full sweep. Per-account failures are reported in the summary.
func (h *ReconciliationsHandler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Reconciler.ReconcileAll(r.Context())
	if summary == nil {
		api.WriteError(w, err)
		return
	}
	if err != nil {
		h.logg.Error(r.Context(), "reconciliation sweep had failures", err)
	}
	api.WriteJSON(w, http.StatusOK, mapping.ToApiReconciliationSummary(summary))
}

func (h *ReconciliationsHandler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reconciler.ReconcileAccount(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, mapping.ToApiReconciliationReport(report))
}
