// Package handlers wires the HTTP API onto a chi router.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mycotrack/wallet-ledger/pkg/handlers/accounts"
	"github.com/mycotrack/wallet-ledger/pkg/handlers/ledger"
	"github.com/mycotrack/wallet-ledger/pkg/handlers/reconciliations"
	"github.com/mycotrack/wallet-ledger/pkg/handlers/transfers"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/middleware"
	"github.com/mycotrack/wallet-ledger/pkg/scheduler"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

// Dependencies for the API. Scheduler and Metrics are optional.
type Dependencies struct {
	Accounts    storage.AccountStore
	Ledger      storage.LedgerReader
	Coordinator transfers.Coordinator
	Scheduler   scheduler.Scheduler
	Reconciler  reconciliations.Reconciler
	Metrics     http.Handler
	Logger      *logger.Logger
}

// NewRouter builds the API router.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	accountsHandler := accounts.NewAccountsHandler(deps.Accounts)
	transfersHandler := transfers.NewTransfersHandler(deps.Coordinator, deps.Scheduler)
	ledgerHandler := ledger.NewLedgerHandler(deps.Ledger)
	reconciliationsHandler := reconciliations.NewReconciliationsHandler(deps.Reconciler, deps.Logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.NewStructuredLogger(deps.Logger))
	router.Use(chimiddleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	router.Route("/accounts", func(r chi.Router) {
		r.Post("/", accountsHandler.CreateAccount)
		r.Get("/", accountsHandler.ListAccounts)
		r.Route("/{accountID}", func(r chi.Router) {
			r.Get("/", accountsHandler.GetAccount)
			r.Delete("/", accountsHandler.DeactivateAccount)
			r.Post("/topup", transfersHandler.TopUp)
			r.Post("/withdraw", transfersHandler.Withdraw)
			r.Get("/ledger", ledgerHandler.ListAccountEntries)
			r.Post("/reconcile", reconciliationsHandler.ReconcileAccount)
		})
	})

	router.Post("/transfers", transfersHandler.CreateTransfer)
	router.Post("/transfers/async", transfersHandler.ScheduleTransfer)
	router.Post("/refunds", transfersHandler.CreateRefund)

	router.Get("/ledger", ledgerHandler.ListLedgerEntries)
	router.Get("/ledger/references/{kind}/{reference}", ledgerHandler.GetByReference)

	router.Post("/reconciliations", reconciliationsHandler.ReconcileAll)

	return router
}
