package transfers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mycotrack/wallet-ledger/pkg/api"
	"github.com/mycotrack/wallet-ledger/pkg/mapping"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/scheduler"
	"github.com/mycotrack/wallet-ledger/pkg/transfer"
)

// Coordinator is the part of transfer.Coordinator the handlers use.
type Coordinator interface {
	Transfer(ctx context.Context, req transfer.Request) (*models.TransferResult, error)
	TopUp(ctx context.Context, reference, accountID string, amount int64, description string, metadata map[string]string) (*models.TransferResult, error)
	Withdraw(ctx context.Context, reference, accountID string, amount int64, description string, metadata map[string]string) (*models.TransferResult, error)
	Refund(ctx context.Context, orderID, farmerID, customerID string, amount int64, description string) (*models.TransferResult, error)
}

// TransfersHandler holds the dependencies for transfer-related handlers. Scheduler may be nil, in
// which case asynchronous submission is unavailable.
type TransfersHandler struct {
	Coordinator Coordinator
	Scheduler   scheduler.Scheduler
}

func NewTransfersHandler(coordinator Coordinator, sched scheduler.Scheduler) *TransfersHandler {
	return &TransfersHandler{Coordinator: coordinator, Scheduler: sched}
}

// CreateTransfer settles a transfer synchronously. A replay of a settled reference answers 200 with
// the original result; a fresh settlement answers 201.
func (h *TransfersHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var newTransfer api.NewTransfer
	if err := api.Decode(r, &newTransfer); err != nil {
		api.WriteError(w, err)
		return
	}

	result, err := h.Coordinator.Transfer(r.Context(), mapping.ToTransferRequest(&newTransfer))
	h.respond(w, result, err)
}

// ScheduleTransfer hands the transfer to the settlement queue.
func (h *TransfersHandler) ScheduleTransfer(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		api.WriteJSON(w, http.StatusServiceUnavailable, api.Error{Code: "SCHEDULER_DISABLED", Message: "asynchronous transfers are not configured"})
		return
	}

	var newTransfer api.NewTransfer
	if err := api.Decode(r, &newTransfer); err != nil {
		api.WriteError(w, err)
		return
	}

	req := mapping.ToTransferRequest(&newTransfer)
	if req.Kind == "" {
		req.Kind = models.KindPayment
	}
	if err := h.Scheduler.ScheduleTransfer(r.Context(), &req); err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusAccepted, api.ScheduledTransfer{
		Reference: req.Reference,
		Kind:      string(req.Kind),
		Status:    "queued",
	})
}

func (h *TransfersHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	var body api.FundsMovement
	if err := api.Decode(r, &body); err != nil {
		api.WriteError(w, err)
		return
	}

	result, err := h.Coordinator.TopUp(r.Context(), body.Reference, chi.URLParam(r, "accountID"), body.Amount, body.Description, body.Metadata)
	h.respond(w, result, err)
}

func (h *TransfersHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var body api.FundsMovement
	if err := api.Decode(r, &body); err != nil {
		api.WriteError(w, err)
		return
	}

	result, err := h.Coordinator.Withdraw(r.Context(), body.Reference, chi.URLParam(r, "accountID"), body.Amount, body.Description, body.Metadata)
	h.respond(w, result, err)
}

func (h *TransfersHandler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var body api.NewRefund
	if err := api.Decode(r, &body); err != nil {
		api.WriteError(w, err)
		return
	}

	result, err := h.Coordinator.Refund(r.Context(), body.OrderID, body.FarmerID, body.CustomerID, body.Amount, body.Description)
	h.respond(w, result, err)
}

func (h *TransfersHandler) respond(w http.ResponseWriter, result *models.TransferResult, err error) {
	if err != nil {
		api.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	api.WriteJSON(w, status, mapping.ToApiTransfer(result))
}
