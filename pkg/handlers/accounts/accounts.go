package accounts

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/mycotrack/wallet-ledger/pkg/api"
	"github.com/mycotrack/wallet-ledger/pkg/mapping"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

// AccountsHandler holds the dependencies for account-related handlers.
type AccountsHandler struct {
	Store storage.AccountStore
}

// NewAccountsHandler creates a new AccountsHandler.
func NewAccountsHandler(store storage.AccountStore) *AccountsHandler {
	return &AccountsHandler{Store: store}
}

// CreateAccount registers a customer or farmer account with a zero balance.
func (h *AccountsHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var newAccount api.NewAccount
	if err := api.Decode(r, &newAccount); err != nil {
		api.WriteError(w, err)
		return
	}

	created, err := h.Store.CreateAccount(r.Context(), mapping.ToDomainNewAccount(&newAccount))
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusCreated, mapping.ToApiAccount(created))
}

// ListAccounts returns every account, newest first.
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	domainAccounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		api.WriteError(w, err)
		return
	}

	sort.SliceStable(domainAccounts, func(i, j int) bool {
		return domainAccounts[i].CreatedAt.After(domainAccounts[j].CreatedAt)
	})

	apiAccounts := make([]*api.Account, len(domainAccounts))
	for i := range domainAccounts {
		apiAccounts[i] = mapping.ToApiAccount(&domainAccounts[i])
	}
	api.WriteJSON(w, http.StatusOK, apiAccounts)
}

func (h *AccountsHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.Store.GetAccount(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, mapping.ToApiAccount(account))
}

// DeactivateAccount stops an account from taking part in new transfers. Its history stays.
func (h *AccountsHandler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeactivateAccount(r.Context(), chi.URLParam(r, "accountID")); err != nil {
		api.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
