package ledger

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mycotrack/wallet-ledger/pkg/api"
	"github.com/mycotrack/wallet-ledger/pkg/mapping"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// LedgerHandler holds the dependencies for ledger-related handlers.
type LedgerHandler struct {
	Store storage.LedgerReader
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(store storage.LedgerReader) *LedgerHandler {
	return &LedgerHandler{Store: store}
}

// ListAccountEntries pages through one account's history. By default pages run oldest first from the
// after cursor; order=desc returns the latest limit entries, newest first.
func (h *LedgerHandler) ListAccountEntries(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	limit, err := parseLimit(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	if r.URL.Query().Get("order") == "desc" {
		h.listLatest(w, r, accountID, limit)
		return
	}

	after, err := parseInt(r, "after", 0)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	entries := make([]models.LedgerEntry, 0, limit)
	page := api.LedgerPage{}
	for entry, err := range h.Store.ListByAccount(r.Context(), accountID, after) {
		if err != nil {
			api.WriteError(w, fmt.Errorf("failed to read ledger: %w", err))
			return
		}
		if len(entries) == limit {
			page.NextAfter = entries[limit-1].Sequence
			break
		}
		entries = append(entries, entry)
	}

	page.Entries = mapping.ToApiLedgerEntries(entries)
	api.WriteJSON(w, http.StatusOK, page)
}

func (h *LedgerHandler) listLatest(w http.ResponseWriter, r *http.Request, accountID string, limit int) {
	entries, err := h.Store.LatestByAccount(r.Context(), accountID, limit)
	if err != nil {
		api.WriteError(w, fmt.Errorf("failed to read ledger: %w", err))
		return
	}
	api.WriteJSON(w, http.StatusOK, api.LedgerPage{Entries: mapping.ToApiLedgerEntries(entries)})
}

// ListLedgerEntries returns the most recent entries across all accounts. The feed can be narrowed to
// one role and to a start_date/end_date window; both dates are inclusive.
func (h *LedgerHandler) ListLedgerEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	domainEntries, err := h.Store.ListRecent(r.Context(), filter)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, mapping.ToApiLedgerEntries(domainEntries))
}

// GetByReference returns the settlement recorded under a kind and reference.
func (h *LedgerHandler) GetByReference(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		api.WriteError(w, api.BadRequest(err))
		return
	}
	reference := chi.URLParam(r, "reference")

	entries, err := h.Store.FindByReference(r.Context(), reference, kind)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if len(entries) == 0 {
		api.WriteJSON(w, http.StatusNotFound, api.Error{Code: api.CodeNotFound, Message: "reference not settled"})
		return
	}

	result, err := models.ResultFromEntries(entries)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.ReferenceLookup{
		Transfer: mapping.ToApiTransfer(result),
		Entries:  mapping.ToApiLedgerEntries(entries),
	})
}

var (
	errBadLimit  = errors.New("limit must be between 1 and 500")
	errBadWindow = errors.New("start_date must not be after end_date")
)

func parseFilter(r *http.Request) (storage.LedgerFilter, error) {
	limit, err := parseLimit(r)
	if err != nil {
		return storage.LedgerFilter{}, err
	}
	filter := storage.LedgerFilter{Limit: limit}

	if raw := r.URL.Query().Get("role"); raw != "" {
		filter.Role = models.Role(raw)
		if !filter.Role.IsValid() {
			return storage.LedgerFilter{}, api.BadRequest(fmt.Errorf("invalid role %q", raw))
		}
	}
	if filter.Since, err = parseDate(r, "start_date", false); err != nil {
		return storage.LedgerFilter{}, err
	}
	if filter.Until, err = parseDate(r, "end_date", true); err != nil {
		return storage.LedgerFilter{}, err
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Since.Before(filter.Until) {
		return storage.LedgerFilter{}, api.BadRequest(errBadWindow)
	}
	return filter, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. A calendar end date covers the whole day.
func parseDate(r *http.Request, name string, end bool) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if day, err := time.Parse(time.DateOnly, raw); err == nil {
		if end {
			return day.AddDate(0, 0, 1), nil
		}
		return day, nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, api.BadRequest(fmt.Errorf("invalid %s %q", name, raw))
	}
	if end {
		// Until is exclusive.
		return at.Add(time.Nanosecond), nil
	}
	return at, nil
}

func parseLimit(r *http.Request) (int, error) {
	limit, err := parseInt(r, "limit", defaultLimit)
	if err != nil {
		return 0, err
	}
	if limit < 1 || limit > maxLimit {
		return 0, api.BadRequest(errBadLimit)
	}
	return int(limit), nil
}

func parseInt(r *http.Request, name string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, api.BadRequest(fmt.Errorf("invalid %s %q", name, raw))
	}
	return value, nil
}
