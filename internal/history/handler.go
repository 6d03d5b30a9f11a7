package history

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tunequeue/tunequeue/internal/api"
)

// Lister reads history entries.
type Lister interface {
	ListByRequester(ctx context.Context, requesterID string, params ListParams) ([]Entry, int64, error)
}

// Handler provides HTTP handlers for history endpoints.
type Handler struct {
	repo Lister
}

// NewHandler creates a new history Handler. A nil repo answers every request
// with HISTORY_DISABLED.
func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// ListByUser returns paginated history for the user in the URL.
func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		api.HandleError(w, api.ErrHistoryOff)
		return
	}

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	params := parseListParams(r)

	entries, total, err := h.repo.ListByRequester(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing history", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, entries, total, params.Page, params.PageSize)
}

func parseListParams(r *http.Request) ListParams {
	params := DefaultListParams()

	if o := r.URL.Query().Get("outcome"); o != "" {
		params.Outcome = o
	}
	if p := r.URL.Query().Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			params.From = &t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			params.To = &t
		}
	}

	return params
}
