package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hoaboard/hoaboard/internal/platform/httpx"
	"github.com/hoaboard/hoaboard/internal/shared"
)

// Handler exposes the audit timeline panel.
type Handler struct {
	logger *slog.Logger
	store  Store
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, store Store) *Handler {
	return &Handler{logger: logger, store: store}
}

// MountRoutes registers the audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods/{period}/audit", h.Timeline)
}

// Timeline lists a period's audit entries, newest first, paginated.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	total, err := h.store.CountForPeriod(r.Context(), period)
	if err != nil {
		h.logger.Error("audit count", slog.String("period", period), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "audit store unavailable")
		return
	}
	pagination := shared.NewPagination(page, perPage, total)

	offset := (pagination.Page - 1) * pagination.PerPage
	entries, err := h.store.Timeline(r.Context(), period, pagination.PerPage, offset)
	if err != nil {
		h.logger.Error("audit timeline", slog.String("period", period), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "audit store unavailable")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"pagination": pagination,
	})
}
