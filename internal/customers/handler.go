package customers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voltbill/voltbill/internal/platform/httpx"
	"github.com/voltbill/voltbill/internal/shared"
)

// Handler exposes the customers HTTP API.
type Handler struct {
	logger *slog.Logger
	repo   Repository
}

func NewHandler(logger *slog.Logger, repo Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes attaches the customer endpoints. The caller applies the
// admin guard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 25
	}

	customers, total, err := h.repo.List(r.Context(), ListFilters{
		Search: r.URL.Query().Get("q"),
		Limit:  limit,
		Page:   page,
	})
	if err != nil {
		h.logger.Error("list customers failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"customers":  customers,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

// Show returns one customer together with their most recent invoice.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	customer, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	last, err := h.repo.LastInvoice(r.Context(), customer.ID)
	if err != nil {
		h.logger.Error("last invoice lookup failed", "error", err, "customer_id", customer.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"customer":    customer,
		"lastInvoice": last,
	})
}
