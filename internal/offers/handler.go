package offers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voltbill/voltbill/internal/auth"
	"github.com/voltbill/voltbill/internal/platform/httpx"
)

// Handler exposes the offers HTTP API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches the offer endpoints. The caller applies the
// admin guard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices/{invoiceID}/offers", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Upload)
	})
	r.Route("/offers/{id}", func(r chi.Router) {
		r.Get("/download", h.Download)
		r.Delete("/", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceID")
	offers, err := h.service.ListByInvoice(r.Context(), invoiceID)
	if err != nil {
		h.logger.Error("list offers failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	count, err := h.service.CountByInvoice(r.Context(), invoiceID)
	if err != nil {
		h.logger.Error("count offers failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"offers": offers, "count": count})
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxOfferBytes); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: a PDF file is required", httpx.ErrValidation))
		return
	}
	defer func() {
		_ = file.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(file, maxOfferBytes+1))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	offer, err := h.service.Upload(r.Context(), UploadInput{
		InvoiceID:   chi.URLParam(r, "invoiceID"),
		Provider:    r.FormValue("provider"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Notes:       r.FormValue("notes"),
		Actor:       actorFrom(r),
	})
	if err != nil {
		h.logger.Error("offer upload failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, offer)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.DownloadURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), actorFrom(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actorFrom(r *http.Request) string {
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		if id.Email != "" {
			return id.Email
		}
		return id.UserID
	}
	return ""
}
