package invoices

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voltbill/voltbill/internal/auth"
)

// MountAdminRoutes attaches the authenticated invoice API under the
// given router. The caller applies the admin guard.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/dashboard", h.Dashboard)
	r.Get("/customers/last-invoices", h.LastPerCustomer)
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/export.csv", h.ExportCSV)
		r.Post("/upload", h.Upload)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Show)
			r.Patch("/status", h.UpdateStatus)
			r.Post("/reprocess", h.Reprocess)
			r.Get("/download", h.Download)
		})
	})
}

// MountPublicRoutes attaches the unauthenticated intake endpoint.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/intake", h.PublicIntake)
}

// MountInternalRoutes attaches service-to-service endpoints. The
// caller applies the shared-secret guard.
func (h *Handler) MountInternalRoutes(r chi.Router) {
	r.Post("/email/inbound", h.InboundEmail)
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
