package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voltbill/voltbill/internal/auth"
	"github.com/voltbill/voltbill/internal/customers"
	"github.com/voltbill/voltbill/internal/invoices"
	"github.com/voltbill/voltbill/internal/observability"
	"github.com/voltbill/voltbill/internal/offers"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Verifier         *auth.Verifier
	InvoiceHandler   *invoices.Handler
	OffersHandler    *offers.Handler
	CustomersHandler *customers.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router for the API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(params.Verifier.RequireAdmin)
			params.InvoiceHandler.MountAdminRoutes(r)
			params.OffersHandler.MountRoutes(r)
			params.CustomersHandler.MountRoutes(r)
		})

		r.Route("/public", params.InvoiceHandler.MountPublicRoutes)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireInternalKey(params.Config.InternalAPISecret))
			params.InvoiceHandler.MountInternalRoutes(r)
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
