package customers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/voltbill/voltbill/internal/platform/httpx"
)

type fakeRepo struct {
	customer Customer
	last     *InvoiceSummary
}

func (f *fakeRepo) Ensure(_ context.Context, _ EnsureInput) (Customer, error) {
	return f.customer, nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (Customer, error) {
	if id != f.customer.ID {
		return Customer{}, httpx.ErrNotFound
	}
	return f.customer, nil
}

func (f *fakeRepo) List(_ context.Context, _ ListFilters) ([]Customer, int, error) {
	return []Customer{f.customer}, 1, nil
}

func (f *fakeRepo) LastInvoice(_ context.Context, _ string) (*InvoiceSummary, error) {
	return f.last, nil
}

func showRequest(id string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", id)
	req := httptest.NewRequest(http.MethodGet, "/api/customers/"+id, nil)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestShowIncludesLastInvoice(t *testing.T) {
	status := "processed"
	repo := &fakeRepo{
		customer: Customer{ID: "cust-1", Name: "Jane Doe", Email: "jane@example.com"},
		last: &InvoiceSummary{
			ID:        "inv-9",
			Status:    &status,
			CreatedAt: time.Date(2024, time.June, 12, 0, 0, 0, 0, time.UTC),
		},
	}
	h := NewHandler(slog.New(slog.DiscardHandler), repo)

	rr := httptest.NewRecorder()
	h.Show(rr, showRequest("cust-1"))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Customer    Customer        `json:"customer"`
		LastInvoice *InvoiceSummary `json:"lastInvoice"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "cust-1", resp.Customer.ID)
	require.NotNil(t, resp.LastInvoice)
	require.Equal(t, "inv-9", resp.LastInvoice.ID)
}

func TestShowWithoutInvoicesReturnsNullLastInvoice(t *testing.T) {
	repo := &fakeRepo{customer: Customer{ID: "cust-1", Email: "jane@example.com"}}
	h := NewHandler(slog.New(slog.DiscardHandler), repo)

	rr := httptest.NewRecorder()
	h.Show(rr, showRequest("cust-1"))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		LastInvoice *InvoiceSummary `json:"lastInvoice"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Nil(t, resp.LastInvoice)
}
