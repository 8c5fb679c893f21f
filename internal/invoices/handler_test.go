package invoices

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/voltbill/voltbill/internal/observability"
	"github.com/voltbill/voltbill/internal/security"
)

func newTestHandler(t *testing.T, repo Repository) *Handler {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	intake := NewIntakeService(&fakeInvoiceRepo{}, &fakeCustomerRepo{}, &fakeStore{}, nil, "invoices")
	return NewHandler(
		slog.New(slog.DiscardHandler),
		NewDashboardService(repo, WithNow(fixedNow(2024, time.June, 30))),
		NewExportService(repo, WithExportNow(fixedNow(2024, time.June, 30))),
		intake,
		repo,
		stubOfferCounts{count: 2},
		security.NewRateLimiter(client, 100, time.Minute),
		security.NewCaptchaVerifier("", ""),
		client,
		observability.NewMetrics(),
		nil,
	)
}

func TestDashboardEndpoint(t *testing.T) {
	repo := &stubRepo{
		aggregates: AggregateResult{
			CurrentTotal:  10,
			PreviousTotal: 8,
			StatusCounts:  map[StatusCategory]int{StatusPending: 10},
		},
	}
	h := newTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard?from=2024-06-01&to=2024-06-30&q=acme", nil)
	rr := httptest.NewRecorder()
	h.Dashboard(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var data DashboardData
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data))
	require.Equal(t, 10, data.CurrentTotal)
	require.Equal(t, "up", data.DeltaDirection)
	require.Equal(t, "acme", repo.gotAggQuery)
}

func TestExportEndpointSetsDownloadHeaders(t *testing.T) {
	repo := &stubRepo{exportRows: []Invoice{{ID: "inv-1", CreatedAt: day(2024, time.June, 2)}}}
	h := newTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/invoices/export.csv?from=2024-06-01&to=2024-06-30", nil)
	rr := httptest.NewRecorder()
	h.ExportCSV(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")
	require.True(t, strings.HasPrefix(rr.Body.String(), "id,customer,status"))
}

func multipartIntakeBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="factura.pdf"`)
	hdr.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestPublicIntakeRequiresPrivacyAcknowledgement(t *testing.T) {
	h := newTestHandler(t, &stubRepo{})

	body, contentType := multipartIntakeBody(t, map[string]string{
		"name":  "Jane",
		"email": "jane@example.com",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/public/intake", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.PublicIntake(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPublicIntakeAccepts(t *testing.T) {
	h := newTestHandler(t, &stubRepo{})

	body, contentType := multipartIntakeBody(t, map[string]string{
		"name":            "Jane",
		"email":           "jane@example.com",
		"privacyAccepted": "true",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/public/intake", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.PublicIntake(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "received", resp["status"])
}

func TestInboundEmailDeduplicates(t *testing.T) {
	h := newTestHandler(t, &stubRepo{})

	payload := `{
		"messageId": "msg-1",
		"from": "Jane Doe <jane@example.com>",
		"fileName": "factura.pdf",
		"pdfBase64": "JVBERi0xLjQgZmFrZQ=="
	}`

	req := httptest.NewRequest(http.MethodPost, "/api/email/inbound", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	h.InboundEmail(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/email/inbound", strings.NewReader(payload))
	rr = httptest.NewRecorder()
	h.InboundEmail(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "duplicate", resp["status"])
}

func chiRouteContext(r *http.Request, routeCtx *chi.Context) context.Context {
	return context.WithValue(r.Context(), chi.RouteCtxKey, routeCtx)
}

type stubOfferCounts struct {
	count int
}

func (s stubOfferCounts) CountByInvoice(context.Context, string) (int, error) {
	return s.count, nil
}

func TestShowIncludesOffersCount(t *testing.T) {
	h := newTestHandler(t, &stubRepo{})

	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", "inv-1")

	req := httptest.NewRequest(http.MethodGet, "/api/invoices/inv-1", nil)
	req = req.WithContext(chiRouteContext(req, routeCtx))
	rr := httptest.NewRecorder()
	h.Show(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		ID          string `json:"id"`
		OffersCount int    `json:"offersCount"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "inv-1", resp.ID)
	require.Equal(t, 2, resp.OffersCount)
}

func TestUpdateStatusEndpoint(t *testing.T) {
	h := newTestHandler(t, &stubRepo{})

	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", "inv-1")

	req := httptest.NewRequest(http.MethodPatch, "/api/invoices/inv-1/status", strings.NewReader(`{"status":"processed"}`))
	req = req.WithContext(chiRouteContext(req, routeCtx))
	rr := httptest.NewRecorder()
	h.UpdateStatus(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodPatch, "/api/invoices/inv-1/status", strings.NewReader(`{"status":"bogus"}`))
	req = req.WithContext(chiRouteContext(req, routeCtx))
	rr = httptest.NewRecorder()
	h.UpdateStatus(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
