package invoices

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/voltbill/voltbill/internal/observability"
	"github.com/voltbill/voltbill/internal/platform/httpx"
	"github.com/voltbill/voltbill/internal/security"
)

// OfferCounter reports how many comparison offers exist for an invoice.
// Satisfied by the offers repository.
type OfferCounter interface {
	CountByInvoice(ctx context.Context, invoiceID string) (int, error)
}

// Handler exposes the invoice HTTP API.
type Handler struct {
	logger        *slog.Logger
	dashboard     *DashboardService
	export        *ExportService
	intake        *IntakeService
	repo          Repository
	offerCounts   OfferCounter
	limiter       *security.RateLimiter
	captcha       *security.CaptchaVerifier
	redis         *redis.Client
	metrics       *observability.Metrics
	validate      *validator.Validate
	publicOrigins map[string]struct{}
}

// NewHandler wires the invoice endpoints.
func NewHandler(
	logger *slog.Logger,
	dashboard *DashboardService,
	export *ExportService,
	intake *IntakeService,
	repo Repository,
	offerCounts OfferCounter,
	limiter *security.RateLimiter,
	captcha *security.CaptchaVerifier,
	redisClient *redis.Client,
	metrics *observability.Metrics,
	publicOrigins []string,
) *Handler {
	origins := make(map[string]struct{}, len(publicOrigins))
	for _, o := range publicOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins[o] = struct{}{}
		}
	}
	return &Handler{
		logger:        logger,
		dashboard:     dashboard,
		export:        export,
		intake:        intake,
		repo:          repo,
		offerCounts:   offerCounts,
		limiter:       limiter,
		captcha:       captcha,
		redis:         redisClient,
		metrics:       metrics,
		validate:      validator.New(),
		publicOrigins: origins,
	}
}

// Dashboard serves the aggregate view for the requested range.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	data, err := h.dashboard.Dashboard(r.Context(), DashboardFilters{
		From:  r.URL.Query().Get("from"),
		To:    r.URL.Query().Get("to"),
		Query: r.URL.Query().Get("q"),
	})
	if err != nil {
		h.logger.Error("dashboard aggregation failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

// ExportCSV streams the filtered invoices as a CSV download.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	params := ExportParams{
		From:  r.URL.Query().Get("from"),
		To:    r.URL.Query().Get("to"),
		Field: ExportField(r.URL.Query().Get("field")),
	}
	result, err := h.export.Export(r.Context(), params)
	if err != nil {
		h.logger.Error("csv export failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	h.metrics.RecordExport()
	h.logger.Info("csv export served", "rows", len(result.Rows))

	filename := fmt.Sprintf("invoices-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write([]byte(result.CSV))
}

// List returns the most recent invoices within the range and query.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rng, query := h.dashboard.NormalizeFilters(DashboardFilters{
		From:  r.URL.Query().Get("from"),
		To:    r.URL.Query().Get("to"),
		Query: r.URL.Query().Get("q"),
	})
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = tableRowLimit
	}
	rows, err := h.repo.List(r.Context(), ListFilters{Range: rng, Query: query, Limit: limit})
	if err != nil {
		h.logger.Error("list invoices failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": rows})
}

// LastPerCustomer returns each customer's most recent invoice, used by
// the customer overview to show account recency.
func (h *Handler) LastPerCustomer(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.LastInvoicePerCustomer(r.Context())
	if err != nil {
		h.logger.Error("last invoice per customer failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": rows})
}

// Show returns one invoice together with its offers count.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	offers := 0
	if h.offerCounts != nil {
		if offers, err = h.offerCounts.CountByInvoice(r.Context(), invoice.ID); err != nil {
			h.logger.Error("count offers failed", "error", err, "invoice_id", invoice.ID)
			httpx.RespondError(w, err)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, struct {
		Invoice
		OffersCount int `json:"offersCount"`
	}{Invoice: invoice, OffersCount: offers})
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus sets the invoice lifecycle status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	invoice, err := h.intake.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status, actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

// Reprocess queues an invoice for another extraction run.
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.intake.Reprocess(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

// Download returns a signed URL for the stored PDF.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	url, err := h.intake.DownloadURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"url": url})
}

// Upload accepts an admin-submitted invoice PDF via multipart form.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	input, err := h.readMultipartIntake(r, "upload")
	if err != nil {
		h.metrics.RecordIntake("upload", "rejected")
		httpx.RespondError(w, err)
		return
	}
	// Admins may pin an existing customer instead of supplying contact
	// details.
	input.CustomerID = r.FormValue("customerId")
	input.Actor = actorFrom(r)
	invoice, err := h.intake.Ingest(r.Context(), input)
	if err != nil {
		h.metrics.RecordIntake("upload", outcomeFor(err))
		h.logger.Error("admin upload failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	h.metrics.RecordIntake("upload", "accepted")
	httpx.JSON(w, http.StatusCreated, invoice)
}

// PublicIntake accepts a PDF from the public form after origin, rate
// limit, privacy-acknowledgement and captcha checks.
func (h *Handler) PublicIntake(w http.ResponseWriter, r *http.Request) {
	if len(h.publicOrigins) > 0 {
		origin := strings.TrimRight(r.Header.Get("Origin"), "/")
		if _, ok := h.publicOrigins[origin]; !ok {
			h.metrics.RecordIntake("public", "rejected")
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "origin not allowed")
			return
		}
	}

	ip := clientIP(r)
	ok, retryAfter, err := h.limiter.Allow(r.Context(), "public-intake:"+ip)
	if err != nil {
		h.logger.Warn("rate limiter unavailable", "error", err)
	}
	if !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "try again later")
		h.metrics.RecordIntake("public", "rejected")
		return
	}

	input, err := h.readMultipartIntake(r, "public")
	if err != nil {
		h.metrics.RecordIntake("public", "rejected")
		httpx.RespondError(w, err)
		return
	}
	switch r.FormValue("privacyAccepted") {
	case "true", "1", "on":
	default:
		h.metrics.RecordIntake("public", "rejected")
		httpx.RespondError(w, fmt.Errorf("%w: privacy policy must be accepted", httpx.ErrValidation))
		return
	}
	if err := h.captcha.Verify(r.Context(), r.FormValue("captchaToken"), ip); err != nil {
		if errors.Is(err, security.ErrCaptchaFailed) {
			h.metrics.RecordIntake("public", "rejected")
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "captcha verification failed")
			return
		}
		h.logger.Error("captcha provider unreachable", "error", err)
		httpx.RespondError(w, err)
		return
	}

	invoice, err := h.intake.Ingest(r.Context(), input)
	if err != nil {
		h.metrics.RecordIntake("public", outcomeFor(err))
		h.logger.Error("public intake failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	h.metrics.RecordIntake("public", "accepted")
	httpx.JSON(w, http.StatusCreated, map[string]string{"id": invoice.ID, "status": "received"})
}

type inboundEmailRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	From      string `json:"from" validate:"required"`
	FromName  string `json:"fromName"`
	FileName  string `json:"fileName"`
	PDFBase64 string `json:"pdfBase64" validate:"required"`
}

// InboundEmail ingests a PDF forwarded by the mail integration. The
// message id deduplicates provider redeliveries.
func (h *Handler) InboundEmail(w http.ResponseWriter, r *http.Request) {
	var req inboundEmailRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	fromName, fromAddr := req.FromName, req.From
	if parsed, err := mail.ParseAddress(req.From); err == nil {
		fromAddr = parsed.Address
		if fromName == "" {
			fromName = parsed.Name
		}
	}

	fresh, err := h.redis.SetNX(r.Context(), "inbound-email:"+req.MessageID, 1, 24*time.Hour).Result()
	if err != nil {
		h.logger.Warn("inbound dedup unavailable", "error", err)
	} else if !fresh {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	data, err := decodeBase64(req.PDFBase64)
	if err != nil {
		h.metrics.RecordIntake("email", "rejected")
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	invoice, err := h.intake.Ingest(r.Context(), IntakeInput{
		Name:        fromName,
		Email:       fromAddr,
		FileName:    req.FileName,
		ContentType: "application/pdf",
		Data:        data,
		Source:      "email",
		Actor:       "email:" + req.MessageID,
	})
	if err != nil {
		h.metrics.RecordIntake("email", outcomeFor(err))
		h.logger.Error("inbound email intake failed", "error", err, "message_id", req.MessageID)
		httpx.RespondError(w, err)
		return
	}
	h.metrics.RecordIntake("email", "accepted")
	httpx.JSON(w, http.StatusCreated, map[string]string{"id": invoice.ID})
}

func (h *Handler) readMultipartIntake(r *http.Request, source string) (IntakeInput, error) {
	if err := r.ParseMultipartForm(DefaultMaxUploadBytes); err != nil {
		return IntakeInput{}, httpx.ErrValidation
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return IntakeInput{}, fmt.Errorf("%w: a PDF file is required", httpx.ErrValidation)
	}
	defer func() {
		_ = file.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(file, DefaultMaxUploadBytes+1))
	if err != nil {
		return IntakeInput{}, err
	}
	if len(data) > DefaultMaxUploadBytes {
		return IntakeInput{}, httpx.ErrTooLarge
	}
	return IntakeInput{
		Name:        r.FormValue("name"),
		Email:       r.FormValue("email"),
		Phone:       r.FormValue("phone"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Source:      source,
	}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty payload")
	}
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func outcomeFor(err error) string {
	if errors.Is(err, httpx.ErrValidation) || errors.Is(err, httpx.ErrTooLarge) {
		return "rejected"
	}
	return "failed"
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
