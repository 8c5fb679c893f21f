package invoices

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/voltbill/voltbill/internal/dates"
)

var exportHeader = []string{
	"id", "customer", "status", "issue_date",
	"billing_start_date", "billing_end_date", "total", "created_at",
}

// ExportParams select the rows for a CSV export.
type ExportParams struct {
	From  string
	To    string
	Field ExportField
}

// ExportResult carries both the structured rows and the serialized
// payload, so callers can log counts without reparsing.
type ExportResult struct {
	Rows []Invoice
	CSV  string
}

// ExportService produces CSV exports of invoice rows.
type ExportService struct {
	repo Repository
	now  func() time.Time
}

// NewExportService wires the exporter to its query layer.
func NewExportService(repo Repository, opts ...ExportOption) *ExportService {
	s := &ExportService{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportOption customises an ExportService.
type ExportOption func(*ExportService)

// WithExportNow overrides the clock, for tests.
func WithExportNow(now func() time.Time) ExportOption {
	return func(s *ExportService) {
		s.now = now
	}
}

// Export fetches the bounded rows and serializes them. Date filters
// follow the dashboard defaults; an unknown field falls back to
// created_at.
func (s *ExportService) Export(ctx context.Context, params ExportParams) (ExportResult, error) {
	today := dates.DayUTC(s.now().UTC())
	from, ok := dates.ParseISODate(params.From)
	if !ok {
		from = dates.StartOfMonthUTC(today)
	}
	to, ok := dates.ParseISODate(params.To)
	if !ok {
		to = today
	}
	if from.After(to) {
		from = to
	}

	field := params.Field
	if field != ExportByBillingPeriod {
		field = ExportByCreatedAt
	}

	rows, err := s.repo.ExportRows(ctx, dates.Range{From: from, To: to}, field)
	if err != nil {
		return ExportResult{}, err
	}

	payload, err := MarshalCSV(rows)
	if err != nil {
		return ExportResult{}, err
	}
	return ExportResult{Rows: rows, CSV: payload}, nil
}

// MarshalCSV serializes invoice rows with the fixed export column set.
// Nil values become empty fields; quoting follows encoding/csv, which
// quotes only fields containing commas, quotes or newlines.
func MarshalCSV(rows []Invoice) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return "", err
	}
	for _, inv := range rows {
		customer := ""
		if inv.Customer != nil {
			customer = inv.Customer.DisplayName()
		}
		record := []string{
			inv.ID,
			customer,
			stringOrEmpty(inv.Status),
			dateOrEmpty(inv.IssueDate),
			dateOrEmpty(inv.BillingStartDate),
			dateOrEmpty(inv.BillingEndDate),
			totalOrEmpty(inv.Total),
			inv.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return dates.ISODateString(*t)
}

func totalOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
