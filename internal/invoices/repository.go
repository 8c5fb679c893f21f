package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltbill/voltbill/internal/dates"
	"github.com/voltbill/voltbill/internal/platform/httpx"
	"github.com/voltbill/voltbill/internal/shared"
)

// ExportField selects which date column bounds an export.
type ExportField string

const (
	ExportByCreatedAt     ExportField = "created_at"
	ExportByBillingPeriod ExportField = "billing_period"
)

// ListFilters narrows invoice listings.
type ListFilters struct {
	Range dates.Range
	Query string
	Limit int
}

// NewInvoice carries the fields persisted at intake.
type NewInvoice struct {
	CustomerID       string
	Status           string
	Total            *float64
	IssueDate        *time.Time
	BillingStartDate *time.Time
	BillingEndDate   *time.Time
	FilePath         string
	ExtractedFields  map[string]any
}

// Repository is the invoice query interface used by the dashboard,
// export and intake services.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Invoice, error)
	Get(ctx context.Context, id string) (Invoice, error)
	Create(ctx context.Context, in NewInvoice) (Invoice, error)
	UpdateStatus(ctx context.Context, id, status string) (Invoice, error)
	Aggregates(ctx context.Context, rng dates.Range, query string) (AggregateResult, error)
	ExportRows(ctx context.Context, rng dates.Range, field ExportField) ([]Invoice, error)
	LastInvoicePerCustomer(ctx context.Context) ([]Invoice, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const invoiceColumns = `
	i.id, i.customer_id, i.status, i.total, i.issue_date,
	i.billing_start_date, i.billing_end_date, i.file_path,
	i.extracted_fields, i.created_at,
	c.id, c.name, c.email`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var ref CustomerRef
	var extracted []byte
	err := row.Scan(
		&inv.ID, &inv.CustomerID, &inv.Status, &inv.Total, &inv.IssueDate,
		&inv.BillingStartDate, &inv.BillingEndDate, &inv.FilePath,
		&extracted, &inv.CreatedAt,
		&ref.ID, &ref.Name, &ref.Email,
	)
	if err != nil {
		return Invoice{}, err
	}
	if len(extracted) > 0 {
		_ = json.Unmarshal(extracted, &inv.ExtractedFields)
	}
	inv.Customer = &ref
	return inv, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.created_at >= $1 AND i.created_at < $2`
	args := []any{filters.Range.From, filters.Range.To.AddDate(0, 0, 1)}

	if filters.Query != "" {
		pattern := "%" + shared.EscapeLike(filters.Query) + "%"
		args = append(args, pattern)
		n := strconv.Itoa(len(args))
		query += ` AND (i.id::text ILIKE $` + n + ` OR c.name ILIKE $` + n + ` OR c.email ILIKE $` + n + `)`
	}

	query += ` ORDER BY i.created_at DESC`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+`
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, httpx.ErrNotFound
	}
	return inv, err
}

func (r *repository) Create(ctx context.Context, in NewInvoice) (Invoice, error) {
	extracted, err := json.Marshal(in.ExtractedFields)
	if err != nil {
		return Invoice{}, err
	}
	var id string
	err = r.db.QueryRow(ctx, `
		INSERT INTO invoices (customer_id, status, total, issue_date, billing_start_date, billing_end_date, file_path, extracted_fields)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING id`,
		in.CustomerID, in.Status, in.Total, in.IssueDate, in.BillingStartDate, in.BillingEndDate, in.FilePath, extracted).
		Scan(&id)
	if err != nil {
		return Invoice{}, err
	}
	return r.Get(ctx, id)
}

func (r *repository) UpdateStatus(ctx context.Context, id, status string) (Invoice, error) {
	tag, err := r.db.Exec(ctx, `UPDATE invoices SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return Invoice{}, err
	}
	if tag.RowsAffected() == 0 {
		return Invoice{}, httpx.ErrNotFound
	}
	return r.Get(ctx, id)
}

// Aggregates delegates the heavy counting to the database-side
// dashboard_invoice_aggregates function, which returns the whole
// result as one JSON value. Contract: the function interpolates the
// query into ILIKE patterns verbatim and never escapes wildcards
// itself, so the single escaping pass happens here.
func (r *repository) Aggregates(ctx context.Context, rng dates.Range, query string) (AggregateResult, error) {
	var q any
	if query != "" {
		q = shared.EscapeLike(query)
	}
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT dashboard_invoice_aggregates($1, $2, $3)`,
		rng.From, rng.To, q).Scan(&raw)
	if err != nil {
		return AggregateResult{}, err
	}
	return decodeAggregates(raw)
}

func decodeAggregates(raw []byte) (AggregateResult, error) {
	var payload struct {
		CurrentTotal  *int `json:"currentTotal"`
		PreviousTotal *int `json:"previousTotal"`
		StatusCounts  struct {
			Pending   int `json:"pending"`
			Processed int `json:"processed"`
			Success   int `json:"success"`
		} `json:"statusCounts"`
		MonthlyBuckets []struct {
			MonthAnchor       string `json:"monthAnchor"`
			RangeStart        string `json:"rangeStart"`
			RangeEnd          string `json:"rangeEnd"`
			CurrentCount      int    `json:"currentCount"`
			PreviousYearCount int    `json:"previousYearCount"`
		} `json:"monthlyBuckets"`
	}
	if len(raw) == 0 {
		return AggregateResult{StatusCounts: map[StatusCategory]int{}}, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return AggregateResult{}, err
	}

	result := AggregateResult{
		StatusCounts: map[StatusCategory]int{
			StatusPending:   payload.StatusCounts.Pending,
			StatusProcessed: payload.StatusCounts.Processed,
			StatusSuccess:   payload.StatusCounts.Success,
		},
	}
	if payload.CurrentTotal != nil {
		result.CurrentTotal = *payload.CurrentTotal
	}
	if payload.PreviousTotal != nil {
		result.PreviousTotal = *payload.PreviousTotal
	}
	for _, b := range payload.MonthlyBuckets {
		anchor, ok := dates.ParseISODate(b.MonthAnchor)
		if !ok {
			continue
		}
		start, _ := dates.ParseISODate(b.RangeStart)
		end, _ := dates.ParseISODate(b.RangeEnd)
		result.MonthlyBuckets = append(result.MonthlyBuckets, MonthlyBucket{
			MonthAnchor:       anchor,
			RangeStart:        start,
			RangeEnd:          end,
			CurrentCount:      b.CurrentCount,
			PreviousYearCount: b.PreviousYearCount,
		})
	}
	return result, nil
}

func (r *repository) ExportRows(ctx context.Context, rng dates.Range, field ExportField) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE `
	switch field {
	case ExportByBillingPeriod:
		query += `i.billing_start_date >= $1 AND i.billing_end_date <= $2`
	default:
		query += `i.created_at >= $1 AND i.created_at < $2`
	}
	query += ` ORDER BY i.created_at DESC`

	to := rng.To
	if field != ExportByBillingPeriod {
		to = to.AddDate(0, 0, 1)
	}
	rows, err := r.db.Query(ctx, query, rng.From, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// LastInvoicePerCustomer returns each customer's most recent invoice.
func (r *repository) LastInvoicePerCustomer(ctx context.Context) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT ON (i.customer_id) `+invoiceColumns+`
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		ORDER BY i.customer_id, i.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
