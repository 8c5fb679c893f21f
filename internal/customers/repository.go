package customers

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltbill/voltbill/internal/platform/httpx"
	"github.com/voltbill/voltbill/internal/shared"
)

// EnsureInput carries the contact details supplied with an intake.
type EnsureInput struct {
	Name  string
	Email string
	Phone string
}

// ListFilters narrows List results.
type ListFilters struct {
	Search string
	Limit  int
	Page   int
}

type Repository interface {
	Ensure(ctx context.Context, in EnsureInput) (Customer, error)
	Get(ctx context.Context, id string) (Customer, error)
	List(ctx context.Context, filters ListFilters) ([]Customer, int, error)
	LastInvoice(ctx context.Context, customerID string) (*InvoiceSummary, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Ensure finds the customer for an email address, creating one when
// none exists. An existing record gains a phone number if it had none,
// and keeps its stored name.
func (r *repository) Ensure(ctx context.Context, in EnsureInput) (Customer, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return Customer{}, httpx.ErrValidation
	}

	var c Customer
	err := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM customers
		WHERE lower(email) = $1 AND deleted_at IS NULL`, email).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if err == nil {
		if c.Phone == nil && in.Phone != "" {
			if err := r.db.QueryRow(ctx, `
				UPDATE customers SET phone = $1, updated_at = NOW()
				WHERE id = $2
				RETURNING phone, updated_at`, in.Phone, c.ID).
				Scan(&c.Phone, &c.UpdatedAt); err != nil {
				return Customer{}, err
			}
		}
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, err
	}

	name := in.Name
	if name == "" {
		name = email
	}
	var phone any
	if in.Phone != "" {
		phone = in.Phone
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO customers (name, email, phone)
		VALUES ($1, $2, $3)
		RETURNING id, name, email, phone, created_at, updated_at`, name, email, phone).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		// Concurrent intake for the same address: take the winner's row.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			err = r.db.QueryRow(ctx, `
				SELECT id, name, email, phone, created_at, updated_at
				FROM customers
				WHERE lower(email) = $1 AND deleted_at IS NULL`, email).
				Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
		}
		if err != nil {
			return Customer{}, err
		}
	}
	return c, nil
}

func (r *repository) Get(ctx context.Context, id string) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM customers
		WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, httpx.ErrNotFound
	}
	return c, err
}

// LastInvoice returns the customer's newest invoice, or nil when the
// customer has none yet.
func (r *repository) LastInvoice(ctx context.Context, customerID string) (*InvoiceSummary, error) {
	var inv InvoiceSummary
	err := r.db.QueryRow(ctx, `
		SELECT id, status, total, issue_date, created_at
		FROM invoices
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, customerID).
		Scan(&inv.ID, &inv.Status, &inv.Total, &inv.IssueDate, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	query := `SELECT id, name, email, phone, created_at, updated_at FROM customers WHERE deleted_at IS NULL`
	countQuery := `SELECT COUNT(*) FROM customers WHERE deleted_at IS NULL`
	args := []any{}
	countArgs := []any{}

	if filters.Search != "" {
		pattern := "%" + shared.EscapeLike(filters.Search) + "%"
		query += ` AND (name ILIKE $1 OR email ILIKE $1)`
		countQuery += ` AND (name ILIKE $1 OR email ILIKE $1)`
		args = append(args, pattern)
		countArgs = append(countArgs, pattern)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC`
	if filters.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1)
		args = append(args, filters.Limit)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		query += ` OFFSET $` + strconv.Itoa(len(args)+1)
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
