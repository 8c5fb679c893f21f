package offers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltbill/voltbill/internal/platform/httpx"
)

type Repository interface {
	Create(ctx context.Context, offer Offer) (Offer, error)
	Get(ctx context.Context, id string) (Offer, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]Offer, error)
	CountByInvoice(ctx context.Context, invoiceID string) (int, error)
	Delete(ctx context.Context, id string) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, offer Offer) (Offer, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO offers (invoice_id, customer_id, provider, file_path, file_name, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		offer.InvoiceID, offer.CustomerID, offer.Provider, offer.FilePath, offer.FileName, offer.Notes).
		Scan(&offer.ID, &offer.CreatedAt)
	if err != nil {
		return Offer{}, err
	}
	return offer, nil
}

func (r *repository) Get(ctx context.Context, id string) (Offer, error) {
	var o Offer
	err := r.db.QueryRow(ctx, `
		SELECT id, invoice_id, customer_id, provider, file_path, file_name, notes, created_at
		FROM offers WHERE id = $1`, id).
		Scan(&o.ID, &o.InvoiceID, &o.CustomerID, &o.Provider, &o.FilePath, &o.FileName, &o.Notes, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Offer{}, httpx.ErrNotFound
	}
	return o, err
}

func (r *repository) ListByInvoice(ctx context.Context, invoiceID string) ([]Offer, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, customer_id, provider, file_path, file_name, notes, created_at
		FROM offers WHERE invoice_id = $1
		ORDER BY created_at DESC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		var o Offer
		if err := rows.Scan(&o.ID, &o.InvoiceID, &o.CustomerID, &o.Provider, &o.FilePath, &o.FileName, &o.Notes, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *repository) CountByInvoice(ctx context.Context, invoiceID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM offers WHERE invoice_id = $1`, invoiceID).Scan(&count)
	return count, err
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM offers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}
