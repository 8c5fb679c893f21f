package offers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltbill/voltbill/internal/audit"
	"github.com/voltbill/voltbill/internal/invoices"
	"github.com/voltbill/voltbill/internal/platform/httpx"
	"github.com/voltbill/voltbill/internal/platform/objstore"
)

const maxOfferBytes = 10 << 20

// UploadInput is one submitted offer PDF.
type UploadInput struct {
	InvoiceID   string
	Provider    string
	FileName    string
	ContentType string
	Data        []byte
	Notes       string
	Actor       string
}

// Service owns the offer workflow: attach a comparison PDF to an
// invoice, list and remove them.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	invoices invoices.Repository
	store    objstore.Store
	auditor  *audit.Logger
	bucket   string
	now      func() time.Time
}

// NewService wires the offers workflow.
func NewService(logger *slog.Logger, repo Repository, invRepo invoices.Repository, store objstore.Store, auditor *audit.Logger, bucket string) *Service {
	return &Service{
		logger:   logger,
		repo:     repo,
		invoices: invRepo,
		store:    store,
		auditor:  auditor,
		bucket:   bucket,
		now:      time.Now,
	}
}

// Upload validates and stores a new offer. A failed insert removes the
// uploaded file again.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Offer, error) {
	if in.InvoiceID == "" {
		return Offer{}, fmt.Errorf("%w: invoice id is required", httpx.ErrValidation)
	}
	provider := strings.TrimSpace(in.Provider)
	if provider == "" {
		return Offer{}, fmt.Errorf("%w: provider name is required", httpx.ErrValidation)
	}
	if len(provider) > 100 {
		return Offer{}, fmt.Errorf("%w: provider name too long", httpx.ErrValidation)
	}
	if len(in.Data) == 0 {
		return Offer{}, fmt.Errorf("%w: empty file", httpx.ErrValidation)
	}
	if len(in.Data) > maxOfferBytes {
		return Offer{}, httpx.ErrTooLarge
	}
	if in.ContentType != "" && in.ContentType != "application/pdf" {
		return Offer{}, fmt.Errorf("%w: only PDF files are accepted", httpx.ErrValidation)
	}

	invoice, err := s.invoices.Get(ctx, in.InvoiceID)
	if err != nil {
		return Offer{}, err
	}

	now := s.now().UTC()
	path := fmt.Sprintf("offers/%s/%04d/%02d/%s.pdf", invoice.ID, now.Year(), int(now.Month()), uuid.NewString())
	err = s.store.Upload(ctx, s.bucket, path, in.Data, objstore.UploadOptions{
		ContentType: "application/pdf",
		Metadata:    map[string]string{"invoice_id": invoice.ID, "file_name": in.FileName},
	})
	if err != nil {
		return Offer{}, fmt.Errorf("store offer pdf: %w", err)
	}

	offer := Offer{
		InvoiceID:  invoice.ID,
		CustomerID: invoice.CustomerID,
		Provider:   provider,
		FilePath:   path,
		FileName:   in.FileName,
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		offer.Notes = &notes
	}
	created, err := s.repo.Create(ctx, offer)
	if err != nil {
		if removeErr := s.store.Remove(ctx, s.bucket, path); removeErr != nil {
			s.logger.Error("orphaned offer file after failed insert", "path", path, "error", removeErr)
		}
		return Offer{}, err
	}

	s.auditor.Record(ctx, audit.Event{
		Event:      "offer.uploaded",
		Entity:     "offer",
		EntityID:   created.ID,
		CustomerID: invoice.CustomerID,
		Actor:      in.Actor,
		Meta:       map[string]any{"invoice_id": invoice.ID, "file_name": in.FileName},
	})
	return created, nil
}

// ListByInvoice returns an invoice's offers, newest first.
func (s *Service) ListByInvoice(ctx context.Context, invoiceID string) ([]Offer, error) {
	return s.repo.ListByInvoice(ctx, invoiceID)
}

// CountByInvoice returns how many offers an invoice carries.
func (s *Service) CountByInvoice(ctx context.Context, invoiceID string) (int, error) {
	return s.repo.CountByInvoice(ctx, invoiceID)
}

// DownloadURL returns a short-lived signed URL for the offer PDF.
func (s *Service) DownloadURL(ctx context.Context, id string) (string, error) {
	offer, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.store.SignedURL(ctx, s.bucket, offer.FilePath, 5*time.Minute)
}

// Delete removes the record and, best effort, the stored file. A file
// that fails to delete is logged, not surfaced: the record is gone and
// the storage cleanup can be retried out of band.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	offer, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, s.bucket, offer.FilePath); err != nil {
		s.logger.Error("offer file cleanup failed", "path", offer.FilePath, "error", err)
	}
	s.auditor.Record(ctx, audit.Event{
		Event:      "offer.deleted",
		Entity:     "offer",
		EntityID:   id,
		CustomerID: offer.CustomerID,
		Actor:      actor,
		Meta:       map[string]any{"invoice_id": offer.InvoiceID},
	})
	return nil
}
