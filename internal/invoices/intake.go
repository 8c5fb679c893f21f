package invoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltbill/voltbill/internal/audit"
	"github.com/voltbill/voltbill/internal/customers"
	"github.com/voltbill/voltbill/internal/platform/httpx"
	"github.com/voltbill/voltbill/internal/platform/objstore"
)

// DefaultMaxUploadBytes bounds accepted PDF sizes.
const DefaultMaxUploadBytes = 10 << 20

// Statuses an admin may set directly.
var allowedStatusUpdates = map[string]struct{}{
	"pending":   {},
	"queued":    {},
	"reprocess": {},
	"error":     {},
	"processed": {},
	"done":      {},
	"success":   {},
}

// IntakeInput is one submitted invoice PDF with its contact details.
// CustomerID pins the owner directly; otherwise the customer is
// resolved (or created) from the email address.
type IntakeInput struct {
	CustomerID  string
	Name        string
	Email       string
	Phone       string
	FileName    string
	ContentType string
	Data        []byte
	Source      string
	Actor       string
}

// IntakeService accepts invoice PDFs, persists the file and the record,
// and keeps the two consistent.
type IntakeService struct {
	invoices  Repository
	customers customers.Repository
	store     objstore.Store
	auditor   audit.Recorder
	bucket    string
	maxBytes  int
	now       func() time.Time
}

// NewIntakeService wires the intake pipeline.
func NewIntakeService(invoices Repository, custs customers.Repository, store objstore.Store, auditor audit.Recorder, bucket string) *IntakeService {
	return &IntakeService{
		invoices:  invoices,
		customers: custs,
		store:     store,
		auditor:   auditor,
		bucket:    bucket,
		maxBytes:  DefaultMaxUploadBytes,
		now:       time.Now,
	}
}

// Ingest validates the submission, stores the PDF and creates the
// invoice record. A failed insert removes the stored object again so
// no orphan files accumulate. Every submission leaves an audit trail:
// received on entry, then customer_error, failed or accepted.
func (s *IntakeService) Ingest(ctx context.Context, in IntakeInput) (Invoice, error) {
	if err := s.validate(in); err != nil {
		return Invoice{}, err
	}

	s.record(ctx, audit.Event{
		Event:  "invoice.intake.received",
		Entity: "invoice",
		Actor:  in.Actor,
		Meta: map[string]any{
			"source":    in.Source,
			"file_name": in.FileName,
			"size":      len(in.Data),
		},
	})

	var customer customers.Customer
	var err error
	if in.CustomerID != "" {
		customer, err = s.customers.Get(ctx, in.CustomerID)
	} else {
		customer, err = s.customers.Ensure(ctx, customers.EnsureInput{
			Name:  strings.TrimSpace(in.Name),
			Email: in.Email,
			Phone: strings.TrimSpace(in.Phone),
		})
	}
	if err != nil {
		s.record(ctx, audit.Event{
			Event:  "invoice.intake.customer_error",
			Entity: "invoice",
			Actor:  in.Actor,
			Level:  "error",
			Meta: map[string]any{
				"email": customers.NormalizeEmail(in.Email),
				"error": err.Error(),
			},
		})
		return Invoice{}, err
	}

	path := s.objectPath(customer.Email)
	err = s.store.Upload(ctx, s.bucket, path, in.Data, objstore.UploadOptions{
		ContentType: "application/pdf",
		Metadata: map[string]string{
			"customer_id": customer.ID,
			"file_name":   in.FileName,
			"source":      in.Source,
		},
	})
	if err != nil {
		s.recordFailure(ctx, in, customer.ID, path, err)
		return Invoice{}, fmt.Errorf("store invoice pdf: %w", err)
	}

	invoice, err := s.invoices.Create(ctx, NewInvoice{
		CustomerID: customer.ID,
		Status:     "pending",
		FilePath:   path,
	})
	if err != nil {
		if removeErr := s.store.Remove(ctx, s.bucket, path); removeErr != nil {
			s.record(ctx, audit.Event{
				Event:      "invoice.intake.orphan_file",
				Entity:     "invoice",
				CustomerID: customer.ID,
				Level:      "error",
				Meta:       map[string]any{"path": path, "error": removeErr.Error()},
			})
		}
		s.recordFailure(ctx, in, customer.ID, path, err)
		return Invoice{}, err
	}

	s.record(ctx, audit.Event{
		Event:      "invoice.intake.accepted",
		Entity:     "invoice",
		EntityID:   invoice.ID,
		CustomerID: customer.ID,
		Actor:      in.Actor,
		Meta: map[string]any{
			"source":    in.Source,
			"file_name": in.FileName,
			"size":      len(in.Data),
		},
	})
	return invoice, nil
}

func (s *IntakeService) record(ctx context.Context, ev audit.Event) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, ev)
}

func (s *IntakeService) recordFailure(ctx context.Context, in IntakeInput, customerID, path string, cause error) {
	s.record(ctx, audit.Event{
		Event:      "invoice.intake.failed",
		Entity:     "invoice",
		CustomerID: customerID,
		Actor:      in.Actor,
		Level:      "error",
		Meta: map[string]any{
			"source": in.Source,
			"path":   path,
			"error":  cause.Error(),
		},
	})
}

// SetStatus updates the lifecycle status after validating it.
func (s *IntakeService) SetStatus(ctx context.Context, id, status, actor string) (Invoice, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if _, ok := allowedStatusUpdates[status]; !ok {
		return Invoice{}, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, status)
	}
	invoice, err := s.invoices.UpdateStatus(ctx, id, status)
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, audit.Event{
		Event:      "invoice.status.updated",
		Entity:     "invoice",
		EntityID:   invoice.ID,
		CustomerID: invoice.CustomerID,
		Actor:      actor,
		Meta:       map[string]any{"status": status},
	})
	return invoice, nil
}

// Reprocess queues an invoice for another extraction run.
func (s *IntakeService) Reprocess(ctx context.Context, id, actor string) (Invoice, error) {
	return s.SetStatus(ctx, id, "reprocess", actor)
}

// DownloadURL returns a short-lived signed URL for the stored PDF.
func (s *IntakeService) DownloadURL(ctx context.Context, id string) (string, error) {
	invoice, err := s.invoices.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if invoice.FilePath == nil || *invoice.FilePath == "" {
		return "", httpx.ErrNotFound
	}
	return s.store.SignedURL(ctx, s.bucket, *invoice.FilePath, 5*time.Minute)
}

func (s *IntakeService) validate(in IntakeInput) error {
	if in.CustomerID == "" && (customers.NormalizeEmail(in.Email) == "" || !strings.Contains(in.Email, "@")) {
		return fmt.Errorf("%w: a valid email is required", httpx.ErrValidation)
	}
	if len(in.Data) == 0 {
		return fmt.Errorf("%w: empty file", httpx.ErrValidation)
	}
	if len(in.Data) > s.maxBytes {
		return httpx.ErrTooLarge
	}
	if in.ContentType != "" && in.ContentType != "application/pdf" {
		return fmt.Errorf("%w: only PDF files are accepted", httpx.ErrValidation)
	}
	return nil
}

// objectPath shards stored PDFs by sanitized owner email and upload
// date: <email>/yyyy/mm/dd/<uuid>.pdf.
func (s *IntakeService) objectPath(email string) string {
	now := s.now().UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.pdf",
		sanitizeSegment(email), now.Year(), int(now.Month()), now.Day(), uuid.NewString())
}

func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "unknown"
	}
	return out
}
