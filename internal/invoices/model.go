// Package invoices owns the invoice lifecycle: intake, review,
// dashboard aggregation and CSV export.
package invoices

import "time"

// StatusCategory is the reporting bucket a raw status maps into.
type StatusCategory string

const (
	StatusPending   StatusCategory = "pending"
	StatusProcessed StatusCategory = "processed"
	StatusSuccess   StatusCategory = "success"
)

// Categories lists the fixed reporting buckets in display order.
var Categories = []StatusCategory{StatusPending, StatusProcessed, StatusSuccess}

var statusCategories = map[string]StatusCategory{
	"pending":   StatusPending,
	"queued":    StatusPending,
	"reprocess": StatusPending,
	"error":     StatusPending,
	"processed": StatusProcessed,
	"done":      StatusSuccess,
	"success":   StatusSuccess,
}

// MapStatus normalizes a raw status value into its category. Unknown
// or missing statuses count as pending.
func MapStatus(raw *string) StatusCategory {
	if raw == nil {
		return StatusPending
	}
	if cat, ok := statusCategories[*raw]; ok {
		return cat
	}
	return StatusPending
}

// CustomerRef is the customer projection joined onto invoice rows.
type CustomerRef struct {
	ID    string  `json:"id"`
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// DisplayName picks the best label for a row: name, then email, then
// the raw id.
func (c CustomerRef) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	if c.Email != nil && *c.Email != "" {
		return *c.Email
	}
	return c.ID
}

// Invoice is one stored invoice record.
type Invoice struct {
	ID               string         `json:"id"`
	CustomerID       string         `json:"customerId"`
	Customer         *CustomerRef   `json:"customer,omitempty"`
	Status           *string        `json:"status"`
	Total            *float64       `json:"total"`
	IssueDate        *time.Time     `json:"issueDate"`
	BillingStartDate *time.Time     `json:"billingStartDate"`
	BillingEndDate   *time.Time     `json:"billingEndDate"`
	FilePath         *string        `json:"filePath,omitempty"`
	ExtractedFields  map[string]any `json:"extractedFields,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// Category returns the invoice's reporting bucket.
func (inv Invoice) Category() StatusCategory {
	return MapStatus(inv.Status)
}
