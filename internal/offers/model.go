// Package offers manages comparison PDFs attached to invoices.
package offers

import "time"

// Offer is one stored comparison document.
type Offer struct {
	ID         string    `json:"id"`
	InvoiceID  string    `json:"invoiceId"`
	CustomerID string    `json:"customerId"`
	Provider   string    `json:"provider"`
	FilePath   string    `json:"-"`
	FileName   string    `json:"fileName"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
