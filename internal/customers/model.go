package customers

import (
	"strings"
	"time"
)

// Customer is an account holder that invoices belong to.
type Customer struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     *string    `json:"phone,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"`
}

// InvoiceSummary is the customer's most recent invoice, shown on the
// detail view.
type InvoiceSummary struct {
	ID        string     `json:"id"`
	Status    *string    `json:"status"`
	Total     *float64   `json:"total"`
	IssueDate *time.Time `json:"issueDate"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NormalizeEmail lowercases and trims an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
