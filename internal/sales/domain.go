package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus enumerates the invoice lifecycle.
type InvoiceStatus string

const (
	// InvoiceStatusDraft has no stock impact yet.
	InvoiceStatusDraft InvoiceStatus = "draft"
	// InvoiceStatusPosted has deducted stock for every line.
	InvoiceStatusPosted InvoiceStatus = "posted"
	// InvoiceStatusCancelled was abandoned before posting.
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Customer is a minimal customer record for invoicing.
type Customer struct {
	ID        int64
	CompanyID int64
	Name      string
	Email     string
	Phone     string
	IsActive  bool
	CreatedAt time.Time
}

// Invoice models the sales invoice header.
type Invoice struct {
	ID          int64
	CompanyID   int64
	CustomerID  int64
	Number      string
	Status      InvoiceStatus
	InvoiceDate time.Time
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	TotalAmount decimal.Decimal
	Notes       string
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InvoiceItem is one invoiced line. Posting it deducts Quantity from stock
// and snapshots the product's average cost on the resulting ledger entry.
type InvoiceItem struct {
	ID          int64
	InvoiceID   int64
	ProductID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// ErrValidation indicates invalid input.
var ErrValidation = errors.New("sales: validation failed")

// ErrInvalidState indicates a lifecycle transition that is not allowed.
var ErrInvalidState = errors.New("sales: invalid state transition")

// ErrInvoiceNotFound indicates missing invoice.
var ErrInvoiceNotFound = errors.New("sales: invoice not found")

// ErrCustomerNotFound indicates missing customer.
var ErrCustomerNotFound = errors.New("sales: customer not found")
