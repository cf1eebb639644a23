package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zimam-erp/zimam-erp/internal/inventory"
	"github.com/zimam-erp/zimam-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
	CreateCustomer(ctx context.Context, customer Customer) (int64, error)
	GetCustomer(ctx context.Context, companyID, customerID int64) (Customer, error)
	CreateInvoice(ctx context.Context, invoice Invoice) (int64, error)
	GetInvoice(ctx context.Context, companyID, invoiceID int64) (Invoice, []InvoiceItem, error)
	ListInvoices(ctx context.Context, companyID int64, status InvoiceStatus, limit int) ([]Invoice, error)
	InsertItem(ctx context.Context, item InvoiceItem) (int64, error)
	UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus) error
	UpdateInvoiceTotals(ctx context.Context, invoiceID int64, subtotal, total decimal.Decimal) error
}

// InventoryPort exposes the costing engine for stock deduction on posting.
type InventoryPort interface {
	ProcessTransaction(ctx context.Context, input inventory.TransactionInput) (inventory.Product, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates customers and sales invoices.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
}

// NewService constructs sales service.
func NewService(repo RepositoryPort, inv InventoryPort, audit AuditPort, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, inventory: inv, audit: audit, idempotency: idem, logger: logger}
}

// CreateCustomer persists a customer.
func (s *Service) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	if customer.CompanyID == 0 || customer.Name == "" {
		return Customer{}, fmt.Errorf("%w: company and name required", ErrValidation)
	}
	customer.IsActive = true
	id, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return Customer{}, err
	}
	customer.ID = id
	return customer, nil
}

// InvoiceItemInput describes one line of a new invoice.
type InvoiceItemInput struct {
	ProductID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// CreateInvoiceInput describes a draft invoice.
type CreateInvoiceInput struct {
	CompanyID  int64
	CustomerID int64
	Number     string
	Notes      string
	ActorID    int64
	Items      []InvoiceItemInput
}

// CreateInvoice raises a draft invoice with its lines. Drafts have no stock
// impact until posted.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if input.CompanyID == 0 || input.CustomerID == 0 || len(input.Items) == 0 {
		return Invoice{}, fmt.Errorf("%w: company, customer and at least one line required", ErrValidation)
	}
	if _, err := s.repo.GetCustomer(ctx, input.CompanyID, input.CustomerID); err != nil {
		return Invoice{}, err
	}
	now := time.Now().UTC()
	invoice := Invoice{
		CompanyID:   input.CompanyID,
		CustomerID:  input.CustomerID,
		Number:      input.Number,
		Status:      InvoiceStatusDraft,
		InvoiceDate: now,
		Notes:       input.Notes,
		CreatedBy:   input.ActorID,
	}
	if invoice.Number == "" {
		invoice.Number = fmt.Sprintf("INV-%d", now.UnixNano())
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		id, err := s.repo.CreateInvoice(ctx, invoice)
		if err != nil {
			return err
		}
		invoice.ID = id
		subtotal := decimal.Zero
		for _, line := range input.Items {
			if line.ProductID == 0 || !line.Quantity.IsPositive() {
				return fmt.Errorf("%w: line product and positive quantity required", ErrValidation)
			}
			item := InvoiceItem{
				InvoiceID:   id,
				ProductID:   line.ProductID,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Total:       line.Quantity.Mul(line.UnitPrice),
			}
			if _, err := s.repo.InsertItem(ctx, item); err != nil {
				return err
			}
			subtotal = subtotal.Add(item.Total)
		}
		total := subtotal.Add(invoice.TaxAmount)
		invoice.Subtotal = subtotal
		invoice.TotalAmount = total
		return s.repo.UpdateInvoiceTotals(ctx, id, subtotal, total)
	})
	if err != nil {
		return Invoice{}, err
	}
	return invoice, nil
}

// GetInvoice loads an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, companyID, invoiceID int64) (Invoice, []InvoiceItem, error) {
	return s.repo.GetInvoice(ctx, companyID, invoiceID)
}

// ListInvoices lists invoices, optionally filtered by status.
func (s *Service) ListInvoices(ctx context.Context, companyID int64, status InvoiceStatus, limit int) ([]Invoice, error) {
	if companyID == 0 {
		return nil, fmt.Errorf("%w: company required", ErrValidation)
	}
	return s.repo.ListInvoices(ctx, companyID, status, limit)
}

// PostInvoice deducts stock for every line of a draft invoice in one
// transaction. Any line failure, including a negative stock rejection on the
// last line, rolls back the whole posting. Each ledger entry references its
// invoice line and snapshots the average cost at deduction time, which is
// what the profitability reports later consume.
func (s *Service) PostInvoice(ctx context.Context, companyID, invoiceID, actorID int64) (Invoice, error) {
	invoice, items, err := s.repo.GetInvoice(ctx, companyID, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if invoice.Status != InvoiceStatusDraft {
		return Invoice{}, fmt.Errorf("%w: only draft invoices can be posted", ErrInvalidState)
	}

	key := fmt.Sprintf("INV-POST:%d", invoiceID)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "sales.invoice"); err != nil {
			return Invoice{}, err
		}
		inserted = true
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		for _, item := range items {
			if _, err := s.inventory.ProcessTransaction(ctx, inventory.TransactionInput{
				CompanyID: companyID,
				ProductID: item.ProductID,
				Type:      inventory.TransactionTypeSale,
				Quantity:  item.Quantity.Neg(),
				Ref:       inventory.InvoiceLineRef(item.ID),
				Notes:     fmt.Sprintf("Invoice %s", invoice.Number),
				ActorID:   actorID,
			}); err != nil {
				return fmt.Errorf("line %d: %w", item.ID, err)
			}
		}
		return s.repo.UpdateInvoiceStatus(ctx, invoiceID, InvoiceStatusPosted)
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Invoice{}, err
	}
	invoice.Status = InvoiceStatusPosted

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "sales:invoice_post",
			Entity:   "invoice",
			EntityID: invoiceID,
			Meta:     map[string]any{"number": invoice.Number},
		})
	}
	return invoice, nil
}

// CancelInvoice abandons a draft invoice.
func (s *Service) CancelInvoice(ctx context.Context, companyID, invoiceID int64) error {
	invoice, _, err := s.repo.GetInvoice(ctx, companyID, invoiceID)
	if err != nil {
		return err
	}
	if invoice.Status != InvoiceStatusDraft {
		return fmt.Errorf("%w: only draft invoices can be cancelled", ErrInvalidState)
	}
	return s.repo.UpdateInvoiceStatus(ctx, invoiceID, InvoiceStatusCancelled)
}

// IsRetryablePostError reports whether a failed posting may be retried, for
// callers that map lock conflicts to a retry hint.
func IsRetryablePostError(err error) bool {
	return errors.Is(err, inventory.ErrConcurrentModification)
}
