package sales

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zimam-erp/zimam-erp/internal/platform/db"
)

// Repository is the pgx implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

// CreateCustomer inserts a customer.
func (r *Repository) CreateCustomer(ctx context.Context, customer Customer) (int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO customers (company_id, name, email, phone, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id`,
		customer.CompanyID, customer.Name, customer.Email, customer.Phone, customer.IsActive,
	).Scan(&id)
	return id, err
}

// GetCustomer loads a customer scoped to a company.
func (r *Repository) GetCustomer(ctx context.Context, companyID, customerID int64) (Customer, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var c Customer
	err := q.QueryRow(ctx, `
		SELECT id, company_id, name, email, phone, is_active, created_at
		FROM customers WHERE company_id = $1 AND id = $2`,
		companyID, customerID,
	).Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

const invoiceColumns = `id, company_id, customer_id, invoice_number, status, invoice_date,
	subtotal, tax_amount, total_amount, notes, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.CustomerID, &inv.Number, &inv.Status,
		&inv.InvoiceDate, &inv.Subtotal, &inv.TaxAmount, &inv.TotalAmount,
		&inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

// CreateInvoice inserts the invoice header.
func (r *Repository) CreateInvoice(ctx context.Context, invoice Invoice) (int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO invoices
			(company_id, customer_id, invoice_number, status, invoice_date,
			 subtotal, tax_amount, total_amount, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id`,
		invoice.CompanyID, invoice.CustomerID, invoice.Number, string(invoice.Status), invoice.InvoiceDate,
		invoice.Subtotal, invoice.TaxAmount, invoice.TotalAmount, invoice.Notes, invoice.CreatedBy,
	).Scan(&id)
	return id, err
}

// GetInvoice loads an invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, companyID, invoiceID int64) (Invoice, []InvoiceItem, error) {
	q := db.QuerierFrom(ctx, r.pool)
	inv, err := scanInvoice(q.QueryRow(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE company_id = $1 AND id = $2`, companyID, invoiceID))
	if err != nil {
		return Invoice{}, nil, err
	}
	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, product_id, description, quantity, unit_price, total
		FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return Invoice{}, nil, err
	}
	defer rows.Close()
	var items []InvoiceItem
	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.Total); err != nil {
			return Invoice{}, nil, err
		}
		items = append(items, item)
	}
	return inv, items, rows.Err()
}

// ListInvoices lists company invoices, optionally filtered by status, newest
// first.
func (r *Repository) ListInvoices(ctx context.Context, companyID int64, status InvoiceStatus, limit int) ([]Invoice, error) {
	q := db.QuerierFrom(ctx, r.pool)
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE company_id = $1`
	args := []any{companyID}
	if status != "" {
		args = append(args, string(status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	rows, err := q.Query(ctx, query, args...)
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

// InsertItem inserts an invoice line.
func (r *Repository) InsertItem(ctx context.Context, item InvoiceItem) (int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO invoice_items (invoice_id, product_id, description, quantity, unit_price, total)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		item.InvoiceID, item.ProductID, item.Description, item.Quantity, item.UnitPrice, item.Total,
	).Scan(&id)
	return id, err
}

// UpdateInvoiceStatus moves the invoice through its lifecycle.
func (r *Repository) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus) error {
	q := db.QuerierFrom(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`,
		invoiceID, string(status))
	return err
}

// UpdateInvoiceTotals rewrites the derived totals.
func (r *Repository) UpdateInvoiceTotals(ctx context.Context, invoiceID int64, subtotal, total decimal.Decimal) error {
	q := db.QuerierFrom(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE invoices SET subtotal = $2, total_amount = $3, updated_at = NOW() WHERE id = $1`,
		invoiceID, subtotal, total)
	return err
}
