package procurement

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zimam-erp/zimam-erp/internal/platform/db"
)

// Repository is the pgx implementation of RepositoryPort. Every method
// resolves its querier from the context, so calls made inside a db.WithTx
// block (including the reorder trigger running on the costing engine's
// transaction) share that transaction.
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

const poColumns = `id, company_id, supplier_id, po_number, status, order_date, expected_date,
	subtotal, tax_amount, discount_amount, total_amount, notes, created_by, created_at, updated_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.CompanyID, &po.SupplierID, &po.Number, &po.Status,
		&po.OrderDate, &po.ExpectedDate, &po.Subtotal, &po.TaxAmount, &po.DiscountAmount,
		&po.TotalAmount, &po.Notes, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrOrderNotFound
	}
	return po, err
}

// CreateSupplier inserts a supplier.
func (r *Repository) CreateSupplier(ctx context.Context, supplier Supplier) (int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO suppliers (company_id, name, email, phone, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id`,
		supplier.CompanyID, supplier.Name, supplier.Email, supplier.Phone, supplier.IsActive,
	).Scan(&id)
	return id, err
}

// GetSupplier loads a supplier scoped to a company.
func (r *Repository) GetSupplier(ctx context.Context, companyID, supplierID int64) (Supplier, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var s Supplier
	err := q.QueryRow(ctx, `
		SELECT id, company_id, name, email, phone, is_active, created_at
		FROM suppliers WHERE company_id = $1 AND id = $2`,
		companyID, supplierID,
	).Scan(&s.ID, &s.CompanyID, &s.Name, &s.Email, &s.Phone, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, err
}

// GetPurchaseOrder loads a purchase order with its lines.
func (r *Repository) GetPurchaseOrder(ctx context.Context, companyID, poID int64) (PurchaseOrder, []PurchaseOrderItem, error) {
	q := db.QuerierFrom(ctx, r.pool)
	po, err := scanPO(q.QueryRow(ctx, `
		SELECT `+poColumns+` FROM purchase_orders
		WHERE company_id = $1 AND id = $2`, companyID, poID))
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	items, err := r.ListItems(ctx, po.ID)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, items, nil
}

// ListPurchaseOrders lists company orders, optionally filtered by status,
// newest first.
func (r *Repository) ListPurchaseOrders(ctx context.Context, companyID int64, status POStatus, limit int) ([]PurchaseOrder, error) {
	q := db.QuerierFrom(ctx, r.pool)
	query := `SELECT ` + poColumns + ` FROM purchase_orders WHERE company_id = $1`
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
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

// CreatePurchaseOrder inserts the order header.
func (r *Repository) CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO purchase_orders
			(company_id, supplier_id, po_number, status, order_date, expected_date,
			 subtotal, tax_amount, discount_amount, total_amount, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id`,
		po.CompanyID, po.SupplierID, po.Number, string(po.Status), po.OrderDate, po.ExpectedDate,
		po.Subtotal, po.TaxAmount, po.DiscountAmount, po.TotalAmount, po.Notes, po.CreatedBy,
	).Scan(&id)
	return id, err
}

// InsertItem inserts an order line.
func (r *Repository) InsertItem(ctx context.Context, item PurchaseOrderItem) (int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO purchase_order_items
			(po_id, product_id, description, quantity, unit_price, total, received_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		item.POID, item.ProductID, item.Description, item.Quantity, item.UnitPrice, item.Total, item.ReceivedQty,
	).Scan(&id)
	return id, err
}

// UpdateItemQuantity bumps an existing line's quantity and total.
func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID int64, quantity, total decimal.Decimal) error {
	q := db.QuerierFrom(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE purchase_order_items SET quantity = $2, total = $3 WHERE id = $1`,
		itemID, quantity, total)
	return err
}

// UpdateItemReceived records delivered quantity against a line.
func (r *Repository) UpdateItemReceived(ctx context.Context, itemID int64, receivedQty decimal.Decimal) error {
	q := db.QuerierFrom(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE purchase_order_items SET received_quantity = $2 WHERE id = $1`,
		itemID, receivedQty)
	return err
}

// ListItems returns lines of a purchase order in insertion order.
func (r *Repository) ListItems(ctx context.Context, poID int64) ([]PurchaseOrderItem, error) {
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT id, po_id, product_id, description, quantity, unit_price, total, received_quantity
		FROM purchase_order_items WHERE po_id = $1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrderItem
	for rows.Next() {
		var item PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ProductID, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.Total, &item.ReceivedQty); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateOrderStatus moves the order through its lifecycle.
func (r *Repository) UpdateOrderStatus(ctx context.Context, poID int64, status POStatus) error {
	q := db.QuerierFrom(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`,
		poID, string(status))
	return err
}

// UpdateOrderTotals rewrites the derived totals.
func (r *Repository) UpdateOrderTotals(ctx context.Context, poID int64, subtotal, total decimal.Decimal) error {
	q := db.QuerierFrom(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE purchase_orders SET subtotal = $2, total_amount = $3, updated_at = NOW() WHERE id = $1`,
		poID, subtotal, total)
	return err
}

// PendingQuantity sums outstanding ordered quantity for a product across
// orders in the given statuses.
func (r *Repository) PendingQuantity(ctx context.Context, companyID, productID int64, statuses []POStatus) (decimal.Decimal, error) {
	q := db.QuerierFrom(ctx, r.pool)
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}
	var pending decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(i.quantity), 0)
		FROM purchase_order_items i
		JOIN purchase_orders po ON po.id = i.po_id
		WHERE po.company_id = $1 AND i.product_id = $2 AND po.status = ANY($3)`,
		companyID, productID, strs,
	).Scan(&pending)
	return pending, err
}

// FindDraftOrder returns the newest open draft for a supplier, used by the
// reorder automation to accumulate lines instead of creating duplicates.
func (r *Repository) FindDraftOrder(ctx context.Context, companyID, supplierID int64) (PurchaseOrder, error) {
	q := db.QuerierFrom(ctx, r.pool)
	return scanPO(q.QueryRow(ctx, `
		SELECT `+poColumns+` FROM purchase_orders
		WHERE company_id = $1 AND supplier_id = $2 AND status = 'draft'
		ORDER BY created_at DESC
		LIMIT 1`, companyID, supplierID))
}

// FindItem returns the line for a product on an order.
func (r *Repository) FindItem(ctx context.Context, poID, productID int64) (PurchaseOrderItem, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var item PurchaseOrderItem
	err := q.QueryRow(ctx, `
		SELECT id, po_id, product_id, description, quantity, unit_price, total, received_quantity
		FROM purchase_order_items WHERE po_id = $1 AND product_id = $2`, poID, productID,
	).Scan(&item.ID, &item.POID, &item.ProductID, &item.Description,
		&item.Quantity, &item.UnitPrice, &item.Total, &item.ReceivedQty)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrderItem{}, ErrOrderNotFound
	}
	return item, err
}

// CreateReceipt inserts a goods receipt header.
func (r *Repository) CreateReceipt(ctx context.Context, receipt GoodsReceipt) (int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO goods_receipts (company_id, po_id, receipt_number, receipt_date, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id`,
		receipt.CompanyID, receipt.POID, receipt.Number, receipt.ReceiptDate, receipt.Notes, receipt.CreatedBy,
	).Scan(&id)
	return id, err
}

// InsertReceiptLine inserts one received line.
func (r *Repository) InsertReceiptLine(ctx context.Context, line GoodsReceiptLine) (int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO goods_receipt_lines (receipt_id, po_item_id, product_id, quantity, unit_cost)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		line.ReceiptID, line.POItemID, line.ProductID, line.Quantity, line.UnitCost,
	).Scan(&id)
	return id, err
}
