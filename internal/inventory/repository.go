package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zimam-erp/zimam-erp/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction. Nested
// repository calls made with the callback context join the transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, fn)
}

// IsRetryable reports whether err is a transient serialization conflict.
func (r *Repository) IsRetryable(err error) bool {
	return db.IsSerializationFailure(err)
}

const productColumns = `id, company_id, sku, name, current_stock, average_cost, cost_price, reorder_point,
ai_suggested_reorder_point, preferred_supplier_id, last_restocked, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p             Product
		suggested     *int64
		supplierID    *int64
		lastRestocked *time.Time
	)
	err := row.Scan(&p.ID, &p.CompanyID, &p.SKU, &p.Name, &p.CurrentStock, &p.AverageCost, &p.CostPrice,
		&p.ReorderPoint, &suggested, &supplierID, &lastRestocked, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	if suggested != nil {
		p.SuggestedReorderPt = *suggested
	}
	if supplierID != nil {
		p.PreferredSupplierID = *supplierID
	}
	if lastRestocked != nil {
		p.LastRestocked = *lastRestocked
	}
	return p, nil
}

// GetProduct loads a product within company scope.
func (r *Repository) GetProduct(ctx context.Context, companyID, productID int64) (Product, error) {
	q := db.QuerierFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 AND company_id=$2`, productID, companyID)
	return scanProduct(row)
}

// GetProductForUpdate loads a product holding its row lock until commit.
func (r *Repository) GetProductForUpdate(ctx context.Context, companyID, productID int64) (Product, error) {
	q := db.QuerierFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 AND company_id=$2 FOR UPDATE`, productID, companyID)
	return scanProduct(row)
}

// UpdateProductLedger writes the costing-engine-owned fields of a product.
func (r *Repository) UpdateProductLedger(ctx context.Context, product Product) error {
	q := db.QuerierFrom(ctx, r.pool)
	_, err := q.Exec(ctx, `UPDATE products
SET current_stock=$1, average_cost=$2, last_restocked=$3, updated_at=NOW()
WHERE id=$4 AND company_id=$5`,
		product.CurrentStock, product.AverageCost, nullTime(product.LastRestocked), product.ID, product.CompanyID)
	return err
}

// InsertTransaction appends one immutable ledger entry.
func (r *Repository) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO inventory_transactions
(product_id, company_id, tx_type, quantity, unit_cost, total_cost, running_balance, ref_kind, ref_id, notes, needs_review, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		tx.ProductID, tx.CompanyID, string(tx.Type), tx.Quantity, tx.UnitCost, tx.TotalCost, tx.RunningBalance,
		string(tx.Ref.Kind), nullInt(tx.Ref.ID), tx.Notes, tx.NeedsReview, nullInt(tx.CreatedBy), tx.CreatedAt).Scan(&id)
	return id, err
}

// ListTransactions reads ledger entries for a product, oldest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	q := db.QuerierFrom(ctx, r.pool)
	sql := `SELECT id, product_id, company_id, tx_type, quantity, unit_cost, total_cost, running_balance,
ref_kind, ref_id, notes, needs_review, created_by, created_at
FROM inventory_transactions
WHERE product_id=$1 AND company_id=$2`
	args := []any{filter.ProductID, filter.CompanyID}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		sql += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		sql += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		sql += ` AND tx_type = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	sql += ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Transaction
	for rows.Next() {
		var (
			e         Transaction
			refKind   string
			refID     *int64
			createdBy *int64
		)
		if err := rows.Scan(&e.ID, &e.ProductID, &e.CompanyID, &e.Type, &e.Quantity, &e.UnitCost, &e.TotalCost,
			&e.RunningBalance, &refKind, &refID, &e.Notes, &e.NeedsReview, &createdBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Ref.Kind = DocumentKind(refKind)
		if refID != nil {
			e.Ref.ID = *refID
		}
		if createdBy != nil {
			e.CreatedBy = *createdBy
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// BalanceAsOf returns the running balance of the latest entry at or before
// the given time, zero when none exist.
func (r *Repository) BalanceAsOf(ctx context.Context, companyID, productID int64, at time.Time) (decimal.Decimal, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var balance decimal.Decimal
	err := q.QueryRow(ctx, `SELECT running_balance FROM inventory_transactions
WHERE product_id=$1 AND company_id=$2 AND created_at <= $3
ORDER BY created_at DESC, id DESC LIMIT 1`, productID, companyID, at).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return balance, nil
}

// SetSuggestedReorderPoints writes predictor output, advisory field only.
func (r *Repository) SetSuggestedReorderPoints(ctx context.Context, companyID int64, points map[int64]int64) error {
	q := db.QuerierFrom(ctx, r.pool)
	for productID, point := range points {
		if _, err := q.Exec(ctx, `UPDATE products SET ai_suggested_reorder_point=$1, updated_at=NOW()
WHERE id=$2 AND company_id=$3`, point, productID, companyID); err != nil {
			return err
		}
	}
	return nil
}

// ActiveCompanyIDs lists companies with active products, used by background
// sweeps.
func (r *Repository) ActiveCompanyIDs(ctx context.Context) ([]int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT DISTINCT company_id FROM products WHERE is_active ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActiveProductIDs lists a company's active products, used by background
// sweeps.
func (r *Repository) ActiveProductIDs(ctx context.Context, companyID int64) ([]int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT id FROM products WHERE company_id=$1 AND is_active ORDER BY id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListLowStock returns active products at or below their reorder point.
func (r *Repository) ListLowStock(ctx context.Context, companyID int64, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 200
	}
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE company_id=$1 AND is_active AND current_stock <= reorder_point
ORDER BY current_stock - reorder_point ASC
LIMIT $2`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
