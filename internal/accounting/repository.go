package accounting

import (
	"context"
	"time"

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

// CostOfGoodsSold sums cost snapshots of sale transactions over the period.
// total_cost is stored unsigned and sale quantities negative, so units sold
// come back negated.
func (r *Repository) CostOfGoodsSold(ctx context.Context, companyID int64, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var cogs, units decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_cost), 0), COALESCE(-SUM(quantity), 0)
		FROM inventory_transactions
		WHERE company_id = $1 AND tx_type = 'sale' AND created_at BETWEEN $2 AND $3`,
		companyID, from, to,
	).Scan(&cogs, &units)
	return cogs, units, err
}

// ValuationAsOf values stock per product at a point in time by summing
// signed transaction costs: incoming entries add quantity times actual cost
// and outgoing entries release quantity times the average cost snapshot,
// which is the weighted average identity.
func (r *Repository) ValuationAsOf(ctx context.Context, companyID int64, asOf time.Time) ([]ValuationLine, error) {
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT t.product_id, p.sku, p.name,
		       COALESCE(SUM(t.quantity), 0) AS on_hand,
		       COALESCE(SUM(CASE WHEN t.quantity >= 0 THEN t.total_cost ELSE -t.total_cost END), 0) AS value
		FROM inventory_transactions t
		JOIN products p ON p.id = t.product_id
		WHERE t.company_id = $1 AND t.created_at <= $2
		GROUP BY t.product_id, p.sku, p.name
		ORDER BY p.sku`, companyID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ValuationLine
	for rows.Next() {
		var line ValuationLine
		if err := rows.Scan(&line.ProductID, &line.SKU, &line.Name, &line.OnHand, &line.Value); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}
