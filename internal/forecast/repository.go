package forecast

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zimam-erp/zimam-erp/internal/platform/db"
)

// Repository aggregates sales history out of the transaction log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SalesHistorySince returns per-product outbound totals for sale
// transactions after the cutoff. Sale quantities are stored negative in the
// log, so the sum is negated back to units sold.
func (r *Repository) SalesHistorySince(ctx context.Context, companyID int64, since time.Time) ([]SalesHistory, error) {
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT product_id,
		       -SUM(quantity) AS total_sold,
		       COUNT(DISTINCT DATE(created_at)) AS active_days
		FROM inventory_transactions
		WHERE company_id = $1 AND tx_type = 'sale' AND created_at >= $2
		GROUP BY product_id`, companyID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SalesHistory
	for rows.Next() {
		var h SalesHistory
		if err := rows.Scan(&h.ProductID, &h.TotalSold, &h.ActiveDays); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
