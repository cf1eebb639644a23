package forecast

import (
	"github.com/shopspring/decimal"
)

const (
	// LookbackDays bounds the sales history window the predictor reads.
	LookbackDays = 90
	// leadTimeDays is the assumed supplier lead time.
	leadTimeDays = 7
	// safetyFactor pads the lead-time demand against variability.
	safetyFactor = "0.3"
)

// SalesHistory aggregates outbound movement for one product over the
// lookback window.
type SalesHistory struct {
	ProductID int64
	TotalSold decimal.Decimal
	// ActiveDays counts distinct calendar days with at least one sale.
	ActiveDays int64
}

// Suggestion is a predicted reorder point for one product.
type Suggestion struct {
	ProductID    int64 `json:"product_id"`
	ReorderPoint int64 `json:"reorder_point"`
}

// PredictReorderPoint derives a reorder point from aggregated history.
//
// Demand is averaged over days that actually had sales, not the whole
// window, so a product selling 30 units across 10 busy days is treated as
// moving 3 a day. The point covers lead-time demand plus a 30% safety
// buffer, truncated to a whole unit, and never drops below 1 so slow
// movers keep a minimal floor.
func PredictReorderPoint(history SalesHistory) int64 {
	days := history.ActiveDays
	if days < 1 {
		days = 1
	}
	avgDaily := history.TotalSold.Div(decimal.NewFromInt(days))
	base := avgDaily.Mul(decimal.NewFromInt(leadTimeDays))
	safety := base.Mul(decimal.RequireFromString(safetyFactor))
	point := base.Add(safety).IntPart()
	if point < 1 {
		point = 1
	}
	return point
}
