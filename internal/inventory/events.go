package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReorderInput carries the post-transaction stock figure the trigger must
// observe, so it is only ever built while the product row lock is held.
type ReorderInput struct {
	CompanyID    int64
	ProductID    int64
	ProductName  string
	SupplierID   int64
	CurrentStock decimal.Decimal
	ReorderPoint decimal.Decimal
	StandardCost decimal.Decimal
	ActorID      int64
}

// ReorderTrigger receives low-stock events for draft purchase order
// automation. Implementations run on the caller's database transaction.
type ReorderTrigger interface {
	MaybeReorder(ctx context.Context, input ReorderInput) error
}

// MetricsPort counts posted transactions and fired triggers.
type MetricsPort interface {
	TransactionPosted(t TransactionType)
	ReorderTriggered()
}
