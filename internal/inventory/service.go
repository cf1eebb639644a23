package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zimam-erp/zimam-erp/internal/platform/db"
	"github.com/zimam-erp/zimam-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service. All methods join the
// transaction opened by WithTx when called from inside its callback.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
	GetProduct(ctx context.Context, companyID, productID int64) (Product, error)
	GetProductForUpdate(ctx context.Context, companyID, productID int64) (Product, error)
	UpdateProductLedger(ctx context.Context, product Product) error
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	BalanceAsOf(ctx context.Context, companyID, productID int64, at time.Time) (decimal.Decimal, error)
	ListLowStock(ctx context.Context, companyID int64, limit int) ([]Product, error)
	IsRetryable(err error) bool
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the costing engine. Every stock-affecting business event flows
// through ProcessTransaction, which keeps the weighted average cost and the
// append-only ledger consistent under a per-product row lock.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	trigger  ReorderTrigger
	metrics  MetricsPort
	logger   *slog.Logger
	allowNeg bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, trigger ReorderTrigger, metrics MetricsPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, trigger: trigger, metrics: metrics, logger: logger, allowNeg: cfg.AllowNegativeStock}
}

// TransactionInput describes one stock movement to post.
type TransactionInput struct {
	CompanyID int64
	ProductID int64
	Type      TransactionType
	// Quantity is signed: positive receives stock, negative issues it.
	Quantity decimal.Decimal
	// UnitCost applies to incoming movement only; nil falls back to the
	// current average cost (transfers in, manual adjustments).
	UnitCost *decimal.Decimal
	Ref      DocumentRef
	Notes    string
	ActorID  int64
}

func (in TransactionInput) validate() error {
	if in.ProductID == 0 || in.CompanyID == 0 {
		return fmt.Errorf("inventory: company and product required")
	}
	rule, ok := typeRules[in.Type]
	if !ok {
		return ErrInvalidType
	}
	if in.Quantity.IsZero() {
		return ErrInvalidQuantity
	}
	if rule.direction > 0 && in.Quantity.IsNegative() {
		return ErrInvalidQuantity
	}
	if rule.direction < 0 && in.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if in.UnitCost != nil && in.UnitCost.IsNegative() {
		return ErrInvalidUnitCost
	}
	if in.UnitCost != nil && !rule.costBearing {
		// transfer_in and all outgoing types carry the existing average;
		// a caller-supplied cost on them would silently skew the WAC.
		return ErrInvalidUnitCost
	}
	return nil
}

// ProcessTransaction applies one movement: recalculates the weighted average
// cost for incoming stock, snapshots the issue cost for outgoing stock,
// updates the product head state and appends the ledger entry, all inside a
// single database transaction holding the product row lock. An outgoing
// movement that lands at or below the reorder point fires the
// auto-procurement trigger in the same transaction; trigger failures are
// logged and never abort the ledger write.
func (s *Service) ProcessTransaction(ctx context.Context, input TransactionInput) (Product, error) {
	if err := input.validate(); err != nil {
		return Product{}, err
	}

	var (
		updated Product
		posted  Transaction
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		product, err := s.repo.GetProductForUpdate(ctx, input.CompanyID, input.ProductID)
		if err != nil {
			return err
		}

		stockBefore := product.CurrentStock
		avgBefore := product.AverageCost
		now := time.Now().UTC()

		var unitCost decimal.Decimal
		needsReview := false
		if input.Quantity.IsPositive() {
			if input.UnitCost != nil {
				unitCost = *input.UnitCost
			} else {
				unitCost = avgBefore
				if avgBefore.IsZero() && !stockBefore.IsPositive() {
					// Incoming goods with no cost basis at all: accept at
					// zero and flag, blocking a receipt is worse than an
					// imperfect costing that can be corrected later.
					needsReview = true
				}
			}
			newStock := stockBefore.Add(input.Quantity)
			if newStock.IsPositive() {
				totalValue := stockBefore.Mul(avgBefore).Add(input.Quantity.Mul(unitCost))
				product.AverageCost = totalValue.Div(newStock)
			} else {
				product.AverageCost = unitCost
			}
			product.LastRestocked = now
		} else {
			unitCost = avgBefore
		}

		product.CurrentStock = stockBefore.Add(input.Quantity)
		if !s.allowNeg && product.CurrentStock.IsNegative() {
			return ErrNegativeStock
		}
		if err := s.repo.UpdateProductLedger(ctx, product); err != nil {
			return err
		}

		entry := Transaction{
			ProductID:      product.ID,
			CompanyID:      product.CompanyID,
			Type:           input.Type,
			Quantity:       input.Quantity,
			UnitCost:       unitCost,
			TotalCost:      input.Quantity.Abs().Mul(unitCost),
			RunningBalance: product.CurrentStock,
			Ref:            input.Ref,
			Notes:          input.Notes,
			NeedsReview:    needsReview,
			CreatedBy:      input.ActorID,
			CreatedAt:      now,
		}
		entryID, err := s.repo.InsertTransaction(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = entryID

		if needsReview {
			s.logger.Warn("inventory posting accepted with zero cost basis",
				slog.Int64("product_id", product.ID),
				slog.String("type", string(input.Type)))
		}

		if input.Quantity.IsNegative() && product.LowStock() && product.PreferredSupplierID != 0 {
			s.fireReorder(ctx, product, input.ActorID)
		}

		updated = product
		posted = entry
		return nil
	})
	if err != nil {
		if s.repo.IsRetryable(err) {
			return Product{}, fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return Product{}, err
	}

	if s.metrics != nil {
		s.metrics.TransactionPosted(input.Type)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("inventory:%s", input.Type),
			Entity:   "inventory_tx",
			EntityID: posted.ID,
			Meta: map[string]any{
				"product_id":      input.ProductID,
				"qty":             input.Quantity.String(),
				"unit_cost":       posted.UnitCost.String(),
				"running_balance": posted.RunningBalance.String(),
			},
		})
	}
	return updated, nil
}

// fireReorder invokes the auto-procurement trigger and isolates its failure
// from the surrounding ledger transaction.
func (s *Service) fireReorder(ctx context.Context, product Product, actorID int64) {
	if s.trigger == nil {
		return
	}
	input := ReorderInput{
		CompanyID:    product.CompanyID,
		ProductID:    product.ID,
		ProductName:  product.Name,
		SupplierID:   product.PreferredSupplierID,
		CurrentStock: product.CurrentStock,
		ReorderPoint: product.ReorderPoint,
		StandardCost: product.CostPrice,
		ActorID:      actorID,
	}
	// A savepoint confines any failed statement inside the trigger; without
	// it a database error would abort the whole ledger transaction even
	// though the Go error is swallowed here.
	err := db.WithSavepoint(ctx, func(ctx context.Context) error {
		return s.trigger.MaybeReorder(ctx, input)
	})
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrProcurementTrigger, err)
		s.logger.Error("auto procurement trigger failed",
			slog.Int64("product_id", product.ID),
			slog.Any("error", wrapped))
		return
	}
	if s.metrics != nil {
		s.metrics.ReorderTriggered()
	}
}

// GetProduct returns the product head state within company scope.
func (s *Service) GetProduct(ctx context.Context, companyID, productID int64) (Product, error) {
	if companyID == 0 || productID == 0 {
		return Product{}, errors.New("inventory: company and product required")
	}
	return s.repo.GetProduct(ctx, companyID, productID)
}

// ListTransactions lists ledger entries for a product in a date window.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if filter.ProductID == 0 || filter.CompanyID == 0 {
		return nil, errors.New("inventory: company and product required")
	}
	return s.repo.ListTransactions(ctx, filter)
}

// BalanceAsOf returns the running balance of the latest ledger entry at or
// before the given time, zero when the log is empty up to that point.
func (s *Service) BalanceAsOf(ctx context.Context, companyID, productID int64, at time.Time) (decimal.Decimal, error) {
	if companyID == 0 || productID == 0 {
		return decimal.Zero, errors.New("inventory: company and product required")
	}
	return s.repo.BalanceAsOf(ctx, companyID, productID, at)
}

// ListLowStock lists active products at or below their reorder point.
func (s *Service) ListLowStock(ctx context.Context, companyID int64, limit int) ([]Product, error) {
	if companyID == 0 {
		return nil, errors.New("inventory: company required")
	}
	return s.repo.ListLowStock(ctx, companyID, limit)
}

// Reconcile replays the full ledger of a product and compares the result
// against the cached head state. With repair set, a drifted product row is
// rewritten from the replay; the log itself is never touched.
func (s *Service) Reconcile(ctx context.Context, companyID, productID int64, repair bool) (ReconcileReport, error) {
	var report ReconcileReport
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		product, err := s.repo.GetProductForUpdate(ctx, companyID, productID)
		if err != nil {
			return err
		}
		entries, err := s.repo.ListTransactions(ctx, TransactionFilter{CompanyID: companyID, ProductID: productID})
		if err != nil {
			return err
		}

		stock := decimal.Zero
		avgCost := decimal.Zero
		for _, e := range entries {
			if e.Quantity.IsPositive() {
				newStock := stock.Add(e.Quantity)
				if newStock.IsPositive() {
					avgCost = stock.Mul(avgCost).Add(e.Quantity.Mul(e.UnitCost)).Div(newStock)
				} else {
					avgCost = e.UnitCost
				}
				stock = newStock
			} else {
				stock = stock.Add(e.Quantity)
			}
		}

		report = ReconcileReport{
			ProductID:       productID,
			Entries:         len(entries),
			StoredStock:     product.CurrentStock,
			ReplayedStock:   stock,
			StoredAvgCost:   product.AverageCost,
			ReplayedAvgCost: avgCost,
		}
		if repair && report.Drift() {
			product.CurrentStock = stock
			product.AverageCost = avgCost
			if err := s.repo.UpdateProductLedger(ctx, product); err != nil {
				return err
			}
			report.Repaired = true
		}
		return nil
	})
	if err != nil {
		return ReconcileReport{}, err
	}
	if report.Repaired && s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "inventory:reconcile",
			Entity:   "product",
			EntityID: productID,
			Meta: map[string]any{
				"stored_stock":   report.StoredStock.String(),
				"replayed_stock": report.ReplayedStock.String(),
			},
		})
	}
	return report, nil
}
