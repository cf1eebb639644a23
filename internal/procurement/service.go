package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zimam-erp/zimam-erp/internal/inventory"
	"github.com/zimam-erp/zimam-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service. Methods
// join the transaction of the surrounding WithTx context when present.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
	CreateSupplier(ctx context.Context, supplier Supplier) (int64, error)
	GetSupplier(ctx context.Context, companyID, supplierID int64) (Supplier, error)
	GetPurchaseOrder(ctx context.Context, companyID, poID int64) (PurchaseOrder, []PurchaseOrderItem, error)
	ListPurchaseOrders(ctx context.Context, companyID int64, status POStatus, limit int) ([]PurchaseOrder, error)
	CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertItem(ctx context.Context, item PurchaseOrderItem) (int64, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity, total decimal.Decimal) error
	UpdateItemReceived(ctx context.Context, itemID int64, receivedQty decimal.Decimal) error
	ListItems(ctx context.Context, poID int64) ([]PurchaseOrderItem, error)
	UpdateOrderStatus(ctx context.Context, poID int64, status POStatus) error
	UpdateOrderTotals(ctx context.Context, poID int64, subtotal, total decimal.Decimal) error
	PendingQuantity(ctx context.Context, companyID, productID int64, statuses []POStatus) (decimal.Decimal, error)
	FindDraftOrder(ctx context.Context, companyID, supplierID int64) (PurchaseOrder, error)
	FindItem(ctx context.Context, poID, productID int64) (PurchaseOrderItem, error)
	CreateReceipt(ctx context.Context, receipt GoodsReceipt) (int64, error)
	InsertReceiptLine(ctx context.Context, line GoodsReceiptLine) (int64, error)
}

// InventoryPort exposes the costing engine to goods receipt posting.
type InventoryPort interface {
	ProcessTransaction(ctx context.Context, input inventory.TransactionInput) (inventory.Product, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates procurement flows and implements the reorder trigger
// called by the costing engine.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, logger: logger}
}

// BindInventory wires the costing engine after construction; the inventory
// service and this one reference each other (trigger one way, goods receipt
// posting the other).
func (s *Service) BindInventory(inv InventoryPort) {
	s.inventory = inv
}

// MaybeReorder tops a low-stock product up to ReorderTargetMultiplier times
// its reorder point via a draft purchase order for the preferred supplier.
// It runs on the caller's transaction and observes the post-transaction
// stock figure carried in the input. Repeated firings against the same open
// draft accumulate quantity instead of creating duplicate orders.
func (s *Service) MaybeReorder(ctx context.Context, input inventory.ReorderInput) error {
	if input.SupplierID == 0 {
		return fmt.Errorf("%w: preferred supplier required", ErrValidation)
	}

	pending, err := s.repo.PendingQuantity(ctx, input.CompanyID, input.ProductID, pendingStatuses)
	if err != nil {
		return err
	}
	covered := input.CurrentStock.Add(pending)
	if covered.GreaterThan(input.ReorderPoint) {
		return nil
	}

	targetStock := input.ReorderPoint.Mul(decimal.NewFromInt(ReorderTargetMultiplier))
	orderQty := targetStock.Sub(covered)
	if !orderQty.IsPositive() {
		return nil
	}

	po, err := s.repo.FindDraftOrder(ctx, input.CompanyID, input.SupplierID)
	if errors.Is(err, ErrOrderNotFound) {
		now := time.Now().UTC()
		po = PurchaseOrder{
			CompanyID:    input.CompanyID,
			SupplierID:   input.SupplierID,
			// po_number is unique per company; uuid entropy keeps two
			// triggers firing in the same second from colliding.
			Number:       "PO-AUTO-" + uuid.NewString(),
			Status:       POStatusDraft,
			OrderDate:    now,
			ExpectedDate: now.AddDate(0, 0, DefaultLeadTimeDays),
			Notes:        "Auto-generated from low stock",
			CreatedBy:    input.ActorID,
		}
		po.ID, err = s.repo.CreatePurchaseOrder(ctx, po)
	}
	if err != nil {
		return err
	}

	item, err := s.repo.FindItem(ctx, po.ID, input.ProductID)
	switch {
	case err == nil:
		newQty := item.Quantity.Add(orderQty)
		if err := s.repo.UpdateItemQuantity(ctx, item.ID, newQty, newQty.Mul(item.UnitPrice)); err != nil {
			return err
		}
	case errors.Is(err, ErrOrderNotFound):
		item = PurchaseOrderItem{
			POID:        po.ID,
			ProductID:   input.ProductID,
			Description: input.ProductName,
			Quantity:    orderQty,
			UnitPrice:   input.StandardCost,
			Total:       orderQty.Mul(input.StandardCost),
		}
		if _, err := s.repo.InsertItem(ctx, item); err != nil {
			return err
		}
	default:
		return err
	}

	if err := s.recalculateTotals(ctx, po); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "procurement:auto_reorder",
			Entity:   "purchase_order",
			EntityID: po.ID,
			Meta: map[string]any{
				"product_id": input.ProductID,
				"order_qty":  orderQty.String(),
			},
		})
	}
	return nil
}

func (s *Service) recalculateTotals(ctx context.Context, po PurchaseOrder) error {
	items, err := s.repo.ListItems(ctx, po.ID)
	if err != nil {
		return err
	}
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Total)
	}
	total := subtotal.Add(po.TaxAmount).Sub(po.DiscountAmount)
	return s.repo.UpdateOrderTotals(ctx, po.ID, subtotal, total)
}

// CreateSupplier persists a supplier.
func (s *Service) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	if supplier.CompanyID == 0 || supplier.Name == "" {
		return Supplier{}, fmt.Errorf("%w: company and name required", ErrValidation)
	}
	supplier.IsActive = true
	id, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return Supplier{}, err
	}
	supplier.ID = id
	return supplier, nil
}

// OrderItemInput describes a manual purchase order line.
type OrderItemInput struct {
	ProductID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// CreateOrderInput describes a manually raised purchase order.
type CreateOrderInput struct {
	CompanyID    int64
	SupplierID   int64
	Number       string
	ExpectedDate time.Time
	Notes        string
	ActorID      int64
	Items        []OrderItemInput
}

// CreateOrder raises a draft purchase order with its lines.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error) {
	if input.CompanyID == 0 || input.SupplierID == 0 || len(input.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: company, supplier and at least one line required", ErrValidation)
	}
	if _, err := s.repo.GetSupplier(ctx, input.CompanyID, input.SupplierID); err != nil {
		return PurchaseOrder{}, err
	}
	now := time.Now().UTC()
	po := PurchaseOrder{
		CompanyID:    input.CompanyID,
		SupplierID:   input.SupplierID,
		Number:       input.Number,
		Status:       POStatusDraft,
		OrderDate:    now,
		ExpectedDate: input.ExpectedDate,
		Notes:        input.Notes,
		CreatedBy:    input.ActorID,
	}
	if po.Number == "" {
		po.Number = fmt.Sprintf("PO-%d", now.UnixNano())
	}
	if po.ExpectedDate.IsZero() {
		po.ExpectedDate = now.AddDate(0, 0, DefaultLeadTimeDays)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		id, err := s.repo.CreatePurchaseOrder(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		for _, line := range input.Items {
			if line.ProductID == 0 || !line.Quantity.IsPositive() {
				return fmt.Errorf("%w: line product and positive quantity required", ErrValidation)
			}
			item := PurchaseOrderItem{
				POID:        id,
				ProductID:   line.ProductID,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Total:       line.Quantity.Mul(line.UnitPrice),
			}
			if _, err := s.repo.InsertItem(ctx, item); err != nil {
				return err
			}
		}
		return s.recalculateTotals(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// GetOrder loads an order with its lines.
func (s *Service) GetOrder(ctx context.Context, companyID, poID int64) (PurchaseOrder, []PurchaseOrderItem, error) {
	return s.repo.GetPurchaseOrder(ctx, companyID, poID)
}

// ListOrders lists orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, companyID int64, status POStatus, limit int) ([]PurchaseOrder, error) {
	if companyID == 0 {
		return nil, fmt.Errorf("%w: company required", ErrValidation)
	}
	return s.repo.ListPurchaseOrders(ctx, companyID, status, limit)
}

// transition validates and applies a status change.
func (s *Service) transition(ctx context.Context, companyID, poID int64, from []POStatus, to POStatus) error {
	po, _, err := s.repo.GetPurchaseOrder(ctx, companyID, poID)
	if err != nil {
		return err
	}
	allowed := false
	for _, status := range from {
		if po.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, po.Status, to)
	}
	return s.repo.UpdateOrderStatus(ctx, poID, to)
}

// SendOrder marks a draft order as sent; automation stops touching it.
func (s *Service) SendOrder(ctx context.Context, companyID, poID int64) error {
	return s.transition(ctx, companyID, poID, []POStatus{POStatusDraft}, POStatusSent)
}

// ConfirmOrder marks a sent order as confirmed by the supplier.
func (s *Service) ConfirmOrder(ctx context.Context, companyID, poID int64) error {
	return s.transition(ctx, companyID, poID, []POStatus{POStatusSent}, POStatusConfirmed)
}

// CancelOrder abandons an order that has not been received.
func (s *Service) CancelOrder(ctx context.Context, companyID, poID int64) error {
	return s.transition(ctx, companyID, poID, []POStatus{POStatusDraft, POStatusSent, POStatusConfirmed}, POStatusCancelled)
}

// ReceiptLineInput describes one received line.
type ReceiptLineInput struct {
	POItemID int64
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// PostReceiptInput describes a goods receipt to post.
type PostReceiptInput struct {
	CompanyID int64
	POID      int64
	Number    string
	Notes     string
	ActorID   int64
	Lines     []ReceiptLineInput
}

// PostReceipt records a goods receipt and posts one inbound purchase
// transaction per line through the costing engine, atomically with the
// receipt itself. The order flips to received once every line is fully
// delivered.
func (s *Service) PostReceipt(ctx context.Context, input PostReceiptInput) (GoodsReceipt, error) {
	if input.CompanyID == 0 || input.POID == 0 || len(input.Lines) == 0 {
		return GoodsReceipt{}, fmt.Errorf("%w: company, order and lines required", ErrValidation)
	}
	if s.inventory == nil {
		return GoodsReceipt{}, errors.New("procurement: inventory integration not configured")
	}
	po, items, err := s.repo.GetPurchaseOrder(ctx, input.CompanyID, input.POID)
	if err != nil {
		return GoodsReceipt{}, err
	}
	if po.Status != POStatusSent && po.Status != POStatusConfirmed {
		return GoodsReceipt{}, fmt.Errorf("%w: order must be sent or confirmed", ErrInvalidState)
	}

	receipt := GoodsReceipt{
		CompanyID:   input.CompanyID,
		POID:        input.POID,
		Number:      input.Number,
		ReceiptDate: time.Now().UTC(),
		Notes:       input.Notes,
		CreatedBy:   input.ActorID,
	}
	if receipt.Number == "" {
		receipt.Number = "GRN-" + uuid.NewString()
	}

	itemsByID := make(map[int64]PurchaseOrderItem, len(items))
	for _, item := range items {
		itemsByID[item.ID] = item
	}

	key := fmt.Sprintf("GRN:%s", receipt.Number)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "procurement.receipt"); err != nil {
			return GoodsReceipt{}, err
		}
		inserted = true
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		receiptID, err := s.repo.CreateReceipt(ctx, receipt)
		if err != nil {
			return err
		}
		receipt.ID = receiptID

		fullyReceived := true
		for _, line := range input.Lines {
			item, ok := itemsByID[line.POItemID]
			if !ok {
				return fmt.Errorf("%w: unknown order item %d", ErrValidation, line.POItemID)
			}
			if !line.Quantity.IsPositive() || line.UnitCost.IsNegative() {
				return fmt.Errorf("%w: positive quantity and non-negative cost required", ErrValidation)
			}
			lineID, err := s.repo.InsertReceiptLine(ctx, GoodsReceiptLine{
				ReceiptID: receiptID,
				POItemID:  item.ID,
				ProductID: item.ProductID,
				Quantity:  line.Quantity,
				UnitCost:  line.UnitCost,
			})
			if err != nil {
				return err
			}

			unitCost := line.UnitCost
			if _, err := s.inventory.ProcessTransaction(ctx, inventory.TransactionInput{
				CompanyID: input.CompanyID,
				ProductID: item.ProductID,
				Type:      inventory.TransactionTypePurchase,
				Quantity:  line.Quantity,
				UnitCost:  &unitCost,
				Ref:       inventory.ReceiptLineRef(lineID),
				Notes:     fmt.Sprintf("GRN %s", receipt.Number),
				ActorID:   input.ActorID,
			}); err != nil {
				return err
			}

			received := item.ReceivedQty.Add(line.Quantity)
			if err := s.repo.UpdateItemReceived(ctx, item.ID, received); err != nil {
				return err
			}
			item.ReceivedQty = received
			itemsByID[item.ID] = item
		}
		for _, item := range itemsByID {
			if item.ReceivedQty.LessThan(item.Quantity) {
				fullyReceived = false
				break
			}
		}
		if fullyReceived {
			return s.repo.UpdateOrderStatus(ctx, input.POID, POStatusReceived)
		}
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return GoodsReceipt{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "procurement:receipt_post",
			Entity:   "goods_receipt",
			EntityID: receipt.ID,
			Meta:     map[string]any{"number": receipt.Number, "po_id": input.POID},
		})
	}
	return receipt, nil
}

// PendingQuantity sums quantity on order for a product across open orders.
func (s *Service) PendingQuantity(ctx context.Context, companyID, productID int64) (decimal.Decimal, error) {
	return s.repo.PendingQuantity(ctx, companyID, productID, pendingStatuses)
}
