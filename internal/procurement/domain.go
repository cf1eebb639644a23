package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// POStatus enumerates the purchase order lifecycle.
type POStatus string

const (
	// POStatusDraft is freely mutable, including by the reorder automation.
	POStatusDraft POStatus = "draft"
	// POStatusSent has been sent to the supplier.
	POStatusSent POStatus = "sent"
	// POStatusConfirmed has been confirmed by the supplier.
	POStatusConfirmed POStatus = "confirmed"
	// POStatusReceived is fully received into stock.
	POStatusReceived POStatus = "received"
	// POStatusCancelled was abandoned.
	POStatusCancelled POStatus = "cancelled"
)

// pendingStatuses count toward stock already on order.
var pendingStatuses = []POStatus{POStatusDraft, POStatusSent, POStatusConfirmed}

const (
	// ReorderTargetMultiplier tops a low product up to this multiple of its
	// reorder point. Global default, not tuned per company.
	ReorderTargetMultiplier = 3
	// DefaultLeadTimeDays is the assumed supplier lead time for expected
	// delivery dates and reorder point prediction.
	DefaultLeadTimeDays = 7
)

// Supplier is a minimal supplier record, enough to address draft orders.
type Supplier struct {
	ID        int64
	CompanyID int64
	Name      string
	Email     string
	Phone     string
	IsActive  bool
	CreatedAt time.Time
}

// PurchaseOrder models the order header.
type PurchaseOrder struct {
	ID             int64
	CompanyID      int64
	SupplierID     int64
	Number         string
	Status         POStatus
	OrderDate      time.Time
	ExpectedDate   time.Time
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	Notes          string
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PurchaseOrderItem is one order line. Quantity and Total may be incremented
// by repeated reorder trigger firings while the parent order stays draft.
type PurchaseOrderItem struct {
	ID          int64
	POID        int64
	ProductID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
	ReceivedQty decimal.Decimal
}

// GoodsReceipt records deliveries against a purchase order.
type GoodsReceipt struct {
	ID          int64
	CompanyID   int64
	POID        int64
	Number      string
	ReceiptDate time.Time
	Notes       string
	CreatedBy   int64
	CreatedAt   time.Time
}

// GoodsReceiptLine is one received line; posting it drives an inbound
// inventory transaction at the received unit cost.
type GoodsReceiptLine struct {
	ID        int64
	ReceiptID int64
	POItemID  int64
	ProductID int64
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
}

// ErrValidation indicates invalid input.
var ErrValidation = errors.New("procurement: validation failed")

// ErrInvalidState indicates a lifecycle transition that is not allowed.
var ErrInvalidState = errors.New("procurement: invalid state transition")

// ErrOrderNotFound indicates missing purchase order.
var ErrOrderNotFound = errors.New("procurement: purchase order not found")

// ErrSupplierNotFound indicates missing supplier.
var ErrSupplierNotFound = errors.New("procurement: supplier not found")
