package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionTypePurchase represents goods received against a purchase.
	TransactionTypePurchase TransactionType = "purchase"
	// TransactionTypeSale represents stock issued to a posted invoice.
	TransactionTypeSale TransactionType = "sale"
	// TransactionTypeReturnIn represents a customer return back into stock.
	TransactionTypeReturnIn TransactionType = "return_in"
	// TransactionTypeReturnOut represents goods returned to a supplier.
	TransactionTypeReturnOut TransactionType = "return_out"
	// TransactionTypeAdjustment represents a manual correction, either sign.
	TransactionTypeAdjustment TransactionType = "adjustment"
	// TransactionTypeTransferIn receives stock from another location.
	TransactionTypeTransferIn TransactionType = "transfer_in"
	// TransactionTypeTransferOut issues stock to another location.
	TransactionTypeTransferOut TransactionType = "transfer_out"
)

// typeRule describes the fixed behavior of a transaction type. Direction +1
// means the quantity must be positive, -1 negative, 0 either sign.
// costBearing marks types whose supplied unit cost feeds the weighted average;
// the rest default to the current average cost when no cost is given.
type typeRule struct {
	direction   int
	costBearing bool
}

var typeRules = map[TransactionType]typeRule{
	TransactionTypePurchase:    {direction: +1, costBearing: true},
	TransactionTypeSale:        {direction: -1},
	TransactionTypeReturnIn:    {direction: +1, costBearing: true},
	TransactionTypeReturnOut:   {direction: -1},
	TransactionTypeAdjustment:  {direction: 0, costBearing: true},
	TransactionTypeTransferIn:  {direction: +1},
	TransactionTypeTransferOut: {direction: -1},
}

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	_, ok := typeRules[t]
	return ok
}

// DocumentKind tags the originating business document of a transaction.
type DocumentKind string

const (
	// DocumentNone marks transactions without a source document.
	DocumentNone DocumentKind = ""
	// DocumentInvoiceLine links a transaction to a sales invoice line.
	DocumentInvoiceLine DocumentKind = "invoice_line"
	// DocumentReceiptLine links a transaction to a goods receipt line.
	DocumentReceiptLine DocumentKind = "receipt_line"
)

// DocumentRef is a tagged reference over the closed set of linkable
// documents. The zero value means no document.
type DocumentRef struct {
	Kind DocumentKind
	ID   int64
}

// InvoiceLineRef builds a reference to a sales invoice line.
func InvoiceLineRef(id int64) DocumentRef {
	return DocumentRef{Kind: DocumentInvoiceLine, ID: id}
}

// ReceiptLineRef builds a reference to a goods receipt line.
func ReceiptLineRef(id int64) DocumentRef {
	return DocumentRef{Kind: DocumentReceiptLine, ID: id}
}

// IsZero reports whether the reference points at no document.
func (r DocumentRef) IsZero() bool {
	return r.Kind == DocumentNone
}

// Product is the ledger head state per SKU. CurrentStock and AverageCost are
// owned by the costing engine and derivable by replaying the transaction log.
type Product struct {
	ID                  int64
	CompanyID           int64
	SKU                 string
	Name                string
	CurrentStock        decimal.Decimal
	AverageCost         decimal.Decimal
	CostPrice           decimal.Decimal
	ReorderPoint        decimal.Decimal
	SuggestedReorderPt  int64
	PreferredSupplierID int64
	LastRestocked       time.Time
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LowStock reports whether the product sits at or below its reorder point.
func (p Product) LowStock() bool {
	return p.CurrentStock.LessThanOrEqual(p.ReorderPoint)
}

// Transaction is one immutable entry of the stock ledger. Quantity is signed,
// UnitCost is the cost snapshot at posting time and RunningBalance the stock
// on hand immediately after this entry.
type Transaction struct {
	ID             int64
	ProductID      int64
	CompanyID      int64
	Type           TransactionType
	Quantity       decimal.Decimal
	UnitCost       decimal.Decimal
	TotalCost      decimal.Decimal
	RunningBalance decimal.Decimal
	Ref            DocumentRef
	Notes          string
	NeedsReview    bool
	CreatedBy      int64
	CreatedAt      time.Time
}

// TransactionFilter narrows ledger queries.
type TransactionFilter struct {
	ProductID int64
	CompanyID int64
	Types     []TransactionType
	From      time.Time
	To        time.Time
	Limit     int
}

// ReconcileReport summarises a replay of the ledger against the cached head
// state of a product.
type ReconcileReport struct {
	ProductID       int64
	Entries         int
	StoredStock     decimal.Decimal
	ReplayedStock   decimal.Decimal
	StoredAvgCost   decimal.Decimal
	ReplayedAvgCost decimal.Decimal
	Repaired        bool
}

// Drift reports whether the cached head state diverged from the log.
func (r ReconcileReport) Drift() bool {
	return !r.StoredStock.Equal(r.ReplayedStock) || !r.StoredAvgCost.Equal(r.ReplayedAvgCost)
}

// ErrInvalidQuantity indicates a zero or wrongly signed quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be non zero")

// ErrInvalidType indicates an unknown transaction type.
var ErrInvalidType = errors.New("inventory: unknown transaction type")

// ErrInvalidUnitCost indicates a negative unit cost, or a unit cost supplied
// on a transaction type that always uses the running average.
var ErrInvalidUnitCost = errors.New("inventory: unit cost not accepted here")

// ErrProductNotFound indicates the product does not resolve in company scope.
var ErrProductNotFound = errors.New("inventory: product not found")

// ErrNegativeStock triggered when a movement would drive stock negative.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")

// ErrConcurrentModification indicates a lost lock race; callers may retry.
var ErrConcurrentModification = errors.New("inventory: concurrent modification, retry")

// ErrProcurementTrigger wraps failures inside the auto-procurement hook.
var ErrProcurementTrigger = errors.New("inventory: auto procurement trigger failed")
