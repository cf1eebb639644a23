package procurement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zimam-erp/zimam-erp/internal/inventory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type memoryRepo struct {
	mu        sync.Mutex
	nextID    int64
	suppliers map[int64]Supplier
	orders    map[int64]PurchaseOrder
	items     map[int64]PurchaseOrderItem
	receipts  map[int64]GoodsReceipt
	lines     map[int64]GoodsReceiptLine
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID:    1,
		suppliers: map[int64]Supplier{},
		orders:    map[int64]PurchaseOrder{},
		items:     map[int64]PurchaseOrderItem{},
		receipts:  map[int64]GoodsReceipt{},
		lines:     map[int64]GoodsReceiptLine{},
	}
}

func (m *memoryRepo) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (m *memoryRepo) CreateSupplier(_ context.Context, s Supplier) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	m.suppliers[s.ID] = s
	return s.ID, nil
}

func (m *memoryRepo) GetSupplier(_ context.Context, companyID, supplierID int64) (Supplier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suppliers[supplierID]
	if !ok || s.CompanyID != companyID {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, nil
}

func (m *memoryRepo) GetPurchaseOrder(_ context.Context, companyID, poID int64) (PurchaseOrder, []PurchaseOrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	po, ok := m.orders[poID]
	if !ok || po.CompanyID != companyID {
		return PurchaseOrder{}, nil, ErrOrderNotFound
	}
	return po, m.itemsOf(poID), nil
}

func (m *memoryRepo) itemsOf(poID int64) []PurchaseOrderItem {
	var out []PurchaseOrderItem
	for id := int64(0); id < m.nextID; id++ {
		if item, ok := m.items[id]; ok && item.POID == poID {
			out = append(out, item)
		}
	}
	return out
}

func (m *memoryRepo) ListPurchaseOrders(_ context.Context, companyID int64, status POStatus, _ int) ([]PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PurchaseOrder
	for _, po := range m.orders {
		if po.CompanyID == companyID && (status == "" || po.Status == status) {
			out = append(out, po)
		}
	}
	return out, nil
}

func (m *memoryRepo) CreatePurchaseOrder(_ context.Context, po PurchaseOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	po.ID = m.id()
	m.orders[po.ID] = po
	return po.ID, nil
}

func (m *memoryRepo) InsertItem(_ context.Context, item PurchaseOrderItem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = m.id()
	m.items[item.ID] = item
	return item.ID, nil
}

func (m *memoryRepo) UpdateItemQuantity(_ context.Context, itemID int64, quantity, total decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.items[itemID]
	item.Quantity = quantity
	item.Total = total
	m.items[itemID] = item
	return nil
}

func (m *memoryRepo) UpdateItemReceived(_ context.Context, itemID int64, receivedQty decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.items[itemID]
	item.ReceivedQty = receivedQty
	m.items[itemID] = item
	return nil
}

func (m *memoryRepo) ListItems(_ context.Context, poID int64) ([]PurchaseOrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.itemsOf(poID), nil
}

func (m *memoryRepo) UpdateOrderStatus(_ context.Context, poID int64, status POStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	po := m.orders[poID]
	po.Status = status
	m.orders[poID] = po
	return nil
}

func (m *memoryRepo) UpdateOrderTotals(_ context.Context, poID int64, subtotal, total decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	po := m.orders[poID]
	po.Subtotal = subtotal
	po.TotalAmount = total
	m.orders[poID] = po
	return nil
}

func (m *memoryRepo) PendingQuantity(_ context.Context, companyID, productID int64, statuses []POStatus) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := decimal.Zero
	for _, item := range m.items {
		po, ok := m.orders[item.POID]
		if !ok || po.CompanyID != companyID || item.ProductID != productID {
			continue
		}
		for _, s := range statuses {
			if po.Status == s {
				pending = pending.Add(item.Quantity)
				break
			}
		}
	}
	return pending, nil
}

func (m *memoryRepo) FindDraftOrder(_ context.Context, companyID, supplierID int64) (PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := m.nextID - 1; id > 0; id-- {
		po, ok := m.orders[id]
		if ok && po.CompanyID == companyID && po.SupplierID == supplierID && po.Status == POStatusDraft {
			return po, nil
		}
	}
	return PurchaseOrder{}, ErrOrderNotFound
}

func (m *memoryRepo) FindItem(_ context.Context, poID, productID int64) (PurchaseOrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.POID == poID && item.ProductID == productID {
			return item, nil
		}
	}
	return PurchaseOrderItem{}, ErrOrderNotFound
}

func (m *memoryRepo) CreateReceipt(_ context.Context, receipt GoodsReceipt) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	receipt.ID = m.id()
	m.receipts[receipt.ID] = receipt
	return receipt.ID, nil
}

func (m *memoryRepo) InsertReceiptLine(_ context.Context, line GoodsReceiptLine) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	line.ID = m.id()
	m.lines[line.ID] = line
	return line.ID, nil
}

type inventoryRecorder struct {
	inputs []inventory.TransactionInput
	err    error
}

func (r *inventoryRecorder) ProcessTransaction(_ context.Context, input inventory.TransactionInput) (inventory.Product, error) {
	if r.err != nil {
		return inventory.Product{}, r.err
	}
	r.inputs = append(r.inputs, input)
	return inventory.Product{ID: input.ProductID}, nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, slog.New(slog.NewTextHandler(testWriter{}, nil)))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func seedSupplier(t *testing.T, repo *memoryRepo) int64 {
	t.Helper()
	id, err := repo.CreateSupplier(context.Background(), Supplier{CompanyID: 1, Name: "Acme Supply", IsActive: true})
	require.NoError(t, err)
	return id
}

func reorderInput(supplierID int64, stock string) inventory.ReorderInput {
	return inventory.ReorderInput{
		CompanyID:    1,
		ProductID:    42,
		ProductName:  "Widget",
		SupplierID:   supplierID,
		CurrentStock: dec(stock),
		ReorderPoint: dec("10"),
		StandardCost: dec("5"),
		ActorID:      7,
	}
}

func TestMaybeReorderSkipsWhenStockCoversReorderPoint(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	supplierID := seedSupplier(t, repo)

	require.NoError(t, svc.MaybeReorder(context.Background(), reorderInput(supplierID, "25")))
	require.Empty(t, repo.orders)
}

func TestMaybeReorderTopsUpToTripleReorderPoint(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	supplierID := seedSupplier(t, repo)

	require.NoError(t, svc.MaybeReorder(context.Background(), reorderInput(supplierID, "8")))

	require.Len(t, repo.orders, 1)
	var po PurchaseOrder
	for _, o := range repo.orders {
		po = o
	}
	require.Equal(t, POStatusDraft, po.Status)
	require.Contains(t, po.Number, "PO-AUTO-")
	require.WithinDuration(t, time.Now().AddDate(0, 0, DefaultLeadTimeDays), po.ExpectedDate, time.Minute)

	items, err := repo.ListItems(context.Background(), po.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	// target 30 minus on-hand 8
	require.True(t, items[0].Quantity.Equal(dec("22")), "got %s", items[0].Quantity)
	require.True(t, items[0].UnitPrice.Equal(dec("5")))
	require.True(t, po.ID != 0)

	updated := repo.orders[po.ID]
	require.True(t, updated.Subtotal.Equal(dec("110")), "got %s", updated.Subtotal)
	require.True(t, updated.TotalAmount.Equal(dec("110")))
}

func TestMaybeReorderNumbersNeverCollide(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	first := seedSupplier(t, repo)
	second := seedSupplier(t, repo)

	// Back-to-back triggers land within the same second.
	require.NoError(t, svc.MaybeReorder(context.Background(), reorderInput(first, "8")))
	require.NoError(t, svc.MaybeReorder(context.Background(), reorderInput(second, "8")))

	require.Len(t, repo.orders, 2)
	seen := map[string]bool{}
	for _, o := range repo.orders {
		require.Contains(t, o.Number, "PO-AUTO-")
		require.False(t, seen[o.Number], "duplicate po number %s", o.Number)
		seen[o.Number] = true
	}
}

func TestMaybeReorderCountsPendingOrders(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	supplierID := seedSupplier(t, repo)

	// 20 already on a sent order covers the gap
	poID, err := repo.CreatePurchaseOrder(context.Background(), PurchaseOrder{
		CompanyID: 1, SupplierID: supplierID, Number: "PO-1", Status: POStatusSent,
	})
	require.NoError(t, err)
	_, err = repo.InsertItem(context.Background(), PurchaseOrderItem{
		POID: poID, ProductID: 42, Quantity: dec("20"), UnitPrice: dec("5"), Total: dec("100"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.MaybeReorder(context.Background(), reorderInput(supplierID, "8")))
	require.Len(t, repo.orders, 1)
}

func TestMaybeReorderAccumulatesOnOpenDraft(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	supplierID := seedSupplier(t, repo)

	poID, err := repo.CreatePurchaseOrder(context.Background(), PurchaseOrder{
		CompanyID: 1, SupplierID: supplierID, Number: "PO-AUTO-1", Status: POStatusDraft,
	})
	require.NoError(t, err)
	itemID, err := repo.InsertItem(context.Background(), PurchaseOrderItem{
		POID: poID, ProductID: 42, Quantity: dec("1"), UnitPrice: dec("5"), Total: dec("5"),
	})
	require.NoError(t, err)

	// covered = 8 on hand + 1 pending = 9, still at or below the reorder
	// point, so the existing draft line grows by 30 - 9 = 21.
	require.NoError(t, svc.MaybeReorder(context.Background(), reorderInput(supplierID, "8")))

	require.Len(t, repo.orders, 1, "no duplicate draft")
	item := repo.items[itemID]
	require.True(t, item.Quantity.Equal(dec("22")), "got %s", item.Quantity)
	require.True(t, item.Total.Equal(dec("110")))
}

func TestMaybeReorderRequiresSupplier(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	err := svc.MaybeReorder(context.Background(), reorderInput(0, "8"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateOrderComputesTotals(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	supplierID := seedSupplier(t, repo)

	po, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CompanyID:  1,
		SupplierID: supplierID,
		ActorID:    7,
		Items: []OrderItemInput{
			{ProductID: 42, Quantity: dec("4"), UnitPrice: dec("2.50")},
			{ProductID: 43, Quantity: dec("1"), UnitPrice: dec("10")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, po.Status)

	stored := repo.orders[po.ID]
	require.True(t, stored.Subtotal.Equal(dec("20")), "got %s", stored.Subtotal)
	require.True(t, stored.TotalAmount.Equal(dec("20")))
}

func TestOrderLifecycleTransitions(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	supplierID := seedSupplier(t, repo)

	po, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CompanyID:  1,
		SupplierID: supplierID,
		Items:      []OrderItemInput{{ProductID: 42, Quantity: dec("1"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)

	// cannot confirm before sending
	require.ErrorIs(t, svc.ConfirmOrder(context.Background(), 1, po.ID), ErrInvalidState)

	require.NoError(t, svc.SendOrder(context.Background(), 1, po.ID))
	require.NoError(t, svc.ConfirmOrder(context.Background(), 1, po.ID))
	require.Equal(t, POStatusConfirmed, repo.orders[po.ID].Status)

	require.NoError(t, svc.CancelOrder(context.Background(), 1, po.ID))
	require.Equal(t, POStatusCancelled, repo.orders[po.ID].Status)

	// cancelled orders are terminal
	require.ErrorIs(t, svc.SendOrder(context.Background(), 1, po.ID), ErrInvalidState)
}

func TestPostReceiptPostsInboundAndClosesOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := &inventoryRecorder{}
	svc.BindInventory(inv)
	supplierID := seedSupplier(t, repo)

	po, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CompanyID:  1,
		SupplierID: supplierID,
		Items:      []OrderItemInput{{ProductID: 42, Quantity: dec("10"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.SendOrder(context.Background(), 1, po.ID))

	items, err := repo.ListItems(context.Background(), po.ID)
	require.NoError(t, err)

	receipt, err := svc.PostReceipt(context.Background(), PostReceiptInput{
		CompanyID: 1,
		POID:      po.ID,
		ActorID:   7,
		Lines:     []ReceiptLineInput{{POItemID: items[0].ID, Quantity: dec("10"), UnitCost: dec("5.25")}},
	})
	require.NoError(t, err)
	require.NotZero(t, receipt.ID)

	require.Len(t, inv.inputs, 1)
	posted := inv.inputs[0]
	require.Equal(t, inventory.TransactionTypePurchase, posted.Type)
	require.True(t, posted.Quantity.Equal(dec("10")))
	require.NotNil(t, posted.UnitCost)
	require.True(t, posted.UnitCost.Equal(dec("5.25")))
	require.Equal(t, inventory.DocumentReceiptLine, posted.Ref.Kind)

	require.Equal(t, POStatusReceived, repo.orders[po.ID].Status)
}

func TestPostReceiptPartialDeliveryKeepsOrderOpen(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := &inventoryRecorder{}
	svc.BindInventory(inv)
	supplierID := seedSupplier(t, repo)

	po, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CompanyID:  1,
		SupplierID: supplierID,
		Items:      []OrderItemInput{{ProductID: 42, Quantity: dec("10"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.SendOrder(context.Background(), 1, po.ID))

	items, err := repo.ListItems(context.Background(), po.ID)
	require.NoError(t, err)

	_, err = svc.PostReceipt(context.Background(), PostReceiptInput{
		CompanyID: 1,
		POID:      po.ID,
		Lines:     []ReceiptLineInput{{POItemID: items[0].ID, Quantity: dec("4"), UnitCost: dec("5")}},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusSent, repo.orders[po.ID].Status)

	items, err = repo.ListItems(context.Background(), po.ID)
	require.NoError(t, err)
	require.True(t, items[0].ReceivedQty.Equal(dec("4")))
}

func TestPostReceiptRejectsDraftOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	svc.BindInventory(&inventoryRecorder{})
	supplierID := seedSupplier(t, repo)

	po, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CompanyID:  1,
		SupplierID: supplierID,
		Items:      []OrderItemInput{{ProductID: 42, Quantity: dec("10"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)

	items, err := repo.ListItems(context.Background(), po.ID)
	require.NoError(t, err)

	_, err = svc.PostReceipt(context.Background(), PostReceiptInput{
		CompanyID: 1,
		POID:      po.ID,
		Lines:     []ReceiptLineInput{{POItemID: items[0].ID, Quantity: dec("10"), UnitCost: dec("5")}},
	})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestPostReceiptInventoryFailureAborts(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	boom := errors.New("ledger unavailable")
	svc.BindInventory(&inventoryRecorder{err: boom})
	supplierID := seedSupplier(t, repo)

	po, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CompanyID:  1,
		SupplierID: supplierID,
		Items:      []OrderItemInput{{ProductID: 42, Quantity: dec("10"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.SendOrder(context.Background(), 1, po.ID))

	items, err := repo.ListItems(context.Background(), po.ID)
	require.NoError(t, err)

	_, err = svc.PostReceipt(context.Background(), PostReceiptInput{
		CompanyID: 1,
		POID:      po.ID,
		Lines:     []ReceiptLineInput{{POItemID: items[0].ID, Quantity: dec("10"), UnitCost: dec("5")}},
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, POStatusSent, repo.orders[po.ID].Status)
}
