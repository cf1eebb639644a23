package sales

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

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
	customers map[int64]Customer
	invoices  map[int64]Invoice
	items     map[int64]InvoiceItem
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID:    1,
		customers: map[int64]Customer{},
		invoices:  map[int64]Invoice{},
		items:     map[int64]InvoiceItem{},
	}
}

func (m *memoryRepo) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context) error) error {
	// snapshot state so a failed fn rolls everything back, mirroring the
	// database transaction behaviour the service relies on
	m.mu.Lock()
	invoices := make(map[int64]Invoice, len(m.invoices))
	for k, v := range m.invoices {
		invoices[k] = v
	}
	items := make(map[int64]InvoiceItem, len(m.items))
	for k, v := range m.items {
		items[k] = v
	}
	nextID := m.nextID
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.invoices = invoices
		m.items = items
		m.nextID = nextID
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memoryRepo) CreateCustomer(_ context.Context, c Customer) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	m.customers[c.ID] = c
	return c.ID, nil
}

func (m *memoryRepo) GetCustomer(_ context.Context, companyID, customerID int64) (Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[customerID]
	if !ok || c.CompanyID != companyID {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (m *memoryRepo) CreateInvoice(_ context.Context, inv Invoice) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.ID = m.id()
	m.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (m *memoryRepo) GetInvoice(_ context.Context, companyID, invoiceID int64) (Invoice, []InvoiceItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[invoiceID]
	if !ok || inv.CompanyID != companyID {
		return Invoice{}, nil, ErrInvoiceNotFound
	}
	var items []InvoiceItem
	for id := int64(0); id < m.nextID; id++ {
		if item, ok := m.items[id]; ok && item.InvoiceID == invoiceID {
			items = append(items, item)
		}
	}
	return inv, items, nil
}

func (m *memoryRepo) ListInvoices(_ context.Context, companyID int64, status InvoiceStatus, _ int) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.CompanyID == companyID && (status == "" || inv.Status == status) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memoryRepo) InsertItem(_ context.Context, item InvoiceItem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = m.id()
	m.items[item.ID] = item
	return item.ID, nil
}

func (m *memoryRepo) UpdateInvoiceStatus(_ context.Context, invoiceID int64, status InvoiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := m.invoices[invoiceID]
	inv.Status = status
	m.invoices[invoiceID] = inv
	return nil
}

func (m *memoryRepo) UpdateInvoiceTotals(_ context.Context, invoiceID int64, subtotal, total decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := m.invoices[invoiceID]
	inv.Subtotal = subtotal
	inv.TotalAmount = total
	m.invoices[invoiceID] = inv
	return nil
}

// inventoryStub deducts from a fixed stock map and rejects overdrafts the
// way the costing engine does.
type inventoryStub struct {
	stock  map[int64]decimal.Decimal
	inputs []inventory.TransactionInput
}

func (s *inventoryStub) ProcessTransaction(_ context.Context, input inventory.TransactionInput) (inventory.Product, error) {
	current, ok := s.stock[input.ProductID]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	next := current.Add(input.Quantity)
	if next.IsNegative() {
		return inventory.Product{}, inventory.ErrNegativeStock
	}
	s.stock[input.ProductID] = next
	s.inputs = append(s.inputs, input)
	return inventory.Product{ID: input.ProductID, CurrentStock: next}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func setup(t *testing.T, stock map[int64]decimal.Decimal) (*Service, *memoryRepo, *inventoryStub, int64) {
	t.Helper()
	repo := newMemoryRepo()
	inv := &inventoryStub{stock: stock}
	svc := NewService(repo, inv, nil, nil, discardLogger())
	customerID, err := repo.CreateCustomer(context.Background(), Customer{CompanyID: 1, Name: "Globex", IsActive: true})
	require.NoError(t, err)
	return svc, repo, inv, customerID
}

func TestCreateInvoiceComputesTotals(t *testing.T) {
	svc, repo, _, customerID := setup(t, nil)

	invoice, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CompanyID:  1,
		CustomerID: customerID,
		ActorID:    7,
		Items: []InvoiceItemInput{
			{ProductID: 42, Quantity: dec("3"), UnitPrice: dec("12.50")},
			{ProductID: 43, Quantity: dec("1"), UnitPrice: dec("2.50")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusDraft, invoice.Status)

	stored := repo.invoices[invoice.ID]
	require.True(t, stored.Subtotal.Equal(dec("40")), "got %s", stored.Subtotal)
	require.True(t, stored.TotalAmount.Equal(dec("40")))
}

func TestCreateInvoiceRequiresKnownCustomer(t *testing.T) {
	svc, _, _, _ := setup(t, nil)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CompanyID:  1,
		CustomerID: 999,
		Items:      []InvoiceItemInput{{ProductID: 42, Quantity: dec("1"), UnitPrice: dec("5")}},
	})
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestPostInvoiceDeductsStockPerLine(t *testing.T) {
	svc, repo, inv, customerID := setup(t, map[int64]decimal.Decimal{
		42: dec("10"),
		43: dec("5"),
	})

	invoice, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CompanyID:  1,
		CustomerID: customerID,
		Items: []InvoiceItemInput{
			{ProductID: 42, Quantity: dec("3"), UnitPrice: dec("12.50")},
			{ProductID: 43, Quantity: dec("2"), UnitPrice: dec("4")},
		},
	})
	require.NoError(t, err)

	posted, err := svc.PostInvoice(context.Background(), 1, invoice.ID, 7)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusPosted, posted.Status)
	require.Equal(t, InvoiceStatusPosted, repo.invoices[invoice.ID].Status)

	require.Len(t, inv.inputs, 2)
	for _, posted := range inv.inputs {
		require.Equal(t, inventory.TransactionTypeSale, posted.Type)
		require.True(t, posted.Quantity.IsNegative())
		require.Nil(t, posted.UnitCost, "sales never carry a cost override")
		require.Equal(t, inventory.DocumentInvoiceLine, posted.Ref.Kind)
	}
	require.True(t, inv.stock[42].Equal(dec("7")))
	require.True(t, inv.stock[43].Equal(dec("3")))
}

func TestPostInvoiceRollsBackWhenAnyLineFails(t *testing.T) {
	svc, repo, inv, customerID := setup(t, map[int64]decimal.Decimal{
		42: dec("10"),
		43: dec("1"), // not enough for the second line
	})

	invoice, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CompanyID:  1,
		CustomerID: customerID,
		Items: []InvoiceItemInput{
			{ProductID: 42, Quantity: dec("3"), UnitPrice: dec("12.50")},
			{ProductID: 43, Quantity: dec("2"), UnitPrice: dec("4")},
		},
	})
	require.NoError(t, err)

	_, err = svc.PostInvoice(context.Background(), 1, invoice.ID, 7)
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	require.Equal(t, InvoiceStatusDraft, repo.invoices[invoice.ID].Status)
	require.Len(t, inv.inputs, 1, "only the first line reached the ledger before the failure")
	require.Equal(t, int64(42), inv.inputs[0].ProductID)
}

func TestPostInvoiceOnlyFromDraft(t *testing.T) {
	svc, _, _, customerID := setup(t, map[int64]decimal.Decimal{42: dec("10")})

	invoice, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CompanyID:  1,
		CustomerID: customerID,
		Items:      []InvoiceItemInput{{ProductID: 42, Quantity: dec("3"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)

	_, err = svc.PostInvoice(context.Background(), 1, invoice.ID, 7)
	require.NoError(t, err)

	_, err = svc.PostInvoice(context.Background(), 1, invoice.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelInvoice(t *testing.T) {
	svc, repo, _, customerID := setup(t, map[int64]decimal.Decimal{42: dec("10")})

	invoice, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CompanyID:  1,
		CustomerID: customerID,
		Items:      []InvoiceItemInput{{ProductID: 42, Quantity: dec("3"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelInvoice(context.Background(), 1, invoice.ID))
	require.Equal(t, InvoiceStatusCancelled, repo.invoices[invoice.ID].Status)

	// cancelled invoices cannot be posted
	_, err = svc.PostInvoice(context.Background(), 1, invoice.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestIsRetryablePostError(t *testing.T) {
	require.True(t, IsRetryablePostError(inventory.ErrConcurrentModification))
	require.False(t, IsRetryablePostError(errors.New("other")))
}
