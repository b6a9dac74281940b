package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proyuen/invsync/internal/model"
	"github.com/proyuen/invsync/internal/repository"
)

// fakeTxManager runs fn directly, standing in for GORM's real
// transaction/savepoint nesting in these unit tests.
type fakeTxManager struct{}

func (fakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeLedger is an in-memory stand-in for repository.LedgerRepository.
type fakeLedger struct {
	products map[string]*model.Product
	stock    map[string]*model.Stock
	events   map[string]bool // keyed by site|order|line|type
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		products: make(map[string]*model.Product),
		stock:    make(map[string]*model.Stock),
		events:   make(map[string]bool),
	}
}

func (f *fakeLedger) EnsureProduct(ctx context.Context, sku string, backordersDefault bool) (*model.Product, error) {
	if p, ok := f.products[sku]; ok {
		return p, nil
	}
	p := &model.Product{SKU: sku, Backorders: backordersDefault}
	f.products[sku] = p
	return p, nil
}

func (f *fakeLedger) LockStock(ctx context.Context, sku string) (*model.Stock, error) {
	if s, ok := f.stock[sku]; ok {
		return s, nil
	}
	s := &model.Stock{SKU: sku, OnHand: 0}
	f.stock[sku] = s
	return s, nil
}

func (f *fakeLedger) ApplyStockDelta(ctx context.Context, sku string, newOnHand int) error {
	s, ok := f.stock[sku]
	if !ok {
		return repository.ErrStockNotFound
	}
	s.OnHand = newOnHand
	return nil
}

func (f *fakeLedger) InsertEvent(ctx context.Context, event *model.InventoryEvent) error {
	key := event.SiteID + "|" + event.OrderID + "|" + event.LineItemID + "|" + string(event.EventType)
	if f.events[key] {
		return repository.ErrDuplicateEvent
	}
	f.events[key] = true
	return nil
}

func (f *fakeLedger) GetStock(ctx context.Context, sku string) (*model.Stock, error) {
	s, ok := f.stock[sku]
	if !ok {
		return nil, repository.ErrStockNotFound
	}
	return s, nil
}

func TestInventoryService_ApplyDelta_FloorClamp(t *testing.T) {
	ledger := newFakeLedger()
	ledger.products["sku-1"] = &model.Product{SKU: "sku-1", Backorders: false}
	ledger.stock["sku-1"] = &model.Stock{SKU: "sku-1", OnHand: 5}

	svc := NewInventoryService(ledger, fakeTxManager{}, nil, false)

	wasNew, onHand, err := svc.ApplyDelta(context.Background(), "site-a", "order-1", "line-1", "sku-1", -20, model.EventOrderPaid)

	require.NoError(t, err)
	assert.True(t, wasNew)
	assert.Equal(t, 0, onHand, "on_hand must clamp to zero, not go negative, when backorders is false")
}

func TestInventoryService_ApplyDelta_BackordersAllowNegative(t *testing.T) {
	ledger := newFakeLedger()
	ledger.products["sku-1"] = &model.Product{SKU: "sku-1", Backorders: true}
	ledger.stock["sku-1"] = &model.Stock{SKU: "sku-1", OnHand: 5}

	svc := NewInventoryService(ledger, fakeTxManager{}, nil, false)

	wasNew, onHand, err := svc.ApplyDelta(context.Background(), "site-a", "order-1", "line-1", "sku-1", -20, model.EventOrderPaid)

	require.NoError(t, err)
	assert.True(t, wasNew)
	assert.Equal(t, -15, onHand)
}

func TestInventoryService_ApplyDelta_DuplicateEventIsNoOp(t *testing.T) {
	ledger := newFakeLedger()
	ledger.products["sku-1"] = &model.Product{SKU: "sku-1"}
	ledger.stock["sku-1"] = &model.Stock{SKU: "sku-1", OnHand: 5}

	svc := NewInventoryService(ledger, fakeTxManager{}, nil, false)

	_, onHand1, err := svc.ApplyDelta(context.Background(), "site-a", "order-1", "line-1", "sku-1", -3, model.EventOrderPaid)
	require.NoError(t, err)
	assert.Equal(t, 2, onHand1)

	wasNew2, onHand2, err := svc.ApplyDelta(context.Background(), "site-a", "order-1", "line-1", "sku-1", -3, model.EventOrderPaid)
	require.NoError(t, err)
	assert.False(t, wasNew2, "redelivery of the same event must be a no-op")
	assert.Equal(t, 2, onHand2, "stock must not move on a duplicate delivery")
}

func TestInventoryService_ApplyDelta_AutoMaterializesUnknownSKU(t *testing.T) {
	ledger := newFakeLedger()
	svc := NewInventoryService(ledger, fakeTxManager{}, nil, true)

	wasNew, onHand, err := svc.ApplyDelta(context.Background(), "site-a", "order-1", "line-1", "new-sku", 10, model.EventRefund)

	require.NoError(t, err)
	assert.True(t, wasNew)
	assert.Equal(t, 10, onHand)
	assert.True(t, ledger.products["new-sku"].Backorders, "unknown SKUs materialize with the configured default backorder policy")
}

func TestInventoryService_GetStock_UnknownSKUReturnsZero(t *testing.T) {
	ledger := newFakeLedger()
	svc := NewInventoryService(ledger, fakeTxManager{}, nil, false)

	onHand, err := svc.GetStock(context.Background(), "missing-sku")

	require.NoError(t, err)
	assert.Equal(t, 0, onHand)
}

func TestInventoryService_BulkApplyDeltas_SignByEventType(t *testing.T) {
	ledger := newFakeLedger()
	ledger.products["sku-1"] = &model.Product{SKU: "sku-1", Backorders: true}
	ledger.stock["sku-1"] = &model.Stock{SKU: "sku-1", OnHand: 10}

	svc := NewInventoryService(ledger, fakeTxManager{}, nil, false)

	results, err := svc.BulkApplyDeltas(context.Background(), "site-a", "order-1", []LineItem{
		{LineItemID: "line-1", SKU: "sku-1", Qty: 4},
	}, model.EventOrderPaid)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 6, results[0].NewOnHand, "order_paid must decrement stock")

	results, err = svc.BulkApplyDeltas(context.Background(), "site-a", "order-2", []LineItem{
		{LineItemID: "line-1", SKU: "sku-1", Qty: 4},
	}, model.EventRefund)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 10, results[0].NewOnHand, "refund must restock")
}
