package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/proyuen/invsync/internal/model"
	"github.com/proyuen/invsync/internal/repository"
	"github.com/proyuen/invsync/pkg/cache"
	"github.com/proyuen/invsync/pkg/database"
)

// LineItem is one unit of an incoming bulk delta request (order line, refund
// line, etc).
type LineItem struct {
	LineItemID string
	SKU        string
	Qty        int
}

// DeltaResult is the outcome of applying one LineItem's delta.
type DeltaResult struct {
	SKU       string
	WasNew    bool
	NewOnHand int
}

//go:generate mockgen -source=$GOFILE -destination=../mocks/inventory_service_mock.go -package=mocks

// InventoryService is the transactional core of the SSOT: idempotent delta
// application against the ledger, fronted by a non-authoritative read
// cache on the GetStock path.
type InventoryService interface {
	ApplyDelta(ctx context.Context, siteID, orderID, lineItemID, sku string, delta int, eventType model.EventType) (wasNew bool, newOnHand int, err error)
	BulkApplyDeltas(ctx context.Context, siteID, orderID string, items []LineItem, eventType model.EventType) ([]DeltaResult, error)
	GetStock(ctx context.Context, sku string) (int, error)
}

type inventoryService struct {
	ledger            repository.LedgerRepository
	tx                database.TransactionManager
	cache             cache.StockCache
	backordersDefault bool
}

// NewInventoryService creates a new InventoryService. stockCache may be nil,
// in which case GetStock always falls through to the ledger store.
func NewInventoryService(ledger repository.LedgerRepository, tx database.TransactionManager, stockCache cache.StockCache, backordersDefault bool) InventoryService {
	return &inventoryService{
		ledger:            ledger,
		tx:                tx,
		cache:             stockCache,
		backordersDefault: backordersDefault,
	}
}

// ApplyDelta atomically applies delta to a SKU's on_hand and records the
// event that caused it. A duplicate (site_id, order_id, line_item_id,
// event_type) is a no-op: it returns (false, current on_hand, nil) without
// mutating stock.
func (s *inventoryService) ApplyDelta(ctx context.Context, siteID, orderID, lineItemID, sku string, delta int, eventType model.EventType) (bool, int, error) {
	var wasNew bool
	var newOnHand int

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		w, n, err := s.applyDeltaInTx(ctx, siteID, orderID, lineItemID, sku, delta, eventType)
		if err != nil {
			return err
		}
		wasNew, newOnHand = w, n
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	if wasNew && s.cache != nil {
		if invalidateErr := s.cache.Invalidate(ctx, sku); invalidateErr != nil {
			log.Printf("stock cache invalidate failed for sku=%s: %v", sku, invalidateErr)
		}
	}

	return wasNew, newOnHand, nil
}

// BulkApplyDeltas applies deltas for every line item within a single
// outer transaction. The sign of each delta is determined by eventType:
// negative for order_paid (decrement on purchase), positive for
// refund/cancel (restock).
func (s *inventoryService) BulkApplyDeltas(ctx context.Context, siteID, orderID string, items []LineItem, eventType model.EventType) ([]DeltaResult, error) {
	sign := 1
	if eventType == model.EventOrderPaid {
		sign = -1
	}

	results := make([]DeltaResult, 0, len(items))
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, item := range items {
			wasNew, onHand, err := s.applyDeltaInTx(ctx, siteID, orderID, item.LineItemID, item.SKU, sign*item.Qty, eventType)
			if err != nil {
				return err
			}
			results = append(results, DeltaResult{SKU: item.SKU, WasNew: wasNew, NewOnHand: onHand})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.WasNew && s.cache != nil {
			if invalidateErr := s.cache.Invalidate(ctx, r.SKU); invalidateErr != nil {
				log.Printf("stock cache invalidate failed for sku=%s: %v", r.SKU, invalidateErr)
			}
		}
	}

	return results, nil
}

// applyDeltaInTx is the shared body of ApplyDelta/BulkApplyDeltas. It must
// run with ctx already carrying the enclosing transaction: ensure product
// and stock rows exist, insert the idempotency event (nested transaction
// absorbs a duplicate-key error as ErrDuplicateEvent), then lock and update
// the stock row.
func (s *inventoryService) applyDeltaInTx(ctx context.Context, siteID, orderID, lineItemID, sku string, delta int, eventType model.EventType) (bool, int, error) {
	if _, err := s.ledger.EnsureProduct(ctx, sku, s.backordersDefault); err != nil {
		return false, 0, err
	}
	if _, err := s.ledger.LockStock(ctx, sku); err != nil {
		return false, 0, err
	}

	event := &model.InventoryEvent{
		SiteID:     siteID,
		OrderID:    orderID,
		LineItemID: lineItemID,
		SKU:        sku,
		Delta:      delta,
		EventType:  eventType,
		CreatedAt:  time.Now().UTC(),
	}

	// Idempotency check: insert-as-oracle. GORM emits a SAVEPOINT/ROLLBACK TO
	// SAVEPOINT pair here (Transaction() called while already inside one),
	// so a duplicate-key error only unwinds this nested scope, not the
	// caller's outer transaction.
	insertErr := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return s.ledger.InsertEvent(ctx, event)
	})
	if insertErr != nil {
		if errors.Is(insertErr, repository.ErrDuplicateEvent) {
			stock, getErr := s.ledger.GetStock(ctx, sku)
			if getErr != nil && !errors.Is(getErr, repository.ErrStockNotFound) {
				return false, 0, getErr
			}
			current := 0
			if stock != nil {
				current = stock.OnHand
			}
			log.Printf("duplicate event skipped: site=%s order=%s item=%s sku=%s type=%s", siteID, orderID, lineItemID, sku, eventType)
			return false, current, nil
		}
		return false, 0, insertErr
	}

	stockRow, err := s.ledger.LockStock(ctx, sku)
	if err != nil {
		return false, 0, err
	}
	product, err := s.ledger.EnsureProduct(ctx, sku, s.backordersDefault)
	if err != nil {
		return false, 0, err
	}

	candidate := stockRow.OnHand + delta
	if candidate < 0 && !product.Backorders {
		log.Printf("stock floor hit for sku=%s (would go %d -> %d); clamping to 0", sku, stockRow.OnHand, candidate)
		candidate = 0
	}
	if err := s.ledger.ApplyStockDelta(ctx, sku, candidate); err != nil {
		return false, 0, err
	}

	log.Printf("stock updated: sku=%s delta=%+d new_on_hand=%d (site=%s order=%s)", sku, delta, candidate, siteID, orderID)
	return true, candidate, nil
}

// GetStock returns current on_hand for sku, checking the read cache first.
// A cache miss or error falls through to the ledger store, which remains
// authoritative; the ledger result is written back to the cache on the way
// out. An unknown SKU returns 0, not an error.
func (s *inventoryService) GetStock(ctx context.Context, sku string) (int, error) {
	if s.cache != nil {
		onHand, err := s.cache.GetStock(ctx, sku)
		if err == nil {
			return onHand, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("stock cache read failed for sku=%s: %v", sku, err)
		}
	}

	stock, err := s.ledger.GetStock(ctx, sku)
	if err != nil {
		if errors.Is(err, repository.ErrStockNotFound) {
			return 0, nil
		}
		return 0, err
	}

	if s.cache != nil {
		if setErr := s.cache.SetStock(ctx, sku, stock.OnHand); setErr != nil {
			log.Printf("stock cache write failed for sku=%s: %v", sku, setErr)
		}
	}

	return stock.OnHand, nil
}
