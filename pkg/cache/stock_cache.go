package cache

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrCacheMiss is returned by StockCache.GetStock when there is no cached
// value, distinct from a Redis/network error: callers treat both the same
// way (fall through to the ledger store) but log them differently.
var ErrCacheMiss = errors.New("stock cache: miss")

const stockKeyPrefix = "stock"

const stockTTL = 60 * time.Second

// StockCache is the read-through, never-authoritative cache fronting
// InventoryService.GetStock.
type StockCache interface {
	GetStock(ctx context.Context, sku string) (int, error)
	SetStock(ctx context.Context, sku string, onHand int) error
	Invalidate(ctx context.Context, sku string) error
}

type stockCache struct {
	cache Cache
}

// NewStockCache wraps an already-decorated Cache (instrumented + resilient)
// with the stock-specific key scheme and int encoding.
func NewStockCache(c Cache) StockCache {
	return &stockCache{cache: c}
}

func (s *stockCache) GetStock(ctx context.Context, sku string) (int, error) {
	val, err := s.cache.Get(ctx, stockKeyPrefix+":"+sku)
	if err != nil {
		return 0, err
	}
	if val == "" {
		return 0, ErrCacheMiss
	}
	onHand, err := strconv.Atoi(val)
	if err != nil {
		return 0, ErrCacheMiss
	}
	return onHand, nil
}

func (s *stockCache) SetStock(ctx context.Context, sku string, onHand int) error {
	return s.cache.Set(ctx, stockKeyPrefix+":"+sku, strconv.Itoa(onHand), stockTTL)
}

func (s *stockCache) Invalidate(ctx context.Context, sku string) error {
	return s.cache.Del(ctx, stockKeyPrefix+":"+sku)
}

// BuildDecoratedCache composes the cache decorators so observability wraps
// resilience wraps the raw client: Get/Set calls are retried and
// circuit-broken first, then instrumented, so a tripped breaker still shows
// up in traces/metrics.
func BuildDecoratedCache(raw Cache) Cache {
	return NewInstrumentedCache(NewResilientCache(raw))
}
