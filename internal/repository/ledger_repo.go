package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/proyuen/invsync/internal/model"
	"github.com/proyuen/invsync/pkg/database"
)

const pgUniqueViolation = "23505"

//go:generate mockgen -source=$GOFILE -destination=../mocks/ledger_repo_mock.go -package=mocks

// LedgerRepository is the SSOT's storage boundary: product/stock
// materialization, row-locked stock mutation, and the idempotent event
// ledger insert that makes apply_delta safe under redelivery.
type LedgerRepository interface {
	// EnsureProduct returns the Product for sku, auto-materializing it with
	// the given default backorder policy if it does not exist yet.
	EnsureProduct(ctx context.Context, sku string, backordersDefault bool) (*model.Product, error)

	// LockStock locks and returns the Stock row for sku for the duration of
	// the enclosing transaction (SELECT ... FOR UPDATE), auto-materializing a
	// zero-stock row first if none exists.
	LockStock(ctx context.Context, sku string) (*model.Stock, error)

	// ApplyStockDelta sets on_hand to newOnHand and persists it. Floor clamping
	// against a non-backorderable product must already have been decided by
	// the caller: this method trusts the value it is given.
	ApplyStockDelta(ctx context.Context, sku string, newOnHand int) error

	// InsertEvent inserts an InventoryEvent. If an event with the same
	// (site_id, order_id, line_item_id, event_type) already exists, it
	// returns ErrDuplicateEvent and the insert has no effect.
	InsertEvent(ctx context.Context, event *model.InventoryEvent) error

	// GetStock returns the current Stock row without locking, for read paths
	// (GetStock service method, cache fill).
	GetStock(ctx context.Context, sku string) (*model.Stock, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) EnsureProduct(ctx context.Context, sku string, backordersDefault bool) (*model.Product, error) {
	db := database.GetDBFromContext(ctx, r.db)

	var product model.Product
	err := db.First(&product, "sku = ?", sku).Error
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to get product '%s': %w", sku, err)
	}

	now := time.Now().UTC()
	product = model.Product{
		SKU:        sku,
		Name:       sku,
		Backorders: backordersDefault,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	// Native upsert: a concurrent materialization of the same unknown SKU
	// loses the race gracefully instead of erroring.
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoNothing: true,
	}).Create(&product).Error; err != nil {
		return nil, fmt.Errorf("failed to materialize product '%s': %w", sku, err)
	}
	if err := db.First(&product, "sku = ?", sku).Error; err != nil {
		return nil, fmt.Errorf("failed to reload product '%s': %w", sku, err)
	}
	return &product, nil
}

func (r *ledgerRepository) LockStock(ctx context.Context, sku string) (*model.Stock, error) {
	db := database.GetDBFromContext(ctx, r.db)

	var stock model.Stock
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&stock, "sku = ?", sku).Error
	if err == nil {
		return &stock, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to lock stock '%s': %w", sku, err)
	}

	now := time.Now().UTC()
	stock = model.Stock{SKU: sku, OnHand: 0, Reserved: 0, UpdatedAt: now}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoNothing: true,
	}).Create(&stock).Error; err != nil {
		return nil, fmt.Errorf("failed to materialize stock '%s': %w", sku, err)
	}
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&stock, "sku = ?", sku).Error; err != nil {
		return nil, fmt.Errorf("failed to lock newly materialized stock '%s': %w", sku, err)
	}
	return &stock, nil
}

func (r *ledgerRepository) ApplyStockDelta(ctx context.Context, sku string, newOnHand int) error {
	db := database.GetDBFromContext(ctx, r.db)
	result := db.Model(&model.Stock{}).
		Where("sku = ?", sku).
		Updates(map[string]interface{}{
			"on_hand":    newOnHand,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update stock '%s': %w", sku, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStockNotFound
	}
	return nil
}

func (r *ledgerRepository) InsertEvent(ctx context.Context, event *model.InventoryEvent) error {
	db := database.GetDBFromContext(ctx, r.db)
	err := db.Create(event).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return ErrDuplicateEvent
	}
	return fmt.Errorf("failed to insert inventory event: %w", err)
}

func (r *ledgerRepository) GetStock(ctx context.Context, sku string) (*model.Stock, error) {
	db := database.GetDBFromContext(ctx, r.db)
	var stock model.Stock
	if err := db.First(&stock, "sku = ?", sku).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("failed to get stock '%s': %w", sku, err)
	}
	return &stock, nil
}

// isUniqueViolation reports whether err wraps a Postgres unique_violation
// (SQLSTATE 23505), the signal GORM surfaces on a duplicate-key insert.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
