package database

import (
	"context"

	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "db_tx"

//go:generate mockgen -source=$GOFILE -destination=../../internal/mocks/tx_manager_mock.go -package=mocks

// TransactionManager runs a function inside a database transaction, making
// the *gorm.DB reachable from nested repository calls via context rather
// than an explicit parameter.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type gormTransactionManager struct {
	db *gorm.DB
}

// NewTransactionManager creates a new GORM transaction manager.
func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &gormTransactionManager{db: db}
}

// WithTransaction runs fn within a database transaction. When ctx already
// carries a transaction (nested call), GORM opens a SAVEPOINT instead of a
// new transaction, and a failure inside fn rolls back only to that
// SAVEPOINT: this is what lets InventoryEvent's idempotent-insert path
// swallow a duplicate-key error without aborting the outer ApplyDelta
// transaction.
func (tm *gormTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	db := GetDBFromContext(ctx, tm.db)
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey, tx)
		return fn(txCtx)
	})
}

// GetDBFromContext retrieves the transaction DB from context if present,
// otherwise returns defaultDB bound to ctx.
func GetDBFromContext(ctx context.Context, defaultDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx
	}
	return defaultDB.WithContext(ctx)
}
