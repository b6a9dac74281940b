package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/proyuen/invsync/internal/model"
	"github.com/proyuen/invsync/pkg/database"
)

//go:generate mockgen -source=$GOFILE -destination=../mocks/failure_repo_mock.go -package=mocks

// FailureRepository records propagation jobs that exhausted their retry
// budget. A retried failure for the same (site, sku) updates the existing
// dead-letter row in place rather than accumulating duplicates.
type FailureRepository interface {
	// Record upserts a dead-letter row for (failure.SiteID, failure.SKU),
	// overwriting Attempts with this cycle's count when a row already exists.
	Record(ctx context.Context, failure *model.PropagationFailure) error

	// ListOpen returns dead-letter rows, most recently tried first, capped
	// at limit.
	ListOpen(ctx context.Context, limit int) ([]model.PropagationFailure, error)
}

type failureRepository struct {
	db *gorm.DB
}

// NewFailureRepository creates a new FailureRepository instance.
func NewFailureRepository(db *gorm.DB) FailureRepository {
	return &failureRepository{db: db}
}

func (r *failureRepository) Record(ctx context.Context, failure *model.PropagationFailure) error {
	db := database.GetDBFromContext(ctx, r.db)
	if failure.CreatedAt.IsZero() {
		failure.CreatedAt = time.Now().UTC()
	}
	if failure.LastTried.IsZero() {
		failure.LastTried = failure.CreatedAt
	}
	if failure.Attempts == 0 {
		failure.Attempts = 1
	}

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "site_id"}, {Name: "sku"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"payload":    failure.Payload,
			"error":      failure.Error,
			"attempts":   failure.Attempts,
			"last_tried": failure.LastTried,
		}),
	}).Create(failure).Error
	if err != nil {
		return fmt.Errorf("failed to record propagation failure for site '%s' sku '%s': %w", failure.SiteID, failure.SKU, err)
	}
	return nil
}

func (r *failureRepository) ListOpen(ctx context.Context, limit int) ([]model.PropagationFailure, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	db := database.GetDBFromContext(ctx, r.db)
	var failures []model.PropagationFailure
	if err := db.Order("last_tried DESC").Limit(limit).Find(&failures).Error; err != nil {
		return nil, fmt.Errorf("failed to list propagation failures: %w", err)
	}
	return failures, nil
}
