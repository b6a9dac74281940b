package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/proyuen/invsync/internal/model"
	"github.com/proyuen/invsync/pkg/database"
)

// ErrMappingNotFound is returned when a site has no recorded mapping for a SKU.
var ErrMappingNotFound = errors.New("site sku mapping not found")

//go:generate mockgen -source=$GOFILE -destination=../mocks/mapping_repo_mock.go -package=mocks

// MappingRepository stores the per-site SKU-to-catalog-coordinate mappings
// the propagation worker and the mapping refresher both depend on.
type MappingRepository interface {
	// Upsert writes or overwrites the mapping for (siteID, sku).
	Upsert(ctx context.Context, mapping *model.SiteSkuMap) error

	// Get returns the mapping for (siteID, sku), or ErrMappingNotFound.
	Get(ctx context.Context, siteID, sku string) (*model.SiteSkuMap, error)

	// ListBySite returns every mapping recorded for siteID.
	ListBySite(ctx context.Context, siteID string) ([]model.SiteSkuMap, error)
}

type mappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository creates a new MappingRepository instance.
func NewMappingRepository(db *gorm.DB) MappingRepository {
	return &mappingRepository{db: db}
}

func (r *mappingRepository) Upsert(ctx context.Context, mapping *model.SiteSkuMap) error {
	db := database.GetDBFromContext(ctx, r.db)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "site_id"}, {Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"product_id", "variation_id", "refreshed_at",
		}),
	}).Create(mapping).Error
	if err != nil {
		return fmt.Errorf("failed to upsert mapping for site '%s' sku '%s': %w", mapping.SiteID, mapping.SKU, err)
	}
	return nil
}

func (r *mappingRepository) Get(ctx context.Context, siteID, sku string) (*model.SiteSkuMap, error) {
	db := database.GetDBFromContext(ctx, r.db)
	var mapping model.SiteSkuMap
	err := db.First(&mapping, "site_id = ? AND sku = ?", siteID, sku).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get mapping for site '%s' sku '%s': %w", siteID, sku, err)
	}
	return &mapping, nil
}

func (r *mappingRepository) ListBySite(ctx context.Context, siteID string) ([]model.SiteSkuMap, error) {
	db := database.GetDBFromContext(ctx, r.db)
	var mappings []model.SiteSkuMap
	if err := db.Where("site_id = ?", siteID).Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("failed to list mappings for site '%s': %w", siteID, err)
	}
	return mappings, nil
}
