package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/proyuen/invsync/internal/model"
	"github.com/proyuen/invsync/internal/repository"
	"github.com/proyuen/invsync/internal/storefront"
	"github.com/proyuen/invsync/pkg/cache"
	"github.com/proyuen/invsync/pkg/config"
	"github.com/proyuen/invsync/pkg/database"
)

// MappingRefreshResult summarizes one RefreshSiteMappings call.
type MappingRefreshResult struct {
	SiteID  string
	Mapped  int
	Errors  []string
}

// ErrRefreshInProgress is returned when a refresh for the same site is
// already running and the distributed lock could not be acquired in time.
var ErrRefreshInProgress = fmt.Errorf("mapping refresh already in progress for this site")

const refreshLockTTL = 2 * time.Minute
const refreshLockWait = 3 * time.Second

//go:generate mockgen -source=$GOFILE -destination=../mocks/mapping_service_mock.go -package=mocks

// MappingService walks a storefront's catalog and upserts the resulting
// sku->(product_id, variation_id) mappings.
type MappingService interface {
	RefreshSiteMappings(ctx context.Context, site config.SiteConfig) (*MappingRefreshResult, error)
}

type mappingService struct {
	storefront        storefront.Client
	mappings          repository.MappingRepository
	ledger            repository.LedgerRepository
	tx                database.TransactionManager
	redisClient       *redis.Client
	backordersDefault bool
}

// NewMappingService creates a new MappingService. redisClient may be nil,
// in which case concurrent refreshes of the same site are not serialized
// (acceptable for a single-operator/low-concurrency deployment).
func NewMappingService(
	sf storefront.Client,
	mappings repository.MappingRepository,
	ledger repository.LedgerRepository,
	tx database.TransactionManager,
	redisClient *redis.Client,
	backordersDefault bool,
) MappingService {
	return &mappingService{
		storefront:        sf,
		mappings:          mappings,
		ledger:            ledger,
		tx:                tx,
		redisClient:       redisClient,
		backordersDefault: backordersDefault,
	}
}

// RefreshSiteMappings fetches every product (and, for variable products,
// every variation) from site and upserts a SiteSkuMap row per SKU. A
// variation's mapping overrides a simple-product mapping for the same SKU
// on a last-seen basis: whichever is walked later in the product list
// wins, matching the source walk's sequential upsert order. Failing to
// fetch the top-level product page aborts the whole refresh; a failure
// fetching one product's variations or upserting one SKU is recorded in
// Errors and the walk continues.
func (m *mappingService) RefreshSiteMappings(ctx context.Context, site config.SiteConfig) (*MappingRefreshResult, error) {
	if m.redisClient != nil {
		lock := cache.NewRedisLock(m.redisClient, "lock:refresh:"+site.SiteID)
		lockCtx, cancel := context.WithTimeout(ctx, refreshLockWait)
		acquired, err := lock.Lock(lockCtx, refreshLockTTL)
		cancel()
		if err != nil || !acquired {
			return nil, ErrRefreshInProgress
		}
		defer func() {
			unlockCtx, unlockCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer unlockCancel()
			if err := lock.Unlock(unlockCtx); err != nil {
				log.Printf("refresh lock unlock failed for site=%s: %v", site.SiteID, err)
			}
		}()
	}

	result := &MappingRefreshResult{SiteID: site.SiteID}

	products, err := m.storefront.ListProducts(ctx, site)
	if err != nil {
		msg := fmt.Sprintf("failed to fetch products from %s: %v", site.SiteID, err)
		log.Print(msg)
		result.Errors = append(result.Errors, msg)
		return result, nil
	}

	// Single outer transaction: the whole walk commits once at the end,
	// matching the source's one session.commit() per refresh.
	err = m.tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, product := range products {
			if product.Type == "variable" {
				variations, vErr := m.storefront.ListVariations(ctx, site, product.ID)
				if vErr != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("product %d: %v", product.ID, vErr))
					continue
				}
				for _, variation := range variations {
					sku := variation.SKU
					if strings.TrimSpace(sku) == "" {
						continue
					}
					if err := m.upsertOne(ctx, site.SiteID, sku, product.ID, &variation.ID); err != nil {
						result.Errors = append(result.Errors, fmt.Sprintf("variation %d sku=%s: %v", variation.ID, sku, err))
						continue
					}
					result.Mapped++
				}
				continue
			}

			sku := product.SKU
			if strings.TrimSpace(sku) == "" {
				continue
			}
			if err := m.upsertOne(ctx, site.SiteID, sku, product.ID, nil); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("product %d sku=%s: %v", product.ID, sku, err))
				continue
			}
			result.Mapped++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("mapping refresh site=%s: %d mapped, %d errors", site.SiteID, result.Mapped, len(result.Errors))
	return result, nil
}

func (m *mappingService) upsertOne(ctx context.Context, siteID, sku string, productID int64, variationID *int64) error {
	if _, err := m.ledger.EnsureProduct(ctx, sku, m.backordersDefault); err != nil {
		return err
	}
	mapping := &model.SiteSkuMap{
		SiteID:      siteID,
		SKU:         sku,
		ProductID:   productID,
		VariationID: variationID,
		RefreshedAt: time.Now().UTC(),
	}
	return m.mappings.Upsert(ctx, mapping)
}
