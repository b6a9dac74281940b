package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proyuen/invsync/internal/model"
	"github.com/proyuen/invsync/internal/repository"
	"github.com/proyuen/invsync/internal/storefront"
	"github.com/proyuen/invsync/pkg/config"
)

// fakeMappings is an in-memory stand-in for repository.MappingRepository.
type fakeMappings struct {
	byKey map[string]*model.SiteSkuMap
}

func newFakeMappings() *fakeMappings { return &fakeMappings{byKey: make(map[string]*model.SiteSkuMap)} }

func (f *fakeMappings) Upsert(ctx context.Context, m *model.SiteSkuMap) error {
	f.byKey[m.SiteID+"|"+m.SKU] = m
	return nil
}

func (f *fakeMappings) Get(ctx context.Context, siteID, sku string) (*model.SiteSkuMap, error) {
	if m, ok := f.byKey[siteID+"|"+sku]; ok {
		return m, nil
	}
	return nil, repository.ErrMappingNotFound
}

func (f *fakeMappings) ListBySite(ctx context.Context, siteID string) ([]model.SiteSkuMap, error) {
	var out []model.SiteSkuMap
	for _, m := range f.byKey {
		if m.SiteID == siteID {
			out = append(out, *m)
		}
	}
	return out, nil
}

// fakeStorefrontCatalog is an in-memory stand-in for storefront.Client, used
// only for the mapping-refresh walk (ListProducts/ListVariations).
type fakeStorefrontCatalog struct {
	products       []storefront.Product
	variations     map[int64][]storefront.Variation
	listProductErr error
	listVarErr     map[int64]error
}

func (f *fakeStorefrontCatalog) ListProducts(ctx context.Context, site config.SiteConfig) ([]storefront.Product, error) {
	if f.listProductErr != nil {
		return nil, f.listProductErr
	}
	return f.products, nil
}

func (f *fakeStorefrontCatalog) ListVariations(ctx context.Context, site config.SiteConfig, productID int64) ([]storefront.Variation, error) {
	if err, ok := f.listVarErr[productID]; ok {
		return nil, err
	}
	return f.variations[productID], nil
}

func (f *fakeStorefrontCatalog) SetProductStock(ctx context.Context, site config.SiteConfig, productID int64, qty int) (bool, error) {
	return true, nil
}

func (f *fakeStorefrontCatalog) SetVariationStock(ctx context.Context, site config.SiteConfig, productID, variationID int64, qty int) (bool, error) {
	return true, nil
}

func TestMappingService_RefreshSiteMappings_SimpleAndVariableProducts(t *testing.T) {
	catalog := &fakeStorefrontCatalog{
		products: []storefront.Product{
			{ID: 1, Type: "simple", SKU: "simple-1"},
			{ID: 2, Type: "variable", SKU: ""},
			{ID: 3, Type: "simple", SKU: ""}, // blank sku: skipped
		},
		variations: map[int64][]storefront.Variation{
			2: {
				{ID: 21, SKU: "var-1"},
				{ID: 22, SKU: ""}, // blank sku: skipped
			},
		},
	}
	mappings := newFakeMappings()
	ledger := newFakeLedger()
	svc := NewMappingService(catalog, mappings, ledger, fakeTxManager{}, nil, false)

	result, err := svc.RefreshSiteMappings(context.Background(), config.SiteConfig{SiteID: "site-a"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Mapped, "one simple-product mapping + one variation mapping; blanks skipped")
	assert.Empty(t, result.Errors)

	simpleMapping, err := mappings.Get(context.Background(), "site-a", "simple-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), simpleMapping.ProductID)
	assert.Nil(t, simpleMapping.VariationID)

	varMapping, err := mappings.Get(context.Background(), "site-a", "var-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), varMapping.ProductID)
	require.NotNil(t, varMapping.VariationID)
	assert.Equal(t, int64(21), *varMapping.VariationID)

	assert.True(t, ledger.products["simple-1"] != nil, "refresh must auto-materialize a Product/Stock row for every mapped sku")
	assert.True(t, ledger.products["var-1"] != nil)
}

func TestMappingService_RefreshSiteMappings_VariationOverridesSimpleOnSameSKU(t *testing.T) {
	// A SKU that appears both on a simple product and, later, on a variation
	// must end up pointing at the variation's coordinates: last-seen wins.
	catalog := &fakeStorefrontCatalog{
		products: []storefront.Product{
			{ID: 1, Type: "simple", SKU: "shared-sku"},
			{ID: 2, Type: "variable", SKU: ""},
		},
		variations: map[int64][]storefront.Variation{
			2: {{ID: 21, SKU: "shared-sku"}},
		},
	}
	mappings := newFakeMappings()
	ledger := newFakeLedger()
	svc := NewMappingService(catalog, mappings, ledger, fakeTxManager{}, nil, false)

	_, err := svc.RefreshSiteMappings(context.Background(), config.SiteConfig{SiteID: "site-a"})
	require.NoError(t, err)

	mapping, err := mappings.Get(context.Background(), "site-a", "shared-sku")
	require.NoError(t, err)
	assert.Equal(t, int64(2), mapping.ProductID)
	require.NotNil(t, mapping.VariationID)
	assert.Equal(t, int64(21), *mapping.VariationID)
}

func TestMappingService_RefreshSiteMappings_ProductPageFetchFailureAbortsWalk(t *testing.T) {
	catalog := &fakeStorefrontCatalog{listProductErr: errors.New("storefront unreachable")}
	mappings := newFakeMappings()
	ledger := newFakeLedger()
	svc := NewMappingService(catalog, mappings, ledger, fakeTxManager{}, nil, false)

	result, err := svc.RefreshSiteMappings(context.Background(), config.SiteConfig{SiteID: "site-a"})
	require.NoError(t, err, "a page-fetch failure is reported in the result, not returned as an error")
	assert.Equal(t, 0, result.Mapped)
	require.Len(t, result.Errors, 1)
}

func TestMappingService_RefreshSiteMappings_PerVariationErrorDoesNotAbortWalk(t *testing.T) {
	catalog := &fakeStorefrontCatalog{
		products: []storefront.Product{
			{ID: 1, Type: "variable", SKU: ""},
			{ID: 2, Type: "simple", SKU: "simple-1"},
		},
		listVarErr: map[int64]error{1: errors.New("variations fetch failed")},
	}
	mappings := newFakeMappings()
	ledger := newFakeLedger()
	svc := NewMappingService(catalog, mappings, ledger, fakeTxManager{}, nil, false)

	result, err := svc.RefreshSiteMappings(context.Background(), config.SiteConfig{SiteID: "site-a"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Mapped, "the second product must still be mapped despite the first's variation fetch failing")
	require.Len(t, result.Errors, 1)
}

func TestMappingService_RefreshSiteMappings_CaseAndWhitespacePreservedVerbatim(t *testing.T) {
	catalog := &fakeStorefrontCatalog{
		products: []storefront.Product{
			{ID: 1, Type: "simple", SKU: "  Widget-ABC  "},
		},
	}
	mappings := newFakeMappings()
	ledger := newFakeLedger()
	svc := NewMappingService(catalog, mappings, ledger, fakeTxManager{}, nil, false)

	_, err := svc.RefreshSiteMappings(context.Background(), config.SiteConfig{SiteID: "site-a"})
	require.NoError(t, err)

	// Whitespace is trimmed only to decide blank-or-not; the mapping is keyed
	// by the remote SKU exactly as received, surrounding spaces and casing
	// included.
	_, getErr := mappings.Get(context.Background(), "site-a", "  Widget-ABC  ")
	require.NoError(t, getErr)
}
