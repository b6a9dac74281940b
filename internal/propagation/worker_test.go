package propagation

import (
	"context"
	"sync"
	"testing"
	"time"

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

// fakeFailures is an in-memory stand-in for repository.FailureRepository,
// mirroring the dead-letter upsert-by-(site,sku) behavior of the real one.
type fakeFailures struct {
	mu   sync.Mutex
	rows map[string]*model.PropagationFailure
}

func newFakeFailures() *fakeFailures {
	return &fakeFailures{rows: make(map[string]*model.PropagationFailure)}
}

func (f *fakeFailures) Record(ctx context.Context, failure *model.PropagationFailure) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := failure.SiteID + "|" + failure.SKU
	if existing, ok := f.rows[key]; ok {
		existing.Error = failure.Error
		existing.Attempts = failure.Attempts
		existing.LastTried = time.Now().UTC()
		return nil
	}
	failure.CreatedAt = time.Now().UTC()
	failure.LastTried = failure.CreatedAt
	f.rows[key] = failure
	return nil
}

func (f *fakeFailures) ListOpen(ctx context.Context, limit int) ([]model.PropagationFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PropagationFailure
	for _, r := range f.rows {
		out = append(out, *r)
	}
	return out, nil
}

// fakeStorefrontClient lets each test control per-call success/failure.
type fakeStorefrontClient struct {
	mu        sync.Mutex
	calls     int
	failUntil int // first failUntil calls fail; subsequent calls succeed
	alwaysErr bool
}

func (c *fakeStorefrontClient) ListProducts(ctx context.Context, site config.SiteConfig) ([]storefront.Product, error) {
	return nil, nil
}

func (c *fakeStorefrontClient) ListVariations(ctx context.Context, site config.SiteConfig, productID int64) ([]storefront.Variation, error) {
	return nil, nil
}

func (c *fakeStorefrontClient) SetProductStock(ctx context.Context, site config.SiteConfig, productID int64, qty int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.alwaysErr || c.calls <= c.failUntil {
		return false, storefront.ErrTransient
	}
	return true, nil
}

func (c *fakeStorefrontClient) SetVariationStock(ctx context.Context, site config.SiteConfig, productID, variationID int64, qty int) (bool, error) {
	return c.SetProductStock(ctx, site, productID, qty)
}

func testSettings() *config.Settings {
	return &config.Settings{
		Sites: []config.SiteConfig{
			{SiteID: "site-a", BaseURL: "https://a.example.com", IsActive: true},
		},
		Propagation: config.PropagationConfig{
			MaxRetries:         3,
			RetryBaseSeconds:   0.001,
			BreakerMinRequests: 1000,
			BreakerFailRatio:   0.99,
			BreakerOpenSeconds: 1,
		},
	}
}

func TestWorker_DeadLettersAfterExhaustingRetries(t *testing.T) {
	settings := testSettings()
	mappings := newFakeMappings()
	require.NoError(t, mappings.Upsert(context.Background(), &model.SiteSkuMap{SiteID: "site-a", SKU: "widget-1", ProductID: 42}))
	failures := newFakeFailures()
	client := &fakeStorefrontClient{alwaysErr: true}

	queue := NewQueue(10)
	worker := NewWorker(queue, settings, mappings, failures, client)

	worker.handleJob(context.Background(), Job{SKU: "widget-1", StockQuantity: 7})

	row, ok := failures.rows["site-a|widget-1"]
	require.True(t, ok, "exhausting retries must record exactly one dead-letter row for (site, sku)")
	assert.Equal(t, settings.Propagation.MaxRetries, row.Attempts)
	assert.Equal(t, 3, client.calls, "worker must attempt max_retries times before dead-lettering")
}

func TestWorker_SucceedsWithinRetryBudget(t *testing.T) {
	settings := testSettings()
	mappings := newFakeMappings()
	require.NoError(t, mappings.Upsert(context.Background(), &model.SiteSkuMap{SiteID: "site-a", SKU: "widget-1", ProductID: 42}))
	failures := newFakeFailures()
	client := &fakeStorefrontClient{failUntil: 1} // first call fails, second succeeds

	queue := NewQueue(10)
	worker := NewWorker(queue, settings, mappings, failures, client)

	worker.handleJob(context.Background(), Job{SKU: "widget-1", StockQuantity: 7})

	_, deadLettered := failures.rows["site-a|widget-1"]
	assert.False(t, deadLettered, "a job that eventually succeeds must not be dead-lettered")
	assert.Equal(t, 2, client.calls)
}

func TestWorker_MissingMappingIsNotRetriableFailure(t *testing.T) {
	settings := testSettings()
	mappings := newFakeMappings() // no mapping upserted for "widget-1"
	failures := newFakeFailures()
	client := &fakeStorefrontClient{}

	queue := NewQueue(10)
	worker := NewWorker(queue, settings, mappings, failures, client)

	worker.handleJob(context.Background(), Job{SKU: "widget-1", StockQuantity: 7})

	assert.Equal(t, 0, client.calls, "an absent mapping must be treated as satisfied, never attempted")
	_, deadLettered := failures.rows["site-a|widget-1"]
	assert.False(t, deadLettered)
}

func TestWorker_ShutdownDrainsQueueWithinTimeout(t *testing.T) {
	settings := testSettings()
	mappings := newFakeMappings()
	failures := newFakeFailures()
	client := &fakeStorefrontClient{}

	queue := NewQueue(10)
	worker := NewWorker(queue, settings, mappings, failures, client)

	go worker.Run(context.Background())

	queue.Enqueue("widget-1", 1)
	queue.Enqueue("widget-2", 2)

	worker.Shutdown(2 * time.Second)

	worker.mu.Lock()
	state := worker.state
	worker.mu.Unlock()
	assert.Equal(t, stateStopped, state)
}
