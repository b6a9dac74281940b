// Package storefront talks to the remote WooCommerce-style storefront REST
// API: paginated catalog enumeration and per-product/variation stock writes.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/proyuen/invsync/pkg/config"
)

const (
	pageSize       = 100
	requestTimeout = 30 * time.Second
)

// ErrTransient wraps a non-2xx response or network failure talking to a
// storefront. Callers (the propagation worker) decide whether to retry.
var ErrTransient = errors.New("storefront: transient error")

// Product is one catalog entry as returned by the remote site, trimmed to
// the fields the mapping refresher needs.
type Product struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	SKU  string `json:"sku"`
}

// Variation is one variation of a variable product.
type Variation struct {
	ID  int64  `json:"id"`
	SKU string `json:"sku"`
}

//go:generate mockgen -source=$GOFILE -destination=../mocks/storefront_client_mock.go -package=mocks

// Client is the outbound surface to every configured storefront instance.
type Client interface {
	ListProducts(ctx context.Context, site config.SiteConfig) ([]Product, error)
	ListVariations(ctx context.Context, site config.SiteConfig, productID int64) ([]Variation, error)
	SetProductStock(ctx context.Context, site config.SiteConfig, productID int64, qty int) (bool, error)
	SetVariationStock(ctx context.Context, site config.SiteConfig, productID, variationID int64, qty int) (bool, error)
}

type httpClient struct {
	hc       *http.Client
	limiters sync.Map // site_id -> *rate.Limiter
}

// NewClient returns a Client backed by net/http with a 30s per-request
// timeout. Each site gets its own token-bucket rate limiter, created lazily
// on first use, to keep a mapping refresh walk or a propagation burst from
// hammering a single storefront instance.
func NewClient() Client {
	return &httpClient{
		hc: &http.Client{Timeout: requestTimeout},
	}
}

func (c *httpClient) limiterFor(siteID string) *rate.Limiter {
	if v, ok := c.limiters.Load(siteID); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(10), 20)
	actual, _ := c.limiters.LoadOrStore(siteID, l)
	return actual.(*rate.Limiter)
}

func baseURL(site config.SiteConfig) string {
	url := site.BaseURL
	for len(url) > 0 && url[len(url)-1] == '/' {
		url = url[:len(url)-1]
	}
	return url + "/wp-json/wc/v3"
}

func (c *httpClient) do(ctx context.Context, site config.SiteConfig, method, url string, body interface{}) (*http.Response, error) {
	if err := c.limiterFor(site.SiteID).Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter wait: %v", ErrTransient, err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(site.Key, site.Secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return resp, nil
}

type stockUpdatePayload struct {
	ManageStock    bool `json:"manage_stock"`
	StockQuantity  int  `json:"stock_quantity"`
}

func (c *httpClient) SetProductStock(ctx context.Context, site config.SiteConfig, productID int64, qty int) (bool, error) {
	url := fmt.Sprintf("%s/products/%d", baseURL(site), productID)
	resp, err := c.do(ctx, site, http.MethodPut, url, stockUpdatePayload{ManageStock: true, StockQuantity: qty})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return isSuccess(resp.StatusCode), checkStatus(resp)
}

func (c *httpClient) SetVariationStock(ctx context.Context, site config.SiteConfig, productID, variationID int64, qty int) (bool, error) {
	url := fmt.Sprintf("%s/products/%d/variations/%d", baseURL(site), productID, variationID)
	resp, err := c.do(ctx, site, http.MethodPut, url, stockUpdatePayload{ManageStock: true, StockQuantity: qty})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return isSuccess(resp.StatusCode), checkStatus(resp)
}

func (c *httpClient) ListProducts(ctx context.Context, site config.SiteConfig) ([]Product, error) {
	var all []Product
	page := 1
	for {
		url := fmt.Sprintf("%s/products?per_page=%d&page=%d", baseURL(site), pageSize, page)
		resp, err := c.do(ctx, site, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		var batch []Product
		decErr := decodeAndClose(resp, &batch)
		if decErr != nil {
			return nil, decErr
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			break
		}
		page++
	}
	return all, nil
}

func (c *httpClient) ListVariations(ctx context.Context, site config.SiteConfig, productID int64) ([]Variation, error) {
	var all []Variation
	page := 1
	for {
		url := fmt.Sprintf("%s/products/%d/variations?per_page=%d&page=%d", baseURL(site), productID, pageSize, page)
		resp, err := c.do(ctx, site, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		var batch []Variation
		decErr := decodeAndClose(resp, &batch)
		if decErr != nil {
			return nil, decErr
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			break
		}
		page++
	}
	return all, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func checkStatus(resp *http.Response) error {
	if isSuccess(resp.StatusCode) {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
	return fmt.Errorf("%w: status=%d body=%s", ErrTransient, resp.StatusCode, body)
}

func decodeAndClose(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return checkStatus(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrTransient, err)
	}
	return nil
}
