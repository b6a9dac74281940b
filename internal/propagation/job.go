// Package propagation fans committed stock changes out to every configured
// storefront: a bounded in-process queue feeding a single retrying worker.
package propagation

import "time"

// Job is one SKU's new on-hand quantity waiting to be pushed to every
// configured storefront site.
type Job struct {
	SKU           string
	StockQuantity int
	EnqueuedAt    time.Time
}
