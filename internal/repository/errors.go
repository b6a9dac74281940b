package repository

import "errors"

// ErrProductNotFound names a SKU with no Product row. No repository method
// returns it: EnsureProduct materializes a missing product instead.
var ErrProductNotFound = errors.New("product not found")

// ErrStockNotFound is returned when a SKU has no Stock row.
var ErrStockNotFound = errors.New("stock not found")

// ErrInsufficientStock names a deduction that would take on_hand below the
// stock floor for a non-backorderable product. Nothing returns it: the
// inventory service clamps on_hand to zero instead of rejecting the delta.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrDuplicateEvent is returned when an InventoryEvent insert collides with
// the (site_id, order_id, line_item_id, event_type) unique index: the
// signal the ledger uses to detect an already-applied delta.
var ErrDuplicateEvent = errors.New("duplicate inventory event")
