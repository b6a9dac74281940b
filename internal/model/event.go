package model

import "time"

// InventoryEvent is the append-only idempotency oracle: the unique
// constraint on (site_id, order_id, line_item_id, event_type) is what makes
// apply_delta safe under at-least-once redelivery. Rows are never updated or
// deleted by the core.
type InventoryEvent struct {
	Base
	SiteID     string    `gorm:"column:site_id;not null;uniqueIndex:uq_event_idempotency,priority:1" json:"site_id"`
	OrderID    string    `gorm:"column:order_id;not null;uniqueIndex:uq_event_idempotency,priority:2" json:"order_id"`
	LineItemID string    `gorm:"column:line_item_id;not null;uniqueIndex:uq_event_idempotency,priority:3" json:"line_item_id"`
	SKU        string    `gorm:"column:sku;not null;index" json:"sku"`
	Delta      int       `gorm:"column:delta;not null" json:"delta"`
	EventType  EventType `gorm:"column:event_type;type:text;not null;uniqueIndex:uq_event_idempotency,priority:4" json:"event_type"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (InventoryEvent) TableName() string { return "inventory_events" }
