package model

import "time"

// EventType enumerates the three inbound event kinds the inventory engine
// accepts. Declared as a string type (not an int enum) so it round-trips
// cleanly through JSON webhook payloads and database text columns.
type EventType string

const (
	EventOrderPaid EventType = "order_paid"
	EventRefund    EventType = "refund"
	EventCancel    EventType = "cancel"
)

// Product is keyed by its SKU directly: there is no surrogate numeric ID,
// since the SKU itself is the natural, externally-supplied identifier this
// whole system is built around.
type Product struct {
	SKU           string    `gorm:"column:sku;primaryKey;type:text" json:"sku"`
	Name          string    `gorm:"column:name;not null;default:''" json:"name"`
	LeadTimeDays  int       `gorm:"column:lead_time_days;not null;default:0" json:"lead_time_days"`
	ReorderPoint  int       `gorm:"column:reorder_point;not null;default:0" json:"reorder_point"`
	Backorders    bool      `gorm:"column:backorders;not null;default:false" json:"backorders"`
	CreatedAt     time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// Stock holds the SSOT on_hand count for one SKU. on_hand may be negative
// only when the owning Product has Backorders set.
type Stock struct {
	SKU       string    `gorm:"column:sku;primaryKey;type:text" json:"sku"`
	OnHand    int       `gorm:"column:on_hand;not null;default:0" json:"on_hand"`
	Reserved  int       `gorm:"column:reserved;not null;default:0" json:"reserved"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Stock) TableName() string { return "stock" }
