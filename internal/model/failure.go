package model

import "time"

// PropagationFailure is the dead-letter record for a (site, sku) pair whose
// propagation exhausted its retry budget. The unique index on (site_id, sku)
// is load-bearing: a retried failure for the same pair must update this row
// in place rather than accumulate a new one (see repository.FailureRepository).
type PropagationFailure struct {
	Base
	SiteID    string    `gorm:"column:site_id;not null;uniqueIndex:uq_failure_site_sku,priority:1" json:"site_id"`
	SKU       string    `gorm:"column:sku;not null;uniqueIndex:uq_failure_site_sku,priority:2" json:"sku"`
	Payload   JSONB     `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Error     string    `gorm:"column:error" json:"error"`
	Attempts  int       `gorm:"column:attempts;not null;default:1" json:"attempts"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	LastTried time.Time `gorm:"column:last_tried;not null" json:"last_tried"`
}

func (PropagationFailure) TableName() string { return "propagation_failures" }
