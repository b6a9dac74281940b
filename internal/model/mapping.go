package model

import "time"

// SiteSkuMap associates a SKU with its remote catalog coordinates on one
// storefront site. Composite primary key (site_id, sku): there is no
// surrogate ID because the pair *is* the identity propagation keys off of.
type SiteSkuMap struct {
	SiteID       string    `gorm:"column:site_id;primaryKey;type:text" json:"site_id"`
	SKU          string    `gorm:"column:sku;primaryKey;type:text" json:"sku"`
	ProductID    int64     `gorm:"column:product_id;not null" json:"product_id"`
	VariationID  *int64    `gorm:"column:variation_id" json:"variation_id,omitempty"`
	RefreshedAt  time.Time `gorm:"column:refreshed_at;not null" json:"refreshed_at"`
}

func (SiteSkuMap) TableName() string { return "site_sku_map" }
