package model

import (
	"github.com/proyuen/invsync/pkg/snowflake"
	"gorm.io/gorm"
)

// BeforeCreate assigns a Snowflake ID before insert if one wasn't set.
// Snowflake IDs are monotonic (time-ordered) int64s, which is exactly what
// the ledger's append-only, high-write-concurrency tables need for a primary
// key without contending on a database sequence.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == 0 {
		b.ID = snowflake.GenID()
	}
	return nil
}
