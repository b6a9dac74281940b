package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Base is embedded by entities whose primary key is a Snowflake-generated
// int64 rather than a natural string key (InventoryEvent, PropagationFailure).
type Base struct {
	ID uint64 `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
}

// JSONB stores an arbitrary structured snapshot (e.g. a PropagationFailure's
// job payload) in a Postgres jsonb column.
type JSONB map[string]interface{}

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("JSONB: type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}
