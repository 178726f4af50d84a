package model

import (
	"encoding/json"
	"time"
)

// Setting is an application-wide key/value entry grouped by category.
// Value holds raw JSON so any scalar or object can be stored.
type Setting struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
