package models

import "time"

// Timestamps adds GORM auto-times. Ledger rows are never soft-deleted, so unlike
// catalogue tables there is no DeletedAt here.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}
