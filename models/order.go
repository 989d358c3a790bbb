package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CompletedOrder is the ledger's record of an "order completed" event.
// OrderID is the idempotency key for event ingestion.
type CompletedOrder struct {
	OrderID      string          `gorm:"primaryKey;type:varchar(64)" json:"order_id"`
	UserID       string          `gorm:"type:varchar(64);not null;index" json:"user_id"`
	AffiliateID  *string         `gorm:"type:varchar(64);index" json:"affiliate_id,omitempty"`
	TotalAmount  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_amount"`
	DiscountCode *string         `gorm:"type:varchar(64)" json:"discount_code,omitempty"`
	CompletedAt  time.Time       `gorm:"not null" json:"completed_at"`
	RefundedAt   *time.Time      `json:"refunded_at,omitempty"`
}

func (CompletedOrder) TableName() string {
	return "completed_orders"
}
