package models

import "time"

// DiscountCode is a promotional code. Code is stored normalized (trimmed, upper case).
type DiscountCode struct {
	Code            string    `gorm:"primaryKey;type:varchar(64)" json:"code"`
	DiscountPercent int       `gorm:"not null" json:"discount_percent"`
	MaxUsesPerUser  int       `gorm:"not null;default:1" json:"max_uses_per_user"`
	ExpiresAt       time.Time `gorm:"not null" json:"expires_at"`

	Timestamps
}

func (DiscountCode) TableName() string {
	return "discount_codes"
}

// DiscountRedemption records one use of a code by a user, written by order ingestion.
type DiscountRedemption struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Code      string    `gorm:"type:varchar(64);not null;index:idx_discount_usage" json:"code"`
	UserID    string    `gorm:"type:varchar(64);not null;index:idx_discount_usage" json:"user_id"`
	OrderID   string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"order_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (DiscountRedemption) TableName() string {
	return "discount_redemptions"
}
