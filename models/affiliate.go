package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AffiliateStatus string

const (
	AffiliateStatusPending  AffiliateStatus = "PENDING"
	AffiliateStatusApproved AffiliateStatus = "APPROVED"
	AffiliateStatusRejected AffiliateStatus = "REJECTED"
)

// Affiliate is a user enrolled in the affiliate programme.
type Affiliate struct {
	ID                string          `gorm:"primaryKey;type:uuid" json:"id"`
	UserID            string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"`
	DisplayName       string          `gorm:"type:varchar(128)" json:"display_name"`
	Slug              string          `gorm:"type:varchar(160);uniqueIndex;not null" json:"slug"` // share-link handle
	CommissionPercent decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"commission_percent"`
	Status            AffiliateStatus `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"application_status"`
	AppliedAt         time.Time       `gorm:"not null" json:"applied_at"`
	ReviewedAt        *time.Time      `json:"reviewed_at,omitempty"`
}

func (Affiliate) TableName() string {
	return "affiliates"
}

type CommissionStatus string

const (
	CommissionStatusPending  CommissionStatus = "PENDING"
	CommissionStatusApproved CommissionStatus = "APPROVED"
	CommissionStatusPaid     CommissionStatus = "PAID"
)

// Commission is one affiliate payout entry per completed order.
// Status only advances PENDING -> APPROVED -> PAID.
type Commission struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	AffiliateID string           `gorm:"type:uuid;not null;index" json:"affiliate_id"`
	OrderID     string           `gorm:"type:varchar(64);not null;uniqueIndex" json:"order_id"`
	Amount      decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"amount"`
	Status      CommissionStatus `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_commission_status_created" json:"status"`
	CreatedAt   time.Time        `gorm:"not null;index:idx_commission_status_created" json:"created_at"`
	ApprovedAt  *time.Time       `json:"approved_at,omitempty"`
	PaidAt      *time.Time       `json:"paid_at,omitempty"`
}

func (Commission) TableName() string {
	return "commissions"
}
