package models

import "time"

// RewardStatus of a referral reward. Only PENDING -> APPLIED is allowed.
type RewardStatus string

const (
	RewardStatusPending RewardStatus = "PENDING"
	RewardStatusApplied RewardStatus = "APPLIED"
)

// ReferralReward is a pending grant of data credits to a referrer, redeemable exactly once.
type ReferralReward struct {
	ID             string       `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerUserID string       `gorm:"type:varchar(64);not null;index" json:"referrer_user_id"`
	RefereeUserID  *string      `gorm:"type:varchar(64);uniqueIndex" json:"referee_user_id,omitempty"` // one first-order reward per referee
	SourceOrderID  *string      `gorm:"type:varchar(64)" json:"source_order_id,omitempty"`
	CreditsMB      int64        `gorm:"not null" json:"credits_mb"`
	Status         RewardStatus `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	AppliedAt      *time.Time   `json:"applied_at,omitempty"`

	Timestamps
}

func (ReferralReward) TableName() string {
	return "referral_rewards"
}
