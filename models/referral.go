package models

import "time"

// ReferralAttribution is the durable link from a referee to the referrer whose code they used.
// A referee has at most one attribution ever (unique referee_user_id).
type ReferralAttribution struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerUserID string    `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_attribution_pair" json:"referrer_user_id"`
	RefereeUserID  string    `gorm:"type:varchar(64);not null;uniqueIndex;uniqueIndex:idx_attribution_pair" json:"referee_user_id"`
	CodeUsed       string    `gorm:"type:varchar(16);not null" json:"code_used"`
	EstablishedAt  time.Time `gorm:"not null" json:"established_at"`
}

func (ReferralAttribution) TableName() string {
	return "referral_attributions"
}
