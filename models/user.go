package models

// UserProfile is the ledger's view of a storefront user.
// RefCode is generated once at profile creation and never changes.
// ReferredByCode is written at most once, by the attribution service.
type UserProfile struct {
	UserID         string  `gorm:"primaryKey;type:varchar(64)" json:"user_id"` // Auth service user id
	RefCode        string  `gorm:"type:varchar(16);uniqueIndex;not null" json:"ref_code"`
	ReferredByCode *string `gorm:"type:varchar(16);index" json:"referred_by_code,omitempty"`

	Timestamps
}

func (UserProfile) TableName() string {
	return "user_profiles"
}
