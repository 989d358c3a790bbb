package models

import "gorm.io/gorm"

// All returns every ledger model, in migration order.
func All() []interface{} {
	return []interface{}{
		&UserProfile{},
		&ReferralAttribution{},
		&Affiliate{},
		&Commission{},
		&CompletedOrder{},
		&ReferralReward{},
		&DataWallet{},
		&WalletTransaction{},
		&DiscountCode{},
		&DiscountRedemption{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
