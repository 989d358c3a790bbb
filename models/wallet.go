package models

import "time"

// Wallet transaction reasons.
const (
	WalletReasonReferralReward = "referral_reward"
	WalletReasonSpend          = "data_spend"
)

// DataWallet is a per-user running balance of data credits in megabytes.
// BalanceMB is only mutated in the same transaction as a WalletTransaction insert,
// so it always equals the sum of that user's DeltaMB.
type DataWallet struct {
	UserID    string `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	BalanceMB int64  `gorm:"not null;default:0;check:balance_mb >= 0" json:"balance_mb"`

	Timestamps
}

func (DataWallet) TableName() string {
	return "data_wallets"
}

// WalletTransaction is an append-only ledger entry. Rows are never updated or deleted.
// (Reason, Reference) is unique so the same reward or spend cannot be booked twice.
type WalletTransaction struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"type:varchar(64);not null;index:idx_wallet_tx_user_created" json:"user_id"`
	DeltaMB   int64     `gorm:"not null" json:"delta_mb"`
	Reason    string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_wallet_tx_reference" json:"reason"`
	Reference string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_wallet_tx_reference" json:"reference"`
	CreatedAt time.Time `gorm:"not null;index:idx_wallet_tx_user_created" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
