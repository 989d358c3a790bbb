package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"referral-ledger/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const recentTransactionsLimit = 20

type WalletService struct {
	DB       *gorm.DB
	Log      *logrus.Logger
	Notifier Notifier
	Clock    Clock
}

func NewWalletService(db *gorm.DB, log *logrus.Logger, notifier Notifier) *WalletService {
	return &WalletService{DB: db, Log: log, Notifier: notifier}
}

// RedeemResult is the success shape of Redeem.
type RedeemResult struct {
	Success      bool   `json:"success"`
	RewardID     string `json:"reward_id"`
	CreditsAdded int64  `json:"creditsAdded"`
	NewBalance   int64  `json:"newBalance"`
}

// Redeem converts a PENDING reward owned by requestingUserID into wallet balance.
//
// The reward row is locked before its status is read, so concurrent redemptions of
// the same reward serialize: the first flips it to APPLIED, every later attempt
// (including a retry after a timeout whose first attempt committed) gets
// ErrAlreadyApplied. Status flip, wallet credit and log entry commit together.
func (s *WalletService) Redeem(ctx context.Context, rewardID, requestingUserID string) (res *RedeemResult, err error) {
	defer func() { observe("redeem", err) }()

	if _, perr := uuid.Parse(rewardID); perr != nil {
		return nil, ErrInvalidRewardID
	}
	if strings.TrimSpace(requestingUserID) == "" {
		return nil, ErrInvalidUserID
	}

	var reward models.ReferralReward
	var balance int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", rewardID).
			First(&reward).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRewardNotFound
			}
			return infraError(err, "failed to lock reward")
		}
		if reward.ReferrerUserID != requestingUserID {
			return ErrForbidden
		}
		if reward.Status != models.RewardStatusPending {
			return ErrAlreadyApplied
		}

		now := s.Clock.Now()
		upd := tx.Model(&models.ReferralReward{}).
			Where("id = ? AND status = ?", reward.ID, models.RewardStatusPending).
			Updates(map[string]interface{}{
				"status":     models.RewardStatusApplied,
				"applied_at": now,
				"updated_at": now,
			})
		if upd.Error != nil {
			return infraError(upd.Error, "failed to apply reward")
		}
		if upd.RowsAffected != 1 {
			return ErrAlreadyApplied
		}

		var err error
		balance, err = bookWalletEntry(tx, reward.ReferrerUserID, reward.CreditsMB, models.WalletReasonReferralReward, reward.ID, now)
		return err
	})
	if err != nil {
		s.Log.WithFields(logrus.Fields{
			"reward_id": rewardID,
			"user_id":   requestingUserID,
			"reason":    ReasonCode(err),
		}).Info("reward redemption refused")
		return nil, err
	}

	walletCreditsMB.Add(float64(reward.CreditsMB))
	s.Log.WithFields(logrus.Fields{
		"reward_id":  reward.ID,
		"user_id":    requestingUserID,
		"credits_mb": reward.CreditsMB,
		"balance_mb": balance,
	}).Info("reward redeemed")
	s.Notifier.Notify(Notification{
		Event:  EventRewardApplied,
		UserID: requestingUserID,
		Data:   map[string]interface{}{"reward_id": reward.ID, "credits_mb": reward.CreditsMB, "balance_mb": balance},
	})

	return &RedeemResult{
		Success:      true,
		RewardID:     reward.ID,
		CreditsAdded: reward.CreditsMB,
		NewBalance:   balance,
	}, nil
}

// bookWalletEntry credits (or debits, for negative delta) the wallet and appends the
// matching transaction inside tx, returning the new balance. Credits upsert so the
// wallet is created on first use; debits are a guarded update that never drives the
// balance below zero.
func bookWalletEntry(tx *gorm.DB, userID string, delta int64, reason, reference string, at time.Time) (int64, error) {
	if delta >= 0 {
		wallet := models.DataWallet{
			UserID:     userID,
			BalanceMB:  delta,
			Timestamps: models.Timestamps{CreatedAt: at, UpdatedAt: at},
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"balance_mb": gorm.Expr("data_wallets.balance_mb + ?", delta),
				"updated_at": at,
			}),
		}).Create(&wallet).Error; err != nil {
			return 0, infraError(err, "failed to update wallet balance")
		}
	} else {
		res := tx.Model(&models.DataWallet{}).
			Where("user_id = ? AND balance_mb >= ?", userID, -delta).
			Updates(map[string]interface{}{
				"balance_mb": gorm.Expr("balance_mb + ?", delta),
				"updated_at": at,
			})
		if res.Error != nil {
			return 0, infraError(res.Error, "failed to update wallet balance")
		}
		if res.RowsAffected != 1 {
			return 0, ErrInsufficientBalance
		}
	}

	entry := models.WalletTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		DeltaMB:   delta,
		Reason:    reason,
		Reference: reference,
		CreatedAt: at,
	}
	if err := tx.Create(&entry).Error; err != nil {
		if isUniqueViolation(err) {
			return 0, ErrAlreadyApplied
		}
		return 0, infraError(err, "failed to append wallet transaction")
	}

	var current models.DataWallet
	if err := tx.Where("user_id = ?", userID).First(&current).Error; err != nil {
		return 0, infraError(err, "failed to read wallet balance")
	}
	return current.BalanceMB, nil
}

// SpendResult is the success shape of Spend.
type SpendResult struct {
	Success    bool   `json:"success"`
	Reference  string `json:"reference"`
	DebitedMB  int64  `json:"debitedMB"`
	NewBalance int64  `json:"newBalance"`
}

// Spend debits amountMB from the wallet. reference is the caller's idempotency key:
// a second Spend with the same reference fails with ErrAlreadyApplied.
func (s *WalletService) Spend(ctx context.Context, userID string, amountMB int64, reference string) (res *SpendResult, err error) {
	defer func() { observe("spend", err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	if amountMB <= 0 {
		return nil, ErrInvalidAmount
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrInvalidReference
	}

	var balance int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var wallet models.DataWallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInsufficientBalance
			}
			return infraError(err, "failed to lock wallet")
		}

		var seen int64
		if err := tx.Model(&models.WalletTransaction{}).
			Where("reason = ? AND reference = ?", models.WalletReasonSpend, reference).
			Count(&seen).Error; err != nil {
			return infraError(err, "failed to check spend reference")
		}
		if seen > 0 {
			return ErrAlreadyApplied
		}
		if wallet.BalanceMB < amountMB {
			return ErrInsufficientBalance
		}

		var err error
		balance, err = bookWalletEntry(tx, userID, -amountMB, models.WalletReasonSpend, reference, s.Clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"user_id":    userID,
		"debited_mb": amountMB,
		"balance_mb": balance,
		"reference":  reference,
	}).Info("wallet debited")
	return &SpendResult{Success: true, Reference: reference, DebitedMB: amountMB, NewBalance: balance}, nil
}

// WalletView is the read-only composition returned by GetWallet.
type WalletView struct {
	UserID             string                     `json:"user_id"`
	BalanceMB          int64                      `json:"balanceMB"`
	PendingRewards     []models.ReferralReward    `json:"pendingRewards"`
	AppliedRewards     []models.ReferralReward    `json:"appliedRewards"`
	RecentTransactions []models.WalletTransaction `json:"recentTransactions"`
}

func (s *WalletService) GetWallet(ctx context.Context, userID string) (view *WalletView, err error) {
	defer func() { observe("get_wallet", err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	db := s.DB.WithContext(ctx)
	view = &WalletView{
		UserID:             userID,
		PendingRewards:     []models.ReferralReward{},
		AppliedRewards:     []models.ReferralReward{},
		RecentTransactions: []models.WalletTransaction{},
	}

	var wallet models.DataWallet
	if err := db.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, infraError(err, "failed to load wallet")
		}
	} else {
		view.BalanceMB = wallet.BalanceMB
	}

	var rewards []models.ReferralReward
	if err := db.Where("referrer_user_id = ?", userID).Order("created_at DESC").Find(&rewards).Error; err != nil {
		return nil, infraError(err, "failed to load rewards")
	}
	for _, r := range rewards {
		if r.Status == models.RewardStatusPending {
			view.PendingRewards = append(view.PendingRewards, r)
		} else {
			view.AppliedRewards = append(view.AppliedRewards, r)
		}
	}

	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(recentTransactionsLimit).
		Find(&view.RecentTransactions).Error; err != nil {
		return nil, infraError(err, "failed to load wallet transactions")
	}
	return view, nil
}

// TransactionsSince returns the user's wallet transactions created after since, oldest first.
func (s *WalletService) TransactionsSince(ctx context.Context, userID string, since time.Time) ([]models.WalletTransaction, error) {
	var out []models.WalletTransaction
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND created_at > ?", userID, since.UTC()).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, infraError(err, "failed to load wallet transactions")
	}
	return out, nil
}

// issueReward creates a PENDING reward for referrerUserID. When refereeUserID is set
// at most one reward is ever issued for that referee; a repeat returns (nil, nil).
func issueReward(tx *gorm.DB, referrerUserID string, refereeUserID, sourceOrderID *string, creditsMB int64, at time.Time) (*models.ReferralReward, error) {
	reward := models.ReferralReward{
		ID:             uuid.NewString(),
		ReferrerUserID: referrerUserID,
		RefereeUserID:  refereeUserID,
		SourceOrderID:  sourceOrderID,
		CreditsMB:      creditsMB,
		Status:         models.RewardStatusPending,
		Timestamps:     models.Timestamps{CreatedAt: at, UpdatedAt: at},
	}
	res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "referee_user_id"}}, DoNothing: true}).
		Create(&reward)
	if res.Error != nil {
		return nil, infraError(res.Error, "failed to issue reward")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &reward, nil
}

// GrantReward issues a standalone reward (admin / promotional policy).
func (s *WalletService) GrantReward(ctx context.Context, referrerUserID string, creditsMB int64) (*models.ReferralReward, error) {
	if strings.TrimSpace(referrerUserID) == "" {
		return nil, ErrInvalidUserID
	}
	if creditsMB <= 0 {
		return nil, ErrInvalidAmount
	}
	reward, err := issueReward(s.DB.WithContext(ctx), referrerUserID, nil, nil, creditsMB, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	s.Notifier.Notify(Notification{
		Event:  EventRewardIssued,
		UserID: referrerUserID,
		Data:   map[string]interface{}{"reward_id": reward.ID, "credits_mb": creditsMB},
	})
	return reward, nil
}
