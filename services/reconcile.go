package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"referral-ledger/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceCheck compares a wallet's stored balance against its transaction log.
type BalanceCheck struct {
	UserID    string `json:"user_id"`
	BalanceMB int64  `json:"balance_mb"`
	LedgerMB  int64  `json:"ledger_mb"`
	Entries   int64  `json:"entries"`
	Balanced  bool   `json:"balanced"`
}

// ReconciliationReport is the result of a full pass over every wallet.
type ReconciliationReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Wallets     int            `json:"wallets"`
	Drifted     []BalanceCheck `json:"drifted"`
}

type ledgerSum struct {
	UserID  string
	Total   int64
	Entries int64
}

// Reconcile reports whether the user's balance equals the sum of their ledger deltas.
// A user with neither a wallet nor entries reconciles at zero.
func (s *WalletService) Reconcile(ctx context.Context, userID string) (*BalanceCheck, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	return reconcileUser(s.DB.WithContext(ctx), userID)
}

func reconcileUser(db *gorm.DB, userID string) (*BalanceCheck, error) {
	check := &BalanceCheck{UserID: userID}

	var wallet models.DataWallet
	if err := db.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, infraError(err, "failed to load wallet")
		}
	} else {
		check.BalanceMB = wallet.BalanceMB
	}

	var sum ledgerSum
	if err := db.Model(&models.WalletTransaction{}).
		Select("user_id, COALESCE(SUM(delta_mb), 0) AS total, COUNT(*) AS entries").
		Where("user_id = ?", userID).
		Group("user_id").
		Scan(&sum).Error; err != nil {
		return nil, infraError(err, "failed to sum wallet transactions")
	}
	check.LedgerMB = sum.Total
	check.Entries = sum.Entries
	check.Balanced = check.BalanceMB == check.LedgerMB
	return check, nil
}

// ReconcileAll checks every wallet and every user that has ledger entries.
func (s *WalletService) ReconcileAll(ctx context.Context) (*ReconciliationReport, error) {
	db := s.DB.WithContext(ctx)

	var wallets []models.DataWallet
	if err := db.Find(&wallets).Error; err != nil {
		return nil, infraError(err, "failed to load wallets")
	}
	var sums []ledgerSum
	if err := db.Model(&models.WalletTransaction{}).
		Select("user_id, COALESCE(SUM(delta_mb), 0) AS total, COUNT(*) AS entries").
		Group("user_id").
		Scan(&sums).Error; err != nil {
		return nil, infraError(err, "failed to sum wallet transactions")
	}

	checks := make(map[string]*BalanceCheck, len(wallets))
	for _, w := range wallets {
		checks[w.UserID] = &BalanceCheck{UserID: w.UserID, BalanceMB: w.BalanceMB}
	}
	for _, sum := range sums {
		c, ok := checks[sum.UserID]
		if !ok {
			c = &BalanceCheck{UserID: sum.UserID}
			checks[sum.UserID] = c
		}
		c.LedgerMB = sum.Total
		c.Entries = sum.Entries
	}

	report := &ReconciliationReport{
		GeneratedAt: s.Clock.Now(),
		Wallets:     len(checks),
		Drifted:     []BalanceCheck{},
	}
	for _, c := range checks {
		c.Balanced = c.BalanceMB == c.LedgerMB
		if !c.Balanced {
			report.Drifted = append(report.Drifted, *c)
		}
	}

	fields := logrus.Fields{"wallets": report.Wallets, "drifted": len(report.Drifted)}
	if len(report.Drifted) > 0 {
		s.Log.WithFields(fields).Warn("wallet reconciliation found drift")
	} else {
		s.Log.WithFields(fields).Info("wallet reconciliation clean")
	}
	return report, nil
}

// RepairBalance rewrites the stored balance from the transaction log, which is the
// source of truth. It locks the wallet so no credit or debit interleaves.
func (s *WalletService) RepairBalance(ctx context.Context, userID string) (*BalanceCheck, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}

	var before, after *BalanceCheck
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var wallet models.DataWallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&wallet).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return infraError(err, "failed to lock wallet")
		}

		var err error
		before, err = reconcileUser(tx, userID)
		if err != nil {
			return err
		}
		if before.Balanced {
			after = before
			return nil
		}
		if before.LedgerMB < 0 {
			return infraError(errors.New("negative ledger sum"), "wallet ledger is inconsistent")
		}

		now := s.Clock.Now()
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"balance_mb": before.LedgerMB, "updated_at": now}),
		}).Create(&models.DataWallet{
			UserID:     userID,
			BalanceMB:  before.LedgerMB,
			Timestamps: models.Timestamps{CreatedAt: now, UpdatedAt: now},
		}).Error; err != nil {
			return infraError(err, "failed to repair wallet balance")
		}

		after, err = reconcileUser(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !before.Balanced {
		s.Log.WithFields(logrus.Fields{
			"user_id":    userID,
			"was_mb":     before.BalanceMB,
			"ledger_mb":  before.LedgerMB,
			"balance_mb": after.BalanceMB,
		}).Warn("wallet balance repaired from ledger")
	}
	return after, nil
}
