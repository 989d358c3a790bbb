package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"referral-ledger/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultLockDays  = 14
	approveBatchSize = 500
)

type CommissionService struct {
	DB       *gorm.DB
	Log      *logrus.Logger
	Notifier Notifier
	Clock    Clock

	// DefaultPercent is the commission rate given to newly enrolled affiliates.
	DefaultPercent decimal.Decimal
}

func NewCommissionService(db *gorm.DB, log *logrus.Logger, notifier Notifier, defaultPercent float64) *CommissionService {
	return &CommissionService{
		DB:             db,
		Log:            log,
		Notifier:       notifier,
		DefaultPercent: decimal.NewFromFloat(defaultPercent),
	}
}

// --- Affiliates ---

// ApplyAffiliate enrols userID as a PENDING affiliate. One application per user.
func (s *CommissionService) ApplyAffiliate(ctx context.Context, userID, displayName string) (*models.Affiliate, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	displayName = strings.TrimSpace(displayName)

	id := uuid.NewString()
	base := slug.Make(displayName)
	if base == "" {
		base = "affiliate"
	}
	aff := models.Affiliate{
		ID:                id,
		UserID:            userID,
		DisplayName:       displayName,
		Slug:              base + "-" + id[:8],
		CommissionPercent: s.DefaultPercent,
		Status:            models.AffiliateStatusPending,
		AppliedAt:         s.Clock.Now(),
	}
	if err := s.DB.WithContext(ctx).Create(&aff).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAffiliateExists
		}
		return nil, infraError(err, "failed to create affiliate")
	}
	s.Log.WithFields(logrus.Fields{"affiliate_id": aff.ID, "user_id": userID}).Info("affiliate application received")
	return &aff, nil
}

// ReviewAffiliate moves a PENDING application to APPROVED or REJECTED.
func (s *CommissionService) ReviewAffiliate(ctx context.Context, affiliateID string, approve bool) (*models.Affiliate, error) {
	if _, err := uuid.Parse(affiliateID); err != nil {
		return nil, ErrAffiliateNotFound
	}
	next := models.AffiliateStatusRejected
	if approve {
		next = models.AffiliateStatusApproved
	}

	var aff models.Affiliate
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", affiliateID).
			First(&aff).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAffiliateNotFound
			}
			return infraError(err, "failed to lock affiliate")
		}
		if aff.Status != models.AffiliateStatusPending {
			return ErrInvalidTransition
		}
		now := s.Clock.Now()
		aff.Status = next
		aff.ReviewedAt = &now
		if err := tx.Model(&aff).Updates(map[string]interface{}{
			"status":      next,
			"reviewed_at": now,
		}).Error; err != nil {
			return infraError(err, "failed to review affiliate")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &aff, nil
}

func (s *CommissionService) GetAffiliate(ctx context.Context, affiliateID string) (*models.Affiliate, error) {
	if _, err := uuid.Parse(affiliateID); err != nil {
		return nil, ErrAffiliateNotFound
	}
	return s.findAffiliate(s.DB.WithContext(ctx).Where("id = ?", affiliateID))
}

func (s *CommissionService) GetAffiliateByUser(ctx context.Context, userID string) (*models.Affiliate, error) {
	return s.findAffiliate(s.DB.WithContext(ctx).Where("user_id = ?", userID))
}

func (s *CommissionService) findAffiliate(q *gorm.DB) (*models.Affiliate, error) {
	var aff models.Affiliate
	if err := q.First(&aff).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAffiliateNotFound
		}
		return nil, infraError(err, "failed to load affiliate")
	}
	return &aff, nil
}

// --- Commissions ---

// RecordCommission inserts a PENDING commission for orderID. The unique order_id
// makes redelivered order events fail with ErrDuplicateOrder instead of double-booking.
func (s *CommissionService) RecordCommission(ctx context.Context, affiliateID, orderID string, amount decimal.Decimal) (c *models.Commission, err error) {
	defer func() { observe("record_commission", err) }()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	aff, err := s.GetAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	if aff.Status == models.AffiliateStatusRejected {
		return nil, ErrAffiliateRejected
	}

	commission := models.Commission{
		ID:          uuid.NewString(),
		AffiliateID: aff.ID,
		OrderID:     orderID,
		Amount:      amount.Round(2),
		Status:      models.CommissionStatusPending,
		CreatedAt:   s.Clock.Now(),
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&commission)
	if res.Error != nil {
		return nil, infraError(res.Error, "failed to insert commission")
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicateOrder
	}

	s.Log.WithFields(logrus.Fields{
		"commission_id": commission.ID,
		"affiliate_id":  aff.ID,
		"order_id":      orderID,
		"amount":        commission.Amount.String(),
	}).Info("commission recorded")
	return &commission, nil
}

// ApprovePending promotes every PENDING commission older than lockDays to APPROVED
// and returns how many rows it changed. The whole sweep is one transaction, and
// the status predicate makes a repeated or overlapping sweep a no-op for rows
// already approved. Commissions whose order was refunded are left PENDING.
func (s *CommissionService) ApprovePending(ctx context.Context, lockDays int) (approved int64, err error) {
	defer func() { observe("approve_pending", err) }()

	if lockDays < 0 {
		return 0, ErrInvalidLockPeriod
	}
	now := s.Clock.Now()
	cutoff := now.Add(-time.Duration(lockDays) * 24 * time.Hour)

	perAffiliate := make(map[string]int64)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []models.Commission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Select("id", "affiliate_id").
			Where("status = ? AND created_at <= ?", models.CommissionStatusPending, cutoff).
			Where("NOT EXISTS (SELECT 1 FROM completed_orders o WHERE o.order_id = commissions.order_id AND o.refunded_at IS NOT NULL)").
			Order("created_at").
			Find(&due).Error; err != nil {
			return infraError(err, "failed to select due commissions")
		}

		for start := 0; start < len(due); start += approveBatchSize {
			end := start + approveBatchSize
			if end > len(due) {
				end = len(due)
			}
			ids := make([]string, 0, end-start)
			for _, c := range due[start:end] {
				ids = append(ids, c.ID)
				perAffiliate[c.AffiliateID]++
			}
			res := tx.Model(&models.Commission{}).
				Where("id IN ? AND status = ?", ids, models.CommissionStatusPending).
				Updates(map[string]interface{}{
					"status":      models.CommissionStatusApproved,
					"approved_at": now,
				})
			if res.Error != nil {
				return infraError(res.Error, "failed to approve commissions")
			}
			approved += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	commissionsApproved.Add(float64(approved))
	s.Log.WithFields(logrus.Fields{
		"lock_days": lockDays,
		"cutoff":    cutoff.Format(time.RFC3339),
		"approved":  approved,
	}).Info("commission approval sweep finished")

	if approved > 0 {
		s.notifyApproved(ctx, perAffiliate)
	}
	return approved, nil
}

func (s *CommissionService) notifyApproved(ctx context.Context, perAffiliate map[string]int64) {
	ids := make([]string, 0, len(perAffiliate))
	for id := range perAffiliate {
		ids = append(ids, id)
	}
	var affs []models.Affiliate
	if err := s.DB.WithContext(ctx).Select("id", "user_id").Where("id IN ?", ids).Find(&affs).Error; err != nil {
		s.Log.WithError(err).Warn("failed to load affiliates for approval notifications")
		return
	}
	for _, a := range affs {
		s.Notifier.Notify(Notification{
			Event:  EventCommissionsApproved,
			UserID: a.UserID,
			Data:   map[string]interface{}{"affiliate_id": a.ID, "count": perAffiliate[a.ID]},
		})
	}
}

// MarkCommissionPaid records a manual payout: APPROVED -> PAID only.
func (s *CommissionService) MarkCommissionPaid(ctx context.Context, commissionID string) (c *models.Commission, err error) {
	defer func() { observe("mark_commission_paid", err) }()

	if _, err := uuid.Parse(commissionID); err != nil {
		return nil, ErrCommissionNotFound
	}

	var commission models.Commission
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", commissionID).
			First(&commission).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCommissionNotFound
			}
			return infraError(err, "failed to lock commission")
		}
		if commission.Status != models.CommissionStatusApproved {
			return ErrInvalidTransition
		}
		now := s.Clock.Now()
		if err := tx.Model(&models.Commission{}).
			Where("id = ? AND status = ?", commissionID, models.CommissionStatusApproved).
			Updates(map[string]interface{}{"status": models.CommissionStatusPaid, "paid_at": now}).Error; err != nil {
			return infraError(err, "failed to mark commission paid")
		}
		commission.Status = models.CommissionStatusPaid
		commission.PaidAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if aff, err := s.GetAffiliate(ctx, commission.AffiliateID); err == nil {
		s.Notifier.Notify(Notification{
			Event:  EventCommissionPaid,
			UserID: aff.UserID,
			Data:   map[string]interface{}{"commission_id": commission.ID, "amount": commission.Amount.String()},
		})
	}
	return &commission, nil
}

// ListCommissions returns an affiliate's commissions, newest first, optionally filtered by status.
func (s *CommissionService) ListCommissions(ctx context.Context, affiliateID string, status models.CommissionStatus) ([]models.Commission, error) {
	q := s.DB.WithContext(ctx).Where("affiliate_id = ?", affiliateID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Commission
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, infraError(err, "failed to list commissions")
	}
	return out, nil
}
