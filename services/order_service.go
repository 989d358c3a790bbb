package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"referral-ledger/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var hundred = decimal.NewFromInt(100)

// OrderCompleted is the payload of an "order completed" event from the storefront.
type OrderCompleted struct {
	OrderID      string          `json:"order_id"`
	UserID       string          `json:"user_id"`
	AffiliateID  string          `json:"affiliate_id,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	DiscountCode string          `json:"discount_code,omitempty"`
	CompletedAt  time.Time       `json:"completed_at"`
}

type IngestResult struct {
	OrderID      string `json:"order_id"`
	Duplicate    bool   `json:"duplicate"`
	RewardID     string `json:"reward_id,omitempty"`
	CommissionID string `json:"commission_id,omitempty"`
}

type OrderService struct {
	DB          *gorm.DB
	Log         *logrus.Logger
	Notifier    Notifier
	Clock       Clock
	Commissions *CommissionService

	// RewardMB is granted to the referrer when an attributed user completes their first order.
	RewardMB int64
}

func NewOrderService(db *gorm.DB, log *logrus.Logger, notifier Notifier, commissions *CommissionService, rewardMB int64) *OrderService {
	return &OrderService{
		DB:          db,
		Log:         log,
		Notifier:    notifier,
		Commissions: commissions,
		RewardMB:    rewardMB,
	}
}

// IngestOrderCompleted records a completed order. Redelivery of the same order_id is
// safe: the order, redemption and reward writes are keyed so they happen once, and
// the commission insert reports ErrDuplicateOrder, which is treated as done.
//
// The buyer's profile row is locked for the duration, the same lock LinkReferrer
// holds, so a referral link and a first order for one user never interleave.
func (s *OrderService) IngestOrderCompleted(ctx context.Context, evt OrderCompleted) (res *IngestResult, err error) {
	defer func() { observe("ingest_order", err) }()

	evt.OrderID = strings.TrimSpace(evt.OrderID)
	evt.UserID = strings.TrimSpace(evt.UserID)
	evt.AffiliateID = strings.TrimSpace(evt.AffiliateID)
	if evt.OrderID == "" {
		return nil, ErrInvalidOrderID
	}
	if evt.UserID == "" {
		return nil, ErrInvalidUserID
	}
	if evt.TotalAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	now := s.Clock.Now()
	if evt.CompletedAt.IsZero() {
		evt.CompletedAt = now
	}

	res = &IngestResult{OrderID: evt.OrderID}
	var reward *models.ReferralReward
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.UserProfile
		hasProfile := true
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", evt.UserID).
			First(&profile).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return infraError(err, "failed to lock buyer profile")
			}
			hasProfile = false
		}

		var prior int64
		if err := tx.Model(&models.CompletedOrder{}).
			Where("user_id = ?", evt.UserID).
			Count(&prior).Error; err != nil {
			return infraError(err, "failed to count orders")
		}

		order := models.CompletedOrder{
			OrderID:     evt.OrderID,
			UserID:      evt.UserID,
			TotalAmount: evt.TotalAmount.Round(2),
			CompletedAt: evt.CompletedAt.UTC(),
		}
		if evt.AffiliateID != "" {
			order.AffiliateID = &evt.AffiliateID
		}
		if evt.DiscountCode != "" {
			code := NormalizeCode(evt.DiscountCode)
			order.DiscountCode = &code
		}
		ins := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
			Create(&order)
		if ins.Error != nil {
			return infraError(ins.Error, "failed to record order")
		}
		if ins.RowsAffected == 0 {
			res.Duplicate = true
			return nil
		}

		if order.DiscountCode != nil {
			if err := recordRedemption(tx, *order.DiscountCode, evt.UserID, evt.OrderID, now); err != nil {
				return infraError(err, "failed to record discount redemption")
			}
		}

		if prior > 0 || !hasProfile || profile.ReferredByCode == nil {
			return nil
		}
		var attribution models.ReferralAttribution
		if err := tx.Where("referee_user_id = ?", evt.UserID).First(&attribution).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return infraError(err, "failed to load attribution")
		}
		var err error
		reward, err = issueReward(tx, attribution.ReferrerUserID, &evt.UserID, &evt.OrderID, s.RewardMB, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if reward != nil {
		res.RewardID = reward.ID
		s.Log.WithFields(logrus.Fields{
			"reward_id":   reward.ID,
			"referrer_id": reward.ReferrerUserID,
			"referee_id":  evt.UserID,
			"credits_mb":  reward.CreditsMB,
		}).Info("referral reward issued")
		s.Notifier.Notify(Notification{
			Event:  EventRewardIssued,
			UserID: reward.ReferrerUserID,
			Data:   map[string]interface{}{"reward_id": reward.ID, "credits_mb": reward.CreditsMB},
		})
	}

	if evt.AffiliateID != "" {
		commission, cerr := s.commissionForOrder(ctx, evt)
		switch {
		case errors.Is(cerr, ErrDuplicateOrder):
		case cerr != nil:
			return res, cerr
		case commission != nil:
			res.CommissionID = commission.ID
		}
	}

	s.Log.WithFields(logrus.Fields{
		"order_id":  evt.OrderID,
		"user_id":   evt.UserID,
		"duplicate": res.Duplicate,
	}).Debug("order ingested")
	return res, nil
}

// commissionForOrder books the affiliate's percentage of the order total.
// Zero-value orders and rejected affiliates earn nothing.
func (s *OrderService) commissionForOrder(ctx context.Context, evt OrderCompleted) (*models.Commission, error) {
	aff, err := s.Commissions.GetAffiliate(ctx, evt.AffiliateID)
	if err != nil {
		if errors.Is(err, ErrAffiliateNotFound) {
			s.Log.WithFields(logrus.Fields{"order_id": evt.OrderID, "affiliate_id": evt.AffiliateID}).
				Warn("order references unknown affiliate")
			return nil, nil
		}
		return nil, err
	}
	if aff.Status == models.AffiliateStatusRejected {
		return nil, nil
	}
	amount := evt.TotalAmount.Mul(aff.CommissionPercent).Div(hundred).Round(2)
	if !amount.IsPositive() {
		return nil, nil
	}
	return s.Commissions.RecordCommission(ctx, aff.ID, evt.OrderID, amount)
}

// MarkOrderRefunded flags an order as refunded. Its commission, if still PENDING,
// is then skipped by every approval sweep.
func (s *OrderService) MarkOrderRefunded(ctx context.Context, orderID string) (order *models.CompletedOrder, err error) {
	defer func() { observe("mark_refunded", err) }()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	order = &models.CompletedOrder{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", orderID).
			First(order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return infraError(err, "failed to lock order")
		}
		if order.RefundedAt != nil {
			return nil
		}
		now := s.Clock.Now()
		if err := tx.Model(order).Update("refunded_at", now).Error; err != nil {
			return infraError(err, "failed to mark order refunded")
		}
		order.RefundedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithField("order_id", orderID).Info("order marked refunded")
	return order, nil
}
