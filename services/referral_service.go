package services

import (
	"context"
	"errors"
	"strings"

	"referral-ledger/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralService struct {
	DB       *gorm.DB
	Log      *logrus.Logger
	Notifier Notifier
	Clock    Clock
}

func NewReferralService(db *gorm.DB, log *logrus.Logger, notifier Notifier) *ReferralService {
	return &ReferralService{DB: db, Log: log, Notifier: notifier}
}

// LinkResult is returned when an attribution was established.
type LinkResult struct {
	Linked         bool   `json:"linked"`
	ReferrerUserID string `json:"referrer_user_id"`
	Code           string `json:"code"`
}

// LinkReferrer attributes refereeUserID to the owner of code. The checks run in a
// fixed order inside one transaction that holds the referee's profile row lock,
// which order ingestion also takes before recording a completed order.
func (s *ReferralService) LinkReferrer(ctx context.Context, refereeUserID, code string) (res *LinkResult, err error) {
	defer func() { observe("link_referrer", err) }()

	refereeUserID = strings.TrimSpace(refereeUserID)
	if refereeUserID == "" {
		return nil, ErrInvalidUserID
	}
	code = NormalizeCode(code)
	if len(code) != RefCodeLength || !isAlphanumeric(code) {
		return nil, ErrInvalidReferral
	}

	var attribution models.ReferralAttribution
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. code resolves to a referrer
		var referrer models.UserProfile
		if err := tx.Where("ref_code = ?", code).First(&referrer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCodeNotFound
			}
			return infraError(err, "failed to resolve ref code")
		}

		// 2. no self-referral
		if referrer.UserID == refereeUserID {
			return ErrSelfReferral
		}

		var referee models.UserProfile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", refereeUserID).
			First(&referee).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return infraError(err, "failed to lock referee profile")
		}

		// 3. referred_by_code is set at most once
		if referee.ReferredByCode != nil {
			return ErrAlreadyAttributed
		}

		// 4. first-time buyers only, evaluated under the lock
		var orders int64
		if err := tx.Model(&models.CompletedOrder{}).
			Where("user_id = ?", refereeUserID).
			Count(&orders).Error; err != nil {
			return infraError(err, "failed to count completed orders")
		}
		if orders > 0 {
			return ErrNotFirstTimeBuyer
		}

		now := s.Clock.Now()
		upd := tx.Model(&models.UserProfile{}).
			Where("user_id = ? AND referred_by_code IS NULL", refereeUserID).
			Updates(map[string]interface{}{"referred_by_code": code, "updated_at": now})
		if upd.Error != nil {
			return infraError(upd.Error, "failed to set referred_by_code")
		}
		if upd.RowsAffected == 0 {
			return ErrAlreadyAttributed
		}

		attribution = models.ReferralAttribution{
			ID:             uuid.NewString(),
			ReferrerUserID: referrer.UserID,
			RefereeUserID:  refereeUserID,
			CodeUsed:       code,
			EstablishedAt:  now,
		}
		if err := tx.Create(&attribution).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyAttributed
			}
			return infraError(err, "failed to insert attribution")
		}
		return nil
	})
	if err != nil {
		s.Log.WithFields(logrus.Fields{
			"referee_user_id": refereeUserID,
			"reason":          ReasonCode(err),
		}).Info("referral link refused")
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"referee_user_id":  refereeUserID,
		"referrer_user_id": attribution.ReferrerUserID,
	}).Info("referral linked")
	s.Notifier.Notify(Notification{
		Event:  EventReferralLinked,
		UserID: attribution.ReferrerUserID,
		Data:   map[string]interface{}{"referee_user_id": refereeUserID},
	})

	return &LinkResult{Linked: true, ReferrerUserID: attribution.ReferrerUserID, Code: code}, nil
}
