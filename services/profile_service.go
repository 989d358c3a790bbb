package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"referral-ledger/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	RefCodeLength   = 8
	refCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	refCodeAttempts = 10
)

type ProfileService struct {
	DB    *gorm.DB
	Log   *logrus.Logger
	Clock Clock
}

func NewProfileService(db *gorm.DB, log *logrus.Logger) *ProfileService {
	return &ProfileService{DB: db, Log: log}
}

// EnsureProfile returns the user's profile, creating it with a fresh ref code
// if it does not exist yet (idempotent).
func (s *ProfileService) EnsureProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	if prof, err := s.GetProfile(ctx, userID); err == nil {
		return prof, nil
	} else if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < refCodeAttempts; attempt++ {
		code, err := generateRefCode()
		if err != nil {
			return nil, infraError(err, "failed to generate ref code")
		}
		now := s.Clock.Now()
		prof := models.UserProfile{
			UserID:     userID,
			RefCode:    code,
			Timestamps: models.Timestamps{CreatedAt: now, UpdatedAt: now},
		}

		// A concurrent signup for the same user is absorbed by DO NOTHING on the
		// primary key; a ref_code collision surfaces as a unique violation.
		res := s.DB.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
			Create(&prof)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				s.Log.WithField("attempt", attempt+1).Debug("ref code collision, retrying")
				continue
			}
			return nil, infraError(res.Error, "failed to create profile")
		}
		if res.RowsAffected == 0 {
			return s.GetProfile(ctx, userID)
		}
		s.Log.WithFields(logrus.Fields{"user_id": userID, "ref_code": code}).Info("profile created")
		return &prof, nil
	}
	return nil, ErrRefCodeExhausted
}

func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var prof models.UserProfile
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&prof).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, infraError(err, "failed to load profile")
	}
	return &prof, nil
}

// ReferralSummary is what a user sees about their own referral standing.
type ReferralSummary struct {
	RefCode        string  `json:"ref_code"`
	ReferredByCode *string `json:"referred_by_code,omitempty"`
	ReferralCount  int64   `json:"referral_count"`
}

func (s *ProfileService) GetReferralSummary(ctx context.Context, userID string) (*ReferralSummary, error) {
	prof, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.ReferralAttribution{}).
		Where("referrer_user_id = ?", userID).
		Count(&count).Error; err != nil {
		return nil, infraError(err, "failed to count referrals")
	}
	return &ReferralSummary{
		RefCode:        prof.RefCode,
		ReferredByCode: prof.ReferredByCode,
		ReferralCount:  count,
	}, nil
}

func generateRefCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(refCodeAlphabet)))
	for i := 0; i < RefCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(refCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
