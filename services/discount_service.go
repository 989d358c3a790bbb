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

// Discount validation reasons.
const (
	DiscountNotFound          = "NOT_FOUND"
	DiscountExpired           = "EXPIRED"
	DiscountUsageLimitReached = "USAGE_LIMIT_REACHED"
)

type DiscountValidation struct {
	Valid           bool   `json:"valid"`
	Code            string `json:"code"`
	DiscountPercent int    `json:"discount_percent,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

type DiscountService struct {
	DB    *gorm.DB
	Log   *logrus.Logger
	Clock Clock
}

func NewDiscountService(db *gorm.DB, log *logrus.Logger) *DiscountService {
	return &DiscountService{DB: db, Log: log}
}

// Validate is read-only: consumption is recorded when the order completes.
func (s *DiscountService) Validate(ctx context.Context, code, userID string) (res *DiscountValidation, err error) {
	defer func() { observe("validate_discount", err) }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	code = NormalizeCode(code)
	if code == "" {
		return &DiscountValidation{Valid: false, Code: code, Reason: DiscountNotFound}, nil
	}

	var dc models.DiscountCode
	if err := s.DB.WithContext(ctx).Where("code = ?", code).First(&dc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &DiscountValidation{Valid: false, Code: code, Reason: DiscountNotFound}, nil
		}
		return nil, infraError(err, "failed to load discount code")
	}

	if !s.Clock.Now().Before(dc.ExpiresAt) {
		return &DiscountValidation{Valid: false, Code: code, Reason: DiscountExpired}, nil
	}

	var used int64
	if err := s.DB.WithContext(ctx).Model(&models.DiscountRedemption{}).
		Where("code = ? AND user_id = ?", code, userID).
		Count(&used).Error; err != nil {
		return nil, infraError(err, "failed to count discount usage")
	}
	if used >= int64(dc.MaxUsesPerUser) {
		return &DiscountValidation{Valid: false, Code: code, Reason: DiscountUsageLimitReached}, nil
	}

	return &DiscountValidation{Valid: true, Code: code, DiscountPercent: dc.DiscountPercent}, nil
}

// UpsertCode creates or replaces a discount code definition (admin).
func (s *DiscountService) UpsertCode(ctx context.Context, code string, percent, maxUsesPerUser int, expiresAt time.Time) (*models.DiscountCode, error) {
	code = NormalizeCode(code)
	if code == "" || len(code) > 64 || percent <= 0 || percent > 100 || maxUsesPerUser <= 0 {
		return nil, ErrInvalidDiscount
	}
	now := s.Clock.Now()
	dc := models.DiscountCode{
		Code:            code,
		DiscountPercent: percent,
		MaxUsesPerUser:  maxUsesPerUser,
		ExpiresAt:       expiresAt.UTC(),
		Timestamps:      models.Timestamps{CreatedAt: now, UpdatedAt: now},
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"discount_percent", "max_uses_per_user", "expires_at", "updated_at"}),
	}).Create(&dc).Error
	if err != nil {
		return nil, infraError(err, "failed to save discount code")
	}
	return &dc, nil
}

// recordRedemption books one use of code by userID for orderID inside tx.
// Redelivered orders hit the unique order_id and are ignored.
func recordRedemption(tx *gorm.DB, code, userID, orderID string, at time.Time) error {
	red := models.DiscountRedemption{
		ID:        uuid.NewString(),
		Code:      NormalizeCode(code),
		UserID:    userID,
		OrderID:   orderID,
		CreatedAt: at,
	}
	return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&red).Error
}
