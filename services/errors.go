package services

import (
	stderrors "errors"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrorKind classifies ledger failures. Everything except KindInfrastructure is an
// expected business outcome and must not be retried.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindAuthorization  ErrorKind = "authorization"
	KindInfrastructure ErrorKind = "infrastructure"
)

// LedgerError carries a stable machine-readable Code for the presentation layer.
type LedgerError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Is matches on Code so wrapped copies still compare equal to the sentinels.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && t.Code == e.Code
}

func newError(kind ErrorKind, code, msg string) *LedgerError {
	return &LedgerError{Kind: kind, Code: code, Message: msg}
}

var (
	// Referral attribution
	ErrCodeNotFound      = newError(KindNotFound, "CodeNotFound", "referral code does not exist")
	ErrSelfReferral      = newError(KindValidation, "SelfReferral", "users cannot refer themselves")
	ErrAlreadyAttributed = newError(KindConflict, "AlreadyAttributed", "user already has a referrer")
	ErrNotFirstTimeBuyer = newError(KindConflict, "NotFirstTimeBuyer", "user already completed an order")
	ErrProfileNotFound   = newError(KindNotFound, "ProfileNotFound", "user profile does not exist")
	ErrInvalidReferral   = newError(KindValidation, "InvalidCode", "referral code is malformed")
	ErrRefCodeExhausted  = newError(KindInfrastructure, "RefCodeExhausted", "could not generate a unique referral code")
	ErrInvalidUserID     = newError(KindValidation, "InvalidUserID", "user id is required")

	// Commissions and affiliates
	ErrDuplicateOrder     = newError(KindConflict, "DuplicateOrder", "order already has a commission")
	ErrAffiliateNotFound  = newError(KindNotFound, "AffiliateNotFound", "affiliate does not exist")
	ErrAffiliateRejected  = newError(KindConflict, "AffiliateRejected", "affiliate application was rejected")
	ErrAffiliateExists    = newError(KindConflict, "AffiliateExists", "user already applied to the affiliate programme")
	ErrCommissionNotFound = newError(KindNotFound, "CommissionNotFound", "commission does not exist")
	ErrInvalidTransition  = newError(KindConflict, "InvalidTransition", "status transition is not allowed")
	ErrInvalidAmount      = newError(KindValidation, "InvalidAmount", "amount must be positive")
	ErrInvalidOrderID     = newError(KindValidation, "InvalidOrderID", "order id is required")
	ErrInvalidLockPeriod  = newError(KindValidation, "InvalidLockPeriod", "lock period must not be negative")
	ErrOrderNotFound      = newError(KindNotFound, "OrderNotFound", "order does not exist")

	// Wallet and rewards
	ErrRewardNotFound      = newError(KindNotFound, "NotFound", "reward does not exist")
	ErrForbidden           = newError(KindAuthorization, "Forbidden", "reward belongs to another user")
	ErrAlreadyApplied      = newError(KindConflict, "AlreadyApplied", "reward was already redeemed")
	ErrInvalidRewardID     = newError(KindValidation, "InvalidRewardID", "reward id must be a UUID")
	ErrInsufficientBalance = newError(KindConflict, "InsufficientBalance", "wallet balance is too low")
	ErrInvalidReference    = newError(KindValidation, "InvalidReference", "reference is required")

	// Discount codes
	ErrInvalidDiscount = newError(KindValidation, "InvalidDiscount", "discount code definition is invalid")
)

// infraError wraps a store failure. Callers may retry these with backoff.
func infraError(err error, msg string) error {
	return &LedgerError{
		Kind:    KindInfrastructure,
		Code:    "Infrastructure",
		Message: msg,
		Err:     errors.Wrap(err, msg),
	}
}

// KindOf returns the error kind, treating unknown errors as infrastructure failures.
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if stderrors.As(err, &le) {
		return le.Kind
	}
	return KindInfrastructure
}

// ReasonCode returns the machine-readable code for err, or "" for nil.
func ReasonCode(err error) string {
	if err == nil {
		return ""
	}
	var le *LedgerError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return "Infrastructure"
}

// IsRetryable reports whether the caller's retry policy should re-issue the operation.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindInfrastructure
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
