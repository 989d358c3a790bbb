package services

import (
	"testing"
	"time"

	"referral-ledger/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestApplyAffiliate(t *testing.T) {
	f := newFixture(t)

	aff, err := f.commissions.ApplyAffiliate(f.ctx, "seller", "Ana Gadgets")
	require.NoError(t, err)
	assert.Equal(t, models.AffiliateStatusPending, aff.Status)
	assert.Regexp(t, `^ana-gadgets-[0-9a-f]{8}$`, aff.Slug)
	assert.True(t, aff.CommissionPercent.Equal(decimal.NewFromInt(10)))

	_, err = f.commissions.ApplyAffiliate(f.ctx, "seller", "Again")
	assert.ErrorIs(t, err, ErrAffiliateExists)
}

func TestReviewAffiliate_Transitions(t *testing.T) {
	f := newFixture(t)
	aff, err := f.commissions.ApplyAffiliate(f.ctx, "seller", "Seller")
	require.NoError(t, err)

	reviewed, err := f.commissions.ReviewAffiliate(f.ctx, aff.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.AffiliateStatusRejected, reviewed.Status)
	assert.NotNil(t, reviewed.ReviewedAt)

	_, err = f.commissions.ReviewAffiliate(f.ctx, aff.ID, true)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.commissions.RecordCommission(f.ctx, aff.ID, "order-1", decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrAffiliateRejected)

	_, err = f.commissions.ReviewAffiliate(f.ctx, "not-a-uuid", true)
	assert.ErrorIs(t, err, ErrAffiliateNotFound)
}

func TestRecordCommission_DuplicateOrder(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("seller")

	c, err := f.commissions.RecordCommission(f.ctx, aff.ID, "order-1", decimal.RequireFromString("12.345"))
	require.NoError(t, err)
	assert.Equal(t, models.CommissionStatusPending, c.Status)
	assert.True(t, c.Amount.Equal(decimal.RequireFromString("12.35")), c.Amount.String())

	_, err = f.commissions.RecordCommission(f.ctx, aff.ID, "order-1", decimal.NewFromInt(99))
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	var rows []models.Commission
	require.NoError(t, f.db.Where("order_id = ?", "order-1").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(decimal.RequireFromString("12.35")))
}

func TestRecordCommission_Validation(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("seller")

	_, err := f.commissions.RecordCommission(f.ctx, aff.ID, " ", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInvalidOrderID)
	_, err = f.commissions.RecordCommission(f.ctx, aff.ID, "o", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.commissions.RecordCommission(f.ctx, aff.ID, "o", decimal.NewFromInt(-3))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.commissions.RecordCommission(f.ctx, "0b8f4f0e-0000-4000-8000-000000000000", "o", decimal.NewFromInt(3))
	assert.ErrorIs(t, err, ErrAffiliateNotFound)
}

func TestApprovePending_LockPeriodBoundary(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("seller")

	c, err := f.commissions.RecordCommission(f.ctx, aff.ID, "order-1", decimal.NewFromInt(20))
	require.NoError(t, err)

	f.advance(13 * day)
	n, err := f.commissions.ApprovePending(f.ctx, DefaultLockDays)
	require.NoError(t, err)
	assert.Zero(t, n)
	assertCommissionStatus(t, f, c.ID, models.CommissionStatusPending)

	f.advance(day)
	n, err = f.commissions.ApprovePending(f.ctx, DefaultLockDays)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assertCommissionStatus(t, f, c.ID, models.CommissionStatusApproved)

	n, err = f.commissions.ApprovePending(f.ctx, DefaultLockDays)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Contains(t, f.notifier.events(), EventCommissionsApproved)
}

func TestApprovePending_SkipsRefundedOrders(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("seller")

	for _, id := range []string{"keep", "refund"} {
		_, err := f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{
			OrderID:     id,
			UserID:      "buyer-" + id,
			AffiliateID: aff.ID,
			TotalAmount: decimal.NewFromInt(100),
		})
		require.NoError(t, err)
	}
	_, err := f.orders.MarkOrderRefunded(f.ctx, "refund")
	require.NoError(t, err)

	f.advance(30 * day)
	n, err := f.commissions.ApprovePending(f.ctx, DefaultLockDays)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	pending, err := f.commissions.ListCommissions(f.ctx, aff.ID, models.CommissionStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "refund", pending[0].OrderID)
}

func TestApprovePending_ZeroLockAndNegative(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("seller")
	_, err := f.commissions.RecordCommission(f.ctx, aff.ID, "order-1", decimal.NewFromInt(20))
	require.NoError(t, err)

	_, err = f.commissions.ApprovePending(f.ctx, -1)
	assert.ErrorIs(t, err, ErrInvalidLockPeriod)

	n, err := f.commissions.ApprovePending(f.ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMarkCommissionPaid(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("seller")
	c, err := f.commissions.RecordCommission(f.ctx, aff.ID, "order-1", decimal.NewFromInt(20))
	require.NoError(t, err)

	_, err = f.commissions.MarkCommissionPaid(f.ctx, c.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.advance(14 * day)
	_, err = f.commissions.ApprovePending(f.ctx, DefaultLockDays)
	require.NoError(t, err)

	paid, err := f.commissions.MarkCommissionPaid(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionStatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	_, err = f.commissions.MarkCommissionPaid(f.ctx, c.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, f.notifier.events(), EventCommissionPaid)
}

func assertCommissionStatus(t *testing.T, f *fixture, id string, want models.CommissionStatus) {
	t.Helper()
	var c models.Commission
	require.NoError(t, f.db.Where("id = ?", id).First(&c).Error)
	assert.Equal(t, want, c.Status)
}
