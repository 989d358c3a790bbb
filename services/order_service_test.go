package services

import (
	"testing"

	"referral-ledger/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestOrder_FirstOrderRewardsReferrer(t *testing.T) {
	f := newFixture(t)
	alice := f.profile("alice")
	f.profile("bob")
	_, err := f.referrals.LinkReferrer(f.ctx, "bob", alice.RefCode)
	require.NoError(t, err)

	res, err := f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{
		OrderID:     "o-1",
		UserID:      "bob",
		TotalAmount: decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.RewardID)
	assert.False(t, res.Duplicate)

	var reward models.ReferralReward
	require.NoError(t, f.db.Where("id = ?", res.RewardID).First(&reward).Error)
	assert.Equal(t, "alice", reward.ReferrerUserID)
	assert.EqualValues(t, 1024, reward.CreditsMB)
	assert.Equal(t, models.RewardStatusPending, reward.Status)

	// the reward flows into the wallet through redemption
	redeemed, err := f.wallets.Redeem(f.ctx, reward.ID, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1024, redeemed.NewBalance)

	// later orders and redelivery issue nothing more
	res, err = f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{OrderID: "o-2", UserID: "bob", TotalAmount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Empty(t, res.RewardID)

	res, err = f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{OrderID: "o-1", UserID: "bob", TotalAmount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Empty(t, res.RewardID)

	var rewards int64
	require.NoError(t, f.db.Model(&models.ReferralReward{}).Count(&rewards).Error)
	assert.EqualValues(t, 1, rewards)
}

func TestIngestOrder_UnattributedBuyerGetsNoReward(t *testing.T) {
	f := newFixture(t)
	f.profile("bob")

	res, err := f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{OrderID: "o-1", UserID: "bob", TotalAmount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Empty(t, res.RewardID)
}

func TestIngestOrder_AffiliateCommission(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("seller")

	res, err := f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{
		OrderID:     "o-1",
		UserID:      "buyer",
		AffiliateID: aff.ID,
		TotalAmount: decimal.RequireFromString("59.90"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.CommissionID)

	list, err := f.commissions.ListCommissions(f.ctx, aff.ID, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Amount.Equal(decimal.RequireFromString("5.99")), list[0].Amount.String())

	// redelivery is absorbed
	res, err = f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{
		OrderID:     "o-1",
		UserID:      "buyer",
		AffiliateID: aff.ID,
		TotalAmount: decimal.RequireFromString("59.90"),
	})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Empty(t, res.CommissionID)

	list, err = f.commissions.ListCommissions(f.ctx, aff.ID, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestIngestOrder_UnknownAffiliateStillRecordsOrder(t *testing.T) {
	f := newFixture(t)

	res, err := f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{
		OrderID:     "o-1",
		UserID:      "buyer",
		AffiliateID: "aff-does-not-exist",
		TotalAmount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Empty(t, res.CommissionID)

	var orders int64
	require.NoError(t, f.db.Model(&models.CompletedOrder{}).Count(&orders).Error)
	assert.EqualValues(t, 1, orders)
}

func TestIngestOrder_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{UserID: "u", TotalAmount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidOrderID)
	_, err = f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{OrderID: "o", TotalAmount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidUserID)
	_, err = f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{OrderID: "o", UserID: "u", TotalAmount: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMarkOrderRefunded(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.IngestOrderCompleted(f.ctx, OrderCompleted{OrderID: "o-1", UserID: "u", TotalAmount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	order, err := f.orders.MarkOrderRefunded(f.ctx, "o-1")
	require.NoError(t, err)
	require.NotNil(t, order.RefundedAt)
	first := *order.RefundedAt

	f.advance(day)
	order, err = f.orders.MarkOrderRefunded(f.ctx, "o-1")
	require.NoError(t, err)
	assert.True(t, order.RefundedAt.Equal(first))

	_, err = f.orders.MarkOrderRefunded(f.ctx, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
