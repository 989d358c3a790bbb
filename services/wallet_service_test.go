package services

import (
	"sync"
	"testing"
	"time"

	"referral-ledger/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeem_Scenario1024(t *testing.T) {
	f := newFixture(t)
	r := f.pendingReward("u", 1024)

	res, err := f.wallets.Redeem(f.ctx, r.ID, "u")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.EqualValues(t, 1024, res.CreditsAdded)
	assert.EqualValues(t, 1024, res.NewBalance)

	_, err = f.wallets.Redeem(f.ctx, r.ID, "u")
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	view, err := f.wallets.GetWallet(f.ctx, "u")
	require.NoError(t, err)
	assert.EqualValues(t, 1024, view.BalanceMB)
	assert.Empty(t, view.PendingRewards)
	require.Len(t, view.AppliedRewards, 1)
	assert.Equal(t, models.RewardStatusApplied, view.AppliedRewards[0].Status)
	require.Len(t, view.RecentTransactions, 1)
	assert.EqualValues(t, 1024, view.RecentTransactions[0].DeltaMB)
	assert.Equal(t, models.WalletReasonReferralReward, view.RecentTransactions[0].Reason)
	assert.Equal(t, r.ID, view.RecentTransactions[0].Reference)

	f.assertReconciled("u")
	assert.Contains(t, f.notifier.events(), EventRewardApplied)
}

func TestRedeem_Failures(t *testing.T) {
	f := newFixture(t)
	r := f.pendingReward("owner", 512)

	_, err := f.wallets.Redeem(f.ctx, r.ID, "intruder")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.wallets.Redeem(f.ctx, uuid.NewString(), "owner")
	assert.ErrorIs(t, err, ErrRewardNotFound)

	_, err = f.wallets.Redeem(f.ctx, "reward-1", "owner")
	assert.ErrorIs(t, err, ErrInvalidRewardID)

	// failed attempts leave no trace
	var reward models.ReferralReward
	require.NoError(t, f.db.Where("id = ?", r.ID).First(&reward).Error)
	assert.Equal(t, models.RewardStatusPending, reward.Status)
	var wallets int64
	require.NoError(t, f.db.Model(&models.DataWallet{}).Count(&wallets).Error)
	assert.Zero(t, wallets)
}

func TestRedeem_ConcurrentSingleSuccess(t *testing.T) {
	f := newFixture(t)
	r := f.pendingReward("u", 1024)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.wallets.Redeem(f.ctx, r.ID, "u")
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyApplied)
	}
	assert.Equal(t, 1, ok)

	view, err := f.wallets.GetWallet(f.ctx, "u")
	require.NoError(t, err)
	assert.EqualValues(t, 1024, view.BalanceMB)
	f.assertReconciled("u")
}

func TestRedeem_AccumulatesAcrossRewards(t *testing.T) {
	f := newFixture(t)
	a := f.pendingReward("u", 1024)
	b := f.pendingReward("u", 256)

	_, err := f.wallets.Redeem(f.ctx, a.ID, "u")
	require.NoError(t, err)
	res, err := f.wallets.Redeem(f.ctx, b.ID, "u")
	require.NoError(t, err)
	assert.EqualValues(t, 1280, res.NewBalance)
	f.assertReconciled("u")
}

func TestSpend(t *testing.T) {
	f := newFixture(t)
	r := f.pendingReward("u", 1000)
	_, err := f.wallets.Redeem(f.ctx, r.ID, "u")
	require.NoError(t, err)

	res, err := f.wallets.Spend(f.ctx, "u", 300, "session-1")
	require.NoError(t, err)
	assert.EqualValues(t, 700, res.NewBalance)

	_, err = f.wallets.Spend(f.ctx, "u", 300, "session-1")
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	_, err = f.wallets.Spend(f.ctx, "u", 701, "session-2")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.wallets.Spend(f.ctx, "nobody", 1, "session-3")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.wallets.Spend(f.ctx, "u", 0, "session-4")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.wallets.Spend(f.ctx, "u", 10, " ")
	assert.ErrorIs(t, err, ErrInvalidReference)

	res, err = f.wallets.Spend(f.ctx, "u", 700, "session-5")
	require.NoError(t, err)
	assert.Zero(t, res.NewBalance)
	f.assertReconciled("u")
}

func TestGetWallet_EmptyForNewUser(t *testing.T) {
	f := newFixture(t)

	view, err := f.wallets.GetWallet(f.ctx, "fresh")
	require.NoError(t, err)
	assert.Zero(t, view.BalanceMB)
	assert.Empty(t, view.PendingRewards)
	assert.Empty(t, view.AppliedRewards)
	assert.Empty(t, view.RecentTransactions)
}

func TestTransactionsSince(t *testing.T) {
	f := newFixture(t)
	a := f.pendingReward("u", 100)
	b := f.pendingReward("u", 200)

	_, err := f.wallets.Redeem(f.ctx, a.ID, "u")
	require.NoError(t, err)
	cursor := f.clock()
	f.advance(time.Minute)
	_, err = f.wallets.Redeem(f.ctx, b.ID, "u")
	require.NoError(t, err)

	txs, err := f.wallets.TransactionsSince(f.ctx, "u", cursor)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.EqualValues(t, 200, txs[0].DeltaMB)
}

func TestGrantReward_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.wallets.GrantReward(f.ctx, "", 10)
	assert.ErrorIs(t, err, ErrInvalidUserID)
	_, err = f.wallets.GrantReward(f.ctx, "u", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
