package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"referral-ledger/database/testdb"
	"referral-ledger/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Event)
	}
	return out
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	notifier *recordingNotifier

	mu  sync.Mutex
	now time.Time

	profiles    *ProfileService
	referrals   *ReferralService
	discounts   *DiscountService
	commissions *CommissionService
	orders      *OrderService
	wallets     *WalletService
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		db:       testdb.New(t),
		notifier: &recordingNotifier{},
		now:      t0,
	}
	log := quietLogger()
	clock := Clock(f.clock)

	f.profiles = NewProfileService(f.db, log)
	f.profiles.Clock = clock
	f.referrals = NewReferralService(f.db, log, f.notifier)
	f.referrals.Clock = clock
	f.discounts = NewDiscountService(f.db, log)
	f.discounts.Clock = clock
	f.commissions = NewCommissionService(f.db, log, f.notifier, 10)
	f.commissions.Clock = clock
	f.orders = NewOrderService(f.db, log, f.notifier, f.commissions, 1024)
	f.orders.Clock = clock
	f.wallets = NewWalletService(f.db, log, f.notifier)
	f.wallets.Clock = clock
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) profile(userID string) *models.UserProfile {
	f.t.Helper()
	p, err := f.profiles.EnsureProfile(f.ctx, userID)
	require.NoError(f.t, err)
	return p
}

// approvedAffiliate enrols userID and approves them.
func (f *fixture) approvedAffiliate(userID string) *models.Affiliate {
	f.t.Helper()
	aff, err := f.commissions.ApplyAffiliate(f.ctx, userID, "Shop "+userID)
	require.NoError(f.t, err)
	aff, err = f.commissions.ReviewAffiliate(f.ctx, aff.ID, true)
	require.NoError(f.t, err)
	return aff
}

// pendingReward inserts a PENDING reward owned by userID.
func (f *fixture) pendingReward(userID string, creditsMB int64) *models.ReferralReward {
	f.t.Helper()
	r, err := f.wallets.GrantReward(f.ctx, userID, creditsMB)
	require.NoError(f.t, err)
	return r
}

// assertReconciled checks the wallet balance equals the sum of its ledger deltas.
func (f *fixture) assertReconciled(userID string) {
	f.t.Helper()
	check, err := f.wallets.Reconcile(f.ctx, userID)
	require.NoError(f.t, err)
	require.True(f.t, check.Balanced, "balance %d != ledger %d", check.BalanceMB, check.LedgerMB)
}
