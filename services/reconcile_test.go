package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"referral-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func driftWallet(t *testing.T, db *gorm.DB, userID string, balance int64) {
	t.Helper()
	require.NoError(t, db.Model(&models.DataWallet{}).
		Where("user_id = ?", userID).
		Update("balance_mb", balance).Error)
}

func TestReconcile_DetectsAndRepairsDrift(t *testing.T) {
	f := newFixture(t)
	r := f.pendingReward("u", 1024)
	_, err := f.wallets.Redeem(f.ctx, r.ID, "u")
	require.NoError(t, err)
	_, err = f.wallets.Spend(f.ctx, "u", 24, "s-1")
	require.NoError(t, err)
	f.assertReconciled("u")

	driftWallet(t, f.db, "u", 5000)

	check, err := f.wallets.Reconcile(f.ctx, "u")
	require.NoError(t, err)
	assert.False(t, check.Balanced)
	assert.EqualValues(t, 5000, check.BalanceMB)
	assert.EqualValues(t, 1000, check.LedgerMB)
	assert.EqualValues(t, 2, check.Entries)

	repaired, err := f.wallets.RepairBalance(f.ctx, "u")
	require.NoError(t, err)
	assert.True(t, repaired.Balanced)
	assert.EqualValues(t, 1000, repaired.BalanceMB)
	f.assertReconciled("u")
}

func TestReconcile_UnknownUserIsBalancedAtZero(t *testing.T) {
	f := newFixture(t)

	check, err := f.wallets.Reconcile(f.ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, check.Balanced)
	assert.Zero(t, check.BalanceMB)
	assert.Zero(t, check.Entries)
}

func TestReconcileAll(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c"} {
		r := f.pendingReward(id, 100)
		_, err := f.wallets.Redeem(f.ctx, r.ID, id)
		require.NoError(t, err)
	}
	driftWallet(t, f.db, "b", 7)

	report, err := f.wallets.ReconcileAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Wallets)
	require.Len(t, report.Drifted, 1)
	assert.Equal(t, "b", report.Drifted[0].UserID)
	assert.EqualValues(t, 100, report.Drifted[0].LedgerMB)
}

type memUploader struct {
	key  string
	body []byte
	err  error
}

func (m *memUploader) PutObject(_ context.Context, key string, body []byte, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.key = key
	m.body = body
	return "https://cdn.example/" + key, nil
}

func TestExportReconciliation(t *testing.T) {
	f := newFixture(t)
	r := f.pendingReward("u", 64)
	_, err := f.wallets.Redeem(f.ctx, r.ID, "u")
	require.NoError(t, err)

	up := &memUploader{}
	audit := NewAuditService(f.wallets, up, quietLogger())
	report, url, err := audit.ExportReconciliation(f.ctx)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(up.key, "reports/reconciliation/2026/03/02/"), up.key)
	assert.Equal(t, "https://cdn.example/"+up.key, url)
	assert.Empty(t, report.Drifted)

	var decoded ReconciliationReport
	require.NoError(t, json.Unmarshal(up.body, &decoded))
	assert.Equal(t, 1, decoded.Wallets)
}

func TestExportReconciliation_UploadFailure(t *testing.T) {
	f := newFixture(t)
	audit := NewAuditService(f.wallets, &memUploader{err: errors.New("r2 down")}, quietLogger())

	_, _, err := audit.ExportReconciliation(f.ctx)
	assert.ErrorContains(t, err, "r2 down")
}
