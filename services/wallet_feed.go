package services

import (
	"context"
	"time"

	"referral-ledger/models"
)

// WalletFeedOverlap bounds how long a wallet transaction may stay uncommitted after
// its created_at was taken. Every poll re-reads this much history.
const WalletFeedOverlap = 30 * time.Second

// WalletFeed tails one user's transaction log. created_at is stamped before commit,
// so a row can become visible with a timestamp older than the last poll; the feed
// re-reads an overlap window and skips ids it has already returned.
type WalletFeed struct {
	wallets *WalletService
	userID  string
	polled  time.Time
	seen    map[string]time.Time
}

// NewWalletFeed starts a feed at the current time. known are transactions the caller
// has already shown the user, typically the snapshot's recent transactions.
func (s *WalletService) NewWalletFeed(userID string, known []models.WalletTransaction) *WalletFeed {
	f := &WalletFeed{
		wallets: s,
		userID:  userID,
		polled:  s.Clock.Now(),
		seen:    make(map[string]time.Time, len(known)),
	}
	for _, tx := range known {
		f.seen[tx.ID] = tx.CreatedAt
	}
	return f
}

// Next returns transactions committed since the previous call, oldest first.
func (f *WalletFeed) Next(ctx context.Context) ([]models.WalletTransaction, error) {
	now := f.wallets.Clock.Now()
	from := f.polled.Add(-WalletFeedOverlap)

	rows, err := f.wallets.TransactionsSince(ctx, f.userID, from)
	if err != nil {
		return nil, err
	}

	var out []models.WalletTransaction
	for _, tx := range rows {
		if _, ok := f.seen[tx.ID]; ok {
			continue
		}
		f.seen[tx.ID] = tx.CreatedAt
		out = append(out, tx)
	}

	f.polled = now
	horizon := now.Add(-WalletFeedOverlap)
	for id, at := range f.seen {
		if at.Before(horizon) {
			delete(f.seen, id)
		}
	}
	return out, nil
}
