package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"referral-ledger/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// Notification event types sent to the notification service.
const (
	EventReferralLinked      = "referral_linked"
	EventRewardIssued        = "reward_issued"
	EventRewardApplied       = "reward_applied"
	EventCommissionsApproved = "commissions_approved"
	EventCommissionPaid      = "commission_paid"
)

type Notification struct {
	Event  string                 `json:"event"`
	UserID string                 `json:"user_id"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Notifier delivers notifications fire-and-forget. Implementations must never
// block the caller on delivery and never report failure back to the ledger.
type Notifier interface {
	Notify(n Notification)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}

// HTTPNotifier posts notifications to the notification service from a bounded
// goroutine pool, retrying transient failures with exponential backoff.
type HTTPNotifier struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Log     *logrus.Logger

	pool       *ants.Pool
	maxElapsed time.Duration
}

func NewHTTPNotifier(baseURL, token string, poolSize int, log *logrus.Logger) (*HTTPNotifier, error) {
	if poolSize <= 0 {
		poolSize = 16
	}
	// Non-blocking: when the pool is saturated Submit fails and the notification is dropped.
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification pool: %w", err)
	}
	return &HTTPNotifier{
		BaseURL:    baseURL,
		Token:      token,
		Client:     utils.HTTPClient,
		Log:        log,
		pool:       pool,
		maxElapsed: 2 * time.Minute,
	}, nil
}

func (n *HTTPNotifier) Notify(note Notification) {
	err := n.pool.Submit(func() {
		op := func() error { return n.send(context.Background(), note) }
		policy := backoff.NewExponentialBackOff()
		policy.MaxElapsedTime = n.maxElapsed
		if err := backoff.Retry(op, policy); err != nil {
			n.Log.WithFields(logrus.Fields{
				"event":   note.Event,
				"user_id": note.UserID,
			}).WithError(err).Warn("notification dropped")
		}
	})
	if err != nil {
		n.Log.WithField("event", note.Event).WithError(err).Warn("notification pool full, dropping")
	}
}

func (n *HTTPNotifier) send(ctx context.Context, note Notification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.BaseURL+"/api/v1/notifications", bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.Token)

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("notification service rejected %s: %d", note.Event, resp.StatusCode))
	}
	return nil
}

// Close waits for in-flight deliveries to finish or the timeout to elapse.
func (n *HTTPNotifier) Close(timeout time.Duration) error {
	return n.pool.ReleaseTimeout(timeout)
}
