package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"referral-ledger/models"
	"referral-ledger/utils"

	"github.com/sirupsen/logrus"
)

// RemoteProfile is the subset of the profile service's user record the ledger needs.
type RemoteProfile struct {
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type GetUserChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileEnsurer creates ledger profiles for new users.
type ProfileEnsurer interface {
	EnsureProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// ProfileSyncWorker polls the profile service for signups and gives each new user a
// ledger profile and ref code. The cursor is the newest updated_at seen so far.
type ProfileSyncWorker struct {
	profiles     ProfileEnsurer
	log          *logrus.Logger
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client

	since time.Time
}

func NewProfileSyncWorker(profiles ProfileEnsurer, baseURL, serviceToken string, interval time.Duration, log *logrus.Logger) *ProfileSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		profiles:     profiles,
		log:          log,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: "/api/v1/public/profiles",
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	w.log.WithField("interval", w.interval).Info("starting profile sync worker")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if err := w.syncBatch(ctx); err != nil {
		w.log.WithError(err).Warn("initial profile sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx); err != nil {
				w.log.WithError(err).Warn("profile sync batch failed")
			}
		case <-ctx.Done():
			w.log.Info("profile sync worker stopped")
			return
		}
	}
}

// syncBatch fetches user changes since the cursor and ensures a profile for each.
// Users are applied oldest first and the cursor stops at the first failure, so a
// failed user is fetched again next batch.
func (w *ProfileSyncWorker) syncBatch(ctx context.Context) error {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid profile service URL %q: %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", w.since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("profile service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
	}

	var response GetUserChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode profile service response: %w", err)
	}

	sort.SliceStable(response.Users, func(i, j int) bool {
		return response.Users[i].UpdatedAt.Before(response.Users[j].UpdatedAt)
	})

	var created, failed int
	for _, u := range response.Users {
		if u.ExternalID == "" {
			continue
		}
		if _, err := w.profiles.EnsureProfile(ctx, u.ExternalID); err != nil {
			failed++
			w.log.WithField("user_id", u.ExternalID).WithError(err).Warn("failed to ensure profile, retrying from here next batch")
			break
		}
		created++
		if u.UpdatedAt.After(w.since) {
			w.since = u.UpdatedAt
		}
	}

	if len(response.Users) > 0 {
		w.log.WithFields(logrus.Fields{
			"received": len(response.Users),
			"ensured":  created,
			"failed":   failed,
			"cursor":   w.since.Format(time.RFC3339),
		}).Info("profile sync batch done")
	}
	return nil
}
