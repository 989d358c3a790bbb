package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPNotifier_DeliversWithRetry(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/notifications", r.URL.Path)
		assert.Equal(t, "Bearer notify-token", r.Header.Get("Authorization"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n, err := NewHTTPNotifier(srv.URL, "notify-token", 2, quietLogger())
	require.NoError(t, err)
	n.Notify(Notification{Event: EventRewardApplied, UserID: "u", Data: map[string]interface{}{"credits_mb": 1024}})

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, n.Close(5*time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventRewardApplied, got.Event)
	assert.Equal(t, "u", got.UserID)
}

func TestHTTPNotifier_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n, err := NewHTTPNotifier(srv.URL, "t", 1, quietLogger())
	require.NoError(t, err)
	n.Notify(Notification{Event: EventReferralLinked, UserID: "u"})
	require.NoError(t, n.Close(5*time.Second))

	assert.EqualValues(t, 1, calls.Load())
}
