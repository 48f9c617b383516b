package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebhookPostSuccess(t *testing.T) {
	t.Parallel()

	var got map[string]interface{}
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	ch := NewWebhookChannel(5*time.Second, zap.NewNop())
	err := ch.Post(context.Background(), srv.URL, map[string]interface{}{
		"title": "Submission received: US01 2025M12 (Actual)",
		"kind":  "SUBMISSION",
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "SUBMISSION", got["kind"])
}

func TestWebhookPostRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	ch := NewWebhookChannel(5*time.Second, zap.NewNop())
	err := ch.Post(context.Background(), srv.URL, map[string]interface{}{"kind": "SUBMISSION"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestWebhookPostGivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	ch := NewWebhookChannel(5*time.Second, zap.NewNop())
	err := ch.Post(context.Background(), srv.URL, map[string]interface{}{"kind": "SUBMISSION"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook returned 500")
	assert.EqualValues(t, 3, calls.Load())
}

func TestWebhookThrottleCarriesRetryAfter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	ch := NewWebhookChannel(5*time.Second, zap.NewNop())
	err := ch.post(context.Background(), srv.URL, []byte(`{}`))
	require.Error(t, err)

	var throttled *ThrottleError
	require.True(t, errors.As(err, &throttled))
	assert.Equal(t, 7*time.Second, throttled.RetryAfter)
}

func TestWebhookThrottleDefaultsToOneSecond(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	ch := NewWebhookChannel(5*time.Second, zap.NewNop())
	err := ch.post(context.Background(), srv.URL, []byte(`{}`))

	var throttled *ThrottleError
	require.True(t, errors.As(err, &throttled))
	assert.Equal(t, time.Second, throttled.RetryAfter)
}
