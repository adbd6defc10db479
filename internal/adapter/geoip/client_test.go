package geoip

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sales-report-etl/internal/observability"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string, policy RetryPolicy) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		policy:     policy,
		clock:      clockwork.NewRealClock(),
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func singleAttempt() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func TestClient_Lookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/8.8.8.8/json", r.URL.Path)
		assert.Equal(t, testToken, r.URL.Query().Get("token"))

		w.Header().Set(headerContentType, contentTypeJSON)
		resp := response{IP: "8.8.8.8", City: "Mountain View", Region: "California", Postal: "94043"}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL, singleAttempt())
	loc, err := c.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)

	assert.Equal(t, "8.8.8.8", loc.IPAddress)
	require.NotNil(t, loc.City)
	assert.Equal(t, "Mountain View", *loc.City)
	require.NotNil(t, loc.State)
	assert.Equal(t, "California", *loc.State)
	require.NotNil(t, loc.ZipCode)
	assert.Equal(t, "94043", *loc.ZipCode)
}

func TestClient_Lookup_BogonHasNullFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{IP: "10.0.0.1", Bogon: true}))
	}))
	defer srv.Close()

	c := testClient(srv.URL, singleAttempt())
	loc, err := c.Lookup(context.Background(), "10.0.0.1")
	require.NoError(t, err)

	assert.False(t, loc.Resolved())
	assert.Nil(t, loc.City)
	assert.Nil(t, loc.State)
	assert.Nil(t, loc.ZipCode)
}

func TestClient_Lookup_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{IP: "1.1.1.1", City: "Sydney", Region: "New South Wales"}))
	}))
	defer srv.Close()

	c := testClient(srv.URL, RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	loc, err := c.Lookup(context.Background(), "1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.NotNil(t, loc.City)
	assert.Equal(t, "Sydney", *loc.City)
}

func TestClient_Lookup_ExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(srv.URL, RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	loc, err := c.Lookup(context.Background(), "203.0.113.9")
	require.Error(t, err)

	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "203.0.113.9", lookupErr.IP)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "203.0.113.9", loc.IPAddress)
	assert.False(t, loc.Resolved())
}

func TestClient_Lookup_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(srv.URL, RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	_, err := c.Lookup(context.Background(), "203.0.113.9")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses other than 429 should not be retried")
}

func TestClient_Lookup_MalformedBodyRetriedThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"ip": "8.8.8.8", "city":`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	_, err := c.Lookup(context.Background(), "8.8.8.8")

	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Lookup_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(srv.URL, RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour})
	_, err := c.Lookup(ctx, "8.8.8.8")

	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: 500 * time.Millisecond, MaxBackoff: 3 * time.Second}

	assert.Equal(t, 500*time.Millisecond, p.Backoff(1))
	assert.Equal(t, time.Second, p.Backoff(2))
	assert.Equal(t, 2*time.Second, p.Backoff(3))
	assert.Equal(t, 3*time.Second, p.Backoff(4), "backoff is capped at MaxBackoff")
	assert.Equal(t, 3*time.Second, p.Backoff(5))
}
