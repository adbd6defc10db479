//go:build geoip

package geoip

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sales-report-etl/internal/observability"
)

// These tests hit the real geolocation API and require a valid GEO_API_TOKEN
// env var. Run with: go test -tags=geoip ./internal/adapter/geoip/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("GEO_API_TOKEN")
	if token == "" {
		t.Fatal("GEO_API_TOKEN must be set to run smoke tests")
	}
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://ipinfo.io",
		policy:     RetryPolicy{MaxAttempts: 3, InitialBackoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second},
		clock:      clockwork.NewRealClock(),
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_Lookup(t *testing.T) {
	c := smokeClient(t)

	loc, err := c.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)

	assert.Equal(t, "8.8.8.8", loc.IPAddress)
	require.NotNil(t, loc.City)
	assert.NotEmpty(t, *loc.City)
	require.NotNil(t, loc.State)
}

func TestSmoke_Lookup_PrivateAddress(t *testing.T) {
	c := smokeClient(t)

	loc, err := c.Lookup(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, loc.Resolved(), "private addresses should resolve to null fields")
}
