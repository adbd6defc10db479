// Package geoip implements the geolocation lookup client against an
// ipinfo-style HTTP API: GET {base}/{ip}/json returns city, region, and
// postal code for a public IP address.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sales-report-etl/internal/domain"
	"github.com/couchcryptid/sales-report-etl/internal/observability"
)

// RetryPolicy bounds the lookup attempts for one IP. Backoff doubles per
// attempt starting at InitialBackoff and is capped at MaxBackoff.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Backoff returns the delay before the given retry (attempt is 1-indexed;
// the delay applies after attempt n fails).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// LookupError is the typed failure returned when an IP could not be
// resolved within the retry budget. The orchestrator records it as a
// null-valued cache row rather than aborting the batch.
type LookupError struct {
	IP  string
	Err error
}

func (e *LookupError) Error() string { return fmt.Sprintf("lookup %s: %v", e.IP, e.Err) }
func (e *LookupError) Unwrap() error { return e.Err }

// Client looks up IP geolocations over HTTP with bounded retry.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	policy     RetryPolicy
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a geolocation client. The timeout applies per attempt.
func NewClient(baseURL, token string, timeout time.Duration, policy RetryPolicy, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		policy:  policy,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		metrics: metrics,
	}
}

// Lookup resolves one IP address to a geolocation. It retries transient
// failures (network errors, 429, 5xx, malformed bodies) up to the policy's
// attempt budget, then returns a *LookupError. A well-formed response with
// no location data is a success with null fields.
func (c *Client) Lookup(ctx context.Context, ip string) (domain.GeoLocation, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		loc, retryable, err := c.doRequest(ctx, ip)
		if err == nil {
			if loc.Resolved() {
				c.metrics.LookupRequests.WithLabelValues("success").Inc()
			} else {
				c.metrics.LookupRequests.WithLabelValues("empty").Inc()
			}
			return loc, nil
		}
		lastErr = err

		if !retryable || attempt == c.policy.MaxAttempts {
			break
		}

		c.logger.Debug("lookup attempt failed, retrying",
			"ip", ip,
			"attempt", attempt,
			"error", err,
		)
		if !c.sleep(ctx, c.policy.Backoff(attempt)) {
			lastErr = ctx.Err()
			break
		}
	}

	c.metrics.LookupRequests.WithLabelValues("failed").Inc()
	return domain.GeoLocation{IPAddress: ip}, &LookupError{IP: ip, Err: lastErr}
}

// doRequest performs a single lookup attempt. The second return value
// reports whether the failure is worth retrying.
func (c *Client) doRequest(ctx context.Context, ip string) (domain.GeoLocation, bool, error) {
	u := fmt.Sprintf("%s/%s/json", c.baseURL, url.PathEscape(ip))
	if c.token != "" {
		u += "?token=" + url.QueryEscape(c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.GeoLocation{}, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeoLocation{}, true, fmt.Errorf("geolocation request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.LookupDuration.Observe(c.clock.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return domain.GeoLocation{}, retryable, fmt.Errorf("geolocation API error: status %d: %s", resp.StatusCode, body)
	}

	var apiResp response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return domain.GeoLocation{}, true, fmt.Errorf("decode response: %w", err)
	}

	return domain.GeoLocation{
		IPAddress: ip,
		City:      nonEmpty(apiResp.City),
		State:     nonEmpty(apiResp.Region),
		ZipCode:   nonEmpty(apiResp.Postal),
	}, false, nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return true
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Geolocation API response. Bogon/private addresses come back well-formed
// with the location fields absent.
type response struct {
	IP     string `json:"ip"`
	City   string `json:"city"`
	Region string `json:"region"`
	Postal string `json:"postal"`
	Bogon  bool   `json:"bogon,omitempty"`
}
