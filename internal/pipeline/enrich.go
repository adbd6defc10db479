package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/sales-report-etl/internal/domain"
	"github.com/couchcryptid/sales-report-etl/internal/observability"
)

// GeoLookup resolves one IP address to a geolocation. An error is a
// definitive lookup failure; the client has already spent its retry budget.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (domain.GeoLocation, error)
}

// GeoCache is the persisted IP-to-geolocation cache.
type GeoCache interface {
	ExistingIPs(ctx context.Context) (map[string]struct{}, error)
	InsertGeoLocations(ctx context.Context, locs []domain.GeoLocation) (int64, error)
}

// Enricher resolves the geolocations missing from the cache: it subtracts
// already-cached IPs from the candidates, fans the remainder out to a
// bounded worker pool, and writes all collected results to the cache in
// one batched operation after the pool drains. Workers never write to the
// cache directly, so there is a single writer per invocation.
type Enricher struct {
	lookup        GeoLookup
	cache         GeoCache
	workers       int
	cacheFailures bool
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewEnricher creates an Enricher with the given pool size. cacheFailures
// controls whether failed lookups are recorded as null-valued cache rows.
func NewEnricher(lookup GeoLookup, cache GeoCache, workers int, cacheFailures bool, logger *slog.Logger, metrics *observability.Metrics) *Enricher {
	return &Enricher{
		lookup:        lookup,
		cache:         cache,
		workers:       workers,
		cacheFailures: cacheFailures,
		logger:        logger,
		metrics:       metrics,
	}
}

// lookupResult tags a completed task with its key and outcome.
type lookupResult struct {
	ip  string
	loc domain.GeoLocation
	err error
}

// Run enriches the cache for the given candidate IPs. Individual lookup
// failures are isolated; only a cache read/write failure aborts the step.
func (e *Enricher) Run(ctx context.Context, candidates []string) error {
	start := time.Now()

	existing, err := e.cache.ExistingIPs(ctx)
	if err != nil {
		return fmt.Errorf("read cached ips: %w", err)
	}

	pending := make([]string, 0, len(candidates))
	for _, ip := range candidates {
		if _, cached := existing[ip]; cached {
			e.metrics.LookupCache.WithLabelValues("hit").Inc()
			continue
		}
		e.metrics.LookupCache.WithLabelValues("miss").Inc()
		pending = append(pending, ip)
	}

	e.logger.Info("enrichment batch computed",
		"candidates", len(candidates),
		"cached", len(candidates)-len(pending),
		"pending", len(pending),
	)
	if len(pending) == 0 {
		return nil
	}

	results := e.fanOut(ctx, pending)

	collected := make([]domain.GeoLocation, 0, len(results))
	var failed int
	for _, r := range results {
		if r.err != nil {
			failed++
			e.logger.Warn("geolocation lookup failed", "ip", r.ip, "error", r.err)
			if !e.cacheFailures {
				continue
			}
			// Null-valued row: the failure is recorded so this IP is not
			// re-attempted on later runs.
			collected = append(collected, domain.GeoLocation{IPAddress: r.ip})
			continue
		}
		collected = append(collected, r.loc)
	}

	inserted, err := e.cache.InsertGeoLocations(ctx, collected)
	if err != nil {
		e.logger.Error("geolocation cache write failed",
			"error", err,
			"applied", inserted,
			"collected", len(collected),
		)
		return fmt.Errorf("write geolocation cache: %w", err)
	}

	e.metrics.EnrichmentCycles.Observe(time.Since(start).Seconds())
	e.logger.Info("enrichment batch complete",
		"looked_up", len(pending),
		"failed", failed,
		"cached_rows", inserted,
	)
	return nil
}

// fanOut dispatches one lookup task per IP across the worker pool and
// collects all results. Results arrive in completion order; no ordering
// is guaranteed or needed.
func (e *Enricher) fanOut(ctx context.Context, pending []string) []lookupResult {
	workers := e.workers
	if workers > len(pending) {
		workers = len(pending)
	}

	jobs := make(chan string)
	results := make(chan lookupResult, len(pending))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go e.worker(ctx, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for _, ip := range pending {
			select {
			case jobs <- ip:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	collected := make([]lookupResult, 0, len(pending))
	for r := range results {
		collected = append(collected, r)
	}
	return collected
}

func (e *Enricher) worker(ctx context.Context, jobs <-chan string, results chan<- lookupResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for ip := range jobs {
		e.metrics.LookupsInFlight.Inc()
		loc, err := e.lookup.Lookup(ctx, ip)
		e.metrics.LookupsInFlight.Dec()
		results <- lookupResult{ip: ip, loc: loc, err: err}
	}
}
