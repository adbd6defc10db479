package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// sales-report ETL run.
type Metrics struct {
	OrdersIngested prometheus.Counter
	OrdersMerged   prometheus.Counter
	RowsExported   prometheus.Counter
	ReportRows     prometheus.Counter

	// Geolocation enrichment metrics.
	LookupRequests   *prometheus.CounterVec // labels: outcome={success,failed,empty}
	LookupCache      *prometheus.CounterVec // labels: result={hit,miss}
	LookupDuration   prometheus.Histogram
	LookupsInFlight  prometheus.Gauge
	EnrichmentCycles prometheus.Histogram

	EventsPublished prometheus.Counter
}

// NewMetrics creates and registers all ETL metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.OrdersIngested,
		m.OrdersMerged,
		m.RowsExported,
		m.ReportRows,
		m.LookupRequests,
		m.LookupCache,
		m.LookupDuration,
		m.LookupsInFlight,
		m.EnrichmentCycles,
		m.EventsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		OrdersIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "orders_ingested_total",
			Help:      "Total order rows loaded from the orders file.",
		}),
		OrdersMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "orders_merged_total",
			Help:      "Total orders backfilled with cached geolocation data.",
		}),
		RowsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "rows_exported_total",
			Help:      "Total rows written to the export file.",
		}),
		ReportRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "report_rows_total",
			Help:      "Total quarterly summary rows written to the report.",
		}),
		LookupRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "geo_lookup_requests_total",
			Help:      "Geolocation lookup attempt-sequences by outcome.",
		}, []string{"outcome"}),
		LookupCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "geo_lookup_cache_total",
			Help:      "Candidate IPs by cache result during deduplication.",
		}, []string{"result"}),
		LookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sales_etl",
			Name:      "geo_lookup_duration_seconds",
			Help:      "Geolocation API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		LookupsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sales_etl",
			Name:      "geo_lookups_in_flight",
			Help:      "Lookup workers currently waiting on the geolocation API.",
		}),
		EnrichmentCycles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sales_etl",
			Name:      "enrichment_cycle_duration_seconds",
			Help:      "Duration of a complete dedup-lookup-persist enrichment cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "events_published_total",
			Help:      "Enriched-order events published to Kafka.",
		}),
	}
}
