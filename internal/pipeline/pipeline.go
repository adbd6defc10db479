// Package pipeline sequences one ETL invocation: schema ensure, order
// ingestion, IP geolocation enrichment, order merge, flat export, and the
// quarterly state report. Errors are handled at step boundaries; a failed
// step is logged and the run proceeds on whatever data is already
// persisted, so one bad input file never takes down the whole run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/couchcryptid/sales-report-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/sales-report-etl/internal/domain"
	"github.com/couchcryptid/sales-report-etl/internal/observability"
)

// Store is the persistence handle for orders and the geolocation cache.
type Store interface {
	GeoCache
	EnsureSchema(ctx context.Context) error
	InsertOrders(ctx context.Context, orders []domain.Order) (int64, error)
	MergeLocations(ctx context.Context) ([]domain.Order, error)
	AllOrders(ctx context.Context) ([]domain.Order, error)
	OrdersForReport(ctx context.Context, state string, year int) ([]domain.Order, error)
}

// ReportWriter renders the quarterly summary to a report artifact and
// returns the artifact's path.
type ReportWriter interface {
	WriteQuarterly(state string, year int, rows []domain.QuarterlySales) (string, error)
}

// EventPublisher emits enriched-order events to a side channel. Optional;
// publishing is best-effort and never fails the run.
type EventPublisher interface {
	PublishEnriched(ctx context.Context, orders []domain.Order) error
}

// Options carries the per-run inputs and outputs.
type Options struct {
	OrdersFile  string
	IPFile      string
	ExportFile  string
	ReportState string
	ReportYear  int
}

// Pipeline runs one ETL invocation end to end.
type Pipeline struct {
	store     Store
	enricher  *Enricher
	reporter  ReportWriter
	publisher EventPublisher
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	stage     atomic.Value // string, one of the Stage* constants
}

// Run stages, in invocation order. Exposed through Stage so the readiness
// endpoint can report how far the current run has progressed.
const (
	StagePending = "pending"
	StageSchema  = "schema"
	StageIngest  = "ingest"
	StageEnrich  = "enrich"
	StageMerge   = "merge"
	StageExport  = "export"
	StageReport  = "report"
	StageDone    = "done"
)

// New creates a Pipeline. publisher may be nil when event publishing is
// disabled.
func New(store Store, enricher *Enricher, reporter ReportWriter, publisher EventPublisher, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	p := &Pipeline{
		store:     store,
		enricher:  enricher,
		reporter:  reporter,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
	p.stage.Store(StagePending)
	return p
}

// CheckReadiness returns nil once the run has completed at least one step.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed any steps yet")
	}
	return nil
}

// Stage reports the step the current run is executing.
func (p *Pipeline) Stage() string {
	return p.stage.Load().(string)
}

func (p *Pipeline) setStage(s string) {
	p.stage.Store(s)
}

// Run executes the full invocation sequence. Only a schema-ensure failure
// is fatal; every later step is isolated at its boundary.
func (p *Pipeline) Run(ctx context.Context) error {
	p.setStage(StageSchema)
	if err := p.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	p.ready.Store(true)

	p.setStage(StageIngest)
	p.ingestOrders(ctx)
	p.setStage(StageEnrich)
	p.enrichIPs(ctx)
	p.setStage(StageMerge)
	p.mergeOrders(ctx)
	p.setStage(StageExport)
	p.exportOrders(ctx)
	p.setStage(StageReport)
	p.generateReport(ctx)
	p.setStage(StageDone)

	return nil
}

// ingestOrders loads the orders file. Ingestion errors abort this step
// only; downstream steps proceed with whatever is already persisted.
func (p *Pipeline) ingestOrders(ctx context.Context) {
	orders, err := csvfile.ReadOrders(p.opts.OrdersFile)
	if err != nil {
		p.logger.Error("order ingestion failed", "file", p.opts.OrdersFile, "error", err)
		return
	}

	inserted, err := p.store.InsertOrders(ctx, orders)
	if err != nil {
		p.logger.Error("order persistence failed", "file", p.opts.OrdersFile, "error", err)
		return
	}

	p.metrics.OrdersIngested.Add(float64(inserted))
	p.logger.Info("orders ingested", "file", p.opts.OrdersFile, "rows", len(orders), "inserted", inserted)
}

func (p *Pipeline) enrichIPs(ctx context.Context) {
	ips, err := csvfile.ReadIPs(p.opts.IPFile, p.logger)
	if err != nil {
		p.logger.Error("ip ingestion failed", "file", p.opts.IPFile, "error", err)
		return
	}

	if err := p.enricher.Run(ctx, ips); err != nil {
		p.logger.Error("ip enrichment failed", "file", p.opts.IPFile, "error", err)
	}
}

func (p *Pipeline) mergeOrders(ctx context.Context) {
	merged, err := p.store.MergeLocations(ctx)
	if err != nil {
		p.logger.Error("order merge failed", "error", err)
		return
	}

	p.metrics.OrdersMerged.Add(float64(len(merged)))
	p.logger.Info("orders merged", "count", len(merged))

	p.publishEnriched(ctx, merged)
}

// publishEnriched emits events for orders that gained usable location
// data in this merge. Best-effort: a publish failure is logged only.
func (p *Pipeline) publishEnriched(ctx context.Context, merged []domain.Order) {
	if p.publisher == nil {
		return
	}

	enriched := make([]domain.Order, 0, len(merged))
	for _, o := range merged {
		if o.Enriched() {
			enriched = append(enriched, o)
		}
	}
	if len(enriched) == 0 {
		return
	}

	if err := p.publisher.PublishEnriched(ctx, enriched); err != nil {
		p.logger.Warn("enriched-order publish failed", "count", len(enriched), "error", err)
		return
	}
	p.metrics.EventsPublished.Add(float64(len(enriched)))
}

func (p *Pipeline) exportOrders(ctx context.Context) {
	orders, err := p.store.AllOrders(ctx)
	if err != nil {
		p.logger.Error("export query failed", "error", err)
		return
	}
	if len(orders) == 0 {
		p.logger.Info("no orders to export")
		return
	}

	if err := csvfile.WriteExport(p.opts.ExportFile, orders); err != nil {
		p.logger.Error("export failed", "file", p.opts.ExportFile, "error", err)
		return
	}

	p.metrics.RowsExported.Add(float64(len(orders)))
	p.logger.Info("export file generated", "file", p.opts.ExportFile, "rows", len(orders))
}

func (p *Pipeline) generateReport(ctx context.Context) {
	// State codes are stored uppercase; fold the configured filter so
	// REPORT_STATE=il selects the same rows the artifact name announces.
	state, year := strings.ToUpper(p.opts.ReportState), p.opts.ReportYear

	orders, err := p.store.OrdersForReport(ctx, state, year)
	if err != nil {
		p.logger.Error("report query failed", "state", state, "year", year, "error", err)
		return
	}

	rows := domain.AggregateQuarterly(orders)
	if len(rows) == 0 {
		p.logger.Info("no sales data for report", "state", state, "year", year)
		return
	}

	path, err := p.reporter.WriteQuarterly(state, year, rows)
	if err != nil {
		p.logger.Error("report generation failed", "state", state, "year", year, "error", err)
		return
	}

	p.metrics.ReportRows.Add(float64(len(rows)))
	p.logger.Info("sales report generated", "file", path, "rows", len(rows))
}
