package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/sales-report-etl/internal/adapter/geoip"
	httpadapter "github.com/couchcryptid/sales-report-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/sales-report-etl/internal/adapter/kafka"
	"github.com/couchcryptid/sales-report-etl/internal/adapter/postgres"
	"github.com/couchcryptid/sales-report-etl/internal/config"
	"github.com/couchcryptid/sales-report-etl/internal/observability"
	"github.com/couchcryptid/sales-report-etl/internal/pipeline"
	"github.com/couchcryptid/sales-report-etl/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	geoClient := geoip.NewClient(cfg.GeoAPIURL, cfg.GeoAPIToken, cfg.GeoTimeout, geoip.RetryPolicy{
		MaxAttempts:    cfg.GeoMaxAttempts,
		InitialBackoff: cfg.GeoInitialBackoff,
		MaxBackoff:     cfg.GeoMaxBackoff,
	}, logger, metrics)

	enricher := pipeline.NewEnricher(geoClient, store, cfg.GeoWorkers, cfg.GeoCacheFailures, logger, metrics)
	reporter := &report.ExcelWriter{Dir: "."}

	// Enriched-order event publishing (feature-flagged via KAFKA_ENABLED).
	var publisher pipeline.EventPublisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg, logger)
		publisher = kafkaPublisher
		logger.Info("enriched-order publishing enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("enriched-order publishing disabled")
	}

	p := pipeline.New(store, enricher, reporter, publisher, pipeline.Options{
		OrdersFile:  cfg.OrdersFile,
		IPFile:      cfg.IPFile,
		ExportFile:  cfg.ExportFile,
		ReportState: cfg.ReportState,
		ReportYear:  cfg.ReportYear,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Run the ETL once, then begin shutdown.
	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(ctx)
		stop()
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	store.Close()

	logger.Info("shutdown complete")

	select {
	case err := <-runErr:
		if err != nil {
			logger.Error("pipeline error", "error", err)
			os.Exit(1)
		}
	default:
		// Interrupted before the run finished.
	}
}
