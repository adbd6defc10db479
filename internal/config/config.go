package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL string
	OrdersFile  string
	IPFile      string
	ExportFile  string
	ReportState string
	ReportYear  int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Geolocation API configuration.
	GeoAPIURL         string
	GeoAPIToken       string
	GeoTimeout        time.Duration
	GeoWorkers        int
	GeoMaxAttempts    int
	GeoInitialBackoff time.Duration
	GeoMaxBackoff     time.Duration
	// GeoCacheFailures controls whether failed lookups are persisted as
	// null-valued cache rows (suppressing retries on later runs) or left
	// uncached so the next run attempts them again.
	GeoCacheFailures bool

	// Optional enriched-order event publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	geoTimeout, err := parseDuration("GEO_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	geoInitialBackoff, err := parseDuration("GEO_INITIAL_BACKOFF", "500ms")
	if err != nil {
		return nil, err
	}
	geoMaxBackoff, err := parseDuration("GEO_MAX_BACKOFF", "5s")
	if err != nil {
		return nil, err
	}

	geoWorkers, err := parsePositiveInt("GEO_WORKERS", 50)
	if err != nil {
		return nil, err
	}
	geoMaxAttempts, err := parsePositiveInt("GEO_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	reportYear, err := parsePositiveInt("REPORT_YEAR", 2021)
	if err != nil {
		return nil, err
	}

	kafkaEnabled := os.Getenv("KAFKA_ENABLED") == "true"

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		OrdersFile:  sharedcfg.EnvOrDefault("ORDERS_FILE", "orders_file.csv"),
		IPFile:      sharedcfg.EnvOrDefault("IP_FILE", "ip_addresses.csv"),
		ExportFile:  sharedcfg.EnvOrDefault("EXPORT_FILE", "orders_export.csv"),
		ReportState: sharedcfg.EnvOrDefault("REPORT_STATE", "IL"),
		ReportYear:  reportYear,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		GeoAPIURL:         sharedcfg.EnvOrDefault("GEO_API_URL", "https://ipinfo.io"),
		GeoAPIToken:       os.Getenv("GEO_API_TOKEN"),
		GeoTimeout:        geoTimeout,
		GeoWorkers:        geoWorkers,
		GeoMaxAttempts:    geoMaxAttempts,
		GeoInitialBackoff: geoInitialBackoff,
		GeoMaxBackoff:     geoMaxBackoff,
		GeoCacheFailures:  sharedcfg.EnvOrDefault("GEO_CACHE_FAILURES", "true") == "true",

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "enriched-orders"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.ReportState == "" {
		return nil, errors.New("REPORT_STATE is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func parseDuration(name, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, fallback))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return d, nil
}

func parsePositiveInt(name string, fallback int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}
