// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database (scrape-run history and query log)
	DatabaseURL string

	// Snapshot storage
	DataDir        string        // Directory holding per-provider CSV snapshots
	SnapshotMaxAge time.Duration // Snapshots older than this are considered stale

	// Reference data
	SynonymsPath    string // canonical name -> variants JSON
	CitiesPath      string // city directory JSON
	HelixCitiesPath string // Helix city alias table JSON

	// Scraping
	ScrapeDelay     time.Duration
	ScrapeTimeout   time.Duration
	ScrapeUserAgent string

	// Worker
	WorkerPollInterval time.Duration // How often to check for stale snapshots
	WorkerConcurrency  int           // Number of concurrent refresh workers

	// IdleTimeout shuts the server down after this long with no traffic
	// and no running scrape work. Zero disables idle shutdown.
	IdleTimeout time.Duration

	// ArchiveRetention prunes snapshot archives older than this during
	// the worker sweep. Zero keeps archives forever.
	ArchiveRetention time.Duration

	// CORS
	CORSOrigins []string

	// Telegram bot
	TelegramBotToken string

	// Object Storage (S3-compatible) for snapshot archival
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string // Bucket name
	StorageRegion    string // Region (auto for Tigris-style providers)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:labscan.db?_journal=WAL&_timeout=5000"),

		DataDir:        getEnv("DATA_DIR", "data"),
		SnapshotMaxAge: getEnvDuration("SNAPSHOT_MAX_AGE", 24*time.Hour),

		SynonymsPath:    getEnv("SYNONYMS_PATH", "config/synonyms.json"),
		CitiesPath:      getEnv("CITIES_PATH", "config/cities.json"),
		HelixCitiesPath: getEnv("HELIX_CITIES_PATH", "config/helix_cities.json"),

		ScrapeDelay:     getEnvDuration("SCRAPE_DELAY", 500*time.Millisecond),
		ScrapeTimeout:   getEnvDuration("SCRAPE_TIMEOUT", 10*time.Second),
		ScrapeUserAgent: getEnv("SCRAPE_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"),

		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 1*time.Minute),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 1),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),

		ArchiveRetention: getEnvDuration("ARCHIVE_RETENTION", 90*24*time.Hour),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		// Object storage uses the standard AWS env vars
		// BUCKET_NAME is set automatically by `fly storage create`
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
	}

	// Enable snapshot archival if bucket is configured
	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	if cfg.SnapshotMaxAge <= 0 {
		return nil, fmt.Errorf("SNAPSHOT_MAX_AGE must be positive")
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}
