// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

// Package config loads and validates service configuration using koanf v2
// with layered sources: struct defaults, then an optional YAML file, then
// DAPPBOARD_-prefixed environment variables.
package config

import "time"

// Config is the root configuration for the service.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	NATS        NATSConfig        `koanf:"nats"`
	Ledger      LedgerConfig      `koanf:"ledger"`
	Progression ProgressionConfig `koanf:"progression"`
	API         APIConfig         `koanf:"api"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development or production
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// NATSConfig holds the upstream event transport settings. When Enabled is
// false the service runs degraded: reads are served from the durable store
// and cache, but no live events arrive.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	StreamName    string `koanf:"stream_name"`
	Topic         string `koanf:"topic"`
	DurableName   string `koanf:"durable_name"`
	QueueGroup    string `koanf:"queue_group"`
	RetentionDays int    `koanf:"retention_days"`

	SubscribersCount int           `koanf:"subscribers_count"`
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`
	MaxReconnects    int           `koanf:"max_reconnects"`
	ReconnectWait    time.Duration `koanf:"reconnect_wait"`

	// Backoff for re-establishing the subscription after mid-stream
	// failures. Delay starts at BackoffBase, doubles per attempt, is
	// capped at BackoffMax and resets on the next successful delivery.
	BackoffBase time.Duration `koanf:"backoff_base"`
	BackoffMax  time.Duration `koanf:"backoff_max"`
}

// LedgerConfig holds the ledger reader collaborator settings.
type LedgerConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond rate-limits dApp shell lookups.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Circuit breaker settings for the reader.
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
}

// ProgressionConfig holds points and streak tuning.
type ProgressionConfig struct {
	// StreakDayBonus is the per-day bonus multiplied by the streak length
	// when a qualifying text review advances the streak.
	StreakDayBonus int64 `koanf:"streak_day_bonus"`
}

// APIConfig holds HTTP read-layer settings.
type APIConfig struct {
	DefaultPageSize   int      `koanf:"default_page_size"`
	MaxPageSize       int      `koanf:"max_page_size"`
	RateLimitPerMin   int      `koanf:"rate_limit_per_min"`
	CORSAllowedOrigin []string `koanf:"cors_allowed_origins"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8480,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/dappboard.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		NATS: NATSConfig{
			Enabled:          true,
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   false,
			StoreDir:         "/data/nats/jetstream",
			MaxMemory:        1 << 30,  // 1GB
			MaxStore:         10 << 30, // 10GB
			StreamName:       "REVIEWS",
			Topic:            "reviews.submitted",
			DurableName:      "review-ingest",
			QueueGroup:       "ingest",
			RetentionDays:    7,
			SubscribersCount: 1, // single logical writer
			AckWaitTimeout:   30 * time.Second,
			CloseTimeout:     30 * time.Second,
			MaxReconnects:    -1, // unbounded
			ReconnectWait:    2 * time.Second,
			BackoffBase:      time.Second,
			BackoffMax:       time.Minute,
		},
		Ledger: LedgerConfig{
			URL:                     "",
			Timeout:                 10 * time.Second,
			RequestsPerSecond:       5,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
		},
		Progression: ProgressionConfig{
			StreakDayBonus: 10,
		},
		API: APIConfig{
			DefaultPageSize:   20,
			MaxPageSize:       200,
			RateLimitPerMin:   300,
			CORSAllowedOrigin: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
