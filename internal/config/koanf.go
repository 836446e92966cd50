// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"/etc/dappboard/config.yaml",
}

// EnvPrefix is the prefix for environment variable overrides,
// e.g. DAPPBOARD_NATS_URL overrides nats.url.
const EnvPrefix = "DAPPBOARD_"

// Load builds the configuration from defaults, an optional YAML file and
// DAPPBOARD_-prefixed environment variables, in that precedence order.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file path, honoring
// CONFIG_PATH over the default search list. Empty when none exists.
func findConfigFile() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envKeyMap maps flattened env names (prefix stripped, lowercased) to
// dotted koanf paths. Needed because section field names themselves
// contain underscores, so a blind underscore-to-dot split is ambiguous.
var envKeyMap = map[string]string{
	"server_host":        "server.host",
	"server_port":        "server.port",
	"server_timeout":     "server.timeout",
	"server_environment": "server.environment",

	"database_path":       "database.path",
	"database_max_memory": "database.max_memory",
	"database_threads":    "database.threads",

	"nats_enabled":           "nats.enabled",
	"nats_url":               "nats.url",
	"nats_embedded_server":   "nats.embedded_server",
	"nats_store_dir":         "nats.store_dir",
	"nats_max_memory":        "nats.max_memory",
	"nats_max_store":         "nats.max_store",
	"nats_stream_name":       "nats.stream_name",
	"nats_topic":             "nats.topic",
	"nats_durable_name":      "nats.durable_name",
	"nats_queue_group":       "nats.queue_group",
	"nats_retention_days":    "nats.retention_days",
	"nats_subscribers_count": "nats.subscribers_count",
	"nats_ack_wait_timeout":  "nats.ack_wait_timeout",
	"nats_close_timeout":     "nats.close_timeout",
	"nats_max_reconnects":    "nats.max_reconnects",
	"nats_reconnect_wait":    "nats.reconnect_wait",
	"nats_backoff_base":      "nats.backoff_base",
	"nats_backoff_max":       "nats.backoff_max",

	"ledger_url":                       "ledger.url",
	"ledger_api_key":                   "ledger.api_key",
	"ledger_timeout":                   "ledger.timeout",
	"ledger_requests_per_second":       "ledger.requests_per_second",
	"ledger_breaker_failure_threshold": "ledger.breaker_failure_threshold",
	"ledger_breaker_timeout":           "ledger.breaker_timeout",

	"progression_streak_day_bonus": "progression.streak_day_bonus",

	"api_default_page_size":    "api.default_page_size",
	"api_max_page_size":        "api.max_page_size",
	"api_rate_limit_per_min":   "api.rate_limit_per_min",
	"api_cors_allowed_origins": "api.cors_allowed_origins",

	"logging_level":  "logging.level",
	"logging_format": "logging.format",
	"logging_caller": "logging.caller",
}

func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if mapped, ok := envKeyMap[key]; ok {
		return mapped
	}
	// Unknown variable: fall back to a section.rest split so new fields
	// without underscores still resolve.
	return strings.Replace(key, "_", ".", 1)
}
