// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Environment != "development" && c.Server.Environment != "production" {
		return fmt.Errorf("server.environment must be development or production, got %q", c.Server.Environment)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must not be negative, got %d", c.Database.Threads)
	}

	if c.NATS.Enabled {
		if !c.NATS.EmbeddedServer && !strings.HasPrefix(c.NATS.URL, "nats://") {
			return fmt.Errorf("nats.url must start with nats://, got %q", c.NATS.URL)
		}
		if c.NATS.StreamName == "" {
			return fmt.Errorf("nats.stream_name must not be empty")
		}
		if c.NATS.Topic == "" {
			return fmt.Errorf("nats.topic must not be empty")
		}
		if c.NATS.DurableName == "" {
			return fmt.Errorf("nats.durable_name must not be empty")
		}
		if c.NATS.SubscribersCount < 1 {
			return fmt.Errorf("nats.subscribers_count must be at least 1, got %d", c.NATS.SubscribersCount)
		}
		if c.NATS.BackoffBase <= 0 {
			return fmt.Errorf("nats.backoff_base must be positive, got %s", c.NATS.BackoffBase)
		}
		if c.NATS.BackoffMax < c.NATS.BackoffBase {
			return fmt.Errorf("nats.backoff_max %s must not be below nats.backoff_base %s",
				c.NATS.BackoffMax, c.NATS.BackoffBase)
		}
	}

	if c.Ledger.URL != "" {
		if c.Ledger.Timeout <= 0 {
			return fmt.Errorf("ledger.timeout must be positive, got %s", c.Ledger.Timeout)
		}
		if c.Ledger.RequestsPerSecond <= 0 {
			return fmt.Errorf("ledger.requests_per_second must be positive, got %g", c.Ledger.RequestsPerSecond)
		}
	}

	if c.Progression.StreakDayBonus < 0 {
		return fmt.Errorf("progression.streak_day_bonus must not be negative, got %d", c.Progression.StreakDayBonus)
	}

	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("api.default_page_size must be at least 1, got %d", c.API.DefaultPageSize)
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size %d must not be below api.default_page_size %d",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}
