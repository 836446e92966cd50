// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package eventstream

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/rkuska/dappboard/internal/config"
)

// EnsureStream creates or updates the review event stream so the durable
// consumer can bind to it. Safe to call on every startup.
func EnsureStream(ctx context.Context, nc *nats.Conn, cfg config.NATSConfig) (jetstream.Stream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.Topic},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Discard:   jetstream.DiscardOld,
		// Redeliveries of the same event id inside the window are dropped
		// by the broker before the pipeline's own dedup sees them.
		Duplicates: 2 * time.Minute,
	}

	if _, err := js.Stream(ctx, cfg.StreamName); err == nil {
		stream, err := js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream: %w", err)
		}
		return stream, nil
	}

	stream, err := js.CreateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return stream, nil
}
