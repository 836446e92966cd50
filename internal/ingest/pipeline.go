// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

// Package ingest is the write path: every delivered review event flows
// through the pipeline, which persists it durably, updates the cache,
// advances the rater's progression and publishes deltas. Redelivery is
// expected; the store insert and the cache guard together make the
// pipeline idempotent per event id.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/rkuska/dappboard/internal/cache"
	"github.com/rkuska/dappboard/internal/database"
	"github.com/rkuska/dappboard/internal/eventstream"
	"github.com/rkuska/dappboard/internal/ledger"
	"github.com/rkuska/dappboard/internal/logging"
	"github.com/rkuska/dappboard/internal/metrics"
	"github.com/rkuska/dappboard/internal/models"
)

// Progression is the slice of the progression engine the pipeline drives.
type Progression interface {
	ProcessReview(ctx context.Context, rater string, hasText bool, at time.Time) error
}

// Notifier publishes cache deltas to connected clients.
type Notifier interface {
	BroadcastDappUpdate(dapp models.Dapp)
	BroadcastNewReview(review models.Review)
}

// Pipeline applies review events. Events are processed one at a time;
// the mutex serializes handler invocations so aggregate recomputation
// for a dApp never races itself.
type Pipeline struct {
	db          *database.DB
	cache       *cache.Store
	ledger      ledger.Reader
	progression Progression
	notifier    Notifier

	mu sync.Mutex
}

// New creates a pipeline. ledgerReader, progression and notifier may each
// be nil; the corresponding step degrades instead of failing.
func New(db *database.DB, store *cache.Store, ledgerReader ledger.Reader, progression Progression, notifier Notifier) *Pipeline {
	return &Pipeline{
		db:          db,
		cache:       store,
		ledger:      ledgerReader,
		progression: progression,
		notifier:    notifier,
	}
}

// Handler adapts the pipeline to the subscription manager. A nil return
// acks the message. Malformed events are dropped with an ack because
// redelivery cannot repair them; only persistence failures nack.
func (p *Pipeline) Handler() eventstream.Handler {
	return func(ctx context.Context, msg *message.Message) error {
		err := p.Ingest(ctx, msg.Payload)
		if err != nil {
			logging.Error().
				Err(err).
				Str("message_uuid", msg.UUID).
				Msg("Ingest failed, event will be redelivered")
		}
		return err
	}
}

// Ingest processes one raw review event. Returns an error only for
// retryable failures; validation failures and duplicates return nil.
func (p *Pipeline) Ingest(ctx context.Context, payload []byte) error {
	start := time.Now()

	event, err := eventstream.DecodeReviewSubmitted(payload)
	if err != nil {
		metrics.EventsFailed.WithLabelValues("validation").Inc()
		logging.Warn().Err(err).Msg("Dropping malformed review event")
		return nil
	}
	review := event.Review()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache.HasReview(review.ID) {
		metrics.EventsDuplicate.Inc()
		logging.Debug().Str("review_id", review.ID).Msg("Duplicate delivery, already cached")
		return nil
	}

	inserted, err := p.db.InsertReviewIfAbsent(ctx, review)
	if err != nil {
		// Cache stays untouched so it never reflects un-persisted data.
		metrics.EventsFailed.WithLabelValues("persistence").Inc()
		return fmt.Errorf("persisting review %s: %w", review.ID, err)
	}
	if !inserted {
		// Persisted by an earlier delivery whose cache update may have
		// been cut short. Re-apply the cache side below; the cache guard
		// above already handled the fully-applied case.
		metrics.EventsDuplicate.Inc()
		logging.Debug().Str("review_id", review.ID).Msg("Review already durable, repairing cache")
	}

	shell := p.resolveShell(ctx, review.DappID)
	p.cache.ApplyReview(review, shell)

	if p.progression != nil {
		if err := p.progression.ProcessReview(ctx, review.Rater, review.HasText(), review.CreatedAt); err != nil {
			// Progression is not retryable through redelivery: the store
			// insert above already deduplicates, so a nack would skip
			// straight to the duplicate path. Log and move on.
			logging.Error().
				Err(err).
				Str("review_id", review.ID).
				Str("rater", review.Rater).
				Msg("Progression update failed")
		}
	}

	p.publish(review)
	metrics.RecordIngest(time.Since(start))
	return nil
}

// resolveShell returns the dApp shell for a review, consulting the ledger
// when the dApp is not cached yet. Lookup failure degrades to an
// unresolved placeholder; every later event for the dApp retries the
// lookup until a real shell replaces the placeholder.
func (p *Pipeline) resolveShell(ctx context.Context, dappID string) *models.DappShell {
	if cached, ok := p.cache.Dapp(dappID); ok {
		if !cached.Unresolved {
			return nil
		}

		shell := p.lookupShell(ctx, dappID)
		if shell.Unresolved {
			// Still unreachable; keep the cached placeholder as is.
			return nil
		}
		if err := p.db.UpsertDapp(ctx, shell); err != nil {
			logging.Warn().Err(err).Str("dapp_id", dappID).Msg("Failed to persist dApp shell")
		}
		logging.Info().Str("dapp_id", dappID).Str("name", shell.Name).Msg("Resolved placeholder dApp")
		return shell
	}

	shell := p.lookupShell(ctx, dappID)
	if err := p.db.UpsertDapp(ctx, shell); err != nil {
		logging.Warn().Err(err).Str("dapp_id", dappID).Msg("Failed to persist dApp shell")
	}
	return shell
}

func (p *Pipeline) lookupShell(ctx context.Context, dappID string) *models.DappShell {
	if p.ledger == nil {
		ph := models.PlaceholderShell(dappID)
		return &ph
	}

	shell, err := p.ledger.GetDapp(ctx, dappID)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			logging.Warn().Err(err).Str("dapp_id", dappID).Msg("Ledger lookup failed, using placeholder")
		}
		ph := models.PlaceholderShell(dappID)
		return &ph
	}
	return shell
}

func (p *Pipeline) publish(review *models.Review) {
	if p.notifier == nil {
		return
	}
	if dapp, ok := p.cache.Dapp(review.DappID); ok {
		p.notifier.BroadcastDappUpdate(dapp)
	}
	p.notifier.BroadcastNewReview(*review)
}
