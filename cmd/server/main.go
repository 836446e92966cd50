// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

// Package main is the entry point for the Dappboard server.
//
// Dappboard aggregates dApp review events from a NATS JetStream topic
// into a durable DuckDB store and an in-memory aggregate cache, runs the
// points and task progression engine over them, and serves the result
// over a REST API with websocket push.
//
// Startup order:
//
//  1. Configuration: koanf v2 layered sources (defaults, YAML, env)
//  2. Database: DuckDB, the durable system of record
//  3. Cache: bulk load of all dApps and reviews from the store
//  4. Collaborators: ledger reader, websocket hub, progression engine
//  5. Event transport: optional embedded NATS, stream, durable consumer
//  6. HTTP server: REST API, websocket upgrade, Prometheus metrics
//  7. Supervisor tree: suture supervises hub, subscription and server
//
// The event transport is optional. When NATS is disabled or the
// subscriber cannot be built, the service runs degraded: all reads serve
// the durable state loaded at startup, and /health reports the
// subscription as disabled.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/rkuska/dappboard/internal/api"
	"github.com/rkuska/dappboard/internal/cache"
	"github.com/rkuska/dappboard/internal/config"
	"github.com/rkuska/dappboard/internal/database"
	"github.com/rkuska/dappboard/internal/eventstream"
	"github.com/rkuska/dappboard/internal/ingest"
	"github.com/rkuska/dappboard/internal/ledger"
	"github.com/rkuska/dappboard/internal/logging"
	"github.com/rkuska/dappboard/internal/models"
	"github.com/rkuska/dappboard/internal/progression"
	"github.com/rkuska/dappboard/internal/supervisor"
	ws "github.com/rkuska/dappboard/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("Starting Dappboard server")

	// The durable store is the system of record; without it there is
	// nothing to serve.
	db, err := database.New(database.Config{
		Path:      cfg.Database.Path,
		MaxMemory: cfg.Database.MaxMemory,
		Threads:   cfg.Database.Threads,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Closing database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := loadCache(ctx, db)
	if err != nil {
		return fmt.Errorf("loading cache from store: %w", err)
	}

	ledgerClient := ledger.NewClient(cfg.Ledger)
	if ledgerClient == nil {
		logging.Warn().Msg("No ledger configured, unresolved dApps will use placeholder shells")
	}

	hub := ws.NewHub()

	engine := progression.NewEngine(db, cfg.Progression.StreakDayBonus, hub)
	if err := engine.LoadTasks(ctx); err != nil {
		return fmt.Errorf("loading task definitions: %w", err)
	}

	var ledgerReader ledger.Reader
	if ledgerClient != nil {
		ledgerReader = ledgerClient
	}
	pipeline := ingest.New(db, store, ledgerReader, engine, hub)

	manager, embedded, subscriber, err := initTransport(ctx, cfg, pipeline)
	if err != nil {
		// Degraded, not fatal. Reads still serve the durable state.
		logging.Error().Err(err).Msg("Event transport unavailable, running degraded")
		manager = eventstream.NewManager(nil, cfg.NATS.Topic, cfg.NATS.BackoffBase, cfg.NATS.BackoffMax, pipeline.Handler())
	}
	if embedded != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.NATS.CloseTimeout)
			defer cancel()
			if err := embedded.Shutdown(shutdownCtx); err != nil {
				logging.Error().Err(err).Msg("Shutting down embedded NATS server")
			}
		}()
	}
	if subscriber != nil {
		defer func() {
			if err := subscriber.Close(); err != nil {
				logging.Error().Err(err).Msg("Closing event subscriber")
			}
		}()
	}

	handler := api.NewHandler(store, engine, hub, manager, cfg.API)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.API),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(supervisor.NewHubService(hub))
	tree.AddMessagingService(supervisor.NewSubscriptionService(manager))
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	err = <-tree.ServeBackground(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Server stopped")
	return nil
}

// loadCache bulk-loads the aggregate cache from the durable store.
func loadCache(ctx context.Context, db *database.DB) (*cache.Store, error) {
	shells, err := db.AllDapps(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading dApps: %w", err)
	}
	reviews, err := db.AllReviews(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading reviews: %w", err)
	}

	shellPtrs := make([]*models.DappShell, len(shells))
	for i := range shells {
		shellPtrs[i] = &shells[i]
	}
	reviewPtrs := make([]*models.Review, len(reviews))
	for i := range reviews {
		reviewPtrs[i] = &reviews[i]
	}

	store := cache.NewStore()
	store.Load(shellPtrs, reviewPtrs)
	logging.Info().
		Int("dapps", len(shells)).
		Int("reviews", len(reviews)).
		Msg("Aggregate cache loaded from store")
	return store, nil
}

// initTransport builds the event subscription stack: an optional
// embedded NATS server, the JetStream stream, and the durable consumer
// wrapped in the backoff manager.
func initTransport(ctx context.Context, cfg *config.Config, pipeline *ingest.Pipeline) (*eventstream.Manager, *eventstream.EmbeddedServer, *eventstream.Subscriber, error) {
	natsCfg := cfg.NATS
	if !natsCfg.Enabled {
		logging.Warn().Msg("NATS disabled, no live events will arrive")
		return eventstream.NewManager(nil, natsCfg.Topic, natsCfg.BackoffBase, natsCfg.BackoffMax, pipeline.Handler()), nil, nil, nil
	}

	var embedded *eventstream.EmbeddedServer
	if natsCfg.EmbeddedServer {
		var err error
		embedded, err = eventstream.NewEmbeddedServer(natsCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("starting embedded NATS: %w", err)
		}
		natsCfg.URL = embedded.ClientURL()
		logging.Info().Str("url", natsCfg.URL).Msg("Embedded NATS server started")
	}

	if err := provisionStream(ctx, natsCfg); err != nil {
		return nil, embedded, nil, err
	}

	subscriber, err := eventstream.NewSubscriber(natsCfg, eventstream.NewWatermillLogger())
	if err != nil {
		return nil, embedded, nil, fmt.Errorf("creating subscriber: %w", err)
	}

	manager := eventstream.NewManager(subscriber, natsCfg.Topic, natsCfg.BackoffBase, natsCfg.BackoffMax, pipeline.Handler())
	return manager, embedded, subscriber, nil
}

// provisionStream ensures the review stream exists before the durable
// consumer binds to it.
func provisionStream(ctx context.Context, cfg config.NATSConfig) error {
	nc, err := natsgo.Connect(cfg.URL,
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer nc.Close()

	provisionCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := eventstream.EnsureStream(provisionCtx, nc, cfg); err != nil {
		return fmt.Errorf("provisioning stream %s: %w", cfg.StreamName, err)
	}
	logging.Info().
		Str("stream", cfg.StreamName).
		Str("topic", cfg.Topic).
		Msg("JetStream stream ready")
	return nil
}
