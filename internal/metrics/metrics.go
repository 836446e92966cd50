// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline, the durable store, the progression engine and the websocket
// fan-out. All collectors are registered with the default registry and
// exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event ingestion
	EventsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dappboard_events_consumed_total",
		Help: "Total review events delivered by the subscription",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dappboard_events_processed_total",
		Help: "Total review events fully applied to store and cache",
	})

	EventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dappboard_events_duplicate_total",
		Help: "Total redelivered events skipped by idempotency guards",
	})

	EventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dappboard_events_failed_total",
		Help: "Total events that failed processing",
	}, []string{"reason"}) // "validation", "persistence"

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dappboard_ingest_duration_seconds",
		Help:    "Duration of single-event ingestion",
		Buckets: prometheus.DefBuckets,
	})

	// Subscription health
	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dappboard_subscription_reconnect_attempts_total",
		Help: "Total subscription reconnect attempts",
	})

	SubscriptionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dappboard_subscription_state",
		Help: "Subscription state (0 disconnected, 1 connecting, 2 subscribed, 3 backoff)",
	})

	// Durable store
	DBQueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dappboard_db_query_errors_total",
		Help: "Total DuckDB query errors",
	}, []string{"operation", "table"})

	// Progression
	PointsAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dappboard_points_awarded_total",
		Help: "Total points awarded across all users",
	})

	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dappboard_tasks_completed_total",
		Help: "Total task completions",
	}, []string{"task_id"})

	// Fan-out
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dappboard_websocket_clients",
		Help: "Currently connected websocket clients",
	})

	WSMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dappboard_websocket_messages_dropped_total",
		Help: "Broadcasts dropped because a client buffer was full",
	})
)

// RecordDBError increments the query error counter for one operation/table.
func RecordDBError(operation, table string) {
	DBQueryErrors.WithLabelValues(operation, table).Inc()
}

// RecordIngest observes one completed ingestion.
func RecordIngest(d time.Duration) {
	EventsProcessed.Inc()
	IngestDuration.Observe(d.Seconds())
}

// RecordPointsAwarded adds to the global points counter.
func RecordPointsAwarded(points int64) {
	PointsAwarded.Add(float64(points))
}
