// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

/*
database.go - Connection Management and Schema

Durable store adapter backed by DuckDB through database/sql. The store is
the canonical copy of reviews and progression state; the in-memory cache is
rebuilt from it at startup.

Tables:
  - reviews: canonical review records, insert-or-ignore keyed by id
  - dapps: descriptive dApp shells cached from the ledger reader
  - user_profiles: per-address progression record, upsert by address
  - task_definitions: admin-owned task configuration, upsert by task_id
  - task_progress: per-(address, task_id) progress rows

Connection Pool:
  - MaxOpenConns based on CPU count
  - MaxIdleConns 2, ConnMaxLifetime 1 hour, ConnMaxIdleTime 5 minutes
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // duckdb driver
)

// Config holds database configuration.
type Config struct {
	// Path is the DuckDB file path, or ":memory:" for tests.
	Path string

	// MaxMemory caps DuckDB memory usage, e.g. "2GB".
	MaxMemory string

	// Threads is the DuckDB thread count; 0 uses runtime.NumCPU().
	Threads int
}

// DB wraps the DuckDB connection pool.
type DB struct {
	conn *sql.DB
	cfg  Config
}

// New opens the database, verifies connectivity and creates the schema.
// Schema failures here are fatal at startup: the process must not serve
// reads against a store of unknown shape.
func New(cfg Config) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	connStr := cfg.Path
	if cfg.Path != ":memory:" && cfg.Path != "" {
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, threads, maxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	if err := db.createTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the schema if it does not exist yet.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS reviews (
			id TEXT PRIMARY KEY,
			dapp_id TEXT NOT NULL,
			rater TEXT NOT NULL,
			star_rating INTEGER NOT NULL,
			review_text TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_dapp ON reviews (dapp_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_rater ON reviews (rater)`,

		`CREATE TABLE IF NOT EXISTS dapps (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT,
			description TEXT,
			unresolved BOOLEAN NOT NULL DEFAULT false
		)`,

		`CREATE TABLE IF NOT EXISTS user_profiles (
			address TEXT PRIMARY KEY,
			points BIGINT NOT NULL DEFAULT 0,
			review_streak INTEGER NOT NULL DEFAULT 0,
			last_login_at TIMESTAMP,
			last_review_at TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS task_definitions (
			task_id TEXT PRIMARY KEY,
			task_type TEXT NOT NULL,
			cadence TEXT NOT NULL,
			points_reward BIGINT NOT NULL,
			target_count INTEGER NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true
		)`,

		`CREATE TABLE IF NOT EXISTS task_progress (
			address TEXT NOT NULL,
			task_id TEXT NOT NULL,
			current_count INTEGER NOT NULL DEFAULT 0,
			last_progress_at TIMESTAMP,
			completed_this_period BOOLEAN NOT NULL DEFAULT false,
			PRIMARY KEY (address, task_id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}
