// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rkuska/dappboard/internal/metrics"
	"github.com/rkuska/dappboard/internal/models"
)

// InsertReviewIfAbsent persists a review keyed by id, ignoring the write if
// a row with the same id already exists. Returns true when a new row was
// written. This is the store-level idempotency anchor: redelivered events
// land here first and duplicates never reach the aggregates.
func (db *DB) InsertReviewIfAbsent(ctx context.Context, r *models.Review) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO reviews (id, dapp_id, rater, star_rating, review_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, r.DappID, r.Rater, r.StarRating, r.Text, r.CreatedAt.UTC())
	if err != nil {
		metrics.RecordDBError("insert", "reviews")
		return false, fmt.Errorf("insert review %s: %w", r.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		// Driver could not report the count; treat the write as applied.
		return true, nil
	}
	return affected > 0, nil
}

// GetReview reads one review by id. Returns ErrNotFound when absent.
func (db *DB) GetReview(ctx context.Context, id string) (*models.Review, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, dapp_id, rater, star_rating, review_text, created_at
		 FROM reviews WHERE id = ?`, id)

	r, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordDBError("select", "reviews")
		return nil, fmt.Errorf("get review %s: %w", id, err)
	}
	return r, nil
}

// AllReviews reads the full review history for the startup bulk load,
// most recent first.
func (db *DB) AllReviews(ctx context.Context) ([]models.Review, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, dapp_id, rater, star_rating, review_text, created_at
		 FROM reviews ORDER BY created_at DESC, id`)
	if err != nil {
		metrics.RecordDBError("select", "reviews")
		return nil, fmt.Errorf("read all reviews: %w", err)
	}
	defer closeQuietly(rows)

	var reviews []models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (*models.Review, error) {
	var (
		r    models.Review
		text sql.NullString
	)
	if err := row.Scan(&r.ID, &r.DappID, &r.Rater, &r.StarRating, &text, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Text = text.String
	return &r, nil
}
