// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rkuska/dappboard/internal/metrics"
	"github.com/rkuska/dappboard/internal/models"
)

// GetUserProfile reads one profile by lowercase address.
// Returns ErrNotFound when the user has never been seen; callers create
// the profile lazily.
func (db *DB) GetUserProfile(ctx context.Context, address string) (*models.UserProfile, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT address, points, review_streak, last_login_at, last_review_at
		 FROM user_profiles WHERE address = ?`, models.NormalizeAddress(address))

	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordDBError("select", "user_profiles")
		return nil, fmt.Errorf("get profile %s: %w", address, err)
	}
	return p, nil
}

// UpsertUserProfile persists the full profile row. The progression engine
// calls this on every mutation so points survive a crash mid-stream.
func (db *DB) UpsertUserProfile(ctx context.Context, p *models.UserProfile) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_profiles (address, points, review_streak, last_login_at, last_review_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (address) DO UPDATE SET
			points = excluded.points,
			review_streak = excluded.review_streak,
			last_login_at = excluded.last_login_at,
			last_review_at = excluded.last_review_at`,
		models.NormalizeAddress(p.Address), p.Points, p.ReviewStreak,
		nullTime(p.LastLoginAt), nullTime(p.LastReviewAt))
	if err != nil {
		metrics.RecordDBError("upsert", "user_profiles")
		return fmt.Errorf("upsert profile %s: %w", p.Address, err)
	}
	return nil
}

// AllUserProfiles reads every profile row.
func (db *DB) AllUserProfiles(ctx context.Context) ([]models.UserProfile, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT address, points, review_streak, last_login_at, last_review_at
		 FROM user_profiles ORDER BY address`)
	if err != nil {
		metrics.RecordDBError("select", "user_profiles")
		return nil, fmt.Errorf("read all profiles: %w", err)
	}
	defer closeQuietly(rows)

	var profiles []models.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

func scanProfile(row rowScanner) (*models.UserProfile, error) {
	var (
		p         models.UserProfile
		lastLogin sql.NullTime
		lastRev   sql.NullTime
	)
	if err := row.Scan(&p.Address, &p.Points, &p.ReviewStreak, &lastLogin, &lastRev); err != nil {
		return nil, err
	}
	p.LastLoginAt = lastLogin.Time
	p.LastReviewAt = lastRev.Time
	return &p, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
