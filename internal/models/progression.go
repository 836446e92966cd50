// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package models

import "time"

// UserProfile is the durable progression record for one address.
// Points are append-only: they are never decremented. Created lazily on
// first reference and persisted on every mutation.
type UserProfile struct {
	Address      string    `json:"address"` // lowercase
	Points       int64     `json:"points"`
	ReviewStreak int       `json:"review_streak"`
	LastLoginAt  time.Time `json:"last_login_at,omitempty"`
	LastReviewAt time.Time `json:"last_review_at,omitempty"`
}

// TaskType identifies the qualifying action a task tracks.
type TaskType string

const (
	// TaskTypeDailyLogin is completed by a login touch.
	TaskTypeDailyLogin TaskType = "daily-login"
	// TaskTypeRateAny is completed by submitting any star rating.
	TaskTypeRateAny TaskType = "rate-any-dapp"
	// TaskTypeReviewAny is completed by submitting a rating with text.
	TaskTypeReviewAny TaskType = "review-any-dapp"
)

// Cadence is how often a task's progress resets.
type Cadence string

const (
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
	CadenceOnce   Cadence = "once"
)

// TaskDefinition is durable task configuration, owned by the admin
// interface and read by the progression engine.
type TaskDefinition struct {
	TaskID       string   `json:"task_id"`
	Type         TaskType `json:"type"`
	Cadence      Cadence  `json:"cadence"`
	PointsReward int64    `json:"points_reward"`
	TargetCount  int      `json:"target_count"`
	IsActive     bool     `json:"is_active"`
}

// TaskProgress is the per-(user, task) progression row. CurrentCount and
// CompletedThisPeriod reset lazily when the UTC period implied by
// LastProgressAt differs from the current one.
type TaskProgress struct {
	Address             string    `json:"address"`
	TaskID              string    `json:"task_id"`
	CurrentCount        int       `json:"current_count"`
	LastProgressAt      time.Time `json:"last_progress_at,omitempty"`
	CompletedThisPeriod bool      `json:"completed_this_period"`
}

// UTCDay truncates t to its UTC calendar day.
func UTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// UTCDaysBetween returns the whole number of UTC calendar days from a to b.
// Negative when b's day precedes a's.
func UTCDaysBetween(a, b time.Time) int {
	return int(UTCDay(b).Sub(UTCDay(a)) / (24 * time.Hour))
}
