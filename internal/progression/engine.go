// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

// Package progression owns user profiles, points, review streaks and task
// progress. Profiles are created lazily and persisted on every mutation,
// so restarts lose nothing. Period rollover is evaluated lazily on touch;
// there is no background scheduler.
package progression

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rkuska/dappboard/internal/database"
	"github.com/rkuska/dappboard/internal/logging"
	"github.com/rkuska/dappboard/internal/metrics"
	"github.com/rkuska/dappboard/internal/models"
)

// Notifier receives progression deltas for real-time fan-out. All methods
// are fire-and-forget.
type Notifier interface {
	ProfileUpdated(profile models.UserProfile)
	TaskUpdated(address string, progress models.TaskProgress, def models.TaskDefinition)
}

// Engine mutates user progression state. It is the only writer of user
// profiles and task progress; a single mutex serializes login events from
// the API with review events from the ingest pipeline.
type Engine struct {
	db       *database.DB
	dayBonus int64
	notifier Notifier

	mu    sync.Mutex
	tasks map[string]models.TaskDefinition
}

// NewEngine creates a progression engine. notifier may be nil.
func NewEngine(db *database.DB, streakDayBonus int64, notifier Notifier) *Engine {
	return &Engine{
		db:       db,
		dayBonus: streakDayBonus,
		notifier: notifier,
		tasks:    make(map[string]models.TaskDefinition),
	}
}

// LoadTasks reads all task definitions into memory. Called at startup and
// after administrative changes.
func (e *Engine) LoadTasks(ctx context.Context) error {
	defs, err := e.db.AllTaskDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("loading task definitions: %w", err)
	}

	e.mu.Lock()
	e.tasks = make(map[string]models.TaskDefinition, len(defs))
	for _, d := range defs {
		e.tasks[d.TaskID] = d
	}
	e.mu.Unlock()

	logging.Info().Int("count", len(defs)).Msg("Task definitions loaded")
	return nil
}

// ActiveTasks returns the active task definitions.
func (e *Engine) ActiveTasks() []models.TaskDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.TaskDefinition, 0, len(e.tasks))
	for _, d := range e.tasks {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out
}

// UpsertTask persists a task definition and refreshes the in-memory set.
func (e *Engine) UpsertTask(ctx context.Context, def *models.TaskDefinition) error {
	if err := e.db.UpsertTaskDefinition(ctx, def); err != nil {
		return fmt.Errorf("persisting task definition: %w", err)
	}
	e.mu.Lock()
	e.tasks[def.TaskID] = *def
	e.mu.Unlock()
	return nil
}

// GetOrCreateProfile returns the profile for an address, creating and
// persisting an empty one on first reference.
func (e *Engine) GetOrCreateProfile(ctx context.Context, address string) (*models.UserProfile, error) {
	address = models.NormalizeAddress(address)
	profile, err := e.db.GetUserProfile(ctx, address)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	profile = &models.UserProfile{Address: address}
	if err := e.db.UpsertUserProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("creating profile for %s: %w", address, err)
	}
	return profile, nil
}

// ProcessLogin records a login and advances daily-login tasks. Repeated
// logins within the same UTC day are idempotent for task completion.
func (e *Engine) ProcessLogin(ctx context.Context, address string) (*models.UserProfile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	profile, err := e.GetOrCreateProfile(ctx, address)
	if err != nil {
		return nil, err
	}
	profile.LastLoginAt = now

	if err := e.applyTasks(ctx, profile, models.TaskTypeDailyLogin, now); err != nil {
		return nil, err
	}
	if err := e.db.UpsertUserProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("persisting profile %s: %w", profile.Address, err)
	}
	e.notifyProfile(profile)
	return profile, nil
}

// ProcessReview advances streaks and review tasks for a rater. hasText
// marks a full review; rating-only events advance rating tasks but never
// streaks.
func (e *Engine) ProcessReview(ctx context.Context, rater string, hasText bool, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	at = at.UTC()
	profile, err := e.GetOrCreateProfile(ctx, rater)
	if err != nil {
		return err
	}

	if hasText {
		e.applyStreak(profile, at)
	}

	if err := e.applyTasks(ctx, profile, models.TaskTypeRateAny, at); err != nil {
		return err
	}
	if hasText {
		if err := e.applyTasks(ctx, profile, models.TaskTypeReviewAny, at); err != nil {
			return err
		}
	}

	if err := e.db.UpsertUserProfile(ctx, profile); err != nil {
		return fmt.Errorf("persisting profile %s: %w", profile.Address, err)
	}
	e.notifyProfile(profile)
	return nil
}

// applyStreak updates the consecutive-day review streak and pays the
// per-day bonus. The bonus is paid only when the update advanced or reset
// the streak day; a second text review on the same day changes nothing.
func (e *Engine) applyStreak(profile *models.UserProfile, at time.Time) {
	first := profile.LastReviewAt.IsZero()
	advanced := true

	switch {
	case first:
		profile.ReviewStreak = 1
	case models.UTCDaysBetween(profile.LastReviewAt, at) == 1:
		profile.ReviewStreak++
	case models.UTCDaysBetween(profile.LastReviewAt, at) == 0:
		advanced = false
	default:
		// Gap of more than one day, or clock skew backwards.
		profile.ReviewStreak = 1
	}
	profile.LastReviewAt = at

	if advanced {
		bonus := int64(profile.ReviewStreak) * e.dayBonus
		profile.Points += bonus
		metrics.RecordPointsAwarded(bonus)
		logging.Debug().
			Str("address", profile.Address).
			Int("streak", profile.ReviewStreak).
			Int64("bonus", bonus).
			Msg("Streak bonus awarded")
	}
}

// applyTasks advances every active task of the given type.
func (e *Engine) applyTasks(ctx context.Context, profile *models.UserProfile, taskType models.TaskType, at time.Time) error {
	for _, def := range e.tasks {
		if !def.IsActive || def.Type != taskType {
			continue
		}
		if err := e.applyTask(ctx, profile, def, at); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyTask(ctx context.Context, profile *models.UserProfile, def models.TaskDefinition, at time.Time) error {
	progress, err := e.db.GetTaskProgress(ctx, profile.Address, def.TaskID)
	if errors.Is(err, database.ErrNotFound) {
		progress = &models.TaskProgress{Address: profile.Address, TaskID: def.TaskID}
	} else if err != nil {
		return err
	}

	rolloverProgress(progress, def.Cadence, at)
	if progress.CompletedThisPeriod {
		return nil
	}

	progress.CurrentCount++
	progress.LastProgressAt = at
	if progress.CurrentCount >= def.TargetCount {
		progress.CompletedThisPeriod = true
		profile.Points += def.PointsReward
		metrics.RecordPointsAwarded(def.PointsReward)
		metrics.TasksCompleted.WithLabelValues(def.TaskID).Inc()
		logging.Info().
			Str("address", profile.Address).
			Str("task_id", def.TaskID).
			Int64("reward", def.PointsReward).
			Msg("Task completed")
	}

	if err := e.db.UpsertTaskProgress(ctx, progress); err != nil {
		return fmt.Errorf("persisting task progress %s/%s: %w", profile.Address, def.TaskID, err)
	}
	if e.notifier != nil {
		e.notifier.TaskUpdated(profile.Address, *progress, def)
	}
	return nil
}

// TaskProgressFor returns a user's task progress with lazy period
// rollover applied, so callers never see a stale completed flag.
func (e *Engine) TaskProgressFor(ctx context.Context, address string) ([]models.TaskProgress, error) {
	address = models.NormalizeAddress(address)
	list, err := e.db.TaskProgressFor(ctx, address)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now().UTC()
	for i := range list {
		if def, ok := e.tasks[list[i].TaskID]; ok {
			rolloverProgress(&list[i], def.Cadence, now)
		}
	}
	return list, nil
}

func (e *Engine) notifyProfile(profile *models.UserProfile) {
	if e.notifier != nil {
		e.notifier.ProfileUpdated(*profile)
	}
}

// rolloverProgress resets progress in place when the stored period no
// longer matches the one containing now.
func rolloverProgress(p *models.TaskProgress, cadence models.Cadence, now time.Time) {
	if p.LastProgressAt.IsZero() {
		return
	}
	if samePeriod(cadence, p.LastProgressAt, now) {
		return
	}
	p.CurrentCount = 0
	p.CompletedThisPeriod = false
}

// samePeriod reports whether two instants fall in the same cadence period.
// Daily periods are UTC calendar days, weekly periods are ISO weeks, and
// once-cadence tasks never roll over.
func samePeriod(cadence models.Cadence, a, b time.Time) bool {
	switch cadence {
	case models.CadenceDaily:
		return models.UTCDay(a).Equal(models.UTCDay(b))
	case models.CadenceWeekly:
		ay, aw := a.UTC().ISOWeek()
		by, bw := b.UTC().ISOWeek()
		return ay == by && aw == bw
	case models.CadenceOnce:
		return true
	default:
		return true
	}
}
