// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package progression

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rkuska/dappboard/internal/database"
	"github.com/rkuska/dappboard/internal/logging"
	"github.com/rkuska/dappboard/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

const dayBonus = 10

func newTestEngine(t *testing.T) (*Engine, *database.DB, *recordingNotifier) {
	t.Helper()
	db, err := database.New(database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	n := &recordingNotifier{}
	return NewEngine(db, dayBonus, n), db, n
}

type recordingNotifier struct {
	mu       sync.Mutex
	profiles []models.UserProfile
	tasks    []models.TaskProgress
}

func (n *recordingNotifier) ProfileUpdated(p models.UserProfile) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.profiles = append(n.profiles, p)
}

func (n *recordingNotifier) TaskUpdated(address string, p models.TaskProgress, def models.TaskDefinition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, p)
}

func mustUpsertTask(t *testing.T, e *Engine, def models.TaskDefinition) {
	t.Helper()
	if err := e.UpsertTask(context.Background(), &def); err != nil {
		t.Fatalf("UpsertTask %s: %v", def.TaskID, err)
	}
}

var day1 = time.Date(2026, 8, 10, 15, 0, 0, 0, time.UTC)

func TestGetOrCreateProfile(t *testing.T) {
	e, db, _ := newTestEngine(t)
	ctx := context.Background()

	p, err := e.GetOrCreateProfile(ctx, "0xABCD")
	if err != nil {
		t.Fatalf("GetOrCreateProfile: %v", err)
	}
	if p.Address != "0xabcd" {
		t.Errorf("address not normalized: %q", p.Address)
	}
	if p.Points != 0 || p.ReviewStreak != 0 {
		t.Errorf("new profile should be empty, got %+v", p)
	}

	// Created profile is durable.
	stored, err := db.GetUserProfile(ctx, "0xabcd")
	if err != nil {
		t.Fatalf("profile not persisted: %v", err)
	}
	if stored.Address != "0xabcd" {
		t.Errorf("stored address = %q", stored.Address)
	}
}

func TestFirstTextReviewStartsStreak(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	if err := e.ProcessReview(ctx, "0xa", true, day1); err != nil {
		t.Fatalf("ProcessReview: %v", err)
	}

	p, err := e.GetOrCreateProfile(ctx, "0xa")
	if err != nil {
		t.Fatal(err)
	}
	if p.ReviewStreak != 1 {
		t.Errorf("streak = %d, want 1", p.ReviewStreak)
	}
	if p.Points != 1*dayBonus {
		t.Errorf("points = %d, want %d", p.Points, dayBonus)
	}
	if !p.LastReviewAt.Equal(day1) {
		t.Errorf("lastReviewAt = %s, want %s", p.LastReviewAt, day1)
	}
}

func TestStreakLaws(t *testing.T) {
	tests := []struct {
		name       string
		reviews    []time.Time
		wantStreak int
		wantPoints int64
	}{
		{
			name:       "consecutive days increment",
			reviews:    []time.Time{day1, day1.Add(24 * time.Hour), day1.Add(48 * time.Hour)},
			wantStreak: 3,
			wantPoints: (1 + 2 + 3) * dayBonus,
		},
		{
			name:       "same day repeat does not change streak or pay again",
			reviews:    []time.Time{day1, day1.Add(time.Hour)},
			wantStreak: 1,
			wantPoints: 1 * dayBonus,
		},
		{
			name:       "gap over one day resets to 1 and pays",
			reviews:    []time.Time{day1, day1.Add(24 * time.Hour), day1.Add(5 * 24 * time.Hour)},
			wantStreak: 1,
			wantPoints: (1 + 2 + 1) * dayBonus,
		},
		{
			name: "day boundary not duration based",
			// 23:30 then 00:30 next day is a different UTC calendar day.
			reviews: []time.Time{
				time.Date(2026, 8, 10, 23, 30, 0, 0, time.UTC),
				time.Date(2026, 8, 11, 0, 30, 0, 0, time.UTC),
			},
			wantStreak: 2,
			wantPoints: (1 + 2) * dayBonus,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _ := newTestEngine(t)
			ctx := context.Background()
			for _, at := range tt.reviews {
				if err := e.ProcessReview(ctx, "0xa", true, at); err != nil {
					t.Fatalf("ProcessReview(%s): %v", at, err)
				}
			}
			p, err := e.GetOrCreateProfile(ctx, "0xa")
			if err != nil {
				t.Fatal(err)
			}
			if p.ReviewStreak != tt.wantStreak {
				t.Errorf("streak = %d, want %d", p.ReviewStreak, tt.wantStreak)
			}
			if p.Points != tt.wantPoints {
				t.Errorf("points = %d, want %d", p.Points, tt.wantPoints)
			}
		})
	}
}

func TestRatingOnlyReviewDoesNotTouchStreak(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	if err := e.ProcessReview(ctx, "0xa", false, day1); err != nil {
		t.Fatal(err)
	}
	p, _ := e.GetOrCreateProfile(ctx, "0xa")
	if p.ReviewStreak != 0 || p.Points != 0 {
		t.Errorf("rating-only review must not touch streak or pay bonus, got %+v", p)
	}
	if !p.LastReviewAt.IsZero() {
		t.Error("rating-only review must not advance lastReviewAt")
	}
}

func TestDailyLoginTaskIdempotentSameDay(t *testing.T) {
	e, db, n := newTestEngine(t)
	ctx := context.Background()
	mustUpsertTask(t, e, models.TaskDefinition{
		TaskID: "login-1", Type: models.TaskTypeDailyLogin,
		Cadence: models.CadenceDaily, PointsReward: 50, TargetCount: 1, IsActive: true,
	})

	p1, err := e.ProcessLogin(ctx, "0xa")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	p2, err := e.ProcessLogin(ctx, "0xa")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if p1.Points != 50 || p2.Points != 50 {
		t.Errorf("points after logins = %d then %d, want 50 both times", p1.Points, p2.Points)
	}

	progress, err := db.GetTaskProgress(ctx, "0xa", "login-1")
	if err != nil {
		t.Fatal(err)
	}
	if progress.CurrentCount != 1 || !progress.CompletedThisPeriod {
		t.Errorf("progress = %+v, want count 1 completed", progress)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.profiles) != 2 {
		t.Errorf("profile notifications = %d, want 2", len(n.profiles))
	}
}

func TestTaskTargetCount(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	mustUpsertTask(t, e, models.TaskDefinition{
		TaskID: "rate-3", Type: models.TaskTypeRateAny,
		Cadence: models.CadenceDaily, PointsReward: 100, TargetCount: 3, IsActive: true,
	})

	for i := 0; i < 2; i++ {
		if err := e.ProcessReview(ctx, "0xa", false, day1.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	p, _ := e.GetOrCreateProfile(ctx, "0xa")
	if p.Points != 0 {
		t.Errorf("points before target = %d, want 0", p.Points)
	}

	if err := e.ProcessReview(ctx, "0xa", false, day1.Add(3*time.Minute)); err != nil {
		t.Fatal(err)
	}
	p, _ = e.GetOrCreateProfile(ctx, "0xa")
	if p.Points != 100 {
		t.Errorf("points at target = %d, want 100", p.Points)
	}
}

func TestTextReviewAdvancesBothReviewTasks(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	mustUpsertTask(t, e, models.TaskDefinition{
		TaskID: "rate-1", Type: models.TaskTypeRateAny,
		Cadence: models.CadenceDaily, PointsReward: 20, TargetCount: 1, IsActive: true,
	})
	mustUpsertTask(t, e, models.TaskDefinition{
		TaskID: "review-1", Type: models.TaskTypeReviewAny,
		Cadence: models.CadenceDaily, PointsReward: 30, TargetCount: 1, IsActive: true,
	})

	if err := e.ProcessReview(ctx, "0xa", true, day1); err != nil {
		t.Fatal(err)
	}
	p, _ := e.GetOrCreateProfile(ctx, "0xa")
	want := int64(20 + 30 + 1*dayBonus)
	if p.Points != want {
		t.Errorf("points = %d, want %d", p.Points, want)
	}
}

func TestInactiveTaskIgnored(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	mustUpsertTask(t, e, models.TaskDefinition{
		TaskID: "dormant", Type: models.TaskTypeRateAny,
		Cadence: models.CadenceDaily, PointsReward: 999, TargetCount: 1, IsActive: false,
	})

	if err := e.ProcessReview(ctx, "0xa", false, day1); err != nil {
		t.Fatal(err)
	}
	p, _ := e.GetOrCreateProfile(ctx, "0xa")
	if p.Points != 0 {
		t.Errorf("inactive task must not award, points = %d", p.Points)
	}
	if got := len(e.ActiveTasks()); got != 0 {
		t.Errorf("ActiveTasks = %d, want 0", got)
	}
}

func TestDailyRolloverResetsProgress(t *testing.T) {
	e, db, _ := newTestEngine(t)
	ctx := context.Background()
	mustUpsertTask(t, e, models.TaskDefinition{
		TaskID: "rate-1", Type: models.TaskTypeRateAny,
		Cadence: models.CadenceDaily, PointsReward: 20, TargetCount: 1, IsActive: true,
	})

	if err := e.ProcessReview(ctx, "0xa", false, day1); err != nil {
		t.Fatal(err)
	}
	if err := e.ProcessReview(ctx, "0xa", false, day1.Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}

	p, _ := e.GetOrCreateProfile(ctx, "0xa")
	if p.Points != 40 {
		t.Errorf("points = %d, want 40 (one reward per day)", p.Points)
	}
	progress, err := db.GetTaskProgress(ctx, "0xa", "rate-1")
	if err != nil {
		t.Fatal(err)
	}
	if progress.CurrentCount != 1 {
		t.Errorf("count after rollover = %d, want 1", progress.CurrentCount)
	}
}

func TestOnceCadenceNeverRepeats(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	mustUpsertTask(t, e, models.TaskDefinition{
		TaskID: "first-rating", Type: models.TaskTypeRateAny,
		Cadence: models.CadenceOnce, PointsReward: 500, TargetCount: 1, IsActive: true,
	})

	if err := e.ProcessReview(ctx, "0xa", false, day1); err != nil {
		t.Fatal(err)
	}
	if err := e.ProcessReview(ctx, "0xa", false, day1.Add(40*24*time.Hour)); err != nil {
		t.Fatal(err)
	}

	p, _ := e.GetOrCreateProfile(ctx, "0xa")
	if p.Points != 500 {
		t.Errorf("once task points = %d, want 500", p.Points)
	}
}

func TestTaskProgressForAppliesRollover(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	mustUpsertTask(t, e, models.TaskDefinition{
		TaskID: "rate-1", Type: models.TaskTypeRateAny,
		Cadence: models.CadenceDaily, PointsReward: 20, TargetCount: 1, IsActive: true,
	})

	// Progress recorded far in the past; reading it today must show a
	// reset period even though nothing rewrote the row.
	if err := e.ProcessReview(ctx, "0xa", false, day1); err != nil {
		t.Fatal(err)
	}

	list, err := e.TaskProgressFor(ctx, "0xa")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("progress rows = %d, want 1", len(list))
	}
	if list[0].CompletedThisPeriod || list[0].CurrentCount != 0 {
		t.Errorf("stale progress not rolled over on read: %+v", list[0])
	}
}

func TestLoadTasks(t *testing.T) {
	e, db, _ := newTestEngine(t)
	ctx := context.Background()

	def := &models.TaskDefinition{
		TaskID: "seeded", Type: models.TaskTypeDailyLogin,
		Cadence: models.CadenceDaily, PointsReward: 10, TargetCount: 1, IsActive: true,
	}
	if err := db.UpsertTaskDefinition(ctx, def); err != nil {
		t.Fatal(err)
	}

	if err := e.LoadTasks(ctx); err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	tasks := e.ActiveTasks()
	if len(tasks) != 1 || tasks[0].TaskID != "seeded" {
		t.Errorf("ActiveTasks = %+v, want the seeded task", tasks)
	}
}
