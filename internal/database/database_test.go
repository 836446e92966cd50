// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package database

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rkuska/dappboard/internal/logging"
	"github.com/rkuska/dappboard/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertReviewIfAbsent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	review := &models.Review{
		ID:         "tx-1",
		DappID:     "dapp-1",
		Rater:      "0xabc",
		StarRating: 5,
		Text:       "solid swap UX",
		CreatedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	inserted, err := db.InsertReviewIfAbsent(ctx, review)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Fatal("first insert reported duplicate")
	}

	// Same id, different payload: first write wins.
	redelivery := *review
	redelivery.StarRating = 1
	inserted, err = db.InsertReviewIfAbsent(ctx, &redelivery)
	if err != nil {
		t.Fatalf("redelivery insert: %v", err)
	}
	if inserted {
		t.Fatal("redelivery was inserted")
	}

	got, err := db.GetReview(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetReview: %v", err)
	}
	if got.StarRating != 5 || got.Text != "solid swap UX" {
		t.Errorf("stored review mutated by redelivery: %+v", got)
	}
	if !got.CreatedAt.Equal(review.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, review.CreatedAt)
	}
}

func TestGetReviewNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetReview(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAllReviews(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"tx-1", "tx-2", "tx-3"} {
		_, err := db.InsertReviewIfAbsent(ctx, &models.Review{
			ID:         id,
			DappID:     "dapp-1",
			Rater:      "0xabc",
			StarRating: i + 1,
			CreatedAt:  time.Date(2026, 8, 1, i, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := db.AllReviews(ctx)
	if err != nil {
		t.Fatalf("AllReviews: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len = %d, want 3", len(all))
	}
}

func TestUpsertDapp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	placeholder := models.PlaceholderShell("dapp-1")
	if err := db.UpsertDapp(ctx, &placeholder); err != nil {
		t.Fatalf("upsert placeholder: %v", err)
	}

	// A later resolution replaces the placeholder.
	resolved := models.DappShell{ID: "dapp-1", Name: "SwapDex", URL: "https://swapdex.example"}
	if err := db.UpsertDapp(ctx, &resolved); err != nil {
		t.Fatalf("upsert resolved: %v", err)
	}

	all, err := db.AllDapps(ctx)
	if err != nil {
		t.Fatalf("AllDapps: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1", len(all))
	}
	if all[0].Name != "SwapDex" || all[0].Unresolved {
		t.Errorf("shell after upgrade = %+v", all[0])
	}
}

func TestUserProfileRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetUserProfile(ctx, "0xabc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	profile := &models.UserProfile{
		Address:      "0xabc",
		Points:       120,
		ReviewStreak: 3,
		LastReviewAt: time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC),
	}
	if err := db.UpsertUserProfile(ctx, profile); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.GetUserProfile(ctx, "0xabc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Points != 120 || got.ReviewStreak != 3 {
		t.Errorf("profile = %+v", got)
	}
	if !got.LastReviewAt.Equal(profile.LastReviewAt) {
		t.Errorf("LastReviewAt = %v, want %v", got.LastReviewAt, profile.LastReviewAt)
	}
	if !got.LastLoginAt.IsZero() {
		t.Errorf("LastLoginAt = %v, want zero", got.LastLoginAt)
	}

	profile.Points = 150
	if err := db.UpsertUserProfile(ctx, profile); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = db.GetUserProfile(ctx, "0xabc")
	if err != nil {
		t.Fatal(err)
	}
	if got.Points != 150 {
		t.Errorf("points after update = %d, want 150", got.Points)
	}
}

func TestTaskDefinitionAndProgress(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	def := &models.TaskDefinition{
		TaskID:       "review-2",
		Type:         models.TaskTypeReviewAny,
		Cadence:      models.CadenceDaily,
		PointsReward: 30,
		TargetCount:  2,
		IsActive:     true,
	}
	if err := db.UpsertTaskDefinition(ctx, def); err != nil {
		t.Fatalf("upsert definition: %v", err)
	}

	def.PointsReward = 40
	if err := db.UpsertTaskDefinition(ctx, def); err != nil {
		t.Fatalf("update definition: %v", err)
	}
	defs, err := db.AllTaskDefinitions(ctx)
	if err != nil {
		t.Fatalf("AllTaskDefinitions: %v", err)
	}
	if len(defs) != 1 || defs[0].PointsReward != 40 {
		t.Errorf("definitions = %+v", defs)
	}

	_, err = db.GetTaskProgress(ctx, "0xabc", "review-2")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	progress := &models.TaskProgress{
		Address:        "0xabc",
		TaskID:         "review-2",
		CurrentCount:   1,
		LastProgressAt: time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC),
	}
	if err := db.UpsertTaskProgress(ctx, progress); err != nil {
		t.Fatalf("upsert progress: %v", err)
	}

	progress.CurrentCount = 2
	progress.CompletedThisPeriod = true
	if err := db.UpsertTaskProgress(ctx, progress); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	got, err := db.GetTaskProgress(ctx, "0xabc", "review-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentCount != 2 || !got.CompletedThisPeriod {
		t.Errorf("progress = %+v", got)
	}

	list, err := db.TaskProgressFor(ctx, "0xabc")
	if err != nil {
		t.Fatalf("TaskProgressFor: %v", err)
	}
	if len(list) != 1 || list[0].TaskID != "review-2" {
		t.Errorf("list = %+v", list)
	}
}
