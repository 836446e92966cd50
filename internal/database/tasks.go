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

// UpsertTaskDefinition persists a task definition. Called by the admin
// interface, which owns task configuration.
func (db *DB) UpsertTaskDefinition(ctx context.Context, t *models.TaskDefinition) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO task_definitions (task_id, task_type, cadence, points_reward, target_count, is_active)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (task_id) DO UPDATE SET
			task_type = excluded.task_type,
			cadence = excluded.cadence,
			points_reward = excluded.points_reward,
			target_count = excluded.target_count,
			is_active = excluded.is_active`,
		t.TaskID, string(t.Type), string(t.Cadence), t.PointsReward, t.TargetCount, t.IsActive)
	if err != nil {
		metrics.RecordDBError("upsert", "task_definitions")
		return fmt.Errorf("upsert task %s: %w", t.TaskID, err)
	}
	return nil
}

// AllTaskDefinitions reads every task definition for the startup load.
func (db *DB) AllTaskDefinitions(ctx context.Context) ([]models.TaskDefinition, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT task_id, task_type, cadence, points_reward, target_count, is_active
		 FROM task_definitions ORDER BY task_id`)
	if err != nil {
		metrics.RecordDBError("select", "task_definitions")
		return nil, fmt.Errorf("read all tasks: %w", err)
	}
	defer closeQuietly(rows)

	var tasks []models.TaskDefinition
	for rows.Next() {
		var (
			t       models.TaskDefinition
			typ     string
			cadence string
		)
		if err := rows.Scan(&t.TaskID, &typ, &cadence, &t.PointsReward, &t.TargetCount, &t.IsActive); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Type = models.TaskType(typ)
		t.Cadence = models.Cadence(cadence)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// GetTaskProgress reads one (address, task) progress row.
// Returns ErrNotFound when no progress exists yet.
func (db *DB) GetTaskProgress(ctx context.Context, address, taskID string) (*models.TaskProgress, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT address, task_id, current_count, last_progress_at, completed_this_period
		 FROM task_progress WHERE address = ? AND task_id = ?`,
		models.NormalizeAddress(address), taskID)

	p, err := scanTaskProgress(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordDBError("select", "task_progress")
		return nil, fmt.Errorf("get task progress %s/%s: %w", address, taskID, err)
	}
	return p, nil
}

// UpsertTaskProgress persists one progress row.
func (db *DB) UpsertTaskProgress(ctx context.Context, p *models.TaskProgress) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO task_progress (address, task_id, current_count, last_progress_at, completed_this_period)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (address, task_id) DO UPDATE SET
			current_count = excluded.current_count,
			last_progress_at = excluded.last_progress_at,
			completed_this_period = excluded.completed_this_period`,
		models.NormalizeAddress(p.Address), p.TaskID, p.CurrentCount,
		nullTime(p.LastProgressAt), p.CompletedThisPeriod)
	if err != nil {
		metrics.RecordDBError("upsert", "task_progress")
		return fmt.Errorf("upsert task progress %s/%s: %w", p.Address, p.TaskID, err)
	}
	return nil
}

// TaskProgressFor reads all progress rows for one address.
func (db *DB) TaskProgressFor(ctx context.Context, address string) ([]models.TaskProgress, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT address, task_id, current_count, last_progress_at, completed_this_period
		 FROM task_progress WHERE address = ? ORDER BY task_id`,
		models.NormalizeAddress(address))
	if err != nil {
		metrics.RecordDBError("select", "task_progress")
		return nil, fmt.Errorf("read task progress for %s: %w", address, err)
	}
	defer closeQuietly(rows)

	var progress []models.TaskProgress
	for rows.Next() {
		p, err := scanTaskProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task progress: %w", err)
		}
		progress = append(progress, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task progress: %w", err)
	}
	return progress, nil
}

func scanTaskProgress(row rowScanner) (*models.TaskProgress, error) {
	var (
		p    models.TaskProgress
		last sql.NullTime
	)
	if err := row.Scan(&p.Address, &p.TaskID, &p.CurrentCount, &last, &p.CompletedThisPeriod); err != nil {
		return nil, err
	}
	p.LastProgressAt = last.Time
	return &p, nil
}
