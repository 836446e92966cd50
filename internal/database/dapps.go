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

// UpsertDapp persists a descriptive dApp shell. Shells are cached durably
// so a restart can rebuild the aggregate cache without the ledger reader.
func (db *DB) UpsertDapp(ctx context.Context, d *models.DappShell) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO dapps (id, name, url, description, unresolved)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			description = excluded.description,
			unresolved = excluded.unresolved`,
		d.ID, d.Name, d.URL, d.Description, d.Unresolved)
	if err != nil {
		metrics.RecordDBError("upsert", "dapps")
		return fmt.Errorf("upsert dapp %s: %w", d.ID, err)
	}
	return nil
}

// AllDapps reads every cached dApp shell for the startup bulk load.
func (db *DB) AllDapps(ctx context.Context) ([]models.DappShell, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, url, description, unresolved FROM dapps ORDER BY id`)
	if err != nil {
		metrics.RecordDBError("select", "dapps")
		return nil, fmt.Errorf("read all dapps: %w", err)
	}
	defer closeQuietly(rows)

	var dapps []models.DappShell
	for rows.Next() {
		var (
			d        models.DappShell
			url      sql.NullString
			descr    sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Name, &url, &descr, &d.Unresolved); err != nil {
			return nil, fmt.Errorf("scan dapp: %w", err)
		}
		d.URL = url.String
		d.Description = descr.String
		dapps = append(dapps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dapps: %w", err)
	}
	return dapps, nil
}
