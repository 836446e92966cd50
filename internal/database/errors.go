// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package database

import (
	"errors"
	"io"
)

// ErrNotFound is returned when a keyed read finds no row. Callers handle it
// by lazy creation (profiles, progress) rather than surfacing it as fatal.
var ErrNotFound = errors.New("database: not found")

// closeQuietly closes a resource and explicitly ignores any error.
// Used in error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close() // best-effort cleanup
	}
}
