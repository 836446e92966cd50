// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

// Package models defines the canonical data model shared by the durable
// store, the aggregate cache and the HTTP layer.
package models

import (
	"strings"
	"time"
)

// Review is a single rating submitted against a dApp. Immutable once
// persisted: the id is derived from the originating ledger transaction and
// redelivery of the same id is a no-op everywhere downstream.
type Review struct {
	ID         string    `json:"id"`
	DappID     string    `json:"dapp_id"`
	Rater      string    `json:"rater"`
	StarRating int       `json:"star_rating"` // 1-5
	Text       string    `json:"text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasText reports whether the review carries prose beyond the star rating.
// Text reviews qualify for streak progression; bare ratings do not.
func (r *Review) HasText() bool {
	return strings.TrimSpace(r.Text) != ""
}

// DappShell holds the immutable descriptive fields of a dApp as read from
// the ledger. Unresolved marks placeholder shells created when the ledger
// reader could not be reached; a later event retries resolution.
type DappShell struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	Unresolved  bool   `json:"unresolved,omitempty"`
}

// UnknownDappName is the placeholder name used when the ledger reader
// cannot resolve a dApp at ingest time.
const UnknownDappName = "unknown dapp"

// PlaceholderShell returns the zero-knowledge shell cached for a dApp the
// ledger reader could not resolve.
func PlaceholderShell(id string) DappShell {
	return DappShell{ID: id, Name: UnknownDappName, Unresolved: true}
}

// Dapp is the denormalized cache projection of a dApp: the descriptive
// shell plus aggregates derived from the review set.
//
// Invariants: AverageRating == mean(StarRating over matching reviews)
// rounded to 2 decimals (0 when there are none); ReviewCount == the number
// of matching reviews.
type Dapp struct {
	DappShell
	ReviewCount   int     `json:"review_count"`
	AverageRating float64 `json:"average_rating"`
}

// NormalizeAddress canonicalizes a rater/user address for use as a profile
// key. Addresses are case-insensitive on the ledger; the store is keyed by
// the lowercase form.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
