// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

// Package cache holds the in-memory read models: dApp aggregates and
// review lists. The durable store is the source of truth; the cache is
// rebuilt from it at startup and kept in sync by the ingest pipeline.
package cache

import (
	"math"
	"sort"
	"sync"

	"github.com/rkuska/dappboard/internal/models"
)

// Store is the in-memory aggregate cache. All accessors return copies so
// callers can never mutate cached state.
type Store struct {
	mu sync.RWMutex

	dapps          map[string]*models.Dapp
	reviewsByDapp  map[string][]*models.Review
	reviewsByRater map[string][]*models.Review
	reviewIDs      map[string]struct{}
}

// NewStore creates an empty cache.
func NewStore() *Store {
	return &Store{
		dapps:          make(map[string]*models.Dapp),
		reviewsByDapp:  make(map[string][]*models.Review),
		reviewsByRater: make(map[string][]*models.Review),
		reviewIDs:      make(map[string]struct{}),
	}
}

// Load replaces the entire cache contents from durable state in one
// atomic swap. Readers see either the old or the new cache, never a mix.
func (s *Store) Load(shells []*models.DappShell, reviews []*models.Review) {
	dapps := make(map[string]*models.Dapp, len(shells))
	for _, shell := range shells {
		dapps[shell.ID] = &models.Dapp{DappShell: *shell}
	}

	byDapp := make(map[string][]*models.Review)
	byRater := make(map[string][]*models.Review)
	ids := make(map[string]struct{}, len(reviews))

	for _, r := range reviews {
		if _, seen := ids[r.ID]; seen {
			continue
		}
		ids[r.ID] = struct{}{}
		rc := *r
		if _, ok := dapps[rc.DappID]; !ok {
			// Review for a dApp with no shell row. Should not happen
			// once shells are persisted, but stay consistent anyway.
			dapps[rc.DappID] = &models.Dapp{DappShell: models.PlaceholderShell(rc.DappID)}
		}
		byDapp[rc.DappID] = append(byDapp[rc.DappID], &rc)
		byRater[rc.Rater] = append(byRater[rc.Rater], &rc)
	}

	for _, list := range byDapp {
		sortReviews(list)
	}
	for _, list := range byRater {
		sortReviews(list)
	}
	for id, d := range dapps {
		recompute(d, byDapp[id])
	}

	s.mu.Lock()
	s.dapps = dapps
	s.reviewsByDapp = byDapp
	s.reviewsByRater = byRater
	s.reviewIDs = ids
	s.mu.Unlock()
}

// HasReview reports whether a review id is already cached.
func (s *Store) HasReview(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reviewIDs[id]
	return ok
}

// ApplyReview inserts one review and refreshes its dApp's aggregates.
// The shell is used when the dApp is not cached yet. Duplicate ids are
// ignored, the first applied payload wins. Reports whether the review
// was newly applied.
func (s *Store) ApplyReview(review *models.Review, shell *models.DappShell) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.reviewIDs[review.ID]; seen {
		return false
	}
	s.reviewIDs[review.ID] = struct{}{}

	rc := *review
	d, ok := s.dapps[rc.DappID]
	if !ok {
		if shell == nil {
			ph := models.PlaceholderShell(rc.DappID)
			shell = &ph
		}
		d = &models.Dapp{DappShell: *shell}
		s.dapps[rc.DappID] = d
	} else if shell != nil && d.Unresolved && !shell.Unresolved {
		// A late ledger resolution upgrades the placeholder.
		d.DappShell = *shell
	}

	s.reviewsByDapp[rc.DappID] = insertSorted(s.reviewsByDapp[rc.DappID], &rc)
	s.reviewsByRater[rc.Rater] = insertSorted(s.reviewsByRater[rc.Rater], &rc)
	recompute(d, s.reviewsByDapp[rc.DappID])
	return true
}

// Dapp returns a dApp with aggregates by id.
func (s *Store) Dapp(id string) (models.Dapp, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dapps[id]
	if !ok {
		return models.Dapp{}, false
	}
	return *d, true
}

// ListDapps returns all cached dApps sorted by review count descending,
// then id for a stable order.
func (s *Store) ListDapps() []models.Dapp {
	s.mu.RLock()
	out := make([]models.Dapp, 0, len(s.dapps))
	for _, d := range s.dapps {
		out = append(out, *d)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ReviewCount != out[j].ReviewCount {
			return out[i].ReviewCount > out[j].ReviewCount
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ReviewsForDapp returns a dApp's reviews, most recent first.
func (s *Store) ReviewsForDapp(dappID string) []models.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyReviews(s.reviewsByDapp[dappID])
}

// ReviewsByRater returns a rater's reviews, most recent first.
func (s *Store) ReviewsByRater(rater string) []models.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyReviews(s.reviewsByRater[models.NormalizeAddress(rater)])
}

// ReviewCount returns the total number of cached reviews.
func (s *Store) ReviewCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reviewIDs)
}

func copyReviews(list []*models.Review) []models.Review {
	out := make([]models.Review, len(list))
	for i, r := range list {
		out[i] = *r
	}
	return out
}

// recompute refreshes count and average from the full review list.
// The average is rounded to two decimals; zero when the list is empty.
func recompute(d *models.Dapp, reviews []*models.Review) {
	d.ReviewCount = len(reviews)
	if len(reviews) == 0 {
		d.AverageRating = 0
		return
	}
	sum := 0
	for _, r := range reviews {
		sum += r.StarRating
	}
	d.AverageRating = math.Round(float64(sum)/float64(len(reviews))*100) / 100
}

// sortReviews orders most recent first, id as a stable tie-break.
func sortReviews(list []*models.Review) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// insertSorted places r into an already-sorted list keeping the order.
func insertSorted(list []*models.Review, r *models.Review) []*models.Review {
	idx := sort.Search(len(list), func(i int) bool {
		if !list[i].CreatedAt.Equal(r.CreatedAt) {
			return list[i].CreatedAt.Before(r.CreatedAt)
		}
		return list[i].ID > r.ID
	})
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = r
	return list
}
