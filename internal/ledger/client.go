// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

// Package ledger reads dApp registration records from the on-chain indexer
// HTTP API. The reader is best-effort: callers fall back to placeholder
// shells when a lookup fails, so every failure mode here is non-fatal.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/rkuska/dappboard/internal/config"
	"github.com/rkuska/dappboard/internal/logging"
	"github.com/rkuska/dappboard/internal/models"
)

// ErrNotFound is returned when the ledger has no record for a dApp id.
var ErrNotFound = errors.New("ledger: dapp not found")

// Reader resolves dApp ids to registration shells.
type Reader interface {
	GetDapp(ctx context.Context, id string) (*models.DappShell, error)
}

// Client is an HTTP Reader with rate limiting and a circuit breaker in
// front of the indexer.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*models.DappShell]
}

// NewClient creates a ledger reader from config. Returns nil when no URL
// is configured; callers treat a nil Reader as always-unresolved.
func NewClient(cfg config.LedgerConfig) *Client {
	if cfg.URL == "" {
		return nil
	}

	c := &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}

	cbSettings := gobreaker.Settings{
		Name:    "ledger-reader",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Ledger circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// A missing dApp is a valid answer, not an indexer failure.
			return err == nil || errors.Is(err, ErrNotFound)
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker[*models.DappShell](cbSettings)

	return c
}

// dappRecord is the indexer's wire shape for a registered dApp.
type dappRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// GetDapp fetches the registration shell for id. Returns ErrNotFound when
// the ledger has no record, and a wrapped error for transport or indexer
// failures.
func (c *Client) GetDapp(ctx context.Context, id string) (*models.DappShell, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ledger rate limit wait: %w", err)
	}

	return c.breaker.Execute(func() (*models.DappShell, error) {
		return c.fetch(ctx, id)
	})
}

func (c *Client) fetch(ctx context.Context, id string) (*models.DappShell, error) {
	url := fmt.Sprintf("%s/v1/dapps/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building ledger request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger request: %w", err)
	}
	defer closeQuietly(resp.Body)

	logging.Debug().
		Str("dapp_id", id).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Ledger lookup")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ledger returned status %d for dapp %s", resp.StatusCode, id)
	}

	var record dappRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("decoding ledger response: %w", err)
	}
	if record.ID == "" {
		record.ID = id
	}

	return &models.DappShell{
		ID:          record.ID,
		Name:        record.Name,
		URL:         record.URL,
		Description: record.Description,
	}, nil
}
