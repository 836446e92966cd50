// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package ledger

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rkuska/dappboard/internal/config"
	"github.com/rkuska/dappboard/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func testConfig(url string) config.LedgerConfig {
	return config.LedgerConfig{
		URL:                     url,
		Timeout:                 5 * time.Second,
		RequestsPerSecond:       1000,
		BreakerFailureThreshold: 3,
		BreakerTimeout:          time.Minute,
	}
}

func TestNewClientNilWithoutURL(t *testing.T) {
	if c := NewClient(config.LedgerConfig{}); c != nil {
		t.Error("expected nil client when no URL configured")
	}
}

func TestGetDapp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/dapps/d-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"d-1","name":"SwapDex","url":"https://swapdex.example","description":"AMM"}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.APIKey = "secret"
	c := NewClient(cfg)

	shell, err := c.GetDapp(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("GetDapp: %v", err)
	}
	if shell.ID != "d-1" || shell.Name != "SwapDex" {
		t.Errorf("unexpected shell %+v", shell)
	}
	if shell.Unresolved {
		t.Error("resolved shell should not be marked unresolved")
	}
}

func TestGetDappNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.GetDapp(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetDappServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.GetDapp(context.Background(), "d-1")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("server error must not look like not-found")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	for i := 0; i < 3; i++ {
		if _, err := c.GetDapp(context.Background(), "d-1"); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}

	_, err := c.GetDapp(context.Background(), "d-1")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3 (open breaker short-circuits)", hits.Load())
	}
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	for i := 0; i < 10; i++ {
		if _, err := c.GetDapp(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("attempt %d: expected ErrNotFound, got %v", i, err)
		}
	}
}
