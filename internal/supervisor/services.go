// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/rkuska/dappboard/internal/eventstream"
)

// HTTPServer matches the *http.Server lifecycle methods the wrapper
// needs, so tests can substitute a fake.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService wraps an HTTP server as a supervised service. It bridges
// the blocking ListenAndServe pattern to suture's context-aware Serve.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService creates an HTTP server service wrapper.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is converted to
// nil since it is expected on shutdown.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The original context is already canceled; shutdown gets its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture's log messages.
func (h *HTTPService) String() string {
	return "http-server"
}

// ContextHub matches *websocket.Hub's RunWithContext method without
// importing the websocket package.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService wraps the websocket hub as a supervised service.
type HubService struct {
	hub ContextHub
}

// NewHubService creates a websocket hub service wrapper.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service by delegating to the hub's own
// context-aware run loop.
func (w *HubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture's log messages.
func (w *HubService) String() string {
	return "websocket-hub"
}

// SubscriptionRunner matches *eventstream.Manager.
type SubscriptionRunner interface {
	Run(ctx context.Context) error
}

// SubscriptionService wraps the event subscription manager as a
// supervised service.
type SubscriptionService struct {
	manager SubscriptionRunner
}

// NewSubscriptionService creates a subscription service wrapper.
func NewSubscriptionService(manager SubscriptionRunner) *SubscriptionService {
	return &SubscriptionService{manager: manager}
}

// Serve implements suture.Service. A manager without a transport or one
// that is already running is a permanent condition, not a crash, so
// those errors map to suture.ErrDoNotRestart.
func (s *SubscriptionService) Serve(ctx context.Context) error {
	err := s.manager.Run(ctx)
	if errors.Is(err, eventstream.ErrNoTransport) || errors.Is(err, eventstream.ErrAlreadyStarted) {
		return suture.ErrDoNotRestart
	}
	return err
}

// String implements fmt.Stringer for suture's log messages.
func (s *SubscriptionService) String() string {
	return "event-subscription"
}
