// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package api

import (
	"net/http"
	"time"

	"github.com/rkuska/dappboard/internal/logging"
)

// RequestID attaches a request id to the context and the X-Request-ID
// response header, honoring an inbound header when present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// AccessLog logs one line per request at debug level.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", logging.RequestIDFromContext(r.Context())).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
