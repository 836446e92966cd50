// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rkuska/dappboard/internal/config"
)

// NewRouter wires all HTTP routes.
func NewRouter(h *Handler, cfg config.APIConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(AccessLog)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigin,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))

		r.Get("/health", h.Health)
		r.Get("/ws", h.WebSocket)

		r.Route("/dapps", func(r chi.Router) {
			r.Get("/", h.ListDapps)
			r.Get("/{id}", h.GetDapp)
			r.Get("/{id}/reviews", h.DappReviews)
		})

		r.Route("/users/{address}", func(r chi.Router) {
			r.Get("/profile", h.GetProfile)
			r.Post("/login", h.Login)
			r.Get("/reviews", h.UserReviews)
			r.Get("/tasks", h.UserTasks)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Put("/tasks", h.UpsertTask)
		})
	})

	return r
}
