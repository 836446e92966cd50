// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/rkuska/dappboard/internal/cache"
	"github.com/rkuska/dappboard/internal/config"
	"github.com/rkuska/dappboard/internal/eventstream"
	"github.com/rkuska/dappboard/internal/models"
	"github.com/rkuska/dappboard/internal/progression"
	"github.com/rkuska/dappboard/internal/validation"
	ws "github.com/rkuska/dappboard/internal/websocket"
)

// Handler serves the read API. All list endpoints read cache snapshots;
// they never block on ingestion.
type Handler struct {
	cache    *cache.Store
	engine   *progression.Engine
	hub      *ws.Hub
	manager  *eventstream.Manager
	cfg      config.APIConfig
	upgrader websocket.Upgrader
}

// NewHandler creates the API handler set.
func NewHandler(store *cache.Store, engine *progression.Engine, hub *ws.Hub, manager *eventstream.Manager, cfg config.APIConfig) *Handler {
	return &Handler{
		cache:    store,
		engine:   engine,
		hub:      hub,
		manager:  manager,
		cfg:      cfg,
		upgrader: newUpgrader(cfg.CORSAllowedOrigin),
	}
}

// HealthData is the payload of the health endpoint.
type HealthData struct {
	Status        string `json:"status"`
	Subscription  string `json:"subscription"`
	CachedReviews int    `json:"cached_reviews"`
	WSClients     int    `json:"ws_clients"`
}

// Health reports liveness and the subscription state. The service is
// healthy even with the subscription down; reads serve last-known state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	subscription := "disabled"
	if h.manager != nil {
		subscription = h.manager.State().String()
	}
	rw.Success(HealthData{
		Status:        "ok",
		Subscription:  subscription,
		CachedReviews: h.cache.ReviewCount(),
		WSClients:     h.hub.ClientCount(),
	})
}

// ListDapps returns all dApps with aggregates, paginated.
func (h *Handler) ListDapps(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	limit, offset, ok := h.pagination(rw, r)
	if !ok {
		return
	}

	dapps := h.cache.ListDapps()
	page, meta := paginate(dapps, limit, offset)
	rw.SuccessWithPagination(page, meta)
}

// GetDapp returns one dApp with aggregates.
func (h *Handler) GetDapp(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id := chi.URLParam(r, "id")
	dapp, ok := h.cache.Dapp(id)
	if !ok {
		rw.NotFound("dApp not found")
		return
	}
	rw.Success(dapp)
}

// DappReviews returns a dApp's reviews, most recent first.
func (h *Handler) DappReviews(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	limit, offset, ok := h.pagination(rw, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if _, ok := h.cache.Dapp(id); !ok {
		rw.NotFound("dApp not found")
		return
	}
	reviews := h.cache.ReviewsForDapp(id)
	page, meta := paginate(reviews, limit, offset)
	rw.SuccessWithPagination(page, meta)
}

// UserReviews returns a rater's reviews, most recent first.
func (h *Handler) UserReviews(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	limit, offset, ok := h.pagination(rw, r)
	if !ok {
		return
	}

	address := chi.URLParam(r, "address")
	reviews := h.cache.ReviewsByRater(address)
	page, meta := paginate(reviews, limit, offset)
	rw.SuccessWithPagination(page, meta)
}

// GetProfile returns a user's progression profile, creating it on first
// reference.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	address := chi.URLParam(r, "address")
	if err := validateAddress(address); err != nil {
		rw.ValidationError(err.Error(), err.ToAPIError().Details)
		return
	}

	profile, err := h.engine.GetOrCreateProfile(r.Context(), address)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(profile)
}

// Login records a login touch and advances daily-login tasks.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	address := chi.URLParam(r, "address")
	if err := validateAddress(address); err != nil {
		rw.ValidationError(err.Error(), err.ToAPIError().Details)
		return
	}

	profile, err := h.engine.ProcessLogin(r.Context(), address)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(profile)
}

// ListTasks returns the active task definitions.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(h.engine.ActiveTasks())
}

// UserTasks returns a user's task progress with period rollover applied.
func (h *Handler) UserTasks(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	address := chi.URLParam(r, "address")
	if err := validateAddress(address); err != nil {
		rw.ValidationError(err.Error(), err.ToAPIError().Details)
		return
	}

	progress, err := h.engine.TaskProgressFor(r.Context(), address)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(progress)
}

// taskUpsertRequest is the admin payload for creating or updating a task.
type taskUpsertRequest struct {
	TaskID       string `json:"task_id" validate:"required,min=1,max=64"`
	Type         string `json:"type" validate:"required,oneof=daily-login rate-any-dapp review-any-dapp"`
	Cadence      string `json:"cadence" validate:"required,oneof=daily weekly once"`
	PointsReward int64  `json:"points_reward" validate:"gte=0"`
	TargetCount  int    `json:"target_count" validate:"gte=1"`
	IsActive     bool   `json:"is_active"`
}

// UpsertTask creates or updates a task definition.
func (h *Handler) UpsertTask(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req taskUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("malformed JSON body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	def := &models.TaskDefinition{
		TaskID:       req.TaskID,
		Type:         models.TaskType(req.Type),
		Cadence:      models.Cadence(req.Cadence),
		PointsReward: req.PointsReward,
		TargetCount:  req.TargetCount,
		IsActive:     req.IsActive,
	}
	if err := h.engine.UpsertTask(r.Context(), def); err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(def)
}

type addressParam struct {
	Address string `validate:"required,wallet_address"`
}

func validateAddress(address string) *validation.RequestValidationError {
	return validation.ValidateStruct(&addressParam{Address: address})
}

// pagination parses limit and offset query params against configured
// bounds. Reports false after writing an error response.
func (h *Handler) pagination(rw *ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = h.cfg.DefaultPageSize

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			rw.BadRequest("limit must be a positive integer")
			return 0, 0, false
		}
		if parsed > h.cfg.MaxPageSize {
			parsed = h.cfg.MaxPageSize
		}
		limit = parsed
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			rw.BadRequest("offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}

// paginate slices one page out of a full snapshot.
func paginate[T any](items []T, limit, offset int) ([]T, *PaginationMeta) {
	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := items[offset:end]
	return page, &PaginationMeta{
		Total:   total,
		Count:   len(page),
		Offset:  offset,
		Limit:   limit,
		HasMore: end < total,
	}
}
