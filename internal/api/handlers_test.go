// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/rkuska/dappboard/internal/cache"
	"github.com/rkuska/dappboard/internal/config"
	"github.com/rkuska/dappboard/internal/database"
	"github.com/rkuska/dappboard/internal/logging"
	"github.com/rkuska/dappboard/internal/models"
	"github.com/rkuska/dappboard/internal/progression"
	ws "github.com/rkuska/dappboard/internal/websocket"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func newTestServer(t *testing.T) (*httptest.Server, *cache.Store, *progression.Engine) {
	t.Helper()
	db, err := database.New(database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := cache.NewStore()
	engine := progression.NewEngine(db, 10, nil)
	hub := ws.NewHub()

	cfg := config.APIConfig{
		DefaultPageSize:   2,
		MaxPageSize:       5,
		RateLimitPerMin:   10000,
		CORSAllowedOrigin: []string{"*"},
	}
	handler := NewHandler(store, engine, hub, nil, cfg)
	srv := httptest.NewServer(NewRouter(handler, cfg))
	t.Cleanup(srv.Close)
	return srv, store, engine
}

func get(t *testing.T, url string, wantStatus int) envelope {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s status = %d, want %d (%s)", url, resp.StatusCode, wantStatus, body)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return env
}

func seedReviews(store *cache.Store, dappID string, n int) {
	shell := models.DappShell{ID: dappID, Name: "SwapDex"}
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		store.ApplyReview(&models.Review{
			ID:         fmt.Sprintf("%s-r%d", dappID, i),
			DappID:     dappID,
			Rater:      "0xabc",
			StarRating: 4,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}, &shell)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	env := get(t, srv.URL+"/api/v1/health", http.StatusOK)
	var data HealthData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Status != "ok" || data.Subscription != "disabled" {
		t.Errorf("unexpected health %+v", data)
	}
}

func TestListDappsPagination(t *testing.T) {
	srv, store, _ := newTestServer(t)
	for i := 0; i < 3; i++ {
		seedReviews(store, fmt.Sprintf("d-%d", i), i+1)
	}

	env := get(t, srv.URL+"/api/v1/dapps", http.StatusOK)
	var dapps []models.Dapp
	if err := json.Unmarshal(env.Data, &dapps); err != nil {
		t.Fatal(err)
	}
	if len(dapps) != 2 {
		t.Errorf("default page size = %d items, want 2", len(dapps))
	}
	if env.Meta.Pagination == nil || env.Meta.Pagination.Total != 3 || !env.Meta.Pagination.HasMore {
		t.Errorf("pagination meta = %+v", env.Meta.Pagination)
	}
	// Most reviewed first.
	if dapps[0].ID != "d-2" {
		t.Errorf("first dApp = %s, want d-2", dapps[0].ID)
	}

	env = get(t, srv.URL+"/api/v1/dapps?limit=5&offset=2", http.StatusOK)
	if err := json.Unmarshal(env.Data, &dapps); err != nil {
		t.Fatal(err)
	}
	if len(dapps) != 1 || env.Meta.Pagination.HasMore {
		t.Errorf("last page = %d items hasMore=%v", len(dapps), env.Meta.Pagination.HasMore)
	}
}

func TestPaginationRejectsBadParams(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, query := range []string{"?limit=0", "?limit=x", "?offset=-1"} {
		env := get(t, srv.URL+"/api/v1/dapps"+query, http.StatusBadRequest)
		if env.Error == nil || env.Error.Code != ErrCodeBadRequest {
			t.Errorf("query %s: error = %+v", query, env.Error)
		}
	}
}

func TestGetDapp(t *testing.T) {
	srv, store, _ := newTestServer(t)
	seedReviews(store, "d-1", 2)

	env := get(t, srv.URL+"/api/v1/dapps/d-1", http.StatusOK)
	var dapp models.Dapp
	if err := json.Unmarshal(env.Data, &dapp); err != nil {
		t.Fatal(err)
	}
	if dapp.ReviewCount != 2 || dapp.AverageRating != 4 {
		t.Errorf("unexpected dapp %+v", dapp)
	}

	env = get(t, srv.URL+"/api/v1/dapps/nope", http.StatusNotFound)
	if env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestDappReviews(t *testing.T) {
	srv, store, _ := newTestServer(t)
	seedReviews(store, "d-1", 3)

	env := get(t, srv.URL+"/api/v1/dapps/d-1/reviews?limit=5", http.StatusOK)
	var reviews []models.Review
	if err := json.Unmarshal(env.Data, &reviews); err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 3 {
		t.Fatalf("reviews = %d, want 3", len(reviews))
	}
	// Most recent first.
	if reviews[0].ID != "d-1-r2" {
		t.Errorf("first review = %s, want d-1-r2", reviews[0].ID)
	}

	get(t, srv.URL+"/api/v1/dapps/nope/reviews", http.StatusNotFound)
}

func TestUserReviews(t *testing.T) {
	srv, store, _ := newTestServer(t)
	seedReviews(store, "d-1", 2)

	env := get(t, srv.URL+"/api/v1/users/0xABC/reviews?limit=5", http.StatusOK)
	var reviews []models.Review
	if err := json.Unmarshal(env.Data, &reviews); err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 2 {
		t.Errorf("reviews = %d, want 2 (case-insensitive address)", len(reviews))
	}
}

func TestGetProfileCreatesLazily(t *testing.T) {
	srv, _, _ := newTestServer(t)

	env := get(t, srv.URL+"/api/v1/users/0xAbC/profile", http.StatusOK)
	var profile models.UserProfile
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatal(err)
	}
	if profile.Address != "0xabc" || profile.Points != 0 {
		t.Errorf("unexpected profile %+v", profile)
	}
}

func TestProfileRejectsBadAddress(t *testing.T) {
	srv, _, _ := newTestServer(t)

	env := get(t, srv.URL+"/api/v1/users/not-an-address/profile", http.StatusBadRequest)
	if env.Error == nil || env.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestLoginAwardsDailyTask(t *testing.T) {
	srv, _, engine := newTestServer(t)
	def := &models.TaskDefinition{
		TaskID: "login-1", Type: models.TaskTypeDailyLogin,
		Cadence: models.CadenceDaily, PointsReward: 50, TargetCount: 1, IsActive: true,
	}
	if err := engine.UpsertTask(t.Context(), def); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(srv.URL+"/api/v1/users/0xabc/login", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	var profile models.UserProfile
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatal(err)
	}
	if profile.Points != 50 {
		t.Errorf("points after login = %d, want 50", profile.Points)
	}
}

func TestAdminUpsertTask(t *testing.T) {
	srv, _, engine := newTestServer(t)

	body := []byte(`{
		"task_id": "rate-3",
		"type": "rate-any-dapp",
		"cadence": "daily",
		"points_reward": 100,
		"target_count": 3,
		"is_active": true
	}`)
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/admin/tasks", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("upsert status = %d (%s)", resp.StatusCode, raw)
	}

	tasks := engine.ActiveTasks()
	if len(tasks) != 1 || tasks[0].TaskID != "rate-3" {
		t.Errorf("active tasks = %+v", tasks)
	}
}

func TestAdminUpsertTaskValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"unknown type", `{"task_id":"t","type":"fly","cadence":"daily","points_reward":1,"target_count":1}`},
		{"zero target", `{"task_id":"t","type":"daily-login","cadence":"daily","points_reward":1,"target_count":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/admin/tasks", bytes.NewReader([]byte(tt.body)))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}
