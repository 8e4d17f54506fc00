package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/config"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/state"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestApp(t *testing.T, statsTTL time.Duration) *App {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Address = ":0"
	cfg.Server.Auth.SessionSecret = "test-secret"
	cfg.Server.ConnectionLimit = config.ConnectionLimitConfig{MaxPerUser: 5, Mode: "cycle"}
	cfg.Transport = config.TransportConfig{ReadTimeout: time.Minute, SendBuffer: 8}
	cfg.Cache = config.CacheConfig{StatsTTL: statsTTL}

	app, err := NewApp(newTestLogger(), context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app
}

type fakeSender struct {
	id uuid.UUID
}

func newFakeSender() *fakeSender {
	return &fakeSender{id: uuid.New()}
}

func (f *fakeSender) ID() uuid.UUID            { return f.id }
func (f *fakeSender) Send(message []byte) bool { return true }
func (f *fakeSender) Close(err error)          {}

func registerConnection(t *testing.T, app *App, subject string) {
	t.Helper()
	if _, err := app.stateManager.Register(newFakeSender(), state.ConnectionMeta{Subject: subject}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func getStats(t *testing.T, app *App) state.Stats {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	app.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /stats returned %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("GET /stats Content-Type is %q", ct)
	}

	var stats state.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to decode stats body %s: %v", rec.Body.Bytes(), err)
	}
	return stats
}

// --- Stats Endpoint Tests ---

func TestStatsHandlerReportsRegistry(t *testing.T) {
	app := newTestApp(t, time.Minute)
	registerConnection(t, app, "user-1")
	registerConnection(t, app, "user-2")

	stats := getStats(t, app)
	if stats.TotalConnections != 2 {
		t.Errorf("Expected 2 total connections, got %d", stats.TotalConnections)
	}
	if stats.PerGroup[state.GroupPublic] != 2 {
		t.Errorf("Expected 2 public members, got %d", stats.PerGroup[state.GroupPublic])
	}
}

func TestStatsHandlerServesCachedResponse(t *testing.T) {
	app := newTestApp(t, time.Minute)
	registerConnection(t, app, "user-1")

	if stats := getStats(t, app); stats.TotalConnections != 1 {
		t.Fatalf("Expected 1 connection in first snapshot, got %d", stats.TotalConnections)
	}

	// A registration inside the TTL must not show up: the second request
	// is answered from the cached body, not a fresh snapshot.
	registerConnection(t, app, "user-2")
	if stats := getStats(t, app); stats.TotalConnections != 1 {
		t.Errorf("Expected the cached snapshot (1 connection), got %d", stats.TotalConnections)
	}
}

func TestStatsHandlerRefreshesAfterTTL(t *testing.T) {
	app := newTestApp(t, 20*time.Millisecond)
	registerConnection(t, app, "user-1")

	if stats := getStats(t, app); stats.TotalConnections != 1 {
		t.Fatalf("Expected 1 connection in first snapshot, got %d", stats.TotalConnections)
	}

	registerConnection(t, app, "user-2")
	time.Sleep(30 * time.Millisecond)

	if stats := getStats(t, app); stats.TotalConnections != 2 {
		t.Errorf("Expected a fresh snapshot (2 connections) after TTL, got %d", stats.TotalConnections)
	}
}

func TestHealthHandler(t *testing.T) {
	app := newTestApp(t, time.Minute)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	app.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /healthz returned %d", rec.Code)
	}
}
