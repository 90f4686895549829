package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hearthdesk/hearth/internal/events"
	"github.com/hearthdesk/hearth/internal/health"
	"github.com/hearthdesk/hearth/internal/supervisor"
)

// mockController records lifecycle calls and serves canned snapshots.
type mockController struct {
	mu       sync.Mutex
	state    supervisor.State
	health   health.Status
	startErr error
	starts   int
	stops    int
	restarts int
}

func (m *mockController) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.state = supervisor.State{Phase: supervisor.PhaseRunning, Port: 8000}
	return nil
}

func (m *mockController) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.state = supervisor.State{Phase: supervisor.PhaseStopped}
	return nil
}

func (m *mockController) Restart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
	m.state = supervisor.State{Phase: supervisor.PhaseRunning, Port: 8000}
	return nil
}

func (m *mockController) State() supervisor.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockController) Health() health.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

func (m *mockController) BaseURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Port == 0 {
		return ""
	}
	return "http://127.0.0.1:8000"
}

func newTestServer(t *testing.T, ctrl *mockController) (*Server, *events.Bus) {
	t.Helper()
	bus := events.New()
	srv := NewServer(&Options{Controller: ctrl, Bus: bus})
	return srv, bus
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, req)
	return rec
}

func TestGetState(t *testing.T) {
	ctrl := &mockController{state: supervisor.State{Phase: supervisor.PhaseRunning, Port: 8042}}
	srv, _ := newTestServer(t, ctrl)

	rec := doRequest(t, srv, http.MethodGet, "/api/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Phase string `json:"phase"`
		Port  int    `json:"port"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Phase != "running" || body.Port != 8042 {
		t.Errorf("body = %+v, want running on 8042", body)
	}
}

func TestGetHealth(t *testing.T) {
	ctrl := &mockController{health: health.Status{
		Kind:          health.KindHealthy,
		Latency:       3 * time.Millisecond,
		ServerVersion: "1.2.3",
		CheckedAt:     time.Now(),
	}}
	srv, _ := newTestServer(t, ctrl)

	rec := doRequest(t, srv, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Kind          string `json:"kind"`
		LatencyMs     int64  `json:"latency_ms"`
		ServerVersion string `json:"server_version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != "healthy" || body.ServerVersion != "1.2.3" {
		t.Errorf("body = %+v", body)
	}
}

func TestStartServerAction(t *testing.T) {
	ctrl := &mockController{state: supervisor.State{Phase: supervisor.PhaseStopped}}
	srv, _ := newTestServer(t, ctrl)

	rec := doRequest(t, srv, http.MethodPost, "/api/server/start")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ctrl.starts != 1 {
		t.Errorf("starts = %d, want 1", ctrl.starts)
	}
	var body struct {
		Phase string `json:"phase"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Phase != "running" {
		t.Errorf("phase = %q, want running", body.Phase)
	}
}

func TestStartServerConflict(t *testing.T) {
	ctrl := &mockController{startErr: &supervisor.Error{
		Code:    supervisor.CodeAlreadyRunning,
		Message: "supervisor is already active",
	}}
	srv, _ := newTestServer(t, ctrl)

	rec := doRequest(t, srv, http.MethodPost, "/api/server/start")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestStopAndRestartActions(t *testing.T) {
	ctrl := &mockController{state: supervisor.State{Phase: supervisor.PhaseRunning, Port: 8000}}
	srv, _ := newTestServer(t, ctrl)

	if rec := doRequest(t, srv, http.MethodPost, "/api/server/stop"); rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodPost, "/api/server/restart"); rec.Code != http.StatusOK {
		t.Fatalf("restart status = %d", rec.Code)
	}
	if ctrl.stops != 1 || ctrl.restarts != 1 {
		t.Errorf("stops = %d restarts = %d, want 1 each", ctrl.stops, ctrl.restarts)
	}
}

func TestGetVersion(t *testing.T) {
	srv, _ := newTestServer(t, &mockController{})

	rec := doRequest(t, srv, http.MethodGet, "/api/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Version   string `json:"version"`
		GoVersion string `json:"go_version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Version == "" || body.GoVersion == "" {
		t.Errorf("incomplete version body: %+v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &mockController{})

	rec := doRequest(t, srv, http.MethodOptions, "/api/state")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("missing CORS headers on preflight")
	}
}

func TestGetLogsSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, &mockController{})

	rec := doRequest(t, srv, http.MethodGet, "/api/logs?limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Entries []any `json:"entries"`
		Count   int   `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != len(body.Entries) {
		t.Errorf("count = %d, entries = %d", body.Count, len(body.Entries))
	}
}
