package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/saudelab/agenda/internal/agenda"
	"github.com/saudelab/agenda/internal/availability"
	"github.com/saudelab/agenda/internal/booking"
	"github.com/saudelab/agenda/internal/http/handlers"
	"github.com/saudelab/agenda/pkg/logging"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.Default()
	repo := agenda.NewMemoryRepository()
	gate := booking.NewMemoryGate(repo)
	svc := availability.NewService(repo, gate, nil, logger, nil, 0)

	cfg := &Config{
		Logger:  logger,
		Agendas: handlers.NewAgendasHandler(handlers.AgendasConfig{Repo: repo, Logger: logger}),
		Slots:   handlers.NewSlotsHandler(handlers.SlotsConfig{Availability: svc, Gate: gate, Logger: logger}),
	}

	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterAgendaLifecycle(t *testing.T) {
	router := newTestRouter(t)

	payload := map[string]any{
		"code": "COLETA-01",
		"name": "Coleta Matriz",
		"config": map[string]any{
			"weekdays": []string{"SEG", "TER", "QUA", "QUI", "SEX"},
			"interval": 30,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/agendas", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected created agenda id")
	}

	req = httptest.NewRequest(http.MethodGet, "/agendas/"+created.ID, nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

// Slot queries and reservations live under the same agenda subtree; a
// missing handler must not take the configuration routes down with it.
func TestRouterSlotsRouteRegistered(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/agendas/0a0a0a0a-0000-0000-0000-000000000000/slots?from=2026-03-02", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code == http.StatusNotFound && rr.Header().Get("Content-Type") == "" {
		t.Fatalf("slots route not registered")
	}
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown agenda, got %d", rr.Code)
	}
}

func TestRouterMetricsNotMountedWithoutHandler(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected metrics to be absent, got %d", rr.Code)
	}
}
