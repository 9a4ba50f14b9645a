package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudelab/agenda/internal/agenda"
)

func newAgendasRouter(repo agenda.Repository) http.Handler {
	h := NewAgendasHandler(AgendasConfig{Repo: repo})
	r := chi.NewRouter()
	r.Post("/agendas", h.Create)
	r.Get("/agendas", h.List)
	r.Route("/agendas/{agendaID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Put("/config", h.UpdateConfig)
		r.Post("/periods", h.AddPeriod)
		r.Delete("/periods/{periodID}", h.RemovePeriod)
		r.Post("/overrides", h.AddOverride)
		r.Delete("/overrides/{overrideID}", h.RemoveOverride)
		r.Post("/blocks", h.AddBlock)
		r.Delete("/blocks/{blockID}", h.RemoveBlock)
	})
	return r
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createTestAgenda(t *testing.T, handler http.Handler) agendaView {
	t.Helper()
	rec := postJSON(t, handler, "/agendas", map[string]any{
		"code": "coleta-01",
		"name": "Coleta Matriz",
		"config": map[string]any{
			"weekdays": []string{"SEG", "TER", "QUA", "QUI", "SEX"},
			"interval": 30,
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created agendaView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created
}

func TestCreateAgenda(t *testing.T) {
	handler := newAgendasRouter(agenda.NewMemoryRepository())

	created := createTestAgenda(t, handler)
	assert.Equal(t, "COLETA-01", created.Code)
	assert.True(t, created.Active)
	assert.Equal(t, "SEG,TER,QUA,QUI,SEX", created.Config.Weekdays)

	// The internal code is unique per agenda.
	rec := postJSON(t, handler, "/agendas", map[string]any{
		"code": "COLETA-01",
		"name": "Duplicata",
		"config": map[string]any{
			"weekdays": []string{"SEG"},
			"interval": 30,
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateAgendaValidation(t *testing.T) {
	handler := newAgendasRouter(agenda.NewMemoryRepository())

	rec := postJSON(t, handler, "/agendas", map[string]any{
		"name": "Sem codigo",
		"config": map[string]any{
			"weekdays": []string{"SEG"},
			"interval": 30,
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, "/agendas", map[string]any{
		"code": "X",
		"name": "Intervalo invalido",
		"config": map[string]any{
			"weekdays": []string{"SEG"},
			"interval": 0,
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAgendaNotFound(t *testing.T) {
	handler := newAgendasRouter(agenda.NewMemoryRepository())

	req := httptest.NewRequest(http.MethodGet, "/agendas/0a0a0a0a-0000-0000-0000-000000000000", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/agendas/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddPeriodAndBlock(t *testing.T) {
	handler := newAgendasRouter(agenda.NewMemoryRepository())
	created := createTestAgenda(t, handler)
	base := "/agendas/" + created.ID.String()

	rec := postJSON(t, handler, base+"/periods", map[string]any{
		"name":  "MANHA",
		"start": "08:00",
		"end":   "12:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Overlapping window on the same days is a conflict.
	rec = postJSON(t, handler, base+"/periods", map[string]any{
		"name":  "TARDE",
		"start": "11:00",
		"end":   "14:00",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = postJSON(t, handler, base+"/blocks", map[string]any{
		"start_date": "2026-03-02",
		"start_time": "08:00",
		"end_date":   "2026-03-02",
		"end_time":   "12:00",
		"reason":     "manutencao",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var block agenda.Block
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &block))
	req := httptest.NewRequest(http.MethodDelete, base+"/blocks/"+block.ID.String(), nil)
	del := httptest.NewRecorder()
	handler.ServeHTTP(del, req)
	assert.Equal(t, http.StatusNoContent, del.Code)
}

func TestUpdateConfigRejectsInvalidCeilings(t *testing.T) {
	handler := newAgendasRouter(agenda.NewMemoryRepository())
	created := createTestAgenda(t, handler)

	rec := postJSON(t, handler, "/agendas/"+created.ID.String()+"/periods", map[string]any{
		"name":  "MANHA",
		"start": "08:00",
		"end":   "12:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// A morning of 30-minute slots holds 8 of them; a day ceiling of 2
	// cannot honor 5 seats per slot.
	buf, _ := json.Marshal(map[string]any{
		"weekdays":      []string{"SEG"},
		"interval":      30,
		"slot_capacity": 5,
		"day_capacity":  2,
	})
	req := httptest.NewRequest(http.MethodPut, "/agendas/"+created.ID.String()+"/config", bytes.NewReader(buf))
	upd := httptest.NewRecorder()
	handler.ServeHTTP(upd, req)
	assert.Equal(t, http.StatusUnprocessableEntity, upd.Code)
}
