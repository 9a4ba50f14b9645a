package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudelab/agenda/internal/agenda"
	"github.com/saudelab/agenda/internal/availability"
	"github.com/saudelab/agenda/internal/booking"
)

func newSlotsFixture(t *testing.T) (http.Handler, uuid.UUID) {
	t.Helper()
	repo := agenda.NewMemoryRepository()
	ctx := context.Background()

	snap, err := repo.CreateAgenda(ctx,
		agenda.Agenda{Code: "COLETA-01", Name: "Coleta Matriz", Active: true},
		agenda.Config{
			Weekdays: agenda.MaskOf(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
			Interval: 30,
		})
	require.NoError(t, err)
	_, err = repo.AddPeriod(ctx, snap.Agenda.ID, agenda.Period{
		Name:  agenda.PeriodMorning,
		Start: agenda.MustTimeOfDay("08:00"),
		End:   agenda.MustTimeOfDay("10:00"),
	})
	require.NoError(t, err)

	gate := booking.NewMemoryGate(repo)
	svc := availability.NewService(repo, gate, nil, nil, nil, 0)
	h := NewSlotsHandler(SlotsConfig{Availability: svc, Gate: gate})

	r := chi.NewRouter()
	r.Get("/agendas/{agendaID}/slots", h.ListSlots)
	r.Post("/agendas/{agendaID}/reservations", h.Reserve)
	r.Delete("/reservations/{token}", h.Release)
	return r, snap.Agenda.ID
}

func TestListSlots(t *testing.T) {
	handler, id := newSlotsFixture(t)

	// 2026-03-02 is a Monday.
	req := httptest.NewRequest(http.MethodGet, "/agendas/"+id.String()+"/slots?from=2026-03-02", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result availability.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Days, 1)
	assert.Equal(t, availability.DayOpen, result.Days[0].Status)
	require.Len(t, result.Days[0].Slots, 4)
	assert.Equal(t, agenda.MustTimeOfDay("08:00"), result.Days[0].Slots[0].Start)
	assert.Equal(t, 1, result.Days[0].Slots[0].Remaining)
}

func TestListSlotsBadRange(t *testing.T) {
	handler, id := newSlotsFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/agendas/"+id.String()+"/slots", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/agendas/"+id.String()+"/slots?from=2026-03-05&to=2026-03-02", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReserveAndRelease(t *testing.T) {
	handler, id := newSlotsFixture(t)
	base := "/agendas/" + id.String() + "/reservations"

	rec := postJSON(t, handler, base, map[string]any{"date": "2026-03-02", "start": "08:00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res booking.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, booking.OutcomeReserved, res.Outcome)
	assert.Equal(t, 0, res.Remaining)

	// Default capacity is one seat; the second attempt conflicts.
	rec = postJSON(t, handler, base, map[string]any{"date": "2026-03-02", "start": "08:00"})
	require.Equal(t, http.StatusConflict, rec.Code)
	var full booking.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	assert.Equal(t, booking.OutcomeFull, full.Outcome)

	req := httptest.NewRequest(http.MethodDelete, "/reservations/"+res.Token.String(), nil)
	del := httptest.NewRecorder()
	handler.ServeHTTP(del, req)
	assert.Equal(t, http.StatusNoContent, del.Code)

	// Double release conflicts.
	req = httptest.NewRequest(http.MethodDelete, "/reservations/"+res.Token.String(), nil)
	del = httptest.NewRecorder()
	handler.ServeHTTP(del, req)
	assert.Equal(t, http.StatusConflict, del.Code)
}

func TestReserveOutcomes(t *testing.T) {
	handler, id := newSlotsFixture(t)
	base := "/agendas/" + id.String() + "/reservations"

	// Saturday is outside the configured weekdays.
	rec := postJSON(t, handler, base, map[string]any{"date": "2026-03-07", "start": "08:00"})
	require.Equal(t, http.StatusConflict, rec.Code)
	var res booking.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, booking.OutcomeNotFound, res.Outcome)

	rec = postJSON(t, handler, base, map[string]any{"date": "2026-03-02", "start": "8h"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
