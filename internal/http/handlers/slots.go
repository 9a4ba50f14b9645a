package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/saudelab/agenda/internal/agenda"
	"github.com/saudelab/agenda/internal/availability"
	"github.com/saudelab/agenda/internal/booking"
	"github.com/saudelab/agenda/pkg/logging"
)

// SlotsConfig wires the patient-facing query and booking surface.
type SlotsConfig struct {
	Availability *availability.Service
	Gate         booking.Gate
	Logger       *logging.Logger
}

// SlotsHandler answers slot queries and commits reservations.
type SlotsHandler struct {
	availability *availability.Service
	gate         booking.Gate
	logger       *logging.Logger
}

func NewSlotsHandler(cfg SlotsConfig) *SlotsHandler {
	if cfg.Availability == nil {
		panic("handlers: availability service required")
	}
	if cfg.Gate == nil {
		panic("handlers: booking gate required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &SlotsHandler{
		availability: cfg.Availability,
		gate:         cfg.Gate,
		logger:       cfg.Logger.WithComponent("slots"),
	}
}

// ListSlots handles GET /agendas/{agendaID}/slots?from=YYYY-MM-DD&to=YYYY-MM-DD.
// to defaults to from, so a single-day query needs one parameter.
func (h *SlotsHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "agendaID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "agendaID must be a UUID")
		return
	}
	fromParam := r.URL.Query().Get("from")
	if fromParam == "" {
		writeError(w, http.StatusBadRequest, "from is required")
		return
	}
	from, err := agenda.ParseDate(fromParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to := from
	if toParam := r.URL.Query().Get("to"); toParam != "" {
		if to, err = agenda.ParseDate(toParam); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := h.availability.ListSlots(r.Context(), id, from, to)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type reserveRequest struct {
	Date  string `json:"date" validate:"required"`
	Start string `json:"start" validate:"required"`
}

// Reserve handles POST /agendas/{agendaID}/reservations. A committed
// seat answers 201 with the release token; a full or unavailable slot
// answers 409 with the typed outcome so the client can pick another.
func (h *SlotsHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "agendaID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "agendaID must be a UUID")
		return
	}
	var req reserveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := agenda.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := agenda.ParseTimeOfDay(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.gate.Reserve(r.Context(), id, date, start)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if result.Outcome != booking.OutcomeReserved {
		writeJSON(w, http.StatusConflict, result)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Release handles DELETE /reservations/{token}.
func (h *SlotsHandler) Release(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "token must be a UUID")
		return
	}
	if err := h.gate.Release(r.Context(), token); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
