package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/saudelab/agenda/internal/agenda"
	"github.com/saudelab/agenda/internal/availability"
	"github.com/saudelab/agenda/internal/booking"
	"github.com/saudelab/agenda/pkg/logging"
)

// errorResponse is the uniform error body for every endpoint.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps the typed errors of the scheduling engine onto
// HTTP statuses. Anything unrecognized is a 500 and gets logged; the
// response body never leaks internals.
func writeDomainError(w http.ResponseWriter, logger *logging.Logger, err error) {
	var conflict *agenda.ConflictError
	switch {
	case errors.Is(err, agenda.ErrAgendaNotFound):
		writeError(w, http.StatusNotFound, "agenda not found")
	case errors.Is(err, booking.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "reservation not found")
	case errors.Is(err, agenda.ErrAgendaInactive):
		writeError(w, http.StatusConflict, "agenda is inactive")
	case errors.Is(err, booking.ErrAlreadyReleased):
		writeError(w, http.StatusConflict, "reservation already released")
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: conflict.Detail, Field: conflict.Field})
	case errors.Is(err, agenda.ErrConfigurationConflict):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, availability.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrConcurrencyTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "slot is contended, retry")
	default:
		if logger != nil {
			logger.Error("unhandled request error", "error", err)
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
