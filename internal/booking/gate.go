// Package booking is the only mutating entry point of the scheduling
// engine: an atomic "check remaining, then decrement" gate over slot
// capacity, plus the inverse release used on cancellation.
package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/saudelab/agenda/internal/agenda"
	"github.com/saudelab/agenda/internal/availability"
)

// Outcome is the caller-visible verdict of a reservation attempt. All
// rejections are typed results so the booking workflow can branch
// without inspecting message text.
type Outcome string

const (
	// OutcomeReserved means a seat was committed and a token issued.
	OutcomeReserved Outcome = "reserved"
	// OutcomeFull means the slot exists but has no remaining capacity;
	// retryable against a different slot.
	OutcomeFull Outcome = "full"
	// OutcomeNotFound means no such slot resolves on that date.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeBlocked means a blackout interval covers the slot start.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeHoliday means a holiday override zeroes the whole date.
	OutcomeHoliday Outcome = "holiday"
)

// Result reports a reservation attempt.
type Result struct {
	Outcome Outcome `json:"outcome"`
	// Token identifies the committed reservation; zero unless reserved.
	Token uuid.UUID `json:"token,omitempty"`
	// Remaining is the slot's remaining capacity after the attempt.
	Remaining int `json:"remaining"`
}

var (
	// ErrConcurrencyTimeout means the commit lock could not be acquired
	// within the configured bound; callers should retry.
	ErrConcurrencyTimeout = errors.New("booking: lock acquisition timed out")

	// ErrReservationNotFound is returned by Release for unknown tokens.
	ErrReservationNotFound = errors.New("booking: reservation not found")

	// ErrAlreadyReleased guards against double release; the counter is
	// not decremented twice.
	ErrAlreadyReleased = errors.New("booking: reservation already released")
)

// Gate is the commit contract consumed by the booking workflow.
type Gate interface {
	Reserve(ctx context.Context, agendaID uuid.UUID, date agenda.Date, start agenda.TimeOfDay) (*Result, error)
	Release(ctx context.Context, token uuid.UUID) error
}

// classify locates the requested slot in a freshly resolved day and maps
// the day's shape to an outcome. The availability pipeline has already
// applied overrides, blocks and capacity, so a missing slot in an open
// day is either blocked at its exact start or simply nonexistent.
func classify(day *availability.DaySlots, snap *agenda.Snapshot, date agenda.Date, start agenda.TimeOfDay) (*availability.Slot, Outcome) {
	switch day.Status {
	case availability.DayHoliday:
		return nil, OutcomeHoliday
	case availability.DayBlocked:
		return nil, OutcomeBlocked
	case availability.DayClosed:
		return nil, OutcomeNotFound
	}
	for i := range day.Slots {
		if day.Slots[i].Start == start {
			if day.Slots[i].Remaining < 1 {
				return &day.Slots[i], OutcomeFull
			}
			return &day.Slots[i], OutcomeReserved
		}
	}
	for _, b := range snap.Blocks {
		if s, e, ok := b.IntervalOn(date); ok && start >= s && start < e {
			return nil, OutcomeBlocked
		}
	}
	return nil, OutcomeNotFound
}
