package availability

import (
	"github.com/google/uuid"

	"github.com/saudelab/agenda/internal/agenda"
)

// Slot is a fixed-length bookable unit derived from a window. Slots are
// value objects recomputed on every query; only reservation counters
// persist.
type Slot struct {
	AgendaID uuid.UUID        `json:"agenda_id"`
	Date     agenda.Date      `json:"date"`
	Start    agenda.TimeOfDay `json:"start"`
	End      agenda.TimeOfDay `json:"end"`
	// Capacity is the nominal seat count inherited from the window.
	Capacity int `json:"capacity"`
	// Remaining is filled in by ApplyCapacity.
	Remaining int `json:"remaining"`
}

// GenerateSlots quantizes one window into slots of the window's interval,
// starting at the window's start and never crossing its end. A trailing
// remainder shorter than the interval is discarded, not emitted as a
// short slot.
func GenerateSlots(agendaID uuid.UUID, w Window) []Slot {
	if w.Interval <= 0 {
		return nil
	}
	step := agenda.TimeOfDay(w.Interval)
	var out []Slot
	for start := w.Start; start+step <= w.End; start += step {
		out = append(out, Slot{
			AgendaID:  agendaID,
			Date:      w.Date,
			Start:     start,
			End:       start + step,
			Capacity:  w.Capacity,
			Remaining: w.Capacity,
		})
	}
	return out
}

// GenerateDaySlots quantizes every window of a resolved day in order.
func GenerateDaySlots(agendaID uuid.UUID, day Day) []Slot {
	var out []Slot
	for _, w := range day.Windows {
		out = append(out, GenerateSlots(agendaID, w)...)
	}
	return out
}
