package availability

import "github.com/saudelab/agenda/internal/agenda"

// Counts carries committed-reservation tallies for a date range, keyed
// by slot and by day.
type Counts struct {
	BySlot map[string]int
	ByDay  map[string]int
}

// NewCounts returns an empty tally.
func NewCounts() Counts {
	return Counts{BySlot: make(map[string]int), ByDay: make(map[string]int)}
}

// SlotKey identifies one slot within an agenda's counters.
func SlotKey(d agenda.Date, start agenda.TimeOfDay) string {
	return d.String() + "T" + start.String()
}

// SlotCount returns committed reservations for one slot.
func (c Counts) SlotCount(d agenda.Date, start agenda.TimeOfDay) int {
	return c.BySlot[SlotKey(d, start)]
}

// DayCount returns committed reservations across a whole day.
func (c Counts) DayCount(d agenda.Date) int {
	return c.ByDay[d.String()]
}

// ApplyCapacity narrows each slot's remaining seats: the slot's nominal
// capacity is the base, the day ceiling still applies as an upper bound,
// and committed reservations are subtracted, clamped at zero. Slots at
// zero stay in the list so callers can render "full" rather than
// "nonexistent".
func ApplyCapacity(slots []Slot, cfg agenda.Config, counts Counts) {
	for i := range slots {
		s := &slots[i]
		remaining := s.Capacity - counts.SlotCount(s.Date, s.Start)
		if cfg.DayCapacity != nil {
			dayRemaining := *cfg.DayCapacity - counts.DayCount(s.Date)
			if dayRemaining < remaining {
				remaining = dayRemaining
			}
		}
		if remaining < 0 {
			remaining = 0
		}
		s.Remaining = remaining
	}
}
