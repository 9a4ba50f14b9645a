// Package availability turns an agenda's layered configuration into
// concrete bookable slots: weekly recurrence merged with date-specific
// overrides, blackout intervals subtracted, windows quantized into
// fixed-interval slots, and remaining capacity attached.
//
// Every stage is a pure computation over a configuration snapshot already
// loaded from the store; nothing here performs I/O.
package availability

import (
	"errors"
	"fmt"

	"github.com/saudelab/agenda/internal/agenda"
)

// DayStatus explains why a day has the windows it has, so callers can
// render "holiday" or "blocked" instead of a bare empty list.
type DayStatus string

const (
	// DayOpen means at least one bookable window survived resolution.
	DayOpen DayStatus = "open"
	// DayHoliday means a holiday override zeroed the day.
	DayHoliday DayStatus = "holiday"
	// DayClosed means the weekday is outside the recurrence, or no
	// period covers it.
	DayClosed DayStatus = "closed"
	// DayBlocked means blackout intervals consumed every window.
	DayBlocked DayStatus = "blocked"
)

// ErrInvalidRange is returned when from is after to.
var ErrInvalidRange = errors.New("availability: invalid date range")

// Window is a continuous open time range on one date, before
// quantization, carrying the interval and nominal capacity its slots
// will inherit.
type Window struct {
	Date     agenda.Date
	Start    agenda.TimeOfDay
	End      agenda.TimeOfDay
	Interval int
	Capacity int
}

// Day is the resolver output for a single date.
type Day struct {
	Date agenda.Date
	// Status is set by the resolver and refined by the block filter.
	Status DayStatus
	// Optional marks a facultative day: availability stands, but the
	// date was flagged as optionally worked.
	Optional bool
	Windows  []Window
}

// ResolveRange produces the open windows for every date in [from, to].
// Precedence per date: holiday override zeroes the day; any other
// override replaces recurrence wholesale; otherwise the weekly template
// applies. Blocks are not considered here; see ApplyBlocks.
func ResolveRange(snap *agenda.Snapshot, from, to agenda.Date) ([]Day, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	days := make([]Day, 0, agenda.DaysBetween(from, to)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		day, err := resolveDay(snap, d)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

func resolveDay(snap *agenda.Snapshot, d agenda.Date) (Day, error) {
	day := Day{Date: d, Status: DayClosed}

	overrides := snap.OverridesFor(d)
	for _, o := range overrides {
		if o.Holiday {
			day.Status = DayHoliday
			return day, nil
		}
	}
	if len(overrides) > 0 {
		// Non-holiday override replaces whatever recurrence would say.
		for _, o := range overrides {
			capacity := snap.Config.EffectiveSlotCapacity()
			if o.Capacity != nil && *o.Capacity > 0 {
				capacity = *o.Capacity
			}
			day.Windows = append(day.Windows, Window{
				Date:     d,
				Start:    o.Start,
				End:      o.End,
				Interval: snap.Config.Interval,
				Capacity: capacity,
			})
			if o.Optional {
				day.Optional = true
			}
		}
		day.Status = DayOpen
		return day, sortAndCheck(&day)
	}

	if !snap.Config.Weekdays.Has(d.Weekday()) {
		return day, nil
	}

	for _, p := range snap.Periods {
		if !p.AppliesOn(d, snap.Config.Weekdays) {
			continue
		}
		day.Windows = append(day.Windows, Window{
			Date:     d,
			Start:    p.Start,
			End:      p.End,
			Interval: p.EffectiveInterval(snap.Config),
			Capacity: p.EffectiveCapacity(snap.Config),
		})
	}
	if len(day.Windows) == 0 {
		return day, nil
	}
	day.Status = DayOpen
	return day, sortAndCheck(&day)
}

// sortAndCheck orders windows and defends against overlap that write-time
// validation should have rejected. Overlap here is a data-integrity bug
// and is surfaced, never silently reconciled.
func sortAndCheck(day *Day) error {
	ws := day.Windows
	for i := 1; i < len(ws); i++ {
		for j := i; j > 0 && ws[j].Start < ws[j-1].Start; j-- {
			ws[j], ws[j-1] = ws[j-1], ws[j]
		}
	}
	for i := 1; i < len(ws); i++ {
		if ws[i].Start < ws[i-1].End {
			return fmt.Errorf("availability: overlapping windows on %s: %w",
				day.Date, agenda.ErrConfigurationConflict)
		}
	}
	return nil
}
