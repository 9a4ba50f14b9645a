package agenda

import (
	"strings"
	"time"
)

// ValidateConfig checks the recurring template in isolation.
func ValidateConfig(cfg Config) error {
	if cfg.Interval <= 0 {
		return conflictf("interval", "booking interval must be positive, got %d", cfg.Interval)
	}
	if cfg.SlotCapacity != nil && *cfg.SlotCapacity <= 0 {
		return conflictf("slot_capacity", "must be positive when set, got %d", *cfg.SlotCapacity)
	}
	if cfg.DayCapacity != nil && *cfg.DayCapacity <= 0 {
		return conflictf("day_capacity", "must be positive when set, got %d", *cfg.DayCapacity)
	}
	return nil
}

// ValidatePeriod checks a single sub-window row.
func ValidatePeriod(p Period, cfg Config) error {
	if p.Start >= p.End {
		return conflictf("period", "start %s must precede end %s", p.Start, p.End)
	}
	if p.SpecificDate != nil && p.Weekdays != nil {
		return conflictf("period", "specific date and weekday subset are mutually exclusive")
	}
	if p.Interval != nil && *p.Interval <= 0 {
		return conflictf("period.interval", "must be positive when set, got %d", *p.Interval)
	}
	if p.Capacity != nil && *p.Capacity <= 0 {
		return conflictf("period.capacity", "must be positive when set, got %d", *p.Capacity)
	}
	interval := p.EffectiveInterval(cfg)
	if interval <= 0 {
		return conflictf("period.interval", "effective interval must be positive")
	}
	if int(p.End-p.Start)%interval != 0 {
		return conflictf("period", "interval %dm does not evenly divide window %s-%s",
			interval, p.Start, p.End)
	}
	switch p.Name {
	case PeriodMorning, PeriodEvening, PeriodNight, PeriodFullDay:
	default:
		return conflictf("period.name", "unknown period name %q", p.Name)
	}
	return nil
}

// ValidateOverride checks a date-specific override row.
func ValidateOverride(o DateOverride) error {
	if o.Date.IsZero() {
		return conflictf("override.date", "date is required")
	}
	if o.Holiday {
		// Holidays need no window; whatever was sent is ignored at read time.
		return nil
	}
	if o.Start >= o.End {
		return conflictf("override", "start %s must precede end %s", o.Start, o.End)
	}
	if o.Capacity != nil && *o.Capacity <= 0 {
		return conflictf("override.capacity", "must be positive when set, got %d", *o.Capacity)
	}
	return nil
}

// ValidateOverrideAgainst checks a new override against the date's
// existing rows. Two overlapping non-holiday windows on one date would
// fail every read of that date, so the overlap is rejected here, at
// write time, like period overlap.
func ValidateOverrideAgainst(existing []DateOverride, o DateOverride) error {
	if err := ValidateOverride(o); err != nil {
		return err
	}
	if o.Holiday {
		// A holiday zeroes the date regardless of other windows.
		return nil
	}
	for _, e := range existing {
		if e.Holiday || !e.Date.Equal(o.Date) {
			continue
		}
		if rangesOverlap(e.Start, e.End, o.Start, o.End) {
			return conflictf("override", "%s-%s overlaps existing override %s-%s on %s",
				o.Start, o.End, e.Start, e.End, o.Date)
		}
	}
	return nil
}

// ValidateBlock checks an ad-hoc blackout row.
func ValidateBlock(b Block) error {
	if b.StartDate.IsZero() {
		return conflictf("block.start_date", "start date is required")
	}
	if b.EndDate != nil {
		if b.EndDate.Before(b.StartDate) {
			return conflictf("block", "end date %s precedes start date %s", b.EndDate, b.StartDate)
		}
		if b.EndDate.Equal(b.StartDate) && b.EndTime != nil && *b.EndTime <= b.StartTime {
			return conflictf("block", "end time %s must follow start time %s on a single-day block",
				*b.EndTime, b.StartTime)
		}
	}
	return nil
}

// periodsMayShareDate reports whether two periods can ever apply to the
// same calendar date under the configuration weekday mask.
func periodsMayShareDate(a, b Period, configDays WeekdayMask) bool {
	if a.SpecificDate != nil && b.SpecificDate != nil {
		return a.SpecificDate.Equal(*b.SpecificDate)
	}
	if a.SpecificDate != nil {
		return b.AppliesOn(*a.SpecificDate, configDays)
	}
	if b.SpecificDate != nil {
		return a.AppliesOn(*b.SpecificDate, configDays)
	}
	da := configDays
	if a.Weekdays != nil {
		da = *a.Weekdays
	}
	db := configDays
	if b.Weekdays != nil {
		db = *b.Weekdays
	}
	return da.Intersects(db)
}

func rangesOverlap(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}

// ValidateAggregate cross-checks the full configuration graph the way the
// write path sees it: no mutually overlapping periods, and capacity
// ceilings consistent with their own children. Overlap is rejected here,
// at write time, never reconciled at read time.
func ValidateAggregate(cfg Config, periods []Period) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	for _, p := range periods {
		if err := ValidatePeriod(p, cfg); err != nil {
			return err
		}
	}
	for i := 0; i < len(periods); i++ {
		for j := i + 1; j < len(periods); j++ {
			a, b := periods[i], periods[j]
			if !periodsMayShareDate(a, b, cfg.Weekdays) {
				continue
			}
			if rangesOverlap(a.Start, a.End, b.Start, b.End) {
				return conflictf("period", "%s %s-%s overlaps %s %s-%s on a shared day",
					a.Name, a.Start, a.End, b.Name, b.Start, b.End)
			}
		}
	}
	if cfg.DayCapacity != nil && cfg.SlotCapacity != nil {
		if worst := maxSlotsPerDay(cfg, periods); worst > 0 {
			if need := *cfg.SlotCapacity * worst; *cfg.DayCapacity < need {
				return conflictf("day_capacity",
					"day total %d cannot cover %d slots of capacity %d",
					*cfg.DayCapacity, worst, *cfg.SlotCapacity)
			}
		}
	}
	return nil
}

// maxSlotsPerDay computes the busiest recurring weekday's slot count,
// used to sanity-check day ceilings against per-slot capacity.
func maxSlotsPerDay(cfg Config, periods []Period) int {
	worst := 0
	for d := time.Sunday; d <= time.Saturday; d++ {
		if !cfg.Weekdays.Has(d) {
			continue
		}
		count := 0
		for _, p := range periods {
			if p.SpecificDate != nil {
				continue
			}
			days := cfg.Weekdays
			if p.Weekdays != nil {
				days = *p.Weekdays
			}
			if !days.Has(d) {
				continue
			}
			count += int(p.End-p.Start) / p.EffectiveInterval(cfg)
		}
		if count > worst {
			worst = count
		}
	}
	return worst
}

// NormalizeCode trims and upper-cases an agenda internal code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
