package agenda

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WeekdayMask is a 7-bit set of weekdays, bit N = time.Weekday(N).
type WeekdayMask uint8

// MaskOf builds a mask from individual weekdays.
func MaskOf(days ...time.Weekday) WeekdayMask {
	var m WeekdayMask
	for _, d := range days {
		m |= 1 << uint(d)
	}
	return m
}

// Has reports whether the mask contains the weekday.
func (m WeekdayMask) Has(d time.Weekday) bool {
	return m&(1<<uint(d)) != 0
}

// Intersects reports whether two masks share at least one weekday.
func (m WeekdayMask) Intersects(o WeekdayMask) bool {
	return m&o != 0
}

// Empty reports whether no weekday is set.
func (m WeekdayMask) Empty() bool {
	return m == 0
}

// weekdayCodes mirrors the legacy configuration format (SEG..DOM).
var weekdayCodes = map[string]time.Weekday{
	"DOM": time.Sunday,
	"SEG": time.Monday,
	"TER": time.Tuesday,
	"QUA": time.Wednesday,
	"QUI": time.Thursday,
	"SEX": time.Friday,
	"SAB": time.Saturday,
}

var weekdayNames = [7]string{"DOM", "SEG", "TER", "QUA", "QUI", "SEX", "SAB"}

// ParseWeekdayMask decodes a comma-separated list of weekday codes
// (e.g. "SEG,TER,QUA") as stored in the configuration rows.
func ParseWeekdayMask(s string) (WeekdayMask, error) {
	var m WeekdayMask
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	for _, part := range strings.Split(s, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		d, ok := weekdayCodes[code]
		if !ok {
			return 0, fmt.Errorf("agenda: unknown weekday code %q", code)
		}
		m |= 1 << uint(d)
	}
	return m, nil
}

// String encodes the mask back to the comma-separated code list.
func (m WeekdayMask) String() string {
	var codes []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if m.Has(d) {
			codes = append(codes, weekdayNames[d])
		}
	}
	return strings.Join(codes, ",")
}

// TimeOfDay is a clock time expressed as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS"; seconds are dropped.
// Every field must be fully numeric; trailing garbage is rejected.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, rest, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("agenda: parse time %q: want HH:MM", s)
	}
	mm, ss, hasSeconds := strings.Cut(rest, ":")
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("agenda: parse time %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("agenda: parse time %q: %w", s, err)
	}
	if hasSeconds {
		if _, err := strconv.Atoi(ss); err != nil {
			return 0, fmt.Errorf("agenda: parse time %q: %w", s, err)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("agenda: time %q out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// MustTimeOfDay is a test/fixture helper that panics on bad input.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// AddMinutes returns the time shifted forward; callers guard overflow past midnight.
func (t TimeOfDay) AddMinutes(m int) TimeOfDay {
	return t + TimeOfDay(m)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// EndOfDay is the exclusive upper bound for a day's time axis.
const EndOfDay TimeOfDay = 24 * 60

// Date is a calendar date with no time component, held at UTC midnight.
type Date struct {
	t time.Time
}

// NewDate builds a Date from components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate decodes "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("agenda: parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustDate is a test/fixture helper that panics on bad input.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) After(o Date) bool { return d.t.After(o.t) }

func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Time returns the UTC midnight instant backing the date.
func (d Date) Time() time.Time { return d.t }

// At combines the date with a clock time into a UTC instant.
func (d Date) At(t TimeOfDay) time.Time { return d.t.Add(time.Duration(t) * time.Minute) }

func (d Date) String() string { return d.t.Format("2006-01-02") }

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(data []byte) error {
	parsed, err := ParseDate(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween counts calendar days from a to b inclusive of a, exclusive of b.
func DaysBetween(a, b Date) int {
	return int(b.t.Sub(a.t) / (24 * time.Hour))
}

// Agenda is a bookable resource identity: a professional, room, equipment
// or specialty booking line.
type Agenda struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UnitID      string    `json:"unit_id,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Config is the recurring weekly template for one agenda.
type Config struct {
	ID       uuid.UUID   `json:"id"`
	AgendaID uuid.UUID   `json:"agenda_id"`
	Weekdays WeekdayMask `json:"-"`
	// Interval is the booking interval in minutes.
	Interval int `json:"interval"`
	// SlotCapacity is the default seats per generated slot; nil means one.
	SlotCapacity *int `json:"slot_capacity,omitempty"`
	// DayCapacity caps total committed reservations per day; nil means uncapped.
	DayCapacity *int `json:"day_capacity,omitempty"`
}

// EffectiveSlotCapacity resolves the default nominal capacity per slot.
func (c Config) EffectiveSlotCapacity() int {
	if c.SlotCapacity != nil && *c.SlotCapacity > 0 {
		return *c.SlotCapacity
	}
	return 1
}

// PeriodName is the legacy sub-window label.
type PeriodName string

const (
	PeriodMorning PeriodName = "MANHA"
	PeriodEvening PeriodName = "TARDE"
	PeriodNight   PeriodName = "NOITE"
	PeriodFullDay PeriodName = "INTEGRAL"
)

// Period is a named sub-window inside a day, optionally narrowed to a
// weekday subset or pinned to a single specific date, with optional
// interval/capacity overrides.
type Period struct {
	ID           uuid.UUID    `json:"id"`
	ConfigID     uuid.UUID    `json:"config_id"`
	Name         PeriodName   `json:"name"`
	Start        TimeOfDay    `json:"start"`
	End          TimeOfDay    `json:"end"`
	Weekdays     *WeekdayMask `json:"-"`
	SpecificDate *Date        `json:"specific_date,omitempty"`
	Interval     *int         `json:"interval,omitempty"`
	Capacity     *int         `json:"capacity,omitempty"`
}

// AppliesOn reports whether the period covers date d under the given
// configuration weekday mask.
func (p Period) AppliesOn(d Date, configDays WeekdayMask) bool {
	if p.SpecificDate != nil {
		return p.SpecificDate.Equal(d)
	}
	if p.Weekdays != nil {
		return p.Weekdays.Has(d.Weekday())
	}
	return configDays.Has(d.Weekday())
}

// EffectiveInterval resolves the period interval with config fallback.
func (p Period) EffectiveInterval(cfg Config) int {
	if p.Interval != nil && *p.Interval > 0 {
		return *p.Interval
	}
	return cfg.Interval
}

// EffectiveCapacity resolves the nominal per-slot capacity with config fallback.
func (p Period) EffectiveCapacity(cfg Config) int {
	if p.Capacity != nil && *p.Capacity > 0 {
		return *p.Capacity
	}
	return cfg.EffectiveSlotCapacity()
}

// DateOverride replaces the recurring template for a single date.
// Holiday overrides yield zero availability regardless of recurrence;
// optional-day overrides keep availability but flag it as facultative.
type DateOverride struct {
	ID       uuid.UUID `json:"id"`
	ConfigID uuid.UUID `json:"config_id"`
	Date     Date      `json:"date"`
	Start    TimeOfDay `json:"start"`
	End      TimeOfDay `json:"end"`
	Capacity *int      `json:"capacity,omitempty"`
	Holiday  bool      `json:"holiday"`
	Optional bool      `json:"optional"`
}

// Block is an ad-hoc unavailable interval. EndDate == nil means the block
// is open-ended: every date from StartDate onward is masked.
type Block struct {
	ID        uuid.UUID  `json:"id"`
	ConfigID  uuid.UUID  `json:"config_id"`
	StartDate Date       `json:"start_date"`
	StartTime TimeOfDay  `json:"start_time"`
	EndDate   *Date      `json:"end_date,omitempty"`
	EndTime   *TimeOfDay `json:"end_time,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Note      string     `json:"note,omitempty"`
}

// OpenEnded reports whether the block has no end date.
func (b Block) OpenEnded() bool {
	return b.EndDate == nil
}

// IntervalOn returns the half-open [start, end) interval this block masks
// on date d, or ok=false when the block does not touch d.
func (b Block) IntervalOn(d Date) (start, end TimeOfDay, ok bool) {
	if d.Before(b.StartDate) {
		return 0, 0, false
	}
	first := d.Equal(b.StartDate)

	if b.OpenEnded() {
		if first {
			return b.StartTime, EndOfDay, true
		}
		return 0, EndOfDay, true
	}

	if d.After(*b.EndDate) {
		return 0, 0, false
	}
	last := d.Equal(*b.EndDate)

	start = 0
	end = EndOfDay
	if first {
		start = b.StartTime
	}
	if last {
		if b.EndTime != nil {
			end = *b.EndTime
		}
	}
	if start >= end {
		return 0, 0, false
	}
	return start, end, true
}

// Snapshot is the full configuration graph for one agenda, loaded in a
// single read transaction so the pure resolver stages never touch I/O.
type Snapshot struct {
	Agenda    Agenda
	Config    Config
	Periods   []Period
	Overrides []DateOverride
	Blocks    []Block
}

// OverridesFor returns the overrides targeting date d.
func (s *Snapshot) OverridesFor(d Date) []DateOverride {
	var out []DateOverride
	for _, o := range s.Overrides {
		if o.Date.Equal(d) {
			out = append(out, o)
		}
	}
	return out
}

// SortPeriods orders periods by start time for deterministic output.
func SortPeriods(ps []Period) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Start != ps[j].Start {
			return ps[i].Start < ps[j].Start
		}
		return ps[i].End < ps[j].End
	})
}
