package availability

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudelab/agenda/internal/agenda"
)

func TestGenerateSlotsQuantization(t *testing.T) {
	agendaID := uuid.New()
	w := window("08:00", "10:00")
	w.Date = agenda.MustDate("2026-03-02")
	w.Capacity = 3

	slots := GenerateSlots(agendaID, w)
	require.Len(t, slots, 4)
	assert.Equal(t, agenda.MustTimeOfDay("08:00"), slots[0].Start)
	assert.Equal(t, agenda.MustTimeOfDay("08:30"), slots[0].End)
	assert.Equal(t, agenda.MustTimeOfDay("09:30"), slots[3].Start)
	assert.Equal(t, agenda.MustTimeOfDay("10:00"), slots[3].End)
	for _, s := range slots {
		assert.Equal(t, agendaID, s.AgendaID)
		assert.Equal(t, 3, s.Capacity)
		assert.Equal(t, 3, s.Remaining)
	}
}

func TestGenerateSlotsRemainderDiscarded(t *testing.T) {
	w := window("08:00", "09:50")
	w.Date = agenda.MustDate("2026-03-02")

	slots := GenerateSlots(uuid.New(), w)
	// 09:30-10:00 would cross the window end; the 20-minute tail is dropped.
	require.Len(t, slots, 3)
	assert.Equal(t, agenda.MustTimeOfDay("09:00"), slots[2].Start)
}

func TestGenerateSlotsDegenerate(t *testing.T) {
	w := window("08:00", "08:20")
	assert.Empty(t, GenerateSlots(uuid.New(), w))

	w = window("08:00", "12:00")
	w.Interval = 0
	assert.Nil(t, GenerateSlots(uuid.New(), w))
}

func TestGenerateDaySlotsOrdering(t *testing.T) {
	day := openDay("2026-03-02", window("08:00", "09:00"), window("14:00", "15:00"))
	slots := GenerateDaySlots(uuid.New(), day)
	require.Len(t, slots, 4)
	assert.Equal(t, agenda.MustTimeOfDay("08:00"), slots[0].Start)
	assert.Equal(t, agenda.MustTimeOfDay("14:30"), slots[3].Start)
}

func TestApplyCapacitySubtractsCommitted(t *testing.T) {
	d := agenda.MustDate("2026-03-02")
	slots := []Slot{
		{Date: d, Start: agenda.MustTimeOfDay("08:00"), Capacity: 3, Remaining: 3},
		{Date: d, Start: agenda.MustTimeOfDay("08:30"), Capacity: 3, Remaining: 3},
	}
	counts := NewCounts()
	counts.BySlot[SlotKey(d, agenda.MustTimeOfDay("08:00"))] = 2
	counts.ByDay[d.String()] = 2

	ApplyCapacity(slots, agenda.Config{Interval: 30}, counts)

	assert.Equal(t, 1, slots[0].Remaining)
	assert.Equal(t, 3, slots[1].Remaining)
}

func TestApplyCapacityDayCeiling(t *testing.T) {
	d := agenda.MustDate("2026-03-02")
	dayCap := 5
	slots := []Slot{
		{Date: d, Start: agenda.MustTimeOfDay("08:00"), Capacity: 3, Remaining: 3},
		{Date: d, Start: agenda.MustTimeOfDay("08:30"), Capacity: 3, Remaining: 3},
	}
	counts := NewCounts()
	counts.BySlot[SlotKey(d, agenda.MustTimeOfDay("08:00"))] = 1
	counts.ByDay[d.String()] = 4

	ApplyCapacity(slots, agenda.Config{Interval: 30, DayCapacity: &dayCap}, counts)

	// The day has one seat left overall; both slots are bounded by it.
	assert.Equal(t, 1, slots[0].Remaining)
	assert.Equal(t, 1, slots[1].Remaining)
}

func TestApplyCapacityClampsAtZero(t *testing.T) {
	d := agenda.MustDate("2026-03-02")
	dayCap := 2
	slots := []Slot{
		{Date: d, Start: agenda.MustTimeOfDay("08:00"), Capacity: 1, Remaining: 1},
	}
	counts := NewCounts()
	counts.ByDay[d.String()] = 3

	ApplyCapacity(slots, agenda.Config{Interval: 30, DayCapacity: &dayCap}, counts)

	// Full slots stay in the list at zero; they never go negative.
	require.Len(t, slots, 1)
	assert.Equal(t, 0, slots[0].Remaining)
}
