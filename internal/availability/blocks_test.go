package availability

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudelab/agenda/internal/agenda"
)

func openDay(date string, windows ...Window) Day {
	d := agenda.MustDate(date)
	for i := range windows {
		windows[i].Date = d
	}
	return Day{Date: d, Status: DayOpen, Windows: windows}
}

func window(start, end string) Window {
	return Window{
		Start:    agenda.MustTimeOfDay(start),
		End:      agenda.MustTimeOfDay(end),
		Interval: 30,
		Capacity: 1,
	}
}

func block(startDate, startTime, endDate, endTime string) agenda.Block {
	ed := agenda.MustDate(endDate)
	et := agenda.MustTimeOfDay(endTime)
	return agenda.Block{
		ID:        uuid.New(),
		StartDate: agenda.MustDate(startDate),
		StartTime: agenda.MustTimeOfDay(startTime),
		EndDate:   &ed,
		EndTime:   &et,
	}
}

func TestApplyBlocksInteriorSplit(t *testing.T) {
	days := ApplyBlocks(
		[]Day{openDay("2026-03-04", window("08:00", "12:00"))},
		[]agenda.Block{block("2026-03-04", "09:00", "2026-03-04", "10:00")},
	)

	require.Len(t, days, 1)
	require.Len(t, days[0].Windows, 2)
	assert.Equal(t, agenda.MustTimeOfDay("08:00"), days[0].Windows[0].Start)
	assert.Equal(t, agenda.MustTimeOfDay("09:00"), days[0].Windows[0].End)
	assert.Equal(t, agenda.MustTimeOfDay("10:00"), days[0].Windows[1].Start)
	assert.Equal(t, agenda.MustTimeOfDay("12:00"), days[0].Windows[1].End)
	assert.Equal(t, DayOpen, days[0].Status)
}

func TestApplyBlocksEdgeClips(t *testing.T) {
	days := ApplyBlocks(
		[]Day{openDay("2026-03-04", window("08:00", "12:00"))},
		[]agenda.Block{
			block("2026-03-04", "07:00", "2026-03-04", "08:30"),
			block("2026-03-04", "11:30", "2026-03-04", "13:00"),
		},
	)

	require.Len(t, days[0].Windows, 1)
	assert.Equal(t, agenda.MustTimeOfDay("08:30"), days[0].Windows[0].Start)
	assert.Equal(t, agenda.MustTimeOfDay("11:30"), days[0].Windows[0].End)
}

func TestApplyBlocksConsumedDayFlipsToBlocked(t *testing.T) {
	days := ApplyBlocks(
		[]Day{openDay("2026-03-04", window("08:00", "12:00"))},
		[]agenda.Block{block("2026-03-04", "08:00", "2026-03-04", "12:00")},
	)

	assert.Empty(t, days[0].Windows)
	assert.Equal(t, DayBlocked, days[0].Status)
}

func TestApplyBlocksHalfOpenBoundary(t *testing.T) {
	// A slot may start exactly where a block ends.
	days := ApplyBlocks(
		[]Day{openDay("2026-03-04", window("08:00", "10:00"))},
		[]agenda.Block{block("2026-03-04", "08:30", "2026-03-04", "09:30")},
	)

	slots := GenerateDaySlots(uuid.New(), days[0])
	require.Len(t, slots, 2)
	assert.Equal(t, agenda.MustTimeOfDay("08:00"), slots[0].Start)
	assert.Equal(t, agenda.MustTimeOfDay("09:30"), slots[1].Start)
}

func TestApplyBlocksMultiDaySpan(t *testing.T) {
	days := ApplyBlocks(
		[]Day{
			openDay("2026-03-03", window("08:00", "12:00")),
			openDay("2026-03-04", window("08:00", "12:00")),
			openDay("2026-03-05", window("08:00", "12:00")),
		},
		[]agenda.Block{block("2026-03-03", "10:00", "2026-03-05", "09:00")},
	)

	// First day keeps the piece before the block starts.
	require.Len(t, days[0].Windows, 1)
	assert.Equal(t, agenda.MustTimeOfDay("10:00"), days[0].Windows[0].End)
	// The middle day is fully masked.
	assert.Equal(t, DayBlocked, days[1].Status)
	// The last day restarts at the block's end time.
	require.Len(t, days[2].Windows, 1)
	assert.Equal(t, agenda.MustTimeOfDay("09:00"), days[2].Windows[0].Start)
}

func TestApplyBlocksOpenEnded(t *testing.T) {
	b := agenda.Block{
		ID:        uuid.New(),
		StartDate: agenda.MustDate("2026-03-04"),
		StartTime: agenda.MustTimeOfDay("12:00"),
	}
	days := ApplyBlocks(
		[]Day{
			openDay("2026-03-03", window("08:00", "18:00")),
			openDay("2026-03-04", window("08:00", "18:00")),
			openDay("2026-03-10", window("08:00", "18:00")),
		},
		[]agenda.Block{b},
	)

	// Dates before the block are untouched.
	require.Len(t, days[0].Windows, 1)
	// The start date keeps its morning.
	require.Len(t, days[1].Windows, 1)
	assert.Equal(t, agenda.MustTimeOfDay("12:00"), days[1].Windows[0].End)
	// Every later date is masked entirely.
	assert.Equal(t, DayBlocked, days[2].Status)
}

func TestApplyBlocksNoBlocks(t *testing.T) {
	in := []Day{openDay("2026-03-04", window("08:00", "12:00"))}
	out := ApplyBlocks(in, nil)
	assert.Equal(t, in, out)
}
