package availability

import "github.com/saudelab/agenda/internal/agenda"

// ApplyBlocks subtracts blackout intervals from resolved windows. Blocks
// run last and are never re-added by any other rule. Block intervals are
// half-open [start, end): a window piece may restart exactly at a block's
// end time.
//
// Partial overlap at a window's edge clips the edge; interior overlap
// splits the window in two, each piece independently re-entering slot
// generation. A day whose windows are all consumed flips to DayBlocked.
func ApplyBlocks(days []Day, blocks []agenda.Block) []Day {
	if len(blocks) == 0 {
		return days
	}
	out := make([]Day, len(days))
	for i, day := range days {
		out[i] = applyBlocksToDay(day, blocks)
	}
	return out
}

func applyBlocksToDay(day Day, blocks []agenda.Block) Day {
	if len(day.Windows) == 0 {
		return day
	}
	windows := day.Windows
	for _, b := range blocks {
		start, end, ok := b.IntervalOn(day.Date)
		if !ok {
			continue
		}
		windows = subtract(windows, start, end)
		if len(windows) == 0 {
			break
		}
	}
	day.Windows = windows
	if len(windows) == 0 {
		day.Status = DayBlocked
	}
	return day
}

// subtract removes [start, end) from every window, keeping interval and
// capacity on the surviving pieces.
func subtract(windows []Window, start, end agenda.TimeOfDay) []Window {
	var out []Window
	for _, w := range windows {
		switch {
		case end <= w.Start || start >= w.End:
			// no overlap
			out = append(out, w)
		case start <= w.Start && end >= w.End:
			// fully covered, window eliminated
		case start <= w.Start:
			// leading edge clipped
			w.Start = end
			out = append(out, w)
		case end >= w.End:
			// trailing edge clipped
			w.End = start
			out = append(out, w)
		default:
			// interior overlap: split into before and after pieces
			before := w
			before.End = start
			after := w
			after.Start = end
			out = append(out, before, after)
		}
	}
	return out
}
