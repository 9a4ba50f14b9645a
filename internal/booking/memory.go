package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saudelab/agenda/internal/agenda"
	"github.com/saudelab/agenda/internal/availability"
)

type memorySlot struct {
	agendaID uuid.UUID
	date     agenda.Date
	start    agenda.TimeOfDay
}

type memoryReservation struct {
	slot     memorySlot
	released bool
}

// MemoryGate commits reservations against in-process counters. A single
// mutex spans the whole check-then-increment sequence, so concurrent
// attempts on one slot serialize and never oversell. It also implements
// availability.CountsProvider and agenda.CommittedChecker, which makes
// it the counter store for database-less wiring.
type MemoryGate struct {
	mu           sync.Mutex
	source       availability.SnapshotSource
	counters     map[memorySlot]int
	reservations map[uuid.UUID]*memoryReservation
}

// NewMemoryGate builds a gate over the given configuration source.
func NewMemoryGate(source availability.SnapshotSource) *MemoryGate {
	if source == nil {
		panic("booking: nil snapshot source")
	}
	return &MemoryGate{
		source:       source,
		counters:     make(map[memorySlot]int),
		reservations: make(map[uuid.UUID]*memoryReservation),
	}
}

// Reserve resolves the requested date under the lock and commits one
// seat when the slot still has remaining capacity.
func (g *MemoryGate) Reserve(ctx context.Context, agendaID uuid.UUID, date agenda.Date, start agenda.TimeOfDay) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap, err := g.source.Snapshot(ctx, agendaID)
	if err != nil {
		return nil, fmt.Errorf("booking: load snapshot: %w", err)
	}
	if !snap.Agenda.Active {
		return nil, agenda.ErrAgendaInactive
	}

	day, err := availability.ComputeDay(snap, date, g.countsForLocked(agendaID, date))
	if err != nil {
		return nil, fmt.Errorf("booking: resolve day: %w", err)
	}
	slot, outcome := classify(day, snap, date, start)
	if outcome != OutcomeReserved {
		res := &Result{Outcome: outcome}
		if slot != nil {
			res.Remaining = slot.Remaining
		}
		return res, nil
	}

	key := memorySlot{agendaID: agendaID, date: date, start: start}
	g.counters[key]++
	token := uuid.New()
	g.reservations[token] = &memoryReservation{slot: key}
	return &Result{Outcome: OutcomeReserved, Token: token, Remaining: slot.Remaining - 1}, nil
}

// Release returns the reserved seat identified by token.
func (g *MemoryGate) Release(ctx context.Context, token uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.reservations[token]
	if !ok {
		return ErrReservationNotFound
	}
	if res.released {
		return ErrAlreadyReleased
	}
	res.released = true
	if g.counters[res.slot] > 0 {
		g.counters[res.slot]--
	}
	return nil
}

// CountsInRange implements availability.CountsProvider.
func (g *MemoryGate) CountsInRange(ctx context.Context, agendaID uuid.UUID, from, to agenda.Date) (availability.Counts, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	counts := availability.NewCounts()
	for key, n := range g.counters {
		if key.agendaID != agendaID || n == 0 {
			continue
		}
		if key.date.Before(from) || key.date.After(to) {
			continue
		}
		counts.BySlot[availability.SlotKey(key.date, key.start)] += n
		counts.ByDay[key.date.String()] += n
	}
	return counts, nil
}

// countsForLocked is CountsInRange for one date, callable under the lock.
func (g *MemoryGate) countsForLocked(agendaID uuid.UUID, d agenda.Date) availability.Counts {
	counts := availability.NewCounts()
	for key, n := range g.counters {
		if key.agendaID != agendaID || n == 0 || !key.date.Equal(d) {
			continue
		}
		counts.BySlot[availability.SlotKey(key.date, key.start)] += n
		counts.ByDay[key.date.String()] += n
	}
	return counts
}

// MaxReservedPerSlot implements agenda.CommittedChecker.
func (g *MemoryGate) MaxReservedPerSlot(ctx context.Context, agendaID uuid.UUID, from agenda.Date) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	max := 0
	for key, n := range g.counters {
		if key.agendaID != agendaID || key.date.Before(from) {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}

// MaxReservedPerDay implements agenda.CommittedChecker.
func (g *MemoryGate) MaxReservedPerDay(ctx context.Context, agendaID uuid.UUID, from agenda.Date) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	perDay := make(map[string]int)
	for key, n := range g.counters {
		if key.agendaID != agendaID || key.date.Before(from) {
			continue
		}
		perDay[key.date.String()] += n
	}
	max := 0
	for _, n := range perDay {
		if n > max {
			max = n
		}
	}
	return max, nil
}

// ReservedInRange implements agenda.CommittedChecker.
func (g *MemoryGate) ReservedInRange(ctx context.Context, agendaID uuid.UUID, start time.Time, end *time.Time) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := 0
	for key, n := range g.counters {
		if key.agendaID != agendaID || n == 0 {
			continue
		}
		at := key.date.At(key.start)
		if at.Before(start) {
			continue
		}
		if end != nil && !at.Before(*end) {
			continue
		}
		total += n
	}
	return total, nil
}
