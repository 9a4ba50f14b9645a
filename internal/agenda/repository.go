package agenda

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository is the configuration store consumed by the availability
// pipeline and mutated by the admin API.
type Repository interface {
	CreateAgenda(ctx context.Context, a Agenda, cfg Config) (*Snapshot, error)
	ListAgendas(ctx context.Context) ([]Agenda, error)
	Snapshot(ctx context.Context, agendaID uuid.UUID) (*Snapshot, error)
	UpdateAgenda(ctx context.Context, a Agenda) error
	UpdateConfig(ctx context.Context, cfg Config) error
	DeleteAgenda(ctx context.Context, agendaID uuid.UUID) error

	AddPeriod(ctx context.Context, agendaID uuid.UUID, p Period) (*Period, error)
	RemovePeriod(ctx context.Context, agendaID, periodID uuid.UUID) error
	AddOverride(ctx context.Context, agendaID uuid.UUID, o DateOverride) (*DateOverride, error)
	RemoveOverride(ctx context.Context, agendaID, overrideID uuid.UUID) error
	AddBlock(ctx context.Context, agendaID uuid.UUID, b Block, force bool) (*Block, error)
	RemoveBlock(ctx context.Context, agendaID, blockID uuid.UUID) error
}

// CommittedChecker reports already-committed reservation pressure so
// configuration writes cannot silently strand existing bookings.
type CommittedChecker interface {
	// MaxReservedPerSlot returns the highest committed count on any single
	// future slot of the agenda.
	MaxReservedPerSlot(ctx context.Context, agendaID uuid.UUID, from Date) (int, error)
	// MaxReservedPerDay returns the highest committed count on any single
	// future day of the agenda.
	MaxReservedPerDay(ctx context.Context, agendaID uuid.UUID, from Date) (int, error)
	// ReservedInRange counts committed reservations inside a blackout
	// candidate range; end may be nil for open-ended blocks.
	ReservedInRange(ctx context.Context, agendaID uuid.UUID, start time.Time, end *time.Time) (int, error)
}

// MemoryRepository keeps the aggregate in process memory. It backs unit
// tests and lets the service wire up without a database.
type MemoryRepository struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]*Snapshot
	committed CommittedChecker
	now       func() time.Time
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		snapshots: make(map[uuid.UUID]*Snapshot),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithCommittedChecker attaches reservation-pressure checks to writes.
func (r *MemoryRepository) WithCommittedChecker(c CommittedChecker) *MemoryRepository {
	r.committed = c
	return r
}

func (r *MemoryRepository) CreateAgenda(ctx context.Context, a Agenda, cfg Config) (*Snapshot, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a.Code = NormalizeCode(a.Code)
	for _, s := range r.snapshots {
		if s.Agenda.Code == a.Code {
			return nil, conflictf("code", "internal code %q already in use", a.Code)
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	cfg.AgendaID = a.ID
	a.CreatedAt = r.now()
	a.UpdatedAt = a.CreatedAt

	snap := &Snapshot{Agenda: a, Config: cfg}
	r.snapshots[a.ID] = snap
	return cloneSnapshot(snap), nil
}

func (r *MemoryRepository) ListAgendas(ctx context.Context) ([]Agenda, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agenda, 0, len(r.snapshots))
	for _, s := range r.snapshots {
		out = append(out, s.Agenda)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *MemoryRepository) Snapshot(ctx context.Context, agendaID uuid.UUID) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[agendaID]
	if !ok {
		return nil, ErrAgendaNotFound
	}
	return cloneSnapshot(s), nil
}

func (r *MemoryRepository) UpdateAgenda(ctx context.Context, a Agenda) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[a.ID]
	if !ok {
		return ErrAgendaNotFound
	}
	a.Code = NormalizeCode(a.Code)
	for id, other := range r.snapshots {
		if id != a.ID && other.Agenda.Code == a.Code {
			return conflictf("code", "internal code %q already in use", a.Code)
		}
	}
	a.CreatedAt = s.Agenda.CreatedAt
	a.UpdatedAt = r.now()
	s.Agenda = a
	return nil
}

func (r *MemoryRepository) UpdateConfig(ctx context.Context, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[cfg.AgendaID]
	if !ok {
		return ErrAgendaNotFound
	}
	if err := ValidateAggregate(cfg, s.Periods); err != nil {
		return err
	}
	if err := r.checkCeilingReduction(ctx, cfg); err != nil {
		return err
	}
	cfg.ID = s.Config.ID
	s.Config = cfg
	return nil
}

func (r *MemoryRepository) checkCeilingReduction(ctx context.Context, cfg Config) error {
	if r.committed == nil {
		return nil
	}
	today := DateOf(r.now())
	if cfg.SlotCapacity != nil {
		maxSlot, err := r.committed.MaxReservedPerSlot(ctx, cfg.AgendaID, today)
		if err != nil {
			return err
		}
		if maxSlot > *cfg.SlotCapacity {
			return conflictf("slot_capacity",
				"reduction to %d strands a slot with %d committed reservations",
				*cfg.SlotCapacity, maxSlot)
		}
	}
	if cfg.DayCapacity != nil {
		maxDay, err := r.committed.MaxReservedPerDay(ctx, cfg.AgendaID, today)
		if err != nil {
			return err
		}
		if maxDay > *cfg.DayCapacity {
			return conflictf("day_capacity",
				"reduction to %d strands a day with %d committed reservations",
				*cfg.DayCapacity, maxDay)
		}
	}
	return nil
}

func (r *MemoryRepository) DeleteAgenda(ctx context.Context, agendaID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snapshots[agendaID]; !ok {
		return ErrAgendaNotFound
	}
	// Owning cascade: configuration, periods, overrides and blocks die
	// with the agenda.
	delete(r.snapshots, agendaID)
	return nil
}

func (r *MemoryRepository) AddPeriod(ctx context.Context, agendaID uuid.UUID, p Period) (*Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[agendaID]
	if !ok {
		return nil, ErrAgendaNotFound
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.ConfigID = s.Config.ID
	next := append(append([]Period(nil), s.Periods...), p)
	if err := ValidateAggregate(s.Config, next); err != nil {
		return nil, err
	}
	s.Periods = next
	SortPeriods(s.Periods)
	return &p, nil
}

func (r *MemoryRepository) RemovePeriod(ctx context.Context, agendaID, periodID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[agendaID]
	if !ok {
		return ErrAgendaNotFound
	}
	for i, p := range s.Periods {
		if p.ID == periodID {
			s.Periods = append(s.Periods[:i], s.Periods[i+1:]...)
			return nil
		}
	}
	return ErrAgendaNotFound
}

func (r *MemoryRepository) AddOverride(ctx context.Context, agendaID uuid.UUID, o DateOverride) (*DateOverride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[agendaID]
	if !ok {
		return nil, ErrAgendaNotFound
	}
	if err := ValidateOverrideAgainst(s.Overrides, o); err != nil {
		return nil, err
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.ConfigID = s.Config.ID
	s.Overrides = append(s.Overrides, o)
	return &o, nil
}

func (r *MemoryRepository) RemoveOverride(ctx context.Context, agendaID, overrideID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[agendaID]
	if !ok {
		return ErrAgendaNotFound
	}
	for i, o := range s.Overrides {
		if o.ID == overrideID {
			s.Overrides = append(s.Overrides[:i], s.Overrides[i+1:]...)
			return nil
		}
	}
	return ErrAgendaNotFound
}

func (r *MemoryRepository) AddBlock(ctx context.Context, agendaID uuid.UUID, b Block, force bool) (*Block, error) {
	if err := ValidateBlock(b); err != nil {
		return nil, err
	}
	if r.committed != nil && !force {
		var end *time.Time
		if b.EndDate != nil {
			endTime := b.EndDate.At(EndOfDay)
			if b.EndTime != nil {
				endTime = b.EndDate.At(*b.EndTime)
			}
			end = &endTime
		}
		n, err := r.committed.ReservedInRange(ctx, agendaID, b.StartDate.At(b.StartTime), end)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, conflictf("block",
				"range holds %d committed reservations; repeat with force to override", n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[agendaID]
	if !ok {
		return nil, ErrAgendaNotFound
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.ConfigID = s.Config.ID
	s.Blocks = append(s.Blocks, b)
	return &b, nil
}

func (r *MemoryRepository) RemoveBlock(ctx context.Context, agendaID, blockID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[agendaID]
	if !ok {
		return ErrAgendaNotFound
	}
	for i, b := range s.Blocks {
		if b.ID == blockID {
			s.Blocks = append(s.Blocks[:i], s.Blocks[i+1:]...)
			return nil
		}
	}
	return ErrAgendaNotFound
}

func cloneSnapshot(s *Snapshot) *Snapshot {
	out := &Snapshot{
		Agenda:    s.Agenda,
		Config:    s.Config,
		Periods:   append([]Period(nil), s.Periods...),
		Overrides: append([]DateOverride(nil), s.Overrides...),
		Blocks:    append([]Block(nil), s.Blocks...),
	}
	return out
}
