package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/saudelab/agenda/internal/agenda"
	"github.com/saudelab/agenda/internal/observability/metrics"
	"github.com/saudelab/agenda/pkg/logging"
)

var availabilityTracer = otel.Tracer("agenda.internal.availability")

// SnapshotSource loads an agenda's configuration graph.
type SnapshotSource interface {
	Snapshot(ctx context.Context, agendaID uuid.UUID) (*agenda.Snapshot, error)
}

// CountsProvider reports committed reservations for a date range.
type CountsProvider interface {
	CountsInRange(ctx context.Context, agendaID uuid.UUID, from, to agenda.Date) (Counts, error)
}

// DaySlots is one day of the query result.
type DaySlots struct {
	Date     agenda.Date `json:"date"`
	Status   DayStatus   `json:"status"`
	Optional bool        `json:"optional,omitempty"`
	Slots    []Slot      `json:"slots"`
}

// Result is the full slot listing for a range.
type Result struct {
	AgendaID uuid.UUID  `json:"agenda_id"`
	Days     []DaySlots `json:"days"`
}

// Service runs the resolution pipeline over stored configuration.
type Service struct {
	source  SnapshotSource
	counts  CountsProvider
	cache   *SlotCache
	logger  *logging.Logger
	metrics *metrics.SchedulingMetrics

	// maxRangeDays bounds a single query; 0 disables the bound.
	maxRangeDays int
}

// NewService wires the pipeline. cache and metrics may be nil.
func NewService(source SnapshotSource, counts CountsProvider, cache *SlotCache, logger *logging.Logger, m *metrics.SchedulingMetrics, maxRangeDays int) *Service {
	if source == nil {
		panic("availability: snapshot source required")
	}
	if counts == nil {
		panic("availability: counts provider required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		source:       source,
		counts:       counts,
		cache:        cache,
		logger:       logger.WithComponent("availability"),
		metrics:      m,
		maxRangeDays: maxRangeDays,
	}
}

// ListSlots answers "what can a patient book between from and to".
// Identical inputs with no intervening configuration or reservation
// change return identical results.
func (s *Service) ListSlots(ctx context.Context, agendaID uuid.UUID, from, to agenda.Date) (*Result, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.list_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("agenda.id", agendaID.String()),
		attribute.String("agenda.from", from.String()),
		attribute.String("agenda.to", to.String()),
	)

	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	if s.maxRangeDays > 0 && agenda.DaysBetween(from, to)+1 > s.maxRangeDays {
		return nil, fmt.Errorf("availability: range wider than %d days: %w", s.maxRangeDays, ErrInvalidRange)
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, agendaID, from, to); ok {
			s.metrics.ObserveCache(true)
			return cached, nil
		}
		s.metrics.ObserveCache(false)
	}

	snap, err := s.source.Snapshot(ctx, agendaID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !snap.Agenda.Active {
		return nil, agenda.ErrAgendaInactive
	}

	counts, err := s.counts.CountsInRange(ctx, agendaID, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("availability: load reservation counts: %w", err)
	}

	result, err := Compute(snap, from, to, counts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	total := 0
	for _, d := range result.Days {
		total += len(d.Slots)
	}
	s.metrics.ObserveSlotQuery(len(result.Days), total)
	s.logger.Debug("slots resolved",
		"agenda_id", agendaID,
		"days", len(result.Days),
		"slots", total,
	)

	if s.cache != nil {
		s.cache.Set(ctx, agendaID, from, to, result)
	}
	return result, nil
}

// Compute runs the pure pipeline over an already-loaded snapshot.
func Compute(snap *agenda.Snapshot, from, to agenda.Date, counts Counts) (*Result, error) {
	days, err := ResolveRange(snap, from, to)
	if err != nil {
		return nil, err
	}
	days = ApplyBlocks(days, snap.Blocks)

	result := &Result{AgendaID: snap.Agenda.ID, Days: make([]DaySlots, 0, len(days))}
	for _, day := range days {
		slots := GenerateDaySlots(snap.Agenda.ID, day)
		ApplyCapacity(slots, snap.Config, counts)
		if slots == nil {
			slots = []Slot{}
		}
		result.Days = append(result.Days, DaySlots{
			Date:     day.Date,
			Status:   day.Status,
			Optional: day.Optional,
			Slots:    slots,
		})
	}
	return result, nil
}

// ComputeDay is the single-date variant used by the booking gate inside
// its commit transaction.
func ComputeDay(snap *agenda.Snapshot, d agenda.Date, counts Counts) (*DaySlots, error) {
	result, err := Compute(snap, d, d, counts)
	if err != nil {
		return nil, err
	}
	return &result.Days[0], nil
}
