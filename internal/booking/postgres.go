package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/saudelab/agenda/internal/agenda"
	"github.com/saudelab/agenda/internal/availability"
	"github.com/saudelab/agenda/internal/observability/metrics"
	"github.com/saudelab/agenda/pkg/logging"
)

var bookingTracer = otel.Tracer("agenda.internal.booking")

// lockTimeoutSQLState is raised when lock_timeout expires before the
// counter row lock is granted.
const lockTimeoutSQLState = "55P03"

// PostgresGate commits reservations inside one transaction: it locks the
// slot's counter row, re-resolves the day against committed counts, and
// only then increments. Two concurrent attempts on the last seat
// serialize on the row lock and the loser sees the slot full. When the
// agenda carries a day ceiling the whole date is serialized through a
// day_locks row; uncapped agendas keep slot-granular locking, so
// reserves on distinct slots never wait on each other there.
type PostgresGate struct {
	db          agenda.DB
	repo        *agenda.PostgresRepository
	lockTimeout time.Duration
	cache       *availability.SlotCache
	logger      *logging.Logger
	metrics     *metrics.SchedulingMetrics
}

// NewPostgresGate wires the gate. cache and metrics may be nil.
func NewPostgresGate(db agenda.DB, repo *agenda.PostgresRepository, lockTimeout time.Duration, cache *availability.SlotCache, logger *logging.Logger, m *metrics.SchedulingMetrics) *PostgresGate {
	if db == nil {
		panic("booking: database handle required")
	}
	if repo == nil {
		panic("booking: agenda repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresGate{
		db:          db,
		repo:        repo,
		lockTimeout: lockTimeout,
		cache:       cache,
		logger:      logger.WithComponent("booking"),
		metrics:     m,
	}
}

// Reserve attempts to commit one seat on the identified slot.
func (g *PostgresGate) Reserve(ctx context.Context, agendaID uuid.UUID, date agenda.Date, start agenda.TimeOfDay) (*Result, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("agenda.id", agendaID.String()),
		attribute.String("slot.date", date.String()),
		attribute.String("slot.start", start.String()),
	)
	began := time.Now()

	res, err := g.reserveTx(ctx, agendaID, date, start)
	if err != nil {
		span.RecordError(err)
		g.metrics.ObserveReserve("error", time.Since(began).Seconds())
		return nil, err
	}

	g.metrics.ObserveReserve(string(res.Outcome), time.Since(began).Seconds())
	if res.Outcome == OutcomeReserved {
		g.cache.Invalidate(ctx, agendaID)
		g.logger.Info("reservation committed",
			"agenda_id", agendaID,
			"date", date,
			"start", start,
			"token", res.Token,
			"remaining", res.Remaining,
		)
	}
	return res, nil
}

func (g *PostgresGate) reserveTx(ctx context.Context, agendaID uuid.UUID, date agenda.Date, start agenda.TimeOfDay) (*Result, error) {
	tx, err := g.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := g.applyLockTimeout(ctx, tx); err != nil {
		return nil, err
	}

	snap, err := g.repo.SnapshotWith(ctx, tx, agendaID)
	if err != nil {
		return nil, err
	}
	if !snap.Agenda.Active {
		return nil, agenda.ErrAgendaInactive
	}

	// A day ceiling spans every slot of the date, so the slot row lock
	// alone cannot defend it: two reserves on different slots would each
	// read the day's counts before the other commits. Lock order is
	// always day before slot.
	if snap.Config.DayCapacity != nil {
		if err := g.lockDay(ctx, tx, agendaID, date); err != nil {
			return nil, err
		}
	}

	// Ensure the counter row exists so the subsequent lock has a target.
	_, err = tx.Exec(ctx, `
		INSERT INTO slot_counters (agenda_id, slot_date, slot_start, reserved)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (agenda_id, slot_date, slot_start) DO NOTHING`,
		agendaID, date.Time(), start.String())
	if err != nil {
		return nil, classifyLock(fmt.Errorf("booking: seed counter: %w", err))
	}

	var reserved int
	err = tx.QueryRow(ctx, `
		SELECT reserved FROM slot_counters
		WHERE agenda_id = $1 AND slot_date = $2 AND slot_start = $3
		FOR UPDATE`,
		agendaID, date.Time(), start.String()).Scan(&reserved)
	if err != nil {
		return nil, classifyLock(fmt.Errorf("booking: lock counter: %w", err))
	}

	counts, err := dayCounts(ctx, tx, agendaID, date)
	if err != nil {
		return nil, err
	}
	day, err := availability.ComputeDay(snap, date, counts)
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

	_, err = tx.Exec(ctx, `
		UPDATE slot_counters SET reserved = reserved + 1
		WHERE agenda_id = $1 AND slot_date = $2 AND slot_start = $3`,
		agendaID, date.Time(), start.String())
	if err != nil {
		return nil, fmt.Errorf("booking: increment counter: %w", err)
	}

	token := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO slot_reservations (id, agenda_id, slot_date, slot_start, criado_em)
		VALUES ($1, $2, $3, $4, now())`,
		token, agendaID, date.Time(), start.String())
	if err != nil {
		return nil, fmt.Errorf("booking: record reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit reserve: %w", err)
	}
	return &Result{Outcome: OutcomeReserved, Token: token, Remaining: slot.Remaining - 1}, nil
}

// lockDay serializes the transaction against every other reserve on the
// same (agenda, date) via a lock-only day_locks row. Only day-capped
// agendas call it.
func (g *PostgresGate) lockDay(ctx context.Context, tx pgx.Tx, agendaID uuid.UUID, date agenda.Date) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO day_locks (agenda_id, slot_date)
		VALUES ($1, $2)
		ON CONFLICT (agenda_id, slot_date) DO NOTHING`,
		agendaID, date.Time())
	if err != nil {
		return classifyLock(fmt.Errorf("booking: seed day lock: %w", err))
	}
	var one int
	err = tx.QueryRow(ctx, `
		SELECT 1 FROM day_locks
		WHERE agenda_id = $1 AND slot_date = $2
		FOR UPDATE`,
		agendaID, date.Time()).Scan(&one)
	if err != nil {
		return classifyLock(fmt.Errorf("booking: lock day: %w", err))
	}
	return nil
}

// Release returns the seat held by token. Decrementing can only lower
// day totals, so it takes no day lock; the counter row is locked in the
// same order Reserve locks it, so the two never deadlock.
func (g *PostgresGate) Release(ctx context.Context, token uuid.UUID) error {
	ctx, span := bookingTracer.Start(ctx, "booking.release")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.token", token.String()))

	tx, err := g.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("booking: begin release: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := g.applyLockTimeout(ctx, tx); err != nil {
		return err
	}

	var (
		agendaID uuid.UUID
		slotDate time.Time
		slotText string
		released *time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT agenda_id, slot_date, slot_start::text, liberado_em
		FROM slot_reservations WHERE id = $1
		FOR UPDATE`,
		token).Scan(&agendaID, &slotDate, &slotText, &released)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrReservationNotFound
	}
	if err != nil {
		return classifyLock(fmt.Errorf("booking: lock reservation: %w", err))
	}
	if released != nil {
		return ErrAlreadyReleased
	}

	_, err = tx.Exec(ctx, `
		UPDATE slot_reservations SET liberado_em = now() WHERE id = $1`, token)
	if err != nil {
		return fmt.Errorf("booking: mark released: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE slot_counters SET reserved = GREATEST(reserved - 1, 0)
		WHERE agenda_id = $1 AND slot_date = $2 AND slot_start = $3`,
		agendaID, slotDate, slotText)
	if err != nil {
		return classifyLock(fmt.Errorf("booking: decrement counter: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("booking: commit release: %w", err)
	}

	g.cache.Invalidate(ctx, agendaID)
	g.logger.Info("reservation released", "agenda_id", agendaID, "token", token)
	return nil
}

// applyLockTimeout bounds how long the transaction waits on row locks.
// SET LOCAL does not accept bind parameters, and the duration comes
// from configuration, never request input.
func (g *PostgresGate) applyLockTimeout(ctx context.Context, tx pgx.Tx) error {
	if g.lockTimeout <= 0 {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", g.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("booking: set lock timeout: %w", err)
	}
	return nil
}

// classifyLock maps a lock_timeout expiry to the retryable sentinel.
func classifyLock(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockTimeoutSQLState {
		return fmt.Errorf("%w: %s", ErrConcurrencyTimeout, pgErr.Message)
	}
	return err
}

// dayCounts loads committed counts for a single date using the gate's
// transaction, so the resolution sees the locked counter state.
func dayCounts(ctx context.Context, q agenda.Querier, agendaID uuid.UUID, d agenda.Date) (availability.Counts, error) {
	counts := availability.NewCounts()
	rows, err := q.Query(ctx, `
		SELECT slot_start::text, reserved FROM slot_counters
		WHERE agenda_id = $1 AND slot_date = $2 AND reserved > 0`,
		agendaID, d.Time())
	if err != nil {
		return counts, fmt.Errorf("booking: load day counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var startText string
		var n int
		if err := rows.Scan(&startText, &n); err != nil {
			return counts, fmt.Errorf("booking: scan day counts: %w", err)
		}
		start, err := agenda.ParseTimeOfDay(startText)
		if err != nil {
			return counts, fmt.Errorf("booking: counter slot_start: %w", err)
		}
		counts.BySlot[availability.SlotKey(d, start)] = n
		counts.ByDay[d.String()] += n
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("booking: iterate day counts: %w", err)
	}
	return counts, nil
}

// PostgresCounterStore reads committed-reservation pressure out of the
// counter table. It backs both the availability query path and the
// configuration guards that reject capacity reductions below committed
// load.
type PostgresCounterStore struct {
	db agenda.DB
}

// NewPostgresCounterStore builds a store over the shared pool.
func NewPostgresCounterStore(db agenda.DB) *PostgresCounterStore {
	if db == nil {
		panic("booking: database handle required")
	}
	return &PostgresCounterStore{db: db}
}

// CountsInRange implements availability.CountsProvider.
func (s *PostgresCounterStore) CountsInRange(ctx context.Context, agendaID uuid.UUID, from, to agenda.Date) (availability.Counts, error) {
	counts := availability.NewCounts()
	rows, err := s.db.Query(ctx, `
		SELECT slot_date, slot_start::text, reserved FROM slot_counters
		WHERE agenda_id = $1 AND slot_date BETWEEN $2 AND $3 AND reserved > 0`,
		agendaID, from.Time(), to.Time())
	if err != nil {
		return counts, fmt.Errorf("booking: load counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			day       time.Time
			startText string
			n         int
		)
		if err := rows.Scan(&day, &startText, &n); err != nil {
			return counts, fmt.Errorf("booking: scan counts: %w", err)
		}
		start, err := agenda.ParseTimeOfDay(startText)
		if err != nil {
			return counts, fmt.Errorf("booking: counter slot_start: %w", err)
		}
		d := agenda.DateOf(day)
		counts.BySlot[availability.SlotKey(d, start)] = n
		counts.ByDay[d.String()] += n
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("booking: iterate counts: %w", err)
	}
	return counts, nil
}

// MaxReservedPerSlot implements agenda.CommittedChecker.
func (s *PostgresCounterStore) MaxReservedPerSlot(ctx context.Context, agendaID uuid.UUID, from agenda.Date) (int, error) {
	var max int
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(reserved), 0) FROM slot_counters
		WHERE agenda_id = $1 AND slot_date >= $2`,
		agendaID, from.Time()).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("booking: max per slot: %w", err)
	}
	return max, nil
}

// MaxReservedPerDay implements agenda.CommittedChecker.
func (s *PostgresCounterStore) MaxReservedPerDay(ctx context.Context, agendaID uuid.UUID, from agenda.Date) (int, error) {
	var max int
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(day_total), 0) FROM (
			SELECT SUM(reserved) AS day_total FROM slot_counters
			WHERE agenda_id = $1 AND slot_date >= $2
			GROUP BY slot_date
		) totals`,
		agendaID, from.Time()).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("booking: max per day: %w", err)
	}
	return max, nil
}

// ReservedInRange implements agenda.CommittedChecker. end nil means the
// candidate blackout extends indefinitely.
func (s *PostgresCounterStore) ReservedInRange(ctx context.Context, agendaID uuid.UUID, start time.Time, end *time.Time) (int, error) {
	var total int
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(reserved), 0) FROM slot_counters
		WHERE agenda_id = $1
		  AND slot_date + slot_start >= $2
		  AND ($3::timestamptz IS NULL OR slot_date + slot_start < $3)`,
		agendaID, start, end).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("booking: reserved in range: %w", err)
	}
	return total, nil
}
