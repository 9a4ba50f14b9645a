package agenda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the read surface shared by the pool, transactions and mocks.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the database handle the repository needs; *pgxpool.Pool satisfies
// it, and so does the pgxmock pool in tests.
type DB interface {
	Querier
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository persists the agenda configuration graph.
type PostgresRepository struct {
	db        DB
	committed CommittedChecker
}

// NewPostgresRepository creates a repository backed by pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("agenda: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting mocks for tests.
func NewPostgresRepositoryWithDB(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// WithCommittedChecker attaches reservation-pressure checks to writes.
func (r *PostgresRepository) WithCommittedChecker(c CommittedChecker) *PostgresRepository {
	r.committed = c
	return r
}

func (r *PostgresRepository) CreateAgenda(ctx context.Context, a Agenda, cfg Config) (*Snapshot, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("agenda: begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	cfg.AgendaID = a.ID
	a.Code = NormalizeCode(a.Code)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM agendas WHERE codigo_interno = $1)`, a.Code,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("agenda: check code: %w", err)
	}
	if exists {
		return nil, conflictf("code", "internal code %q already in use", a.Code)
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO agendas (id, codigo_interno, nome_agenda, descricao, unidade_associada_id, ativo)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING criado_em, atualizado_em
	`, a.ID, a.Code, a.Name, a.Description, a.UnitID, a.Active).Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, fmt.Errorf("agenda: insert agenda: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO configuracoes_agenda
			(id, agenda_id, dias_semana, intervalo_agendamento, capacidade_total, capacidade_por_horario)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, cfg.ID, cfg.AgendaID, cfg.Weekdays.String(), cfg.Interval, cfg.DayCapacity, cfg.SlotCapacity); err != nil {
		return nil, fmt.Errorf("agenda: insert config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("agenda: commit create: %w", err)
	}
	return &Snapshot{Agenda: a, Config: cfg}, nil
}

func (r *PostgresRepository) ListAgendas(ctx context.Context) ([]Agenda, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, codigo_interno, nome_agenda, COALESCE(descricao, ''),
		       COALESCE(unidade_associada_id::text, ''), ativo, criado_em, atualizado_em
		FROM agendas
		ORDER BY codigo_interno
	`)
	if err != nil {
		return nil, fmt.Errorf("agenda: list: %w", err)
	}
	defer rows.Close()

	var out []Agenda
	for rows.Next() {
		var a Agenda
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.UnitID,
			&a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("agenda: scan agenda: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Snapshot loads the whole configuration graph in one read transaction.
func (r *PostgresRepository) Snapshot(ctx context.Context, agendaID uuid.UUID) (*Snapshot, error) {
	return r.SnapshotWith(ctx, r.db, agendaID)
}

// SnapshotWith loads the aggregate through an arbitrary querier. The
// booking gate uses this to re-resolve availability inside its own
// commit transaction.
func (r *PostgresRepository) SnapshotWith(ctx context.Context, q Querier, agendaID uuid.UUID) (*Snapshot, error) {
	snap := &Snapshot{}
	var days string
	err := q.QueryRow(ctx, `
		SELECT a.id, a.codigo_interno, a.nome_agenda, COALESCE(a.descricao, ''),
		       COALESCE(a.unidade_associada_id::text, ''), a.ativo, a.criado_em, a.atualizado_em,
		       c.id, c.dias_semana, c.intervalo_agendamento, c.capacidade_total, c.capacidade_por_horario
		FROM agendas a
		JOIN configuracoes_agenda c ON c.agenda_id = a.id
		WHERE a.id = $1
	`, agendaID).Scan(
		&snap.Agenda.ID, &snap.Agenda.Code, &snap.Agenda.Name, &snap.Agenda.Description,
		&snap.Agenda.UnitID, &snap.Agenda.Active, &snap.Agenda.CreatedAt, &snap.Agenda.UpdatedAt,
		&snap.Config.ID, &days, &snap.Config.Interval,
		&snap.Config.DayCapacity, &snap.Config.SlotCapacity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgendaNotFound
		}
		return nil, fmt.Errorf("agenda: load snapshot: %w", err)
	}
	snap.Config.AgendaID = snap.Agenda.ID
	if snap.Config.Weekdays, err = ParseWeekdayMask(days); err != nil {
		return nil, err
	}

	if snap.Periods, err = loadPeriods(ctx, q, snap.Config.ID); err != nil {
		return nil, err
	}
	if snap.Overrides, err = loadOverrides(ctx, q, snap.Config.ID); err != nil {
		return nil, err
	}
	if snap.Blocks, err = loadBlocks(ctx, q, snap.Config.ID); err != nil {
		return nil, err
	}
	return snap, nil
}

func loadPeriods(ctx context.Context, q Querier, configID uuid.UUID) ([]Period, error) {
	rows, err := q.Query(ctx, `
		SELECT id, periodo, horario_inicio::text, horario_fim::text,
		       dias_semana, data_especifica, intervalo_periodo, capacidade_periodo
		FROM periodos_atendimento
		WHERE configuracao_agenda_id = $1
		ORDER BY horario_inicio
	`, configID)
	if err != nil {
		return nil, fmt.Errorf("agenda: load periods: %w", err)
	}
	defer rows.Close()

	var out []Period
	for rows.Next() {
		var (
			p          Period
			start, end string
			days       *string
			date       *time.Time
		)
		if err := rows.Scan(&p.ID, &p.Name, &start, &end, &days, &date, &p.Interval, &p.Capacity); err != nil {
			return nil, fmt.Errorf("agenda: scan period: %w", err)
		}
		p.ConfigID = configID
		if p.Start, err = ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if p.End, err = ParseTimeOfDay(end); err != nil {
			return nil, err
		}
		if days != nil {
			mask, err := ParseWeekdayMask(*days)
			if err != nil {
				return nil, err
			}
			p.Weekdays = &mask
		}
		if date != nil {
			d := DateOf(*date)
			p.SpecificDate = &d
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func loadOverrides(ctx context.Context, q Querier, configID uuid.UUID) ([]DateOverride, error) {
	rows, err := q.Query(ctx, `
		SELECT id, data, hora_inicio::text, hora_fim::text, capacidade, is_feriado, is_periodo_facultativo
		FROM horarios_especificos
		WHERE configuracao_agenda_id = $1
		ORDER BY data, hora_inicio
	`, configID)
	if err != nil {
		return nil, fmt.Errorf("agenda: load overrides: %w", err)
	}
	defer rows.Close()

	var out []DateOverride
	for rows.Next() {
		var (
			o          DateOverride
			date       time.Time
			start, end string
		)
		if err := rows.Scan(&o.ID, &date, &start, &end, &o.Capacity, &o.Holiday, &o.Optional); err != nil {
			return nil, fmt.Errorf("agenda: scan override: %w", err)
		}
		o.ConfigID = configID
		o.Date = DateOf(date)
		if o.Start, err = ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if o.End, err = ParseTimeOfDay(end); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func loadBlocks(ctx context.Context, q Querier, configID uuid.UUID) ([]Block, error) {
	rows, err := q.Query(ctx, `
		SELECT id, data_inicio, hora_inicio::text, data_fim, hora_fim::text,
		       COALESCE(motivo_bloqueio, ''), COALESCE(observacao, '')
		FROM bloqueios_horario
		WHERE configuracao_agenda_id = $1
		ORDER BY data_inicio, hora_inicio
	`, configID)
	if err != nil {
		return nil, fmt.Errorf("agenda: load blocks: %w", err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		var (
			b         Block
			startDate time.Time
			endDate   *time.Time
			start     string
			end       *string
		)
		if err := rows.Scan(&b.ID, &startDate, &start, &endDate, &end, &b.Reason, &b.Note); err != nil {
			return nil, fmt.Errorf("agenda: scan block: %w", err)
		}
		b.ConfigID = configID
		b.StartDate = DateOf(startDate)
		if b.StartTime, err = ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if endDate != nil {
			d := DateOf(*endDate)
			b.EndDate = &d
		}
		if end != nil {
			t, err := ParseTimeOfDay(*end)
			if err != nil {
				return nil, err
			}
			b.EndTime = &t
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateAgenda(ctx context.Context, a Agenda) error {
	a.Code = NormalizeCode(a.Code)
	tag, err := r.db.Exec(ctx, `
		UPDATE agendas
		SET codigo_interno = $2, nome_agenda = $3, descricao = $4,
		    unidade_associada_id = NULLIF($5, '')::uuid, ativo = $6, atualizado_em = now()
		WHERE id = $1
	`, a.ID, a.Code, a.Name, a.Description, a.UnitID, a.Active)
	if err != nil {
		return fmt.Errorf("agenda: update agenda: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgendaNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateConfig(ctx context.Context, cfg Config) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("agenda: begin config update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap, err := r.lockAggregate(ctx, tx, cfg.AgendaID)
	if err != nil {
		return err
	}
	cfg.ID = snap.Config.ID
	if err := ValidateAggregate(cfg, snap.Periods); err != nil {
		return err
	}
	if err := r.checkCeilingReduction(ctx, cfg); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE configuracoes_agenda
		SET dias_semana = $2, intervalo_agendamento = $3, capacidade_total = $4, capacidade_por_horario = $5
		WHERE id = $1
	`, cfg.ID, cfg.Weekdays.String(), cfg.Interval, cfg.DayCapacity, cfg.SlotCapacity); err != nil {
		return fmt.Errorf("agenda: update config: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("agenda: commit config update: %w", err)
	}
	return nil
}

func (r *PostgresRepository) checkCeilingReduction(ctx context.Context, cfg Config) error {
	if r.committed == nil {
		return nil
	}
	today := DateOf(time.Now().UTC())
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

// lockAggregate pins the configuration row and reloads the aggregate so
// write validation sees a serialized view.
func (r *PostgresRepository) lockAggregate(ctx context.Context, tx pgx.Tx, agendaID uuid.UUID) (*Snapshot, error) {
	var configID uuid.UUID
	err := tx.QueryRow(ctx,
		`SELECT id FROM configuracoes_agenda WHERE agenda_id = $1 FOR UPDATE`, agendaID,
	).Scan(&configID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgendaNotFound
		}
		return nil, fmt.Errorf("agenda: lock config: %w", err)
	}
	return r.SnapshotWith(ctx, tx, agendaID)
}

func (r *PostgresRepository) DeleteAgenda(ctx context.Context, agendaID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("agenda: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Explicit owning cascade, child rows first.
	for _, q := range []string{
		`DELETE FROM periodos_atendimento WHERE configuracao_agenda_id IN
			(SELECT id FROM configuracoes_agenda WHERE agenda_id = $1)`,
		`DELETE FROM horarios_especificos WHERE configuracao_agenda_id IN
			(SELECT id FROM configuracoes_agenda WHERE agenda_id = $1)`,
		`DELETE FROM bloqueios_horario WHERE configuracao_agenda_id IN
			(SELECT id FROM configuracoes_agenda WHERE agenda_id = $1)`,
		`DELETE FROM slot_counters WHERE agenda_id = $1`,
		`DELETE FROM slot_reservations WHERE agenda_id = $1`,
		`DELETE FROM day_locks WHERE agenda_id = $1`,
		`DELETE FROM configuracoes_agenda WHERE agenda_id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, agendaID); err != nil {
			return fmt.Errorf("agenda: cascade delete: %w", err)
		}
	}
	tag, err := tx.Exec(ctx, `DELETE FROM agendas WHERE id = $1`, agendaID)
	if err != nil {
		return fmt.Errorf("agenda: delete agenda: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgendaNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("agenda: commit delete: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddPeriod(ctx context.Context, agendaID uuid.UUID, p Period) (*Period, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("agenda: begin add period: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap, err := r.lockAggregate(ctx, tx, agendaID)
	if err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.ConfigID = snap.Config.ID
	if err := ValidateAggregate(snap.Config, append(snap.Periods, p)); err != nil {
		return nil, err
	}

	var days *string
	if p.Weekdays != nil {
		s := p.Weekdays.String()
		days = &s
	}
	var date *time.Time
	if p.SpecificDate != nil {
		t := p.SpecificDate.Time()
		date = &t
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO periodos_atendimento
			(id, configuracao_agenda_id, periodo, horario_inicio, horario_fim,
			 dias_semana, data_especifica, intervalo_periodo, capacidade_periodo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.ConfigID, string(p.Name), p.Start.String(), p.End.String(),
		days, date, p.Interval, p.Capacity); err != nil {
		return nil, fmt.Errorf("agenda: insert period: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("agenda: commit add period: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) RemovePeriod(ctx context.Context, agendaID, periodID uuid.UUID) error {
	return r.removeChild(ctx, agendaID, periodID, "periodos_atendimento")
}

func (r *PostgresRepository) AddOverride(ctx context.Context, agendaID uuid.UUID, o DateOverride) (*DateOverride, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("agenda: begin add override: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap, err := r.lockAggregate(ctx, tx, agendaID)
	if err != nil {
		return nil, err
	}
	if err := ValidateOverrideAgainst(snap.Overrides, o); err != nil {
		return nil, err
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.ConfigID = snap.Config.ID
	if _, err := tx.Exec(ctx, `
		INSERT INTO horarios_especificos
			(id, configuracao_agenda_id, data, hora_inicio, hora_fim, capacidade, is_feriado, is_periodo_facultativo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, o.ID, o.ConfigID, o.Date.Time(), o.Start.String(), o.End.String(),
		o.Capacity, o.Holiday, o.Optional); err != nil {
		return nil, fmt.Errorf("agenda: insert override: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("agenda: commit add override: %w", err)
	}
	return &o, nil
}

func (r *PostgresRepository) RemoveOverride(ctx context.Context, agendaID, overrideID uuid.UUID) error {
	return r.removeChild(ctx, agendaID, overrideID, "horarios_especificos")
}

func (r *PostgresRepository) AddBlock(ctx context.Context, agendaID uuid.UUID, b Block, force bool) (*Block, error) {
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

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("agenda: begin add block: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap, err := r.lockAggregate(ctx, tx, agendaID)
	if err != nil {
		return nil, err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.ConfigID = snap.Config.ID

	var endDate *time.Time
	if b.EndDate != nil {
		t := b.EndDate.Time()
		endDate = &t
	}
	var endTime *string
	if b.EndTime != nil {
		s := b.EndTime.String()
		endTime = &s
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO bloqueios_horario
			(id, configuracao_agenda_id, data_inicio, hora_inicio, data_fim, hora_fim, motivo_bloqueio, observacao)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
	`, b.ID, b.ConfigID, b.StartDate.Time(), b.StartTime.String(),
		endDate, endTime, b.Reason, b.Note); err != nil {
		return nil, fmt.Errorf("agenda: insert block: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("agenda: commit add block: %w", err)
	}
	return &b, nil
}

func (r *PostgresRepository) RemoveBlock(ctx context.Context, agendaID, blockID uuid.UUID) error {
	return r.removeChild(ctx, agendaID, blockID, "bloqueios_horario")
}

func (r *PostgresRepository) removeChild(ctx context.Context, agendaID, childID uuid.UUID, table string) error {
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`
		DELETE FROM %s
		WHERE id = $1 AND configuracao_agenda_id IN
			(SELECT id FROM configuracoes_agenda WHERE agenda_id = $2)
	`, table), childID, agendaID)
	if err != nil {
		return fmt.Errorf("agenda: delete from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgendaNotFound
	}
	return nil
}
