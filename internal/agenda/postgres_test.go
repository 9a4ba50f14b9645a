package agenda

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSnapshotNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT a.id, a.codigo_interno").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	repo := NewPostgresRepositoryWithDB(mock)
	_, err = repo.Snapshot(context.Background(), id)
	assert.ErrorIs(t, err, ErrAgendaNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSnapshotLoadsAggregate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	agendaID := uuid.New()
	configID := uuid.New()
	periodID := uuid.New()
	now := time.Now().UTC()
	slotCap := 2

	mock.ExpectQuery("SELECT a.id, a.codigo_interno").
		WithArgs(agendaID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "codigo_interno", "nome_agenda", "descricao", "unidade_associada_id",
			"ativo", "criado_em", "atualizado_em",
			"cid", "dias_semana", "intervalo_agendamento", "capacidade_total", "capacidade_por_horario",
		}).AddRow(
			agendaID, "COLETA-01", "Coleta Matriz", "", "",
			true, now, now,
			configID, "SEG,TER", 30, nil, &slotCap,
		))

	mock.ExpectQuery("FROM periodos_atendimento").
		WithArgs(configID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "periodo", "horario_inicio", "horario_fim",
			"dias_semana", "data_especifica", "intervalo_periodo", "capacidade_periodo",
		}).AddRow(periodID, "MANHA", "08:00:00", "12:00:00", nil, nil, nil, nil))

	mock.ExpectQuery("FROM horarios_especificos").
		WithArgs(configID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "data", "hora_inicio", "hora_fim", "capacidade", "is_feriado", "is_periodo_facultativo",
		}))

	mock.ExpectQuery("FROM bloqueios_horario").
		WithArgs(configID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "data_inicio", "hora_inicio", "data_fim", "hora_fim", "motivo_bloqueio", "observacao",
		}))

	repo := NewPostgresRepositoryWithDB(mock)
	snap, err := repo.Snapshot(context.Background(), agendaID)
	require.NoError(t, err)

	assert.Equal(t, "COLETA-01", snap.Agenda.Code)
	assert.True(t, snap.Agenda.Active)
	assert.Equal(t, MaskOf(time.Monday, time.Tuesday), snap.Config.Weekdays)
	require.NotNil(t, snap.Config.SlotCapacity)
	assert.Equal(t, 2, *snap.Config.SlotCapacity)
	require.Len(t, snap.Periods, 1)
	assert.Equal(t, PeriodMorning, snap.Periods[0].Name)
	assert.Equal(t, MustTimeOfDay("08:00"), snap.Periods[0].Start)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Adding a window that overlaps a stored override on the same date must
// abort before the insert: the check runs against the locked aggregate,
// and both rows would otherwise poison every read of that date.
func TestPostgresAddOverrideOverlapRejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	agendaID := uuid.New()
	configID := uuid.New()
	now := time.Now().UTC()
	d := MustDate("2026-03-02")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM configuracoes_agenda").
		WithArgs(agendaID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(configID))
	mock.ExpectQuery("SELECT a.id, a.codigo_interno").
		WithArgs(agendaID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "codigo_interno", "nome_agenda", "descricao", "unidade_associada_id",
			"ativo", "criado_em", "atualizado_em",
			"cid", "dias_semana", "intervalo_agendamento", "capacidade_total", "capacidade_por_horario",
		}).AddRow(
			agendaID, "COLETA-01", "Coleta Matriz", "", "",
			true, now, now,
			configID, "SEG,TER", 30, nil, nil,
		))
	mock.ExpectQuery("FROM periodos_atendimento").
		WithArgs(configID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "periodo", "horario_inicio", "horario_fim",
			"dias_semana", "data_especifica", "intervalo_periodo", "capacidade_periodo",
		}))
	mock.ExpectQuery("FROM horarios_especificos").
		WithArgs(configID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "data", "hora_inicio", "hora_fim", "capacidade", "is_feriado", "is_periodo_facultativo",
		}).AddRow(uuid.New(), d.Time(), "09:00:00", "11:00:00", nil, false, false))
	mock.ExpectQuery("FROM bloqueios_horario").
		WithArgs(configID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "data_inicio", "hora_inicio", "data_fim", "hora_fim", "motivo_bloqueio", "observacao",
		}))
	mock.ExpectRollback()

	repo := NewPostgresRepositoryWithDB(mock)
	_, err = repo.AddOverride(context.Background(), agendaID, DateOverride{
		Date:  d,
		Start: MustTimeOfDay("10:00"),
		End:   MustTimeOfDay("12:00"),
	})
	assert.ErrorIs(t, err, ErrConfigurationConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRemoveChildNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	agendaID := uuid.New()
	blockID := uuid.New()
	mock.ExpectExec("DELETE FROM bloqueios_horario").
		WithArgs(blockID, agendaID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewPostgresRepositoryWithDB(mock)
	assert.ErrorIs(t, repo.RemoveBlock(context.Background(), agendaID, blockID), ErrAgendaNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateAgenda(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := Agenda{
		ID:     uuid.New(),
		Code:   "coleta-01",
		Name:   "Coleta Matriz",
		Active: true,
	}
	mock.ExpectExec("UPDATE agendas").
		WithArgs(a.ID, "COLETA-01", a.Name, a.Description, a.UnitID, a.Active).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewPostgresRepositoryWithDB(mock)
	assert.NoError(t, repo.UpdateAgenda(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}
