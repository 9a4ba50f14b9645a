package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/saudelab/agenda/internal/agenda"
	"github.com/saudelab/agenda/internal/availability"
	"github.com/saudelab/agenda/pkg/logging"
)

var validate = validator.New()

// AgendasConfig wires the admin configuration surface.
type AgendasConfig struct {
	Repo   agenda.Repository
	Cache  *availability.SlotCache
	Logger *logging.Logger
}

// AgendasHandler exposes CRUD over agendas and their scheduling
// configuration. Every mutation invalidates the slot cache so the next
// availability query reflects the change.
type AgendasHandler struct {
	repo   agenda.Repository
	cache  *availability.SlotCache
	logger *logging.Logger
}

func NewAgendasHandler(cfg AgendasConfig) *AgendasHandler {
	if cfg.Repo == nil {
		panic("handlers: agenda repository required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AgendasHandler{
		repo:   cfg.Repo,
		cache:  cfg.Cache,
		logger: cfg.Logger.WithComponent("agendas"),
	}
}

type configPayload struct {
	Weekdays     []string `json:"weekdays" validate:"required,min=1"`
	Interval     int      `json:"interval" validate:"required,gt=0"`
	SlotCapacity *int     `json:"slot_capacity" validate:"omitempty,gt=0"`
	DayCapacity  *int     `json:"day_capacity" validate:"omitempty,gt=0"`
}

type createAgendaRequest struct {
	Code        string        `json:"code" validate:"required"`
	Name        string        `json:"name" validate:"required"`
	Description string        `json:"description"`
	UnitID      string        `json:"unit_id"`
	Active      *bool         `json:"active"`
	Config      configPayload `json:"config" validate:"required"`
}

type updateAgendaRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	UnitID      string `json:"unit_id"`
	Active      *bool  `json:"active"`
}

type periodRequest struct {
	Name         string   `json:"name" validate:"required"`
	Start        string   `json:"start" validate:"required"`
	End          string   `json:"end" validate:"required"`
	Weekdays     []string `json:"weekdays"`
	SpecificDate string   `json:"specific_date"`
	Interval     *int     `json:"interval" validate:"omitempty,gt=0"`
	Capacity     *int     `json:"capacity" validate:"omitempty,gt=0"`
}

type overrideRequest struct {
	Date     string `json:"date" validate:"required"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Capacity *int   `json:"capacity" validate:"omitempty,gt=0"`
	Holiday  bool   `json:"holiday"`
	Optional bool   `json:"optional"`
}

type blockRequest struct {
	StartDate string `json:"start_date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndDate   string `json:"end_date"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
	Note      string `json:"note"`
}

// decode unmarshals and validates a request body.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func (cp configPayload) toConfig() (agenda.Config, error) {
	var mask agenda.WeekdayMask
	for _, code := range cp.Weekdays {
		m, err := agenda.ParseWeekdayMask(code)
		if err != nil {
			return agenda.Config{}, err
		}
		mask |= m
	}
	return agenda.Config{
		Weekdays:     mask,
		Interval:     cp.Interval,
		SlotCapacity: cp.SlotCapacity,
		DayCapacity:  cp.DayCapacity,
	}, nil
}

// agendaView renders a snapshot with the weekday mask expanded back to
// its code list.
type agendaView struct {
	agenda.Agenda
	Config   configView            `json:"config"`
	Periods  []agenda.Period       `json:"periods"`
	Override []agenda.DateOverride `json:"overrides"`
	Blocks   []agenda.Block        `json:"blocks"`
}

type configView struct {
	agenda.Config
	Weekdays string `json:"weekdays"`
}

func viewOf(s *agenda.Snapshot) agendaView {
	v := agendaView{
		Agenda:   s.Agenda,
		Config:   configView{Config: s.Config, Weekdays: s.Config.Weekdays.String()},
		Periods:  s.Periods,
		Override: s.Overrides,
		Blocks:   s.Blocks,
	}
	if v.Periods == nil {
		v.Periods = []agenda.Period{}
	}
	if v.Override == nil {
		v.Override = []agenda.DateOverride{}
	}
	if v.Blocks == nil {
		v.Blocks = []agenda.Block{}
	}
	return v
}

// Create handles POST /agendas.
func (h *AgendasHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgendaRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := req.Config.toConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	snap, err := h.repo.CreateAgenda(r.Context(), agenda.Agenda{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		UnitID:      req.UnitID,
		Active:      active,
	}, cfg)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.logger.Info("agenda created", "agenda_id", snap.Agenda.ID, "code", snap.Agenda.Code)
	writeJSON(w, http.StatusCreated, viewOf(snap))
}

// List handles GET /agendas.
func (h *AgendasHandler) List(w http.ResponseWriter, r *http.Request) {
	agendas, err := h.repo.ListAgendas(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if agendas == nil {
		agendas = []agenda.Agenda{}
	}
	writeJSON(w, http.StatusOK, agendas)
}

// Get handles GET /agendas/{agendaID}.
func (h *AgendasHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agendaID(w, r)
	if !ok {
		return
	}
	snap, err := h.repo.Snapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(snap))
}

// Update handles PUT /agendas/{agendaID}.
func (h *AgendasHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agendaID(w, r)
	if !ok {
		return
	}
	var req updateAgendaRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.repo.Snapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	a := snap.Agenda
	a.Name = req.Name
	a.Description = req.Description
	a.UnitID = req.UnitID
	if req.Active != nil {
		a.Active = *req.Active
	}
	if err := h.repo.UpdateAgenda(r.Context(), a); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.invalidate(r, id)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateConfig handles PUT /agendas/{agendaID}/config.
func (h *AgendasHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agendaID(w, r)
	if !ok {
		return
	}
	var req configPayload
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := req.toConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.repo.Snapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	cfg.ID = snap.Config.ID
	cfg.AgendaID = id
	if err := h.repo.UpdateConfig(r.Context(), cfg); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.invalidate(r, id)
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /agendas/{agendaID}.
func (h *AgendasHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agendaID(w, r)
	if !ok {
		return
	}
	if err := h.repo.DeleteAgenda(r.Context(), id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.invalidate(r, id)
	w.WriteHeader(http.StatusNoContent)
}

// AddPeriod handles POST /agendas/{agendaID}/periods.
func (h *AgendasHandler) AddPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agendaID(w, r)
	if !ok {
		return
	}
	var req periodRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := agenda.Period{
		Name:     agenda.PeriodName(req.Name),
		Interval: req.Interval,
		Capacity: req.Capacity,
	}
	var err error
	if p.Start, err = agenda.ParseTimeOfDay(req.Start); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.End, err = agenda.ParseTimeOfDay(req.End); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Weekdays) > 0 {
		var mask agenda.WeekdayMask
		for _, code := range req.Weekdays {
			m, err := agenda.ParseWeekdayMask(code)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			mask |= m
		}
		p.Weekdays = &mask
	}
	if req.SpecificDate != "" {
		d, err := agenda.ParseDate(req.SpecificDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		p.SpecificDate = &d
	}
	created, err := h.repo.AddPeriod(r.Context(), id, p)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.invalidate(r, id)
	writeJSON(w, http.StatusCreated, created)
}

// RemovePeriod handles DELETE /agendas/{agendaID}/periods/{periodID}.
func (h *AgendasHandler) RemovePeriod(w http.ResponseWriter, r *http.Request) {
	h.removeChild(w, r, "periodID", h.repo.RemovePeriod)
}

// AddOverride handles POST /agendas/{agendaID}/overrides.
func (h *AgendasHandler) AddOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agendaID(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o := agenda.DateOverride{
		Capacity: req.Capacity,
		Holiday:  req.Holiday,
		Optional: req.Optional,
	}
	var err error
	if o.Date, err = agenda.ParseDate(req.Date); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Start != "" {
		if o.Start, err = agenda.ParseTimeOfDay(req.Start); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.End != "" {
		if o.End, err = agenda.ParseTimeOfDay(req.End); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	created, err := h.repo.AddOverride(r.Context(), id, o)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.invalidate(r, id)
	writeJSON(w, http.StatusCreated, created)
}

// RemoveOverride handles DELETE /agendas/{agendaID}/overrides/{overrideID}.
func (h *AgendasHandler) RemoveOverride(w http.ResponseWriter, r *http.Request) {
	h.removeChild(w, r, "overrideID", h.repo.RemoveOverride)
}

// AddBlock handles POST /agendas/{agendaID}/blocks. ?force=true commits
// a blackout even over slots that already hold reservations.
func (h *AgendasHandler) AddBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agendaID(w, r)
	if !ok {
		return
	}
	var req blockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b := agenda.Block{Reason: req.Reason, Note: req.Note}
	var err error
	if b.StartDate, err = agenda.ParseDate(req.StartDate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if b.StartTime, err = agenda.ParseTimeOfDay(req.StartTime); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EndDate != "" {
		d, err := agenda.ParseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		b.EndDate = &d
	}
	if req.EndTime != "" {
		t, err := agenda.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		b.EndTime = &t
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	created, err := h.repo.AddBlock(r.Context(), id, b, force)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.invalidate(r, id)
	writeJSON(w, http.StatusCreated, created)
}

// RemoveBlock handles DELETE /agendas/{agendaID}/blocks/{blockID}.
func (h *AgendasHandler) RemoveBlock(w http.ResponseWriter, r *http.Request) {
	h.removeChild(w, r, "blockID", h.repo.RemoveBlock)
}

func (h *AgendasHandler) removeChild(w http.ResponseWriter, r *http.Request, param string, remove func(ctx context.Context, agendaID, childID uuid.UUID) error) {
	id, ok := h.agendaID(w, r)
	if !ok {
		return
	}
	childID, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, param+" must be a UUID")
		return
	}
	if err := remove(r.Context(), id, childID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.invalidate(r, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgendasHandler) agendaID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "agendaID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "agendaID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *AgendasHandler) invalidate(r *http.Request, id uuid.UUID) {
	h.cache.Invalidate(r.Context(), id)
}
