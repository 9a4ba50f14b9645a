package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/saudelab/agenda/internal/agenda"
	"github.com/saudelab/agenda/pkg/logging"
)

// SlotCache keeps recent slot listings in Redis. Entries are keyed by a
// per-agenda version counter, so invalidation is a single INCR and stale
// keys simply expire.
type SlotCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewSlotCache creates a cache; returns nil when redis is unavailable so
// callers can wire it unconditionally.
func NewSlotCache(rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *SlotCache {
	if rdb == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotCache{rdb: rdb, ttl: ttl, logger: logger.WithComponent("slot_cache")}
}

func (c *SlotCache) versionKey(agendaID uuid.UUID) string {
	return fmt.Sprintf("agenda:slots:ver:%s", agendaID)
}

func (c *SlotCache) key(agendaID uuid.UUID, version int64, from, to agenda.Date) string {
	return fmt.Sprintf("agenda:slots:%s:%d:%s:%s", agendaID, version, from, to)
}

func (c *SlotCache) version(ctx context.Context, agendaID uuid.UUID) int64 {
	v, err := c.rdb.Get(ctx, c.versionKey(agendaID)).Int64()
	if err != nil && err != redis.Nil {
		c.logger.Warn("slot cache version read failed", "error", err)
	}
	return v
}

// Get returns a cached listing when present.
func (c *SlotCache) Get(ctx context.Context, agendaID uuid.UUID, from, to agenda.Date) (*Result, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, c.key(agendaID, c.version(ctx, agendaID), from, to)).Bytes()
	if err != nil {
		return nil, false
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("slot cache entry corrupt", "error", err)
		return nil, false
	}
	return &result, true
}

// Set stores a listing under the agenda's current version.
func (c *SlotCache) Set(ctx context.Context, agendaID uuid.UUID, from, to agenda.Date, result *Result) {
	if c == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("slot cache marshal failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, c.key(agendaID, c.version(ctx, agendaID), from, to), data, c.ttl).Err(); err != nil {
		c.logger.Warn("slot cache write failed", "error", err)
	}
}

// Invalidate bumps the agenda's version; every cached range becomes
// unreachable and expires on its own TTL. Called after configuration
// writes and reservation commits.
func (c *SlotCache) Invalidate(ctx context.Context, agendaID uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.rdb.Incr(ctx, c.versionKey(agendaID)).Err(); err != nil {
		c.logger.Warn("slot cache invalidate failed", "error", err)
	}
}
