// Package audit records intake and review events into audit_logs.
// Recording is best-effort: a failed insert is logged and swallowed so
// the calling operation is never broken by its own audit trail.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one row in audit_logs.
type Event struct {
	Event      string
	Entity     string
	EntityID   string
	CustomerID string
	Actor      string
	Level      string
	Meta       map[string]any
	At         time.Time
}

// Recorder is the write side of the audit trail. Services depend on it
// so tests can capture the recorded events.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Logger persists events.
type Logger struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewLogger returns a Logger writing through the given pool.
func NewLogger(pool *pgxpool.Pool, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{pool: pool, log: log}
}

// Record inserts one event. Failures are logged, never returned.
func (l *Logger) Record(ctx context.Context, ev Event) {
	if l == nil || l.pool == nil {
		return
	}
	if ev.Event == "" || ev.Entity == "" {
		l.log.Warn("audit event dropped: missing event or entity")
		return
	}
	if ev.Level == "" {
		ev.Level = "info"
	}
	metaJSON, err := json.Marshal(ev.Meta)
	if err != nil {
		l.log.Warn("audit meta not serialisable", "event", ev.Event, "error", err)
		metaJSON = []byte("{}")
	}
	var at any
	if !ev.At.IsZero() {
		at = ev.At
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO audit_logs (event, entity, entity_id, customer_id, actor, level, meta, occurred_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, '')::uuid, NULLIF($5, ''), $6, $7, COALESCE($8, NOW()))`,
		ev.Event, ev.Entity, ev.EntityID, ev.CustomerID, ev.Actor, ev.Level, metaJSON, at)
	if err != nil {
		l.log.Warn("audit insert failed", "event", ev.Event, "entity", ev.Entity, "error", err)
	}
}
