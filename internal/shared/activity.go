package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityEvent represents a semantic event emitted by the engine services
// (movement recorded, order confirmed, shortage blocked, PO drafted,
// allocation created/removed). Formatting of user-facing audit text is left
// to the consumer.
type ActivityEvent struct {
	CompanyID int64
	ActorID   int64
	Action    string
	Entity    string
	EntityID  string
	Meta      map[string]any
	At        time.Time
}

// ActivityLogger persists events into activity_logs.
type ActivityLogger struct {
	pool *pgxpool.Pool
}

// NewActivityLogger returns a new ActivityLogger.
func NewActivityLogger(pool *pgxpool.Pool) *ActivityLogger {
	return &ActivityLogger{pool: pool}
}

// Record persists the event.
func (l *ActivityLogger) Record(ctx context.Context, evt ActivityEvent) error {
	if l == nil {
		return errors.New("activity logger not initialised")
	}
	if evt.Action == "" || evt.Entity == "" || evt.EntityID == "" {
		return errors.New("activity event requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(evt.Meta)
	if err != nil {
		return err
	}
	var at any
	if !evt.At.IsZero() {
		at = evt.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO activity_logs (company_id, actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`, evt.CompanyID, evt.ActorID, evt.Action, evt.Entity, evt.EntityID, metaJSON, at)
	return err
}
