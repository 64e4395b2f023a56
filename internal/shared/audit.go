package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs. Before and After hold
// snapshots of the mutated record so the trail can reconstruct any change.
type AuditLog struct {
	TenantID uuid.UUID
	ActorID  int64
	Module   string
	Action   string
	Entity   string
	EntityID string
	Before   map[string]any
	After    map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.TenantID == uuid.Nil {
		return errors.New("audit log requires tenant")
	}
	if log.Module == "" || log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires module/action/entity/entity_id")
	}
	beforeJSON, err := json.Marshal(log.Before)
	if err != nil {
		return err
	}
	afterJSON, err := json.Marshal(log.After)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (tenant_id, actor_id, module, action, entity, entity_id, before, after, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		log.TenantID, log.ActorID, log.Module, log.Action, log.Entity, log.EntityID, beforeJSON, afterJSON, occurredAt(log.At))
	return err
}

// occurredAt substitutes the current time for an unset event time. A zero
// time.Time is a real value to Postgres, not NULL, and would be stored as
// year one.
func occurredAt(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now()
	}
	return at
}
