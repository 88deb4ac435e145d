package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditLog mirrors the audit_log table row, written by internal/audit's
// batched flush.
type AuditLog struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	ActorID   string
	Action    string
	Target    string
	Detail    json.RawMessage
	CreatedAt time.Time
}

type InsertAuditLogParams struct {
	TenantID uuid.UUID
	ActorID  string
	Action   string
	Target   string
	Detail   json.RawMessage
}

// InsertAuditLogs bulk-inserts a batch in one round trip.
func (q *Queries) InsertAuditLogs(ctx context.Context, entries []InsertAuditLogParams) error {
	for _, e := range entries {
		_, err := q.db.Exec(ctx, `
			INSERT INTO audit_log (id, tenant_id, actor_id, action, target, detail, created_at)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, now())
		`, e.TenantID, e.ActorID, e.Action, e.Target, e.Detail)
		if err != nil {
			return fmt.Errorf("inserting audit log entry for tenant %s: %w", e.TenantID, err)
		}
	}
	return nil
}

// AuditLogsSince supports the catalog writer's incremental flush across
// all tenants, ordered so the cursor can advance to the last row's
// created_at.
func (q *Queries) AuditLogsSince(ctx context.Context, since time.Time, limit int32) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, actor_id, action, target, detail, created_at
		FROM audit_log
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit log entries since cursor: %w", err)
	}
	defer rows.Close()
	var out []AuditLog
	for rows.Next() {
		var a AuditLog
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ActorID, &a.Action, &a.Target, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit log row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAuditLogsParams filters a keyset-paginated audit listing: rows
// strictly older than the (BeforeTime, BeforeID) tuple when set, inside
// the optional [Since, Until] window.
type ListAuditLogsParams struct {
	TenantID   uuid.UUID
	BeforeTime time.Time
	BeforeID   uuid.UUID
	Since      time.Time
	Until      time.Time
	Limit      int32
}

func (q *Queries) ListAuditLogs(ctx context.Context, arg ListAuditLogsParams) ([]AuditLog, error) {
	sql := `
		SELECT id, tenant_id, actor_id, action, target, detail, created_at
		FROM audit_log WHERE tenant_id = $1`
	args := []any{arg.TenantID}
	if !arg.BeforeTime.IsZero() {
		args = append(args, arg.BeforeTime, arg.BeforeID)
		sql += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	if !arg.Since.IsZero() {
		args = append(args, arg.Since)
		sql += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !arg.Until.IsZero() {
		args = append(args, arg.Until)
		sql += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	args = append(args, arg.Limit)
	sql += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit log entries: %w", err)
	}
	defer rows.Close()
	var out []AuditLog
	for rows.Next() {
		var a AuditLog
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ActorID, &a.Action, &a.Target, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit log row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
