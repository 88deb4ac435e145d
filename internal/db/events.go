package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MonitoredFile mirrors the monitored_files table row.
type MonitoredFile struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ScanTargetID  uuid.UUID
	FilePath      string
	LastResultID  *uuid.UUID
	RiskTier      string
	ExposureLevel string
	CreatedAt     time.Time
}

type UpsertMonitoredFileParams struct {
	TenantID      uuid.UUID
	ScanTargetID  uuid.UUID
	FilePath      string
	LastResultID  *uuid.UUID
	RiskTier      string
	ExposureLevel string
}

func (q *Queries) UpsertMonitoredFile(ctx context.Context, arg UpsertMonitoredFileParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO monitored_files (id, tenant_id, scan_target_id, file_path, last_result_id, risk_tier, exposure_level, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (tenant_id, scan_target_id, file_path) DO UPDATE SET
			last_result_id = EXCLUDED.last_result_id,
			risk_tier = EXCLUDED.risk_tier,
			exposure_level = EXCLUDED.exposure_level
	`, arg.TenantID, arg.ScanTargetID, arg.FilePath, arg.LastResultID, arg.RiskTier, arg.ExposureLevel)
	if err != nil {
		return fmt.Errorf("upserting monitored file: %w", err)
	}
	return nil
}

func (q *Queries) ListMonitoredFiles(ctx context.Context, tenantID, scanTargetID uuid.UUID) ([]MonitoredFile, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, scan_target_id, file_path, last_result_id, risk_tier, exposure_level, created_at
		FROM monitored_files WHERE tenant_id = $1 AND scan_target_id = $2
	`, tenantID, scanTargetID)
	if err != nil {
		return nil, fmt.Errorf("listing monitored files: %w", err)
	}
	defer rows.Close()
	var out []MonitoredFile
	for rows.Next() {
		var m MonitoredFile
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ScanTargetID, &m.FilePath, &m.LastResultID, &m.RiskTier, &m.ExposureLevel, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning monitored file row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FileAccessEvent mirrors one row of the monthly range-partitioned
// file_access_events table.
type FileAccessEvent struct {
	ID           uuid.UUID
	OccurredAt   time.Time
	TenantID     uuid.UUID
	ScanTargetID uuid.UUID
	FilePath     string
	Actor        string
	Action       string
	SourceIP     string
}

type InsertFileAccessEventParams struct {
	OccurredAt   time.Time
	TenantID     uuid.UUID
	ScanTargetID uuid.UUID
	FilePath     string
	Actor        string
	Action       string
	SourceIP     string
}

// InsertFileAccessEvents bulk-inserts harvested or streamed events.
// Each statement is independent so a single malformed row doesn't fail
// the whole batch; the caller collects per-row errors.
func (q *Queries) InsertFileAccessEvents(ctx context.Context, events []InsertFileAccessEventParams) (inserted int, errs []error) {
	for _, e := range events {
		_, err := q.db.Exec(ctx, `
			INSERT INTO file_access_events (id, occurred_at, tenant_id, scan_target_id, file_path, actor, action, source_ip)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		`, e.OccurredAt, e.TenantID, e.ScanTargetID, e.FilePath, e.Actor, e.Action, e.SourceIP)
		if err != nil {
			errs = append(errs, fmt.Errorf("inserting file access event for %s: %w", e.FilePath, err))
			continue
		}
		inserted++
	}
	return inserted, errs
}

func (q *Queries) ListFileAccessEvents(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int32) ([]FileAccessEvent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, occurred_at, tenant_id, scan_target_id, file_path, actor, action, source_ip
		FROM file_access_events
		WHERE tenant_id = $1 AND occurred_at > $2
		ORDER BY occurred_at ASC
		LIMIT $3
	`, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing file access events: %w", err)
	}
	defer rows.Close()
	var out []FileAccessEvent
	for rows.Next() {
		var e FileAccessEvent
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.TenantID, &e.ScanTargetID, &e.FilePath, &e.Actor, &e.Action, &e.SourceIP); err != nil {
			return nil, fmt.Errorf("scanning file access event row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FileAccessEventsSince supports the catalog writer's incremental flush
// across all tenants in one pass, ordered so the cursor can advance to
// the last row's occurred_at.
func (q *Queries) FileAccessEventsSince(ctx context.Context, since time.Time, limit int32) ([]FileAccessEvent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, occurred_at, tenant_id, scan_target_id, file_path, actor, action, source_ip
		FROM file_access_events
		WHERE occurred_at > $1
		ORDER BY occurred_at ASC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing file access events since cursor: %w", err)
	}
	defer rows.Close()
	var out []FileAccessEvent
	for rows.Next() {
		var e FileAccessEvent
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.TenantID, &e.ScanTargetID, &e.FilePath, &e.Actor, &e.Action, &e.SourceIP); err != nil {
			return nil, fmt.Errorf("scanning file access event row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MonitoredFilesSince mirrors FileAccessEventsSince for the catalog
// writer's monitored_files table; created_at is the closest thing this
// table has to an ingestion watermark since rows are upserted in place.
func (q *Queries) MonitoredFilesSince(ctx context.Context, since time.Time, limit int32) ([]MonitoredFile, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, scan_target_id, file_path, last_result_id, risk_tier, exposure_level, created_at
		FROM monitored_files
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing monitored files since cursor: %w", err)
	}
	defer rows.Close()
	var out []MonitoredFile
	for rows.Next() {
		var m MonitoredFile
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ScanTargetID, &m.FilePath, &m.LastResultID, &m.RiskTier, &m.ExposureLevel, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning monitored file row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CheckpointCursor mirrors the checkpoint_cursors table: one row per
// (tenant, scan_target, cursor_kind), tracking pull-harvester
// resumption points.
type CheckpointCursor struct {
	TenantID     uuid.UUID
	ScanTargetID uuid.UUID
	CursorKind   string
	CursorValue  string
	UpdatedAt    time.Time
}

func (q *Queries) GetCheckpointCursor(ctx context.Context, tenantID, scanTargetID uuid.UUID, cursorKind string) (CheckpointCursor, error) {
	var c CheckpointCursor
	row := q.db.QueryRow(ctx, `
		SELECT tenant_id, scan_target_id, cursor_kind, cursor_value, updated_at
		FROM checkpoint_cursors WHERE tenant_id = $1 AND scan_target_id = $2 AND cursor_kind = $3
	`, tenantID, scanTargetID, cursorKind)
	if err := row.Scan(&c.TenantID, &c.ScanTargetID, &c.CursorKind, &c.CursorValue, &c.UpdatedAt); err != nil {
		return CheckpointCursor{}, fmt.Errorf("querying checkpoint cursor: %w", err)
	}
	return c, nil
}

func (q *Queries) UpsertCheckpointCursor(ctx context.Context, tenantID, scanTargetID uuid.UUID, cursorKind, cursorValue string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO checkpoint_cursors (tenant_id, scan_target_id, cursor_kind, cursor_value, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id, scan_target_id, cursor_kind) DO UPDATE SET
			cursor_value = EXCLUDED.cursor_value, updated_at = now()
	`, tenantID, scanTargetID, cursorKind, cursorValue)
	if err != nil {
		return fmt.Errorf("upserting checkpoint cursor: %w", err)
	}
	return nil
}

// ExportCursor mirrors the export_cursors table: tracks each SIEM
// sink's last-exported scan_result/event offset.
type ExportCursor struct {
	TenantID    uuid.UUID
	SinkName    string
	RecordType  string
	LastExported time.Time
	UpdatedAt   time.Time
}

func (q *Queries) GetExportCursor(ctx context.Context, tenantID uuid.UUID, sinkName, recordType string) (ExportCursor, error) {
	var c ExportCursor
	row := q.db.QueryRow(ctx, `
		SELECT tenant_id, sink_name, record_type, last_exported, updated_at
		FROM export_cursors WHERE tenant_id = $1 AND sink_name = $2 AND record_type = $3
	`, tenantID, sinkName, recordType)
	if err := row.Scan(&c.TenantID, &c.SinkName, &c.RecordType, &c.LastExported, &c.UpdatedAt); err != nil {
		return ExportCursor{}, fmt.Errorf("querying export cursor: %w", err)
	}
	return c, nil
}

func (q *Queries) UpsertExportCursor(ctx context.Context, tenantID uuid.UUID, sinkName, recordType string, lastExported time.Time) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO export_cursors (tenant_id, sink_name, record_type, last_exported, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id, sink_name, record_type) DO UPDATE SET
			last_exported = EXCLUDED.last_exported, updated_at = now()
	`, tenantID, sinkName, recordType, lastExported)
	if err != nil {
		return fmt.Errorf("upserting export cursor: %w", err)
	}
	return nil
}

// ListTenantsWithScanResultsSince returns distinct tenant IDs with new
// results, used by the periodic SIEM export loop to fan out per tenant.
func (q *Queries) ListTenantsWithScanResultsSince(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT tenant_id FROM scan_results WHERE scanned_at > $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("listing tenants with recent scan results: %w", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tenant id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SyncMonitoredFiles registers recent high-tier scan results as
// monitored files, so the access-event harvester's rescan hook covers
// every file the last scan cycle flagged HIGH or CRITICAL. Existing
// registrations are refreshed in place. Returns the number of rows
// written.
func (q *Queries) SyncMonitoredFiles(ctx context.Context, since time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		INSERT INTO monitored_files (id, tenant_id, scan_target_id, file_path, last_result_id, risk_tier, exposure_level, created_at)
		SELECT DISTINCT ON (r.tenant_id, j.scan_target_id, r.file_path)
			gen_random_uuid(), r.tenant_id, j.scan_target_id, r.file_path, r.id, r.risk_tier, r.exposure_level, now()
		FROM scan_results r
		JOIN scan_jobs j ON j.id = r.scan_job_id
		WHERE r.scanned_at > $1 AND r.risk_tier IN ('HIGH', 'CRITICAL')
		ORDER BY r.tenant_id, j.scan_target_id, r.file_path, r.scanned_at DESC
		ON CONFLICT (tenant_id, scan_target_id, file_path) DO UPDATE SET
			last_result_id = EXCLUDED.last_result_id,
			risk_tier = EXCLUDED.risk_tier,
			exposure_level = EXCLUDED.exposure_level
	`, since)
	if err != nil {
		return 0, fmt.Errorf("syncing monitored files: %w", err)
	}
	return tag.RowsAffected(), nil
}
