package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Schedule mirrors the schedules table row: a cron expression driving
// periodic scan jobs.
type Schedule struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	ScanTargetID uuid.UUID
	CronExpr     string
	Enabled      bool
	LastRunAt    *time.Time
	NextRunAt    *time.Time
	CreatedAt    time.Time
}

type CreateScheduleParams struct {
	TenantID     uuid.UUID
	ScanTargetID uuid.UUID
	CronExpr     string
	NextRunAt    time.Time
}

func (q *Queries) CreateSchedule(ctx context.Context, arg CreateScheduleParams) (Schedule, error) {
	var s Schedule
	row := q.db.QueryRow(ctx, `
		INSERT INTO schedules (id, tenant_id, scan_target_id, cron_expr, enabled, next_run_at, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, true, $4, now())
		RETURNING id, tenant_id, scan_target_id, cron_expr, enabled, last_run_at, next_run_at, created_at
	`, arg.TenantID, arg.ScanTargetID, arg.CronExpr, arg.NextRunAt)
	if err := row.Scan(&s.ID, &s.TenantID, &s.ScanTargetID, &s.CronExpr, &s.Enabled, &s.LastRunAt, &s.NextRunAt, &s.CreatedAt); err != nil {
		return Schedule{}, fmt.Errorf("inserting schedule: %w", err)
	}
	return s, nil
}

// ListDueSchedules returns enabled schedules whose next_run_at has
// elapsed, respecting the configured minimum trigger interval by
// filtering on last_run_at.
func (q *Queries) ListDueSchedules(ctx context.Context, now time.Time, minInterval time.Duration) ([]Schedule, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, scan_target_id, cron_expr, enabled, last_run_at, next_run_at, created_at
		FROM schedules
		WHERE enabled = true AND next_run_at <= $1
		AND (last_run_at IS NULL OR last_run_at <= $1 - make_interval(secs => $2))
		ORDER BY next_run_at ASC
	`, now, minInterval.Seconds())
	if err != nil {
		return nil, fmt.Errorf("listing due schedules: %w", err)
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		var s Schedule
		if err := rows.Scan(&s.ID, &s.TenantID, &s.ScanTargetID, &s.CronExpr, &s.Enabled, &s.LastRunAt, &s.NextRunAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning schedule row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateScheduleAfterRun(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE schedules SET last_run_at = $2, next_run_at = $3 WHERE id = $1
	`, id, lastRunAt, nextRunAt)
	if err != nil {
		return fmt.Errorf("updating schedule after run: %w", err)
	}
	return nil
}

func (q *Queries) SetScheduleEnabled(ctx context.Context, tenantID, id uuid.UUID, enabled bool) error {
	_, err := q.db.Exec(ctx, `
		UPDATE schedules SET enabled = $3 WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, enabled)
	if err != nil {
		return fmt.Errorf("setting schedule enabled: %w", err)
	}
	return nil
}

func (q *Queries) ListSchedules(ctx context.Context, tenantID uuid.UUID) ([]Schedule, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, scan_target_id, cron_expr, enabled, last_run_at, next_run_at, created_at
		FROM schedules WHERE tenant_id = $1 ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		var s Schedule
		if err := rows.Scan(&s.ID, &s.TenantID, &s.ScanTargetID, &s.CronExpr, &s.Enabled, &s.LastRunAt, &s.NextRunAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning schedule row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
