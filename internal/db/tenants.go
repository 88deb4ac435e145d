package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tenant mirrors the tenants table row.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// CreateTenantParams are the insert columns for a new tenant.
type CreateTenantParams struct {
	Name string
	Slug string
}

// CreateTenant inserts a new tenant row.
func (q *Queries) CreateTenant(ctx context.Context, arg CreateTenantParams) (Tenant, error) {
	var t Tenant
	row := q.db.QueryRow(ctx, `
		INSERT INTO tenants (id, name, slug, created_at)
		VALUES (gen_random_uuid(), $1, $2, now())
		RETURNING id, name, slug, created_at, deleted_at
	`, arg.Name, arg.Slug)
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.DeletedAt); err != nil {
		return Tenant{}, fmt.Errorf("inserting tenant: %w", err)
	}
	return t, nil
}

// GetTenantBySlug looks up a tenant by its slug, excluding soft-deleted rows.
func (q *Queries) GetTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	var t Tenant
	row := q.db.QueryRow(ctx, `
		SELECT id, name, slug, created_at, deleted_at
		FROM tenants
		WHERE slug = $1 AND deleted_at IS NULL
	`, slug)
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.DeletedAt); err != nil {
		return Tenant{}, fmt.Errorf("querying tenant by slug: %w", err)
	}
	return t, nil
}

// GetTenantByID looks up a tenant by id.
func (q *Queries) GetTenantByID(ctx context.Context, id uuid.UUID) (Tenant, error) {
	var t Tenant
	row := q.db.QueryRow(ctx, `
		SELECT id, name, slug, created_at, deleted_at
		FROM tenants
		WHERE id = $1
	`, id)
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.DeletedAt); err != nil {
		return Tenant{}, fmt.Errorf("querying tenant by id: %w", err)
	}
	return t, nil
}

// DeleteTenant hard-deletes a tenant row. Used only for rollback during
// failed provisioning; normal retirement goes through SoftDeleteTenant.
func (q *Queries) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}
	return nil
}

// SoftDeleteTenant marks a tenant retired without removing its row;
// child rows are never deleted automatically.
func (q *Queries) SoftDeleteTenant(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE tenants SET deleted_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("soft-deleting tenant: %w", err)
	}
	return nil
}

// TenantHasChildRows reports whether any scan_targets or scan_jobs rows
// still reference this tenant.
func (q *Queries) TenantHasChildRows(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	row := q.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM scan_targets WHERE tenant_id = $1
			UNION ALL
			SELECT 1 FROM scan_jobs WHERE tenant_id = $1
		)
	`, id)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("checking tenant child rows: %w", err)
	}
	return exists, nil
}

// TenantSettings mirrors the tenant_settings table row, the per-tenant
// override surface.
type TenantSettings struct {
	TenantID                   uuid.UUID
	MaxFileSizeMb              int32
	ConcurrentFiles            int32
	EnableOcr                  bool
	EnableMl                   bool
	FanoutEnabled              bool
	FanoutThreshold            int32
	FanoutMaxPartitions        int32
	PartitionTargetSize        int32
	PipelineMaxConcurrentFiles int32
	PipelineMemoryBudgetMb     int32
}

// UpsertTenantSettingsParams is identical in shape to TenantSettings; kept
// as a distinct type in the sqlc idiom (insert params vs. row struct).
type UpsertTenantSettingsParams = TenantSettings

// UpsertTenantSettings inserts or replaces a tenant's settings row.
func (q *Queries) UpsertTenantSettings(ctx context.Context, arg UpsertTenantSettingsParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO tenant_settings (
			tenant_id, max_file_size_mb, concurrent_files, enable_ocr, enable_ml,
			fanout_enabled, fanout_threshold, fanout_max_partitions,
			partition_target_size, pipeline_max_concurrent_files, pipeline_memory_budget_mb
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id) DO UPDATE SET
			max_file_size_mb = EXCLUDED.max_file_size_mb,
			concurrent_files = EXCLUDED.concurrent_files,
			enable_ocr = EXCLUDED.enable_ocr,
			enable_ml = EXCLUDED.enable_ml,
			fanout_enabled = EXCLUDED.fanout_enabled,
			fanout_threshold = EXCLUDED.fanout_threshold,
			fanout_max_partitions = EXCLUDED.fanout_max_partitions,
			partition_target_size = EXCLUDED.partition_target_size,
			pipeline_max_concurrent_files = EXCLUDED.pipeline_max_concurrent_files,
			pipeline_memory_budget_mb = EXCLUDED.pipeline_memory_budget_mb
	`, arg.TenantID, arg.MaxFileSizeMb, arg.ConcurrentFiles, arg.EnableOcr, arg.EnableMl,
		arg.FanoutEnabled, arg.FanoutThreshold, arg.FanoutMaxPartitions,
		arg.PartitionTargetSize, arg.PipelineMaxConcurrentFiles, arg.PipelineMemoryBudgetMb)
	if err != nil {
		return fmt.Errorf("upserting tenant settings: %w", err)
	}
	return nil
}

// GetTenantSettings returns a tenant's settings row, or the documented
// defaults if no row has been written yet.
func (q *Queries) GetTenantSettings(ctx context.Context, tenantID uuid.UUID) (TenantSettings, error) {
	var s TenantSettings
	row := q.db.QueryRow(ctx, `
		SELECT tenant_id, max_file_size_mb, concurrent_files, enable_ocr, enable_ml,
			fanout_enabled, fanout_threshold, fanout_max_partitions,
			partition_target_size, pipeline_max_concurrent_files, pipeline_memory_budget_mb
		FROM tenant_settings WHERE tenant_id = $1
	`, tenantID)
	err := row.Scan(&s.TenantID, &s.MaxFileSizeMb, &s.ConcurrentFiles, &s.EnableOcr, &s.EnableMl,
		&s.FanoutEnabled, &s.FanoutThreshold, &s.FanoutMaxPartitions,
		&s.PartitionTargetSize, &s.PipelineMaxConcurrentFiles, &s.PipelineMemoryBudgetMb)
	if err != nil {
		return TenantSettings{}, fmt.Errorf("querying tenant settings: %w", err)
	}
	return s, nil
}
