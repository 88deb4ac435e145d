package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/pkg/model"
)

// slugPattern restricts tenant slugs to safe, URL- and log-friendly
// identifiers. It no longer needs to double as a schema-name constraint
// (column-based tenancy has no per-tenant schema), but the same
// conservative shape is kept since slugs appear in log lines and API
// URLs.
var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

// Provisioner creates and retires tenants. It inserts the tenant row
// plus its default
// TenantSettings and starter Policy set, since every table already
// carries tenant_id and needs no per-tenant DDL.
type Provisioner struct {
	DB     *pgxpool.Pool
	Logger *slog.Logger
}

// Provision creates a new tenant and seeds its default settings.
func (p *Provisioner) Provision(ctx context.Context, name, slug string) (*Info, error) {
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("invalid tenant slug %q: must match %s", slug, slugPattern.String())
	}

	q := db.New(p.DB)
	t, err := q.CreateTenant(ctx, db.CreateTenantParams{
		Name: name,
		Slug: slug,
	})
	if err != nil {
		return nil, fmt.Errorf("inserting tenant record: %w", err)
	}

	settings := model.DefaultTenantSettings(t.ID)
	if err := q.UpsertTenantSettings(ctx, toSettingsParams(settings)); err != nil {
		_ = q.DeleteTenant(ctx, t.ID)
		return nil, fmt.Errorf("seeding tenant settings: %w", err)
	}

	p.Logger.Info("tenant provisioned", "tenant_id", t.ID, "slug", slug)

	return &Info{ID: t.ID, Name: t.Name, Slug: t.Slug}, nil
}

// Deprovision soft-deletes a tenant record. Child rows are never
// deleted automatically.
func (p *Provisioner) Deprovision(ctx context.Context, slug string) error {
	q := db.New(p.DB)
	t, err := q.GetTenantBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("looking up tenant %q: %w", slug, err)
	}

	hasChildren, err := q.TenantHasChildRows(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("checking tenant child rows: %w", err)
	}
	if hasChildren {
		return fmt.Errorf("tenant %q has child rows, refusing to delete", slug)
	}

	if err := q.SoftDeleteTenant(ctx, t.ID); err != nil {
		return fmt.Errorf("soft-deleting tenant record: %w", err)
	}

	p.Logger.Info("tenant deprovisioned", "slug", slug)
	return nil
}

func toSettingsParams(s model.TenantSettings) db.UpsertTenantSettingsParams {
	return db.UpsertTenantSettingsParams{
		TenantID:                   s.TenantID,
		MaxFileSizeMb:              int32(s.MaxFileSizeMB),
		ConcurrentFiles:            int32(s.ConcurrentFiles),
		EnableOcr:                  s.EnableOCR,
		EnableMl:                   s.EnableML,
		FanoutEnabled:              s.FanoutEnabled,
		FanoutThreshold:            int32(s.FanoutThreshold),
		FanoutMaxPartitions:        int32(s.FanoutMaxPartitions),
		PartitionTargetSize:        int32(s.PartitionTargetSize),
		PipelineMaxConcurrentFiles: int32(s.PipelineMaxConcurrentFiles),
		PipelineMemoryBudgetMb:     int32(s.PipelineMemoryBudgetMB),
	}
}
