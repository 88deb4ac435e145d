// Package tenant carries tenant identity as an explicit value type
// threaded through request and job contexts.
//
// Tenancy is column-based: every table carries tenant_id directly and
// the high-volume tables are range-partitioned by time with a
// composite primary key, not isolated per schema. Resolution yields a
// tenant_id filter value, not a schema name, so every query the rest
// of the codebase issues carries an explicit `WHERE tenant_id = $1`
// rather than relying on search_path.
package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Info holds the resolved tenant metadata for the current request or job.
type Info struct {
	ID   uuid.UUID
	Name string
	Slug string
}

type contextKey string

const infoKey contextKey = "tenant_info"

// NewContext stores tenant info in the context.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext extracts the tenant info from the context.
// Returns nil if no tenant is set.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(infoKey).(*Info)
	return v
}
