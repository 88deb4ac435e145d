package tenant

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/internal/reqid"
)

// Resolver identifies the tenant slug for the current request.
type Resolver interface {
	Resolve(r *http.Request) (slug string, err error)
}

// HeaderResolver resolves the tenant from the X-Tenant-Slug header.
// Intended for development and testing; production resolvers read the
// tenant slug out of the authenticated identity (see internal/auth).
type HeaderResolver struct{}

func (HeaderResolver) Resolve(r *http.Request) (string, error) {
	slug := r.Header.Get("X-Tenant-Slug")
	if slug == "" {
		return "", errMissingSlug
	}
	return slug, nil
}

var errMissingSlug = errMissing("missing X-Tenant-Slug header")

type errMissing string

func (e errMissing) Error() string { return string(e) }

// Middleware resolves the tenant slug, looks up its id, and attaches a
// tenant Info to the request context. Unlike the schema-per-tenant
// middleware it replaces, it does not acquire a dedicated connection or
// set search_path; every downstream query filters by tenant_id
// explicitly, so any pool connection will do.
func Middleware(pool *pgxpool.Pool, resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	q := db.New(pool)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug, err := resolver.Resolve(r)
			if err != nil {
				respondError(w, r, http.StatusUnauthorized, "unauthorized", "tenant resolution failed")
				return
			}

			t, err := q.GetTenantBySlug(r.Context(), slug)
			if err != nil {
				logger.Warn("tenant not found", "slug", slug, "error", err)
				respondError(w, r, http.StatusUnauthorized, "unauthorized", "unknown tenant")
				return
			}

			info := &Info{ID: t.ID, Name: t.Name, Slug: t.Slug}
			ctx := NewContext(r.Context(), info)

			logger.Debug("tenant resolved", "tenant_id", t.ID, "slug", slug)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":      errStr,
		"message":    message,
		"request_id": reqid.FromContext(r.Context()),
	})
}
