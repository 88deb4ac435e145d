// Package reqid carries the per-request correlation ID through
// context.Context. It exists as its own leaf package, with no
// dependency on internal/httpserver, so that internal/auth and
// pkg/tenant (both imported by internal/httpserver) can tag their own
// error responses with the same request ID without an import cycle.
package reqid

import "context"

type contextKey struct{}

// WithValue returns a copy of ctx carrying id as the request ID.
func WithValue(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request ID stored in ctx, or "" if none.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey{}).(string); ok {
		return v
	}
	return ""
}
