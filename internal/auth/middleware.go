package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/internal/reqid"
)

// Middleware returns an HTTP middleware that authenticates the caller via
// OIDC bearer JWT, API key, or dev header and stores the resulting
// Identity in the request context.
//
// Authentication precedence:
//  1. Authorization: Bearer <jwt>  →  OIDC validation
//  2. X-API-Key: <raw-key>        →  API key hash lookup
//  3. X-Tenant-Slug: <slug>       →  Development-only fallback (no real auth)
//
// If none succeed, the request is rejected with 401.
func Middleware(oidcAuth *OIDCAuthenticator, pool db.DBTX, logger *slog.Logger) func(http.Handler) http.Handler {
	apikeyAuth := &APIKeyAuthenticator{DB: pool}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			// 1. Bearer token: OIDC JWT.
			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") || strings.HasPrefix(authHeader, "bearer ") {
				if oidcAuth == nil {
					logger.Warn("JWT presented but OIDC is not configured")
					respondErr(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
					return
				}

				claims, err := oidcAuth.Authenticate(r.Context(), authHeader)
				if err != nil {
					logger.Warn("OIDC authentication failed", "error", err)
					respondErr(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
					return
				}

				identity = &Identity{
					Subject:    claims.Subject,
					Email:      claims.Email,
					Role:       claims.Role,
					TenantSlug: claims.TenantSlug,
					Method:     MethodOIDC,
				}

				logger.Debug("authenticated via OIDC",
					"sub", claims.Subject,
					"email", claims.Email,
					"tenant_slug", claims.TenantSlug,
				)
			}

			// 2. API key.
			if identity == nil {
				if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
					if pool == nil {
						logger.Warn("API key presented but no database is configured")
						respondErr(w, r, http.StatusUnauthorized, "unauthorized", "invalid API key")
						return
					}

					result, err := apikeyAuth.Authenticate(r.Context(), rawKey)
					if err != nil {
						logger.Warn("API key authentication failed", "error", err)
						respondErr(w, r, http.StatusUnauthorized, "unauthorized", "invalid API key")
						return
					}

					q := db.New(pool)
					t, err := q.GetTenantByID(r.Context(), result.TenantID)
					if err != nil {
						logger.Error("tenant lookup for API key failed", "tenant_id", result.TenantID, "error", err)
						respondErr(w, r, http.StatusUnauthorized, "unauthorized", "tenant not found")
						return
					}

					identity = &Identity{
						Subject:    fmt.Sprintf("apikey:%s", result.KeyPrefix),
						Role:       result.Role,
						TenantSlug: t.Slug,
						TenantID:   t.ID,
						APIKeyID:   &result.APIKeyID,
						Method:     MethodAPIKey,
					}

					logger.Debug("authenticated via API key",
						"key_prefix", result.KeyPrefix,
						"tenant_slug", t.Slug,
						"role", result.Role,
					)
				}
			}

			// 3. Dev-mode fallback: X-Tenant-Slug header (no real authentication).
			if identity == nil {
				if slug := r.Header.Get("X-Tenant-Slug"); slug != "" {
					identity = &Identity{
						Subject:    "dev:anonymous",
						Email:      "dev@localhost",
						Role:       RoleAdmin,
						TenantSlug: slug,
						TenantID:   uuid.Nil,
						Method:     MethodDev,
					}

					if pool != nil {
						q := db.New(pool)
						if t, err := q.GetTenantBySlug(r.Context(), slug); err == nil {
							identity.TenantID = t.ID
						}
					}

					logger.Debug("dev-mode authentication", "tenant_slug", slug)
				}
			}

			if identity == nil {
				respondErr(w, r, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondErr(w http.ResponseWriter, r *http.Request, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":      errStr,
		"message":    message,
		"request_id": reqid.FromContext(r.Context()),
	})
}
