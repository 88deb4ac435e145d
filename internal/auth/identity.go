// Package auth implements the two authentication methods this API
// accepts: Bearer-token (OIDC JWT) for dashboard and human callers,
// and API-key for service accounts. There is no cookie session surface
// in this API.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role levels: an admin manages tenant configuration and policies, a
// manager approves
// remediation actions, an engineer operates scan targets and schedules,
// and readonly only views results.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEngineer = "engineer"
	RoleReadonly = "readonly"
)

// Authentication methods an Identity may have been resolved through.
const (
	MethodOIDC   = "oidc"
	MethodAPIKey = "apikey"
	MethodDev    = "dev"
)

// IsValidRole reports whether role is one of the four known roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleEngineer, RoleReadonly:
		return true
	default:
		return false
	}
}

// Identity is the resolved caller identity attached to the request
// context by Middleware.
type Identity struct {
	Subject    string
	Email      string
	Role       string
	TenantSlug string
	TenantID   uuid.UUID
	APIKeyID   *uuid.UUID
	Method     string
}

type contextKey string

const identityKey contextKey = "auth_identity"

// NewContext stores identity in the context.
func NewContext(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// FromContext extracts the identity from the context, or nil if absent.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}
