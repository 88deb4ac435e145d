package auth

import (
	"encoding/json"
	"net/http"

	"github.com/chillbot-io/openlabels/internal/reqid"
)

// roleLevel orders roles by privilege, used when picking the effective
// role from an Azure app-roles array.
var roleLevel = map[string]int{
	RoleAdmin:    40,
	RoleManager:  30,
	RoleEngineer: 20,
	RoleReadonly: 10,
}

// Capabilities gate the platform's operations. Routes declare the
// capability they need rather than naming roles, so adding a role means
// editing one table instead of every handler.
const (
	// CapManageTenant covers tenant settings, API keys, and policy
	// definitions.
	CapManageTenant = "manage_tenant"
	// CapOperateScans covers scan targets, schedules, manual scan
	// triggers, and job cancellation.
	CapOperateScans = "operate_scans"
	// CapApproveRemediation covers acting on pending remediation
	// actions (labels, quarantine).
	CapApproveRemediation = "approve_remediation"
	// CapViewFindings covers read access to results, summaries, events,
	// and exports.
	CapViewFindings = "view_findings"
)

// roleCapabilities is the authorization matrix: engineers run scans but
// cannot approve remediations, managers approve remediations but do not
// administer the tenant, and readonly sees findings only.
var roleCapabilities = map[string]map[string]bool{
	RoleAdmin: {
		CapManageTenant:       true,
		CapOperateScans:       true,
		CapApproveRemediation: true,
		CapViewFindings:       true,
	},
	RoleManager: {
		CapOperateScans:       true,
		CapApproveRemediation: true,
		CapViewFindings:       true,
	},
	RoleEngineer: {
		CapOperateScans: true,
		CapViewFindings: true,
	},
	RoleReadonly: {
		CapViewFindings: true,
	},
}

// HasCapability reports whether the identity's role grants capability.
func HasCapability(id *Identity, capability string) bool {
	if id == nil {
		return false
	}
	return roleCapabilities[id.Role][capability]
}

// RequireAuth rejects requests that have no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			respondErr(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCapability returns middleware that rejects requests whose
// identity lacks the given capability.
func RequireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondForbidden(w, r, "authentication required")
				return
			}
			if !HasCapability(id, capability) {
				respondForbidden(w, r, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondForbidden(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":      "forbidden",
		"message":    message,
		"request_id": reqid.FromContext(r.Context()),
	})
}
