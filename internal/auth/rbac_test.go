package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAuth(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("rejects unauthenticated", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		RequireAuth(okHandler).ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("passes authenticated", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := NewContext(r.Context(), &Identity{Subject: "user", Role: RoleEngineer})
		r = r.WithContext(ctx)
		w := httptest.NewRecorder()

		RequireAuth(okHandler).ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

func TestHasCapability_Matrix(t *testing.T) {
	tests := []struct {
		role       string
		capability string
		want       bool
	}{
		{RoleAdmin, CapManageTenant, true},
		{RoleAdmin, CapApproveRemediation, true},
		{RoleManager, CapManageTenant, false},
		{RoleManager, CapApproveRemediation, true},
		{RoleManager, CapOperateScans, true},
		{RoleEngineer, CapOperateScans, true},
		{RoleEngineer, CapApproveRemediation, false},
		{RoleEngineer, CapManageTenant, false},
		{RoleReadonly, CapViewFindings, true},
		{RoleReadonly, CapOperateScans, false},
	}
	for _, tt := range tests {
		id := &Identity{Subject: "u", Role: tt.role}
		if got := HasCapability(id, tt.capability); got != tt.want {
			t.Errorf("HasCapability(%s, %s) = %v, want %v", tt.role, tt.capability, got, tt.want)
		}
	}
	if HasCapability(nil, CapViewFindings) {
		t.Error("nil identity should hold no capability")
	}
	if HasCapability(&Identity{Role: "unknown"}, CapViewFindings) {
		t.Error("unknown role should hold no capability")
	}
}

func TestRequireCapability(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := RequireCapability(CapApproveRemediation)

	tests := []struct {
		name     string
		role     string
		wantCode int
	}{
		{"admin allowed", RoleAdmin, http.StatusOK},
		{"manager allowed", RoleManager, http.StatusOK},
		{"engineer rejected", RoleEngineer, http.StatusForbidden},
		{"readonly rejected", RoleReadonly, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			ctx := NewContext(r.Context(), &Identity{Subject: "u", Role: tt.role})
			r = r.WithContext(ctx)
			w := httptest.NewRecorder()

			mw(okHandler).ServeHTTP(w, r)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestRequireCapability_NoIdentity(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := RequireCapability(CapViewFindings)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	mw(okHandler).ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestResolveRole(t *testing.T) {
	if got := resolveRole(RoleManager, nil); got != RoleManager {
		t.Errorf("scalar role ignored: got %q", got)
	}
	if got := resolveRole("", []string{RoleReadonly, RoleEngineer}); got != RoleEngineer {
		t.Errorf("app-roles fallback = %q, want most privileged valid role", got)
	}
	if got := resolveRole("bogus", []string{"also-bogus"}); got != RoleReadonly {
		t.Errorf("default role = %q, want %q", got, RoleReadonly)
	}
}
