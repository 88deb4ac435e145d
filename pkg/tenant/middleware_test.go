package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeaderResolver(t *testing.T) {
	tests := []struct {
		name    string
		slug    string
		want    string
		wantErr bool
	}{
		{"slug present", "acme", "acme", false},
		{"slug with tenant prefix", "contoso-eu", "contoso-eu", false},
		{"header absent", "", "", true},
	}

	var resolver HeaderResolver
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
			if tt.slug != "" {
				r.Header.Set("X-Tenant-Slug", tt.slug)
			}

			got, err := resolver.Resolve(r)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected resolution error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got != tt.want {
				t.Errorf("slug = %q, want %q", got, tt.want)
			}
		})
	}
}
