package tenant

import "testing"

func TestSlugPattern(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"acme", true},
		{"test_org", true},
		{"a1", true},
		{"", false},
		{"1acme", false},
		{"Acme", false},
		{"ac me", false},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			if got := slugPattern.MatchString(tt.slug); got != tt.want {
				t.Errorf("slugPattern.MatchString(%q) = %v, want %v", tt.slug, got, tt.want)
			}
		})
	}
}
