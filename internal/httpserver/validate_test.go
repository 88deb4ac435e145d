package httpserver

import "testing"

func TestValidate_DomainTags(t *testing.T) {
	type req struct {
		Tier string `validate:"omitempty,risk_tier"`
		Kind string `validate:"omitempty,adapter_kind"`
		Cron string `validate:"omitempty,cron"`
		Slug string `validate:"omitempty,tenant_slug"`
	}

	if errs := Validate(req{Tier: "HIGH", Kind: "s3", Cron: "*/5 * * * *", Slug: "acme-corp"}); len(errs) != 0 {
		t.Fatalf("valid request produced errors: %+v", errs)
	}

	cases := []struct {
		name  string
		input req
		field string
	}{
		{"lowercase tier", req{Tier: "high"}, "tier"},
		{"unknown tier", req{Tier: "SEVERE"}, "tier"},
		{"unknown adapter", req{Kind: "ftp"}, "kind"},
		{"six-field cron", req{Cron: "0 0 * * * *"}, "cron"},
		{"garbage cron", req{Cron: "whenever"}, "cron"},
		{"uppercase slug", req{Slug: "Acme"}, "slug"},
		{"trailing hyphen slug", req{Slug: "acme-"}, "slug"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := Validate(tc.input)
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %+v", len(errs), errs)
			}
			if errs[0].Field != tc.field {
				t.Errorf("error field = %q, want %q", errs[0].Field, tc.field)
			}
		})
	}
}

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"Name":         "name",
		"AdapterKind":  "adapter_kind",
		"CronExpr":     "cron_expr",
		"already_down": "already_down",
	}
	for in, want := range cases {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
