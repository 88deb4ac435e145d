package catalog

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHivePathUsesPerTableDateColumn(t *testing.T) {
	ts := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	got := hivePath(TableFileAccessEvents, "tenant-a", "2026-03-04", ts)
	want := "file_access_events/tenant=tenant-a/occurred_at=2026-03-04/part-20260304T100000.000000000.parquet"
	if got != want {
		t.Fatalf("hivePath() = %q, want %q", got, want)
	}
}

func TestGroupByTenantDateSplitsAcrossTenantsAndDays(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()
	day1 := time.Date(2026, 3, 4, 1, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 5, 1, 0, 0, 0, time.UTC)

	tenants := []uuid.UUID{tenantA, tenantA, tenantB, tenantA}
	times := []time.Time{day1, day1, day1, day2}

	groups := groupByTenantDate(len(tenants), func(i int) (uuid.UUID, time.Time) {
		return tenants[i], times[i]
	})

	if len(groups) != 3 {
		t.Fatalf("expected 3 partitions, got %d", len(groups))
	}
	if idx := groups[partitionKey{tenantID: tenantA, date: "2026-03-04"}]; len(idx) != 2 {
		t.Fatalf("expected 2 rows in tenantA/day1, got %d", len(idx))
	}
	if idx := groups[partitionKey{tenantID: tenantB, date: "2026-03-04"}]; len(idx) != 1 {
		t.Fatalf("expected 1 row in tenantB/day1, got %d", len(idx))
	}
	if idx := groups[partitionKey{tenantID: tenantA, date: "2026-03-05"}]; len(idx) != 1 {
		t.Fatalf("expected 1 row in tenantA/day2, got %d", len(idx))
	}
}

func TestSplitBucketPrefix(t *testing.T) {
	cases := map[string][2]string{
		"my-bucket":            {"my-bucket", ""},
		"my-bucket/catalog":    {"my-bucket", "catalog/"},
		"my-bucket/a/b":        {"my-bucket", "a/b/"},
	}
	for in, want := range cases {
		bucket, prefix := splitBucketPrefix(in)
		if prefix != "" && prefix[len(prefix)-1] != '/' {
			prefix += "/"
		}
		if bucket != want[0] || (want[1] != "" && prefix != want[1]) {
			t.Errorf("splitBucketPrefix(%q) = (%q, %q), want (%q, %q)", in, bucket, prefix, want[0], want[1])
		}
	}
}

func TestSplitAzureURL(t *testing.T) {
	base, container, prefix := splitAzureURL("https://acct.blob.core.windows.net/mycontainer/some/prefix")
	if base != "https://acct.blob.core.windows.net" {
		t.Errorf("base = %q", base)
	}
	if container != "mycontainer" {
		t.Errorf("container = %q", container)
	}
	if prefix != "some/prefix" {
		t.Errorf("prefix = %q", prefix)
	}
}

func TestParseCompressionDefaultsToZstd(t *testing.T) {
	codec, err := parseCompression("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	zstd, err := parseCompression("zstd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if codec != zstd {
		t.Fatalf("expected default compression to equal explicit zstd")
	}
	if _, err := parseCompression("bogus"); err == nil {
		t.Fatal("expected error for unknown compression")
	}
}
