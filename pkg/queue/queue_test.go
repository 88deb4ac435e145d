package queue

import (
	"context"
	"testing"
	"time"

	"github.com/chillbot-io/openlabels/internal/db"
)

func TestExponentialBackoff_StaysWithinCap(t *testing.T) {
	base := 5 * time.Second
	max := 15 * time.Minute

	for retry := int32(0); retry < 20; retry++ {
		got := exponentialBackoff(base, max, retry)
		if got < 0 {
			t.Fatalf("backoff(retry=%d) = %v, negative", retry, got)
		}
		if got > max {
			t.Fatalf("backoff(retry=%d) = %v, exceeds cap %v", retry, got, max)
		}
	}
}

func TestExponentialBackoff_JitterBoundedByUncappedValue(t *testing.T) {
	base := time.Second
	max := time.Hour

	// At retry 3 the uncapped ceiling is 8s; full jitter never exceeds it.
	for i := 0; i < 100; i++ {
		got := exponentialBackoff(base, max, 3)
		if got > 8*time.Second {
			t.Fatalf("backoff(retry=3) = %v, exceeds 8s ceiling", got)
		}
	}
}

func TestExponentialBackoff_OverflowFallsBackToCap(t *testing.T) {
	base := time.Second
	max := time.Minute

	// Large enough retry counts overflow the multiplication; the result
	// must still land inside [0, max].
	got := exponentialBackoff(base, max, 63)
	if got < 0 || got > max {
		t.Fatalf("backoff(retry=63) = %v, want within [0, %v]", got, max)
	}
}

func TestRegister_ReplacesPreviousHandler(t *testing.T) {
	d := New(nil, nil, "worker-1")

	var ran string
	d.Register("scan", func(ctx context.Context, job db.QueuedJob) error {
		ran = "first"
		return nil
	})
	d.Register("scan", func(ctx context.Context, job db.QueuedJob) error {
		ran = "second"
		return nil
	})

	if err := d.handlers["scan"](context.Background(), db.QueuedJob{}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if ran != "second" {
		t.Fatalf("handler ran = %q, want %q", ran, "second")
	}
}

func TestTaskTypes_ListsRegisteredHandlers(t *testing.T) {
	d := New(nil, nil, "worker-1")
	d.Register("scan", nil)
	d.Register("scan_partition", nil)

	types := d.taskTypes()
	if len(types) != 2 {
		t.Fatalf("taskTypes() = %v, want 2 entries", types)
	}
	seen := map[string]bool{}
	for _, tt := range types {
		seen[tt] = true
	}
	if !seen["scan"] || !seen["scan_partition"] {
		t.Fatalf("taskTypes() = %v, missing registered type", types)
	}
}
