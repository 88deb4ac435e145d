package scheduler

import (
	"testing"
	"time"
)

func newTestScheduler() *Scheduler {
	return New(nil, nil, nil, 10*time.Second, time.Minute)
}

func TestNextRun_FiveFieldSyntax(t *testing.T) {
	s := newTestScheduler()
	from := time.Date(2026, 3, 10, 14, 7, 30, 0, time.UTC)

	cases := []struct {
		expr string
		want time.Time
	}{
		{"0 * * * *", time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 3, 10, 14, 15, 0, 0, time.UTC)},
		{"30 2 * * *", time.Date(2026, 3, 11, 2, 30, 0, 0, time.UTC)},
		{"0 9-17 * * *", time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)},
		{"0 0 1,15 * *", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"0 8 * * 1", time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := s.nextRun(tc.expr, from)
		if err != nil {
			t.Fatalf("nextRun(%q) error: %v", tc.expr, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("nextRun(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestNextRun_AppliedTwiceSkipsExactlyOneTick(t *testing.T) {
	s := newTestScheduler()
	from := time.Date(2026, 3, 10, 14, 7, 30, 0, time.UTC)

	for _, expr := range []string{"*/5 * * * *", "0 * * * *", "30 2 * * *"} {
		first, err := s.nextRun(expr, from)
		if err != nil {
			t.Fatalf("nextRun(%q) error: %v", expr, err)
		}
		second, err := s.nextRun(expr, first)
		if err != nil {
			t.Fatalf("nextRun(%q) error: %v", expr, err)
		}
		if !second.After(first) {
			t.Errorf("nextRun(%q) second tick %v is not after first %v", expr, second, first)
		}
		// No tick may exist strictly between first and second.
		between, err := s.nextRun(expr, first.Add(-time.Second))
		if err != nil {
			t.Fatalf("nextRun(%q) error: %v", expr, err)
		}
		if !between.Equal(first) {
			t.Errorf("nextRun(%q) found intermediate tick %v between %v and %v", expr, between, first, second)
		}
	}
}

func TestNextRun_RejectsMalformedExpressions(t *testing.T) {
	s := newTestScheduler()
	for _, expr := range []string{"", "not a cron", "61 * * * *", "* * * *"} {
		if _, err := s.nextRun(expr, time.Now()); err == nil {
			t.Errorf("nextRun(%q) succeeded, want error", expr)
		}
	}
}
