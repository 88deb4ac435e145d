package policy

import (
	"testing"

	"github.com/chillbot-io/openlabels/pkg/detection"
)

func ssnPolicy() Definition {
	return Definition{
		ID:   "p1",
		Name: "SSN present",
		Trigger: Trigger{
			RequiredTypes: []string{"SSN"},
			MinCount:      1,
			MinConfidence: 0.8,
		},
		ActionKind: "quarantine",
	}
}

func TestEvaluate_FiresOnRequiredType(t *testing.T) {
	entities := []detection.Entity{{Type: "SSN", Count: 1, MaxConf: 0.9}}
	res := Evaluate([]Definition{ssnPolicy()}, entities)
	if len(res.Matched) != 1 {
		t.Fatalf("expected 1 match, got %d", len(res.Matched))
	}
	if res.Matched[0].ActionKind != "quarantine" {
		t.Fatalf("action kind = %q, want quarantine", res.Matched[0].ActionKind)
	}
}

func TestEvaluate_NoMatchBelowMinConfidence(t *testing.T) {
	entities := []detection.Entity{{Type: "SSN", Count: 1, MaxConf: 0.5}}
	res := Evaluate([]Definition{ssnPolicy()}, entities)
	if len(res.Matched) != 0 {
		t.Fatalf("expected no match below min_confidence, got %+v", res.Matched)
	}
}

func TestEvaluate_ExcludeIfOnly(t *testing.T) {
	def := Definition{
		ID:   "p2",
		Name: "Name co-occurrence only",
		Trigger: Trigger{
			RequiredTypes: []string{"NAME"},
			MinCount:      1,
			ExcludeIfOnly: []string{"NAME"},
		},
	}
	entities := []detection.Entity{{Type: "NAME", Count: 1, MaxConf: 0.9}}
	res := Evaluate([]Definition{def}, entities)
	if len(res.Matched) != 0 {
		t.Fatalf("expected exclude_if_only to suppress sole-type match, got %+v", res.Matched)
	}
}

func TestEvaluate_MinCountNotMet(t *testing.T) {
	def := Definition{
		ID:   "p3",
		Name: "Bulk SSN",
		Trigger: Trigger{
			RequiredTypes: []string{"SSN"},
			MinCount:      3,
		},
	}
	entities := []detection.Entity{{Type: "SSN", Count: 1, MaxConf: 0.9}}
	res := Evaluate([]Definition{def}, entities)
	if len(res.Matched) != 0 {
		t.Fatalf("expected no match below min_count, got %+v", res.Matched)
	}
}

func TestEvaluate_EmptyTriggerNeverFires(t *testing.T) {
	def := Definition{ID: "p4", Name: "Empty"}
	entities := []detection.Entity{{Type: "SSN", Count: 5, MaxConf: 1.0}}
	res := Evaluate([]Definition{def}, entities)
	if len(res.Matched) != 0 {
		t.Fatalf("expected empty trigger to never fire, got %+v", res.Matched)
	}
}
