package risk

import (
	"testing"

	"github.com/chillbot-io/openlabels/pkg/model"
)

func TestScore_EmptyCountsIsZero(t *testing.T) {
	if got := Score(nil, model.ExposurePrivate); got != 0 {
		t.Fatalf("Score(nil) = %v, want 0", got)
	}
	if tier := Tier(0); tier != model.TierMinimal {
		t.Fatalf("Tier(0) = %v, want MINIMAL", tier)
	}
}

func TestScore_TwoSSNsReachesHigh(t *testing.T) {
	counts := map[string]int{"SSN": 2}
	score, tier := ScoreAndTier(counts, model.ExposureInternal)
	if score < 51 {
		t.Fatalf("score = %v, want >= 51", score)
	}
	if tier != model.TierHigh {
		t.Fatalf("tier = %v, want HIGH", tier)
	}
}

func TestScore_ClampsAtOneHundred(t *testing.T) {
	counts := map[string]int{"SSN": 50, "CREDIT_CARD": 50, "NAME": 50, "DOB": 50}
	score := Score(counts, model.ExposurePublic)
	if score != 100 {
		t.Fatalf("score = %v, want 100 (clamped)", score)
	}
}

func TestScore_CoOccurrenceBoostsOverIndependentSum(t *testing.T) {
	withoutDOB := Score(map[string]int{"NAME": 1, "SSN": 1}, model.ExposurePrivate)
	withDOB := Score(map[string]int{"NAME": 1, "SSN": 1, "DOB": 1}, model.ExposurePrivate)
	independentSum := withoutDOB + weightTable["DOB"]
	if withDOB <= independentSum {
		t.Fatalf("co-occurrence score %v should exceed independent sum %v", withDOB, independentSum)
	}
}

func TestScore_ExposureMultiplierOrdering(t *testing.T) {
	counts := map[string]int{"SSN": 1}
	private := Score(counts, model.ExposurePrivate)
	public := Score(counts, model.ExposurePublic)
	if public <= private {
		t.Fatalf("PUBLIC score %v should exceed PRIVATE score %v", public, private)
	}
}

func TestTier_Boundaries(t *testing.T) {
	cases := map[float64]model.RiskTier{
		10:  model.TierMinimal,
		11:  model.TierLow,
		25:  model.TierLow,
		26:  model.TierMedium,
		50:  model.TierMedium,
		51:  model.TierHigh,
		80:  model.TierHigh,
		81:  model.TierCritical,
		100: model.TierCritical,
	}
	for score, want := range cases {
		if got := Tier(score); got != want {
			t.Errorf("Tier(%v) = %v, want %v", score, got, want)
		}
	}
}
