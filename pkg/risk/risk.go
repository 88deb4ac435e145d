// Package risk implements the static risk scorer: a pure
// function from entity counts and exposure level to a clamped score and
// tier, with every weight and threshold expressed as data rather than
// branching logic.
package risk

import "github.com/chillbot-io/openlabels/pkg/model"

// weightTable assigns a base weight per normalized entity type. Values
// reflect relative sensitivity (a lone secret weighs heavier than a
// lone name) and are deliberately data, not code.
var weightTable = map[string]float64{
	"NAME":        2,
	"EMAIL":       3,
	"PHONE":       3,
	"DOB":         5,
	"SSN":         26,
	"CREDIT_CARD": 18,
	"ABA_ROUTING": 10,
	"IBAN":        18,
	"VIN":         6,
	"NPI":         8,
	"SECRET":      15,
}

// DefaultWeight is used for entity types absent from weightTable so an
// unrecognized type still contributes a nonzero signal.
const DefaultWeight = 1.0

// coOccurrenceRule boosts the aggregate score when every named type is
// present together, modeling combinations materially riskier than the
// sum of their parts (e.g. a name next to a birth date and an SSN is
// enough to commit identity theft).
type coOccurrenceRule struct {
	types      []string
	multiplier float64
}

var coOccurrenceRules = []coOccurrenceRule{
	{types: []string{"NAME", "SSN", "DOB"}, multiplier: 1.5},
	{types: []string{"NAME", "CREDIT_CARD"}, multiplier: 1.3},
	{types: []string{"NAME", "IBAN"}, multiplier: 1.3},
	{types: []string{"SSN", "CREDIT_CARD"}, multiplier: 1.4},
}

// exposureMultiplier scales the aggregate score by how broadly a file
// is accessible.
var exposureMultiplier = map[model.ExposureLevel]float64{
	model.ExposurePrivate:  1.0,
	model.ExposureInternal: 1.1,
	model.ExposureOrgWide:  1.5,
	model.ExposurePublic:   2.0,
}

// tierThreshold is one (upper bound, tier) pair, checked in ascending
// order; the first threshold the clamped score does not exceed wins.
type tierThreshold struct {
	max  float64
	tier model.RiskTier
}

var tierThresholds = []tierThreshold{
	{max: 10, tier: model.TierMinimal},
	{max: 25, tier: model.TierLow},
	{max: 50, tier: model.TierMedium},
	{max: 80, tier: model.TierHigh},
	{max: 100, tier: model.TierCritical},
}

// Score computes the clamped [0,100] risk score for a finding.
func Score(entityCounts map[string]int, exposure model.ExposureLevel) float64 {
	var sum float64
	for entityType, count := range entityCounts {
		w, ok := weightTable[entityType]
		if !ok {
			w = DefaultWeight
		}
		sum += w * float64(count)
	}

	for _, rule := range coOccurrenceRules {
		if hasAll(entityCounts, rule.types) {
			sum *= rule.multiplier
		}
	}

	mult, ok := exposureMultiplier[exposure]
	if !ok {
		mult = 1.0
	}
	sum *= mult

	if sum < 0 {
		sum = 0
	}
	if sum > 100 {
		sum = 100
	}
	return sum
}

// Tier maps a clamped score to its risk tier through tierThresholds.
func Tier(score float64) model.RiskTier {
	for _, t := range tierThresholds {
		if score <= t.max {
			return t.tier
		}
	}
	return model.TierCritical
}

// ScoreAndTier is the convenience entry point used by the scan
// orchestrator: score and tier in one call.
func ScoreAndTier(entityCounts map[string]int, exposure model.ExposureLevel) (float64, model.RiskTier) {
	s := Score(entityCounts, exposure)
	return s, Tier(s)
}

func hasAll(counts map[string]int, types []string) bool {
	for _, t := range types {
		if counts[t] <= 0 {
			return false
		}
	}
	return true
}
