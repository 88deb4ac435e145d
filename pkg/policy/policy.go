// Package policy implements the pure trigger-evaluation engine:
// no I/O, just a function from detected entities to matched
// policy results. One Definition corresponds to one tenant policy row:
// a single trigger condition plus the remediation action to dispatch
// when it fires.
package policy

import (
	"encoding/json"
	"fmt"

	"github.com/chillbot-io/openlabels/pkg/detection"
)

// Trigger is the fire condition stored in a policy row's Condition
// column. It fires iff every required entity type is present with
// count >= MinCount, MinConfidence is at most the max confidence
// observed for that type, and no type in ExcludeIfOnly is the sole
// detected type.
type Trigger struct {
	RequiredTypes []string `json:"required_types"`
	MinCount      int      `json:"min_count"`
	MinConfidence float64  `json:"min_confidence"`
	ExcludeIfOnly []string `json:"exclude_if_only"`
}

// Definition is one evaluable policy: identity, its parsed trigger, and
// the remediation action to dispatch on a match.
type Definition struct {
	ID         string
	Name       string
	Trigger    Trigger
	ActionKind string
	ActionArgs json.RawMessage
}

// ParseTrigger decodes a policy row's Condition column into a Trigger.
func ParseTrigger(raw json.RawMessage) (Trigger, error) {
	var t Trigger
	if len(raw) == 0 {
		return t, nil
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return Trigger{}, fmt.Errorf("parsing policy trigger: %w", err)
	}
	return t, nil
}

// Match is one policy whose trigger fired against a finding.
type Match struct {
	PolicyID   string
	Name       string
	ActionKind string
	ActionArgs json.RawMessage
}

// Result is the policy engine's output for one finding.
type Result struct {
	Matched []Match
}

// Evaluate runs every definition's trigger against entities and returns
// the policies that fired. Pure function: no I/O, no side effects,
// deterministic given the same inputs.
func Evaluate(definitions []Definition, entities []detection.Entity) Result {
	counts, maxConf, soleType := summarize(entities)

	var matched []Match
	for _, def := range definitions {
		if triggerFires(def.Trigger, counts, maxConf, soleType) {
			matched = append(matched, Match{
				PolicyID:   def.ID,
				Name:       def.Name,
				ActionKind: def.ActionKind,
				ActionArgs: def.ActionArgs,
			})
		}
	}
	return Result{Matched: matched}
}

func triggerFires(t Trigger, counts map[string]int, maxConf map[string]float64, soleType string) bool {
	if len(t.RequiredTypes) == 0 {
		return false
	}
	for _, required := range t.RequiredTypes {
		minCount := t.MinCount
		if minCount < 1 {
			minCount = 1
		}
		if counts[required] < minCount {
			return false
		}
		if maxConf[required] < t.MinConfidence {
			return false
		}
	}
	for _, excluded := range t.ExcludeIfOnly {
		if soleType == excluded {
			return false
		}
	}
	return true
}

// summarize reduces entities into per-type counts, per-type max
// confidence, and the sole surviving type (empty if more than one type
// is present, used for ExcludeIfOnly evaluation).
func summarize(entities []detection.Entity) (counts map[string]int, maxConf map[string]float64, soleType string) {
	counts = map[string]int{}
	maxConf = map[string]float64{}
	types := map[string]bool{}

	for _, e := range entities {
		counts[e.Type] += e.Count
		if e.MaxConf > maxConf[e.Type] {
			maxConf[e.Type] = e.MaxConf
		}
		types[e.Type] = true
	}

	if len(types) == 1 {
		for t := range types {
			soleType = t
		}
	}
	return counts, maxConf, soleType
}
