package detection

import (
	"regexp"
	"strings"
)

// contextWindow is the +/- character radius scanned for hotwords
// around a span.
const contextWindow = 64

// negativeHotwords depress confidence when found near a span (e.g. a
// value presented as an example or placeholder rather than real data).
var negativeHotwords = []string{
	"example", "sample", "placeholder", "dummy", "test data", "fake",
	"n/a", "xxx-xx-xxxx", "lorem ipsum",
}

// positiveHotwords raise confidence when found near a span (field
// labels that corroborate the entity type).
var positiveHotwords = map[string][]string{
	"SSN":         {"ssn", "social security"},
	"CREDIT_CARD": {"card number", "credit card", "cc#"},
	"DOB":         {"date of birth", "dob", "born"},
	"NPI":         {"npi", "provider id"},
	"NAME":        {"name:", "patient", "customer", "employee"},
}

// denyList names values that should never be treated as entities even
// when pattern-matched (common placeholder/test fixture values).
var denyList = map[string]bool{
	"000-00-0000":      true,
	"4111111111111111": true,
	"test@example.com": true,
	"john doe":         true,
}

var sentenceLike = regexp.MustCompile(`[.!?]\s|\s(the|and|is|was|were)\s`)

// EnhanceContext applies Stage 3: deny-list rejection, hotword
// confidence multipliers within +/-64 characters of the span, prose
// detection, and the final confidence floor.
// Spans below the floor are dropped unless their type is in
// HighValueAlwaysKeep.
func EnhanceContext(text string, spans []Span) []Span {
	var out []Span
	for _, s := range spans {
		norm := strings.ToLower(strings.TrimSpace(s.Value))
		if denyList[norm] {
			continue
		}

		windowStart := s.Start - contextWindow
		if windowStart < 0 {
			windowStart = 0
		}
		windowEnd := s.End + contextWindow
		if windowEnd > len(text) {
			windowEnd = len(text)
		}
		window := strings.ToLower(text[windowStart:windowEnd])

		conf := s.Confidence
		for _, neg := range negativeHotwords {
			if strings.Contains(window, neg) {
				conf *= 0.5
				break
			}
		}
		for _, pos := range positiveHotwords[s.EntityType] {
			if strings.Contains(window, pos) {
				conf *= 1.2
				if conf > 1.0 {
					conf = 1.0
				}
				break
			}
		}

		// A value that reads like running prose is a fragment the
		// detector bit off mid-sentence, not an entity; reject it no
		// matter how confident the detector was.
		if sentenceLike.MatchString(s.Value) {
			continue
		}

		if conf < 0.5 && !HighValueAlwaysKeep[s.EntityType] {
			continue
		}

		s.Confidence = conf
		out = append(out, s)
	}
	return out
}
