package detection

import "regexp"

// secretDetector is a high-confidence pattern for credentials embedded
// in documents, run in parallel with the pattern detectors during
// triage.
type secretDetector struct {
	entityType string
	baseConf   float64
	re         *regexp.Regexp
}

var secretDetectors = []secretDetector{
	{
		entityType: "SECRET",
		baseConf:   0.95,
		re:         regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	},
	{
		entityType: "SECRET",
		baseConf:   0.9,
		re:         regexp.MustCompile(`\bASIA[0-9A-Z]{16}\b`),
	},
	{
		entityType: "SECRET",
		baseConf:   0.9,
		re:         regexp.MustCompile(`\bghp_[0-9A-Za-z]{36}\b`),
	},
	{
		entityType: "SECRET",
		baseConf:   0.9,
		re:         regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
	},
	{
		entityType: "SECRET",
		baseConf:   0.85,
		re:         regexp.MustCompile(`\bxox[baprs]-[0-9A-Za-z-]{10,}\b`),
	},
	{
		entityType: "SECRET",
		baseConf:   0.7,
		re:         regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
	},
	{
		entityType: "SECRET",
		baseConf:   0.6,
		re:         regexp.MustCompile(`(?i)\b(api[_-]?key|secret|password|token)\b\s*[:=]\s*['"]?[A-Za-z0-9+/_.\-]{12,}['"]?`),
	},
}

// RunSecretDetectors runs every secret pattern over text and returns
// one Span per match.
func RunSecretDetectors(text string) []Span {
	var spans []Span
	for _, d := range secretDetectors {
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			spans = append(spans, Span{
				Start:      loc[0],
				End:        loc[1],
				EntityType: NormalizeType(d.entityType),
				Value:      text[loc[0]:loc[1]],
				Confidence: d.baseConf,
				Source:     "secret",
			})
		}
	}
	return spans
}
