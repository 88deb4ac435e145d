// Package detection implements the tiered entity-detection pipeline:
// pattern/secrets triage, ML escalation, and context enhancement over
// a text blob, deterministic given the same text and model version.
package detection

import "strings"

// Span is a typed, scored substring of a document: the unit output by
// detectors and consumed by the risk scorer.
type Span struct {
	Start      int
	End        int
	EntityType string
	Value      string
	Confidence float64
	Source     string // "pattern" | "secret" | "ner" | "merged"
}

// Entity groups surviving spans by normalized type and value, preserving
// mention positions for evidence retrieval.
type Entity struct {
	Type      string
	Value     string
	Count     int
	MaxConf   float64
	Positions [][2]int
}

// aliasTable normalizes entity type spellings emitted by different
// detectors onto one canonical name.
var aliasTable = map[string]string{
	"PERSON":    "NAME",
	"PER":       "NAME",
	"FIRSTNAME": "NAME",
	"LASTNAME":  "NAME",
	"NAME":      "NAME",

	"SSN":           "SSN",
	"SOCIALSECURITY": "SSN",

	"CREDITCARD": "CREDIT_CARD",
	"CC":         "CREDIT_CARD",
	"CARD":       "CREDIT_CARD",

	"ROUTING":    "ABA_ROUTING",
	"ABA":        "ABA_ROUTING",

	"IBAN": "IBAN",

	"VIN": "VIN",

	"NPI": "NPI",

	"EMAIL": "EMAIL",
	"PHONE": "PHONE",
	"DOB":   "DOB",

	"APIKEY":   "SECRET",
	"SECRET":   "SECRET",
	"TOKEN":    "SECRET",
	"PASSWORD": "SECRET",
}

// NormalizeType canonicalizes an entity type through the alias table.
func NormalizeType(raw string) string {
	up := strings.ToUpper(strings.TrimSpace(raw))
	if canon, ok := aliasTable[up]; ok {
		return canon
	}
	return up
}

// HighValueAlwaysKeep names entity types that survive stage 3's
// confidence floor regardless of final score.
var HighValueAlwaysKeep = map[string]bool{
	"SSN":         true,
	"CREDIT_CARD": true,
	"IBAN":        true,
	"SECRET":      true,
}

// MLBeneficialTypes names entity types whose low-confidence stage-1
// spans justify invoking Stage 2 NER escalation.
var MLBeneficialTypes = map[string]bool{
	"NAME": true,
	"DOB":  true,
}
