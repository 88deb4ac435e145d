package detection

import (
	"regexp"
	"strconv"
	"strings"
)

// patternDetector is one Stage 1 rule: a regex plus an optional
// validator that tightens confidence or rejects format-only matches.
type patternDetector struct {
	entityType string
	baseConf   float64
	re         *regexp.Regexp
	validate   func(match string) (ok bool, conf float64)
}

var patternDetectors = []patternDetector{
	{
		entityType: "EMAIL",
		baseConf:   0.9,
		re:         regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	},
	{
		entityType: "PHONE",
		baseConf:   0.6,
		re:         regexp.MustCompile(`\b(\+?1[-. ]?)?\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`),
	},
	{
		entityType: "SSN",
		baseConf:   0.5,
		re:         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		validate:   validateSSN,
	},
	{
		entityType: "CREDIT_CARD",
		baseConf:   0.5,
		re:         regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
		validate:   validateLuhn,
	},
	{
		entityType: "ABA_ROUTING",
		baseConf:   0.5,
		re:         regexp.MustCompile(`\b\d{9}\b`),
		validate:   validateABA,
	},
	{
		entityType: "IBAN",
		baseConf:   0.6,
		re:         regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
		validate:   validateIBAN,
	},
	{
		entityType: "VIN",
		baseConf:   0.5,
		re:         regexp.MustCompile(`\b[A-HJ-NPR-Z0-9]{17}\b`),
		validate:   validateVIN,
	},
	{
		entityType: "NPI",
		baseConf:   0.5,
		re:         regexp.MustCompile(`\b\d{10}\b`),
		validate:   validateNPI,
	},
	{
		entityType: "DOB",
		baseConf:   0.4,
		re:         regexp.MustCompile(`\b\d{1,2}/\d{1,2}/(19|20)\d{2}\b`),
	},
}

// RunPatternDetectors runs every Stage 1 regex detector over text and
// returns one Span per accepted match.
func RunPatternDetectors(text string) []Span {
	var spans []Span
	for _, d := range patternDetectors {
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			conf := d.baseConf
			if d.validate != nil {
				ok, c := d.validate(value)
				if !ok {
					continue
				}
				conf = c
			}
			spans = append(spans, Span{
				Start:      loc[0],
				End:        loc[1],
				EntityType: NormalizeType(d.entityType),
				Value:      value,
				Confidence: conf,
				Source:     "pattern",
			})
		}
	}
	return spans
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validateLuhn implements the Luhn checksum used by credit card PANs.
func validateLuhn(match string) (bool, float64) {
	digits := digitsOnly(match)
	if len(digits) < 13 || len(digits) > 19 {
		return false, 0
	}
	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if alt {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		alt = !alt
	}
	if sum%10 != 0 {
		return false, 0
	}
	return true, 0.9
}

// validateSSN rejects SSNs with reserved area/group/serial values
// (000, 666, 900-999 area numbers; 00 group; 0000 serial).
func validateSSN(match string) (bool, float64) {
	parts := strings.Split(match, "-")
	if len(parts) != 3 {
		return false, 0
	}
	area, group, serial := parts[0], parts[1], parts[2]
	if area == "000" || area == "666" || area[0] == '9' {
		return false, 0
	}
	if group == "00" || serial == "0000" {
		return false, 0
	}
	return true, 0.85
}

// validateABA implements the ABA routing number weighted checksum
// (weights 3,7,1 repeating, mod 10 == 0).
func validateABA(match string) (bool, float64) {
	digits := digitsOnly(match)
	if len(digits) != 9 {
		return false, 0
	}
	weights := [9]int{3, 7, 1, 3, 7, 1, 3, 7, 1}
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	if sum%10 != 0 {
		return false, 0
	}
	return true, 0.75
}

// validateIBAN implements the ISO 7064 mod-97-10 checksum: move the
// first four characters to the end, map letters to digits (A=10..Z=35),
// and check the resulting number mod 97 == 1.
func validateIBAN(match string) (bool, float64) {
	s := strings.ToUpper(strings.ReplaceAll(match, " ", ""))
	if len(s) < 15 || len(s) > 34 {
		return false, 0
	}
	rearranged := s[4:] + s[:4]
	var numeric strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			numeric.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			numeric.WriteString(strconv.Itoa(int(r-'A') + 10))
		default:
			return false, 0
		}
	}
	remainder := 0
	digits := numeric.String()
	for i := 0; i < len(digits); i++ {
		remainder = (remainder*10 + int(digits[i]-'0')) % 97
	}
	if remainder != 1 {
		return false, 0
	}
	return true, 0.9
}

// vinTransliteration maps VIN letters to check-digit values per the
// NHTSA/ISO 3779 scheme; I, O, Q are excluded from valid VINs.
var vinTransliteration = map[byte]int{
	'A': 1, 'B': 2, 'C': 3, 'D': 4, 'E': 5, 'F': 6, 'G': 7, 'H': 8,
	'J': 1, 'K': 2, 'L': 3, 'M': 4, 'N': 5, 'P': 7, 'R': 9,
	'S': 2, 'T': 3, 'U': 4, 'V': 5, 'W': 6, 'X': 7, 'Y': 8, 'Z': 9,
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4, '5': 5, '6': 6, '7': 7, '8': 8, '9': 9,
}

var vinWeights = [17]int{8, 7, 6, 5, 4, 3, 2, 10, 0, 9, 8, 7, 6, 5, 4, 3, 2}

// validateVIN implements the VIN check digit at position 9 (index 8).
func validateVIN(match string) (bool, float64) {
	if len(match) != 17 {
		return false, 0
	}
	s := strings.ToUpper(match)
	sum := 0
	for i := 0; i < 17; i++ {
		v, ok := vinTransliteration[s[i]]
		if !ok {
			return false, 0
		}
		sum += v * vinWeights[i]
	}
	remainder := sum % 11
	check := s[8]
	want := byte('0' + remainder)
	if remainder == 10 {
		want = 'X'
	}
	if check != want {
		return false, 0
	}
	return true, 0.85
}

// validateNPI implements the NPI Luhn variant: prefix digits "80840"
// before applying the standard Luhn check over the 10-digit identifier
// (CMS NPI check-digit algorithm).
func validateNPI(match string) (bool, float64) {
	digits := digitsOnly(match)
	if len(digits) != 10 {
		return false, 0
	}
	ok, _ := validateLuhn("80840" + digits)
	if !ok {
		return false, 0
	}
	return true, 0.8
}
