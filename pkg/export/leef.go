package export

import "strings"

// leefEscaper escapes the three characters LEEF reserves in key-value
// pairs: backslash, tab, and equals.
var leefEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\t", `\t`,
	`=`, `\=`,
)

func escapeLEEFValue(v string) string {
	return leefEscaper.Replace(v)
}

// unescapeLEEFValue inverts escapeLEEFValue, walking the string once so
// a literal `\\t` (escaped backslash followed by literal t) isn't
// mistaken for an escaped tab.
func unescapeLEEFValue(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			switch v[i+1] {
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case '=':
				b.WriteByte('=')
				i++
				continue
			}
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

// EncodeLEEF builds one LEEF 2.0 event line
// (LEEF:2.0|OpenLabels|Scanner|2.0|{eventId}|\t{k}={v}\t...).
// fieldOrder fixes the key order so encode/decode round-trips are
// byte-identical regardless of map iteration order.
func EncodeLEEF(eventID string, fields map[string]string, fieldOrder []string) string {
	var b strings.Builder
	b.WriteString("LEEF:2.0|OpenLabels|Scanner|2.0|")
	b.WriteString(eventID)
	b.WriteString("|")
	for _, k := range fieldOrder {
		v, ok := fields[k]
		if !ok {
			continue
		}
		b.WriteString("\t")
		b.WriteString(escapeLEEFValue(k))
		b.WriteString("=")
		b.WriteString(escapeLEEFValue(v))
	}
	return b.String()
}

// DecodeLEEF parses a LEEF 2.0 line back into its header fields and
// key-value extension, inverting EncodeLEEF.
func DecodeLEEF(line string) (eventID string, fields map[string]string, err error) {
	const prefix = "LEEF:2.0|OpenLabels|Scanner|2.0|"
	if !strings.HasPrefix(line, prefix) {
		return "", nil, errInvalidLEEF
	}
	rest := line[len(prefix):]
	pipeIdx := strings.IndexByte(rest, '|')
	if pipeIdx < 0 {
		return "", nil, errInvalidLEEF
	}
	eventID = rest[:pipeIdx]
	ext := rest[pipeIdx+1:]
	ext = strings.TrimPrefix(ext, "\t")

	fields = map[string]string{}
	if ext == "" {
		return eventID, fields, nil
	}
	for _, pair := range splitUnescaped(ext, '\t') {
		kv := splitUnescapedOnce(pair, '=')
		if len(kv) != 2 {
			continue
		}
		fields[unescapeLEEFValue(kv[0])] = unescapeLEEFValue(kv[1])
	}
	return eventID, fields, nil
}

// splitUnescaped splits on sep, treating a backslash-escaped sep as
// literal rather than a delimiter.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			cur.WriteByte(s[i])
			cur.WriteByte(s[i+1])
			i++
			continue
		}
		if s[i] == sep {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(s[i])
	}
	parts = append(parts, cur.String())
	return parts
}

// splitUnescapedOnce splits on the first unescaped sep only, for k=v
// pairs whose value may itself contain an escaped "=".
func splitUnescapedOnce(s string, sep byte) []string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			continue
		}
		if s[i] == sep {
			return []string{s[:i], s[i+1:]}
		}
	}
	return []string{s}
}

type leefError string

func (e leefError) Error() string { return string(e) }

const errInvalidLEEF = leefError("invalid LEEF line: missing OpenLabels/Scanner header")
