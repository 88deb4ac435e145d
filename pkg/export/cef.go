package export

import (
	"strconv"
	"strings"
)

// cefHeaderEscaper escapes the characters CEF reserves in the seven
// pipe-delimited header fields; pipe, equals, and backslash escaping
// applies to header fields as well as extension values.
var cefHeaderEscaper = strings.NewReplacer(
	`\`, `\\`,
	`|`, `\|`,
)

// cefExtEscaper escapes the characters reserved inside extension
// values: backslash, equals, and pipe, so the seven-field header split
// never mistakes an extension pipe for a delimiter.
var cefExtEscaper = strings.NewReplacer(
	`\`, `\\`,
	`=`, `\=`,
	`|`, `\|`,
)

func escapeCEFHeader(v string) string { return cefHeaderEscaper.Replace(v) }
func escapeCEFExt(v string) string    { return cefExtEscaper.Replace(v) }

func unescapeCEF(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			switch v[i+1] {
			case '\\', '|', '=':
				b.WriteByte(v[i+1])
				i++
				continue
			}
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

// EncodeCEF builds one CEF:0 event line
// (CEF:0|Vendor|Product|Version|id|name|severity|k=v k=v ...).
// fieldOrder fixes extension key order for a deterministic round-trip.
func EncodeCEF(deviceVendor, deviceProduct, deviceVersion, signatureID, name string, severity int, ext map[string]string, fieldOrder []string) string {
	var b strings.Builder
	b.WriteString("CEF:0|")
	b.WriteString(escapeCEFHeader(deviceVendor))
	b.WriteString("|")
	b.WriteString(escapeCEFHeader(deviceProduct))
	b.WriteString("|")
	b.WriteString(escapeCEFHeader(deviceVersion))
	b.WriteString("|")
	b.WriteString(escapeCEFHeader(signatureID))
	b.WriteString("|")
	b.WriteString(escapeCEFHeader(name))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(severity))
	b.WriteString("|")

	first := true
	for _, k := range fieldOrder {
		v, ok := ext[k]
		if !ok {
			continue
		}
		if !first {
			b.WriteString(" ")
		}
		first = false
		b.WriteString(escapeCEFExt(k))
		b.WriteString("=")
		b.WriteString(escapeCEFExt(v))
	}
	return b.String()
}

// CEFEvent is the parsed form DecodeCEF returns.
type CEFEvent struct {
	DeviceVendor  string
	DeviceProduct string
	DeviceVersion string
	SignatureID   string
	Name          string
	Severity      int
	Extension     map[string]string
}

// DecodeCEF parses a CEF:0 line back into its header fields and
// extension, inverting EncodeCEF.
func DecodeCEF(line string) (CEFEvent, error) {
	if !strings.HasPrefix(line, "CEF:0|") {
		return CEFEvent{}, errInvalidCEF
	}
	fields := splitUnescapedPipe(line[len("CEF:0|"):])
	if len(fields) != 7 {
		return CEFEvent{}, errInvalidCEF
	}
	sev, _ := strconv.Atoi(fields[5])
	evt := CEFEvent{
		DeviceVendor:  unescapeCEF(fields[0]),
		DeviceProduct: unescapeCEF(fields[1]),
		DeviceVersion: unescapeCEF(fields[2]),
		SignatureID:   unescapeCEF(fields[3]),
		Name:          unescapeCEF(fields[4]),
		Severity:      sev,
		Extension:     map[string]string{},
	}
	ext := strings.TrimSpace(fields[6])
	if ext == "" {
		return evt, nil
	}
	for _, pair := range splitUnescapedSpace(ext) {
		kv := splitUnescapedOnce(pair, '=')
		if len(kv) != 2 {
			continue
		}
		evt.Extension[unescapeCEF(kv[0])] = unescapeCEF(kv[1])
	}
	return evt, nil
}

func splitUnescapedPipe(s string) []string {
	return splitUnescaped(s, '|')
}

func splitUnescapedSpace(s string) []string {
	return splitUnescaped(s, ' ')
}

type cefError string

func (e cefError) Error() string { return string(e) }

const errInvalidCEF = cefError("invalid CEF line: expected 7 pipe-delimited header fields")
