package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for fingerprinting.
// This is the ONLY serialization used for content-fingerprint computation;
// never use it for display or storage of payloads.
//
// Key properties:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. U+2028 and U+2029 are emitted literally, not escaped
//
// Unlike an authored-document canonicalizer, this accepts the full JSON
// value domain: webhook payloads routinely contain nulls and floats, so
// both are representable. Numbers decoded as json.Number keep their
// source text, which is deterministic for identical deliveries.
func MarshalCanonical(v any) ([]byte, error) {
	return marshalCanonical(v)
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case string:
		return marshalCanonicalString(val)
	case json.Number:
		return []byte(val.String()), nil
	case int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(nil, val, 10), nil
	case float64:
		if val == float64(int64(val)) {
			return strconv.AppendInt(nil, int64(val), 10), nil
		}
		return strconv.AppendFloat(nil, val, 'g', -1, 64), nil
	case []any:
		return marshalCanonicalArray(val)
	case map[string]any:
		return marshalCanonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	keys := sortedKeysRFC8785(obj)
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalCanonicalString produces a canonical JSON string with NFC
// normalization, no HTML escaping, and literal U+2028/U+2029.
//
// Escaped by hand rather than through json.Encoder: the encoder escapes
// U+2028/U+2029 and unescaping them afterwards is ambiguous next to a
// literal backslash. RFC 8785 only requires escaping the quote, the
// backslash, and control characters below U+0020.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range normalized {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return buf.Bytes(), nil
}

// sortedKeysRFC8785 returns keys in RFC 8785 canonical order.
// Must compare UTF-16 code units: Go's native string ordering is UTF-8
// and produces a different order for non-BMP characters.
func sortedKeysRFC8785(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
