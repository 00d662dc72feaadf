package value

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for v. Canonical
// bytes are the only serialization used for digests, journal payloads,
// and golden traces.
//
// Properties:
//  1. Map keys sorted by UTF-16 code units (CompareKeys)
//  2. Strings NFC-normalized at the serialization boundary
//  3. No HTML escaping (< > & stay literal)
//  4. Null serializes as null; floats cannot occur in the sealed model
func MarshalCanonical(v Value) ([]byte, error) {
	return appendCanonical(make([]byte, 0, 64), v)
}

// MustMarshalCanonical is MarshalCanonical panicking on error. Use
// only where v is known to contain no absent slots.
func MustMarshalCanonical(v Value) []byte {
	b, err := MarshalCanonical(v)
	if err != nil {
		panic(err)
	}
	return b
}

func appendCanonical(b []byte, v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("absent value cannot be serialized")
	case Null:
		return append(b, "null"...), nil
	case Bool:
		if val {
			return append(b, "true"...), nil
		}
		return append(b, "false"...), nil
	case Int:
		return strconv.AppendInt(b, int64(val), 10), nil
	case String:
		return appendCanonicalString(b, string(val)), nil
	case List:
		b = append(b, '[')
		for i, elem := range val {
			if i > 0 {
				b = append(b, ',')
			}
			var err error
			b, err = appendCanonical(b, elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		return append(b, ']'), nil
	case Map:
		b = append(b, '{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				b = append(b, ',')
			}
			b = appendCanonicalString(b, k)
			b = append(b, ':')
			var err error
			b, err = appendCanonical(b, val[k])
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
		}
		return append(b, '}'), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// appendCanonicalString writes the RFC 8785 serialization of s.
// Only quote, backslash, and C0 controls are escaped; the shorthand
// escapes are used where the RFC names them, \u00xx lowercase hex
// otherwise. Everything else, including U+2028 and U+2029, is emitted
// literally. encoding/json escapes HTML characters and the line
// separators, so it is deliberately not used here.
func appendCanonicalString(b []byte, s string) []byte {
	s = norm.NFC.String(s)

	b = append(b, '"')
	for _, r := range s {
		switch r {
		case '"':
			b = append(b, '\\', '"')
		case '\\':
			b = append(b, '\\', '\\')
		case '\b':
			b = append(b, '\\', 'b')
		case '\f':
			b = append(b, '\\', 'f')
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		default:
			if r < 0x20 {
				b = append(b, fmt.Sprintf(`\u%04x`, r)...)
			} else {
				b = utf8.AppendRune(b, r)
			}
		}
	}
	return append(b, '"')
}
