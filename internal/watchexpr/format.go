package watchexpr

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders v for display, honoring a trailing print-format modifier
// ("raw", "hex", "bin") or, with mod == "", the default pretty-printing
// rules: auto-unwrap single-field wrapper structs, label a struct with its
// vtable hint's most-specific type name when present, and heuristically
// format character arrays as strings. Base-class fields are not inlined,
// and a char pointer prints as its address.
func Format(v Value, mod string) string {
	switch mod {
	case "hex":
		return formatHex(v)
	case "bin":
		return formatBin(v)
	case "raw":
		return formatRaw(v)
	default:
		return formatPretty(v)
	}
}

func formatHex(v Value) string {
	switch v.Kind {
	case KindInt:
		if v.Unsigned {
			return fmt.Sprintf("0x%x", uint64(v.I))
		}
		return fmt.Sprintf("0x%x", v.I)
	case KindPointer:
		return fmt.Sprintf("0x%x", v.PtrAddr)
	default:
		return formatPretty(v)
	}
}

// formatBin renders an integer in binary, grouped into bytes with
// underscores, matching FormatBinary generalized to an arbitrary-width
// integer rather than a fixed 32 bits.
func formatBin(v Value) string {
	if v.Kind != KindInt {
		return formatPretty(v)
	}
	s := strconv.FormatUint(uint64(v.I), 2)
	for len(s)%8 != 0 {
		s = "0" + s
	}
	var groups []string
	for i := 0; i < len(s); i += 8 {
		groups = append(groups, s[i:i+8])
	}
	return strings.Join(groups, "_")
}

// formatRaw renders v with no pretty-printing heuristics applied: structs
// print every field in declaration order and arrays never collapse into a
// string, the "raw" print-format modifier's contract.
func formatRaw(v Value) string {
	switch v.Kind {
	case KindStruct:
		var sb strings.Builder
		sb.WriteString("{")
		for i, name := range v.FieldOrder {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(formatRaw(v.Fields[name]))
		}
		sb.WriteString("}")
		return sb.String()
	case KindArray:
		var sb strings.Builder
		sb.WriteString("[")
		for i, el := range v.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(formatRaw(el))
		}
		sb.WriteString("]")
		return sb.String()
	default:
		return scalarString(v)
	}
}

func formatPretty(v Value) string {
	switch v.Kind {
	case KindStruct:
		// Auto-unwrap a single-field wrapper: print the field's value
		// directly rather than "{field: v}".
		if len(v.FieldOrder) == 1 {
			return formatPretty(v.Fields[v.FieldOrder[0]])
		}
		typeName := v.TypeName
		if v.VTableHint != "" {
			typeName = v.VTableHint
		}
		var sb strings.Builder
		if typeName != "" {
			sb.WriteString(typeName)
		}
		sb.WriteString("{")
		for i, name := range v.FieldOrder {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(formatPretty(v.Fields[name]))
		}
		sb.WriteString("}")
		return sb.String()
	case KindArray:
		if s, ok := charArrayString(v); ok {
			return strconv.Quote(s)
		}
		var sb strings.Builder
		sb.WriteString("[")
		for i, el := range v.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(formatPretty(el))
		}
		sb.WriteString("]")
		return sb.String()
	case KindPointer:
		if v.PtrCharLike {
			// A char* with unknown length would be read until NUL by the
			// Context that materializes it into KindArray elements; by the
			// time it reaches Format, a bare char* with no elements is just
			// an address.
			return fmt.Sprintf("0x%x", v.PtrAddr)
		}
		return fmt.Sprintf("0x%x", v.PtrAddr)
	default:
		return scalarString(v)
	}
}

// charArrayString recognizes a byte array marked character-like and turns
// it into a Go string, the "format strings heuristically when an element
// type is a 1-byte character" rule. Truncates at the first NUL when the
// length wasn't known in advance (a bounded read, since KnownLen == false
// arrays are already capped by whatever produced them).
func charArrayString(v Value) (string, bool) {
	if !v.ElemCharLike {
		return "", false
	}
	var sb strings.Builder
	for _, el := range v.Elems {
		b := byte(el.AsInt64())
		if b == 0 && !v.KnownLen {
			break
		}
		sb.WriteByte(b)
	}
	return sb.String(), true
}

func scalarString(v Value) string {
	switch v.Kind {
	case KindInt:
		if v.Unsigned {
			return strconv.FormatUint(uint64(v.I), 10)
		}
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return strconv.Quote(v.Str)
	case KindPointer:
		return fmt.Sprintf("0x%x", v.PtrAddr)
	case KindType:
		return v.Str
	case KindRange:
		return fmt.Sprintf("%d..%d", v.RangeLo, v.RangeHi)
	default:
		return "<unknown>"
	}
}
