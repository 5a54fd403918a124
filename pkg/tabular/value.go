// Package tabular provides the public data model shared by the parser, the
// filter evaluator and the transport layer: typed cell values, rows, tables
// and filter conditions.
package tabular

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	// KindString marks a textual cell.
	KindString Kind = iota
	// KindNumber marks a numeric cell.
	KindNumber
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	default:
		return "string"
	}
}

// Value is a single cell: either a string or a float64 number.
// The zero Value is the empty string.
type Value struct {
	kind Kind
	str  string
	num  float64
}

// String builds a textual Value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number builds a numeric Value.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNumber reports whether v is numeric.
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// Str returns the string payload ("" for numbers).
func (v Value) Str() string { return v.str }

// Num returns the numeric payload (0 for strings).
func (v Value) Num() float64 { return v.num }

// String returns the canonical textual form of v. Numbers use the shortest
// decimal representation that round-trips, without exponent notation and
// without a trailing ".0" for integers.
func (v Value) String() string {
	if v.kind == KindNumber {
		return FormatNumber(v.num)
	}
	return v.str
}

// Equal reports strict equality: kinds must match, then payloads.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	if v.kind == KindNumber {
		return v.num == other.num
	}
	return v.str == other.str
}

// AsNumber coerces v to a float64. Strings are coerced with the same numeric
// grammar the parser uses; ok is false if coercion is not possible.
func (v Value) AsNumber() (float64, bool) {
	if v.kind == KindNumber {
		return v.num, true
	}
	return ParseNumber(strings.TrimSpace(v.str))
}

// MarshalJSON encodes numbers as JSON numbers and strings as JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber {
		if math.IsInf(v.num, 0) || math.IsNaN(v.num) {
			return nil, fmt.Errorf("tabular: cannot encode non-finite number %v", v.num)
		}
		return []byte(FormatNumber(v.num)), nil
	}
	return json.Marshal(v.str)
}

// UnmarshalJSON accepts JSON strings and numbers only.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return fmt.Errorf("tabular: empty value")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return fmt.Errorf("tabular: invalid number %q: %w", trimmed, err)
		}
		*v = Number(f)
		return nil
	default:
		return fmt.Errorf("tabular: unsupported value %s: only strings and numbers are allowed", trimmed)
	}
}

// FromInterface converts a decoded JSON scalar (string, float64, json.Number
// or any Go integer) to a Value.
func FromInterface(raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("tabular: invalid number %q: %w", x.String(), err)
		}
		return Number(f), nil
	default:
		return Value{}, fmt.Errorf("tabular: unsupported value type %T", raw)
	}
}

// Interface returns the Go scalar carried by v (string or float64).
func (v Value) Interface() interface{} {
	if v.kind == KindNumber {
		return v.num
	}
	return v.str
}

// numberPattern is the accepted numeric grammar: optional sign, digits with
// optional fraction (or a bare fraction), optional exponent. Hex, Inf and
// NaN are deliberately not numbers.
var numberPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseNumber parses s as a number under the cell grammar. s must already be
// trimmed; the empty string is not a number.
func ParseNumber(s string) (float64, bool) {
	if s == "" || !numberPattern.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out of range values are kept as text.
		return 0, false
	}
	return f, true
}

// FormatNumber renders f in canonical decimal form.
func FormatNumber(f float64) string {
	if f == 0 {
		// Normalizes -0.
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
