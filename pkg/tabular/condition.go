package tabular

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is a filter comparison operator.
type Operator int

// Supported operators. The zero value is invalid.
const (
	OpInvalid Operator = iota
	OpEquals
	OpNotEquals
	OpGreaterThan
	OpLessThan
	OpGreaterOrEqual
	OpLessOrEqual
	OpContains
	OpNotContains
)

var operatorNames = map[Operator]string{
	OpEquals:         "equals",
	OpNotEquals:      "not-equals",
	OpGreaterThan:    "greater-than",
	OpLessThan:       "less-than",
	OpGreaterOrEqual: "greater-or-equal",
	OpLessOrEqual:    "less-or-equal",
	OpContains:       "contains",
	OpNotContains:    "not-contains",
}

// operatorAliases maps every accepted spelling to its operator, including the
// symbolic forms used by earlier clients and language models.
var operatorAliases = map[string]Operator{
	"equals":           OpEquals,
	"eq":               OpEquals,
	"===":              OpEquals,
	"==":               OpEquals,
	"=":                OpEquals,
	"not-equals":       OpNotEquals,
	"ne":               OpNotEquals,
	"!==":              OpNotEquals,
	"!=":               OpNotEquals,
	"greater-than":     OpGreaterThan,
	"gt":               OpGreaterThan,
	">":                OpGreaterThan,
	"less-than":        OpLessThan,
	"lt":               OpLessThan,
	"<":                OpLessThan,
	"greater-or-equal": OpGreaterOrEqual,
	"ge":               OpGreaterOrEqual,
	">=":               OpGreaterOrEqual,
	"less-or-equal":    OpLessOrEqual,
	"le":               OpLessOrEqual,
	"<=":               OpLessOrEqual,
	"contains":         OpContains,
	"not-contains":     OpNotContains,
	"!contains":        OpNotContains,
}

// Operators returns all valid operators in declaration order.
func Operators() []Operator {
	return []Operator{
		OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpGreaterOrEqual, OpLessOrEqual, OpContains, OpNotContains,
	}
}

// ParseOperator resolves a canonical name or alias. Matching ignores case and
// surrounding whitespace.
func ParseOperator(s string) (Operator, error) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return OpInvalid, fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}

// String returns the canonical name.
func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// Valid reports whether o is one of the supported operators.
func (o Operator) Valid() bool {
	_, ok := operatorNames[o]
	return ok
}

// IsComparison reports whether o is one of the four numeric comparisons.
func (o Operator) IsComparison() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		return true
	}
	return false
}

// MarshalJSON encodes the canonical name.
func (o Operator) MarshalJSON() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("tabular: cannot encode invalid operator %d", int(o))
	}
	return json.Marshal(o.String())
}

// UnmarshalJSON accepts any spelling ParseOperator accepts.
func (o *Operator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tabular: operator must be a string: %w", err)
	}
	op, err := ParseOperator(s)
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// FilterCondition is one structured predicate over a single column.
type FilterCondition struct {
	// Header names the column the condition applies to
	Header string `json:"header"`

	// Operator is the comparison to perform
	Operator Operator `json:"operator"`

	// Value is the expected value the cell is compared against
	Value Value `json:"value"`
}

// String renders the condition as "Header operator value".
func (c FilterCondition) String() string {
	return fmt.Sprintf("%s %s %s", c.Header, c.Operator, c.Value.String())
}

// ParseCondition parses the compact "Header op value" form used on the
// command line. The header may be quoted with double quotes when it contains
// spaces. A value that parses as a number becomes a Number; surrounding
// double quotes force a String.
func ParseCondition(s string) (FilterCondition, error) {
	rest := strings.TrimSpace(s)
	if rest == "" {
		return FilterCondition{}, fmt.Errorf("empty condition")
	}

	var header string
	if strings.HasPrefix(rest, `"`) {
		end := strings.Index(rest[1:], `"`)
		if end < 0 {
			return FilterCondition{}, fmt.Errorf("unterminated quoted header in %q", s)
		}
		header = rest[1 : end+1]
		rest = strings.TrimSpace(rest[end+2:])
	} else {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return FilterCondition{}, fmt.Errorf("condition %q must have the form 'header operator value'", s)
		}
		header = rest[:idx]
		rest = strings.TrimSpace(rest[idx:])
	}

	idx := strings.IndexAny(rest, " \t")
	opText, valueText := rest, ""
	if idx >= 0 {
		opText = rest[:idx]
		valueText = strings.TrimSpace(rest[idx:])
	}
	op, err := ParseOperator(opText)
	if err != nil {
		return FilterCondition{}, err
	}

	var value Value
	if len(valueText) >= 2 && strings.HasPrefix(valueText, `"`) && strings.HasSuffix(valueText, `"`) {
		value = String(valueText[1 : len(valueText)-1])
	} else if f, ok := ParseNumber(valueText); ok {
		value = Number(f)
	} else {
		value = String(valueText)
	}

	return FilterCondition{Header: header, Operator: op, Value: value}, nil
}
