package filter

import (
	"strings"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Predicate reports whether a row passes.
type Predicate func(row tabular.Row) bool

// And combines predicates with logical conjunction, short-circuiting on the
// first false. And() with no predicates accepts every row.
func And(preds ...Predicate) Predicate {
	return func(row tabular.Row) bool {
		for _, p := range preds {
			if !p(row) {
				return false
			}
		}
		return true
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(row tabular.Row) bool { return !p(row) }
}

// Compile turns a condition into a predicate. It returns nil for operators
// outside the supported set; header existence is checked by Validate.
func Compile(cond tabular.FilterCondition) Predicate {
	header := cond.Header
	expected := cond.Value

	switch cond.Operator {
	case tabular.OpEquals:
		return func(row tabular.Row) bool { return row[header].Equal(expected) }

	case tabular.OpNotEquals:
		return func(row tabular.Row) bool { return !row[header].Equal(expected) }

	case tabular.OpGreaterThan:
		return compare(header, expected, func(a, b float64) bool { return a > b })

	case tabular.OpLessThan:
		return compare(header, expected, func(a, b float64) bool { return a < b })

	case tabular.OpGreaterOrEqual:
		return compare(header, expected, func(a, b float64) bool { return a >= b })

	case tabular.OpLessOrEqual:
		return compare(header, expected, func(a, b float64) bool { return a <= b })

	case tabular.OpContains:
		return contains(header, expected)

	case tabular.OpNotContains:
		return Not(contains(header, expected))
	}
	return nil
}

// compare builds a numeric comparison. Both sides are coerced to numbers;
// when either side cannot be coerced the predicate is false.
func compare(header string, expected tabular.Value, cmp func(actual, expected float64) bool) Predicate {
	want, ok := expected.AsNumber()
	if !ok {
		return func(tabular.Row) bool { return false }
	}
	return func(row tabular.Row) bool {
		got, ok := row[header].AsNumber()
		if !ok {
			return false
		}
		return cmp(got, want)
	}
}

// contains builds a case-insensitive substring test over canonical string forms.
func contains(header string, expected tabular.Value) Predicate {
	needle := strings.ToLower(expected.String())
	return func(row tabular.Row) bool {
		return strings.Contains(strings.ToLower(row[header].String()), needle)
	}
}
