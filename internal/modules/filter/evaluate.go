package filter

import (
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Validate checks every condition against headers, in order, and returns
// the first violation as a *FilterError.
func Validate(headers []string, conditions []tabular.FilterCondition) error {
	known := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		known[h] = struct{}{}
	}
	for i, cond := range conditions {
		if _, ok := known[cond.Header]; !ok {
			return newUnknownHeaderError(cond.Header, i)
		}
		if !cond.Operator.Valid() {
			return newUnknownOperatorError(cond.Header, i, cond.Operator)
		}
	}
	return nil
}

// Evaluate returns the rows of table for which every condition holds.
//
// All conditions are validated before any row is evaluated. With no
// conditions the input table itself is returned. Otherwise the result is a
// new table sharing table.Headers, with matching rows in their original
// order; an empty result is not an error.
func Evaluate(table *tabular.Table, conditions []tabular.FilterCondition) (*tabular.Table, error) {
	if err := Validate(table.Headers, conditions); err != nil {
		return nil, err
	}
	if len(conditions) == 0 {
		return table, nil
	}

	preds := make([]Predicate, len(conditions))
	for i, cond := range conditions {
		preds[i] = Compile(cond)
	}
	pass := And(preds...)

	rows := make([]tabular.Row, 0, len(table.Rows))
	for _, row := range table.Rows {
		if pass(row) {
			rows = append(rows, row)
		}
	}
	return table.WithRows(rows), nil
}
