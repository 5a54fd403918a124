// Package filter provides implementations for filter modules.
// Filter modules take a table and return the subset of rows that pass.
// They never mutate their input; results share the input's header list.
package filter

import (
	"context"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Module represents a filter module that narrows a table.
type Module interface {
	// Process returns the rows of table that pass the module.
	Process(ctx context.Context, table *tabular.Table) (*tabular.Table, error)
}

// Chain applies modules in order; the output of one is the input of the next.
type Chain []Module

// Process runs every module in the chain, stopping at the first error.
func (c Chain) Process(ctx context.Context, table *tabular.Table) (*tabular.Table, error) {
	current := table
	for _, m := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := m.Process(ctx, current)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

var _ Module = Chain(nil)
