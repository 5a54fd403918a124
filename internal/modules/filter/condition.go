package filter

import (
	"context"
	"log/slog"

	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// ConditionModule filters a table by a fixed list of structured conditions.
type ConditionModule struct {
	conditions []tabular.FilterCondition
}

// NewConditionModule creates a module for conditions. Validation against the
// table's headers happens on every Process call, since headers are only known
// then.
func NewConditionModule(conditions []tabular.FilterCondition) *ConditionModule {
	copied := make([]tabular.FilterCondition, len(conditions))
	copy(copied, conditions)
	return &ConditionModule{conditions: copied}
}

// Conditions returns the module's conditions.
func (m *ConditionModule) Conditions() []tabular.FilterCondition {
	return m.conditions
}

// Process evaluates the conditions against table.
func (m *ConditionModule) Process(ctx context.Context, table *tabular.Table) (*tabular.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := Evaluate(table, m.conditions)
	if err != nil {
		return nil, err
	}

	logger.Debug("conditions applied",
		slog.String("module_type", "condition"),
		slog.Int("conditions", len(m.conditions)),
		slog.Int("input_records", table.Len()),
		slog.Int("output_records", out.Len()),
	)
	return out, nil
}

var _ Module = (*ConditionModule)(nil)
