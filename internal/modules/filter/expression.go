package filter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/csvquerygenie/genie/internal/errhandling"
	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// rowVariable exposes the whole row to expressions, for headers that are not
// valid identifiers: row["Unit Price"] > 10.
const rowVariable = "row"

// ExpressionConfig represents the configuration for an expression filter module.
type ExpressionConfig struct {
	// Expression is a boolean expr-lang expression over the row's headers
	Expression string `json:"expression"`
	// OnError specifies error handling mode: "fail" (default), "skip", "log"
	OnError string `json:"onError,omitempty"`
}

// ExpressionModule keeps rows for which a compiled expression is truthy.
//
// Numbers are exposed as float64 and strings as string; every header is
// available both as a top-level variable and through row["Header"].
type ExpressionModule struct {
	expression string
	onError    errhandling.OnErrorStrategy
	program    *vm.Program
}

// NewExpressionFromConfig compiles config.Expression. An empty expression
// yields a pass-through module.
func NewExpressionFromConfig(config ExpressionConfig) (*ExpressionModule, error) {
	onError := errhandling.ParseOnErrorStrategy(config.OnError)
	if config.OnError != "" && !strings.EqualFold(strings.TrimSpace(config.OnError), string(onError)) {
		logger.Warn("invalid onError value for expression module; defaulting to fail",
			slog.String("on_error", config.OnError),
		)
	}

	m := &ExpressionModule{
		expression: strings.TrimSpace(config.Expression),
		onError:    onError,
	}
	if m.expression == "" {
		return m, nil
	}

	program, err := expr.Compile(m.expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, &FilterError{
			Code:           ErrCodeInvalidExpression,
			ConditionIndex: -1,
			RecordIndex:    -1,
			Expression:     m.expression,
			Message:        fmt.Sprintf("%v: %v", ErrInvalidExpression, err),
		}
	}
	m.program = program

	logger.Debug("expression module initialized",
		slog.String("expression", m.expression),
		slog.String("on_error", string(onError)),
	)
	return m, nil
}

// Process keeps the rows for which the expression evaluates truthy.
func (m *ExpressionModule) Process(ctx context.Context, table *tabular.Table) (*tabular.Table, error) {
	if m.program == nil {
		return table, nil
	}

	rows := make([]tabular.Row, 0, len(table.Rows))
	for recordIdx, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		output, err := expr.Run(m.program, rowEnv(table.Headers, row))
		if err != nil {
			evalErr := &FilterError{
				Code:           ErrCodeEvaluationFailed,
				ConditionIndex: -1,
				RecordIndex:    recordIdx,
				Expression:     m.expression,
				Message:        fmt.Sprintf("expression evaluation failed at record %d: %v", recordIdx, err),
			}
			switch m.onError {
			case errhandling.OnErrorSkip:
				logger.Warn("skipping record due to expression evaluation error",
					slog.Int("record_index", recordIdx),
					slog.String("expression", m.expression),
					slog.String("error", err.Error()),
				)
				continue
			case errhandling.OnErrorLog:
				logger.Error("expression evaluation error (continuing)",
					slog.Int("record_index", recordIdx),
					slog.String("expression", m.expression),
					slog.String("error", err.Error()),
				)
				continue
			default:
				return nil, evalErr
			}
		}

		if toBool(output) {
			rows = append(rows, row)
		}
	}

	logger.Debug("expression applied",
		slog.String("module_type", "expression"),
		slog.Int("input_records", table.Len()),
		slog.Int("output_records", len(rows)),
	)
	return table.WithRows(rows), nil
}

func rowEnv(headers []string, row tabular.Row) map[string]interface{} {
	values := make(map[string]interface{}, len(headers))
	for _, h := range headers {
		values[h] = row[h].Interface()
	}
	env := make(map[string]interface{}, len(headers)+1)
	env[rowVariable] = values
	for h, v := range values {
		env[h] = v
	}
	return env
}

// toBool converts an expression result to a boolean.
func toBool(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

var _ Module = (*ExpressionModule)(nil)
