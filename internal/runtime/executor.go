// Package runtime provides the query execution engine.
// It orchestrates the stages of one query: input, parse, generate, filter
// and output.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/csvquerygenie/genie/internal/errhandling"
	"github.com/csvquerygenie/genie/internal/generator"
	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/internal/modules/filter"
	"github.com/csvquerygenie/genie/internal/modules/input"
	"github.com/csvquerygenie/genie/internal/modules/output"
	"github.com/csvquerygenie/genie/internal/parser"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Stage names
const (
	StageInput    = "input"
	StageParse    = "parse"
	StageGenerate = "generate"
	StageFilter   = "filter"
	StageOutput   = "output"
)

// Error codes for execution errors
const (
	ErrCodeInputFailed    = "INPUT_FAILED"
	ErrCodeParseFailed    = "PARSE_FAILED"
	ErrCodeGenerateFailed = "GENERATION_FAILED"
	ErrCodeFilterFailed   = "FILTER_FAILED"
	ErrCodeOutputFailed   = "OUTPUT_FAILED"
)

// Execution status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Common errors
var (
	// ErrNilGenerator is returned when a query needs generation but no
	// generator is configured.
	ErrNilGenerator = errors.New("no filter generator configured")
	// ErrNilInputModule is returned when ExecuteInput gets a nil module.
	ErrNilInputModule = errors.New("input module is nil")
	// ErrNilTable is returned when a table-level execution gets a nil table.
	ErrNilTable = errors.New("table is nil")
)

// Options configure an Executor.
type Options struct {
	// HeaderRow is the 1-based header line used by ExecuteText (0 means 1).
	HeaderRow int
	// Expression is an optional expr-lang filter applied after the conditions.
	Expression string
	// ExpressionOnError is the expression filter's onError mode.
	ExpressionOnError string
	// Outputs receive the final table, in order.
	Outputs []output.Module
	// Source labels the data in logs (file path, dataset id, "api").
	Source string
	// GeneratorName labels the generator in logs.
	GeneratorName string
}

// ExecutionError describes the failure recorded on a Result.
type ExecutionError struct {
	Code     string `json:"code"`
	Stage    string `json:"stage"`
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Result is the outcome of one execution.
//
// On a generation or filter failure Table is the unfiltered Original table
// and Fallback is set, so a caller always has rows to display.
type Result struct {
	ID          string
	Status      string
	Table       *tabular.Table
	Original    *tabular.Table
	Conditions  []tabular.FilterCondition
	Skipped     []parser.RowSkip
	Fallback    bool
	Error       *ExecutionError
	StartedAt   time.Time
	CompletedAt time.Time
	Durations   map[string]time.Duration
}

// Executor runs queries. It holds no per-query state and is safe for
// concurrent use.
//
// The Executor only interacts with modules through their public interfaces.
type Executor struct {
	gen        generator.Generator
	opts       Options
	expression *filter.ExpressionModule
}

// NewExecutor creates an executor. gen may be nil when every query carries
// explicit conditions. An invalid Options.Expression is reported here.
func NewExecutor(gen generator.Generator, opts Options) (*Executor, error) {
	e := &Executor{gen: gen, opts: opts}
	if strings.TrimSpace(opts.Expression) != "" {
		m, err := filter.NewExpressionFromConfig(filter.ExpressionConfig{
			Expression: opts.Expression,
			OnError:    opts.ExpressionOnError,
		})
		if err != nil {
			return nil, err
		}
		e.expression = m
	}
	return e, nil
}

// WithOutputs returns a copy of e writing to outputs instead of the
// configured ones.
func (e *Executor) WithOutputs(outputs ...output.Module) *Executor {
	cp := *e
	cp.opts.Outputs = outputs
	return &cp
}

// WithExpression returns a copy of e whose expression filter is expression.
// An empty expression keeps the configured one.
func (e *Executor) WithExpression(expression string) (*Executor, error) {
	if strings.TrimSpace(expression) == "" {
		return e, nil
	}
	m, err := filter.NewExpressionFromConfig(filter.ExpressionConfig{
		Expression: expression,
		OnError:    e.opts.ExpressionOnError,
	})
	if err != nil {
		return nil, err
	}
	cp := *e
	cp.opts.Expression = expression
	cp.expression = m
	return &cp, nil
}

// ExecuteInput fetches text from in, closes it, then runs ExecuteText.
func (e *Executor) ExecuteInput(ctx context.Context, in input.Module, query string) (*Result, error) {
	res, execCtx := e.begin()
	if in == nil {
		return e.fail(res, execCtx, StageInput, ErrCodeInputFailed, ErrNilInputModule)
	}

	var text string
	err := e.stage(ctx, res, execCtx, StageInput, func() (int, error) {
		var fetchErr error
		text, fetchErr = in.Fetch(ctx)
		return len(text), fetchErr
	})
	if closeErr := in.Close(); closeErr != nil {
		logger.WithExecution(execCtx).Warn("failed to close input module",
			slog.String("error", closeErr.Error()),
		)
	}
	if err != nil {
		return e.fail(res, execCtx, StageInput, ErrCodeInputFailed, fmt.Errorf("executing input module: %w", err))
	}
	return e.parseAndRun(ctx, res, execCtx, text, query)
}

// ExecuteText parses text and runs query against the table.
func (e *Executor) ExecuteText(ctx context.Context, text, query string) (*Result, error) {
	res, execCtx := e.begin()
	return e.parseAndRun(ctx, res, execCtx, text, query)
}

// ExecuteTable runs query against an already parsed table. A blank query
// skips generation and keeps every row.
func (e *Executor) ExecuteTable(ctx context.Context, table *tabular.Table, query string) (*Result, error) {
	res, execCtx := e.begin()
	return e.run(ctx, res, execCtx, table, query, nil)
}

// ExecuteConditions evaluates conditions against table without generation.
func (e *Executor) ExecuteConditions(ctx context.Context, table *tabular.Table, conditions []tabular.FilterCondition) (*Result, error) {
	res, execCtx := e.begin()
	if conditions == nil {
		conditions = []tabular.FilterCondition{}
	}
	return e.run(ctx, res, execCtx, table, "", conditions)
}

func (e *Executor) begin() (*Result, logger.ExecutionContext) {
	res := &Result{
		ID:         uuid.NewString(),
		Status:     StatusError,
		Conditions: []tabular.FilterCondition{},
		StartedAt:  time.Now(),
		Durations:  make(map[string]time.Duration),
	}
	execCtx := logger.ExecutionContext{
		QueryID:   res.ID,
		Source:    e.opts.Source,
		Generator: e.opts.GeneratorName,
	}
	logger.LogExecutionStart(execCtx)
	return res, execCtx
}

func (e *Executor) parseAndRun(ctx context.Context, res *Result, execCtx logger.ExecutionContext, text, query string) (*Result, error) {
	var parsed *parser.Result
	err := e.stage(ctx, res, execCtx, StageParse, func() (int, error) {
		var parseErr error
		parsed, parseErr = parser.ParseWithOptions(text, parser.Options{HeaderRow: e.opts.HeaderRow})
		if parseErr != nil {
			return 0, parseErr
		}
		return parsed.Table.Len(), nil
	})
	if err != nil {
		return e.fail(res, execCtx, StageParse, ErrCodeParseFailed, err)
	}
	res.Skipped = parsed.Skipped
	return e.run(ctx, res, execCtx, parsed.Table, query, nil)
}

// run is the shared tail of every execution: generate (unless conditions
// are given), filter, output.
func (e *Executor) run(ctx context.Context, res *Result, execCtx logger.ExecutionContext, table *tabular.Table, query string, conditions []tabular.FilterCondition) (*Result, error) {
	if table == nil {
		return e.fail(res, execCtx, StageFilter, ErrCodeFilterFailed, ErrNilTable)
	}
	res.Original = table
	res.Table = table

	if conditions == nil && strings.TrimSpace(query) != "" {
		err := e.stage(ctx, res, execCtx, StageGenerate, func() (int, error) {
			if e.gen == nil {
				return 0, ErrNilGenerator
			}
			var genErr error
			conditions, genErr = e.gen.Generate(ctx, query, table.Headers)
			return len(conditions), genErr
		})
		if err != nil {
			return e.fallback(ctx, res, execCtx, StageGenerate, ErrCodeGenerateFailed, err)
		}
	}
	if conditions != nil {
		res.Conditions = conditions
	}

	var filtered *tabular.Table
	err := e.stage(ctx, res, execCtx, StageFilter, func() (int, error) {
		var filterErr error
		filtered, filterErr = e.chain(res.Conditions).Process(ctx, table)
		if filterErr != nil {
			return 0, filterErr
		}
		return filtered.Len(), nil
	})
	if err != nil {
		return e.fallback(ctx, res, execCtx, StageFilter, ErrCodeFilterFailed, err)
	}
	res.Table = filtered

	if err := e.writeOutputs(ctx, res, execCtx); err != nil {
		return e.fail(res, execCtx, StageOutput, ErrCodeOutputFailed, err)
	}

	res.Status = StatusSuccess
	e.finish(res, execCtx)
	return res, nil
}

func (e *Executor) chain(conditions []tabular.FilterCondition) filter.Chain {
	chain := filter.Chain{filter.NewConditionModule(conditions)}
	if e.expression != nil {
		chain = append(chain, e.expression)
	}
	return chain
}

func (e *Executor) writeOutputs(ctx context.Context, res *Result, execCtx logger.ExecutionContext) error {
	if len(e.opts.Outputs) == 0 {
		return nil
	}
	return e.stage(ctx, res, execCtx, StageOutput, func() (int, error) {
		for i, out := range e.opts.Outputs {
			if out == nil {
				continue
			}
			if err := out.Write(ctx, res.Table); err != nil {
				return 0, fmt.Errorf("output %d: %w", i, err)
			}
		}
		return res.Table.Len(), nil
	})
}

// stage runs fn with stage start/end logging and records its duration.
func (e *Executor) stage(ctx context.Context, res *Result, execCtx logger.ExecutionContext, name string, fn func() (int, error)) error {
	stageCtx := execCtx
	stageCtx.Stage = name
	logger.LogStageStart(stageCtx)

	if err := ctx.Err(); err != nil {
		logger.LogStageEnd(stageCtx, 0, 0, &logger.ExecutionError{Code: "CANCELED", Message: err.Error()})
		return err
	}

	start := time.Now()
	count, err := fn()
	duration := time.Since(start)
	res.Durations[name] = duration

	if err != nil {
		logger.LogStageEnd(stageCtx, count, duration, &logger.ExecutionError{
			Code:    errorCode(err),
			Message: err.Error(),
		})
		return err
	}
	logger.LogStageEnd(stageCtx, count, duration, nil)
	return nil
}

// fallback records a failure but keeps the original table as the result and
// still renders it.
func (e *Executor) fallback(ctx context.Context, res *Result, execCtx logger.ExecutionContext, stage, code string, err error) (*Result, error) {
	res.Table = res.Original
	res.Fallback = true
	res.Error = buildExecutionError(code, stage, err)
	if outErr := e.writeOutputs(ctx, res, execCtx); outErr != nil {
		logger.WithExecution(execCtx).Warn("failed to render fallback table",
			slog.String("error", outErr.Error()),
		)
	}
	e.finish(res, execCtx)
	return res, err
}

func (e *Executor) fail(res *Result, execCtx logger.ExecutionContext, stage, code string, err error) (*Result, error) {
	res.Error = buildExecutionError(code, stage, err)
	e.finish(res, execCtx)
	return res, err
}

func (e *Executor) finish(res *Result, execCtx logger.ExecutionContext) {
	res.CompletedAt = time.Now()
	rowsIn, rowsOut := 0, 0
	if res.Original != nil {
		rowsIn = res.Original.Len()
	}
	if res.Table != nil {
		rowsOut = res.Table.Len()
	}
	logger.LogExecutionEnd(execCtx, res.Status, rowsIn, rowsOut, res.CompletedAt.Sub(res.StartedAt))
}

// buildExecutionError creates an ExecutionError with classified category and type.
func buildExecutionError(code, stage string, err error) *ExecutionError {
	ex := &ExecutionError{
		Code:    code,
		Stage:   stage,
		Message: err.Error(),
	}
	var parseErr *parser.ParseError
	var filterErr *filter.FilterError
	if errors.As(err, &parseErr) || errors.As(err, &filterErr) {
		ex.Category = string(errhandling.CategoryValidation)
		ex.Type = "fatal"
		return ex
	}
	ex.Category = string(errhandling.ClassifyError(err).Category)
	switch {
	case errhandling.IsFatal(err):
		ex.Type = "fatal"
	case errhandling.IsRetryable(err):
		ex.Type = "retryable"
	default:
		ex.Type = "permanent"
	}
	return ex
}

func errorCode(err error) string {
	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Code
	}
	var filterErr *filter.FilterError
	if errors.As(err, &filterErr) {
		return filterErr.Code
	}
	var upstreamErr *generator.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELED"
	}
	return "ERROR"
}
