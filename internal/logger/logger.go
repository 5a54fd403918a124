// Package logger provides structured logging functionality.
// It wraps the standard log/slog package for consistent logging across the
// query runtime, the HTTP API and the CLI.
//
// Logs go to stderr so that rendered query results on stdout stay clean.
// Query helpers (execution start/end, stage start/end, errors) use
// consistent snake_case field names.
//
// The package supports two console formats:
//   - JSON (default): Machine-readable structured logging
//   - Human: Human-readable console output with colors and prefixes
//
// Records can additionally be fanned out to a log file and a Seq server.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the default logger instance.
var Logger *slog.Logger

// console is where console handlers write. Tests may swap it via SetOutput.
var console io.Writer = os.Stderr

var (
	mu           sync.Mutex
	currentLevel = slog.LevelInfo
	currentFmt   = FormatJSON
	extra        []slog.Handler
)

func init() {
	Logger = slog.New(newConsoleHandler(console, slog.LevelInfo, FormatJSON))
}

// SetLevelAndFormat sets both the log level and format.
func SetLevelAndFormat(level slog.Level, format OutputFormat) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
	currentFmt = format
	rebuild()
}

// SetOutput redirects console output. It exists mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	console = w
	rebuild()
}

// ParseLevel maps a config level name to a slog level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat maps a config format name to an OutputFormat. Unknown names yield JSON.
func ParseFormat(name string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(name), "human") {
		return FormatHuman
	}
	return FormatJSON
}

// rebuild must be called with mu held.
func rebuild() {
	handlers := []slog.Handler{newConsoleHandler(console, currentLevel, currentFmt)}
	handlers = append(handlers, extra...)
	if len(handlers) == 1 {
		Logger = slog.New(handlers[0])
		return
	}
	Logger = slog.New(&fanoutHandler{handlers: handlers})
}

func newConsoleHandler(w io.Writer, level slog.Level, format OutputFormat) slog.Handler {
	if format == FormatHuman {
		return NewHumanHandler(w, &HumanHandlerOptions{
			Level:     level,
			UseColors: isTerminal(w),
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// addSink registers an extra handler and returns a function removing it.
func addSink(h slog.Handler) func() {
	mu.Lock()
	defer mu.Unlock()
	extra = append(extra, h)
	rebuild()
	return func() {
		mu.Lock()
		defer mu.Unlock()
		for i, e := range extra {
			if e == h {
				extra = append(extra[:i], extra[i+1:]...)
				break
			}
		}
		rebuild()
	}
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// WithComponent returns a logger tagged with a component name (parser, generator, server...).
func WithComponent(component string) *slog.Logger {
	return Logger.With("component", component)
}

// =============================================================================
// Execution Context Types
// =============================================================================

// ExecutionContext contains context information for query execution logging.
type ExecutionContext struct {
	// QueryID identifies one execution (required)
	QueryID string
	// Source describes where the data came from (file path, dataset id, "api")
	Source string
	// Stage is the current execution stage (parse, generate, filter, output)
	Stage string
	// Generator is the generator type in use (chat, script, static)
	Generator string
}

// ExecutionError contains structured error information for logging.
type ExecutionError struct {
	// Code is the error code (e.g., EMPTY_INPUT, UNKNOWN_HEADER)
	Code string
	// Message is the human-readable error message
	Message string
}

// ErrorContext contains structured context for error logging.
type ErrorContext struct {
	QueryID string
	Source  string
	Stage   string

	ErrorCode    string
	ErrorMessage string
	Err          error

	Line           int
	ConditionIndex int
	Header         string
	Endpoint       string
	HTTPStatus     int
	Attempt        int
	Duration       time.Duration

	Extra map[string]interface{}
}

// =============================================================================
// Execution Context Helpers
// =============================================================================

// WithExecution returns a logger with execution context attached.
// Only non-empty fields are included.
func WithExecution(ctx ExecutionContext) *slog.Logger {
	return Logger.With(buildContextAttrs(ctx)...)
}

// LogExecutionStart logs the start of a query execution.
func LogExecutionStart(ctx ExecutionContext) {
	Logger.Info("execution started", buildContextAttrs(ctx)...)
}

// LogExecutionEnd logs the completion of a query execution.
func LogExecutionEnd(ctx ExecutionContext, status string, rowsIn, rowsOut int, duration time.Duration) {
	attrs := buildContextAttrs(ctx)
	attrs = append(attrs,
		slog.String("status", status),
		slog.Int("rows_in", rowsIn),
		slog.Int("rows_out", rowsOut),
		slog.Duration("duration", duration),
	)
	Logger.Info("execution completed", attrs...)
}

// LogStageStart logs the start of an execution stage.
func LogStageStart(ctx ExecutionContext) {
	Logger.Debug("stage started", buildContextAttrs(ctx)...)
}

// LogStageEnd logs the completion of an execution stage.
// If err is non-nil, logs as an error with error details.
func LogStageEnd(ctx ExecutionContext, recordCount int, duration time.Duration, err *ExecutionError) {
	attrs := buildContextAttrs(ctx)
	attrs = append(attrs,
		slog.Int("record_count", recordCount),
		slog.Duration("duration", duration),
	)

	if err != nil {
		attrs = append(attrs,
			slog.String("error_code", err.Code),
			slog.String("error", err.Message),
		)
		Logger.Error("stage failed", attrs...)
		return
	}
	Logger.Info("stage completed", attrs...)
}

// LogError logs an error with full execution context.
func LogError(message string, errCtx ErrorContext) {
	attrs := make([]any, 0, 16)

	if errCtx.QueryID != "" {
		attrs = append(attrs, slog.String("query_id", errCtx.QueryID))
	}
	if errCtx.Source != "" {
		attrs = append(attrs, slog.String("source", errCtx.Source))
	}
	if errCtx.Stage != "" {
		attrs = append(attrs, slog.String("stage", errCtx.Stage))
	}
	if errCtx.ErrorCode != "" {
		attrs = append(attrs, slog.String("error_code", errCtx.ErrorCode))
	}
	if errCtx.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error", errCtx.ErrorMessage))
	}
	if errCtx.Err != nil {
		attrs = append(attrs, slog.String("error_type", fmt.Sprintf("%T", errCtx.Err)))
		if chain := errorChain(errCtx.Err); len(chain) > 1 {
			attrs = append(attrs, slog.String("error_chain", strings.Join(chain, " -> ")))
		}
	}
	if errCtx.Line > 0 {
		attrs = append(attrs, slog.Int("line", errCtx.Line))
	}
	// ConditionIndex is only meaningful alongside a header.
	if errCtx.Header != "" {
		attrs = append(attrs,
			slog.String("header", errCtx.Header),
			slog.Int("condition_index", errCtx.ConditionIndex),
		)
	}
	if errCtx.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", errCtx.Endpoint))
	}
	if errCtx.HTTPStatus > 0 {
		attrs = append(attrs, slog.Int("http_status", errCtx.HTTPStatus))
	}
	if errCtx.Attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", errCtx.Attempt))
	}
	if errCtx.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", errCtx.Duration))
	}
	for k, v := range errCtx.Extra {
		attrs = append(attrs, slog.Any(k, v))
	}

	Logger.Error(message, attrs...)
}

func errorChain(err error) []string {
	chain := []string{err.Error()}
	for current := errors.Unwrap(err); current != nil; current = errors.Unwrap(current) {
		chain = append(chain, current.Error())
	}
	return chain
}

func buildContextAttrs(ctx ExecutionContext) []any {
	attrs := make([]any, 0, 4)
	attrs = append(attrs, slog.String("query_id", ctx.QueryID))
	if ctx.Source != "" {
		attrs = append(attrs, slog.String("source", ctx.Source))
	}
	if ctx.Stage != "" {
		attrs = append(attrs, slog.String("stage", ctx.Stage))
	}
	if ctx.Generator != "" {
		attrs = append(attrs, slog.String("generator", ctx.Generator))
	}
	return attrs
}
