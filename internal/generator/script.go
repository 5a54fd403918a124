package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// MaxScriptLength is the maximum allowed script length in bytes (100KB).
const MaxScriptLength = 100 * 1024

const generateFunction = "generate"

// Script errors
var (
	ErrScriptTooLong          = errors.New("script exceeds maximum length")
	ErrMissingGenerateFunc    = errors.New("generate function not found in script")
	ErrGenerateNotFunction    = errors.New("generate is not a function")
	ErrScriptAndFileExclusive = errors.New("cannot specify both script and scriptFile")
)

// ScriptConfig holds an inline script or the path of a script file.
type ScriptConfig struct {
	Script     string
	ScriptFile string
}

// ScriptGenerator runs a JavaScript generate(query, headers) function that
// returns an array of {header, operator, value} objects.
//
// A goja runtime is not goroutine-safe, so calls are serialized.
type ScriptGenerator struct {
	mu       sync.Mutex
	runtime  *goja.Runtime
	generate goja.Callable
}

// NewScriptGenerator loads and compiles the script and checks that it
// defines generate.
func NewScriptGenerator(config ScriptConfig) (*ScriptGenerator, error) {
	source, err := resolveScript(config)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	if err := installConsole(vm); err != nil {
		return nil, err
	}
	if _, err := vm.RunString(source); err != nil {
		return nil, fmt.Errorf("script compilation failed: %w", err)
	}

	val := vm.Get(generateFunction)
	if val == nil || goja.IsUndefined(val) {
		return nil, ErrMissingGenerateFunc
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, ErrGenerateNotFunction
	}

	logger.Debug("script generator initialized",
		slog.Int("script_length", len(source)),
		slog.Bool("from_file", config.ScriptFile != ""),
	)
	return &ScriptGenerator{runtime: vm, generate: fn}, nil
}

func resolveScript(config ScriptConfig) (string, error) {
	if config.Script != "" && config.ScriptFile != "" {
		return "", ErrScriptAndFileExclusive
	}
	source := config.Script
	if config.ScriptFile != "" {
		f, err := os.Open(config.ScriptFile)
		if err != nil {
			return "", fmt.Errorf("opening script file: %w", err)
		}
		defer func() { _ = f.Close() }()
		content, err := io.ReadAll(io.LimitReader(f, MaxScriptLength+1))
		if err != nil {
			return "", fmt.Errorf("reading script file %q: %w", config.ScriptFile, err)
		}
		source = string(content)
	}
	if strings.TrimSpace(source) == "" {
		return "", ErrMissingScript
	}
	if len(source) > MaxScriptLength {
		return "", fmt.Errorf("%w: %d bytes exceeds maximum %d bytes", ErrScriptTooLong, len(source), MaxScriptLength)
	}
	return source, nil
}

// Generate calls generate(query, headers). Cancelling ctx interrupts the script.
func (s *ScriptGenerator) Generate(ctx context.Context, query string, headers []string) ([]tabular.FilterCondition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			s.runtime.Interrupt(ctx.Err().Error())
		case <-done:
		}
	}()
	defer func() {
		close(done)
		<-stopped
		s.runtime.ClearInterrupt()
	}()

	jsHeaders := make([]interface{}, len(headers))
	for i, h := range headers {
		jsHeaders[i] = h
	}

	result, err := s.generate(goja.Undefined(), s.runtime.ToValue(query), s.runtime.ToValue(jsHeaders))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, scriptFailure(err)
	}

	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, &UpstreamError{
			Code:     ErrCodeScriptFailed,
			Message:  "generate returned null or undefined; it must return an array",
			Attempts: 1,
		}
	}
	entries, ok := result.Export().([]interface{})
	if !ok {
		return nil, &UpstreamError{
			Code:     ErrCodeScriptFailed,
			Message:  fmt.Sprintf("generate returned %v; it must return an array", result.ExportType()),
			Attempts: 1,
		}
	}
	return normalizeFilters(entries), nil
}

func scriptFailure(err error) *UpstreamError {
	msg := err.Error()
	var jsErr *goja.Exception
	if errors.As(err, &jsErr) {
		msg = jsErr.Value().String()
	}
	return &UpstreamError{
		Code:     ErrCodeScriptFailed,
		Message:  "script execution failed: " + msg,
		Attempts: 1,
		Err:      err,
	}
}

var _ Generator = (*ScriptGenerator)(nil)
