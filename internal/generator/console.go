package generator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dop251/goja"

	"github.com/csvquerygenie/genie/internal/logger"
)

// MaxLogMessageLength caps a single console message (8KB).
const MaxLogMessageLength = 8 * 1024

// installConsole exposes console.log/info/warn/error/debug to scripts,
// routed to the structured logger.
func installConsole(vm *goja.Runtime) error {
	console := vm.NewObject()
	for name, level := range map[string]slog.Level{
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"debug": slog.LevelDebug,
	} {
		level := level
		fn := func(call goja.FunctionCall) goja.Value {
			logConsole(level, call.Arguments)
			return goja.Undefined()
		}
		if err := console.Set(name, fn); err != nil {
			return fmt.Errorf("console.Set(%q): %w", name, err)
		}
	}
	if err := vm.Set("console", console); err != nil {
		return fmt.Errorf("runtime.Set(console): %w", err)
	}
	return nil
}

func logConsole(level slog.Level, args []goja.Value) {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatConsoleValue(arg))
	}
	message := strings.Join(parts, " ")
	if len(message) > MaxLogMessageLength {
		message = message[:MaxLogMessageLength-3] + "..."
	}

	attrs := []any{
		slog.String("source", "javascript"),
		slog.String("component", "generator"),
	}
	switch level {
	case slog.LevelDebug:
		logger.Debug(message, attrs...)
	case slog.LevelWarn:
		logger.Warn(message, attrs...)
	case slog.LevelError:
		logger.Error(message, attrs...)
	default:
		logger.Info(message, attrs...)
	}
}

func formatConsoleValue(val goja.Value) string {
	if val == nil || goja.IsUndefined(val) {
		return "undefined"
	}
	if goja.IsNull(val) {
		return "null"
	}
	switch v := val.Export().(type) {
	case string:
		return v
	case map[string]interface{}, []interface{}:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return val.String()
}
