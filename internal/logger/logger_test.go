package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/csvquerygenie/genie/internal/logger"
)

// captureJSON swaps the package logger for one writing JSON into a buffer.
func captureJSON(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := logger.Logger
	logger.Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))
	t.Cleanup(func() { logger.Logger = original })
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to parse JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerInitialization(t *testing.T) {
	if logger.Logger == nil {
		t.Fatal("Logger should be initialized on package load")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := logger.ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if logger.ParseFormat("human") != logger.FormatHuman {
		t.Error("expected FormatHuman")
	}
	if logger.ParseFormat("json") != logger.FormatJSON || logger.ParseFormat("") != logger.FormatJSON {
		t.Error("expected FormatJSON")
	}
	if logger.FormatHuman.String() != "human" || logger.FormatJSON.String() != "json" {
		t.Error("unexpected OutputFormat names")
	}
}

func TestSetOutputAndLevel(t *testing.T) {
	var buf bytes.Buffer
	original := logger.Logger
	logger.SetOutput(&buf)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		logger.SetLevelAndFormat(slog.LevelInfo, logger.FormatJSON)
		logger.Logger = original
	})

	logger.SetLevelAndFormat(slog.LevelWarn, logger.FormatJSON)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d: %s", len(entries), buf.String())
	}
	if entries[0]["msg"] != "shown" || entries[0]["key"] != "value" {
		t.Errorf("unexpected entry %v", entries[0])
	}
}

func TestLogExecutionEnd(t *testing.T) {
	buf := captureJSON(t, slog.LevelDebug)

	logger.LogExecutionEnd(logger.ExecutionContext{
		QueryID: "q-1",
		Source:  "sales.csv",
	}, "success", 10, 3, 25*time.Millisecond)

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["msg"] != "execution completed" {
		t.Errorf("msg = %v", e["msg"])
	}
	if e["query_id"] != "q-1" || e["source"] != "sales.csv" || e["status"] != "success" {
		t.Errorf("unexpected context fields: %v", e)
	}
	if e["rows_in"] != float64(10) || e["rows_out"] != float64(3) {
		t.Errorf("unexpected row counts: %v", e)
	}
	if _, ok := e["stage"]; ok {
		t.Error("empty stage should be omitted")
	}
}

func TestLogStageEnd(t *testing.T) {
	buf := captureJSON(t, slog.LevelDebug)
	ctx := logger.ExecutionContext{QueryID: "q-2", Stage: "filter"}

	logger.LogStageStart(ctx)
	logger.LogStageEnd(ctx, 4, time.Millisecond, nil)
	logger.LogStageEnd(ctx, 0, time.Millisecond, &logger.ExecutionError{
		Code:    "UNKNOWN_HEADER",
		Message: "unknown header: Price",
	})

	entries := decodeLines(t, buf)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0]["msg"] != "stage started" || entries[0]["level"] != "DEBUG" {
		t.Errorf("unexpected start entry %v", entries[0])
	}
	if entries[1]["msg"] != "stage completed" || entries[1]["record_count"] != float64(4) {
		t.Errorf("unexpected completion entry %v", entries[1])
	}
	if entries[2]["msg"] != "stage failed" || entries[2]["level"] != "ERROR" ||
		entries[2]["error_code"] != "UNKNOWN_HEADER" {
		t.Errorf("unexpected failure entry %v", entries[2])
	}
}

func TestLogError(t *testing.T) {
	buf := captureJSON(t, slog.LevelInfo)

	base := errors.New("connection refused")
	logger.LogError("generation failed", logger.ErrorContext{
		QueryID:    "q-3",
		Stage:      "generate",
		ErrorCode:  "UPSTREAM_UNAVAILABLE",
		Err:        fmt.Errorf("calling model: %w", base),
		Endpoint:   "https://api.example.com",
		HTTPStatus: 503,
		Attempt:    2,
		Extra:      map[string]interface{}{"model": "test-model"},
	})

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	checks := map[string]interface{}{
		"query_id":    "q-3",
		"stage":       "generate",
		"error_code":  "UPSTREAM_UNAVAILABLE",
		"endpoint":    "https://api.example.com",
		"http_status": float64(503),
		"attempt":     float64(2),
		"model":       "test-model",
		"error_chain": "calling model: connection refused -> connection refused",
	}
	for k, want := range checks {
		if e[k] != want {
			t.Errorf("%s = %v, want %v", k, e[k], want)
		}
	}
	if _, ok := e["header"]; ok {
		t.Error("header should be omitted when empty")
	}
}

func TestHumanHandler(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(logger.NewHumanHandler(&buf, &logger.HumanHandlerOptions{Level: slog.LevelDebug}))

	l.With("query_id", "q-9").Info("stage completed", "stage", "filter", "duration", 1500*time.Microsecond)
	l.Warn("row skipped", "line", 4)
	l.Error("stage failed", "error", "bad thing")
	l.WithGroup("http").Info("request", "path", "/query")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "✓ stage completed query_id=q-9 stage=filter duration=1ms") {
		t.Errorf("unexpected success line %q", lines[0])
	}
	if !strings.Contains(lines[1], "⚠ row skipped line=4") {
		t.Errorf("unexpected warn line %q", lines[1])
	}
	if !strings.Contains(lines[2], `✗ stage failed error="bad thing"`) {
		t.Errorf("unexpected error line %q", lines[2])
	}
	if !strings.Contains(lines[3], "ℹ request http.path=/query") {
		t.Errorf("unexpected grouped line %q", lines[3])
	}
}

func TestHumanHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(logger.NewHumanHandler(&buf, &logger.HumanHandlerOptions{Level: slog.LevelWarn}))
	l.Info("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Microsecond, "500µs"},
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1.5m"},
	}
	for _, tt := range tests {
		if got := logger.FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestAddLogFile(t *testing.T) {
	var console bytes.Buffer
	original := logger.Logger
	logger.SetOutput(&console)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		logger.Logger = original
	})

	path := filepath.Join(t.TempDir(), "genie.log")
	closeFn, err := logger.AddLogFile(path, slog.LevelInfo)
	if err != nil {
		t.Fatalf("AddLogFile() error = %v", err)
	}
	logger.Info("to both sinks", "k", "v")
	closeFn()
	logger.Info("console only")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"to both sinks"`) {
		t.Errorf("log file missing record: %s", data)
	}
	if strings.Contains(string(data), "console only") {
		t.Error("record logged after close should not reach the file")
	}
	if !strings.Contains(console.String(), "to both sinks") || !strings.Contains(console.String(), "console only") {
		t.Errorf("console missing records: %s", console.String())
	}
}

func TestAddLogFileInvalidPath(t *testing.T) {
	_, err := logger.AddLogFile(filepath.Join(t.TempDir(), "missing", "dir", "x.log"), slog.LevelInfo)
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

func TestAddSeqRequiresURL(t *testing.T) {
	if _, err := logger.AddSeq("", slog.LevelInfo); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestContextLoggers(t *testing.T) {
	buf := captureJSON(t, slog.LevelDebug)

	logger.WithComponent("server").Info("server started")
	logger.WithExecution(logger.ExecutionContext{QueryID: "q-7", Generator: "static"}).Warn("failed to close input module")

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["component"] != "server" {
		t.Errorf("missing component: %v", entries[0])
	}
	if entries[1]["query_id"] != "q-7" || entries[1]["generator"] != "static" {
		t.Errorf("missing execution context: %v", entries[1])
	}
	if _, ok := entries[1]["source"]; ok {
		t.Error("empty source should be omitted")
	}
}
