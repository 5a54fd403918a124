package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// OutputFormat represents the log output format
type OutputFormat int

const (
	// FormatJSON is the default machine-readable JSON format
	FormatJSON OutputFormat = iota
	// FormatHuman is a human-readable console format with colors and prefixes
	FormatHuman
)

// String returns the config name of the format.
func (f OutputFormat) String() string {
	if f == FormatHuman {
		return "human"
	}
	return "json"
}

const maxInlineAttrs = 6

// isTerminal returns true if the writer is a terminal (supports colors)
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return false
		}
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// HumanHandlerOptions configures the human-readable log handler.
type HumanHandlerOptions struct {
	// Level is the minimum log level to output
	Level slog.Level
	// UseColors enables ANSI color codes
	UseColors bool
}

// HumanHandler is a slog handler that outputs one readable line per record:
//
//	15:04:05 ✓ stage completed query_id=... stage=filter record_count=3
type HumanHandler struct {
	opts   HumanHandlerOptions
	mu     *sync.Mutex
	writer io.Writer
	attrs  []slog.Attr
	group  string
}

// NewHumanHandler creates a new human-readable log handler.
func NewHumanHandler(w io.Writer, opts *HumanHandlerOptions) *HumanHandler {
	if opts == nil {
		opts = &HumanHandlerOptions{Level: slog.LevelInfo}
	}
	return &HumanHandler{
		opts:   *opts,
		mu:     &sync.Mutex{},
		writer: w,
	}
}

// Enabled returns true if the handler is enabled for the given level.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

// Handle outputs a log record in human-readable format.
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder

	sb.WriteString(r.Time.Format("15:04:05"))
	sb.WriteByte(' ')
	sb.WriteString(h.prefix(r.Level, r.Message))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	parts := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		parts = append(parts, formatAttr(a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, formatAttr(h.qualify(a.Key), a.Value))
		return true
	})

	if len(parts) > 0 {
		sb.WriteByte(' ')
		shown := parts
		if len(shown) > maxInlineAttrs {
			shown = shown[:maxInlineAttrs]
		}
		sb.WriteString(strings.Join(shown, " "))
		if len(parts) > maxInlineAttrs {
			fmt.Fprintf(&sb, " (+%d more)", len(parts)-maxInlineAttrs)
		}
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

// WithAttrs returns a new handler with the given attributes added.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.qualify(a.Key)
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup returns a new handler that prefixes attribute keys with name.
func (h *HumanHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

// prefix returns a glyph for the level, using ✓ for completion messages.
func (h *HumanHandler) prefix(level slog.Level, message string) string {
	const (
		colorReset  = "\033[0m"
		colorRed    = "\033[31m"
		colorYellow = "\033[33m"
		colorGreen  = "\033[32m"
		colorCyan   = "\033[36m"
	)

	lower := strings.ToLower(message)
	success := strings.Contains(lower, "completed") || strings.Contains(lower, "success")

	var glyph, color string
	switch {
	case level >= slog.LevelError:
		glyph, color = "✗", colorRed
	case level >= slog.LevelWarn:
		glyph, color = "⚠", colorYellow
	case level >= slog.LevelInfo && success:
		glyph, color = "✓", colorGreen
	case level >= slog.LevelInfo:
		glyph, color = "ℹ", colorCyan
	default:
		glyph, color = "·", colorReset
	}

	if h.opts.UseColors {
		return color + glyph + colorReset
	}
	return glyph
}

func (h *HumanHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func formatAttr(key string, value slog.Value) string {
	switch v := value.Resolve(); v.Kind() {
	case slog.KindDuration:
		return fmt.Sprintf("%s=%s", key, FormatDuration(v.Duration()))
	case slog.KindFloat64:
		return fmt.Sprintf("%s=%.2f", key, v.Float64())
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t\"") {
			return fmt.Sprintf("%s=%q", key, s)
		}
		return key + "=" + s
	default:
		return fmt.Sprintf("%s=%v", key, v.Any())
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}
