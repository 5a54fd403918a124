package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// =============================================================================
// Log File Output Support
// =============================================================================

// maxLogFileSize is the size at which an existing log file is rotated (10MB)
const maxLogFileSize = 10 * 1024 * 1024

// rotateLogFile renames path with a timestamp suffix when it exceeds maxLogFileSize.
func rotateLogFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking log file size: %w", err)
	}
	if info.Size() < maxLogFileSize {
		return nil
	}
	rotated := fmt.Sprintf("%s.%s", path, time.Now().Format("20060102-150405"))
	if err := os.Rename(path, rotated); err != nil {
		return fmt.Errorf("rotating log file: %w", err)
	}
	return nil
}

// AddLogFile adds a JSON sink writing to path, in addition to the console.
// The returned function removes the sink and closes the file.
func AddLogFile(path string, level slog.Level) (func(), error) {
	if err := rotateLogFile(path); err != nil {
		Warn("log rotation failed", slog.String("error", err.Error()))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	remove := addSink(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	Info("log file opened", slog.String("path", path))

	return func() {
		remove()
		if err := f.Sync(); err != nil {
			Warn("failed to sync log file", slog.String("error", err.Error()))
		}
		if err := f.Close(); err != nil {
			Warn("failed to close log file", slog.String("error", err.Error()))
		}
	}, nil
}

// =============================================================================
// Seq Output Support
// =============================================================================

// AddSeq ships records to a Seq server at url, in addition to the console.
// The returned function flushes pending events and removes the sink.
func AddSeq(url string, level slog.Level) (func(), error) {
	if url == "" {
		return nil, fmt.Errorf("seq url is empty")
	}

	_, seqHandler := slogseq.NewLogger(
		url,
		slogseq.WithBatchSize(10),
		slogseq.WithFlushInterval(500*time.Millisecond),
		slogseq.WithHandlerOptions(&slog.HandlerOptions{Level: level}),
	)
	if seqHandler == nil {
		return nil, fmt.Errorf("seq handler could not be created for %s", url)
	}

	remove := addSink(seqHandler)
	Debug("seq sink enabled", slog.String("url", url))

	return func() {
		remove()
		seqHandler.Close()
	}, nil
}

// fanoutHandler forwards each record to every handler that accepts its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: handlers}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: handlers}
}
