package input

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/csvquerygenie/genie/internal/logger"
)

// StdinSource is the path that makes FileInput read standard input.
const StdinSource = "-"

// FileInput reads text from a local file or, for "-", from stdin.
type FileInput struct {
	path     string
	maxBytes int64
	stdin    io.Reader
}

// NewFileInput creates a file input for path with the default size limit.
func NewFileInput(path string) *FileInput {
	return &FileInput{path: path, maxBytes: DefaultMaxBytes, stdin: os.Stdin}
}

// WithMaxBytes overrides the size limit. Non-positive values keep the default.
func (f *FileInput) WithMaxBytes(n int64) *FileInput {
	if n > 0 {
		f.maxBytes = n
	}
	return f
}

// Path returns the configured path.
func (f *FileInput) Path() string {
	return f.path
}

// Fetch reads the whole file.
func (f *FileInput) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.path == "" {
		return "", ErrMissingSource
	}

	var r io.Reader
	if f.path == StdinSource {
		r = f.stdin
	} else {
		file, err := os.Open(f.path)
		if err != nil {
			return "", fmt.Errorf("opening input file: %w", err)
		}
		defer func() {
			if closeErr := file.Close(); closeErr != nil {
				logger.Warn("failed to close input file",
					slog.String("path", f.path),
					slog.String("error", closeErr.Error()),
				)
			}
		}()
		r = file
	}

	text, err := readLimited(r, f.maxBytes)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", f.displayName(), err)
	}

	logger.Debug("input fetch completed",
		slog.String("module_type", "file"),
		slog.String("path", f.displayName()),
		slog.Int("bytes", len(text)),
	)
	return text, nil
}

// Close is a no-op; the file is closed after each Fetch.
func (f *FileInput) Close() error {
	return nil
}

func (f *FileInput) displayName() string {
	if f.path == StdinSource {
		return "stdin"
	}
	return f.path
}

// BytesInput serves text held in memory.
type BytesInput struct {
	text string
}

// NewBytesInput wraps text.
func NewBytesInput(text string) *BytesInput {
	return &BytesInput{text: text}
}

// Fetch returns the wrapped text.
func (b *BytesInput) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.text, nil
}

// Close releases resources (no-op).
func (b *BytesInput) Close() error {
	return nil
}

// readLimited reads r fully, failing with ErrInputTooLarge past limit bytes.
func readLimited(r io.Reader, limit int64) (string, error) {
	var sb strings.Builder
	n, err := io.Copy(&sb, io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if n > limit {
		return "", fmt.Errorf("%w (%d bytes)", ErrInputTooLarge, limit)
	}
	return sb.String(), nil
}

var (
	_ Module = (*FileInput)(nil)
	_ Module = (*BytesInput)(nil)
)
