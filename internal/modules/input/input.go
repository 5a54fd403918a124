// Package input provides implementations for input modules.
// Input modules are responsible for fetching raw delimited text from a source.
package input

import (
	"context"
	"errors"
	"strings"
)

// DefaultMaxBytes bounds how much text an input module reads.
const DefaultMaxBytes int64 = 10 << 20

// Error types shared by input modules
var (
	ErrMissingSource = errors.New("input source is required")
	ErrInputTooLarge = errors.New("input exceeds maximum size")
)

// Module represents an input module that fetches raw text from a source.
type Module interface {
	// Fetch retrieves the source text.
	// The context can be used to cancel long-running operations.
	Fetch(ctx context.Context) (string, error)
	// Close releases any resources held by the module.
	Close() error
}

// NewFromSource selects an input module for source: HTTPInput for http(s)
// URLs, FileInput for anything else ("-" reads stdin).
func NewFromSource(source string) (Module, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrMissingSource
	}
	lower := strings.ToLower(source)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return NewHTTPInput(HTTPConfig{URL: source})
	}
	return NewFileInput(source), nil
}
