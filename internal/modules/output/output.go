// Package output provides implementations for output modules.
// Output modules are responsible for rendering a table to a destination.
package output

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Supported formats
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatTable, FormatCSV, FormatJSON}
}

// Module represents an output module that writes a table somewhere.
type Module interface {
	// Write renders table. The context can be used to cancel long writes.
	Write(ctx context.Context, table *tabular.Table) error
}

// NewFromFormat returns the output module for format, writing to w.
// An empty format selects the table renderer.
func NewFromFormat(format string, w io.Writer) (Module, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatTable:
		return NewTableOutput(w), nil
	case FormatCSV:
		return NewCSVOutput(w), nil
	case FormatJSON:
		return NewJSONOutput(w, true), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (expected one of %s)", format, strings.Join(Formats(), ", "))
	}
}
