// Package parser turns raw comma-separated text into a typed tabular.Table.
//
// The format is deliberately small: one header line at a configurable
// 1-based position, comma delimiters, no quoting. Every field is trimmed; a
// non-empty field matching the numeric grammar becomes a number, anything
// else stays a string. Data lines whose field count differs from the header
// are skipped and reported, never fatal.
package parser

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Error codes for parse failures.
const (
	ErrCodeEmptyInput       = "EMPTY_INPUT"
	ErrCodeInsufficientRows = "INSUFFICIENT_ROWS"
	ErrCodeInvalidHeaderRow = "INVALID_HEADER_ROW"
	ErrCodeDuplicateHeader  = "DUPLICATE_HEADER"
)

// DefaultHeaderRow is the header line used when none is configured.
const DefaultHeaderRow = 1

// ParseError is a fatal parse failure.
type ParseError struct {
	// Code is the machine-readable error code
	Code string
	// Line is the 1-based line number involved (0 when not line-specific)
	Line int
	// Header is the offending header name, when relevant
	Header string
	// Message is the human-readable reason
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
	}
	return "parse error: " + e.Message
}

// HTTPStatus maps parse failures to 400 Bad Request.
func (e *ParseError) HTTPStatus() int { return http.StatusBadRequest }

// RowSkip describes a data line that was dropped because its field count
// did not match the header count.
type RowSkip struct {
	// Line is the 1-based line number within the trimmed input
	Line int
	// Expected is the header field count
	Expected int
	// Found is the field count of the dropped line
	Found int
	// Reason is a human-readable description
	Reason string
}

// Info converts the skip to its wire form.
func (s RowSkip) Info() tabular.RowSkipInfo {
	return tabular.RowSkipInfo{Line: s.Line, Expected: s.Expected, Found: s.Found, Reason: s.Reason}
}

// Options configures ParseWithOptions.
type Options struct {
	// HeaderRow is the 1-based header line number; 0 means DefaultHeaderRow
	HeaderRow int
	// OnSkip, when set, is called for every skipped data line
	OnSkip func(RowSkip)
}

// Result is the outcome of a successful parse.
type Result struct {
	// Table holds the parsed headers and rows
	Table *tabular.Table
	// Skipped lists dropped data lines in input order
	Skipped []RowSkip
}

// SkippedInfo returns the skipped rows in wire form.
func (r *Result) SkippedInfo() []tabular.RowSkipInfo {
	out := make([]tabular.RowSkipInfo, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		out = append(out, s.Info())
	}
	return out
}

// Parse parses text using headerRowNumber (1-based) as the header line.
// Unlike Options.HeaderRow, zero is not a default here.
func Parse(text string, headerRowNumber int) (*tabular.Table, error) {
	if headerRowNumber < 1 {
		return nil, invalidHeaderRow(headerRowNumber)
	}
	res, err := ParseWithOptions(text, Options{HeaderRow: headerRowNumber})
	if err != nil {
		return nil, err
	}
	return res.Table, nil
}

func invalidHeaderRow(n int) *ParseError {
	return &ParseError{
		Code:    ErrCodeInvalidHeaderRow,
		Message: fmt.Sprintf("header row must be >= 1, got %d", n),
	}
}

// ParseWithOptions parses text and also reports skipped lines.
func ParseWithOptions(text string, opts Options) (*Result, error) {
	headerRow := opts.HeaderRow
	if headerRow == 0 {
		headerRow = DefaultHeaderRow
	}
	if headerRow < 1 {
		return nil, invalidHeaderRow(headerRow)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &ParseError{Code: ErrCodeEmptyInput, Message: "empty input"}
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < headerRow+1 {
		return nil, &ParseError{
			Code:    ErrCodeInsufficientRows,
			Line:    len(lines),
			Message: fmt.Sprintf("insufficient rows: header at line %d needs at least one data line, input has %d line(s)", headerRow, len(lines)),
		}
	}

	headers, err := parseHeaders(lines[headerRow-1], headerRow)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	rows := make([]tabular.Row, 0, len(lines)-headerRow)

	for idx := headerRow; idx < len(lines); idx++ {
		lineNo := idx + 1
		line := lines[idx]
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != len(headers) {
			skip := RowSkip{
				Line:     lineNo,
				Expected: len(headers),
				Found:    len(fields),
				Reason:   fmt.Sprintf("expected %d fields, found %d", len(headers), len(fields)),
			}
			result.Skipped = append(result.Skipped, skip)
			logger.Warn("row skipped",
				slog.Int("line", skip.Line),
				slog.Int("expected", skip.Expected),
				slog.Int("found", skip.Found),
			)
			if opts.OnSkip != nil {
				opts.OnSkip(skip)
			}
			continue
		}

		row := make(tabular.Row, len(headers))
		for i, h := range headers {
			row[h] = coerceField(fields[i])
		}
		rows = append(rows, row)
	}

	result.Table = tabular.NewTable(headers, rows)

	logger.Debug("input parsed",
		slog.Int("header_row", headerRow),
		slog.Int("columns", len(headers)),
		slog.Int("rows", len(rows)),
		slog.Int("skipped", len(result.Skipped)),
	)

	return result, nil
}

func parseHeaders(line string, lineNo int) ([]string, error) {
	raw := strings.Split(line, ",")
	headers := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, field := range raw {
		h := strings.TrimSpace(field)
		if _, dup := seen[h]; dup {
			return nil, &ParseError{
				Code:    ErrCodeDuplicateHeader,
				Line:    lineNo,
				Header:  h,
				Message: fmt.Sprintf("duplicate header: %s", h),
			}
		}
		seen[h] = struct{}{}
		headers = append(headers, h)
	}
	return headers, nil
}

// coerceField trims the field and applies numeric detection.
func coerceField(field string) tabular.Value {
	s := strings.TrimSpace(field)
	if f, ok := tabular.ParseNumber(s); ok {
		return tabular.Number(f)
	}
	return tabular.String(s)
}
