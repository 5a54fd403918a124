package config

import (
	"fmt"
	"strings"
)

// Parse error types
const (
	ErrorTypeIO     = "io"
	ErrorTypeSyntax = "syntax"
	ErrorTypeFormat = "format"
)

// ParseResult holds a decoded genie document before validation.
type ParseResult struct {
	Data     map[string]interface{}
	Errors   []ParseError
	FilePath string
	Format   string // FormatJSON or FormatYAML
}

func (r *ParseResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ParseError reports a genie file that could not be read or decoded.
// Line, Column and Offset are zero when the decoder gave no position.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Offset  int64
	Message string
	Type    string // one of the ErrorType constants
	// Source is the text of the offending line, without its newline.
	Source string
}

func (e ParseError) Error() string {
	var prefix string
	if e.Path != "" {
		prefix = e.Path + ": "
	}
	return prefix + location(e.Line, e.Column) + e.Message
}

// ValidationResult is the outcome of checking a decoded document against the
// genie schema and the cross-field rules.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError points at one rejected value by JSON pointer, for example
// "/generator/type" or "/filters/2/expression".
type ValidationError struct {
	Path    string
	Type    string // failing schema keyword, or "semantic"
	Message string
	Line    int
	Column  int
}

func (e ValidationError) Error() string {
	var pointer string
	if e.Path != "" {
		pointer = e.Path + ": "
	}
	return location(e.Line, e.Column) + pointer + e.Message
}

// Section returns the top-level configuration block the error belongs to
// ("input", "generator", "filters", "server", ...), or "" for the root.
func (e ValidationError) Section() string {
	section, _, _ := strings.Cut(strings.TrimPrefix(e.Path, "/"), "/")
	return section
}

func location(line, column int) string {
	switch {
	case line <= 0:
		return ""
	case column <= 0:
		return fmt.Sprintf("line %d: ", line)
	default:
		return fmt.Sprintf("line %d, column %d: ", line, column)
	}
}

// Result is what ParseConfig hands to the commands: the decoded document and
// every problem found on the way.
type Result struct {
	Data             map[string]interface{}
	ParseErrors      []ParseError
	ValidationErrors []ValidationError
	FilePath         string
	Format           string
}

func (r *Result) IsValid() bool {
	return len(r.ParseErrors) == 0 && len(r.ValidationErrors) == 0
}

// AllErrors lists parse errors first, then validation errors.
func (r *Result) AllErrors() []error {
	errs := make([]error, 0, len(r.ParseErrors)+len(r.ValidationErrors))
	for _, e := range r.ParseErrors {
		errs = append(errs, e)
	}
	for _, e := range r.ValidationErrors {
		errs = append(errs, e)
	}
	return errs
}

// sourceLine returns line n (1-based) of content, or "" when out of range.
func sourceLine(content string, n int) string {
	if n <= 0 {
		return ""
	}
	for i := 1; ; i++ {
		line, rest, found := strings.Cut(content, "\n")
		if i == n {
			return strings.TrimSuffix(line, "\r")
		}
		if !found {
			return ""
		}
		content = rest
	}
}
