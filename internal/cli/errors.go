// Package cli provides CLI output formatting and display functions.
package cli

import (
	"fmt"
	"io"

	"github.com/csvquerygenie/genie/internal/config"
)

// PrintParseErrors prints configuration parse errors.
func PrintParseErrors(w io.Writer, errors []config.ParseError, verbose bool) {
	fmt.Fprintln(w, "✗ Parse errors:")
	for _, err := range errors {
		printSingleParseError(w, err, verbose)
	}
}

func printSingleParseError(w io.Writer, err config.ParseError, verbose bool) {
	location := formatErrorLocation(err.Path, err.Line, err.Column)

	if location != "" {
		fmt.Fprintf(w, "  %s: %s\n", location, err.Message)
	} else {
		fmt.Fprintf(w, "  %s\n", err.Message)
	}
	if err.Source != "" {
		fmt.Fprintf(w, "    | %s\n", err.Source)
	}

	if verbose && err.Type != "" {
		fmt.Fprintf(w, "    Type: %s\n", err.Type)
	}
}

// formatErrorLocation formats the error location string (path:line:column).
func formatErrorLocation(path string, line, column int) string {
	if path == "" {
		return ""
	}

	location := path
	if line > 0 {
		location += fmt.Sprintf(":%d", line)
		if column > 0 {
			location += fmt.Sprintf(":%d", column)
		}
	}
	return location
}

// PrintValidationErrors prints schema and semantic validation errors.
// file labels the source lines when the error carries one.
func PrintValidationErrors(w io.Writer, file string, errors []config.ValidationError, verbose, quiet bool) {
	fmt.Fprintln(w, "✗ Validation errors:")
	for _, err := range errors {
		printSingleValidationError(w, file, err, verbose)
	}
	printValidationHint(w, quiet, verbose)
}

func printSingleValidationError(w io.Writer, file string, err config.ValidationError, verbose bool) {
	path := err.Path
	if path == "" {
		path = "/"
	}

	if verbose {
		fmt.Fprintf(w, "  %s:\n", path)
		fmt.Fprintf(w, "    Message: %s\n", err.Message)
		if err.Type != "" {
			fmt.Fprintf(w, "    Type: %s\n", err.Type)
		}
		if section := err.Section(); section != "" {
			fmt.Fprintf(w, "    Section: %s\n", section)
		}
		if loc := formatErrorLocation(file, err.Line, err.Column); loc != "" && err.Line > 0 {
			fmt.Fprintf(w, "    Location: %s\n", loc)
		}
		return
	}

	shortMsg := err.Message
	if len(shortMsg) > 80 {
		shortMsg = shortMsg[:77] + "..."
	}
	if err.Line > 0 {
		fmt.Fprintf(w, "  %s (line %d): %s\n", path, err.Line, shortMsg)
		return
	}
	fmt.Fprintf(w, "  %s: %s\n", path, shortMsg)
}

func printValidationHint(w io.Writer, quiet, verbose bool) {
	if !quiet && !verbose {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Hint: Use --verbose for detailed error information")
	}
}
