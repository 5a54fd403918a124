package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/csvquerygenie/genie/internal/config"
	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/internal/parser"
	"github.com/csvquerygenie/genie/internal/runtime"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
}

// PrintQueryResult reports the outcome of a query. The table itself goes to
// the output module; this writes the summary that accompanies it.
func PrintQueryResult(w io.Writer, result *runtime.Result, err error, opts OutputOptions) {
	if result == nil {
		fmt.Fprintln(w, "✗ No query result available")
		return
	}

	if result.Fallback {
		fmt.Fprintln(w, "✗ Filtering failed, showing all rows")
		printExecutionError(w, result.Error)
		return
	}

	if err != nil {
		fmt.Fprintln(w, "✗ Query failed")
		printExecutionError(w, result.Error)
		return
	}

	if opts.Quiet {
		return
	}
	total := 0
	if result.Original != nil {
		total = result.Original.Len()
	}
	fmt.Fprintf(w, "✓ %d of %d rows matched\n", result.Table.Len(), total)
	if opts.Verbose {
		PrintConditions(w, result.Conditions)
		fmt.Fprintf(w, "  Duration: %s\n", logger.FormatDuration(result.CompletedAt.Sub(result.StartedAt)))
	}
	PrintSkippedRows(w, result.Skipped, opts)
}

func printExecutionError(w io.Writer, execErr *runtime.ExecutionError) {
	if execErr == nil {
		return
	}
	fmt.Fprintf(w, "  Stage: %s\n", execErr.Stage)
	fmt.Fprintf(w, "  Error: %s\n", execErr.Message)
}

// PrintConditions lists conditions one per line.
func PrintConditions(w io.Writer, conditions []tabular.FilterCondition) {
	if len(conditions) == 0 {
		fmt.Fprintln(w, "  Conditions: none")
		return
	}
	fmt.Fprintln(w, "  Conditions:")
	for _, c := range conditions {
		fmt.Fprintf(w, "    %s\n", c)
	}
}

// PrintSkippedRows reports the data lines the parser dropped. Quiet mode
// prints only the count.
func PrintSkippedRows(w io.Writer, skipped []parser.RowSkip, opts OutputOptions) {
	if len(skipped) == 0 {
		return
	}
	fmt.Fprintf(w, "  Skipped rows: %d\n", len(skipped))
	if opts.Quiet {
		return
	}
	for _, s := range skipped {
		fmt.Fprintf(w, "    line %d: %s\n", s.Line, s.Reason)
	}
}

// PrintConfigSummary prints the main settings of a loaded configuration.
func PrintConfigSummary(w io.Writer, cfg *config.Config) {
	if cfg == nil {
		return
	}
	fmt.Fprintf(w, "  Generator: %s\n", describeGenerator(cfg.Generator))
	fmt.Fprintf(w, "  Listen: %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(w, "  Header row: %d\n", cfg.Parser.HeaderRow)
	if cfg.Filter.Expression != "" {
		fmt.Fprintf(w, "  Expression: %s\n", cfg.Filter.Expression)
	}
}

func describeGenerator(gen config.GeneratorConfig) string {
	switch gen.Type {
	case config.GeneratorChat, "":
		return fmt.Sprintf("chat (%s)", gen.Model)
	case config.GeneratorScript:
		if gen.ScriptFile != "" {
			return fmt.Sprintf("script (%s)", gen.ScriptFile)
		}
		return "script (inline)"
	case config.GeneratorStatic:
		parts := make([]string, 0, len(gen.Conditions))
		for _, c := range gen.Conditions {
			parts = append(parts, c.String())
		}
		return fmt.Sprintf("static [%s]", strings.Join(parts, "; "))
	default:
		return gen.Type
	}
}
