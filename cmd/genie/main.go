// Package main provides the CLI entry point for CSV Query Genie.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/csvquerygenie/genie/internal/cli"
	"github.com/csvquerygenie/genie/internal/config"
	"github.com/csvquerygenie/genie/internal/factory"
	"github.com/csvquerygenie/genie/internal/generator"
	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/internal/modules/input"
	"github.com/csvquerygenie/genie/internal/modules/output"
	"github.com/csvquerygenie/genie/internal/parser"
	"github.com/csvquerygenie/genie/internal/runtime"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
)

// Build information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError carries an exit code out of a command whose diagnostics have
// already been printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// app holds the state shared by all commands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// Global flags
	verbose    bool
	quiet      bool
	configPath string
	logFormat  string

	cfg     *config.Config
	closers []func()
}

// execute runs the CLI with args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	defer a.closeSinks()
	logger.SetOutput(stderr)

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "✗ %v\n", err)
	return ExitRuntimeError
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "genie",
		Short: "CSV Query Genie - ask questions of tabular data",
		Long: `CSV Query Genie parses comma-separated data and filters it with conditions
generated from a natural-language question.

Examples:
  # Show how a file parses
  genie parse sales.csv

  # Ask a question
  genie query sales.csv "orders from the north over 100 units"

  # Filter without a generator
  genie filter sales.csv --condition "Units > 100"

  # Serve the HTTP API
  genie serve --config genie.yaml`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Suppress non-error output")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Configuration file (JSON/YAML)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: json or human")

	root.AddCommand(a.parseCmd(), a.queryCmd(), a.filterCmd(), a.serveCmd(), a.validateCmd(), a.versionCmd())
	return root
}

// setup loads the configuration and configures logging before any command.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" || cmd.Name() == "validate" {
		a.cfg = config.Default()
		a.configureLogging()
		return nil
	}

	if a.configPath == "" {
		a.cfg = config.Default()
	} else {
		cfg, result := config.Load(a.configPath)
		if cfg == nil {
			return a.reportConfigErrors(result)
		}
		a.cfg = cfg
	}
	a.configureLogging()
	return nil
}

func (a *app) configureLogging() {
	level := logger.ParseLevel(a.cfg.Logging.Level)
	if a.verbose {
		level = slog.LevelDebug
	} else if a.quiet {
		level = slog.LevelError
	}
	format := a.cfg.Logging.Format
	if a.logFormat != "" {
		format = a.logFormat
	}
	logger.SetLevelAndFormat(level, logger.ParseFormat(format))

	if path := a.cfg.Logging.File; path != "" {
		closeFn, err := logger.AddLogFile(path, level)
		if err != nil {
			logger.Warn("log file disabled", slog.String("error", err.Error()))
		} else {
			a.closers = append(a.closers, closeFn)
		}
	}
	if url := a.cfg.Logging.SeqURL; url != "" {
		closeFn, err := logger.AddSeq(url, level)
		if err != nil {
			logger.Warn("seq sink disabled", slog.String("error", err.Error()))
		} else {
			a.closers = append(a.closers, closeFn)
		}
	}
}

func (a *app) closeSinks() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) reportConfigErrors(result *config.Result) error {
	err := errors.Join(result.AllErrors()...)
	if err == nil {
		err = errors.New("invalid configuration")
	}
	if len(result.ParseErrors) > 0 {
		cli.PrintParseErrors(a.stderr, result.ParseErrors, a.verbose)
		return exitWith(ExitParseError, err)
	}
	cli.PrintValidationErrors(a.stderr, result.FilePath, result.ValidationErrors, a.verbose, a.quiet)
	return exitWith(ExitValidationError, err)
}

func (a *app) outputOptions() cli.OutputOptions {
	return cli.OutputOptions{Verbose: a.verbose, Quiet: a.quiet}
}

// =============================================================================
// parse
// =============================================================================

func (a *app) parseCmd() *cobra.Command {
	var headerRow int
	var format string

	cmd := &cobra.Command{
		Use:   "parse <file|url|->",
		Short: "Parse delimited text and show the resulting table",
		Long: `Parse delimited text and print the table it produces.

Data lines whose field count differs from the header are skipped and
reported on stderr. With --format json the table and the skipped lines
are printed together.

Exit codes:
  0 - Parsed successfully
  2 - The text could not be parsed
  3 - The source could not be read`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.checkHeaderRow(headerRow); err != nil {
				return err
			}
			text, err := a.fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			result, err := parser.ParseWithOptions(text, parser.Options{HeaderRow: a.headerRow(headerRow)})
			if err != nil {
				fmt.Fprintf(a.stderr, "✗ %v\n", err)
				return exitWith(ExitParseError, err)
			}

			if strings.EqualFold(format, output.FormatJSON) {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(tabular.ParseResponse{Table: result.Table, Skipped: result.SkippedInfo()}); err != nil {
					return exitWith(ExitRuntimeError, err)
				}
				return nil
			}

			out, err := output.NewFromFormat(format, a.stdout)
			if err != nil {
				fmt.Fprintf(a.stderr, "✗ %v\n", err)
				return exitWith(ExitValidationError, err)
			}
			if err := out.Write(cmd.Context(), result.Table); err != nil {
				return exitWith(ExitRuntimeError, err)
			}
			if !a.quiet {
				fmt.Fprintf(a.stderr, "✓ Parsed %d rows, %d columns\n", result.Table.Len(), len(result.Table.Headers))
			}
			cli.PrintSkippedRows(a.stderr, result.Skipped, a.outputOptions())
			return nil
		},
	}
	cmd.Flags().IntVar(&headerRow, "header-row", 0, "1-based line number of the header (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", output.FormatTable, "Output format: "+strings.Join(output.Formats(), ", "))
	return cmd
}

// =============================================================================
// query / filter
// =============================================================================

// queryFlags are shared by query and filter.
type queryFlags struct {
	headerRow  int
	format     string
	where      string
	conditions string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.headerRow, "header-row", 0, "1-based line number of the header (default from config)")
	cmd.Flags().StringVarP(&f.format, "format", "f", output.FormatTable, "Output format: "+strings.Join(output.Formats(), ", "))
	cmd.Flags().StringVar(&f.where, "where", "", "Additional expr-lang filter applied after the conditions")
}

func (a *app) queryCmd() *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "query <file|url|-> <question...>",
		Short: "Filter a table with conditions generated from a question",
		Long: `Parse the data, generate filter conditions from the question, apply them
and render the matching rows.

When generation or filtering fails the unfiltered table is rendered and
the error is reported on stderr.

Flags:
  --conditions  JSON array of conditions used instead of the generator

Exit codes:
  0 - Query succeeded
  1 - Invalid flags
  2 - The text could not be parsed
  3 - Generation, filtering or reading failed`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.checkHeaderRow(flags.headerRow); err != nil {
				return err
			}
			question := strings.Join(args[1:], " ")
			if flags.conditions != "" {
				var conditions []tabular.FilterCondition
				if err := json.Unmarshal([]byte(flags.conditions), &conditions); err != nil {
					fmt.Fprintf(a.stderr, "✗ Invalid --conditions: %v\n", err)
					return exitWith(ExitValidationError, err)
				}
				return a.runConditions(cmd.Context(), args[0], conditions, flags)
			}

			gen, err := factory.CreateGenerator(a.cfg.Generator)
			if err != nil {
				fmt.Fprintf(a.stderr, "✗ %v\n", err)
				return exitWith(ExitRuntimeError, err)
			}
			exec, err := a.executor(gen, args[0], flags)
			if err != nil {
				return err
			}
			in, err := input.NewFromSource(args[0])
			if err != nil {
				fmt.Fprintf(a.stderr, "✗ %v\n", err)
				return exitWith(ExitRuntimeError, err)
			}
			result, err := exec.ExecuteInput(cmd.Context(), in, question)
			return a.finishQuery(result, err)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.conditions, "conditions", "", "JSON array of {header, operator, value} conditions")
	return cmd
}

func (a *app) filterCmd() *cobra.Command {
	var flags queryFlags
	var raw []string

	cmd := &cobra.Command{
		Use:   "filter <file|url|->",
		Short: "Filter a table with explicit conditions",
		Long: `Filter a table with conditions given on the command line. No generator
is involved. Conditions are ANDed.

Each --condition has the form 'Header operator value', for example
  --condition "Units > 100"
  --condition '"Sales Region" contains north'

Exit codes:
  0 - Filter succeeded
  1 - Invalid condition
  2 - The text could not be parsed
  3 - Filtering or reading failed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.checkHeaderRow(flags.headerRow); err != nil {
				return err
			}
			conditions := make([]tabular.FilterCondition, 0, len(raw))
			for _, s := range raw {
				c, err := tabular.ParseCondition(s)
				if err != nil {
					fmt.Fprintf(a.stderr, "✗ Invalid condition: %v\n", err)
					return exitWith(ExitValidationError, err)
				}
				conditions = append(conditions, c)
			}
			return a.runConditions(cmd.Context(), args[0], conditions, flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringArrayVar(&raw, "condition", nil, "Condition 'Header operator value' (repeatable)")
	return cmd
}

// checkHeaderRow rejects a negative --header-row; zero means "from config".
func (a *app) checkHeaderRow(flag int) error {
	if flag < 0 {
		err := fmt.Errorf("--header-row must be >= 1, got %d", flag)
		fmt.Fprintf(a.stderr, "✗ %v\n", err)
		return exitWith(ExitValidationError, err)
	}
	return nil
}

func (a *app) headerRow(flag int) int {
	if flag > 0 {
		return flag
	}
	return a.cfg.Parser.HeaderRow
}

func (a *app) executor(gen generator.Generator, source string, flags queryFlags) (*runtime.Executor, error) {
	out, err := output.NewFromFormat(flags.format, a.stdout)
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ %v\n", err)
		return nil, exitWith(ExitValidationError, err)
	}

	cfg := *a.cfg
	cfg.Parser.HeaderRow = a.headerRow(flags.headerRow)
	exec, err := factory.CreateExecutor(&cfg, gen, source, out)
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ %v\n", err)
		return nil, exitWith(ExitValidationError, err)
	}
	exec, err = exec.WithExpression(flags.where)
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ Invalid --where: %v\n", err)
		return nil, exitWith(ExitValidationError, err)
	}
	return exec, nil
}

func (a *app) runConditions(ctx context.Context, source string, conditions []tabular.FilterCondition, flags queryFlags) error {
	exec, err := a.executor(nil, source, flags)
	if err != nil {
		return err
	}
	text, err := a.fetch(ctx, source)
	if err != nil {
		return err
	}
	parsed, err := parser.ParseWithOptions(text, parser.Options{HeaderRow: a.headerRow(flags.headerRow)})
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ %v\n", err)
		return exitWith(ExitParseError, err)
	}
	result, err := exec.ExecuteConditions(ctx, parsed.Table, conditions)
	if result != nil {
		result.Skipped = parsed.Skipped
	}
	return a.finishQuery(result, err)
}

func (a *app) finishQuery(result *runtime.Result, err error) error {
	cli.PrintQueryResult(a.stderr, result, err, a.outputOptions())
	if err == nil {
		return nil
	}
	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return exitWith(ExitParseError, err)
	}
	return exitWith(ExitRuntimeError, err)
}

func (a *app) fetch(ctx context.Context, source string) (string, error) {
	in, err := input.NewFromSource(source)
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ %v\n", err)
		return "", exitWith(ExitRuntimeError, err)
	}
	defer func() { _ = in.Close() }()

	text, err := in.Fetch(ctx)
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ Failed to read %s: %v\n", source, err)
		return "", exitWith(ExitRuntimeError, err)
	}
	return text, nil
}

// =============================================================================
// serve
// =============================================================================

func (a *app) serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API until interrupted.

Without a working generator the server still starts; requests that need
generation then fall back or fail while explicit conditions keep working.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *a.cfg
			if listen != "" {
				cfg.Server.ListenAddress = listen
			}

			gen, err := factory.CreateGenerator(cfg.Generator)
			if err != nil {
				logger.Warn("filter generator unavailable", slog.String("error", err.Error()))
				gen = nil
			}
			exec, err := factory.CreateExecutor(&cfg, gen, "api")
			if err != nil {
				fmt.Fprintf(a.stderr, "✗ %v\n", err)
				return exitWith(ExitValidationError, err)
			}
			srv, err := factory.CreateServer(&cfg, exec, factory.CreateStore(cfg.Store))
			if err != nil {
				fmt.Fprintf(a.stderr, "✗ %v\n", err)
				return exitWith(ExitRuntimeError, err)
			}

			if !a.quiet {
				fmt.Fprintf(a.stderr, "Serving on %s\n", cfg.Server.ListenAddress)
			}
			if err := srv.Start(cmd.Context()); err != nil {
				fmt.Fprintf(a.stderr, "✗ Server failed: %v\n", err)
				return exitWith(ExitRuntimeError, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	return cmd
}

// =============================================================================
// validate / version
// =============================================================================

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file against the schema.

Supports both JSON and YAML formats. The format is auto-detected
based on file extension (.json, .yaml, .yml) or content.

Exit codes:
  0 - Configuration is valid
  1 - Validation errors (schema violations)
  2 - Parse errors (invalid JSON/YAML syntax)`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			configPath := args[0]
			if !a.quiet {
				fmt.Fprintf(a.stdout, "Validating configuration: %s\n", configPath)
			}

			cfg, result := config.Load(configPath)
			if cfg == nil {
				return a.reportConfigErrors(result)
			}

			if !a.quiet {
				fmt.Fprintf(a.stdout, "✓ Configuration is valid (format: %s)\n", result.Format)
				if a.verbose {
					cli.PrintConfigSummary(a.stdout, cfg)
				}
			}
			return nil
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version, commit hash, and build date information.",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "Version: %s\n", version)
			fmt.Fprintf(a.stdout, "Commit: %s\n", commit)
			fmt.Fprintf(a.stdout, "Build Date: %s\n", buildDate)
		},
	}
}
