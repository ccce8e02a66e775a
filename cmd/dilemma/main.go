// Package main provides the command-line interface for the dilemma tournament engine.
// It implements subcommands for single fair and mixture tournaments, batch sweeps over
// group sizes, result viewing, summary exports and journal verification.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/pashagolub/dilemma/pkg/data"
	"github.com/pashagolub/dilemma/pkg/elo"
	"github.com/pashagolub/dilemma/pkg/journal"
	"github.com/pashagolub/dilemma/pkg/strategy"
	"github.com/pashagolub/dilemma/pkg/tournament"
)

// Version information - set by build process
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// GlobalOptions defines global CLI flags
type GlobalOptions struct {
	Config   string `long:"config" short:"c" description:"Configuration file path" default:"dilemma.yaml"`
	NoConfig bool   `long:"no-config" description:"Ignore configuration files and use defaults"`
	Verbose  bool   `long:"verbose" short:"v" description:"Enable debug logging"`
	Version  bool   `long:"version" description:"Show version information"`
}

// ErrorCode represents CLI exit codes
type ErrorCode int

const (
	ExitSuccess ErrorCode = iota
	ExitFileError
	ExitConfigError
	ExitTournamentError
	ExitExportError
	ExitValidationError
)

// CLIError represents a CLI error with exit code
type CLIError struct {
	Code        ErrorCode
	Message     string
	Details     map[string]any
	Suggestions []string
}

func (e *CLIError) Error() string {
	return e.Message
}

// formatErrorJSON formats error as JSON for structured output
func formatErrorJSON(err *CLIError) string {
	body := map[string]any{
		"code":    err.Code,
		"message": err.Message,
	}
	if err.Details != nil {
		body["details"] = err.Details
	}
	if err.Suggestions != nil {
		body["suggestions"] = err.Suggestions
	}

	jsonBytes, _ := json.MarshalIndent(map[string]any{"error": body}, "", "  ")
	return string(jsonBytes)
}

func main() {
	// a missing .env file is fine
	_ = godotenv.Load()

	if err := run(os.Args[1:]); err != nil {
		var cliErr *CLIError
		if errors.As(err, &cliErr) {
			fmt.Fprintln(os.Stderr, formatErrorJSON(cliErr))
			os.Exit(int(cliErr.Code))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	globals := &GlobalOptions{}
	parser := flags.NewParser(globals, flags.Default)
	parser.Usage = "[OPTIONS] COMMAND [COMMAND-OPTIONS]"

	commands := []struct {
		name, short, long string
		data              any
	}{
		{"fair", "Run a fair tournament", "Partitions the strategy pool into groups every repetition and plays each group once.", &FairCommand{Global: globals}},
		{"mixture", "Run a mixture sweep", "Plays every cooperative/aggressive composition of one group size.", &MixtureCommand{Global: globals}},
		{"batch-fair", "Run fair tournaments for several group sizes", "Sizes already saved in the results directory are loaded instead of recomputed.", &BatchFairCommand{Global: globals}},
		{"batch-mixture", "Run mixture sweeps for several group sizes", "Sizes already saved in the results directory are loaded instead of recomputed.", &BatchMixtureCommand{Global: globals}},
		{"show", "Browse saved results", "Opens the terminal viewer, or prints a text report with --plain.", &ShowCommand{Global: globals}},
		{"export", "Export a results summary", "Writes the summary as CSV, JSON, a text report or into a SQLite catalog.", &ExportCommand{Global: globals}},
		{"schelling", "Export Schelling diagram data", "Writes the cooperator and defector payoff series of a mixture sweep as CSV.", &SchellingCommand{Global: globals}},
		{"verify", "Verify a match journal", "Checks the hash chain of a journal file.", &VerifyCommand{Global: globals}},
		{"init", "Write a default configuration file", "", &InitCommand{Global: globals}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			return err
		}
	}

	_, err := parser.ParseArgs(args)
	if err == nil {
		return nil
	}

	var flagsErr *flags.Error
	if !errors.As(err, &flagsErr) {
		return err
	}
	switch flagsErr.Type {
	case flags.ErrHelp:
		return nil
	case flags.ErrCommandRequired:
		if globals.Version {
			return showVersion(os.Stdout)
		}
		parser.WriteHelp(os.Stderr)
		return &CLIError{
			Code:    ExitConfigError,
			Message: "No command specified",
			Suggestions: []string{
				"Use 'dilemma fair' to run a single fair tournament",
				"Use 'dilemma --help' to see all available commands",
			},
		}
	default:
		return &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Invalid arguments: %v", err),
		}
	}
}

func showVersion(w io.Writer) error {
	fmt.Fprintf(w, "dilemma %s\n", Version)
	fmt.Fprintf(w, "Build Date: %s\n", BuildDate)
	fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)
	return nil
}

// loadConfiguration resolves the run configuration for a command. Flag values
// in opts override the file and the environment.
func loadConfiguration(global *GlobalOptions, opts *data.RunOptions) (*data.RunConfig, error) {
	configFile, noConfig := data.DefaultConfigFile, false
	if global != nil {
		configFile, noConfig = global.Config, global.NoConfig
	}
	config, err := data.ResolveConfig(configFile, noConfig, opts)
	if err != nil {
		return nil, &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Failed to load configuration: %v", err),
			Details: map[string]any{"config": configFile},
			Suggestions: []string{
				"Check configuration file syntax",
				"Use --config flag to specify different config file",
				"Use 'dilemma init' to write a default configuration",
			},
		}
	}
	return config, nil
}

// newLogger builds the process logger on w from the log section
func newLogger(cfg data.LogConfig, verbose bool, w io.Writer) zerolog.Logger {
	level := cfg.ZerologLevel()
	if verbose {
		level = zerolog.DebugLevel
	}
	if strings.EqualFold(cfg.Format, "json") {
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()
}

func newEngine(cfg data.EloConfig) (*elo.Engine, error) {
	return elo.NewEngine(elo.Config{
		InitialRating: cfg.InitialRating,
		KFactor:       cfg.KFactor,
		MinRating:     cfg.MinRating,
		MaxRating:     cfg.MaxRating,
	})
}

// loadSpecs expands the configured roster, or the built-in strategies when none is set
func loadSpecs(cfg data.TournamentConfig) ([]strategy.Spec, error) {
	roster := strategy.DefaultRoster(cfg.Copies)
	if cfg.Roster != "" {
		loaded, err := strategy.LoadRoster(cfg.Roster)
		if err != nil {
			return nil, &CLIError{
				Code:    ExitFileError,
				Message: fmt.Sprintf("Failed to load strategy roster: %v", err),
				Details: map[string]any{"file": cfg.Roster},
				Suggestions: []string{
					"Check the roster path",
					"Known strategies: " + strings.Join(strategy.Labels(), ", "),
				},
			}
		}
		roster = *loaded
	}
	specs, err := roster.Specs()
	if err != nil {
		return nil, &CLIError{
			Code:    ExitValidationError,
			Message: fmt.Sprintf("Invalid strategy roster: %v", err),
		}
	}
	return specs, nil
}

// session bundles the logger and journal of a tournament command
type session struct {
	config  *data.RunConfig
	logger  zerolog.Logger
	journal *journal.Journal
}

func openSession(global *GlobalOptions, opts *data.RunOptions, stderr io.Writer) (*session, error) {
	config, err := loadConfiguration(global, opts)
	if err != nil {
		return nil, err
	}
	verbose := global != nil && global.Verbose
	s := &session{config: config, logger: newLogger(config.Log, verbose, stderr)}

	if config.Log.Journal {
		s.journal, err = journal.Open(config.Batch.ResultsDir)
		if err != nil {
			return nil, &CLIError{
				Code:    ExitFileError,
				Message: fmt.Sprintf("Failed to open match journal: %v", err),
				Details: map[string]any{"directory": config.Batch.ResultsDir},
				Suggestions: []string{
					"Run 'dilemma verify' to locate the damaged entry",
					"Use --no-journal to run without a journal",
				},
			}
		}
		s.logger.Debug().Str("path", s.journal.Path()).Str("run_id", s.journal.RunID()).Msg("journal opened")
	}
	return s, nil
}

// options returns the tournament options shared by every driver
func (s *session) options() []tournament.Option {
	opts := []tournament.Option{
		tournament.WithLogger(s.logger),
		tournament.WithSeed(s.config.Tournament.Seed),
	}
	if s.journal != nil {
		opts = append(opts, tournament.WithRecorder(s.journal))
	}
	return opts
}

func (s *session) Close() {
	if s.journal == nil {
		return
	}
	if err := s.journal.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close journal")
	}
}

// commandContext is cancelled on interrupt; tournaments stop after the current match
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func tournamentError(err error) *CLIError {
	cliErr := &CLIError{
		Code:    ExitTournamentError,
		Message: fmt.Sprintf("Tournament failed: %v", err),
	}
	switch {
	case errors.Is(err, context.Canceled):
		cliErr.Message = "Tournament interrupted"
		cliErr.Suggestions = []string{"Rerun the batch command to resume from the saved group sizes"}
	case errors.Is(err, tournament.ErrUnevenPopulation), errors.Is(err, tournament.ErrInsufficientPool):
		cliErr.Suggestions = []string{
			"Adjust --copies or the roster so the pool fits the group size",
		}
	case errors.Is(err, tournament.ErrUnequalMatches):
		cliErr.Suggestions = []string{"Rerun with --verbose to see the failed matches"}
	}
	return cliErr
}

// printTable writes a header row and data rows as aligned columns
func printTable(w io.Writer, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}
