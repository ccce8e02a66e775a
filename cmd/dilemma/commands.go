package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/pashagolub/dilemma/pkg/catalog"
	"github.com/pashagolub/dilemma/pkg/data"
	"github.com/pashagolub/dilemma/pkg/elo"
	"github.com/pashagolub/dilemma/pkg/game"
	"github.com/pashagolub/dilemma/pkg/journal"
	"github.com/pashagolub/dilemma/pkg/strategy"
	"github.com/pashagolub/dilemma/pkg/tournament"
	"github.com/pashagolub/dilemma/pkg/tui"
)

// FormatSQLite stores the summary in a SQLite catalog instead of a file
const FormatSQLite = "sqlite"

// FairCommand handles 'dilemma fair' subcommand
type FairCommand struct {
	data.RunOptions `group:"Run Options"`
	Out             string `long:"out" description:"Results directory of this run (default <results-dir>/fair_<players>)"`

	Global *GlobalOptions `no-flag:"true"`
	stdout io.Writer
}

// Execute implements the Command interface for FairCommand
func (c *FairCommand) Execute(args []string) error {
	s, err := openSession(c.Global, &c.RunOptions, os.Stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	desc, specs, err := describeRun(s.config)
	if err != nil {
		return err
	}
	t, err := tournament.NewFairTournament(
		tournament.Config{GameDescription: desc, Repetitions: s.config.Tournament.Repetitions},
		tournament.NewPlayers(specs, desc), s.options()...)
	if err != nil {
		return tournamentError(err)
	}

	ctx, stop := commandContext()
	defer stop()
	res, err := t.Play(ctx)
	if err != nil {
		return tournamentError(err)
	}

	out := outputDir(c.Out, s.config, "fair", desc.NPlayers())
	return saveAndPrint(res, out, writerOr(c.stdout))
}

// MixtureCommand handles 'dilemma mixture' subcommand
type MixtureCommand struct {
	data.RunOptions `group:"Run Options"`
	Out             string `long:"out" description:"Results directory of this run (default <results-dir>/mixture_<players>)"`

	Global *GlobalOptions `no-flag:"true"`
	stdout io.Writer
}

// Execute implements the Command interface for MixtureCommand
func (c *MixtureCommand) Execute(args []string) error {
	s, err := openSession(c.Global, &c.RunOptions, os.Stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	desc, specs, err := describeRun(s.config)
	if err != nil {
		return err
	}
	cooperative, aggressive := strategy.Partition(specs)
	matches := s.config.Tournament.MatchesPerMixture
	t, err := tournament.NewMixtureTournament(
		tournament.Config{GameDescription: desc, Repetitions: matches},
		cooperative, aggressive, matches, s.options()...)
	if err != nil {
		return tournamentError(err)
	}

	ctx, stop := commandContext()
	defer stop()
	res, err := t.Play(ctx)
	if err != nil {
		return tournamentError(err)
	}

	out := outputDir(c.Out, s.config, "mixture", desc.NPlayers())
	return saveAndPrint(res, out, writerOr(c.stdout))
}

// BatchFairCommand handles 'dilemma batch-fair' subcommand
type BatchFairCommand struct {
	data.RunOptions `group:"Run Options"`
	Catalog         string `long:"catalog" description:"Also store the summaries in this SQLite database"`

	Global *GlobalOptions `no-flag:"true"`
	stdout io.Writer
}

// Execute implements the Command interface for BatchFairCommand
func (c *BatchFairCommand) Execute(args []string) error {
	s, err := openSession(c.Global, &c.RunOptions, os.Stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, err := batchConfig(s.config)
	if err != nil {
		return err
	}
	specs, err := loadSpecs(s.config.Tournament)
	if err != nil {
		return err
	}
	batch, err := tournament.NewBatchFair(cfg, specs, s.options()...)
	if err != nil {
		return tournamentError(err)
	}
	return runBatch(s, batch, c.Catalog, writerOr(c.stdout))
}

// BatchMixtureCommand handles 'dilemma batch-mixture' subcommand
type BatchMixtureCommand struct {
	data.RunOptions `group:"Run Options"`
	Catalog         string `long:"catalog" description:"Also store the summaries in this SQLite database"`

	Global *GlobalOptions `no-flag:"true"`
	stdout io.Writer
}

// Execute implements the Command interface for BatchMixtureCommand
func (c *BatchMixtureCommand) Execute(args []string) error {
	s, err := openSession(c.Global, &c.RunOptions, os.Stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, err := batchConfig(s.config)
	if err != nil {
		return err
	}
	specs, err := loadSpecs(s.config.Tournament)
	if err != nil {
		return err
	}
	cooperative, aggressive := strategy.Partition(specs)
	batch, err := tournament.NewBatchMixture(cfg, cooperative, aggressive, s.options()...)
	if err != nil {
		return tournamentError(err)
	}
	return runBatch(s, batch, c.Catalog, writerOr(c.stdout))
}

// ShowCommand handles 'dilemma show' subcommand
type ShowCommand struct {
	Dir   string `long:"dir" short:"d" description:"Results directory holding results.json" required:"true"`
	Plain bool   `long:"plain" description:"Print a text report instead of opening the viewer"`

	Global *GlobalOptions `no-flag:"true"`
	stdout io.Writer
}

// Execute implements the Command interface for ShowCommand
func (c *ShowCommand) Execute(args []string) error {
	engine, err := ratingEngine(c.Global)
	if err != nil {
		return err
	}
	res, err := loadResults(c.Dir)
	if err != nil {
		return err
	}

	if c.Plain {
		exporter := journal.NewExporter(engine)
		options := journal.ExportOptions{Format: journal.FormatText, IncludeRatings: true}
		if err := exporter.ExportReport(res, writerOr(c.stdout), options); err != nil {
			return &CLIError{Code: ExitExportError, Message: fmt.Sprintf("Failed to render report: %v", err)}
		}
		return nil
	}

	viewer, err := tui.NewViewer(res, tui.Options{Engine: engine, ExportDir: c.Dir, Source: c.Dir})
	if err != nil {
		return &CLIError{Code: ExitValidationError, Message: fmt.Sprintf("Failed to open viewer: %v", err)}
	}
	return viewer.Run()
}

// ExportCommand handles 'dilemma export' subcommand
type ExportCommand struct {
	Dir            string `long:"dir" short:"d" description:"Results directory (a batch directory for sqlite)" required:"true"`
	Output         string `long:"output" short:"o" description:"Output file path"`
	Format         string `long:"format" description:"Export format (csv/json/text/sqlite)" default:"csv"`
	IncludeRatings bool   `long:"include-ratings" description:"Include Elo ratings of fair results"`
	IncludeMatches bool   `long:"include-matches" description:"Include the match log in JSON exports"`
	ID             string `long:"id" description:"Catalog id of a single results directory (default: directory name)"`

	Global *GlobalOptions `no-flag:"true"`
	stdout io.Writer
}

// Execute implements the Command interface for ExportCommand
func (c *ExportCommand) Execute(args []string) error {
	engine, err := ratingEngine(c.Global)
	if err != nil {
		return err
	}
	if c.Format == FormatSQLite {
		return c.exportCatalog(engine)
	}

	format, err := journal.ParseFormat(c.Format)
	if err != nil {
		return &CLIError{
			Code:        ExitValidationError,
			Message:     err.Error(),
			Suggestions: []string{"Use one of csv, json, text or sqlite"},
		}
	}
	res, err := loadResults(c.Dir)
	if err != nil {
		return err
	}

	outputFile := c.Output
	if outputFile == "" {
		ext := string(format)
		if format == journal.FormatText {
			ext = "txt"
		}
		outputFile = filepath.Join(c.Dir, "summary_export."+ext)
	}

	options := journal.ExportOptions{
		Format:         format,
		IncludeRatings: c.IncludeRatings,
		IncludeMatches: c.IncludeMatches,
	}
	if err := journal.NewExporter(engine).ExportToFile(res, outputFile, options); err != nil {
		return &CLIError{
			Code:    ExitExportError,
			Message: fmt.Sprintf("Export failed: %v", err),
			Details: map[string]any{"output": outputFile},
		}
	}

	fmt.Fprintf(writerOr(c.stdout), "Results exported to: %s\n", outputFile)
	return nil
}

func (c *ExportCommand) exportCatalog(engine *elo.Engine) error {
	outputFile := c.Output
	if outputFile == "" {
		outputFile = filepath.Join(c.Dir, "catalog.db")
	}

	ctx, stop := commandContext()
	defer stop()

	cat := catalog.New(outputFile)
	if err := cat.Init(ctx); err != nil {
		return &CLIError{Code: ExitExportError, Message: fmt.Sprintf("Failed to open catalog: %v", err)}
	}
	defer cat.Close()

	if data.Exists(filepath.Join(c.Dir, tournament.BatchManifestFile)) {
		batch, err := tournament.LoadBatch(c.Dir)
		if err != nil {
			return &CLIError{Code: ExitFileError, Message: fmt.Sprintf("Failed to load batch: %v", err)}
		}
		if err := cat.SaveBatch(ctx, batch, engine); err != nil {
			return &CLIError{Code: ExitExportError, Message: fmt.Sprintf("Failed to store batch: %v", err)}
		}
		fmt.Fprintf(writerOr(c.stdout), "Stored %d group sizes of run %s in %s\n", len(batch.Results), batch.RunID, outputFile)
		return nil
	}

	res, err := loadResults(c.Dir)
	if err != nil {
		return err
	}
	id := c.ID
	if id == "" {
		id = filepath.Base(filepath.Clean(c.Dir))
	}
	if err := cat.Save(ctx, id, res, engine); err != nil {
		return &CLIError{Code: ExitExportError, Message: fmt.Sprintf("Failed to store results: %v", err)}
	}
	fmt.Fprintf(writerOr(c.stdout), "Stored %s as %q in %s\n", res.ResultType(), id, outputFile)
	return nil
}

// SchellingCommand handles 'dilemma schelling' subcommand
type SchellingCommand struct {
	Dir    string `long:"dir" short:"d" description:"Mixture results directory" required:"true"`
	Output string `long:"output" short:"o" description:"Output CSV file, '-' for stdout (default <dir>/schelling.csv)"`

	Global *GlobalOptions `no-flag:"true"`
	stdout io.Writer
}

// Execute implements the Command interface for SchellingCommand
func (c *SchellingCommand) Execute(args []string) error {
	res, err := tournament.LoadMixture(c.Dir)
	if err != nil {
		return &CLIError{
			Code:    ExitFileError,
			Message: fmt.Sprintf("Failed to load mixture results: %v", err),
			Details: map[string]any{"directory": c.Dir},
			Suggestions: []string{
				"Schelling data exists for mixture sweeps only",
				"Point --dir at a group_<N> directory of a batch-mixture run",
			},
		}
	}

	exporter := journal.NewExporter(nil)
	if c.Output == "-" {
		return exportSchelling(exporter, res, writerOr(c.stdout))
	}

	outputFile := c.Output
	if outputFile == "" {
		outputFile = filepath.Join(c.Dir, "schelling.csv")
	}
	file, err := os.Create(outputFile)
	if err != nil {
		return &CLIError{Code: ExitFileError, Message: fmt.Sprintf("Failed to create %s: %v", outputFile, err)}
	}
	defer file.Close()
	if err := exportSchelling(exporter, res, file); err != nil {
		return err
	}
	fmt.Fprintf(writerOr(c.stdout), "Schelling data written to: %s\n", outputFile)
	return nil
}

func exportSchelling(exporter *journal.Exporter, res *tournament.MixtureResults, w io.Writer) error {
	if err := exporter.ExportSchelling(res, w); err != nil {
		return &CLIError{Code: ExitExportError, Message: fmt.Sprintf("Failed to export Schelling data: %v", err)}
	}
	return nil
}

// VerifyCommand handles 'dilemma verify' subcommand
type VerifyCommand struct {
	Journal string `long:"journal" short:"j" description:"Journal file (default <results-dir>/journal.jsonl)"`
	Stats   bool   `long:"stats" description:"Print event counts after a successful check"`

	Global *GlobalOptions `no-flag:"true"`
	stdout io.Writer
}

// Execute implements the Command interface for VerifyCommand
func (c *VerifyCommand) Execute(args []string) error {
	path := c.Journal
	if path == "" {
		config, err := loadConfiguration(c.Global, nil)
		if err != nil {
			return err
		}
		path = filepath.Join(config.Batch.ResultsDir, journal.FileName)
	}

	count, err := journal.Verify(path)
	if err != nil {
		return &CLIError{
			Code:    ExitValidationError,
			Message: fmt.Sprintf("Journal verification failed: %v", err),
			Details: map[string]any{"journal": path, "valid_entries": count},
		}
	}

	w := writerOr(c.stdout)
	fmt.Fprintf(w, "Journal OK: %d entries in %s\n", count, path)
	if !c.Stats {
		return nil
	}

	stats, err := journal.GetStatistics(path)
	if err != nil {
		return &CLIError{Code: ExitFileError, Message: fmt.Sprintf("Failed to read journal: %v", err)}
	}
	rows := [][]string{{"EVENT", "COUNT"}}
	for _, event := range []journal.EventType{
		journal.EventBatchStarted, journal.EventSizeStarted, journal.EventSizeSkipped,
		journal.EventSizeLoadFailed, journal.EventMatchCompleted, journal.EventMatchFailed,
		journal.EventSizeCompleted, journal.EventBatchCompleted,
	} {
		if n := stats.EventCounts[event]; n > 0 {
			rows = append(rows, []string{string(event), strconv.Itoa(n)})
		}
	}
	printTable(w, rows)
	fmt.Fprintf(w, "Runs: %d\n", len(stats.Runs))
	return nil
}

// InitCommand handles 'dilemma init' subcommand
type InitCommand struct {
	Force bool `long:"force" short:"f" description:"Overwrite an existing file"`

	Global *GlobalOptions `no-flag:"true"`
	stdout io.Writer
}

// Execute implements the Command interface for InitCommand
func (c *InitCommand) Execute(args []string) error {
	path := data.DefaultConfigFile
	if c.Global != nil && c.Global.Config != "" {
		path = c.Global.Config
	}
	if data.Exists(path) && !c.Force {
		return &CLIError{
			Code:        ExitFileError,
			Message:     fmt.Sprintf("Configuration file already exists: %s", path),
			Suggestions: []string{"Use --force to overwrite it"},
		}
	}
	if err := data.CreateDefaultConfig(path); err != nil {
		return &CLIError{Code: ExitFileError, Message: fmt.Sprintf("Failed to write configuration: %v", err)}
	}
	fmt.Fprintf(writerOr(c.stdout), "Default configuration written to: %s\n", path)
	return nil
}

// describeRun builds the game description and strategy pool of a single tournament
func describeRun(config *data.RunConfig) (game.Description, []strategy.Spec, error) {
	desc, err := config.Game.Description()
	if err != nil {
		return nil, nil, &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Invalid game: %v", err),
			Details: map[string]any{"game": config.Game.Type},
		}
	}
	specs, err := loadSpecs(config.Tournament)
	if err != nil {
		return nil, nil, err
	}
	return desc, specs, nil
}

func batchConfig(config *data.RunConfig) (*tournament.BatchConfig, error) {
	cfg, err := tournament.NewBatchConfig(config.Batch.GroupSizes, config.Tournament.Repetitions,
		config.Batch.ResultsDir, config.Game.Type)
	if err != nil {
		return nil, &CLIError{
			Code:        ExitConfigError,
			Message:     fmt.Sprintf("Invalid batch configuration: %v", err),
			Suggestions: []string{"Known games: " + fmt.Sprint(game.GeneratorNames())},
		}
	}
	cfg.MatchesPerMixture = config.Tournament.MatchesPerMixture
	cfg.Seed = config.Tournament.Seed
	cfg.Workers = config.Batch.Workers
	return cfg, nil
}

type batchRunner interface {
	Run(ctx context.Context) (*tournament.BatchResults, error)
}

func runBatch(s *session, batch batchRunner, catalogPath string, w io.Writer) error {
	ctx, stop := commandContext()
	defer stop()

	res, err := batch.Run(ctx)
	if err != nil {
		return tournamentError(err)
	}

	rows := [][]string{{"GROUP SIZE", "SOURCE", "MATCHES", "DIRECTORY"}}
	for _, n := range res.Sizes {
		r, ok := res.Get(n)
		if !ok {
			continue
		}
		source := "computed"
		if slices.Contains(res.Loaded, n) {
			source = "loaded"
		}
		rows = append(rows, []string{strconv.Itoa(n), source, strconv.Itoa(len(r.Matches())),
			filepath.Join(s.config.Batch.ResultsDir, fmt.Sprintf("group_%d", n))})
	}
	fmt.Fprintf(w, "%s run %s\n", res.Kind, res.RunID)
	printTable(w, rows)

	if catalogPath == "" {
		return nil
	}
	engine, err := newEngine(s.config.Elo)
	if err != nil {
		return &CLIError{Code: ExitConfigError, Message: fmt.Sprintf("Invalid Elo configuration: %v", err)}
	}
	cat := catalog.New(catalogPath)
	if err := cat.Init(ctx); err != nil {
		return &CLIError{Code: ExitExportError, Message: fmt.Sprintf("Failed to open catalog: %v", err)}
	}
	defer cat.Close()
	if err := cat.SaveBatch(ctx, res, engine); err != nil {
		return &CLIError{Code: ExitExportError, Message: fmt.Sprintf("Failed to store batch: %v", err)}
	}
	s.logger.Info().Str("catalog", catalogPath).Int("sizes", len(res.Results)).Msg("batch stored in catalog")
	return nil
}

func outputDir(flag string, config *data.RunConfig, kind string, players int) string {
	if flag != "" {
		return flag
	}
	return filepath.Join(config.Batch.ResultsDir, fmt.Sprintf("%s_%d", kind, players))
}

func saveAndPrint(res tournament.Results, dir string, w io.Writer) error {
	if err := res.Save(dir); err != nil {
		return &CLIError{
			Code:    ExitFileError,
			Message: fmt.Sprintf("Failed to save results: %v", err),
			Details: map[string]any{"directory": dir},
		}
	}
	printTable(w, res.Summary())
	fmt.Fprintf(w, "\n%d matches saved to %s\n", len(res.Matches()), dir)
	return nil
}

func loadResults(dir string) (tournament.Results, error) {
	res, err := tournament.Load(dir)
	if err != nil {
		return nil, &CLIError{
			Code:    ExitFileError,
			Message: fmt.Sprintf("Failed to load results: %v", err),
			Details: map[string]any{"directory": dir},
			Suggestions: []string{
				"Point --dir at a directory holding results.json",
				"Batch runs keep one directory per group size, e.g. results/group_4",
			},
		}
	}
	return res, nil
}

// ratingEngine builds the Elo engine from the configuration; an unreadable
// configuration falls back to the defaults
func ratingEngine(global *GlobalOptions) (*elo.Engine, error) {
	config, err := loadConfiguration(global, nil)
	if err != nil {
		defaults := data.DefaultRunConfig()
		config = &defaults
	}
	engine, err := newEngine(config.Elo)
	if err != nil {
		return nil, &CLIError{Code: ExitConfigError, Message: fmt.Sprintf("Invalid Elo configuration: %v", err)}
	}
	return engine, nil
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
