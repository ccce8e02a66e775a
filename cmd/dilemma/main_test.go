package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pashagolub/dilemma/pkg/catalog"
	"github.com/pashagolub/dilemma/pkg/data"
	"github.com/pashagolub/dilemma/pkg/journal"
	"github.com/pashagolub/dilemma/pkg/tournament"
)

func noConfig() *GlobalOptions {
	return &GlobalOptions{NoConfig: true}
}

// runOptions describes a small public goods run writing into dir
func runOptions(dir string) data.RunOptions {
	return data.RunOptions{
		Game:              "public_goods",
		Players:           3,
		Rounds:            3,
		Repetitions:       2,
		MatchesPerMixture: 2,
		Seed:              7,
		Copies:            2,
		ResultsDir:        dir,
		LogLevel:          "error",
	}
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var cliErr *CLIError
	require.True(t, errors.As(err, &cliErr), "expected a CLIError, got %T: %v", err, err)
	assert.Equal(t, code, cliErr.Code, cliErr.Message)
}

func TestFormatErrorJSON(t *testing.T) {
	out := formatErrorJSON(&CLIError{
		Code:        ExitFileError,
		Message:     "Failed to load results",
		Details:     map[string]any{"directory": "results/group_4"},
		Suggestions: []string{"Check the path"},
	})

	var decoded struct {
		Error struct {
			Code        int            `json:"code"`
			Message     string         `json:"message"`
			Details     map[string]any `json:"details"`
			Suggestions []string       `json:"suggestions"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, int(ExitFileError), decoded.Error.Code)
	assert.Equal(t, "Failed to load results", decoded.Error.Message)
	assert.Equal(t, "results/group_4", decoded.Error.Details["directory"])
	assert.Equal(t, []string{"Check the path"}, decoded.Error.Suggestions)

	bare := formatErrorJSON(&CLIError{Code: ExitConfigError, Message: "boom"})
	assert.NotContains(t, bare, "details")
	assert.NotContains(t, bare, "suggestions")
}

func TestRun(t *testing.T) {
	t.Run("no command", func(t *testing.T) {
		requireCode(t, run([]string{}), ExitConfigError)
	})

	t.Run("version without command", func(t *testing.T) {
		assert.NoError(t, run([]string{"--version"}))
	})

	t.Run("unknown command", func(t *testing.T) {
		requireCode(t, run([]string{"tournament"}), ExitConfigError)
	})

	t.Run("help", func(t *testing.T) {
		assert.NoError(t, run([]string{"--help"}))
		assert.NoError(t, run([]string{"fair", "--help"}))
	})

	t.Run("flags reach the command", func(t *testing.T) {
		dir := t.TempDir()
		err := run([]string{"--no-config", "fair", "-n", "3", "--rounds", "2", "-r", "1",
			"--copies", "1", "-o", dir, "--log-level", "error", "--no-journal"})
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(dir, "fair_3", "results.json"))
		assert.NoFileExists(t, filepath.Join(dir, journal.FileName))
	})
}

func TestShowVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, showVersion(&buf))
	assert.Contains(t, buf.String(), "dilemma "+Version)
	assert.Contains(t, buf.String(), "Git Commit: "+GitCommit)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(data.LogConfig{Level: "warn", Format: "json"}, false, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Str("size", "4").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"shown"`)

	buf.Reset()
	verbose := newLogger(data.LogConfig{Level: "warn", Format: "console"}, true, &buf)
	verbose.Debug().Msg("details")
	assert.Contains(t, buf.String(), "details")
}

func TestFairCommand(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	cmd := &FairCommand{RunOptions: runOptions(dir), Global: noConfig(), stdout: &out}
	require.NoError(t, cmd.Execute(nil))

	resultsDir := filepath.Join(dir, "fair_3")
	res, err := tournament.LoadFair(resultsDir)
	require.NoError(t, err)
	assert.Len(t, res.PlayerIDs(), 12)
	assert.Equal(t, 2, res.GamesPlayed())
	assert.FileExists(t, filepath.Join(resultsDir, "summary.csv"))
	assert.Contains(t, out.String(), "mean_payoff")
	assert.Contains(t, out.String(), "8 matches saved to "+resultsDir)

	count, err := journal.Verify(filepath.Join(dir, journal.FileName))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, uint64(8), "one entry per match at least")

	t.Run("custom output directory", func(t *testing.T) {
		out := filepath.Join(dir, "custom")
		cmd := &FairCommand{RunOptions: runOptions(dir), Out: out, Global: noConfig(), stdout: &bytes.Buffer{}}
		require.NoError(t, cmd.Execute(nil))
		assert.FileExists(t, filepath.Join(out, "results.json"))
	})
}

func TestFairCommand_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *data.RunOptions)
		code   ErrorCode
	}{
		{
			name:   "uneven population",
			modify: func(o *data.RunOptions) { o.Players = 5; o.Copies = 1 },
			code:   ExitTournamentError,
		},
		{
			name:   "unknown game",
			modify: func(o *data.RunOptions) { o.Game = "prisoners_dilemma" },
			code:   ExitConfigError,
		},
		{
			name:   "missing roster",
			modify: func(o *data.RunOptions) { o.Roster = "no_such_roster.yaml" },
			code:   ExitFileError,
		},
		{
			name:   "bad log level",
			modify: func(o *data.RunOptions) { o.LogLevel = "loud" },
			code:   ExitConfigError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := runOptions(t.TempDir())
			opts.NoJournal = true
			tt.modify(&opts)
			cmd := &FairCommand{RunOptions: opts, Global: noConfig(), stdout: &bytes.Buffer{}}
			requireCode(t, cmd.Execute(nil), tt.code)
		})
	}
}

func TestFairCommand_Roster(t *testing.T) {
	dir := t.TempDir()
	roster := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(roster, []byte(`strategies:
  - label: always_cooperate
    count: 2
  - label: always_defect
    count: 2
`), 0644))

	opts := runOptions(dir)
	opts.Players = 2
	opts.Roster = roster
	cmd := &FairCommand{RunOptions: opts, Global: noConfig(), stdout: &bytes.Buffer{}}
	require.NoError(t, cmd.Execute(nil))

	res, err := tournament.LoadFair(filepath.Join(dir, "fair_2"))
	require.NoError(t, err)
	assert.Len(t, res.PlayerIDs(), 4)
}

func TestMixtureCommand(t *testing.T) {
	dir := t.TempDir()
	opts := runOptions(dir)
	opts.Copies = 1
	var out bytes.Buffer
	cmd := &MixtureCommand{RunOptions: opts, Global: noConfig(), stdout: &out}
	require.NoError(t, cmd.Execute(nil))

	resultsDir := filepath.Join(dir, "mixture_3")
	res, err := tournament.LoadMixture(resultsDir)
	require.NoError(t, err)
	assert.Len(t, res.Table(), 4)
	assert.Equal(t, 2, res.MatchesPerMixture())
	assert.Contains(t, out.String(), "avg_social_welfare")

	t.Run("schelling to stdout", func(t *testing.T) {
		var buf bytes.Buffer
		cmd := &SchellingCommand{Dir: resultsDir, Output: "-", Global: noConfig(), stdout: &buf}
		require.NoError(t, cmd.Execute(nil))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		assert.Len(t, lines, 5, "header plus one line per number of other cooperators")
	})

	t.Run("schelling to file", func(t *testing.T) {
		cmd := &SchellingCommand{Dir: resultsDir, Global: noConfig(), stdout: &bytes.Buffer{}}
		require.NoError(t, cmd.Execute(nil))
		assert.FileExists(t, filepath.Join(resultsDir, "schelling.csv"))
	})

	t.Run("schelling needs mixture results", func(t *testing.T) {
		fairDir := t.TempDir()
		fair := &FairCommand{RunOptions: runOptions(fairDir), Global: noConfig(), stdout: &bytes.Buffer{}}
		require.NoError(t, fair.Execute(nil))
		cmd := &SchellingCommand{Dir: filepath.Join(fairDir, "fair_3"), Global: noConfig(), stdout: &bytes.Buffer{}}
		requireCode(t, cmd.Execute(nil), ExitFileError)
	})
}

func TestBatchFairCommand(t *testing.T) {
	dir := t.TempDir()
	opts := runOptions(dir)
	opts.GroupSizes = "2,3"
	opts.Repetitions = 1
	dbPath := filepath.Join(dir, "catalog.db")

	var first bytes.Buffer
	cmd := &BatchFairCommand{RunOptions: opts, Catalog: dbPath, Global: noConfig(), stdout: &first}
	require.NoError(t, cmd.Execute(nil))
	assert.Contains(t, first.String(), "computed")
	assert.NotContains(t, first.String(), "loaded")
	assert.FileExists(t, filepath.Join(dir, tournament.BatchManifestFile))
	assert.FileExists(t, filepath.Join(dir, "group_2", "results.json"))
	assert.FileExists(t, filepath.Join(dir, "group_3", "results.json"))

	cat := catalog.New(dbPath)
	require.NoError(t, cat.Init(t.Context()))
	sizes, err := cat.GroupSizes(t.Context(), tournament.FairResultType)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, sizes)
	require.NoError(t, cat.Close())

	t.Run("rerun loads every size", func(t *testing.T) {
		var second bytes.Buffer
		cmd := &BatchFairCommand{RunOptions: opts, Global: noConfig(), stdout: &second}
		require.NoError(t, cmd.Execute(nil))
		assert.Contains(t, second.String(), "loaded")
		assert.NotContains(t, second.String(), "computed")
	})

	t.Run("pool too small", func(t *testing.T) {
		small := runOptions(t.TempDir())
		small.GroupSizes = "4"
		small.Copies = 1
		cmd := &BatchFairCommand{RunOptions: small, Global: noConfig(), stdout: &bytes.Buffer{}}
		requireCode(t, cmd.Execute(nil), ExitTournamentError)
	})
}

func TestBatchMixtureCommand(t *testing.T) {
	dir := t.TempDir()
	opts := runOptions(dir)
	opts.GroupSizes = "2"
	opts.Copies = 1

	cmd := &BatchMixtureCommand{RunOptions: opts, Global: noConfig(), stdout: &bytes.Buffer{}}
	require.NoError(t, cmd.Execute(nil))

	batch, err := tournament.LoadBatch(dir)
	require.NoError(t, err)
	assert.Equal(t, tournament.MixtureResultType, batch.Kind)
	res, ok := batch.Mixture(2)
	require.True(t, ok)
	assert.Len(t, res.Table(), 3)

	t.Run("export batch to sqlite", func(t *testing.T) {
		var out bytes.Buffer
		cmd := &ExportCommand{Dir: dir, Format: FormatSQLite, Global: noConfig(), stdout: &out}
		require.NoError(t, cmd.Execute(nil))
		assert.FileExists(t, filepath.Join(dir, "catalog.db"))
		assert.Contains(t, out.String(), "Stored 1 group sizes")
	})
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	fair := &FairCommand{RunOptions: runOptions(dir), Global: noConfig(), stdout: &bytes.Buffer{}}
	require.NoError(t, fair.Execute(nil))
	resultsDir := filepath.Join(dir, "fair_3")

	tests := []struct {
		format string
		file   string
	}{
		{format: "csv", file: "summary_export.csv"},
		{format: "json", file: "summary_export.json"},
		{format: "text", file: "summary_export.txt"},
		{format: "sqlite", file: "catalog.db"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cmd := &ExportCommand{Dir: resultsDir, Format: tt.format, IncludeRatings: true, Global: noConfig(), stdout: &bytes.Buffer{}}
			require.NoError(t, cmd.Execute(nil))
			assert.FileExists(t, filepath.Join(resultsDir, tt.file))
		})
	}

	t.Run("sqlite id defaults to directory name", func(t *testing.T) {
		cat := catalog.New(filepath.Join(resultsDir, "catalog.db"))
		require.NoError(t, cat.Init(t.Context()))
		defer cat.Close()
		entry, ok, err := cat.Get(t.Context(), "fair_3")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, tournament.FairResultType, entry.ResultType)
	})

	t.Run("json carries ratings", func(t *testing.T) {
		raw, err := os.ReadFile(filepath.Join(resultsDir, "summary_export.json"))
		require.NoError(t, err)
		var export journal.ResultsExport
		require.NoError(t, json.Unmarshal(raw, &export))
		assert.NotEmpty(t, export.Ratings)
	})

	t.Run("unsupported format", func(t *testing.T) {
		cmd := &ExportCommand{Dir: resultsDir, Format: "xml", Global: noConfig(), stdout: &bytes.Buffer{}}
		requireCode(t, cmd.Execute(nil), ExitValidationError)
	})

	t.Run("missing results", func(t *testing.T) {
		cmd := &ExportCommand{Dir: filepath.Join(dir, "nothing"), Format: "csv", Global: noConfig(), stdout: &bytes.Buffer{}}
		requireCode(t, cmd.Execute(nil), ExitFileError)
	})
}

func TestShowCommand_Plain(t *testing.T) {
	dir := t.TempDir()
	fair := &FairCommand{RunOptions: runOptions(dir), Global: noConfig(), stdout: &bytes.Buffer{}}
	require.NoError(t, fair.Execute(nil))

	var out bytes.Buffer
	cmd := &ShowCommand{Dir: filepath.Join(dir, "fair_3"), Plain: true, Global: noConfig(), stdout: &out}
	require.NoError(t, cmd.Execute(nil))
	assert.Contains(t, out.String(), "always_defect")

	missing := &ShowCommand{Dir: filepath.Join(dir, "missing"), Plain: true, Global: noConfig()}
	requireCode(t, missing.Execute(nil), ExitFileError)
}

func TestVerifyCommand(t *testing.T) {
	dir := t.TempDir()
	fair := &FairCommand{RunOptions: runOptions(dir), Global: noConfig(), stdout: &bytes.Buffer{}}
	require.NoError(t, fair.Execute(nil))
	path := filepath.Join(dir, journal.FileName)

	t.Run("intact journal with stats", func(t *testing.T) {
		var out bytes.Buffer
		cmd := &VerifyCommand{Journal: path, Stats: true, Global: noConfig(), stdout: &out}
		require.NoError(t, cmd.Execute(nil))
		assert.Contains(t, out.String(), "Journal OK")
		assert.Contains(t, out.String(), string(journal.EventMatchCompleted))
		assert.Contains(t, out.String(), "Runs: 1")
	})

	t.Run("tampered journal", func(t *testing.T) {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		tampered := filepath.Join(t.TempDir(), journal.FileName)
		require.NoError(t, os.WriteFile(tampered, bytes.Replace(raw, []byte(`"rep00_match0000"`), []byte(`"rep00_match9999"`), 1), 0644))

		cmd := &VerifyCommand{Journal: tampered, Global: noConfig(), stdout: &bytes.Buffer{}}
		requireCode(t, cmd.Execute(nil), ExitValidationError)
	})

	t.Run("missing journal", func(t *testing.T) {
		cmd := &VerifyCommand{Journal: filepath.Join(dir, "none.jsonl"), Global: noConfig(), stdout: &bytes.Buffer{}}
		requireCode(t, cmd.Execute(nil), ExitValidationError)
	})
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "dilemma.yaml")
	global := &GlobalOptions{Config: path}

	require.NoError(t, (&InitCommand{Global: global, stdout: &bytes.Buffer{}}).Execute(nil))
	loaded, err := data.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, data.DefaultRunConfig(), *loaded)

	requireCode(t, (&InitCommand{Global: global, stdout: &bytes.Buffer{}}).Execute(nil), ExitFileError)
	assert.NoError(t, (&InitCommand{Global: global, Force: true, stdout: &bytes.Buffer{}}).Execute(nil))
}
