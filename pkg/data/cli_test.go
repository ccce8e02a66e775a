package data

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunOptions(t *testing.T) {
	noFile := filepath.Join(t.TempDir(), "absent.yaml")

	tests := []struct {
		name    string
		args    []string
		check   func(t *testing.T, config *RunConfig, opts *RunOptions)
		wantErr bool
	}{
		{
			name: "defaults",
			args: nil,
			check: func(t *testing.T, config *RunConfig, opts *RunOptions) {
				assert.Equal(t, DefaultRunConfig(), *config)
			},
		},
		{
			name: "game and tournament flags",
			args: []string{"--game", "common_pool", "-n", "3", "--capacity", "75", "-r", "4", "--seed", "9"},
			check: func(t *testing.T, config *RunConfig, opts *RunOptions) {
				assert.Equal(t, "common_pool", config.Game.Type)
				assert.Equal(t, 3, config.Game.Players)
				assert.Equal(t, 75.0, config.Game.Capacity)
				assert.Equal(t, 4, config.Tournament.Repetitions)
				assert.Equal(t, uint64(9), config.Tournament.Seed)
				assert.Equal(t, "common_pool", opts.Game)
			},
		},
		{
			name: "batch flags",
			args: []string{"--sizes", "2,3,5", "-o", "out", "-w", "2", "--no-journal", "--log-level", "warn"},
			check: func(t *testing.T, config *RunConfig, opts *RunOptions) {
				assert.Equal(t, []int{2, 3, 5}, config.Batch.GroupSizes)
				assert.Equal(t, "out", config.Batch.ResultsDir)
				assert.Equal(t, 2, config.Batch.Workers)
				assert.False(t, config.Log.Journal)
				assert.Equal(t, "warn", config.Log.Level)
			},
		},
		{name: "unknown game", args: []string{"--game", "chicken"}, wantErr: true},
		{name: "bad sizes", args: []string{"--sizes", "2,x"}, wantErr: true},
		{name: "positional argument", args: []string{"extra"}, wantErr: true},
		{name: "unknown flag", args: []string{"--nope"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, opts, err := ParseRunOptions(tt.args, noFile)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, config)
				return
			}
			require.NoError(t, err)
			tt.check(t, config, opts)
		})
	}
}

func TestParseRunOptions_Help(t *testing.T) {
	config, opts, err := ParseRunOptions([]string{"--help"}, "")
	var flagsErr *flags.Error
	require.True(t, errors.As(err, &flagsErr))
	assert.Equal(t, flags.ErrHelp, flagsErr.Type)
	assert.Nil(t, config)
	assert.NotNil(t, opts)
}

func TestResolveConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dilemma.yaml")
	content := `
game:
  rounds: 20
tournament:
  repetitions: 3
  seed: 5
elo:
  k_factor: 24
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("DILEMMA_TOURNAMENT_REPETITIONS", "6")
	t.Setenv("DILEMMA_ELO_K_FACTOR", "16")

	config, err := ResolveConfig(path, false, &RunOptions{Repetitions: 8})
	require.NoError(t, err)
	assert.Equal(t, 20, config.Game.Rounds, "file")
	assert.Equal(t, uint64(5), config.Tournament.Seed, "file")
	assert.Equal(t, 16, config.Elo.KFactor, "environment beats file")
	assert.Equal(t, 8, config.Tournament.Repetitions, "flag beats environment")

	config, err = ResolveConfig(path, true, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultGameConfig().Rounds, config.Game.Rounds, "file skipped")
	assert.Equal(t, 6, config.Tournament.Repetitions, "environment still applies")
}

func TestResolveConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dilemma.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  workers: -2\n"), 0644))

	_, err := ResolveConfig(path, false, nil)
	assert.ErrorIs(t, err, ErrInvalidBatchConfig)
}

func TestApplyOverrides(t *testing.T) {
	config := DefaultRunConfig()
	require.NoError(t, ApplyOverrides(&config, &RunOptions{}))
	assert.Equal(t, DefaultRunConfig(), config, "empty options change nothing")

	require.NoError(t, ApplyOverrides(&config, &RunOptions{M: 2, K: 1.5, MatchesPerMixture: 3, Roster: "roster.yaml", LogFormat: "json"}))
	assert.Equal(t, 2, config.Game.M)
	assert.Equal(t, 1.5, config.Game.K)
	assert.Equal(t, 3, config.Tournament.MatchesPerMixture)
	assert.Equal(t, "roster.yaml", config.Tournament.Roster)
	assert.Equal(t, "json", config.Log.Format)

	assert.ErrorIs(t, ApplyOverrides(&config, &RunOptions{GroupSizes: ","}), ErrInvalidBatchConfig)
}

func TestGetConfigSearchPaths(t *testing.T) {
	paths := GetConfigSearchPaths("dilemma.yaml")
	require.NotEmpty(t, paths)
	assert.Equal(t, "dilemma.yaml", paths[0])
	assert.Equal(t, filepath.Join("/etc", "dilemma", "dilemma.yaml"), paths[len(paths)-1])
}

func TestCreateDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "dilemma.yaml")
	require.NoError(t, CreateDefaultConfig(path))

	config, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultRunConfig(), *config)
}
