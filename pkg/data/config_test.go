package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pashagolub/dilemma/pkg/game"
)

func TestDefaultConfigs(t *testing.T) {
	t.Run("DefaultRunConfig", func(t *testing.T) {
		config := DefaultRunConfig()

		assert.NotZero(t, config.Game)
		assert.NotZero(t, config.Tournament)
		assert.NotZero(t, config.Batch)
		assert.NotZero(t, config.Elo)
		assert.NotZero(t, config.Log)

		assert.NoError(t, config.Validate())
	})

	t.Run("DefaultGameConfig", func(t *testing.T) {
		config := DefaultGameConfig()

		assert.Equal(t, "public_goods", config.Type)
		assert.Equal(t, 4, config.Players)
		assert.Equal(t, game.DefaultRounds, config.Rounds)

		d, err := config.Description()
		require.NoError(t, err)
		assert.Equal(t, game.PublicGoodsType, d.TypeName())
		assert.Equal(t, 4, d.NPlayers())
	})

	t.Run("DefaultEloConfig", func(t *testing.T) {
		config := DefaultEloConfig()

		assert.Equal(t, 1500.0, config.InitialRating)
		assert.Equal(t, 32, config.KFactor)
		assert.Equal(t, 0.0, config.MinRating)
		assert.Equal(t, 3000.0, config.MaxRating)
		assert.NoError(t, config.Validate())
	})

	t.Run("DefaultLogConfig", func(t *testing.T) {
		config := DefaultLogConfig()

		assert.Equal(t, zerolog.InfoLevel, config.ZerologLevel())
		assert.True(t, config.Journal)
		assert.NoError(t, config.Validate())
	})
}

func TestGameConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *GameConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *GameConfig) {}},
		{name: "collective risk", mutate: func(c *GameConfig) { c.Type = "collective_risk"; c.M = 3 }},
		{name: "common pool", mutate: func(c *GameConfig) { c.Type = "common_pool"; c.Capacity = 50 }},
		{name: "unknown type", mutate: func(c *GameConfig) { c.Type = "chicken" }, wantErr: true},
		{name: "no players", mutate: func(c *GameConfig) { c.Players = 0 }, wantErr: true},
		{name: "negative k", mutate: func(c *GameConfig) { c.K = -1 }, wantErr: true},
		{name: "threshold above group", mutate: func(c *GameConfig) { c.Type = "collective_risk"; c.M = 5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultGameConfig()
			tt.mutate(&config)
			err := config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidGameConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGameConfig_DescriptionFor(t *testing.T) {
	config := GameConfig{Type: "collective_risk", Players: 4, Rounds: 7, K: 3}

	d, err := config.DescriptionFor(6)
	require.NoError(t, err)
	risk, ok := d.(game.CollectiveRisk)
	require.True(t, ok)
	assert.Equal(t, 6, risk.Players)
	assert.Equal(t, 7, risk.Rounds)
	assert.Equal(t, 3.0, risk.K)
	assert.Equal(t, 3, risk.M, "threshold falls back to the generator default")
}

func TestSectionValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *RunConfig)
		wantErr error
	}{
		{name: "zero repetitions", mutate: func(c *RunConfig) { c.Tournament.Repetitions = 0 }, wantErr: ErrInvalidTournamentConfig},
		{name: "zero matches per mixture", mutate: func(c *RunConfig) { c.Tournament.MatchesPerMixture = 0 }, wantErr: ErrInvalidTournamentConfig},
		{name: "no copies", mutate: func(c *RunConfig) { c.Tournament.Copies = 0 }, wantErr: ErrInvalidTournamentConfig},
		{name: "empty sizes", mutate: func(c *RunConfig) { c.Batch.GroupSizes = nil }, wantErr: ErrInvalidBatchConfig},
		{name: "negative size", mutate: func(c *RunConfig) { c.Batch.GroupSizes = []int{2, -4} }, wantErr: ErrInvalidBatchConfig},
		{name: "duplicate size", mutate: func(c *RunConfig) { c.Batch.GroupSizes = []int{2, 2} }, wantErr: ErrInvalidBatchConfig},
		{name: "blank results dir", mutate: func(c *RunConfig) { c.Batch.ResultsDir = "  " }, wantErr: ErrInvalidBatchConfig},
		{name: "negative workers", mutate: func(c *RunConfig) { c.Batch.Workers = -1 }, wantErr: ErrInvalidBatchConfig},
		{name: "k-factor too high", mutate: func(c *RunConfig) { c.Elo.KFactor = 101 }, wantErr: ErrInvalidEloConfig},
		{name: "inverted bounds", mutate: func(c *RunConfig) { c.Elo.MinRating = 3000 }, wantErr: ErrInvalidEloConfig},
		{name: "initial outside bounds", mutate: func(c *RunConfig) { c.Elo.InitialRating = 4000 }, wantErr: ErrInvalidEloConfig},
		{name: "unknown level", mutate: func(c *RunConfig) { c.Log.Level = "loud" }, wantErr: ErrInvalidLogConfig},
		{name: "unknown format", mutate: func(c *RunConfig) { c.Log.Format = "xml" }, wantErr: ErrInvalidLogConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultRunConfig()
			tt.mutate(&config)
			assert.ErrorIs(t, config.Validate(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Run("partial file is merged with defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dilemma.yaml")
		content := `
game:
  type: common_pool
  players: 3
  capacity: 90
batch:
  group_sizes: [3, 5]
log:
  level: debug
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		config, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "common_pool", config.Game.Type)
		assert.Equal(t, 90.0, config.Game.Capacity)
		assert.Equal(t, game.DefaultRounds, config.Game.Rounds)
		assert.Equal(t, []int{3, 5}, config.Batch.GroupSizes)
		assert.Equal(t, "results", config.Batch.ResultsDir)
		assert.Equal(t, 10, config.Tournament.Repetitions)
		assert.Equal(t, zerolog.DebugLevel, config.Log.ZerologLevel())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("game: [unclosed"), 0644))
		_, err := LoadFromFile(path)
		assert.ErrorIs(t, err, ErrConfigParseError)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("game:\n  type: chicken\n"), 0644))
		_, err := LoadFromFile(path)
		assert.ErrorIs(t, err, ErrInvalidGameConfig)
	})
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dilemma.yaml")
	config := DefaultRunConfig()
	config.Game.Type = "collective_risk"
	config.Game.M = 2
	config.Tournament.Seed = 7
	config.Batch.GroupSizes = []int{2, 3}

	require.NoError(t, config.SaveToFile(path))
	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config, *loaded)
}

func TestLoadWithEnvironment(t *testing.T) {
	t.Setenv("DILEMMA_GAME_TYPE", "collective_risk")
	t.Setenv("DILEMMA_GAME_PLAYERS", "6")
	t.Setenv("DILEMMA_TOURNAMENT_SEED", "123")
	t.Setenv("DILEMMA_BATCH_GROUP_SIZES", "2, 4,6")
	t.Setenv("DILEMMA_BATCH_WORKERS", "3")
	t.Setenv("DILEMMA_ELO_K_FACTOR", "16")
	t.Setenv("DILEMMA_LOG_JOURNAL", "false")
	t.Setenv("DILEMMA_TOURNAMENT_REPETITIONS", "not-a-number")

	config, err := LoadWithEnvironment(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "collective_risk", config.Game.Type)
	assert.Equal(t, 6, config.Game.Players)
	assert.Equal(t, uint64(123), config.Tournament.Seed)
	assert.Equal(t, []int{2, 4, 6}, config.Batch.GroupSizes)
	assert.Equal(t, 3, config.Batch.Workers)
	assert.Equal(t, 16, config.Elo.KFactor)
	assert.False(t, config.Log.Journal)
	assert.Equal(t, 10, config.Tournament.Repetitions, "unparsable values are ignored")
}

func TestParseGroupSizes(t *testing.T) {
	sizes, err := ParseGroupSizes("2,4, 8,")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 8}, sizes)

	_, err = ParseGroupSizes("2,four")
	assert.ErrorIs(t, err, ErrInvalidBatchConfig)

	_, err = ParseGroupSizes(" , ")
	assert.ErrorIs(t, err, ErrInvalidBatchConfig)
}
