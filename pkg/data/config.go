package data

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/pashagolub/dilemma/pkg/game"
)

// Error types for configuration validation
var (
	ErrInvalidGameConfig       = errors.New("invalid game configuration")
	ErrInvalidTournamentConfig = errors.New("invalid tournament configuration")
	ErrInvalidBatchConfig      = errors.New("invalid batch configuration")
	ErrInvalidEloConfig        = errors.New("invalid Elo configuration")
	ErrInvalidLogConfig        = errors.New("invalid log configuration")
	ErrConfigNotFound          = errors.New("configuration file not found")
	ErrConfigParseError        = errors.New("failed to parse configuration file")
)

// DefaultConfigFile is the configuration file looked up when none is given
const DefaultConfigFile = "dilemma.yaml"

// RunConfig is the top-level configuration of a tournament run
type RunConfig struct {
	Game       GameConfig       `yaml:"game" json:"game"`
	Tournament TournamentConfig `yaml:"tournament" json:"tournament"`
	Batch      BatchConfig      `yaml:"batch" json:"batch"`
	Elo        EloConfig        `yaml:"elo" json:"elo"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// GameConfig selects the social dilemma and its parameters. Zero parameters fall
// back to the defaults of the game's generator.
type GameConfig struct {
	Type     string  `yaml:"type" json:"type"`         // public_goods, collective_risk or common_pool
	Players  int     `yaml:"players" json:"players"`   // group size of a single tournament
	Rounds   int     `yaml:"rounds" json:"rounds"`     // rounds per match
	K        float64 `yaml:"k" json:"k"`               // multiplier or risk reward
	M        int     `yaml:"m" json:"m"`               // collective risk threshold
	Capacity float64 `yaml:"capacity" json:"capacity"` // common pool capacity
}

// TournamentConfig holds the parameters shared by fair and mixture tournaments
type TournamentConfig struct {
	Repetitions       int    `yaml:"repetitions" json:"repetitions"`
	MatchesPerMixture int    `yaml:"matches_per_mixture" json:"matches_per_mixture"`
	Seed              uint64 `yaml:"seed" json:"seed"`
	Roster            string `yaml:"roster" json:"roster"` // YAML strategy roster, empty for the built-ins
	Copies            int    `yaml:"copies" json:"copies"` // copies of each built-in when no roster is given
}

// BatchConfig holds the batch sweep settings
type BatchConfig struct {
	GroupSizes []int  `yaml:"group_sizes" json:"group_sizes"`
	ResultsDir string `yaml:"results_dir" json:"results_dir"`
	Workers    int    `yaml:"workers" json:"workers"`
}

// EloConfig holds settings for strategy ratings
type EloConfig struct {
	InitialRating float64 `yaml:"initial_rating" json:"initial_rating"` // Starting rating (default 1500)
	KFactor       int     `yaml:"k_factor" json:"k_factor"`             // Rating change sensitivity (default 32)
	MinRating     float64 `yaml:"min_rating" json:"min_rating"`
	MaxRating     float64 `yaml:"max_rating" json:"max_rating"`
}

// LogConfig controls the logger and the match journal
type LogConfig struct {
	Level   string `yaml:"level" json:"level"`     // zerolog level name
	Format  string `yaml:"format" json:"format"`   // console or json
	Journal bool   `yaml:"journal" json:"journal"` // write journal.jsonl next to the results
}

// DefaultRunConfig returns a configuration with sensible defaults
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Game:       DefaultGameConfig(),
		Tournament: DefaultTournamentConfig(),
		Batch:      DefaultBatchConfig(),
		Elo:        DefaultEloConfig(),
		Log:        DefaultLogConfig(),
	}
}

// DefaultGameConfig returns a four player public goods game
func DefaultGameConfig() GameConfig {
	return GameConfig{
		Type:    "public_goods",
		Players: 4,
		Rounds:  game.DefaultRounds,
	}
}

// DefaultTournamentConfig returns tournament defaults
func DefaultTournamentConfig() TournamentConfig {
	return TournamentConfig{
		Repetitions:       10,
		MatchesPerMixture: 10,
		Seed:              42,
		Copies:            4,
	}
}

// DefaultBatchConfig returns batch defaults
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		GroupSizes: []int{2, 4, 6, 8},
		ResultsDir: "results",
		Workers:    1,
	}
}

// DefaultEloConfig returns Elo calculation defaults
func DefaultEloConfig() EloConfig {
	return EloConfig{
		InitialRating: 1500.0,
		KFactor:       32,
		MinRating:     0.0,
		MaxRating:     3000.0,
	}
}

// DefaultLogConfig returns logging defaults
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:   "info",
		Format:  "console",
		Journal: true,
	}
}

// Validate checks that the run configuration is valid
func (rc *RunConfig) Validate() error {
	if err := rc.Game.Validate(); err != nil {
		return fmt.Errorf("game config validation failed: %w", err)
	}
	if err := rc.Tournament.Validate(); err != nil {
		return fmt.Errorf("tournament config validation failed: %w", err)
	}
	if err := rc.Batch.Validate(); err != nil {
		return fmt.Errorf("batch config validation failed: %w", err)
	}
	if err := rc.Elo.Validate(); err != nil {
		return fmt.Errorf("Elo config validation failed: %w", err)
	}
	if err := rc.Log.Validate(); err != nil {
		return fmt.Errorf("log config validation failed: %w", err)
	}
	return nil
}

// Validate checks that the game can be built from the configured parameters
func (g *GameConfig) Validate() error {
	if !slices.Contains(game.GeneratorNames(), g.Type) {
		return fmt.Errorf("%w: type %q must be one of: %s", ErrInvalidGameConfig, g.Type, strings.Join(game.GeneratorNames(), ", "))
	}
	if g.Players <= 0 {
		return fmt.Errorf("%w: players must be positive, got %d", ErrInvalidGameConfig, g.Players)
	}
	if g.Rounds < 0 || g.M < 0 || g.K < 0 || g.Capacity < 0 {
		return fmt.Errorf("%w: rounds, k, m and capacity cannot be negative", ErrInvalidGameConfig)
	}
	if _, err := g.Description(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGameConfig, err)
	}
	return nil
}

// Description builds the game description for the configured group size
func (g *GameConfig) Description() (game.Description, error) {
	return g.DescriptionFor(g.Players)
}

// DescriptionFor builds the game description for a given group size, keeping the
// configured rounds and parameters
func (g *GameConfig) DescriptionFor(players int) (game.Description, error) {
	return game.NewDescription(g.Type, players, g.Rounds, g.K, g.M, g.Capacity)
}

// Validate checks that tournament configuration is valid
func (t *TournamentConfig) Validate() error {
	if t.Repetitions < 1 {
		return fmt.Errorf("%w: repetitions must be at least 1, got %d", ErrInvalidTournamentConfig, t.Repetitions)
	}
	if t.MatchesPerMixture < 1 {
		return fmt.Errorf("%w: matches_per_mixture must be at least 1, got %d", ErrInvalidTournamentConfig, t.MatchesPerMixture)
	}
	if t.Roster == "" && t.Copies < 1 {
		return fmt.Errorf("%w: copies must be at least 1 without a roster, got %d", ErrInvalidTournamentConfig, t.Copies)
	}
	return nil
}

// Validate checks that batch configuration is valid
func (b *BatchConfig) Validate() error {
	if len(b.GroupSizes) == 0 {
		return fmt.Errorf("%w: group_sizes cannot be empty", ErrInvalidBatchConfig)
	}
	seen := make(map[int]bool, len(b.GroupSizes))
	for _, n := range b.GroupSizes {
		if n <= 0 {
			return fmt.Errorf("%w: group size %d must be positive", ErrInvalidBatchConfig, n)
		}
		if seen[n] {
			return fmt.Errorf("%w: duplicate group size %d", ErrInvalidBatchConfig, n)
		}
		seen[n] = true
	}
	if strings.TrimSpace(b.ResultsDir) == "" {
		return fmt.Errorf("%w: results_dir is required", ErrInvalidBatchConfig)
	}
	if b.Workers < 0 {
		return fmt.Errorf("%w: workers cannot be negative, got %d", ErrInvalidBatchConfig, b.Workers)
	}
	return nil
}

// Validate checks that Elo configuration is valid
func (e *EloConfig) Validate() error {
	if e.KFactor <= 0 {
		return fmt.Errorf("%w: k_factor must be positive, got %d", ErrInvalidEloConfig, e.KFactor)
	}
	if e.KFactor > 100 {
		return fmt.Errorf("%w: k_factor %d is unusually high (typical range: 10-50)", ErrInvalidEloConfig, e.KFactor)
	}
	if e.MinRating >= e.MaxRating {
		return fmt.Errorf("%w: min_rating (%.2f) must be less than max_rating (%.2f)", ErrInvalidEloConfig, e.MinRating, e.MaxRating)
	}
	if e.InitialRating < e.MinRating || e.InitialRating > e.MaxRating {
		return fmt.Errorf("%w: initial_rating (%.2f) must be between min_rating (%.2f) and max_rating (%.2f)",
			ErrInvalidEloConfig, e.InitialRating, e.MinRating, e.MaxRating)
	}
	return nil
}

// Validate checks that log configuration is valid
func (l *LogConfig) Validate() error {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("%w: level %q: %v", ErrInvalidLogConfig, l.Level, err)
	}
	if l.Format != "console" && l.Format != "json" {
		return fmt.Errorf("%w: format '%s' must be 'console' or 'json'", ErrInvalidLogConfig, l.Format)
	}
	return nil
}

// ZerologLevel returns the parsed level, falling back to info
func (l *LogConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*RunConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, filename)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var config RunConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParseError, filename, err)
	}

	config = mergeWithDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filename, err)
	}

	return &config, nil
}

// LoadWithEnvironment loads configuration from file and applies environment variable overrides.
// A missing file is not an error.
func LoadWithEnvironment(filename string) (*RunConfig, error) {
	config := DefaultRunConfig()

	if filename != "" {
		fileConfig, err := LoadFromFile(filename)
		if err != nil && !errors.Is(err, ErrConfigNotFound) {
			return nil, err
		}
		if err == nil {
			config = *fileConfig
		}
	}

	applyEnvironmentOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid final configuration: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a YAML file
func (rc *RunConfig) SaveToFile(filename string) error {
	data, err := yaml.Marshal(rc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}

// mergeWithDefaults fills in missing values with defaults
func mergeWithDefaults(config RunConfig) RunConfig {
	defaults := DefaultRunConfig()

	if config.Game.Type == "" {
		config.Game.Type = defaults.Game.Type
	}
	if config.Game.Players == 0 {
		config.Game.Players = defaults.Game.Players
	}
	if config.Game.Rounds == 0 {
		config.Game.Rounds = defaults.Game.Rounds
	}

	if config.Tournament.Repetitions == 0 {
		config.Tournament.Repetitions = defaults.Tournament.Repetitions
	}
	if config.Tournament.MatchesPerMixture == 0 {
		config.Tournament.MatchesPerMixture = defaults.Tournament.MatchesPerMixture
	}
	if config.Tournament.Copies == 0 {
		config.Tournament.Copies = defaults.Tournament.Copies
	}

	if len(config.Batch.GroupSizes) == 0 {
		config.Batch.GroupSizes = defaults.Batch.GroupSizes
	}
	if config.Batch.ResultsDir == "" {
		config.Batch.ResultsDir = defaults.Batch.ResultsDir
	}
	if config.Batch.Workers == 0 {
		config.Batch.Workers = defaults.Batch.Workers
	}

	if config.Elo.InitialRating == 0 {
		config.Elo.InitialRating = defaults.Elo.InitialRating
	}
	if config.Elo.KFactor == 0 {
		config.Elo.KFactor = defaults.Elo.KFactor
	}
	if config.Elo.MaxRating == 0 {
		config.Elo.MaxRating = defaults.Elo.MaxRating
	}

	if config.Log.Level == "" {
		config.Log.Level = defaults.Log.Level
	}
	if config.Log.Format == "" {
		config.Log.Format = defaults.Log.Format
	}

	return config
}

// applyEnvironmentOverrides applies DILEMMA_* environment variable overrides
func applyEnvironmentOverrides(config *RunConfig) {
	// Game configuration overrides
	if val := os.Getenv("DILEMMA_GAME_TYPE"); val != "" {
		config.Game.Type = val
	}
	if val := os.Getenv("DILEMMA_GAME_PLAYERS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Game.Players = parsed
		}
	}
	if val := os.Getenv("DILEMMA_GAME_ROUNDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Game.Rounds = parsed
		}
	}
	if val := os.Getenv("DILEMMA_GAME_K"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Game.K = parsed
		}
	}
	if val := os.Getenv("DILEMMA_GAME_M"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Game.M = parsed
		}
	}
	if val := os.Getenv("DILEMMA_GAME_CAPACITY"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Game.Capacity = parsed
		}
	}

	// Tournament configuration overrides
	if val := os.Getenv("DILEMMA_TOURNAMENT_REPETITIONS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Tournament.Repetitions = parsed
		}
	}
	if val := os.Getenv("DILEMMA_TOURNAMENT_MATCHES_PER_MIXTURE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Tournament.MatchesPerMixture = parsed
		}
	}
	if val := os.Getenv("DILEMMA_TOURNAMENT_SEED"); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 64); err == nil {
			config.Tournament.Seed = parsed
		}
	}
	if val := os.Getenv("DILEMMA_TOURNAMENT_ROSTER"); val != "" {
		config.Tournament.Roster = val
	}
	if val := os.Getenv("DILEMMA_TOURNAMENT_COPIES"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Tournament.Copies = parsed
		}
	}

	// Batch configuration overrides
	if val := os.Getenv("DILEMMA_BATCH_GROUP_SIZES"); val != "" {
		if parsed, err := ParseGroupSizes(val); err == nil {
			config.Batch.GroupSizes = parsed
		}
	}
	if val := os.Getenv("DILEMMA_BATCH_RESULTS_DIR"); val != "" {
		config.Batch.ResultsDir = val
	}
	if val := os.Getenv("DILEMMA_BATCH_WORKERS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Batch.Workers = parsed
		}
	}

	// Elo configuration overrides
	if val := os.Getenv("DILEMMA_ELO_INITIAL_RATING"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Elo.InitialRating = parsed
		}
	}
	if val := os.Getenv("DILEMMA_ELO_K_FACTOR"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Elo.KFactor = parsed
		}
	}
	if val := os.Getenv("DILEMMA_ELO_MIN_RATING"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Elo.MinRating = parsed
		}
	}
	if val := os.Getenv("DILEMMA_ELO_MAX_RATING"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Elo.MaxRating = parsed
		}
	}

	// Log configuration overrides
	if val := os.Getenv("DILEMMA_LOG_LEVEL"); val != "" {
		config.Log.Level = val
	}
	if val := os.Getenv("DILEMMA_LOG_FORMAT"); val != "" {
		config.Log.Format = val
	}
	if val := os.Getenv("DILEMMA_LOG_JOURNAL"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.Log.Journal = parsed
		}
	}
}

// ParseGroupSizes parses a comma separated list such as "2,4,6"
func ParseGroupSizes(s string) ([]int, error) {
	var sizes []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("%w: group size %q is not an integer", ErrInvalidBatchConfig, field)
		}
		sizes = append(sizes, n)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("%w: no group sizes in %q", ErrInvalidBatchConfig, s)
	}
	return sizes, nil
}
