package tournament

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/pashagolub/dilemma/pkg/game"
)

// Config bundles the game played by a tournament and how often it is repeated
type Config struct {
	GameDescription game.Description
	Repetitions     int
}

// Validate checks the description and the repetition count
func (c Config) Validate() error {
	if c.GameDescription == nil {
		return fmt.Errorf("%w: game description is required", ErrInvalidConfig)
	}
	if err := c.GameDescription.Validate(); err != nil {
		return err
	}
	if c.Repetitions < 1 {
		return fmt.Errorf("%w: repetitions must be at least 1, got %d", ErrInvalidConfig, c.Repetitions)
	}
	return nil
}

// GroupSize is the number of players in every match
func (c Config) GroupSize() int {
	if c.GameDescription == nil {
		return 0
	}
	return c.GameDescription.NPlayers()
}

// ToMap returns the JSON compatible form
// {game_description_type, game_description, repetitions}
func (c Config) ToMap() (map[string]any, error) {
	typeName, fields, err := game.MarshalDescription(c.GameDescription)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"game_description_type": typeName,
		"game_description":      fields,
		"repetitions":           c.Repetitions,
	}, nil
}

// ConfigFromMap rebuilds a Config produced by ToMap or decoded from JSON
func ConfigFromMap(m map[string]any) (Config, error) {
	typeName, ok := m["game_description_type"].(string)
	if !ok {
		return Config{}, fmt.Errorf("%w: missing game_description_type", ErrInvalidConfig)
	}
	fields, ok := m["game_description"]
	if !ok {
		return Config{}, fmt.Errorf("%w: missing game_description", ErrInvalidConfig)
	}
	desc, err := game.UnmarshalDescription(typeName, fields)
	if err != nil {
		return Config{}, err
	}
	reps, err := intValue(m["repetitions"])
	if err != nil {
		return Config{}, fmt.Errorf("%w: repetitions: %v", ErrInvalidConfig, err)
	}

	cfg := Config{GameDescription: desc, Repetitions: reps}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(n)
	case nil:
		return 0, fmt.Errorf("missing value")
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

// configJSON is the persisted layout of a Config
type configJSON struct {
	GameDescriptionType string          `json:"game_description_type"`
	GameDescription     json.RawMessage `json:"game_description"`
	Repetitions         int             `json:"repetitions"`
}

// MarshalJSON writes the tagged config layout
func (c Config) MarshalJSON() ([]byte, error) {
	typeName, fields, err := game.MarshalDescription(c.GameDescription)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return json.Marshal(configJSON{GameDescriptionType: typeName, GameDescription: raw, Repetitions: c.Repetitions})
}

// UnmarshalJSON reads the tagged config layout and validates it
func (c *Config) UnmarshalJSON(b []byte) error {
	var cj configJSON
	if err := json.Unmarshal(b, &cj); err != nil {
		return err
	}
	desc, err := game.UnmarshalDescription(cj.GameDescriptionType, cj.GameDescription)
	if err != nil {
		return err
	}
	cfg := Config{GameDescription: desc, Repetitions: cj.Repetitions}
	if err := cfg.Validate(); err != nil {
		return err
	}
	*c = cfg
	return nil
}

// BatchConfig drives a tournament across several population sizes
type BatchConfig struct {
	GroupSizes        []int
	Repetitions       int
	MatchesPerMixture int // mixture batches only; falls back to Repetitions when zero
	ResultsDir        string
	GeneratorName     string
	Seed              uint64
	Workers           int // sizes computed concurrently; 1 keeps the run sequential

	generator game.Generator
}

// NewBatchConfig builds and validates a batch configuration
func NewBatchConfig(groupSizes []int, repetitions int, resultsDir, generatorName string) (*BatchConfig, error) {
	cfg := &BatchConfig{
		GroupSizes:    slices.Clone(groupSizes),
		Repetitions:   repetitions,
		ResultsDir:    resultsDir,
		GeneratorName: generatorName,
		Workers:       1,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the batch settings and resolves the generator
func (c *BatchConfig) Validate() error {
	gen, err := game.LookupGenerator(c.GeneratorName)
	if err != nil {
		return err
	}
	if len(c.GroupSizes) == 0 {
		return fmt.Errorf("%w: at least one group size is required", ErrInvalidConfig)
	}
	seen := make(map[int]bool, len(c.GroupSizes))
	for _, n := range c.GroupSizes {
		if n < 1 {
			return fmt.Errorf("%w: group sizes must be positive, got %d", ErrInvalidConfig, n)
		}
		if seen[n] {
			return fmt.Errorf("%w: duplicate group size %d", ErrInvalidConfig, n)
		}
		seen[n] = true
	}
	if c.Repetitions < 1 {
		return fmt.Errorf("%w: repetitions must be at least 1, got %d", ErrInvalidConfig, c.Repetitions)
	}
	if c.MatchesPerMixture < 0 {
		return fmt.Errorf("%w: matches per mixture cannot be negative, got %d", ErrInvalidConfig, c.MatchesPerMixture)
	}
	if c.ResultsDir == "" {
		return fmt.Errorf("%w: results directory is required", ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers cannot be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	c.generator = gen
	return nil
}

// Generator returns the description generator resolved by Validate
func (c *BatchConfig) Generator() game.Generator {
	if c.generator == nil {
		c.generator, _ = game.LookupGenerator(c.GeneratorName)
	}
	return c.generator
}

// MaxGroupSize returns the largest configured group size
func (c *BatchConfig) MaxGroupSize() int {
	if len(c.GroupSizes) == 0 {
		return 0
	}
	return slices.Max(c.GroupSizes)
}

// GroupDir returns the directory holding the results for group size n
func (c *BatchConfig) GroupDir(n int) string {
	return filepath.Join(c.ResultsDir, fmt.Sprintf("group_%d", n))
}

func (c *BatchConfig) mixtureMatches() int {
	if c.MatchesPerMixture > 0 {
		return c.MatchesPerMixture
	}
	return c.Repetitions
}

func (c *BatchConfig) workers() int {
	if c.Workers < 1 {
		return 1
	}
	return c.Workers
}
