package data

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// RunOptions are the command-line flags shared by the tournament commands.
// Zero values leave the configured value untouched.
type RunOptions struct {
	// Game options
	Game     string  `long:"game" short:"g" description:"Game type (public_goods/collective_risk/common_pool)"`
	Players  int     `long:"players" short:"n" description:"Players per match"`
	Rounds   int     `long:"rounds" description:"Rounds per match"`
	K        float64 `long:"k" description:"Public goods multiplier or collective risk reward"`
	M        int     `long:"m" description:"Collective risk threshold"`
	Capacity float64 `long:"capacity" description:"Common pool capacity"`

	// Tournament options
	Repetitions       int    `long:"repetitions" short:"r" description:"Repetitions of a fair tournament"`
	MatchesPerMixture int    `long:"matches" description:"Matches per composition of a mixture sweep"`
	Seed              uint64 `long:"seed" description:"Random seed"`
	Roster            string `long:"roster" description:"YAML strategy roster"`
	Copies            int    `long:"copies" description:"Copies of each built-in strategy when no roster is given"`

	// Batch options
	GroupSizes string `long:"sizes" description:"Comma separated group sizes, e.g. 2,4,6"`
	ResultsDir string `long:"results-dir" short:"o" description:"Results directory"`
	Workers    int    `long:"workers" short:"w" description:"Group sizes computed concurrently"`

	// Logging options
	LogLevel  string `long:"log-level" description:"Log level (debug/info/warn/error)"`
	LogFormat string `long:"log-format" description:"Log format (console/json)"`
	NoJournal bool   `long:"no-journal" description:"Do not write the match journal"`
}

// ParseRunOptions parses command-line arguments into a fully resolved configuration.
// Precedence, lowest first: defaults, configuration file, environment, flags.
func ParseRunOptions(args []string, configFile string) (*RunConfig, *RunOptions, error) {
	var opts RunOptions

	parser := flags.NewParser(&opts, flags.Default&^flags.PrintErrors)
	parser.Usage = "[OPTIONS]"

	remaining, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, &opts, err
		}
		return nil, nil, fmt.Errorf("failed to parse command-line arguments: %w", err)
	}

	if len(remaining) > 0 {
		return nil, nil, fmt.Errorf("unexpected arguments: %v", remaining)
	}

	config, err := ResolveConfig(configFile, false, &opts)
	if err != nil {
		return nil, nil, err
	}
	return config, &opts, nil
}

// ResolveConfig loads the configuration file (searching the user config directory
// for relative paths), applies environment overrides and then the flag overrides.
func ResolveConfig(configFile string, noConfig bool, opts *RunOptions) (*RunConfig, error) {
	var config *RunConfig
	if !noConfig {
		configPath := configFile
		if configPath == "" {
			configPath = DefaultConfigFile
		}
		if !filepath.IsAbs(configPath) {
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				for _, alt := range GetConfigSearchPaths(configPath)[1:] {
					if _, err := os.Stat(alt); err == nil {
						configPath = alt
						break
					}
				}
			}
		}

		loaded, err := LoadWithEnvironment(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration file: %w", err)
		}
		config = loaded
	} else {
		defaultConfig := DefaultRunConfig()
		config = &defaultConfig
		applyEnvironmentOverrides(config)
	}

	if opts != nil {
		if err := ApplyOverrides(config, opts); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ApplyOverrides applies command-line flag values to the configuration
func ApplyOverrides(config *RunConfig, opts *RunOptions) error {
	// Game configuration overrides
	if opts.Game != "" {
		config.Game.Type = opts.Game
	}
	if opts.Players != 0 {
		config.Game.Players = opts.Players
	}
	if opts.Rounds != 0 {
		config.Game.Rounds = opts.Rounds
	}
	if opts.K != 0 {
		config.Game.K = opts.K
	}
	if opts.M != 0 {
		config.Game.M = opts.M
	}
	if opts.Capacity != 0 {
		config.Game.Capacity = opts.Capacity
	}

	// Tournament configuration overrides
	if opts.Repetitions != 0 {
		config.Tournament.Repetitions = opts.Repetitions
	}
	if opts.MatchesPerMixture != 0 {
		config.Tournament.MatchesPerMixture = opts.MatchesPerMixture
	}
	if opts.Seed != 0 {
		config.Tournament.Seed = opts.Seed
	}
	if opts.Roster != "" {
		config.Tournament.Roster = opts.Roster
	}
	if opts.Copies != 0 {
		config.Tournament.Copies = opts.Copies
	}

	// Batch configuration overrides
	if opts.GroupSizes != "" {
		sizes, err := ParseGroupSizes(opts.GroupSizes)
		if err != nil {
			return err
		}
		config.Batch.GroupSizes = sizes
	}
	if opts.ResultsDir != "" {
		config.Batch.ResultsDir = opts.ResultsDir
	}
	if opts.Workers != 0 {
		config.Batch.Workers = opts.Workers
	}

	// Logging overrides
	if opts.LogLevel != "" {
		config.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		config.Log.Format = opts.LogFormat
	}
	if opts.NoJournal {
		config.Log.Journal = false
	}

	return nil
}

// GetConfigSearchPaths returns possible configuration file locations
func GetConfigSearchPaths(filename string) []string {
	paths := []string{filename}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "dilemma", filename))
		paths = append(paths, filepath.Join(homeDir, ".dilemma", filename))
	}

	paths = append(paths, filepath.Join("/etc", "dilemma", filename))

	return paths
}

// CreateDefaultConfig creates a default configuration file at the specified path
func CreateDefaultConfig(filePath string) error {
	config := DefaultRunConfig()

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := config.SaveToFile(filePath); err != nil {
		return fmt.Errorf("failed to create default config: %w", err)
	}

	return nil
}
