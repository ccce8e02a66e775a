package strategy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pashagolub/dilemma/pkg/game"
)

// Error types for roster files
var (
	ErrRosterNotFound = errors.New("strategy roster not found")
	ErrInvalidRoster  = errors.New("invalid strategy roster")
)

// RosterEntry lists one strategy and how many copies of it join the pool
type RosterEntry struct {
	Label    string `yaml:"label"`
	Attitude string `yaml:"attitude,omitempty"` // overrides the built-in attitude
	Count    int    `yaml:"count,omitempty"`    // defaults to 1
}

// Roster is the YAML description of a strategy pool
type Roster struct {
	Strategies []RosterEntry `yaml:"strategies"`
}

// DefaultRoster returns every built-in strategy with the given number of copies
func DefaultRoster(copies int) Roster {
	var r Roster
	for _, label := range Labels() {
		r.Strategies = append(r.Strategies, RosterEntry{Label: label, Count: copies})
	}
	return r
}

// LoadRoster reads a roster from a YAML file
func LoadRoster(filename string) (*Roster, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRosterNotFound, filename)
		}
		return nil, fmt.Errorf("failed to read roster %s: %w", filename, err)
	}

	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoster, filename, err)
	}
	if len(r.Strategies) == 0 {
		return nil, fmt.Errorf("%w: %s lists no strategies", ErrInvalidRoster, filename)
	}
	return &r, nil
}

// Specs expands the roster into one spec per pool member
func (r Roster) Specs() ([]Spec, error) {
	var specs []Spec
	for i, entry := range r.Strategies {
		spec, err := Lookup(strings.TrimSpace(entry.Label))
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidRoster, i, err)
		}
		if entry.Attitude != "" {
			attitude, err := game.ParseAttitude(entry.Attitude)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidRoster, i, err)
			}
			spec = spec.WithAttitude(attitude)
		}
		count := entry.Count
		if count == 0 {
			count = 1
		}
		if count < 0 {
			return nil, fmt.Errorf("%w: entry %d: negative count %d", ErrInvalidRoster, i, count)
		}
		for range count {
			specs = append(specs, spec)
		}
	}
	return specs, nil
}
