// Package strategy provides the hand-coded strategies that populate tournaments.
// Each strategy is exposed through a Spec that knows its label and attitude and
// can build fresh players for a given game description.
package strategy

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"

	"github.com/pashagolub/dilemma/pkg/game"
)

// Error types for strategy lookup
var (
	ErrUnknownStrategy = errors.New("unknown strategy label")
)

// Strategy labels
const (
	AlwaysCooperate       = "always_cooperate"
	ConditionalCooperator = "conditional_cooperator"
	GrimTrigger           = "grim_trigger"
	AlwaysDefect          = "always_defect"
	Opportunist           = "opportunist"
	Random                = "random"
)

// decideFunc is the decision rule of a strategy
type decideFunc func(view game.RoundView) game.Action

// player is the common Player implementation around a decision rule
type player struct {
	id     game.PlayerID
	decide decideFunc
}

func (p *player) ID() game.PlayerID                      { return p.id }
func (p *player) Name() string                           { return p.id.Name }
func (p *player) Decide(view game.RoundView) game.Action { return p.decide(view) }

// Spec describes how to build players of one strategy
type Spec struct {
	Label    string
	Attitude game.Attitude
	build    func(id game.PlayerID, d game.Description, seed uint64) decideFunc
}

// CreatePlayer builds a fresh player named name for the game description d.
// Randomized strategies draw from a source derived from the name alone.
func (s Spec) CreatePlayer(name string, d game.Description) game.Player {
	return s.CreateSeededPlayer(name, d, 0)
}

// CreateSeededPlayer is CreatePlayer with seed mixed into the random source, so
// players recreated under the same name do not replay the same choices
func (s Spec) CreateSeededPlayer(name string, d game.Description, seed uint64) game.Player {
	id := game.PlayerID{Name: name, Attitude: s.Attitude, Strategy: s.Label}
	return &player{id: id, decide: s.build(id, d, seed)}
}

// WithAttitude returns a copy of the spec tagged with a different attitude
func (s Spec) WithAttitude(a game.Attitude) Spec {
	s.Attitude = a
	return s
}

func constant(a game.Action) func(game.PlayerID, game.Description, uint64) decideFunc {
	return func(game.PlayerID, game.Description, uint64) decideFunc {
		return func(game.RoundView) game.Action { return a }
	}
}

// majority is the number of cooperators that counts as a cooperative group
func majority(view game.RoundView) int {
	if view.Threshold > 0 {
		return view.Threshold
	}
	return (view.Players + 1) / 2
}

func conditionalCooperator(game.PlayerID, game.Description, uint64) decideFunc {
	return func(view game.RoundView) game.Action {
		if view.LastCooperators < 0 || view.LastCooperators >= majority(view) {
			return game.Cooperate
		}
		return game.Defect
	}
}

func grimTrigger(game.PlayerID, game.Description, uint64) decideFunc {
	triggered := false
	return func(view game.RoundView) game.Action {
		if view.Round == 0 {
			triggered = false
		}
		if view.LastCooperators >= 0 && view.LastCooperators < view.Players {
			triggered = true
		}
		if triggered {
			return game.Defect
		}
		return game.Cooperate
	}
}

// opportunist free-rides on cooperative groups and only contributes when
// cooperation is about to collapse
func opportunist(game.PlayerID, game.Description, uint64) decideFunc {
	return func(view game.RoundView) game.Action {
		if view.LastCooperators < 0 || view.LastCooperators >= majority(view) {
			return game.Defect
		}
		if view.Capacity > 0 && view.Stock < view.Capacity/2 {
			return game.Cooperate
		}
		if view.LastCooperators == majority(view)-1 {
			return game.Cooperate
		}
		return game.Defect
	}
}

// randomChoice is seeded from the player name and the creation seed, so a run
// with the same seeds is reproducible
func randomChoice(id game.PlayerID, _ game.Description, seed uint64) decideFunc {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id.Name))
	rng := rand.New(rand.NewPCG(h.Sum64(), 0x9e3779b97f4a7c15^seed))
	return func(game.RoundView) game.Action {
		if rng.IntN(2) == 0 {
			return game.Defect
		}
		return game.Cooperate
	}
}

var builtins = map[string]Spec{
	AlwaysCooperate:       {Label: AlwaysCooperate, Attitude: game.Cooperative, build: constant(game.Cooperate)},
	ConditionalCooperator: {Label: ConditionalCooperator, Attitude: game.Cooperative, build: conditionalCooperator},
	GrimTrigger:           {Label: GrimTrigger, Attitude: game.Cooperative, build: grimTrigger},
	AlwaysDefect:          {Label: AlwaysDefect, Attitude: game.Aggressive, build: constant(game.Defect)},
	Opportunist:           {Label: Opportunist, Attitude: game.Aggressive, build: opportunist},
	Random:                {Label: Random, Attitude: game.Neutral, build: randomChoice},
}

// Lookup returns the built-in spec registered under label
func Lookup(label string) (Spec, error) {
	s, ok := builtins[label]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownStrategy, label, Labels())
	}
	return s, nil
}

// Labels lists the built-in strategy labels in sorted order
func Labels() []string {
	labels := make([]string, 0, len(builtins))
	for l := range builtins {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Builtins returns one spec per built-in strategy, sorted by label
func Builtins() []Spec {
	specs := make([]Spec, 0, len(builtins))
	for _, l := range Labels() {
		specs = append(specs, builtins[l])
	}
	return specs
}

// FilterByAttitude keeps the specs whose attitude is one of attitudes
func FilterByAttitude(specs []Spec, attitudes ...game.Attitude) []Spec {
	if len(attitudes) == 0 {
		return specs
	}
	keep := make(map[game.Attitude]bool, len(attitudes))
	for _, a := range attitudes {
		keep[a] = true
	}
	var out []Spec
	for _, s := range specs {
		if keep[s.Attitude] {
			out = append(out, s)
		}
	}
	return out
}

// Partition splits specs into cooperative and aggressive pools; neutral specs are dropped
func Partition(specs []Spec) (cooperative, aggressive []Spec) {
	return FilterByAttitude(specs, game.Cooperative), FilterByAttitude(specs, game.Aggressive)
}
