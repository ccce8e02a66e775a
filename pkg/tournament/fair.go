// Package tournament runs repeated social dilemma games across player populations and
// turns the raw match outcomes into validated, persistable statistics.
//
// A FairTournament repeatedly shuffles a fixed population into groups so every player
// plays the same number of games. A MixtureTournament sweeps every split between
// cooperative and aggressive players for one group size. The batch drivers run either
// kind across several group sizes, persisting each size as soon as it completes and
// reusing sizes already on disk.
package tournament

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/rs/zerolog"

	"github.com/pashagolub/dilemma/pkg/game"
)

// Tournament is a runnable tournament
type Tournament interface {
	Run(ctx context.Context) (Results, error)
}

// FairTournament gives every player of a fixed population the same number of games
type FairTournament struct {
	config  Config
	players []game.Player
	runner  *Runner
	rng     *rand.Rand
	logger  zerolog.Logger
}

// NewFairTournament checks that the population partitions evenly into groups
func NewFairTournament(cfg Config, players []game.Player, opts ...Option) (*FairTournament, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.GroupSize()
	if len(players) == 0 {
		return nil, fmt.Errorf("%w: population is empty", ErrUnevenPopulation)
	}
	if len(players)%n != 0 {
		return nil, fmt.Errorf("%w: %d players cannot be split into groups of %d",
			ErrUnevenPopulation, len(players), n)
	}
	seen := make(map[game.PlayerID]bool, len(players))
	for i, p := range players {
		if p == nil {
			return nil, fmt.Errorf("%w: population index %d", game.ErrNilPlayer, i)
		}
		if seen[p.ID()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlayer, p.ID())
		}
		seen[p.ID()] = true
	}

	s := newSettings(opts)
	return &FairTournament{
		config:  cfg,
		players: slices.Clone(players),
		runner:  newRunner(cfg.GameDescription, s),
		rng:     s.rng,
		logger:  s.logger,
	}, nil
}

// Run plays every repetition and returns the validated results
func (t *FairTournament) Run(ctx context.Context) (Results, error) {
	res, err := t.Play(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Play shuffles and partitions the population once per repetition. The first
// failing match aborts the run. Every call starts a fresh run.
func (t *FairTournament) Play(ctx context.Context) (*FairResults, error) {
	n := t.config.GroupSize()
	groups := len(t.players) / n
	order := slices.Clone(t.players)
	t.runner.Reset()

	t.logger.Info().
		Int("players", len(t.players)).
		Int("group_size", n).
		Int("repetitions", t.config.Repetitions).
		Msg("fair tournament started")

	for rep := range t.config.Repetitions {
		t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for m := range groups {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			matchID := fmt.Sprintf("rep%02d_match%04d", rep, m)
			if _, err := t.runner.RunMatch(order[m*n:(m+1)*n], matchID); err != nil {
				return nil, err
			}
		}
	}

	ids := make([]game.PlayerID, len(t.players))
	for i, p := range t.players {
		ids[i] = p.ID()
	}
	res, err := NewFairResults(t.config, ids, t.runner.Matches())
	if err != nil {
		return nil, err
	}
	t.logger.Info().Int("matches", len(res.Matches())).Int("games_per_player", res.GamesPlayed()).Msg("fair tournament completed")
	return res, nil
}
