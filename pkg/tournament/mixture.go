package tournament

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/rs/zerolog"

	"github.com/pashagolub/dilemma/pkg/game"
	"github.com/pashagolub/dilemma/pkg/strategy"
)

// MatchOutcome is the result of one mixture match: either a result or the error
// that prevented it
type MatchOutcome struct {
	MatchID     string
	Composition Composition
	Result      MatchResult
	Err         error
}

// OK reports whether the match completed
func (o MatchOutcome) OK() bool { return o.Err == nil }

// MixtureTournament sweeps every cooperative/aggressive split of one group size
type MixtureTournament struct {
	config            Config
	cooperative       []strategy.Spec
	aggressive        []strategy.Spec
	cooperativeIDs    []game.PlayerID
	aggressiveIDs     []game.PlayerID
	matchesPerMixture int

	runner   *Runner
	rng      *rand.Rand
	logger   zerolog.Logger
	recorder Recorder
}

// NewMixtureTournament validates the pools. Pools must be non-empty and carry the
// attitude they stand for.
func NewMixtureTournament(cfg Config, cooperative, aggressive []strategy.Spec, matchesPerMixture int, opts ...Option) (*MixtureTournament, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if matchesPerMixture < 1 {
		return nil, fmt.Errorf("%w: matches per mixture must be at least 1, got %d", ErrInvalidConfig, matchesPerMixture)
	}
	if len(cooperative) == 0 || len(aggressive) == 0 {
		return nil, fmt.Errorf("%w: need cooperative and aggressive strategies, got %d and %d",
			ErrInsufficientPool, len(cooperative), len(aggressive))
	}
	if err := checkPool(cooperative, game.Cooperative); err != nil {
		return nil, err
	}
	if err := checkPool(aggressive, game.Aggressive); err != nil {
		return nil, err
	}

	s := newSettings(opts)
	d := cfg.GameDescription
	return &MixtureTournament{
		config:            cfg,
		cooperative:       slices.Clone(cooperative),
		aggressive:        slices.Clone(aggressive),
		cooperativeIDs:    playerIDs(NewPlayers(cooperative, d)),
		aggressiveIDs:     playerIDs(NewPlayers(aggressive, d)),
		matchesPerMixture: matchesPerMixture,
		runner:            newRunner(d, s),
		rng:               s.rng,
		logger:            s.logger,
		recorder:          s.recorder,
	}, nil
}

func checkPool(specs []strategy.Spec, want game.Attitude) error {
	for _, spec := range specs {
		if spec.Attitude != want {
			return fmt.Errorf("%w: %s is %s in the %s pool", ErrPoolAttitude, spec.Label, spec.Attitude, want)
		}
	}
	return nil
}

// Compositions lists the sweep order: n_aggressive from 0 to the group size
func Compositions(groupSize int) []Composition {
	out := make([]Composition, 0, groupSize+1)
	for a := 0; a <= groupSize; a++ {
		out = append(out, Composition{Cooperative: groupSize - a, Aggressive: a})
	}
	return out
}

// Run sweeps every composition and returns the validated results
func (t *MixtureTournament) Run(ctx context.Context) (Results, error) {
	res, err := t.Play(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Play runs matchesPerMixture matches for every composition. A failing match is
// logged and skipped; the sweep carries on. Skipped matches leave their composition
// short, which result validation reports as unequal matches played. Every call
// starts a fresh sweep.
func (t *MixtureTournament) Play(ctx context.Context) (*MixtureResults, error) {
	n := t.config.GroupSize()
	failures := 0
	total := 0
	t.runner.Reset()

	t.logger.Info().
		Int("group_size", n).
		Int("matches_per_mixture", t.matchesPerMixture).
		Msg("mixture tournament started")

	for _, comp := range Compositions(n) {
		completed := 0
		for m := range t.matchesPerMixture {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			total++
			outcome := t.playMatch(comp, fmt.Sprintf("mix_c%02d_a%02d_match%04d", comp.Cooperative, comp.Aggressive, m))
			if !outcome.OK() {
				failures++
				t.logger.Error().Err(outcome.Err).
					Str("match_id", outcome.MatchID).
					Stringer("composition", comp).
					Msg("mixture match failed")
				record(t.logger, t.recorder, EventMatchFailed, n, outcome.MatchID, map[string]any{
					"n_cooperative": comp.Cooperative,
					"n_aggressive":  comp.Aggressive,
					"error":         outcome.Err.Error(),
				})
				continue
			}
			completed++
		}
		t.logger.Debug().Stringer("composition", comp).Int("completed", completed).Msg("composition done")
	}

	res, err := NewMixtureResults(t.config, t.cooperativeIDs, t.aggressiveIDs, t.runner.Matches(), t.matchesPerMixture)
	if err != nil {
		if failures > 0 {
			return nil, fmt.Errorf("%d of %d mixture matches failed: %w", failures, total, err)
		}
		return nil, err
	}
	t.logger.Info().Int("matches", total).Msg("mixture tournament completed")
	return res, nil
}

// playMatch samples the seats with replacement from both pools and shuffles them.
// Every seat gets its own seed from the tournament rng.
func (t *MixtureTournament) playMatch(comp Composition, matchID string) MatchOutcome {
	d := t.config.GameDescription
	players := make([]game.Player, 0, comp.Cooperative+comp.Aggressive)
	for range comp.Cooperative {
		i := t.rng.IntN(len(t.cooperative))
		players = append(players, t.cooperative[i].CreateSeededPlayer(t.cooperativeIDs[i].Name, d, t.rng.Uint64()))
	}
	for range comp.Aggressive {
		i := t.rng.IntN(len(t.aggressive))
		players = append(players, t.aggressive[i].CreateSeededPlayer(t.aggressiveIDs[i].Name, d, t.rng.Uint64()))
	}
	t.rng.Shuffle(len(players), func(i, j int) { players[i], players[j] = players[j], players[i] })

	result, err := t.runner.RunMatch(players, matchID)
	return MatchOutcome{MatchID: matchID, Composition: comp, Result: result, Err: err}
}
