package tournament

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pashagolub/dilemma/pkg/game"
)

// MatchResult is the outcome of one game. Slices are positionally aligned.
type MatchResult struct {
	MatchID           string          `json:"match_id"`
	PlayerIDs         []game.PlayerID `json:"player_ids"`
	TotalPayoffs      []float64       `json:"total_payoffs"`
	TotalCooperations []int           `json:"total_cooperations"`
}

// NewMatchResult copies the inputs into a validated MatchResult
func NewMatchResult(matchID string, ids []game.PlayerID, payoffs []float64, cooperations []int) (MatchResult, error) {
	m := MatchResult{
		MatchID:           matchID,
		PlayerIDs:         slices.Clone(ids),
		TotalPayoffs:      slices.Clone(payoffs),
		TotalCooperations: slices.Clone(cooperations),
	}
	return m, m.Validate()
}

// Validate checks that all per-player slices have the same length
func (m MatchResult) Validate() error {
	if m.MatchID == "" {
		return fmt.Errorf("%w: empty match id", ErrMisalignedMatch)
	}
	if len(m.PlayerIDs) == 0 {
		return fmt.Errorf("%w: match %s has no players", ErrMisalignedMatch, m.MatchID)
	}
	if len(m.PlayerIDs) != len(m.TotalPayoffs) || len(m.PlayerIDs) != len(m.TotalCooperations) {
		return fmt.Errorf("%w: match %s has %d players, %d payoffs, %d cooperation counts",
			ErrMisalignedMatch, m.MatchID, len(m.PlayerIDs), len(m.TotalPayoffs), len(m.TotalCooperations))
	}
	return nil
}

// SocialWelfare is the mean payoff of the participants
func (m MatchResult) SocialWelfare() float64 {
	if len(m.TotalPayoffs) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range m.TotalPayoffs {
		total += p
	}
	return total / float64(len(m.TotalPayoffs))
}

// Runner plays single matches through a game factory and keeps the log of
// completed matches. A failed match is never recorded.
type Runner struct {
	desc     game.Description
	factory  game.Factory
	logger   zerolog.Logger
	recorder Recorder

	mu      sync.Mutex
	matches []MatchResult
}

// NewRunner creates a runner for the game description d
func NewRunner(d game.Description, opts ...Option) *Runner {
	s := newSettings(opts)
	return newRunner(d, s)
}

func newRunner(d game.Description, s settings) *Runner {
	return &Runner{desc: d, factory: s.factory, logger: s.logger, recorder: s.recorder}
}

// RunMatch plays one game with players in seat order and records its outcome
func (r *Runner) RunMatch(players []game.Player, matchID string) (MatchResult, error) {
	g, err := r.factory.NewGame(slices.Clone(players), r.desc)
	if err != nil {
		return MatchResult{}, fmt.Errorf("cannot create game for %s: %w", matchID, err)
	}
	out, err := g.Play()
	if err != nil {
		return MatchResult{}, fmt.Errorf("game %s failed: %w", matchID, err)
	}
	if out == nil {
		return MatchResult{}, fmt.Errorf("game %s returned no result", matchID)
	}

	ids := make([]game.PlayerID, len(players))
	for i, p := range players {
		ids[i] = p.ID()
	}
	result, err := NewMatchResult(matchID, ids, out.TotalPayoffs, out.TotalCooperations)
	if err != nil {
		return MatchResult{}, err
	}

	r.mu.Lock()
	r.matches = append(r.matches, result)
	r.mu.Unlock()

	r.logger.Debug().
		Str("match_id", matchID).
		Floats64("payoffs", result.TotalPayoffs).
		Ints("cooperations", result.TotalCooperations).
		Msg("match completed")
	record(r.logger, r.recorder, EventMatchCompleted, r.desc.NPlayers(), matchID, map[string]any{
		"player_ids":         result.PlayerIDs,
		"total_payoffs":      result.TotalPayoffs,
		"total_cooperations": result.TotalCooperations,
	})
	return result, nil
}

// Reset drops the completed matches so the runner can serve a new run
func (r *Runner) Reset() {
	r.mu.Lock()
	r.matches = nil
	r.mu.Unlock()
}

// Matches returns a copy of the completed matches in execution order
func (r *Runner) Matches() []MatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.matches)
}
