package elo

import (
	"fmt"
	"math"
	"sort"

	"github.com/pashagolub/dilemma/pkg/game"
	"github.com/pashagolub/dilemma/pkg/tournament"
)

// PlayerRating pairs a tournament identity with its rating
type PlayerRating struct {
	ID     game.PlayerID
	Rating Rating
}

// StrategyRating aggregates the ratings of every player running one strategy
type StrategyRating struct {
	Strategy   string
	Attitude   game.Attitude
	Players    int
	MeanRating float64
	MinRating  float64
	MaxRating  float64
}

// Ledger replays matches in order and keeps the current rating of every player.
// Ratings are keyed by the full identity; the rating ID is id.String().
type Ledger struct {
	engine  *Engine
	ratings map[game.PlayerID]Rating
	ids     map[string]game.PlayerID
	history *History
}

// NewLedger creates an empty ledger
func NewLedger(engine *Engine) *Ledger {
	return &Ledger{
		engine:  engine,
		ratings: make(map[game.PlayerID]Rating),
		ids:     make(map[string]game.PlayerID),
		history: NewHistory(),
	}
}

// RateFair replays every match of a fair tournament
func RateFair(engine *Engine, results *tournament.FairResults) (*Ledger, error) {
	l := NewLedger(engine)
	for _, id := range results.PlayerIDs() {
		l.register(id)
	}
	if err := l.RecordMatches(results.Matches()); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) register(id game.PlayerID) Rating {
	r, ok := l.ratings[id]
	if !ok {
		r = l.engine.NewRating(id.String())
		l.ratings[id] = r
		l.ids[r.ID] = id
	}
	return r
}

// RecordMatch ranks the participants of m by payoff and applies the rating changes.
// Every participant must appear once.
func (l *Ledger) RecordMatch(m tournament.MatchResult) ([]RatingUpdate, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	standings := make([]Standing, len(m.PlayerIDs))
	for i, id := range m.PlayerIDs {
		standings[i] = Standing{Rating: l.register(id), Payoff: m.TotalPayoffs[i]}
	}

	ratings, updates, err := l.engine.CalculateMultiway(standings)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", m.MatchID, err)
	}
	for _, r := range ratings {
		l.ratings[l.ids[r.ID]] = r
	}
	l.history.AddMatch(updates)
	return updates, nil
}

// RecordMatches records matches in order, stopping at the first error
func (l *Ledger) RecordMatches(matches []tournament.MatchResult) error {
	for _, m := range matches {
		if _, err := l.RecordMatch(m); err != nil {
			return err
		}
	}
	return nil
}

// Rating returns the current rating of a player
func (l *Ledger) Rating(id game.PlayerID) (Rating, bool) {
	r, ok := l.ratings[id]
	return r, ok
}

// History returns the rating history of the ledger
func (l *Ledger) History() *History { return l.history }

// Engine returns the engine used by the ledger
func (l *Ledger) Engine() *Engine { return l.engine }

// Players returns every rated player, best first (ties by name)
func (l *Ledger) Players() []PlayerRating {
	out := make([]PlayerRating, 0, len(l.ratings))
	for id, r := range l.ratings {
		out = append(out, PlayerRating{ID: id, Rating: r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating.Score != out[j].Rating.Score {
			return out[i].Rating.Score > out[j].Rating.Score
		}
		return out[i].Rating.ID < out[j].Rating.ID
	})
	return out
}

// Strategies groups player ratings by strategy label, best mean first
func (l *Ledger) Strategies() []StrategyRating {
	byLabel := make(map[string]*StrategyRating)
	var order []string
	for _, p := range l.Players() {
		s, ok := byLabel[p.ID.Strategy]
		if !ok {
			s = &StrategyRating{
				Strategy:  p.ID.Strategy,
				Attitude:  p.ID.Attitude,
				MinRating: math.Inf(1),
				MaxRating: math.Inf(-1),
			}
			byLabel[p.ID.Strategy] = s
			order = append(order, p.ID.Strategy)
		}
		s.Players++
		s.MeanRating += p.Rating.Score
		s.MinRating = math.Min(s.MinRating, p.Rating.Score)
		s.MaxRating = math.Max(s.MaxRating, p.Rating.Score)
	}

	out := make([]StrategyRating, 0, len(order))
	for _, label := range order {
		s := byLabel[label]
		s.MeanRating /= float64(s.Players)
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MeanRating != out[j].MeanRating {
			return out[i].MeanRating > out[j].MeanRating
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

// History tracks rating changes for stability analysis
type History struct {
	Matches       int                  // matches recorded
	RatingHistory map[string][]float64 // rating progression per player
	PairHistory   map[string]int       // pairwise games per pair of players
	RecentWindow  int                  // default window for AvgRatingChange
	changes       []float64            // mean absolute change per match
}

// NewHistory creates a new history tracker
func NewHistory() *History {
	return &History{
		RatingHistory: make(map[string][]float64),
		PairHistory:   make(map[string]int),
		RecentWindow:  20,
	}
}

// AddMatch records the updates produced by one match
func (h *History) AddMatch(updates []RatingUpdate) {
	h.Matches++
	total := 0.0
	for i, u := range updates {
		h.RatingHistory[u.PlayerID] = append(h.RatingHistory[u.PlayerID], u.NewRating)
		total += math.Abs(u.Delta)
		for _, other := range updates[i+1:] {
			h.PairHistory[createPairKey(u.PlayerID, other.PlayerID)]++
		}
	}
	if len(updates) > 0 {
		h.changes = append(h.changes, total/float64(len(updates)))
	}
}

// GetRatingProgression returns the rating history for a specific player
func (h *History) GetRatingProgression(playerID string) []float64 {
	return h.RatingHistory[playerID]
}

// GetPairCount returns how many pairwise games two players have played
func (h *History) GetPairCount(a, b string) int {
	return h.PairHistory[createPairKey(a, b)]
}

// AvgRatingChange is the mean absolute rating change over the last n matches;
// n <= 0 uses RecentWindow. NaN before any match.
func (h *History) AvgRatingChange(n int) float64 {
	if n <= 0 {
		n = h.RecentWindow
	}
	start := max(len(h.changes)-n, 0)
	recent := h.changes[start:]
	if len(recent) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, c := range recent {
		sum += c
	}
	return sum / float64(len(recent))
}

// IsStable reports whether the recent average change is below threshold
func (h *History) IsStable(n int, threshold float64) bool {
	avg := h.AvgRatingChange(n)
	return !math.IsNaN(avg) && avg < threshold
}

// createPairKey creates a consistent key for player pairs
func createPairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}
