package tournament

import (
	"fmt"
	"math"
	"slices"

	"github.com/pashagolub/dilemma/pkg/game"
)

// PlayerStatistics accumulates one player's outcomes across matches
type PlayerStatistics struct {
	ID           game.PlayerID
	Payoffs      []float64
	Cooperations []int
}

// Add folds one match outcome into the statistics
func (s *PlayerStatistics) Add(payoff float64, cooperations int) {
	s.Payoffs = append(s.Payoffs, payoff)
	s.Cooperations = append(s.Cooperations, cooperations)
}

// GamesPlayed is the number of matches folded in
func (s *PlayerStatistics) GamesPlayed() int { return len(s.Payoffs) }

// TotalPayoff sums the payoffs
func (s *PlayerStatistics) TotalPayoff() float64 { return sum(s.Payoffs) }

// MeanPayoff averages the payoffs; NaN without games
func (s *PlayerStatistics) MeanPayoff() float64 { return mean(s.Payoffs) }

// TotalCooperations sums the cooperation counts
func (s *PlayerStatistics) TotalCooperations() int {
	total := 0
	for _, c := range s.Cooperations {
		total += c
	}
	return total
}

// MeanCooperations averages the cooperation counts; NaN without games
func (s *PlayerStatistics) MeanCooperations() float64 {
	if len(s.Cooperations) == 0 {
		return math.NaN()
	}
	return float64(s.TotalCooperations()) / float64(len(s.Cooperations))
}

func (s *PlayerStatistics) clone() PlayerStatistics {
	return PlayerStatistics{ID: s.ID, Payoffs: slices.Clone(s.Payoffs), Cooperations: slices.Clone(s.Cooperations)}
}

// Composition is a (cooperative, aggressive) split of a group
type Composition struct {
	Cooperative int
	Aggressive  int
}

func (c Composition) String() string {
	return fmt.Sprintf("(%d,%d)", c.Cooperative, c.Aggressive)
}

// MixtureStatistics holds the per-attitude scores of one composition
type MixtureStatistics struct {
	GroupSize         int       `json:"group_size"`
	NCooperative      int       `json:"n_cooperative"`
	NAggressive       int       `json:"n_aggressive"`
	CooperativeScores []float64 `json:"cooperative_scores"`
	AggressiveScores  []float64 `json:"aggressive_scores"`
	MatchesPlayed     int       `json:"matches_played"`
}

// NewMixtureStatistics creates an empty bucket; the split must add up to groupSize
func NewMixtureStatistics(groupSize, nCooperative, nAggressive int) (*MixtureStatistics, error) {
	if nCooperative < 0 || nAggressive < 0 || nCooperative+nAggressive != groupSize {
		return nil, fmt.Errorf("%w: %d cooperative + %d aggressive != %d",
			ErrCompositionMismatch, nCooperative, nAggressive, groupSize)
	}
	return &MixtureStatistics{
		GroupSize:         groupSize,
		NCooperative:      nCooperative,
		NAggressive:       nAggressive,
		CooperativeScores: []float64{},
		AggressiveScores:  []float64{},
	}, nil
}

// Composition returns the bucket key
func (m *MixtureStatistics) Composition() Composition {
	return Composition{Cooperative: m.NCooperative, Aggressive: m.NAggressive}
}

// CooperativeRatio is n_cooperative / group_size
func (m *MixtureStatistics) CooperativeRatio() float64 {
	return float64(m.NCooperative) / float64(m.GroupSize)
}

// AggressiveRatio is n_aggressive / group_size
func (m *MixtureStatistics) AggressiveRatio() float64 {
	return float64(m.NAggressive) / float64(m.GroupSize)
}

// AvgCooperativeScore is NaN when no cooperative player took part
func (m *MixtureStatistics) AvgCooperativeScore() float64 { return mean(m.CooperativeScores) }

// AvgAggressiveScore is NaN when no aggressive player took part
func (m *MixtureStatistics) AvgAggressiveScore() float64 { return mean(m.AggressiveScores) }

// AvgSocialWelfare averages every score of the composition regardless of attitude
func (m *MixtureStatistics) AvgSocialWelfare() float64 {
	n := len(m.CooperativeScores) + len(m.AggressiveScores)
	if n == 0 {
		return math.NaN()
	}
	return (sum(m.CooperativeScores) + sum(m.AggressiveScores)) / float64(n)
}

func (m *MixtureStatistics) addMatch(match MatchResult) {
	for i, id := range match.PlayerIDs {
		switch id.Attitude {
		case game.Cooperative:
			m.CooperativeScores = append(m.CooperativeScores, match.TotalPayoffs[i])
		case game.Aggressive:
			m.AggressiveScores = append(m.AggressiveScores, match.TotalPayoffs[i])
		}
	}
	m.MatchesPlayed++
}

func (m *MixtureStatistics) equal(o MixtureStatistics) bool {
	return m.GroupSize == o.GroupSize &&
		m.NCooperative == o.NCooperative &&
		m.NAggressive == o.NAggressive &&
		m.MatchesPlayed == o.MatchesPlayed &&
		slices.Equal(m.CooperativeScores, o.CooperativeScores) &&
		slices.Equal(m.AggressiveScores, o.AggressiveScores)
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return sum(values) / float64(len(values))
}
