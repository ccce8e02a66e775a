package elo

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Additional error types for multi-way comparisons
var (
	ErrTooFewPlayers = errors.New("multi-way comparison requires at least 2 players")
	ErrInvalidPayoff = errors.New("payoff must be finite")
)

// Standing is one participant of a match with the payoff it earned
type Standing struct {
	Rating Rating
	Payoff float64
}

// PairwiseGame represents a single pairwise game within a multi-way comparison
type PairwiseGame struct {
	Winner       Rating  // Higher ranked player, or the first of a tied pair
	Loser        Rating  // Lower ranked player
	Weight       float64 // Position-based weight for this game (0.6-1.0)
	ExpectedWin  float64 // Expected probability of winner winning
	ActualScore  float64 // Win, or Draw for tied payoffs
	RatingChange float64 // Rating change for winner (negative of loser's change)
}

// MultiWayComparison turns one N-player match into weighted pairwise games
type MultiWayComparison struct {
	Engine       *Engine
	Standings    []Standing // ranked by payoff, best first
	Games        []PairwiseGame
	TotalChanges map[string]float64
}

// NewMultiWayComparison ranks the standings by payoff (stable, so equal payoffs keep
// their seat order) and validates them
func (e *Engine) NewMultiWayComparison(standings []Standing) (*MultiWayComparison, error) {
	if len(standings) < 2 {
		return nil, ErrTooFewPlayers
	}

	seen := make(map[string]bool, len(standings))
	for _, s := range standings {
		if seen[s.Rating.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlayer, s.Rating.ID)
		}
		seen[s.Rating.ID] = true

		if err := e.validateRating(s.Rating.Score); err != nil {
			return nil, fmt.Errorf("invalid rating for player %s: %w", s.Rating.ID, err)
		}
		if math.IsNaN(s.Payoff) || math.IsInf(s.Payoff, 0) {
			return nil, fmt.Errorf("%w: player %s", ErrInvalidPayoff, s.Rating.ID)
		}
	}

	ranked := make([]Standing, len(standings))
	copy(ranked, standings)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Payoff > ranked[j].Payoff })

	return &MultiWayComparison{
		Engine:       e,
		Standings:    ranked,
		TotalChanges: make(map[string]float64, len(ranked)),
	}, nil
}

// calculatePositionWeight determines the weight for a game based on the position of
// the higher-ranked player (0-based)
func calculatePositionWeight(higherPos int) float64 {
	// 1st vs others: 1.0, 2nd vs 3rd+: 0.8, lower pairs: 0.6
	weight := 1.0 - float64(higherPos)*0.2
	if weight < 0.6 {
		weight = 0.6
	}
	return weight
}

// generatePairwiseGames creates all pairwise games where the higher ranked player
// beats the lower ranked one, or draws on equal payoff
func (mw *MultiWayComparison) generatePairwiseGames() {
	n := len(mw.Standings)
	mw.Games = make([]PairwiseGame, 0, GetExpectedGameCount(n))

	for i := range n {
		for j := i + 1; j < n; j++ {
			winner := mw.Standings[i]
			loser := mw.Standings[j]

			actual := Win
			if winner.Payoff == loser.Payoff {
				actual = Draw
			}

			mw.Games = append(mw.Games, PairwiseGame{
				Winner:      winner.Rating,
				Loser:       loser.Rating,
				Weight:      calculatePositionWeight(i),
				ExpectedWin: mw.Engine.calculateExpectedScore(winner.Rating.Score, loser.Rating.Score),
				ActualScore: actual,
			})
		}
	}
}

// calculateRatingChanges computes zero-sum rating changes for all players
func (mw *MultiWayComparison) calculateRatingChanges() {
	for _, s := range mw.Standings {
		mw.TotalChanges[s.Rating.ID] = 0.0
	}

	for i := range mw.Games {
		game := &mw.Games[i]
		change := float64(mw.Engine.KFactor) * (game.ActualScore - game.ExpectedWin) * game.Weight
		game.RatingChange = change

		mw.TotalChanges[game.Winner.ID] += change
		mw.TotalChanges[game.Loser.ID] -= change
	}
}

// Execute performs the multi-way comparison and returns updated ratings in ranked order
func (mw *MultiWayComparison) Execute() ([]Rating, []RatingUpdate) {
	mw.generatePairwiseGames()
	mw.calculateRatingChanges()

	played := len(mw.Standings) - 1
	updated := make([]Rating, len(mw.Standings))
	updates := make([]RatingUpdate, 0, len(mw.Standings))

	for i, s := range mw.Standings {
		old := s.Rating.Score
		change := mw.TotalChanges[s.Rating.ID]
		games := s.Rating.Games + played

		updated[i] = Rating{
			ID:         s.Rating.ID,
			Score:      mw.Engine.clampRating(old + change),
			Games:      games,
			Confidence: mw.Engine.calculateConfidence(games),
		}
		updates = append(updates, RatingUpdate{
			PlayerID:  s.Rating.ID,
			OldRating: old,
			NewRating: updated[i].Score,
			Delta:     change,
			KFactor:   mw.Engine.KFactor,
		})
	}

	return updated, updates
}

// CalculateMultiway is a convenience method on Engine for multi-way comparisons
func (e *Engine) CalculateMultiway(standings []Standing) ([]Rating, []RatingUpdate, error) {
	comparison, err := e.NewMultiWayComparison(standings)
	if err != nil {
		return nil, nil, err
	}
	ratings, updates := comparison.Execute()
	return ratings, updates, nil
}

// GetExpectedGameCount returns the number of pairwise games for a given number of players
func GetExpectedGameCount(players int) int {
	if players < 2 {
		return 0
	}
	return players * (players - 1) / 2
}

// ValidateRatingConservation checks that total rating points are conserved
func (mw *MultiWayComparison) ValidateRatingConservation() error {
	totalChange := 0.0
	for _, change := range mw.TotalChanges {
		totalChange += change
	}

	if math.Abs(totalChange) > 1e-9 {
		return fmt.Errorf("rating conservation violated: total change = %f", totalChange)
	}

	return nil
}
