// Package elo rates players and strategies from tournament matches. A match between
// N players is scored as every pairwise game implied by the payoff ranking, following
// the standard Elo update with configurable parameters.
package elo

import (
	"errors"
	"math"
)

// Error types for validation
var (
	ErrInvalidRating   = errors.New("rating value is invalid")
	ErrDuplicatePlayer = errors.New("player appears multiple times")
	ErrInvalidKFactor  = errors.New("k-factor must be positive")
	ErrInvalidBounds   = errors.New("min rating must be less than max rating")
)

// Score values of a single pairwise game
const (
	Win  = 1.0
	Draw = 0.5
	Loss = 0.0
)

// Rating represents a player's rating information
type Rating struct {
	ID         string  // Unique player name
	Score      float64 // Current Elo rating
	Confidence float64 // Statistical confidence (0.0-1.0)
	Games      int     // Number of pairwise games played
}

// RatingUpdate represents an individual rating change record
type RatingUpdate struct {
	PlayerID  string  // Player being updated
	OldRating float64 // Rating before the match
	NewRating float64 // Rating after the match
	Delta     float64 // Change in rating (NewRating - OldRating before clamping)
	KFactor   int     // K-factor used for this update
}

// Config holds configuration parameters for the Elo engine
type Config struct {
	InitialRating float64 // Default rating for new players
	KFactor       int     // K-factor for rating sensitivity
	MinRating     float64 // Minimum allowed rating
	MaxRating     float64 // Maximum allowed rating
}

// Engine is the core Elo rating engine with configurable parameters
type Engine struct {
	InitialRating float64
	KFactor       int
	MinRating     float64
	MaxRating     float64
}

// NewEngine creates a new Elo rating engine with specified configuration
func NewEngine(config Config) (*Engine, error) {
	if config.KFactor <= 0 {
		return nil, ErrInvalidKFactor
	}
	if config.MinRating >= config.MaxRating {
		return nil, ErrInvalidBounds
	}
	if math.IsNaN(config.InitialRating) || math.IsInf(config.InitialRating, 0) {
		return nil, ErrInvalidRating
	}

	return &Engine{
		InitialRating: config.InitialRating,
		KFactor:       config.KFactor,
		MinRating:     config.MinRating,
		MaxRating:     config.MaxRating,
	}, nil
}

// NewRating returns a fresh rating for id
func (e *Engine) NewRating(id string) Rating {
	return Rating{ID: id, Score: e.InitialRating}
}

// validateRating checks if a rating value is valid
func (e *Engine) validateRating(rating float64) error {
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return ErrInvalidRating
	}
	return nil
}

// clampRating ensures a rating stays within configured bounds
func (e *Engine) clampRating(rating float64) float64 {
	if rating < e.MinRating {
		return e.MinRating
	}
	if rating > e.MaxRating {
		return e.MaxRating
	}
	return rating
}

// calculateExpectedScore computes the expected score for player A vs player B
func (e *Engine) calculateExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10.0, (ratingB-ratingA)/400.0))
}

// CalculatePairwise calculates new ratings after a single game in which a scored
// actual (Win, Draw or Loss) against b.
func (e *Engine) CalculatePairwise(a, b Rating, actual float64) (Rating, Rating, error) {
	if err := e.validateRating(a.Score); err != nil {
		return Rating{}, Rating{}, err
	}
	if err := e.validateRating(b.Score); err != nil {
		return Rating{}, Rating{}, err
	}
	if actual < Loss || actual > Win || math.IsNaN(actual) {
		return Rating{}, Rating{}, ErrInvalidRating
	}

	expectedA := e.calculateExpectedScore(a.Score, b.Score)
	delta := float64(e.KFactor) * (actual - expectedA)

	newA := Rating{
		ID:         a.ID,
		Score:      e.clampRating(a.Score + delta),
		Games:      a.Games + 1,
		Confidence: e.calculateConfidence(a.Games + 1),
	}
	newB := Rating{
		ID:         b.ID,
		Score:      e.clampRating(b.Score - delta),
		Games:      b.Games + 1,
		Confidence: e.calculateConfidence(b.Games + 1),
	}
	return newA, newB, nil
}

// calculateConfidence computes confidence level based on number of games played
func (e *Engine) calculateConfidence(games int) float64 {
	// Confidence reaches 1.0 after 20 games
	confidence := float64(games) / 20.0
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// ScaleRating converts internal Elo rating to specified output scale
func (e *Engine) ScaleRating(rating float64, outputMin, outputMax float64) float64 {
	if err := e.validateRating(rating); err != nil {
		return outputMin
	}

	inputRange := e.MaxRating - e.MinRating
	outputRange := outputMax - outputMin

	normalized := (e.clampRating(rating) - e.MinRating) / inputRange
	return outputMin + (normalized * outputRange)
}

// StabilityThreshold treats ratings as settled once the mean change per match is
// below a tenth of the K-factor
func (e *Engine) StabilityThreshold() float64 {
	return float64(e.KFactor) / 10
}
