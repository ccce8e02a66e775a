// Package game provides the repeated N-player social dilemma games used by tournaments.
// It defines player identities and attitudes, the closed set of game descriptions with
// their serialization tags, and the engines that play one complete game.
package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Error types for player and identity handling
var (
	ErrUnknownAttitude = errors.New("unknown attitude")
	ErrInvalidPlayerID = errors.New("invalid player identity")
)

// Attitude is a coarse behavioral tag used to segment statistics
type Attitude string

// Supported attitudes
const (
	Cooperative Attitude = "COOPERATIVE"
	Aggressive  Attitude = "AGGRESSIVE"
	Neutral     Attitude = "NEUTRAL"
)

// ParseAttitude converts a string to an Attitude, accepting any letter case
func ParseAttitude(s string) (Attitude, error) {
	switch Attitude(strings.ToUpper(strings.TrimSpace(s))) {
	case Cooperative:
		return Cooperative, nil
	case Aggressive:
		return Aggressive, nil
	case Neutral:
		return Neutral, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAttitude, s)
}

// PlayerID identifies a player across games. It is comparable and used as a map key.
type PlayerID struct {
	Name     string
	Attitude Attitude
	Strategy string
}

// String returns a compact human readable form
func (id PlayerID) String() string {
	return fmt.Sprintf("%s(%s/%s)", id.Name, id.Strategy, id.Attitude)
}

// MarshalJSON encodes the identity as [name, attitude, strategy]
func (id PlayerID) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{id.Name, string(id.Attitude), id.Strategy})
}

// UnmarshalJSON decodes the [name, attitude, strategy] triple
func (id *PlayerID) UnmarshalJSON(b []byte) error {
	var triple []string
	if err := json.Unmarshal(b, &triple); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlayerID, err)
	}
	if len(triple) != 3 {
		return fmt.Errorf("%w: expected 3 fields, got %d", ErrInvalidPlayerID, len(triple))
	}
	attitude, err := ParseAttitude(triple[1])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlayerID, err)
	}
	*id = PlayerID{Name: triple[0], Attitude: attitude, Strategy: triple[2]}
	return nil
}

// Action is a single round decision
type Action int

// Round decisions
const (
	Defect Action = iota
	Cooperate
)

// String returns the action name
func (a Action) String() string {
	if a == Cooperate {
		return "C"
	}
	return "D"
}

// RoundView is what a player sees before deciding a round
type RoundView struct {
	Round              int      // 0-based round index
	Rounds             int      // total rounds in the game
	Players            int      // group size
	LastCooperators    int      // cooperators in the previous round, -1 in the first round
	OwnHistory         []Action // this player's previous actions
	CooperationHistory []int    // cooperators per previous round
	Stock              float64  // resource stock (common pool only)
	Capacity           float64  // resource capacity (common pool only)
	Threshold          int      // cooperators required (collective risk only)
}

// Player takes decisions in a game
type Player interface {
	ID() PlayerID
	Name() string
	Decide(view RoundView) Action
}
