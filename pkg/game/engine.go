package game

import (
	"errors"
	"fmt"
)

// Error types for game construction and play
var (
	ErrPlayerCount = errors.New("player count does not match game description")
	ErrNilPlayer   = errors.New("player cannot be nil")
)

// RoundRecord captures one played round
type RoundRecord struct {
	Actions []Action  // per player, positionally aligned with the players
	Payoffs []float64 // per player
	Stock   float64   // resource stock before the round (common pool only)
}

// Result is the outcome of one complete game
type Result struct {
	TotalPayoffs      []float64 // per player, summed over rounds
	TotalCooperations []int     // per player, number of cooperative rounds
	Rounds            []RoundRecord
}

// Game plays one complete repeated game
type Game interface {
	Play() (*Result, error)
}

// Factory constructs a game for a set of players and a description
type Factory interface {
	NewGame(players []Player, d Description) (Game, error)
}

// FactoryFunc adapts a function to the Factory interface
type FactoryFunc func(players []Player, d Description) (Game, error)

// NewGame calls f(players, d)
func (f FactoryFunc) NewGame(players []Player, d Description) (Game, error) {
	return f(players, d)
}

// DefaultFactory dispatches on the description variant to the matching engine
type DefaultFactory struct{}

// NewGame builds the engine for d
func (DefaultFactory) NewGame(players []Player, d Description) (Game, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil description", ErrInvalidDescription)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if len(players) != d.NPlayers() {
		return nil, fmt.Errorf("%w: %s expects %d players, got %d",
			ErrPlayerCount, d.TypeName(), d.NPlayers(), len(players))
	}
	for i, p := range players {
		if p == nil {
			return nil, fmt.Errorf("%w: seat %d", ErrNilPlayer, i)
		}
	}

	base := repeatedGame{players: players, rounds: d.NRounds()}
	switch v := d.(type) {
	case PublicGoods:
		return &PublicGoodsGame{repeatedGame: base, desc: v}, nil
	case CollectiveRisk:
		return &CollectiveRiskGame{repeatedGame: base, desc: v}, nil
	case CommonPool:
		return &CommonPoolGame{repeatedGame: base, desc: v}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownDescription, d)
	}
}

// repeatedGame holds the round loop shared by all engines
type repeatedGame struct {
	players []Player
	rounds  int
}

// play runs the round loop. payoffs maps the round actions to per player payoffs and
// returns the next stock value; stock is only meaningful for the common pool.
func (g *repeatedGame) play(view RoundView, payoffs func(actions []Action, stock float64) ([]float64, float64)) *Result {
	n := len(g.players)
	result := &Result{
		TotalPayoffs:      make([]float64, n),
		TotalCooperations: make([]int, n),
		Rounds:            make([]RoundRecord, 0, g.rounds),
	}
	histories := make([][]Action, n)
	var cooperation []int
	stock := view.Stock

	for round := range g.rounds {
		actions := make([]Action, n)
		for i, p := range g.players {
			v := view
			v.Round = round
			v.Rounds = g.rounds
			v.Players = n
			v.LastCooperators = -1
			if len(cooperation) > 0 {
				v.LastCooperators = cooperation[len(cooperation)-1]
			}
			v.OwnHistory = histories[i]
			v.CooperationHistory = cooperation
			v.Stock = stock
			actions[i] = p.Decide(v)
		}

		cooperators := 0
		for i, a := range actions {
			histories[i] = append(histories[i], a)
			if a == Cooperate {
				cooperators++
				result.TotalCooperations[i]++
			}
		}

		roundPayoffs, next := payoffs(actions, stock)
		for i, p := range roundPayoffs {
			result.TotalPayoffs[i] += p
		}
		result.Rounds = append(result.Rounds, RoundRecord{Actions: actions, Payoffs: roundPayoffs, Stock: stock})
		cooperation = append(cooperation, cooperators)
		stock = next
	}

	return result
}

func countCooperators(actions []Action) int {
	c := 0
	for _, a := range actions {
		if a == Cooperate {
			c++
		}
	}
	return c
}

// PublicGoodsGame plays a repeated public goods game
type PublicGoodsGame struct {
	repeatedGame
	desc PublicGoods
}

// Play runs every round and returns the totals
func (g *PublicGoodsGame) Play() (*Result, error) {
	n := float64(len(g.players))
	return g.play(RoundView{}, func(actions []Action, _ float64) ([]float64, float64) {
		share := g.desc.K * float64(countCooperators(actions)) / n
		out := make([]float64, len(actions))
		for i, a := range actions {
			out[i] = share
			if a == Defect {
				out[i]++
			}
		}
		return out, 0
	}), nil
}

// CollectiveRiskGame plays a repeated threshold game
type CollectiveRiskGame struct {
	repeatedGame
	desc CollectiveRisk
}

// Play runs every round and returns the totals
func (g *CollectiveRiskGame) Play() (*Result, error) {
	return g.play(RoundView{Threshold: g.desc.M}, func(actions []Action, _ float64) ([]float64, float64) {
		reward := 0.0
		if countCooperators(actions) >= g.desc.M {
			reward = g.desc.K
		}
		out := make([]float64, len(actions))
		for i, a := range actions {
			out[i] = reward
			if a == Defect {
				out[i]++
			}
		}
		return out, 0
	}), nil
}

// CommonPoolGame plays a repeated renewable resource game
type CommonPoolGame struct {
	repeatedGame
	desc CommonPool
}

// Play runs every round and returns the totals
func (g *CommonPoolGame) Play() (*Result, error) {
	n := float64(len(g.players))
	capacity := g.desc.Capacity
	view := RoundView{Stock: capacity, Capacity: capacity}
	return g.play(view, func(actions []Action, stock float64) ([]float64, float64) {
		out := make([]float64, len(actions))
		consumed := 0.0
		for i, a := range actions {
			take := stock / n
			if a == Cooperate {
				take = stock / (2 * n)
			}
			out[i] = take
			consumed += take
		}
		remaining := stock - consumed
		if remaining < 0 {
			remaining = 0
		}
		next := remaining + 2*remaining*(1-remaining/capacity)
		if next > capacity {
			next = capacity
		}
		return out, next
	}), nil
}
