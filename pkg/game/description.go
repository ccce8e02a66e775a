package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Error types for game descriptions
var (
	ErrUnknownDescription = errors.New("unknown game description type")
	ErrInvalidDescription = errors.New("invalid game description")
	ErrUnknownGenerator   = errors.New("unknown game description generator")
)

// Serialization tags for the description variants
const (
	PublicGoodsType    = "PublicGoodsDescription"
	CollectiveRiskType = "CollectiveRiskDescription"
	CommonPoolType     = "CommonPoolDescription"
)

// Description is the closed set of game parameterizations. Only the variants
// declared in this package implement it.
type Description interface {
	TypeName() string
	NPlayers() int
	NRounds() int
	Validate() error

	// Per-game payoff and welfare bounds; social welfare is the mean payoff per player.
	MinPayoff() float64
	MaxPayoff() float64
	MinSocialWelfare() float64
	MaxSocialWelfare() float64

	sealed()
}

// PublicGoods describes a public goods game: contributions are multiplied by K
// and shared equally among all players.
type PublicGoods struct {
	Players int     `json:"n_players"`
	Rounds  int     `json:"n_rounds"`
	K       float64 `json:"k"`
}

// CollectiveRisk describes a threshold game: every player receives K in a round
// where at least M players cooperate.
type CollectiveRisk struct {
	Players int     `json:"n_players"`
	Rounds  int     `json:"n_rounds"`
	M       int     `json:"m"`
	K       float64 `json:"k"`
}

// CommonPool describes a shared renewable resource game
type CommonPool struct {
	Players  int     `json:"n_players"`
	Rounds   int     `json:"n_rounds"`
	Capacity float64 `json:"capacity"`
}

func (PublicGoods) sealed()    {}
func (CollectiveRisk) sealed() {}
func (CommonPool) sealed()     {}

// TypeName returns the serialization tag
func (PublicGoods) TypeName() string { return PublicGoodsType }

// TypeName returns the serialization tag
func (CollectiveRisk) TypeName() string { return CollectiveRiskType }

// TypeName returns the serialization tag
func (CommonPool) TypeName() string { return CommonPoolType }

func (d PublicGoods) NPlayers() int    { return d.Players }
func (d PublicGoods) NRounds() int     { return d.Rounds }
func (d CollectiveRisk) NPlayers() int { return d.Players }
func (d CollectiveRisk) NRounds() int  { return d.Rounds }
func (d CommonPool) NPlayers() int     { return d.Players }
func (d CommonPool) NRounds() int      { return d.Rounds }

func validateShape(players, rounds int) error {
	if players < 1 {
		return fmt.Errorf("%w: n_players must be positive, got %d", ErrInvalidDescription, players)
	}
	if rounds < 1 {
		return fmt.Errorf("%w: n_rounds must be positive, got %d", ErrInvalidDescription, rounds)
	}
	return nil
}

// Validate checks the public goods parameters
func (d PublicGoods) Validate() error {
	if err := validateShape(d.Players, d.Rounds); err != nil {
		return err
	}
	if d.K <= 0 || math.IsNaN(d.K) || math.IsInf(d.K, 0) {
		return fmt.Errorf("%w: k must be positive and finite, got %v", ErrInvalidDescription, d.K)
	}
	return nil
}

// Validate checks the collective risk parameters
func (d CollectiveRisk) Validate() error {
	if err := validateShape(d.Players, d.Rounds); err != nil {
		return err
	}
	if d.M < 1 || d.M > d.Players {
		return fmt.Errorf("%w: m must be in [1, %d], got %d", ErrInvalidDescription, d.Players, d.M)
	}
	if d.K <= 0 || math.IsNaN(d.K) || math.IsInf(d.K, 0) {
		return fmt.Errorf("%w: k must be positive and finite, got %v", ErrInvalidDescription, d.K)
	}
	return nil
}

// Validate checks the common pool parameters
func (d CommonPool) Validate() error {
	if err := validateShape(d.Players, d.Rounds); err != nil {
		return err
	}
	if d.Capacity <= 0 || math.IsNaN(d.Capacity) || math.IsInf(d.Capacity, 0) {
		return fmt.Errorf("%w: capacity must be positive and finite, got %v", ErrInvalidDescription, d.Capacity)
	}
	return nil
}

// Public goods round payoff: (1 - c) + k/n * cooperators

func (d PublicGoods) MinPayoff() float64 {
	// cooperating alone
	return float64(d.Rounds) * d.K / float64(d.Players)
}

func (d PublicGoods) MaxPayoff() float64 {
	// defecting among cooperators
	n := float64(d.Players)
	return float64(d.Rounds) * (1 + d.K*(n-1)/n)
}

func (d PublicGoods) MinSocialWelfare() float64 {
	return float64(d.Rounds) * math.Min(1, d.K)
}

func (d PublicGoods) MaxSocialWelfare() float64 {
	return float64(d.Rounds) * math.Max(1, d.K)
}

// Collective risk round payoff: (1 - c) + k if cooperators >= m

func (d CollectiveRisk) MinPayoff() float64 {
	if d.M <= 1 {
		// a cooperator always reaches the threshold; defectors keep 1 when nobody cooperates
		return float64(d.Rounds) * math.Min(1, d.K)
	}
	return 0
}

func (d CollectiveRisk) MaxPayoff() float64 {
	if d.M >= d.Players {
		return float64(d.Rounds) * math.Max(1, d.K)
	}
	return float64(d.Rounds) * (1 + d.K)
}

func (d CollectiveRisk) welfare(cooperators int) float64 {
	n := float64(d.Players)
	w := (n - float64(cooperators)) / n
	if cooperators >= d.M {
		w += d.K
	}
	return w
}

func (d CollectiveRisk) MinSocialWelfare() float64 {
	lowest := math.Inf(1)
	for s := 0; s <= d.Players; s++ {
		lowest = math.Min(lowest, d.welfare(s))
	}
	return float64(d.Rounds) * lowest
}

func (d CollectiveRisk) MaxSocialWelfare() float64 {
	highest := math.Inf(-1)
	for s := 0; s <= d.Players; s++ {
		highest = math.Max(highest, d.welfare(s))
	}
	return float64(d.Rounds) * highest
}

// Common pool: the stock never exceeds capacity, so a round share is at most capacity/n.

func (d CommonPool) MinPayoff() float64 { return 0 }

func (d CommonPool) MaxPayoff() float64 {
	return float64(d.Rounds) * d.Capacity / float64(d.Players)
}

func (d CommonPool) MinSocialWelfare() float64 { return 0 }

func (d CommonPool) MaxSocialWelfare() float64 {
	n := float64(d.Players)
	sustained := float64(d.Rounds) * d.Capacity / (2 * n)
	return math.Max(sustained, d.Capacity/n)
}

// MarshalDescription returns the type tag and field map of a description
func MarshalDescription(d Description) (string, map[string]any, error) {
	if d == nil {
		return "", nil, fmt.Errorf("%w: nil description", ErrInvalidDescription)
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	return d.TypeName(), fields, nil
}

// UnmarshalDescription rebuilds a description from its type tag and field map.
// fields may be a map[string]any or a json.RawMessage.
func UnmarshalDescription(typeName string, fields any) (Description, error) {
	var raw []byte
	switch f := fields.(type) {
	case json.RawMessage:
		raw = f
	case []byte:
		raw = f
	default:
		b, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
		}
		raw = b
	}

	var d Description
	switch typeName {
	case PublicGoodsType:
		var pg PublicGoods
		if err := json.Unmarshal(raw, &pg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescription, typeName, err)
		}
		d = pg
	case CollectiveRiskType:
		var cr CollectiveRisk
		if err := json.Unmarshal(raw, &cr); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescription, typeName, err)
		}
		d = cr
	case CommonPoolType:
		var cp CommonPool
		if err := json.Unmarshal(raw, &cp); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescription, typeName, err)
		}
		d = cp
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDescription, typeName)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Generator builds a description for a population size
type Generator func(nPlayers int) Description

// DefaultRounds is the number of rounds used by the registered generators
const DefaultRounds = 10

var generators = map[string]Generator{
	"public_goods": func(n int) Description {
		return PublicGoods{Players: n, Rounds: DefaultRounds, K: 1 + float64(n-1)/2}
	},
	"collective_risk": func(n int) Description {
		return CollectiveRisk{Players: n, Rounds: DefaultRounds, M: (n + 1) / 2, K: 2.0}
	},
	"common_pool": func(n int) Description {
		return CommonPool{Players: n, Rounds: DefaultRounds, Capacity: 100 * float64(n)}
	},
}

// LookupGenerator returns the generator registered under name
func LookupGenerator(name string) (Generator, error) {
	g, ok := generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownGenerator, name, GeneratorNames())
	}
	return g, nil
}

// GeneratorNames lists the registered generator names in sorted order
func GeneratorNames() []string {
	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDescription builds a description for a game type name such as "public_goods",
// "collective_risk" or "common_pool" with explicit parameters. Zero values of the
// optional parameters fall back to the generator defaults.
func NewDescription(gameType string, players, rounds int, k float64, m int, capacity float64) (Description, error) {
	gen, err := LookupGenerator(gameType)
	if err != nil {
		return nil, err
	}
	d := gen(players)
	switch v := d.(type) {
	case PublicGoods:
		if rounds > 0 {
			v.Rounds = rounds
		}
		if k > 0 {
			v.K = k
		}
		d = v
	case CollectiveRisk:
		if rounds > 0 {
			v.Rounds = rounds
		}
		if k > 0 {
			v.K = k
		}
		if m > 0 {
			v.M = m
		}
		d = v
	case CommonPool:
		if rounds > 0 {
			v.Rounds = rounds
		}
		if capacity > 0 {
			v.Capacity = capacity
		}
		d = v
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
