package game

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedPlayer always plays the same action and remembers what it saw
type fixedPlayer struct {
	name   string
	action Action
	views  []RoundView
}

func (p *fixedPlayer) ID() PlayerID {
	return PlayerID{Name: p.name, Attitude: Neutral, Strategy: "fixed_" + p.action.String()}
}
func (p *fixedPlayer) Name() string { return p.name }
func (p *fixedPlayer) Decide(view RoundView) Action {
	p.views = append(p.views, view)
	return p.action
}

// seats returns cooperators first, then defectors
func seats(cooperators, defectors int) []Player {
	players := make([]Player, 0, cooperators+defectors)
	for i := range cooperators {
		players = append(players, &fixedPlayer{name: fmt.Sprintf("c%d", i), action: Cooperate})
	}
	for i := range defectors {
		players = append(players, &fixedPlayer{name: fmt.Sprintf("d%d", i), action: Defect})
	}
	return players
}

func play(t *testing.T, d Description, players []Player) *Result {
	t.Helper()
	g, err := DefaultFactory{}.NewGame(players, d)
	require.NoError(t, err)
	res, err := g.Play()
	require.NoError(t, err)
	return res
}

func TestParseAttitude(t *testing.T) {
	tests := []struct {
		input   string
		want    Attitude
		wantErr bool
	}{
		{input: "COOPERATIVE", want: Cooperative},
		{input: "aggressive", want: Aggressive},
		{input: " Neutral ", want: Neutral},
		{input: "friendly", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAttitude(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownAttitude)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlayerID_JSON(t *testing.T) {
	id := PlayerID{Name: "grim_trigger_01", Attitude: Cooperative, Strategy: "grim_trigger"}

	raw, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `["grim_trigger_01","COOPERATIVE","grim_trigger"]`, string(raw))

	var back PlayerID
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, id, back)

	for _, bad := range []string{`{"name":"x"}`, `["x","COOPERATIVE"]`, `["x","KIND","s"]`} {
		assert.ErrorIs(t, json.Unmarshal([]byte(bad), &back), ErrInvalidPlayerID, bad)
	}

	m := map[PlayerID]int{id: 1}
	assert.Equal(t, 1, m[PlayerID{Name: "grim_trigger_01", Attitude: Cooperative, Strategy: "grim_trigger"}])
}

func TestDescription_Validate(t *testing.T) {
	tests := []struct {
		name    string
		desc    Description
		wantErr bool
	}{
		{name: "public goods", desc: PublicGoods{Players: 4, Rounds: 10, K: 2.5}},
		{name: "public goods zero k", desc: PublicGoods{Players: 4, Rounds: 10}, wantErr: true},
		{name: "no players", desc: PublicGoods{Rounds: 10, K: 2}, wantErr: true},
		{name: "no rounds", desc: CommonPool{Players: 2, Capacity: 10}, wantErr: true},
		{name: "collective risk", desc: CollectiveRisk{Players: 4, Rounds: 5, M: 2, K: 2}},
		{name: "threshold above group", desc: CollectiveRisk{Players: 4, Rounds: 5, M: 5, K: 2}, wantErr: true},
		{name: "zero threshold", desc: CollectiveRisk{Players: 4, Rounds: 5, K: 2}, wantErr: true},
		{name: "common pool", desc: CommonPool{Players: 3, Rounds: 5, Capacity: 300}},
		{name: "negative capacity", desc: CommonPool{Players: 3, Rounds: 5, Capacity: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDescription)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDescription_Codec(t *testing.T) {
	descs := []Description{
		PublicGoods{Players: 4, Rounds: 10, K: 2.5},
		CollectiveRisk{Players: 5, Rounds: 8, M: 3, K: 1.5},
		CommonPool{Players: 3, Rounds: 6, Capacity: 300},
	}

	for _, d := range descs {
		t.Run(d.TypeName(), func(t *testing.T) {
			typeName, fields, err := MarshalDescription(d)
			require.NoError(t, err)
			assert.Equal(t, d.TypeName(), typeName)
			assert.Contains(t, fields, "n_players")
			assert.Contains(t, fields, "n_rounds")

			back, err := UnmarshalDescription(typeName, fields)
			require.NoError(t, err)
			assert.Equal(t, d, back)

			raw, err := json.Marshal(fields)
			require.NoError(t, err)
			back, err = UnmarshalDescription(typeName, json.RawMessage(raw))
			require.NoError(t, err)
			assert.Equal(t, d, back)
		})
	}

	t.Run("unknown tag", func(t *testing.T) {
		_, err := UnmarshalDescription("PrisonersDilemmaDescription", map[string]any{"n_players": 2})
		assert.ErrorIs(t, err, ErrUnknownDescription)
	})

	t.Run("invalid fields", func(t *testing.T) {
		_, err := UnmarshalDescription(PublicGoodsType, map[string]any{"n_players": 2, "n_rounds": 1, "k": 0})
		assert.ErrorIs(t, err, ErrInvalidDescription)
		_, err = UnmarshalDescription(CommonPoolType, json.RawMessage(`{"n_players":"two"}`))
		assert.ErrorIs(t, err, ErrInvalidDescription)
	})

	t.Run("nil", func(t *testing.T) {
		_, _, err := MarshalDescription(nil)
		assert.ErrorIs(t, err, ErrInvalidDescription)
	})
}

func TestGenerators(t *testing.T) {
	assert.Equal(t, []string{"collective_risk", "common_pool", "public_goods"}, GeneratorNames())

	for _, name := range GeneratorNames() {
		gen, err := LookupGenerator(name)
		require.NoError(t, err)
		for _, n := range []int{1, 2, 5, 8} {
			d := gen(n)
			assert.Equal(t, n, d.NPlayers(), name)
			assert.Equal(t, DefaultRounds, d.NRounds(), name)
			assert.NoError(t, d.Validate(), "%s(%d)", name, n)
		}
	}

	_, err := LookupGenerator("stag_hunt")
	assert.ErrorIs(t, err, ErrUnknownGenerator)
}

func TestNewDescription(t *testing.T) {
	d, err := NewDescription("collective_risk", 6, 4, 3, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, CollectiveRisk{Players: 6, Rounds: 4, M: 2, K: 3}, d)

	d, err = NewDescription("common_pool", 4, 0, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, CommonPool{Players: 4, Rounds: DefaultRounds, Capacity: 400}, d)

	_, err = NewDescription("collective_risk", 3, 0, 0, 4, 0)
	assert.ErrorIs(t, err, ErrInvalidDescription)

	_, err = NewDescription("unknown", 3, 0, 0, 0, 0)
	assert.ErrorIs(t, err, ErrUnknownGenerator)
}

func TestDefaultFactory_Errors(t *testing.T) {
	d := PublicGoods{Players: 3, Rounds: 2, K: 2}

	_, err := DefaultFactory{}.NewGame(seats(1, 1), d)
	assert.ErrorIs(t, err, ErrPlayerCount)

	_, err = DefaultFactory{}.NewGame([]Player{seats(1, 0)[0], nil, seats(0, 1)[0]}, d)
	assert.ErrorIs(t, err, ErrNilPlayer)

	_, err = DefaultFactory{}.NewGame(seats(1, 2), nil)
	assert.ErrorIs(t, err, ErrInvalidDescription)

	_, err = DefaultFactory{}.NewGame(seats(1, 2), PublicGoods{Players: 3, Rounds: 2})
	assert.ErrorIs(t, err, ErrInvalidDescription)

	var called bool
	f := FactoryFunc(func(players []Player, d Description) (Game, error) {
		called = true
		return DefaultFactory{}.NewGame(players, d)
	})
	_, err = f.NewGame(seats(2, 1), d)
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestPublicGoodsGame(t *testing.T) {
	d := PublicGoods{Players: 4, Rounds: 3, K: 2}
	res := play(t, d, seats(2, 2))

	// share per round is k * 2 / 4 = 1; defectors keep their endowment on top
	assert.Equal(t, []float64{3, 3, 6, 6}, res.TotalPayoffs)
	assert.Equal(t, []int{3, 3, 0, 0}, res.TotalCooperations)
	require.Len(t, res.Rounds, 3)
	assert.Equal(t, []Action{Cooperate, Cooperate, Defect, Defect}, res.Rounds[0].Actions)
}

func TestCollectiveRiskGame(t *testing.T) {
	d := CollectiveRisk{Players: 3, Rounds: 2, M: 2, K: 2}

	t.Run("threshold reached", func(t *testing.T) {
		res := play(t, d, seats(2, 1))
		assert.Equal(t, []float64{4, 4, 6}, res.TotalPayoffs)
	})

	t.Run("threshold missed", func(t *testing.T) {
		res := play(t, d, seats(1, 2))
		assert.Equal(t, []float64{0, 2, 2}, res.TotalPayoffs)
	})

	t.Run("players see the threshold", func(t *testing.T) {
		players := seats(1, 2)
		play(t, d, players)
		for _, v := range players[0].(*fixedPlayer).views {
			assert.Equal(t, 2, v.Threshold)
		}
	})
}

func TestCommonPoolGame(t *testing.T) {
	d := CommonPool{Players: 2, Rounds: 2, Capacity: 100}

	t.Run("restraint regrows the stock", func(t *testing.T) {
		res := play(t, d, seats(2, 0))
		// each takes stock/(2n) = 25, the remaining 50 regrows to 100
		assert.Equal(t, []float64{50, 50}, res.TotalPayoffs)
		assert.InDelta(t, 100, res.Rounds[1].Stock, 1e-9)
	})

	t.Run("greed exhausts the stock", func(t *testing.T) {
		res := play(t, d, seats(0, 2))
		assert.Equal(t, []float64{50, 50}, res.TotalPayoffs)
		assert.Zero(t, res.Rounds[1].Stock)
		assert.Equal(t, []float64{0, 0}, res.Rounds[1].Payoffs)
	})

	t.Run("mixed", func(t *testing.T) {
		res := play(t, CommonPool{Players: 2, Rounds: 1, Capacity: 100}, seats(1, 1))
		assert.Equal(t, []float64{25, 50}, res.TotalPayoffs)
	})
}

func TestRoundView(t *testing.T) {
	players := seats(1, 2)
	play(t, PublicGoods{Players: 3, Rounds: 3, K: 2}, players)

	views := players[0].(*fixedPlayer).views
	require.Len(t, views, 3)
	assert.Equal(t, -1, views[0].LastCooperators)
	assert.Empty(t, views[0].OwnHistory)
	for i, v := range views {
		assert.Equal(t, i, v.Round)
		assert.Equal(t, 3, v.Rounds)
		assert.Equal(t, 3, v.Players)
		assert.Len(t, v.OwnHistory, i)
		assert.Len(t, v.CooperationHistory, i)
	}
	assert.Equal(t, 1, views[2].LastCooperators)
	assert.Equal(t, []int{1, 1}, views[2].CooperationHistory)
}

func TestBoundsHoldForEveryComposition(t *testing.T) {
	for _, name := range GeneratorNames() {
		gen, err := LookupGenerator(name)
		require.NoError(t, err)
		for _, n := range []int{2, 3, 5} {
			d := gen(n)
			for c := 0; c <= n; c++ {
				t.Run(fmt.Sprintf("%s/n%d/c%d", name, n, c), func(t *testing.T) {
					res := play(t, d, seats(c, n-c))
					welfare := 0.0
					for _, p := range res.TotalPayoffs {
						assert.GreaterOrEqual(t, p, d.MinPayoff()-1e-9)
						assert.LessOrEqual(t, p, d.MaxPayoff()+1e-9)
						welfare += p
					}
					welfare /= float64(n)
					assert.GreaterOrEqual(t, welfare, d.MinSocialWelfare()-1e-9)
					assert.LessOrEqual(t, welfare, d.MaxSocialWelfare()+1e-9)
				})
			}
		}
	}
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "C", Cooperate.String())
	assert.Equal(t, "D", Defect.String())
}
