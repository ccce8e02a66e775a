package tournament

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/pashagolub/dilemma/pkg/game"
	"github.com/pashagolub/dilemma/pkg/strategy"
)

var errEngine = errors.New("engine exploded")

// countingFactory counts game constructions and optionally fails selected calls
type countingFactory struct {
	calls  atomic.Int64
	failOn func(call int64) bool
}

func (f *countingFactory) NewGame(players []game.Player, d game.Description) (game.Game, error) {
	call := f.calls.Add(1)
	if f.failOn != nil && f.failOn(call) {
		return failingGame{}, nil
	}
	return game.DefaultFactory{}.NewGame(players, d)
}

type failingGame struct{}

func (failingGame) Play() (*game.Result, error) { return nil, errEngine }

// eventLog captures recorder events
type eventLog struct {
	mu     sync.Mutex
	events []string
	sizes  []int
}

func (l *eventLog) Record(event string, groupSize int, _ string, _ map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	l.sizes = append(l.sizes, groupSize)
	return nil
}

func (l *eventLog) count(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == event {
			n++
		}
	}
	return n
}

func testLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t))
}

// pool cycles through the built-in strategies to build n specs
func pool(n int) []strategy.Spec {
	builtins := strategy.Builtins()
	specs := make([]strategy.Spec, n)
	for i := range specs {
		specs[i] = builtins[i%len(builtins)]
	}
	return specs
}

func cooperativePool() []strategy.Spec {
	return strategy.FilterByAttitude(strategy.Builtins(), game.Cooperative)
}

func aggressivePool() []strategy.Spec {
	return strategy.FilterByAttitude(strategy.Builtins(), game.Aggressive)
}

func publicGoods(n int) game.Description {
	return game.PublicGoods{Players: n, Rounds: 5, K: 1.5}
}

func floatsEqual(t *testing.T, want, got float64, msgAndArgs ...any) {
	t.Helper()
	if math.IsNaN(want) {
		assert.True(t, math.IsNaN(got), msgAndArgs...)
		return
	}
	assert.InDelta(t, want, got, 1e-9, msgAndArgs...)
}

func assertPlayerTablesEqual(t *testing.T, want, got []PlayerRow) {
	t.Helper()
	if !assert.Len(t, got, len(want)) {
		return
	}
	for i := range want {
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].Attitude, got[i].Attitude)
		assert.Equal(t, want[i].Strategy, got[i].Strategy)
		assert.Equal(t, want[i].GamesPlayed, got[i].GamesPlayed)
		assert.Equal(t, want[i].TotalCooperations, got[i].TotalCooperations)
		floatsEqual(t, want[i].MeanPayoff, got[i].MeanPayoff)
		floatsEqual(t, want[i].TotalPayoff, got[i].TotalPayoff)
		floatsEqual(t, want[i].MeanCooperations, got[i].MeanCooperations)
	}
}

func assertMixtureTablesEqual(t *testing.T, want, got []MixtureRow) {
	t.Helper()
	if !assert.Len(t, got, len(want)) {
		return
	}
	for i := range want {
		assert.Equal(t, want[i].GroupSize, got[i].GroupSize)
		assert.Equal(t, want[i].NCooperative, got[i].NCooperative)
		assert.Equal(t, want[i].NAggressive, got[i].NAggressive)
		assert.Equal(t, want[i].MatchesPlayed, got[i].MatchesPlayed)
		floatsEqual(t, want[i].CooperativeRatio, got[i].CooperativeRatio)
		floatsEqual(t, want[i].AggressiveRatio, got[i].AggressiveRatio)
		floatsEqual(t, want[i].AvgCooperativeScore, got[i].AvgCooperativeScore)
		floatsEqual(t, want[i].AvgAggressiveScore, got[i].AvgAggressiveScore)
		floatsEqual(t, want[i].AvgSocialWelfare, got[i].AvgSocialWelfare)
	}
}
