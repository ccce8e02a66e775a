package screens

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pashagolub/dilemma/pkg/elo"
	"github.com/pashagolub/dilemma/pkg/game"
	"github.com/pashagolub/dilemma/pkg/strategy"
	"github.com/pashagolub/dilemma/pkg/tournament"
)

// mockApp provides the results and navigation the screens look up
type mockApp struct {
	fair       *tournament.FairResults
	mixture    *tournament.MixtureResults
	ledger     *elo.Ledger
	exportPath string
	exportedAt *time.Time
	backCalls  int
}

func (m *mockApp) FairResults() *tournament.FairResults       { return m.fair }
func (m *mockApp) MixtureResults() *tournament.MixtureResults { return m.mixture }
func (m *mockApp) Ledger() *elo.Ledger                        { return m.ledger }
func (m *mockApp) LastExport() (string, *time.Time)           { return m.exportPath, m.exportedAt }
func (m *mockApp) GoBack() error {
	m.backCalls++
	return nil
}

func newFairApp(t *testing.T, rated bool) *mockApp {
	t.Helper()
	desc := game.PublicGoods{Players: 3, Rounds: 4, K: 2}
	var specs []strategy.Spec
	for range 2 {
		specs = append(specs, strategy.Builtins()...)
	}
	tour, err := tournament.NewFairTournament(tournament.Config{GameDescription: desc, Repetitions: 2},
		tournament.NewPlayers(specs, desc), tournament.WithSeed(9))
	require.NoError(t, err)
	res, err := tour.Play(context.Background())
	require.NoError(t, err)

	app := &mockApp{fair: res}
	if rated {
		engine, err := elo.NewEngine(elo.Config{InitialRating: 1500, KFactor: 32, MinRating: 0, MaxRating: 3000})
		require.NoError(t, err)
		app.ledger, err = elo.RateFair(engine, res)
		require.NoError(t, err)
	}
	return app
}

func key(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestStandingsScreen_OnEnter(t *testing.T) {
	t.Run("requires fair results", func(t *testing.T) {
		ss := NewStandingsScreen()
		assert.ErrorIs(t, ss.OnEnter(struct{}{}), ErrNoFairResults)
		assert.ErrorIs(t, ss.OnEnter(&mockApp{}), ErrNoFairResults)
	})

	t.Run("rows follow the payoff table", func(t *testing.T) {
		app := newFairApp(t, true)
		ss := NewStandingsScreen()
		require.NoError(t, ss.OnEnter(app))

		table := app.fair.Table()
		rows := ss.Rows()
		require.Len(t, rows, len(table))
		for i, row := range rows {
			assert.Equal(t, i+1, row.Rank)
			assert.Equal(t, table[i], row.PlayerRow)
			rating, ok := app.ledger.Rating(row.ID())
			require.True(t, ok)
			assert.Equal(t, rating.Score, row.Rating)
		}
		assert.Equal(t, "Standings (12 players)", ss.GetTitle())
		assert.Equal(t, len(table)+1, ss.standingsTable.GetRowCount())
		assert.Contains(t, ss.ratingsPanel.GetText(false), strategy.AlwaysDefect)
		assert.Contains(t, ss.statisticsPanel.GetText(false), game.PublicGoodsType)
		require.NotNil(t, ss.gauge.GetMetrics())
		assert.Equal(t, len(app.fair.Matches()), ss.gauge.GetMetrics().Matches)
		assert.False(t, math.IsNaN(ss.gauge.GetMetrics().AvgRatingChange))
	})

	t.Run("unrated results", func(t *testing.T) {
		ss := NewStandingsScreen()
		require.NoError(t, ss.OnEnter(newFairApp(t, false)))
		for _, row := range ss.Rows() {
			assert.True(t, math.IsNaN(row.Rating))
		}
		assert.Contains(t, ss.ratingsPanel.GetText(false), "Ratings disabled")
		assert.True(t, math.IsNaN(ss.gauge.GetMetrics().AvgRatingChange))
	})
}

func TestStandingsScreen_Sort(t *testing.T) {
	app := newFairApp(t, true)

	tests := []struct {
		name    string
		presses int
		ordered func(a, b StandingRow) bool
	}{
		{name: "rank", presses: 0, ordered: func(a, b StandingRow) bool { return a.Rank < b.Rank }},
		{name: "rating", presses: 1, ordered: func(a, b StandingRow) bool { return a.Rating >= b.Rating }},
		{name: "cooperation", presses: 2, ordered: func(a, b StandingRow) bool { return a.MeanCooperations >= b.MeanCooperations }},
		{name: "name", presses: 3, ordered: func(a, b StandingRow) bool { return a.Name <= b.Name }},
		{name: "strategy", presses: 4, ordered: func(a, b StandingRow) bool { return a.Strategy <= b.Strategy }},
		{name: "wraps to rank", presses: 5, ordered: func(a, b StandingRow) bool { return a.Rank < b.Rank }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ss := NewStandingsScreen()
			require.NoError(t, ss.OnEnter(app))
			capture := ss.standingsTable.GetInputCapture()
			for range tt.presses {
				assert.Nil(t, capture(key('s')))
			}

			rows := ss.Rows()
			for i := 1; i < len(rows); i++ {
				assert.True(t, tt.ordered(rows[i-1], rows[i]), "rows %d and %d out of order", i-1, i)
			}
		})
	}

	t.Run("descending rank", func(t *testing.T) {
		ss := NewStandingsScreen()
		require.NoError(t, ss.OnEnter(app))
		assert.Nil(t, ss.standingsTable.GetInputCapture()(key('o')))

		rows := ss.Rows()
		assert.Equal(t, len(rows), rows[0].Rank)
		assert.Equal(t, 1, rows[len(rows)-1].Rank)
		assert.Contains(t, ss.statusBar.GetText(false), "Rank ↓")
	})
}

func TestStandingsScreen_Filter(t *testing.T) {
	app := newFairApp(t, false)
	ss := NewStandingsScreen()
	require.NoError(t, ss.OnEnter(app))
	capture := ss.standingsTable.GetInputCapture()

	count := func(a game.Attitude) int {
		n := 0
		for _, row := range app.fair.Table() {
			if row.Attitude == a {
				n++
			}
		}
		return n
	}

	t.Run("attitude cycle", func(t *testing.T) {
		for _, want := range []game.Attitude{game.Cooperative, game.Aggressive, game.Neutral} {
			capture(key('a'))
			rows := ss.Rows()
			assert.Len(t, rows, count(want))
			for _, row := range rows {
				assert.Equal(t, want, row.Attitude)
			}
		}
		capture(key('a'))
		assert.Len(t, ss.Rows(), len(app.fair.Table()))
	})

	t.Run("search", func(t *testing.T) {
		ss.filter.SearchText = "GRIM"
		ss.applyFilterAndSort()
		rows := ss.Rows()
		require.Len(t, rows, 2)
		for _, row := range rows {
			assert.Equal(t, strategy.GrimTrigger, row.Strategy)
		}
		assert.Equal(t, "Standings (2/12 players)", ss.GetTitle())
	})

	t.Run("clear", func(t *testing.T) {
		capture(key('a'))
		capture(key('c'))
		assert.Len(t, ss.Rows(), len(app.fair.Table()))
		assert.Equal(t, FilterCriteria{}, ss.filter)
	})
}

func TestStandingsScreen_Navigation(t *testing.T) {
	now := time.Now()
	app := newFairApp(t, false)
	app.exportPath = "out/summary_export.csv"
	app.exportedAt = &now

	ss := NewStandingsScreen()
	require.NoError(t, ss.OnEnter(app))
	assert.Contains(t, ss.statusBar.GetText(false), "Exported out/summary_export.csv")

	capture := ss.standingsTable.GetInputCapture()
	assert.Nil(t, capture(key('q')))
	assert.Nil(t, capture(tcell.NewEventKey(tcell.KeyEsc, 0, tcell.ModNone)))
	assert.Equal(t, 2, app.backCalls)

	passthrough := key('x')
	assert.Same(t, passthrough, capture(passthrough))
	assert.NoError(t, ss.OnExit(app))
}

func TestSortFieldString(t *testing.T) {
	assert.Equal(t, "Rating", SortByRating.String())
	assert.Equal(t, "Unknown", SortField(42).String())
}
