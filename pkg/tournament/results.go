package tournament

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/pashagolub/dilemma/pkg/game"
)

// Result type tags written into persisted files
const (
	FairResultType    = "FairTournamentResults"
	MixtureResultType = "MixtureTournamentResults"
	BatchResultType   = "BatchTournamentResults"
)

// Results is the validated outcome of one tournament run
type Results interface {
	ResultType() string
	Config() Config
	GroupSize() int
	Matches() []MatchResult
	// Summary returns the summary table as a header row followed by data rows
	Summary() [][]string
	Save(dir string) error
}

// PlayerRow is one line of the fair tournament summary
type PlayerRow struct {
	Name              string        `json:"name"`
	Attitude          game.Attitude `json:"attitude"`
	Strategy          string        `json:"strategy"`
	GamesPlayed       int           `json:"games_played"`
	MeanPayoff        float64       `json:"mean_payoff"`
	TotalPayoff       float64       `json:"total_payoff"`
	MeanCooperations  float64       `json:"mean_cooperations"`
	TotalCooperations int           `json:"total_cooperations"`
}

// ID rebuilds the player identity of the row
func (r PlayerRow) ID() game.PlayerID {
	return game.PlayerID{Name: r.Name, Attitude: r.Attitude, Strategy: r.Strategy}
}

// FairResults is the immutable, validated outcome of a fair tournament
type FairResults struct {
	raw     fairRaw
	derived fairDerived
}

type fairRaw struct {
	config    Config
	playerIDs []game.PlayerID
	matches   []MatchResult
}

type fairDerived struct {
	stats       []PlayerStatistics // in player id order
	index       map[game.PlayerID]int
	table       []PlayerRow
	gamesPlayed int
}

// NewFairResults validates the matches and derives per-player statistics. Every
// declared player must have played the same number of games.
func NewFairResults(cfg Config, playerIDs []game.PlayerID, matches []MatchResult) (*FairResults, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	raw := fairRaw{config: cfg, playerIDs: slices.Clone(playerIDs), matches: slices.Clone(matches)}
	derived, err := deriveFair(raw)
	if err != nil {
		return nil, err
	}
	if len(raw.playerIDs) == 0 {
		raw.playerIDs = make([]game.PlayerID, len(derived.stats))
		for i, s := range derived.stats {
			raw.playerIDs[i] = s.ID
		}
	}
	return &FairResults{raw: raw, derived: derived}, nil
}

func deriveFair(raw fairRaw) (fairDerived, error) {
	if len(raw.matches) == 0 {
		return fairDerived{}, ErrNoMatches
	}

	d := fairDerived{index: make(map[game.PlayerID]int)}
	declared := len(raw.playerIDs) > 0
	for _, id := range raw.playerIDs {
		if _, dup := d.index[id]; dup {
			return fairDerived{}, fmt.Errorf("%w: %s", ErrDuplicatePlayer, id)
		}
		d.index[id] = len(d.stats)
		d.stats = append(d.stats, PlayerStatistics{ID: id})
	}

	groupSize := raw.config.GroupSize()
	for _, m := range raw.matches {
		if err := m.Validate(); err != nil {
			return fairDerived{}, err
		}
		if len(m.PlayerIDs) != groupSize {
			return fairDerived{}, fmt.Errorf("%w: match %s has %d players, game expects %d",
				ErrCorruptResults, m.MatchID, len(m.PlayerIDs), groupSize)
		}
		for i, id := range m.PlayerIDs {
			idx, ok := d.index[id]
			if !ok {
				if declared {
					return fairDerived{}, fmt.Errorf("%w: match %s has unknown player %s", ErrCorruptResults, m.MatchID, id)
				}
				idx = len(d.stats)
				d.index[id] = idx
				d.stats = append(d.stats, PlayerStatistics{ID: id})
			}
			d.stats[idx].Add(m.TotalPayoffs[i], m.TotalCooperations[i])
		}
	}

	d.gamesPlayed = d.stats[0].GamesPlayed()
	for i := range d.stats {
		if got := d.stats[i].GamesPlayed(); got != d.gamesPlayed {
			return fairDerived{}, fmt.Errorf("%w: %s played %d games, %s played %d",
				ErrUnequalGames, d.stats[0].ID, d.gamesPlayed, d.stats[i].ID, got)
		}
	}

	d.table = make([]PlayerRow, len(d.stats))
	for i := range d.stats {
		s := &d.stats[i]
		d.table[i] = PlayerRow{
			Name:              s.ID.Name,
			Attitude:          s.ID.Attitude,
			Strategy:          s.ID.Strategy,
			GamesPlayed:       s.GamesPlayed(),
			MeanPayoff:        s.MeanPayoff(),
			TotalPayoff:       s.TotalPayoff(),
			MeanCooperations:  s.MeanCooperations(),
			TotalCooperations: s.TotalCooperations(),
		}
	}
	sort.SliceStable(d.table, func(i, j int) bool {
		if d.table[i].MeanPayoff != d.table[j].MeanPayoff {
			return d.table[i].MeanPayoff > d.table[j].MeanPayoff
		}
		return d.table[i].Name < d.table[j].Name
	})
	return d, nil
}

// ResultType returns FairResultType
func (r *FairResults) ResultType() string { return FairResultType }

// Config returns the tournament configuration
func (r *FairResults) Config() Config { return r.raw.config }

// GroupSize returns the number of players per match
func (r *FairResults) GroupSize() int { return r.raw.config.GroupSize() }

// PlayerIDs returns the tournament population
func (r *FairResults) PlayerIDs() []game.PlayerID { return slices.Clone(r.raw.playerIDs) }

// Matches returns the raw match results in execution order
func (r *FairResults) Matches() []MatchResult { return slices.Clone(r.raw.matches) }

// GamesPlayed is the number of games every player played
func (r *FairResults) GamesPlayed() int { return r.derived.gamesPlayed }

// Table returns the player rows sorted by mean payoff, best first
func (r *FairResults) Table() []PlayerRow { return slices.Clone(r.derived.table) }

// Stats returns a copy of the statistics of every player in population order
func (r *FairResults) Stats() []PlayerStatistics {
	out := make([]PlayerStatistics, len(r.derived.stats))
	for i := range r.derived.stats {
		out[i] = r.derived.stats[i].clone()
	}
	return out
}

// Player returns the statistics of one player
func (r *FairResults) Player(id game.PlayerID) (PlayerStatistics, bool) {
	idx, ok := r.derived.index[id]
	if !ok {
		return PlayerStatistics{}, false
	}
	return r.derived.stats[idx].clone(), true
}

// Summary renders the player table for CSV output
func (r *FairResults) Summary() [][]string {
	records := [][]string{{
		"name", "attitude", "strategy", "games_played",
		"mean_payoff", "total_payoff", "mean_cooperations", "total_cooperations",
	}}
	for _, row := range r.derived.table {
		records = append(records, []string{
			row.Name,
			string(row.Attitude),
			row.Strategy,
			strconv.Itoa(row.GamesPlayed),
			formatFloat(row.MeanPayoff),
			formatFloat(row.TotalPayoff),
			formatFloat(row.MeanCooperations),
			strconv.Itoa(row.TotalCooperations),
		})
	}
	return records
}

// Save writes the results into dir
func (r *FairResults) Save(dir string) error {
	return save(nil, dir, r)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}
