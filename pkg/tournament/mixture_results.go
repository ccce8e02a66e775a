package tournament

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/pashagolub/dilemma/pkg/game"
)

// MixtureRow is one line of the mixture summary
type MixtureRow struct {
	GroupSize           int     `json:"group_size"`
	NCooperative        int     `json:"n_cooperative"`
	NAggressive         int     `json:"n_aggressive"`
	CooperativeRatio    float64 `json:"cooperative_ratio"`
	AggressiveRatio     float64 `json:"aggressive_ratio"`
	AvgCooperativeScore float64 `json:"avg_cooperative_score"`
	AvgAggressiveScore  float64 `json:"avg_aggressive_score"`
	AvgSocialWelfare    float64 `json:"avg_social_welfare"`
	MatchesPlayed       int     `json:"matches_played"`
}

// MixtureResults is the immutable, validated outcome of a mixture sweep
type MixtureResults struct {
	raw     mixtureRaw
	derived mixtureDerived
}

type mixtureRaw struct {
	config            Config
	cooperativeIDs    []game.PlayerID
	aggressiveIDs     []game.PlayerID
	matches           []MatchResult
	matchesPerMixture int
}

type mixtureDerived struct {
	buckets       []MixtureStatistics // ordered by n_aggressive
	table         []MixtureRow
	matchesPlayed int
}

// NewMixtureResults classifies every match by the attitudes of its participants and
// checks that all compositions were played equally often. When matchesPerMixture is
// positive every composition must have exactly that many matches.
func NewMixtureResults(cfg Config, cooperativeIDs, aggressiveIDs []game.PlayerID, matches []MatchResult, matchesPerMixture int) (*MixtureResults, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	raw := mixtureRaw{
		config:            cfg,
		cooperativeIDs:    slices.Clone(cooperativeIDs),
		aggressiveIDs:     slices.Clone(aggressiveIDs),
		matches:           slices.Clone(matches),
		matchesPerMixture: matchesPerMixture,
	}
	derived, err := deriveMixture(raw)
	if err != nil {
		return nil, err
	}
	return &MixtureResults{raw: raw, derived: derived}, nil
}

func deriveMixture(raw mixtureRaw) (mixtureDerived, error) {
	if len(raw.matches) == 0 {
		return mixtureDerived{}, ErrNoMatches
	}

	n := raw.config.GroupSize()
	buckets := make([]MixtureStatistics, 0, n+1)
	for _, comp := range Compositions(n) {
		b, err := NewMixtureStatistics(n, comp.Cooperative, comp.Aggressive)
		if err != nil {
			return mixtureDerived{}, err
		}
		buckets = append(buckets, *b)
	}

	known := make(map[game.PlayerID]bool, len(raw.cooperativeIDs)+len(raw.aggressiveIDs))
	for _, id := range raw.cooperativeIDs {
		known[id] = true
	}
	for _, id := range raw.aggressiveIDs {
		known[id] = true
	}

	for _, m := range raw.matches {
		if err := m.Validate(); err != nil {
			return mixtureDerived{}, err
		}
		cooperative, aggressive := 0, 0
		for _, id := range m.PlayerIDs {
			switch id.Attitude {
			case game.Cooperative:
				cooperative++
			case game.Aggressive:
				aggressive++
			}
		}
		if cooperative+aggressive != n || len(m.PlayerIDs) != n {
			return mixtureDerived{}, fmt.Errorf("%w: match %s has %d cooperative and %d aggressive of %d players, group size %d",
				ErrCompositionMismatch, m.MatchID, cooperative, aggressive, len(m.PlayerIDs), n)
		}
		for _, id := range m.PlayerIDs {
			if len(known) > 0 && !known[id] {
				return mixtureDerived{}, fmt.Errorf("%w: match %s has unknown player %s", ErrCorruptResults, m.MatchID, id)
			}
		}
		buckets[aggressive].addMatch(m)
	}

	played := buckets[0].MatchesPlayed
	if raw.matchesPerMixture > 0 {
		played = raw.matchesPerMixture
	}
	for i := range buckets {
		if buckets[i].MatchesPlayed != played {
			return mixtureDerived{}, fmt.Errorf("%w: composition %s played %d matches, expected %d",
				ErrUnequalMatches, buckets[i].Composition(), buckets[i].MatchesPlayed, played)
		}
	}

	table := make([]MixtureRow, len(buckets))
	for i := range buckets {
		b := &buckets[i]
		table[i] = MixtureRow{
			GroupSize:           b.GroupSize,
			NCooperative:        b.NCooperative,
			NAggressive:         b.NAggressive,
			CooperativeRatio:    b.CooperativeRatio(),
			AggressiveRatio:     b.AggressiveRatio(),
			AvgCooperativeScore: b.AvgCooperativeScore(),
			AvgAggressiveScore:  b.AvgAggressiveScore(),
			AvgSocialWelfare:    b.AvgSocialWelfare(),
			MatchesPlayed:       b.MatchesPlayed,
		}
	}
	return mixtureDerived{buckets: buckets, table: table, matchesPlayed: played}, nil
}

// ResultType returns MixtureResultType
func (r *MixtureResults) ResultType() string { return MixtureResultType }

// Config returns the tournament configuration
func (r *MixtureResults) Config() Config { return r.raw.config }

// GroupSize returns the number of players per match
func (r *MixtureResults) GroupSize() int { return r.raw.config.GroupSize() }

// CooperativeIDs returns the identities of the cooperative pool
func (r *MixtureResults) CooperativeIDs() []game.PlayerID { return slices.Clone(r.raw.cooperativeIDs) }

// AggressiveIDs returns the identities of the aggressive pool
func (r *MixtureResults) AggressiveIDs() []game.PlayerID { return slices.Clone(r.raw.aggressiveIDs) }

// Matches returns the raw match results in execution order
func (r *MixtureResults) Matches() []MatchResult { return slices.Clone(r.raw.matches) }

// MatchesPerMixture is the number of matches every composition played
func (r *MixtureResults) MatchesPerMixture() int { return r.derived.matchesPlayed }

// Table returns the composition rows ordered by n_aggressive
func (r *MixtureResults) Table() []MixtureRow { return slices.Clone(r.derived.table) }

// Statistics returns a copy of every composition bucket ordered by n_aggressive
func (r *MixtureResults) Statistics() []MixtureStatistics {
	out := make([]MixtureStatistics, len(r.derived.buckets))
	for i, b := range r.derived.buckets {
		b.CooperativeScores = slices.Clone(b.CooperativeScores)
		b.AggressiveScores = slices.Clone(b.AggressiveScores)
		out[i] = b
	}
	return out
}

// Composition returns the bucket for a (cooperative, aggressive) split
func (r *MixtureResults) Composition(c Composition) (MixtureStatistics, bool) {
	for _, b := range r.Statistics() {
		if b.NCooperative == c.Cooperative && b.NAggressive == c.Aggressive {
			return b, true
		}
	}
	return MixtureStatistics{}, false
}

// Summary renders the composition table for CSV output
func (r *MixtureResults) Summary() [][]string {
	records := [][]string{{
		"group_size", "n_cooperative", "n_aggressive", "cooperative_ratio", "aggressive_ratio",
		"avg_cooperative_score", "avg_aggressive_score", "avg_social_welfare", "matches_played",
	}}
	for _, row := range r.derived.table {
		records = append(records, []string{
			strconv.Itoa(row.GroupSize),
			strconv.Itoa(row.NCooperative),
			strconv.Itoa(row.NAggressive),
			formatFloat(row.CooperativeRatio),
			formatFloat(row.AggressiveRatio),
			formatFloat(row.AvgCooperativeScore),
			formatFloat(row.AvgAggressiveScore),
			formatFloat(row.AvgSocialWelfare),
			strconv.Itoa(row.MatchesPlayed),
		})
	}
	return records
}

// Save writes the results into dir
func (r *MixtureResults) Save(dir string) error {
	return save(nil, dir, r)
}

// SchellingSeries is the data behind a Schelling diagram. Index i stands for i other
// cooperators in the group.
type SchellingSeries struct {
	Cooperators       []int
	CooperativeScores []float64 // payoff of a cooperator facing i other cooperators
	AggressiveScores  []float64 // payoff of a defector facing i cooperators
	MinPayoff         float64
	MaxPayoff         float64
	MinSocialWelfare  float64
	MaxSocialWelfare  float64
}

// Schelling orders the compositions by cooperator count and rolls the cooperative
// series one step left, so the last cooperative entry wraps around to the
// zero-cooperator composition (always NaN).
func (r *MixtureResults) Schelling() SchellingSeries {
	n := r.GroupSize()
	d := r.raw.config.GameDescription
	s := SchellingSeries{
		Cooperators:       make([]int, n+1),
		CooperativeScores: make([]float64, n+1),
		AggressiveScores:  make([]float64, n+1),
		MinPayoff:         d.MinPayoff(),
		MaxPayoff:         d.MaxPayoff(),
		MinSocialWelfare:  d.MinSocialWelfare(),
		MaxSocialWelfare:  d.MaxSocialWelfare(),
	}

	cooperative := make([]float64, n+1)
	for i := range r.derived.buckets {
		b := &r.derived.buckets[i]
		c := b.NCooperative
		s.Cooperators[c] = c
		cooperative[c] = b.AvgCooperativeScore()
		s.AggressiveScores[c] = b.AvgAggressiveScore()
	}
	for i := range cooperative {
		s.CooperativeScores[i] = cooperative[(i+1)%len(cooperative)]
	}
	return s
}

// Records renders the series as CSV records with a header row
func (s SchellingSeries) Records() [][]string {
	records := [][]string{{"cooperators", "cooperative_score", "aggressive_score"}}
	for i, c := range s.Cooperators {
		records = append(records, []string{
			strconv.Itoa(c),
			formatFloat(s.CooperativeScores[i]),
			formatFloat(s.AggressiveScores[i]),
		})
	}
	return records
}

// MarshalJSON writes scores of absent attitudes as null
func (row MixtureRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GroupSize           int      `json:"group_size"`
		NCooperative        int      `json:"n_cooperative"`
		NAggressive         int      `json:"n_aggressive"`
		CooperativeRatio    float64  `json:"cooperative_ratio"`
		AggressiveRatio     float64  `json:"aggressive_ratio"`
		AvgCooperativeScore *float64 `json:"avg_cooperative_score"`
		AvgAggressiveScore  *float64 `json:"avg_aggressive_score"`
		AvgSocialWelfare    *float64 `json:"avg_social_welfare"`
		MatchesPlayed       int      `json:"matches_played"`
	}{
		GroupSize:           row.GroupSize,
		NCooperative:        row.NCooperative,
		NAggressive:         row.NAggressive,
		CooperativeRatio:    row.CooperativeRatio,
		AggressiveRatio:     row.AggressiveRatio,
		AvgCooperativeScore: finite(row.AvgCooperativeScore),
		AvgAggressiveScore:  finite(row.AvgAggressiveScore),
		AvgSocialWelfare:    finite(row.AvgSocialWelfare),
		MatchesPlayed:       row.MatchesPlayed,
	})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
