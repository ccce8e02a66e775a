package tournament

import (
	"fmt"
	"path/filepath"

	"github.com/pashagolub/dilemma/pkg/data"
	"github.com/pashagolub/dilemma/pkg/game"
)

// Files written into a results directory
const (
	ResultsFile = "results.json"
	SummaryFile = "summary.csv"
)

// resultsFile is the persisted layout shared by fair and mixture results
type resultsFile struct {
	Config            Config              `json:"config"`
	PlayerIDs         []game.PlayerID     `json:"player_ids,omitempty"`
	CooperativeIDs    []game.PlayerID     `json:"cooperative_player_ids,omitempty"`
	AggressiveIDs     []game.PlayerID     `json:"aggressive_player_ids,omitempty"`
	MatchResults      []MatchResult       `json:"match_results"`
	MixtureResults    []MixtureStatistics `json:"mixture_results,omitempty"`
	MatchesPerMixture int                 `json:"matches_per_mixture,omitempty"`
	ResultType        string              `json:"result_type"`
}

func save(store data.Storage, dir string, r Results) error {
	if store == nil {
		store = data.NewFileStorage()
	}

	file := resultsFile{
		Config:       r.Config(),
		MatchResults: r.Matches(),
		ResultType:   r.ResultType(),
	}
	switch v := r.(type) {
	case *FairResults:
		file.PlayerIDs = v.PlayerIDs()
	case *MixtureResults:
		file.CooperativeIDs = v.CooperativeIDs()
		file.AggressiveIDs = v.AggressiveIDs()
		file.MixtureResults = v.Statistics()
		file.MatchesPerMixture = v.MatchesPerMixture()
	default:
		return fmt.Errorf("%w: %T", ErrUnknownResultType, r)
	}

	if err := store.SaveJSON(filepath.Join(dir, ResultsFile), file); err != nil {
		return fmt.Errorf("cannot save results to %s: %w", dir, err)
	}
	if err := store.SaveCSV(filepath.Join(dir, SummaryFile), r.Summary()); err != nil {
		return fmt.Errorf("cannot save summary to %s: %w", dir, err)
	}
	return nil
}

// Load reads the results saved in dir. The statistics are derived and validated
// again exactly as for a fresh run.
func Load(dir string) (Results, error) {
	return load(data.NewFileStorage(), dir)
}

// LoadFair loads fair tournament results from dir
func LoadFair(dir string) (*FairResults, error) {
	res, err := Load(dir)
	if err != nil {
		return nil, err
	}
	fair, ok := res.(*FairResults)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %s, expected %s", ErrUnknownResultType, dir, res.ResultType(), FairResultType)
	}
	return fair, nil
}

// LoadMixture loads mixture tournament results from dir
func LoadMixture(dir string) (*MixtureResults, error) {
	res, err := Load(dir)
	if err != nil {
		return nil, err
	}
	mixture, ok := res.(*MixtureResults)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %s, expected %s", ErrUnknownResultType, dir, res.ResultType(), MixtureResultType)
	}
	return mixture, nil
}

func load(store data.Storage, dir string) (Results, error) {
	var file resultsFile
	if err := store.LoadJSON(filepath.Join(dir, ResultsFile), &file); err != nil {
		return nil, err
	}

	switch file.ResultType {
	case FairResultType:
		res, err := NewFairResults(file.Config, file.PlayerIDs, file.MatchResults)
		if err != nil {
			return nil, err
		}
		return res, nil
	case MixtureResultType:
		res, err := NewMixtureResults(file.Config, file.CooperativeIDs, file.AggressiveIDs, file.MatchResults, file.MatchesPerMixture)
		if err != nil {
			return nil, err
		}
		if err := checkStoredMixture(res, file.MixtureResults); err != nil {
			return nil, err
		}
		return res, nil
	default:
		return nil, fmt.Errorf("%w: %q in %s", ErrUnknownResultType, file.ResultType, dir)
	}
}

// checkStoredMixture compares the persisted buckets with the ones derived from the matches
func checkStoredMixture(res *MixtureResults, stored []MixtureStatistics) error {
	derived := res.Statistics()
	if len(stored) != len(derived) {
		return fmt.Errorf("%w: %d stored compositions, %d derived", ErrCorruptResults, len(stored), len(derived))
	}
	for i := range derived {
		if !derived[i].equal(stored[i]) {
			return fmt.Errorf("%w: stored composition %s disagrees with its matches",
				ErrCorruptResults, derived[i].Composition())
		}
	}
	return nil
}
