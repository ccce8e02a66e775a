package tournament

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pashagolub/dilemma/pkg/data"
	"github.com/pashagolub/dilemma/pkg/game"
	"github.com/pashagolub/dilemma/pkg/strategy"
)

// BatchManifestFile lists the group sizes of a batch run
const BatchManifestFile = "batch_results.json"

// Minimum fair pool size per member of the largest group
const fairPoolFactor = 4

// cacheState is the outcome of probing a group directory before a batch run
type cacheState int

const (
	cacheMissing cacheState = iota
	cacheLoaded
	cacheLoadFailed
)

func (s cacheState) String() string {
	switch s {
	case cacheLoaded:
		return "loaded"
	case cacheLoadFailed:
		return "load_failed"
	default:
		return "missing"
	}
}

type cached struct {
	state   cacheState
	results Results
	err     error
}

// probe classifies a group directory. A directory that exists but does not load
// as results of the expected kind and size is reported as cacheLoadFailed.
func probe(store data.Storage, dir, resultType string, groupSize int) cached {
	if !data.Exists(dir) {
		return cached{state: cacheMissing}
	}
	res, err := load(store, dir)
	if err != nil {
		return cached{state: cacheLoadFailed, err: err}
	}
	if res.ResultType() != resultType {
		return cached{state: cacheLoadFailed, err: fmt.Errorf("%w: found %s, expected %s",
			ErrUnknownResultType, res.ResultType(), resultType)}
	}
	if res.GroupSize() != groupSize {
		return cached{state: cacheLoadFailed, err: fmt.Errorf("%w: found group size %d, expected %d",
			ErrCorruptResults, res.GroupSize(), groupSize)}
	}
	return cached{state: cacheLoaded, results: res}
}

// BatchResults aggregates the per-size results of a batch run
type BatchResults struct {
	RunID    string
	Kind     string // FairResultType or MixtureResultType
	Sizes    []int
	Results  map[int]Results
	Loaded   []int // sizes reused from disk
	Computed []int // sizes run by this batch
}

// Get returns the results for group size n
func (b *BatchResults) Get(n int) (Results, bool) {
	r, ok := b.Results[n]
	return r, ok
}

// Fair returns the fair results for group size n
func (b *BatchResults) Fair(n int) (*FairResults, bool) {
	r, ok := b.Results[n].(*FairResults)
	return r, ok
}

// Mixture returns the mixture results for group size n
func (b *BatchResults) Mixture(n int) (*MixtureResults, bool) {
	r, ok := b.Results[n].(*MixtureResults)
	return r, ok
}

type batchEntry struct {
	GroupSize  int    `json:"group_size"`
	Directory  string `json:"directory"`
	ResultType string `json:"result_type"`
	Source     string `json:"source"`
	Matches    int    `json:"matches"`
}

type batchManifest struct {
	RunID          string       `json:"run_id"`
	TournamentType string       `json:"tournament_type"`
	GeneratorName  string       `json:"generator_name"`
	CreatedAt      time.Time    `json:"created_at"`
	Entries        []batchEntry `json:"entries"`
	ResultType     string       `json:"result_type"`
}

func saveManifest(store data.Storage, cfg *BatchConfig, b *BatchResults) error {
	manifest := batchManifest{
		RunID:          b.RunID,
		TournamentType: b.Kind,
		GeneratorName:  cfg.GeneratorName,
		CreatedAt:      time.Now().UTC(),
		ResultType:     BatchResultType,
	}
	for _, n := range b.Sizes {
		res, ok := b.Results[n]
		if !ok {
			continue
		}
		source := cacheLoaded.String()
		if slices.Contains(b.Computed, n) {
			source = "computed"
		}
		manifest.Entries = append(manifest.Entries, batchEntry{
			GroupSize:  n,
			Directory:  filepath.Base(cfg.GroupDir(n)),
			ResultType: res.ResultType(),
			Source:     source,
			Matches:    len(res.Matches()),
		})
	}
	return store.SaveJSON(filepath.Join(cfg.ResultsDir, BatchManifestFile), manifest)
}

// LoadBatch reads a batch manifest and loads every group size it lists
func LoadBatch(dir string) (*BatchResults, error) {
	store := data.NewFileStorage()
	var manifest batchManifest
	if err := store.LoadJSON(filepath.Join(dir, BatchManifestFile), &manifest); err != nil {
		return nil, err
	}
	if manifest.ResultType != BatchResultType {
		return nil, fmt.Errorf("%w: %q in %s", ErrUnknownResultType, manifest.ResultType, dir)
	}

	out := &BatchResults{
		RunID:   manifest.RunID,
		Kind:    manifest.TournamentType,
		Results: make(map[int]Results, len(manifest.Entries)),
	}
	for _, e := range manifest.Entries {
		res, err := load(store, filepath.Join(dir, e.Directory))
		if err != nil {
			return nil, fmt.Errorf("group size %d: %w", e.GroupSize, err)
		}
		if res.ResultType() != e.ResultType || res.GroupSize() != e.GroupSize {
			return nil, fmt.Errorf("%w: group_%d does not match the batch manifest", ErrCorruptResults, e.GroupSize)
		}
		out.Sizes = append(out.Sizes, e.GroupSize)
		out.Results[e.GroupSize] = res
		if e.Source == "computed" {
			out.Computed = append(out.Computed, e.GroupSize)
		} else {
			out.Loaded = append(out.Loaded, e.GroupSize)
		}
	}
	return out, nil
}

// computeFunc runs the tournament for one pending group size
type computeFunc func(ctx context.Context, n int, logger zerolog.Logger, opts []Option) (Results, error)

// runBatch reuses every size already on disk and computes the others, saving each
// size as soon as it completes
func runBatch(ctx context.Context, cfg *BatchConfig, resultType string, s settings, compute computeFunc) (*BatchResults, error) {
	out := &BatchResults{
		RunID:   uuid.NewString(),
		Kind:    resultType,
		Sizes:   slices.Clone(cfg.GroupSizes),
		Results: make(map[int]Results, len(cfg.GroupSizes)),
	}
	logger := s.logger.With().Str("run_id", out.RunID).Str("tournament", resultType).Logger()
	record(logger, s.recorder, EventBatchStarted, 0, "", map[string]any{
		"run_id":      out.RunID,
		"tournament":  resultType,
		"group_sizes": cfg.GroupSizes,
		"generator":   cfg.GeneratorName,
		"results_dir": cfg.ResultsDir,
	})

	var pending []int
	for _, n := range cfg.GroupSizes {
		dir := cfg.GroupDir(n)
		c := probe(s.storage, dir, resultType, n)
		switch c.state {
		case cacheLoaded:
			logger.Info().Int("group_size", n).Str("dir", dir).Msg("results found on disk, skipping")
			record(logger, s.recorder, EventSizeSkipped, n, "", map[string]any{"dir": dir})
			out.Results[n] = c.results
			out.Loaded = append(out.Loaded, n)
		case cacheLoadFailed:
			logger.Warn().Err(c.err).Int("group_size", n).Str("dir", dir).Msg("cannot load existing results, recomputing")
			record(logger, s.recorder, EventSizeLoadFailed, n, "", map[string]any{"dir": dir, "error": c.err.Error()})
			pending = append(pending, n)
		case cacheMissing:
			pending = append(pending, n)
		}
	}
	logger.Info().Ints("pending", pending).Ints("loaded", out.Loaded).Msg("batch planned")

	var mu sync.Mutex
	remaining := len(pending)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers())
	for _, n := range pending {
		g.Go(func() error {
			sizeLogger := logger.With().Int("group_size", n).Logger()
			sizeLogger.Info().Msg("group size started")
			record(sizeLogger, s.recorder, EventSizeStarted, n, "", nil)

			opts := []Option{
				WithLogger(sizeLogger),
				WithRand(newRand(cfg.Seed + uint64(n))),
				WithFactory(s.factory),
				WithRecorder(s.recorder),
			}
			res, err := compute(gctx, n, sizeLogger, opts)
			if err != nil {
				return fmt.Errorf("group size %d: %w", n, err)
			}
			dir := cfg.GroupDir(n)
			if err := save(s.storage, dir, res); err != nil {
				return fmt.Errorf("group size %d: %w", n, err)
			}

			mu.Lock()
			out.Results[n] = res
			out.Computed = append(out.Computed, n)
			remaining--
			left := remaining
			mu.Unlock()

			sizeLogger.Info().Int("matches", len(res.Matches())).Int("remaining", left).Str("dir", dir).Msg("group size completed")
			record(sizeLogger, s.recorder, EventSizeCompleted, n, "", map[string]any{
				"dir":     dir,
				"matches": len(res.Matches()),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.Sort(out.Computed)

	if err := saveManifest(s.storage, cfg, out); err != nil {
		return nil, fmt.Errorf("cannot save batch manifest: %w", err)
	}
	record(logger, s.recorder, EventBatchCompleted, 0, "", map[string]any{
		"loaded":   out.Loaded,
		"computed": out.Computed,
	})
	logger.Info().Ints("loaded", out.Loaded).Ints("computed", out.Computed).Msg("batch completed")
	return out, nil
}

// BatchFair runs a fair tournament for every configured group size
type BatchFair struct {
	config *BatchConfig
	specs  []strategy.Spec
	s      settings
}

// NewBatchFair checks that the pool holds at least four players per seat of the
// largest group
func NewBatchFair(cfg *BatchConfig, specs []strategy.Spec, opts ...Option) (*BatchFair, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: batch configuration is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if need := fairPoolFactor * cfg.MaxGroupSize(); len(specs) < need {
		return nil, fmt.Errorf("%w: %d strategies, need at least %d for group size %d",
			ErrInsufficientPool, len(specs), need, cfg.MaxGroupSize())
	}
	return &BatchFair{config: cfg, specs: slices.Clone(specs), s: newSettings(opts)}, nil
}

// Run computes every group size not yet on disk
func (b *BatchFair) Run(ctx context.Context) (*BatchResults, error) {
	return runBatch(ctx, b.config, FairResultType, b.s, b.computeSize)
}

func (b *BatchFair) computeSize(ctx context.Context, n int, logger zerolog.Logger, opts []Option) (Results, error) {
	desc, err := describe(b.config, n)
	if err != nil {
		return nil, err
	}
	players := NewPlayers(b.specs, desc)
	if extra := len(players) % n; extra != 0 {
		logger.Info().Int("population", len(players)).Int("dropped", extra).Msg("population trimmed to a multiple of the group size")
		players = players[:len(players)-extra]
	}
	t, err := NewFairTournament(Config{GameDescription: desc, Repetitions: b.config.Repetitions}, players, opts...)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx)
}

// BatchMixture runs a mixture sweep for every configured group size
type BatchMixture struct {
	config      *BatchConfig
	cooperative []strategy.Spec
	aggressive  []strategy.Spec
	s           settings
}

// NewBatchMixture checks that both pools hold at least as many strategies as the
// largest group and carry the matching attitude
func NewBatchMixture(cfg *BatchConfig, cooperative, aggressive []strategy.Spec, opts ...Option) (*BatchMixture, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: batch configuration is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	need := cfg.MaxGroupSize()
	if len(cooperative) < need || len(aggressive) < need {
		return nil, fmt.Errorf("%w: %d cooperative and %d aggressive strategies, need at least %d each",
			ErrInsufficientPool, len(cooperative), len(aggressive), need)
	}
	if err := checkPool(cooperative, game.Cooperative); err != nil {
		return nil, err
	}
	if err := checkPool(aggressive, game.Aggressive); err != nil {
		return nil, err
	}
	return &BatchMixture{
		config:      cfg,
		cooperative: slices.Clone(cooperative),
		aggressive:  slices.Clone(aggressive),
		s:           newSettings(opts),
	}, nil
}

// Run computes every group size not yet on disk
func (b *BatchMixture) Run(ctx context.Context) (*BatchResults, error) {
	return runBatch(ctx, b.config, MixtureResultType, b.s, b.computeSize)
}

func (b *BatchMixture) computeSize(ctx context.Context, n int, _ zerolog.Logger, opts []Option) (Results, error) {
	desc, err := describe(b.config, n)
	if err != nil {
		return nil, err
	}
	matches := b.config.mixtureMatches()
	cfg := Config{GameDescription: desc, Repetitions: matches}
	t, err := NewMixtureTournament(cfg, b.cooperative, b.aggressive, matches, opts...)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx)
}

func describe(cfg *BatchConfig, n int) (game.Description, error) {
	desc := cfg.Generator()(n)
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("generator %s for group size %d: %w", cfg.GeneratorName, n, err)
	}
	return desc, nil
}
