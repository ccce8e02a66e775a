package tournament

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pashagolub/dilemma/pkg/data"
	"github.com/pashagolub/dilemma/pkg/game"
	"github.com/pashagolub/dilemma/pkg/strategy"
)

func newBatchConfig(t *testing.T, dir string, sizes ...int) *BatchConfig {
	t.Helper()
	cfg, err := NewBatchConfig(sizes, 2, dir, "public_goods")
	require.NoError(t, err)
	cfg.Seed = 1234
	return cfg
}

func TestNewBatchFair_PoolSize(t *testing.T) {
	cfg := newBatchConfig(t, t.TempDir(), 4, 6)

	_, err := NewBatchFair(cfg, pool(23))
	assert.ErrorIs(t, err, ErrInsufficientPool)

	_, err = NewBatchFair(cfg, pool(24))
	assert.NoError(t, err)

	_, err = NewBatchFair(nil, pool(24))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	bad := *cfg
	bad.GeneratorName = "unknown"
	_, err = NewBatchFair(&bad, pool(24))
	assert.ErrorIs(t, err, game.ErrUnknownGenerator)
}

func TestNewBatchMixture_PoolSize(t *testing.T) {
	cfg := newBatchConfig(t, t.TempDir(), 2, 3)
	cooperative := cooperativePool()
	aggressive := aggressivePool()

	_, err := NewBatchMixture(cfg, cooperative, aggressive)
	assert.ErrorIs(t, err, ErrInsufficientPool, "aggressive pool holds two strategies")

	aggressive = append(aggressive, aggressive[0])
	_, err = NewBatchMixture(cfg, cooperative, aggressive)
	assert.NoError(t, err)

	_, err = NewBatchMixture(cfg, aggressive, cooperative)
	assert.ErrorIs(t, err, ErrPoolAttitude)
}

func TestBatchFair_RunTwiceIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := newBatchConfig(t, dir, 2, 4)
	factory := &countingFactory{}

	batch, err := NewBatchFair(cfg, pool(16), WithFactory(factory), WithLogger(testLogger(t)))
	require.NoError(t, err)
	first, err := batch.Run(context.Background())
	require.NoError(t, err)

	// 16 players: 8 matches per repetition at size 2, 4 at size 4
	assert.Equal(t, int64(2*8+2*4), factory.calls.Load())
	assert.Equal(t, []int{2, 4}, first.Computed)
	assert.Empty(t, first.Loaded)
	assert.FileExists(t, filepath.Join(dir, BatchManifestFile))
	assert.DirExists(t, filepath.Join(dir, "group_2"))
	assert.DirExists(t, filepath.Join(dir, "group_4"))

	again := &countingFactory{}
	batch, err = NewBatchFair(cfg, pool(16), WithFactory(again))
	require.NoError(t, err)
	second, err := batch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), again.calls.Load())
	assert.Equal(t, []int{2, 4}, second.Loaded)
	assert.Empty(t, second.Computed)
	for _, n := range cfg.GroupSizes {
		want, ok := first.Fair(n)
		require.True(t, ok)
		got, ok := second.Fair(n)
		require.True(t, ok)
		assertPlayerTablesEqual(t, want.Table(), got.Table())
	}
}

func TestBatchFair_SkipsPersistedSize(t *testing.T) {
	dir := t.TempDir()

	seed, err := NewBatchFair(newBatchConfig(t, dir, 4), pool(24))
	require.NoError(t, err)
	_, err = seed.Run(context.Background())
	require.NoError(t, err)
	require.NoDirExists(t, filepath.Join(dir, "group_6"))

	factory := &countingFactory{}
	events := &eventLog{}
	batch, err := NewBatchFair(newBatchConfig(t, dir, 4, 6), pool(24),
		WithFactory(factory), WithRecorder(events), WithLogger(testLogger(t)))
	require.NoError(t, err)
	res, err := batch.Run(context.Background())
	require.NoError(t, err)

	// only size 6 ran: 24/6 matches per repetition, two repetitions
	assert.Equal(t, int64(8), factory.calls.Load())
	assert.Equal(t, []int{4}, res.Loaded)
	assert.Equal(t, []int{6}, res.Computed)
	assert.Equal(t, 1, events.count(EventSizeSkipped))
	assert.Equal(t, 1, events.count(EventSizeCompleted))

	for _, n := range []int{4, 6} {
		fair, ok := res.Fair(n)
		require.True(t, ok)
		assert.Equal(t, n, fair.GroupSize())
		assert.Len(t, fair.Table(), 24)
	}
}

func TestBatchFair_RecomputesCorruptedSize(t *testing.T) {
	dir := t.TempDir()
	cfg := newBatchConfig(t, dir, 2)
	groupDir := cfg.GroupDir(2)
	require.NoError(t, os.MkdirAll(groupDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(groupDir, ResultsFile), []byte("{not json"), 0644))

	c := probe(data.NewFileStorage(), groupDir, FairResultType, 2)
	assert.Equal(t, cacheLoadFailed, c.state)
	assert.ErrorIs(t, c.err, data.ErrCorruptedFile)

	events := &eventLog{}
	batch, err := NewBatchFair(cfg, pool(8), WithRecorder(events), WithLogger(testLogger(t)))
	require.NoError(t, err)
	res, err := batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.Computed)
	assert.Equal(t, 1, events.count(EventSizeLoadFailed))

	c = probe(data.NewFileStorage(), groupDir, FairResultType, 2)
	assert.Equal(t, cacheLoaded, c.state)
}

func TestProbe_States(t *testing.T) {
	dir := t.TempDir()
	store := data.NewFileStorage()

	c := probe(store, filepath.Join(dir, "group_3"), FairResultType, 3)
	assert.Equal(t, cacheMissing, c.state)

	require.NoError(t, runFair(t, publicGoods(3), 6, 1).Save(filepath.Join(dir, "group_3")))
	c = probe(store, filepath.Join(dir, "group_3"), FairResultType, 3)
	assert.Equal(t, cacheLoaded, c.state)

	c = probe(store, filepath.Join(dir, "group_3"), MixtureResultType, 3)
	assert.Equal(t, cacheLoadFailed, c.state)
	assert.ErrorIs(t, c.err, ErrUnknownResultType)

	c = probe(store, filepath.Join(dir, "group_3"), FairResultType, 4)
	assert.Equal(t, cacheLoadFailed, c.state)
	assert.ErrorIs(t, c.err, ErrCorruptResults)
}

func TestBatchFair_TrimsPopulation(t *testing.T) {
	dir := t.TempDir()
	cfg := newBatchConfig(t, dir, 3)
	batch, err := NewBatchFair(cfg, pool(13), WithLogger(testLogger(t)))
	require.NoError(t, err)

	res, err := batch.Run(context.Background())
	require.NoError(t, err)
	fair, ok := res.Fair(3)
	require.True(t, ok)
	assert.Len(t, fair.Table(), 12)
	assert.Equal(t, 2*12/3, len(fair.Matches()))
}

func TestBatchFair_WorkersDoNotChangeResults(t *testing.T) {
	run := func(workers int) *BatchResults {
		cfg := newBatchConfig(t, t.TempDir(), 2, 3, 4)
		cfg.Workers = workers
		batch, err := NewBatchFair(cfg, pool(16))
		require.NoError(t, err)
		res, err := batch.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	sequential := run(1)
	parallel := run(3)
	for _, n := range []int{2, 3, 4} {
		assert.Equal(t, sequential.Results[n].Matches(), parallel.Results[n].Matches(), "group size %d", n)
	}
}

func TestBatchMixture_RunAndReload(t *testing.T) {
	dir := t.TempDir()
	cfg := newBatchConfig(t, dir, 2, 3)
	cfg.MatchesPerMixture = 3
	cooperative := cooperativePool()
	aggressive := append(aggressivePool(), strategy.Builtins()[1])

	factory := &countingFactory{}
	batch, err := NewBatchMixture(cfg, cooperative, aggressive, WithFactory(factory), WithLogger(testLogger(t)))
	require.NoError(t, err)
	first, err := batch.Run(context.Background())
	require.NoError(t, err)

	// (n+1) compositions per size, three matches each
	assert.Equal(t, int64(3*3+4*3), factory.calls.Load())
	for _, n := range []int{2, 3} {
		mixture, ok := first.Mixture(n)
		require.True(t, ok)
		assert.Len(t, mixture.Table(), n+1)
		assert.Equal(t, 3, mixture.MatchesPerMixture())
	}

	loaded, err := LoadBatch(dir)
	require.NoError(t, err)
	assert.Equal(t, MixtureResultType, loaded.Kind)
	assert.Equal(t, first.RunID, loaded.RunID)
	assert.Equal(t, []int{2, 3}, loaded.Sizes)
	assert.Equal(t, []int{2, 3}, loaded.Computed)
	for _, n := range []int{2, 3} {
		want, _ := first.Mixture(n)
		got, ok := loaded.Mixture(n)
		require.True(t, ok)
		assertMixtureTablesEqual(t, want.Table(), got.Table())
	}

	again := &countingFactory{}
	batch, err = NewBatchMixture(cfg, cooperative, aggressive, WithFactory(again))
	require.NoError(t, err)
	_, err = batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.calls.Load())
}

func TestBatchFair_FailureKeepsCompletedSizes(t *testing.T) {
	dir := t.TempDir()
	cfg := newBatchConfig(t, dir, 2, 4)
	// fail the first match of size 4; size 2 needs 16 matches
	factory := &countingFactory{failOn: func(call int64) bool { return call == 17 }}

	batch, err := NewBatchFair(cfg, pool(16), WithFactory(factory))
	require.NoError(t, err)
	_, err = batch.Run(context.Background())
	assert.ErrorIs(t, err, errEngine)

	assert.FileExists(t, filepath.Join(cfg.GroupDir(2), ResultsFile))
	assert.NoFileExists(t, filepath.Join(cfg.GroupDir(4), ResultsFile))
	assert.NoFileExists(t, filepath.Join(dir, BatchManifestFile))
}
