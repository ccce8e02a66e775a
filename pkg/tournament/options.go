package tournament

import (
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/pashagolub/dilemma/pkg/data"
	"github.com/pashagolub/dilemma/pkg/game"
)

// Journal events
const (
	EventBatchStarted   = "batch_started"
	EventBatchCompleted = "batch_completed"
	EventSizeSkipped    = "size_skipped"
	EventSizeLoadFailed = "size_load_failed"
	EventSizeStarted    = "size_started"
	EventSizeCompleted  = "size_completed"
	EventMatchCompleted = "match_completed"
	EventMatchFailed    = "match_failed"
)

// Recorder receives tournament events, typically an append-only journal
type Recorder interface {
	Record(event string, groupSize int, matchID string, data map[string]any) error
}

// Option configures tournaments and batch drivers
type Option func(*settings)

type settings struct {
	logger   zerolog.Logger
	rng      *rand.Rand
	factory  game.Factory
	recorder Recorder
	storage  data.Storage
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:  zerolog.Nop(),
		factory: game.DefaultFactory{},
		storage: data.NewFileStorage(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// WithLogger sets the logger used for progress and match traces
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithRand sets the random source used for shuffling and sampling
func WithRand(rng *rand.Rand) Option {
	return func(s *settings) { s.rng = rng }
}

// WithSeed seeds a fresh random source
func WithSeed(seed uint64) Option {
	return func(s *settings) { s.rng = newRand(seed) }
}

// WithFactory replaces the game factory
func WithFactory(f game.Factory) Option {
	return func(s *settings) { s.factory = f }
}

// WithRecorder attaches an event recorder
func WithRecorder(r Recorder) Option {
	return func(s *settings) { s.recorder = r }
}

// WithStorage replaces the storage used by batch drivers
func WithStorage(st data.Storage) Option {
	return func(s *settings) { s.storage = st }
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
}

// record forwards an event to the recorder; a failing recorder only logs
func record(logger zerolog.Logger, r Recorder, event string, groupSize int, matchID string, payload map[string]any) {
	if r == nil {
		return
	}
	if err := r.Record(event, groupSize, matchID, payload); err != nil {
		logger.Warn().Err(err).Str("event", event).Msg("cannot record journal event")
	}
}
