// Package catalog stores tournament summary tables in a SQLite database so results of
// many runs and group sizes can be compared with plain SQL.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pashagolub/dilemma/pkg/elo"
	"github.com/pashagolub/dilemma/pkg/tournament"
)

// Catalog errors
var (
	ErrNotInitialized = errors.New("catalog is not initialized")
	ErrPathRequired   = errors.New("sqlite path is required")
	ErrUnknownResults = errors.New("unsupported results type")
)

// Entry describes one stored tournament
type Entry struct {
	ID          string
	ResultType  string
	GameType    string
	GroupSize   int
	Repetitions int
	Matches     int
	SavedAt     time.Time
}

// PlayerRecord is a stored fair summary row; means and rating are NaN when absent
type PlayerRecord struct {
	Name              string
	Attitude          string
	Strategy          string
	GamesPlayed       int
	MeanPayoff        float64
	TotalPayoff       float64
	MeanCooperations  float64
	TotalCooperations int
	Rating            float64
}

// Catalog is a SQLite backed store of summary tables
type Catalog struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// New creates a catalog for the database file at path
func New(path string) *Catalog {
	return &Catalog{path: path}
}

// Init opens the database and creates missing tables
func (c *Catalog) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return ErrPathRequired
	}
	if c.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", c.path)
	if err != nil {
		return err
	}
	// one writer keeps concurrent batch saves from hitting SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	c.db = db
	return nil
}

// Close closes the database
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Catalog) getDB() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.db == nil {
		return nil, ErrNotInitialized
	}
	return c.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tournaments (
			id TEXT PRIMARY KEY,
			result_type TEXT NOT NULL,
			game_type TEXT NOT NULL,
			group_size INTEGER NOT NULL,
			repetitions INTEGER NOT NULL,
			matches INTEGER NOT NULL,
			config BLOB NOT NULL,
			saved_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS fair_players (
			tournament_id TEXT NOT NULL REFERENCES tournaments(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			attitude TEXT NOT NULL,
			strategy TEXT NOT NULL,
			games_played INTEGER NOT NULL,
			mean_payoff REAL,
			total_payoff REAL NOT NULL,
			mean_cooperations REAL,
			total_cooperations INTEGER NOT NULL,
			rating REAL,
			PRIMARY KEY (tournament_id, name)
		);
		CREATE TABLE IF NOT EXISTS mixture_rows (
			tournament_id TEXT NOT NULL REFERENCES tournaments(id) ON DELETE CASCADE,
			group_size INTEGER NOT NULL,
			n_cooperative INTEGER NOT NULL,
			n_aggressive INTEGER NOT NULL,
			cooperative_ratio REAL NOT NULL,
			aggressive_ratio REAL NOT NULL,
			avg_cooperative_score REAL,
			avg_aggressive_score REAL,
			avg_social_welfare REAL,
			matches_played INTEGER NOT NULL,
			PRIMARY KEY (tournament_id, n_cooperative)
		);
	`)
	return err
}

// Save stores results under id, replacing earlier rows with the same id. Fair
// results get Elo ratings when engine is not nil.
func (c *Catalog) Save(ctx context.Context, id string, res tournament.Results, engine *elo.Engine) error {
	switch r := res.(type) {
	case *tournament.FairResults:
		var ledger *elo.Ledger
		if engine != nil {
			var err error
			if ledger, err = elo.RateFair(engine, r); err != nil {
				return err
			}
		}
		return c.SaveFair(ctx, id, r, ledger)
	case *tournament.MixtureResults:
		return c.SaveMixture(ctx, id, r)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownResults, res)
	}
}

// SaveBatch stores every size of a batch as "{run_id}/n={size}"
func (c *Catalog) SaveBatch(ctx context.Context, batch *tournament.BatchResults, engine *elo.Engine) error {
	for _, n := range batch.Sizes {
		res, ok := batch.Get(n)
		if !ok {
			continue
		}
		if err := c.Save(ctx, BatchID(batch.RunID, n), res, engine); err != nil {
			return fmt.Errorf("group size %d: %w", n, err)
		}
	}
	return nil
}

// BatchID is the catalog id of one group size of a batch run
func BatchID(runID string, groupSize int) string {
	return runID + "/n=" + strconv.Itoa(groupSize)
}

// SaveFair stores a fair summary table; ledger may be nil
func (c *Catalog) SaveFair(ctx context.Context, id string, res *tournament.FairResults, ledger *elo.Ledger) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertTournament(ctx, tx, id, res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM fair_players WHERE tournament_id = ?`, id); err != nil {
			return err
		}
		for _, row := range res.Table() {
			rating := math.NaN()
			if ledger != nil {
				if r, ok := ledger.Rating(row.ID()); ok {
					rating = r.Score
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO fair_players (tournament_id, name, attitude, strategy, games_played,
					mean_payoff, total_payoff, mean_cooperations, total_cooperations, rating)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, id, row.Name, string(row.Attitude), row.Strategy, row.GamesPlayed,
				nullable(row.MeanPayoff), row.TotalPayoff, nullable(row.MeanCooperations), row.TotalCooperations,
				nullable(rating))
			if err != nil {
				return fmt.Errorf("insert player %s: %w", row.Name, err)
			}
		}
		return nil
	})
}

// SaveMixture stores a mixture composition table
func (c *Catalog) SaveMixture(ctx context.Context, id string, res *tournament.MixtureResults) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertTournament(ctx, tx, id, res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM mixture_rows WHERE tournament_id = ?`, id); err != nil {
			return err
		}
		for _, row := range res.Table() {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO mixture_rows (tournament_id, group_size, n_cooperative, n_aggressive,
					cooperative_ratio, aggressive_ratio, avg_cooperative_score, avg_aggressive_score,
					avg_social_welfare, matches_played)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, id, row.GroupSize, row.NCooperative, row.NAggressive, row.CooperativeRatio, row.AggressiveRatio,
				nullable(row.AvgCooperativeScore), nullable(row.AvgAggressiveScore), nullable(row.AvgSocialWelfare),
				row.MatchesPlayed)
			if err != nil {
				return fmt.Errorf("insert composition (%d,%d): %w", row.NCooperative, row.NAggressive, err)
			}
		}
		return nil
	})
}

func upsertTournament(ctx context.Context, tx *sql.Tx, id string, res tournament.Results) error {
	cfg := res.Config()
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tournaments (id, result_type, game_type, group_size, repetitions, matches, config, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			result_type = excluded.result_type,
			game_type = excluded.game_type,
			group_size = excluded.group_size,
			repetitions = excluded.repetitions,
			matches = excluded.matches,
			config = excluded.config,
			saved_at = excluded.saved_at
	`, id, res.ResultType(), cfg.GameDescription.TypeName(), res.GroupSize(), cfg.Repetitions,
		len(res.Matches()), payload, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (c *Catalog) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Get returns one stored tournament
func (c *Catalog) Get(ctx context.Context, id string) (Entry, bool, error) {
	db, err := c.getDB()
	if err != nil {
		return Entry{}, false, err
	}
	row := db.QueryRowContext(ctx, `
		SELECT id, result_type, game_type, group_size, repetitions, matches, saved_at
		FROM tournaments WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}

// Config decodes the stored configuration of a tournament
func (c *Catalog) Config(ctx context.Context, id string) (tournament.Config, bool, error) {
	db, err := c.getDB()
	if err != nil {
		return tournament.Config{}, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT config FROM tournaments WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tournament.Config{}, false, nil
		}
		return tournament.Config{}, false, err
	}
	var cfg tournament.Config
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return tournament.Config{}, false, fmt.Errorf("decode config %s: %w", id, err)
	}
	return cfg, true, nil
}

// List returns every stored tournament ordered by id
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, result_type, game_type, group_size, repetitions, matches, saved_at
		FROM tournaments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e       Entry
		savedAt string
	)
	if err := s.Scan(&e.ID, &e.ResultType, &e.GameType, &e.GroupSize, &e.Repetitions, &e.Matches, &savedAt); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse saved_at of %s: %w", e.ID, err)
	}
	e.SavedAt = t
	return e, nil
}

// Players returns the stored fair table of a tournament in table order
func (c *Catalog) Players(ctx context.Context, id string) ([]PlayerRecord, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT name, attitude, strategy, games_played, mean_payoff, total_payoff,
			mean_cooperations, total_cooperations, rating
		FROM fair_players WHERE tournament_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []PlayerRecord
	for rows.Next() {
		var (
			p                     PlayerRecord
			meanPayoff, meanCoops sql.NullFloat64
			rating                sql.NullFloat64
		)
		if err := rows.Scan(&p.Name, &p.Attitude, &p.Strategy, &p.GamesPlayed, &meanPayoff, &p.TotalPayoff,
			&meanCoops, &p.TotalCooperations, &rating); err != nil {
			return nil, err
		}
		p.MeanPayoff = fromNull(meanPayoff)
		p.MeanCooperations = fromNull(meanCoops)
		p.Rating = fromNull(rating)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Mixtures returns the stored composition table of a tournament in sweep order
func (c *Catalog) Mixtures(ctx context.Context, id string) ([]tournament.MixtureRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT group_size, n_cooperative, n_aggressive, cooperative_ratio, aggressive_ratio,
			avg_cooperative_score, avg_aggressive_score, avg_social_welfare, matches_played
		FROM mixture_rows WHERE tournament_id = ? ORDER BY n_aggressive`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []tournament.MixtureRow
	for rows.Next() {
		var (
			r                         tournament.MixtureRow
			coop, aggressive, welfare sql.NullFloat64
		)
		if err := rows.Scan(&r.GroupSize, &r.NCooperative, &r.NAggressive, &r.CooperativeRatio, &r.AggressiveRatio,
			&coop, &aggressive, &welfare, &r.MatchesPlayed); err != nil {
			return nil, err
		}
		r.AvgCooperativeScore = fromNull(coop)
		r.AvgAggressiveScore = fromNull(aggressive)
		r.AvgSocialWelfare = fromNull(welfare)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GroupSizes returns the distinct group sizes stored for a result type
func (c *Catalog) GroupSizes(ctx context.Context, resultType string) ([]int, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT group_size FROM tournaments WHERE result_type = ?`, resultType)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sizes []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		sizes = append(sizes, n)
	}
	slices.Sort(sizes)
	return sizes, rows.Err()
}

// Delete removes a tournament and its rows
func (c *Catalog) Delete(ctx context.Context, id string) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM fair_players WHERE tournament_id = ?`,
			`DELETE FROM mixture_rows WHERE tournament_id = ?`,
			`DELETE FROM tournaments WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// nullable maps NaN and infinities to NULL
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
