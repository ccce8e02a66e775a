package journal

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/pashagolub/dilemma/pkg/elo"
	"github.com/pashagolub/dilemma/pkg/tournament"
)

// Export errors
var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrNothingToExport   = errors.New("nothing to export")
)

// ExportFormat represents the format for exporting results
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatText ExportFormat = "text"
)

// ParseFormat converts a format name into an ExportFormat
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ExportOptions configures export behavior
type ExportOptions struct {
	Format         ExportFormat `json:"format"`
	IncludeRatings bool         `json:"include_ratings"` // Elo ratings, fair results only
	IncludeMatches bool         `json:"include_matches"` // raw match log in JSON exports
}

// ExportTemplate defines custom export formatting
type ExportTemplate struct {
	Name         string `json:"name"`
	HeaderFormat string `json:"header"`
	RowFormat    string `json:"row"`
	FooterFormat string `json:"footer"`
}

// ResultsExport is the JSON document written by ExportJSON
type ResultsExport struct {
	ResultType  string                   `json:"result_type"`
	GameType    string                   `json:"game_type"`
	GroupSize   int                      `json:"group_size"`
	Repetitions int                      `json:"repetitions"`
	ExportedAt  time.Time                `json:"exported_at"`
	Config      tournament.Config        `json:"config"`
	Statistics  *ExportStatistics        `json:"statistics"`
	Players     []PlayerExport           `json:"players,omitempty"`
	Mixtures    []tournament.MixtureRow  `json:"mixtures,omitempty"`
	Schelling   []SchellingPoint         `json:"schelling,omitempty"`
	Ratings     []StrategyRatingExport   `json:"ratings,omitempty"`
	Matches     []tournament.MatchResult `json:"matches,omitempty"`
}

// PlayerExport is a fair summary row; means are null for players without games
type PlayerExport struct {
	Rank              int      `json:"rank"`
	Name              string   `json:"name"`
	Attitude          string   `json:"attitude"`
	Strategy          string   `json:"strategy"`
	GamesPlayed       int      `json:"games_played"`
	MeanPayoff        *float64 `json:"mean_payoff"`
	TotalPayoff       float64  `json:"total_payoff"`
	MeanCooperations  *float64 `json:"mean_cooperations"`
	TotalCooperations int      `json:"total_cooperations"`
	Rating            *float64 `json:"rating,omitempty"`
}

// SchellingPoint is one column of a Schelling diagram
type SchellingPoint struct {
	Cooperators      int      `json:"cooperators"`
	CooperativeScore *float64 `json:"cooperative_score"`
	AggressiveScore  *float64 `json:"aggressive_score"`
}

// StrategyRatingExport is the Elo summary of one strategy
type StrategyRatingExport struct {
	Rank       int     `json:"rank"`
	Strategy   string  `json:"strategy"`
	Attitude   string  `json:"attitude"`
	Players    int     `json:"players"`
	MeanRating float64 `json:"mean_rating"`
	MinRating  float64 `json:"min_rating"`
	MaxRating  float64 `json:"max_rating"`
}

// ExportStatistics provides summary statistics over match social welfare
type ExportStatistics struct {
	TotalMatches       int     `json:"total_matches"`
	AverageWelfare     float64 `json:"average_welfare"`
	WelfareRange       float64 `json:"welfare_range"`
	StandardDeviation  float64 `json:"standard_deviation"`
	CooperationRate    float64 `json:"cooperation_rate"`
	MinSocialWelfare   float64 `json:"min_social_welfare"`
	MaxSocialWelfare   float64 `json:"max_social_welfare"`
	AvgRatingChange    float64 `json:"avg_rating_change,omitempty"`
	RatingsStabilized  bool    `json:"ratings_stabilized,omitempty"`
	StabilityThreshold float64 `json:"stability_threshold,omitempty"`
}

// Exporter renders tournament results. Ratings are computed with its Elo engine.
type Exporter struct {
	engine *elo.Engine
}

// NewExporter creates a new exporter; a nil engine disables ratings
func NewExporter(engine *elo.Engine) *Exporter {
	return &Exporter{engine: engine}
}

// ExportToFile exports results to a file with the specified format
func (e *Exporter) ExportToFile(res tournament.Results, filePath string, options ExportOptions) (err error) {
	dir := filepath.Dir(filePath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	tempFile := filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		_ = file.Close()
		if err != nil {
			_ = os.Remove(tempFile)
		}
	}()

	if err = e.Export(res, file, options); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err = file.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err = os.Rename(tempFile, filePath); err != nil {
		return fmt.Errorf("failed to replace target file: %w", err)
	}
	return nil
}

// Export writes results to writer in options.Format
func (e *Exporter) Export(res tournament.Results, writer io.Writer, options ExportOptions) error {
	switch options.Format {
	case FormatCSV:
		return e.ExportCSV(res, writer, options)
	case FormatJSON:
		return e.ExportJSON(res, writer, options)
	case FormatText:
		return e.ExportReport(res, writer, options)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, options.Format)
	}
}

// ExportCSV writes the summary table; fair exports get an elo_rating column when
// ratings are requested
func (e *Exporter) ExportCSV(res tournament.Results, writer io.Writer, options ExportOptions) error {
	records := res.Summary()
	if len(records) < 2 {
		return fmt.Errorf("%w: %s has no rows", ErrNothingToExport, res.ResultType())
	}

	if fair, ok := res.(*tournament.FairResults); ok && options.IncludeRatings && e.engine != nil {
		ledger, err := elo.RateFair(e.engine, fair)
		if err != nil {
			return err
		}
		records[0] = append(records[0], "elo_rating")
		for i, row := range fair.Table() {
			rating := ""
			if r, ok := ledger.Rating(row.ID()); ok {
				rating = strconv.FormatFloat(r.Score, 'f', 2, 64)
			}
			records[i+1] = append(records[i+1], rating)
		}
	}

	return writeCSV(writer, records)
}

// ExportSchelling writes the Schelling diagram data of a mixture sweep
func (e *Exporter) ExportSchelling(res *tournament.MixtureResults, writer io.Writer) error {
	return writeCSV(writer, res.Schelling().Records())
}

func writeCSV(writer io.Writer, records [][]string) error {
	csvWriter := csv.NewWriter(writer)
	if err := csvWriter.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// ExportJSON exports results in JSON format with derived tables and statistics
func (e *Exporter) ExportJSON(res tournament.Results, writer io.Writer, options ExportOptions) error {
	doc, err := e.build(res, options)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func (e *Exporter) build(res tournament.Results, options ExportOptions) (*ResultsExport, error) {
	cfg := res.Config()
	doc := &ResultsExport{
		ResultType:  res.ResultType(),
		GameType:    cfg.GameDescription.TypeName(),
		GroupSize:   res.GroupSize(),
		Repetitions: cfg.Repetitions,
		ExportedAt:  time.Now().UTC(),
		Config:      cfg,
		Statistics:  calculateExportStatistics(res),
	}
	if options.IncludeMatches {
		doc.Matches = res.Matches()
	}

	switch r := res.(type) {
	case *tournament.FairResults:
		var ledger *elo.Ledger
		if options.IncludeRatings && e.engine != nil {
			var err error
			if ledger, err = elo.RateFair(e.engine, r); err != nil {
				return nil, err
			}
			doc.Ratings = strategyRatings(ledger)
			avg := ledger.History().AvgRatingChange(0)
			if !math.IsNaN(avg) {
				doc.Statistics.AvgRatingChange = avg
				doc.Statistics.StabilityThreshold = e.engine.StabilityThreshold()
				doc.Statistics.RatingsStabilized = ledger.History().IsStable(0, doc.Statistics.StabilityThreshold)
			}
		}
		for i, row := range r.Table() {
			p := PlayerExport{
				Rank:              i + 1,
				Name:              row.Name,
				Attitude:          string(row.Attitude),
				Strategy:          row.Strategy,
				GamesPlayed:       row.GamesPlayed,
				MeanPayoff:        finite(row.MeanPayoff),
				TotalPayoff:       row.TotalPayoff,
				MeanCooperations:  finite(row.MeanCooperations),
				TotalCooperations: row.TotalCooperations,
			}
			if ledger != nil {
				if rating, ok := ledger.Rating(row.ID()); ok {
					p.Rating = &rating.Score
				}
			}
			doc.Players = append(doc.Players, p)
		}
	case *tournament.MixtureResults:
		doc.Mixtures = r.Table()
		doc.Schelling = schellingPoints(r.Schelling())
	}
	return doc, nil
}

func strategyRatings(ledger *elo.Ledger) []StrategyRatingExport {
	var out []StrategyRatingExport
	for i, s := range ledger.Strategies() {
		out = append(out, StrategyRatingExport{
			Rank:       i + 1,
			Strategy:   s.Strategy,
			Attitude:   string(s.Attitude),
			Players:    s.Players,
			MeanRating: s.MeanRating,
			MinRating:  s.MinRating,
			MaxRating:  s.MaxRating,
		})
	}
	return out
}

func schellingPoints(s tournament.SchellingSeries) []SchellingPoint {
	points := make([]SchellingPoint, len(s.Cooperators))
	for i, c := range s.Cooperators {
		points[i] = SchellingPoint{
			Cooperators:      c,
			CooperativeScore: finite(s.CooperativeScores[i]),
			AggressiveScore:  finite(s.AggressiveScores[i]),
		}
	}
	return points
}

// calculateExportStatistics computes welfare statistics over all matches
func calculateExportStatistics(res tournament.Results) *ExportStatistics {
	d := res.Config().GameDescription
	stats := &ExportStatistics{
		MinSocialWelfare: d.MinSocialWelfare(),
		MaxSocialWelfare: d.MaxSocialWelfare(),
	}
	matches := res.Matches()
	if len(matches) == 0 {
		return stats
	}

	var sum, lo, hi float64
	cooperations, decisions := 0, 0
	welfare := make([]float64, len(matches))
	for i, m := range matches {
		w := m.SocialWelfare()
		welfare[i] = w
		sum += w
		if i == 0 || w < lo {
			lo = w
		}
		if i == 0 || w > hi {
			hi = w
		}
		for _, c := range m.TotalCooperations {
			cooperations += c
		}
		decisions += len(m.TotalCooperations) * d.NRounds()
	}
	average := sum / float64(len(welfare))

	var variance float64
	for _, w := range welfare {
		diff := w - average
		variance += diff * diff
	}
	variance /= float64(len(welfare))

	stats.TotalMatches = len(matches)
	stats.AverageWelfare = average
	stats.WelfareRange = hi - lo
	stats.StandardDeviation = math.Sqrt(variance)
	if decisions > 0 {
		stats.CooperationRate = float64(cooperations) / float64(decisions)
	}
	return stats
}

// ExportReport generates a human-readable text report
func (e *Exporter) ExportReport(res tournament.Results, writer io.Writer, options ExportOptions) error {
	doc, err := e.build(res, options)
	if err != nil {
		return err
	}
	w := &reportWriter{w: writer}

	title := "Fair Tournament Report"
	if doc.ResultType == tournament.MixtureResultType {
		title = "Mixture Tournament Report"
	}
	w.printf("%s\n%s\n\n", title, strings.Repeat("=", len(title)))
	w.printf("Game: %s\n", doc.GameType)
	w.printf("Group size: %d\n", doc.GroupSize)
	w.printf("Repetitions: %d\n", doc.Repetitions)
	w.printf("Generated: %s\n\n", doc.ExportedAt.Format("2006-01-02 15:04:05"))

	s := doc.Statistics
	w.printf("Match Statistics\n----------------\n")
	w.printf("Matches: %d\n", s.TotalMatches)
	w.printf("Average welfare: %.3f (bounds %.3f .. %.3f)\n", s.AverageWelfare, s.MinSocialWelfare, s.MaxSocialWelfare)
	w.printf("Welfare range: %.3f\n", s.WelfareRange)
	w.printf("Standard deviation: %.3f\n", s.StandardDeviation)
	w.printf("Cooperation rate: %.1f%%\n\n", s.CooperationRate*100)

	if len(doc.Players) > 0 {
		w.printf("Standings\n=========\n\n")
		for _, p := range doc.Players {
			w.printf("%3d. %-28s %-11s mean %s  coop %s", p.Rank, p.Name, p.Attitude,
				formatOptional(p.MeanPayoff, 3), formatOptional(p.MeanCooperations, 2))
			if p.Rating != nil {
				w.printf("  elo %.0f", *p.Rating)
			}
			w.printf("\n")
		}
		w.printf("\n")
	}

	if len(doc.Ratings) > 0 {
		w.printf("Strategy Ratings\n================\n\n")
		for _, r := range doc.Ratings {
			w.printf("%3d. %-24s %-11s %.1f (%.1f .. %.1f, %d players)\n",
				r.Rank, r.Strategy, r.Attitude, r.MeanRating, r.MinRating, r.MaxRating, r.Players)
		}
		if s.StabilityThreshold > 0 {
			status := "not yet stable"
			if s.RatingsStabilized {
				status = "stable"
			}
			w.printf("\nAvg rating change: %.2f (%s)\n", s.AvgRatingChange, status)
		}
		w.printf("\n")
	}

	if len(doc.Mixtures) > 0 {
		w.printf("Compositions\n============\n\n")
		w.printf("%-8s %12s %12s %12s %8s\n", "(c,a)", "cooperative", "aggressive", "welfare", "matches")
		for _, row := range doc.Mixtures {
			comp := tournament.Composition{Cooperative: row.NCooperative, Aggressive: row.NAggressive}
			w.printf("%-8s %12s %12s %12s %8d\n", comp,
				formatScore(row.AvgCooperativeScore), formatScore(row.AvgAggressiveScore),
				formatScore(row.AvgSocialWelfare), row.MatchesPlayed)
		}
		w.printf("\n")
	}

	return w.err
}

// ExportWithTemplate renders one row per fair player or mixture composition
func (e *Exporter) ExportWithTemplate(res tournament.Results, writer io.Writer, template ExportTemplate, options ExportOptions) error {
	doc, err := e.build(res, options)
	if err != nil {
		return err
	}

	if template.HeaderFormat != "" {
		tmpl, err := texttemplate.New("header").Parse(template.HeaderFormat)
		if err != nil {
			return fmt.Errorf("failed to parse header template: %w", err)
		}
		if err := tmpl.Execute(writer, doc); err != nil {
			return fmt.Errorf("failed to execute header template: %w", err)
		}
	}

	if template.RowFormat != "" {
		tmpl, err := texttemplate.New("row").Parse(template.RowFormat)
		if err != nil {
			return fmt.Errorf("failed to parse row template: %w", err)
		}
		var rows []any
		for _, p := range doc.Players {
			rows = append(rows, p)
		}
		for _, m := range doc.Mixtures {
			rows = append(rows, m)
		}
		for i, row := range rows {
			if err := tmpl.Execute(writer, row); err != nil {
				return fmt.Errorf("failed to execute row template for row %d: %w", i, err)
			}
		}
	}

	if template.FooterFormat != "" {
		tmpl, err := texttemplate.New("footer").Parse(template.FooterFormat)
		if err != nil {
			return fmt.Errorf("failed to parse footer template: %w", err)
		}
		if err := tmpl.Execute(writer, doc); err != nil {
			return fmt.Errorf("failed to execute footer template: %w", err)
		}
	}

	return nil
}

// reportWriter keeps the first write error
type reportWriter struct {
	w   io.Writer
	err error
}

func (r *reportWriter) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatOptional(v *float64, precision int) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', precision, 64)
}

func formatScore(v float64) string {
	return formatOptional(finite(v), 3)
}
