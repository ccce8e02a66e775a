// Package screens provides TUI screen implementations for tournament results.
// This file implements the standings screen of a fair tournament, where users
// sort and filter the players and inspect Elo ratings.
package screens

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pashagolub/dilemma/pkg/elo"
	"github.com/pashagolub/dilemma/pkg/game"
	"github.com/pashagolub/dilemma/pkg/tournament"
	"github.com/pashagolub/dilemma/pkg/tui/components"
)

// Screen errors
var (
	ErrNoFairResults    = errors.New("standings need fair tournament results")
	ErrNoMixtureResults = errors.New("compositions need mixture tournament results")
)

// SortOrder represents the sorting direction for standings
type SortOrder int

const (
	SortAsc SortOrder = iota
	SortDesc
)

// SortField represents the field to sort standings by
type SortField int

const (
	SortByRank SortField = iota
	SortByRating
	SortByCooperation
	SortByName
	SortByStrategy
	sortFieldCount
)

var sortFieldNames = [...]string{"Rank", "Rating", "Cooperation", "Name", "Strategy"}

// String returns the display name of the sort field
func (f SortField) String() string {
	if f < 0 || f >= sortFieldCount {
		return "Unknown"
	}
	return sortFieldNames[f]
}

// FilterCriteria holds the current filtering settings
type FilterCriteria struct {
	SearchText string        // matched against player name and strategy
	Attitude   game.Attitude // empty keeps every attitude
}

// StandingRow is one displayed player: its summary row, the rank it has in the
// payoff table and its Elo rating (NaN without a ledger)
type StandingRow struct {
	Rank   int
	Rating float64
	tournament.PlayerRow
}

// fairSource is implemented by the application holding fair results
type fairSource interface {
	FairResults() *tournament.FairResults
	Ledger() *elo.Ledger
}

// exportStatus is implemented by the application when exports are available
type exportStatus interface {
	LastExport() (string, *time.Time)
}

// navigator is implemented by the application for screen switching
type navigator interface {
	GoBack() error
}

// StandingsScreen implements the fair standings display
type StandingsScreen struct {
	container     *tview.Flex
	mainLayout    *tview.Flex
	sidebarLayout *tview.Flex

	standingsTable  *tview.Table
	filterForm      *tview.Form
	statisticsPanel *tview.TextView
	ratingsPanel    *tview.TextView
	gauge           *components.Gauge

	statusBar *tview.TextView
	helpBar   *tview.TextView

	results  *tournament.FairResults
	ledger   *elo.Ledger
	rows     []StandingRow
	filtered []StandingRow
	sortBy   SortField
	order    SortOrder
	filter   FilterCriteria
	selected int

	app any
}

// NewStandingsScreen creates a new standings screen instance
func NewStandingsScreen() *StandingsScreen {
	ss := &StandingsScreen{
		container:       tview.NewFlex(),
		mainLayout:      tview.NewFlex(),
		sidebarLayout:   tview.NewFlex(),
		standingsTable:  tview.NewTable(),
		filterForm:      tview.NewForm(),
		statisticsPanel: tview.NewTextView(),
		ratingsPanel:    tview.NewTextView(),
		gauge:           components.NewGauge(components.DefaultGaugeConfig()),
		statusBar:       tview.NewTextView(),
		helpBar:         tview.NewTextView(),
		sortBy:          SortByRank,
		order:           SortAsc,
	}

	ss.setupUI()
	ss.setupKeyBindings()
	return ss
}

// GetPrimitive returns the main primitive for the standings screen
func (ss *StandingsScreen) GetPrimitive() tview.Primitive {
	return ss.container
}

// OnEnter loads the fair results and ratings from the application
func (ss *StandingsScreen) OnEnter(app any) error {
	source, ok := app.(fairSource)
	if !ok || source.FairResults() == nil {
		return ErrNoFairResults
	}
	ss.app = app
	ss.Load(source.FairResults(), source.Ledger())
	return nil
}

// OnExit is called when leaving the standings screen
func (ss *StandingsScreen) OnExit(app any) error {
	return nil
}

// GetTitle returns the screen title
func (ss *StandingsScreen) GetTitle() string {
	if len(ss.filtered) != len(ss.rows) {
		return fmt.Sprintf("Standings (%d/%d players)", len(ss.filtered), len(ss.rows))
	}
	return fmt.Sprintf("Standings (%d players)", len(ss.rows))
}

// GetHelpText returns help text for the standings screen
func (ss *StandingsScreen) GetHelpText() []string {
	return []string{
		"Arrow Keys: Navigate standings",
		"Tab/S-Tab: Switch between panels",
		"S: Change sort field",
		"O: Toggle sort order",
		"A: Cycle attitude filter",
		"C: Clear all filters",
		"Q/Esc: Back",
	}
}

// Load replaces the displayed results
func (ss *StandingsScreen) Load(results *tournament.FairResults, ledger *elo.Ledger) {
	ss.results = results
	ss.ledger = ledger
	ss.rows = buildStandings(results.Table(), ledger)

	metrics := components.Compute(results, nil, 0, 0)
	if ledger != nil {
		metrics = components.Compute(results, ledger.History(), ss.gauge.StabilityWindow(), ledger.Engine().StabilityThreshold())
	}
	ss.gauge.Update(metrics)

	ss.applyFilterAndSort()
	ss.updateDisplay()
	ss.updateStatistics()
	ss.updateRatings()
}

// Rows returns the displayed rows in display order
func (ss *StandingsScreen) Rows() []StandingRow {
	return append([]StandingRow(nil), ss.filtered...)
}

func buildStandings(table []tournament.PlayerRow, ledger *elo.Ledger) []StandingRow {
	rows := make([]StandingRow, len(table))
	for i, row := range table {
		rows[i] = StandingRow{Rank: i + 1, Rating: math.NaN(), PlayerRow: row}
		if ledger != nil {
			if r, ok := ledger.Rating(row.ID()); ok {
				rows[i].Rating = r.Score
			}
		}
	}
	return rows
}

func (ss *StandingsScreen) setupUI() {
	ss.standingsTable.SetBorder(true).
		SetTitle(" Standings ").
		SetTitleAlign(tview.AlignLeft)
	ss.standingsTable.SetSelectable(true, false).SetFixed(1, 0)
	ss.setupTableHeaders()

	ss.setupFilterForm()

	ss.statisticsPanel.SetBorder(true).
		SetTitle(" Statistics ").
		SetTitleAlign(tview.AlignLeft)
	ss.statisticsPanel.SetDynamicColors(true)

	ss.ratingsPanel.SetBorder(true).
		SetTitle(" Strategy Ratings ").
		SetTitleAlign(tview.AlignLeft)
	ss.ratingsPanel.SetDynamicColors(true)

	ss.statusBar.SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)

	ss.helpBar.SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]S:Sort  O:Order  A:Attitude  C:Clear  Q:Back[white]")

	ss.sidebarLayout.SetDirection(tview.FlexRow).
		AddItem(ss.filterForm, 7, 0, false).
		AddItem(ss.statisticsPanel, 0, 1, false).
		AddItem(ss.ratingsPanel, 0, 1, false)

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ss.standingsTable, 0, 3, true).
		AddItem(ss.gauge.GetContainer(), 10, 0, false)

	ss.mainLayout.SetDirection(tview.FlexColumn).
		AddItem(left, 0, 3, true).
		AddItem(ss.sidebarLayout, 44, 1, false)

	ss.container.SetDirection(tview.FlexRow).
		AddItem(ss.mainLayout, 0, 1, true).
		AddItem(ss.statusBar, 1, 1, false).
		AddItem(ss.helpBar, 1, 1, false)
}

func (ss *StandingsScreen) setupTableHeaders() {
	headers := []string{"Rank", "Player", "Strategy", "Attitude", "Mean", "Total", "Coop/Game", "Elo"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetAlign(tview.AlignCenter).
			SetSelectable(false).
			SetExpansion(1)
		if col == 1 {
			cell.SetExpansion(2)
		}
		ss.standingsTable.SetCell(0, col, cell)
	}
}

func (ss *StandingsScreen) setupFilterForm() {
	ss.filterForm.SetBorder(true).
		SetTitle(" Filters ").
		SetTitleAlign(tview.AlignLeft)

	ss.filterForm.AddInputField("Search:", "", 24, nil, func(text string) {
		ss.filter.SearchText = text
		ss.applyFilterAndSort()
		ss.updateDisplay()
	})

	ss.filterForm.AddButton("Clear All", func() {
		ss.clearFilters()
	})
}

func (ss *StandingsScreen) setupKeyBindings() {
	ss.standingsTable.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc {
			ss.goBack()
			return nil
		}

		switch event.Rune() {
		case 's', 'S':
			ss.cycleSortField()
			return nil
		case 'o', 'O':
			ss.toggleSortOrder()
			return nil
		case 'a', 'A':
			ss.cycleAttitude()
			return nil
		case 'c', 'C':
			ss.clearFilters()
			return nil
		case 'q', 'Q':
			ss.goBack()
			return nil
		}
		return event
	})
}

func (ss *StandingsScreen) applyFilterAndSort() {
	ss.filtered = make([]StandingRow, 0, len(ss.rows))
	for _, row := range ss.rows {
		if ss.matchesFilter(row) {
			ss.filtered = append(ss.filtered, row)
		}
	}
	ss.sortRows()
}

func (ss *StandingsScreen) matchesFilter(row StandingRow) bool {
	if ss.filter.Attitude != "" && row.Attitude != ss.filter.Attitude {
		return false
	}
	if ss.filter.SearchText != "" {
		search := strings.ToLower(ss.filter.SearchText)
		if !strings.Contains(strings.ToLower(row.Name), search) &&
			!strings.Contains(strings.ToLower(row.Strategy), search) {
			return false
		}
	}
	return true
}

// sortRows orders by the current field; the payoff rank breaks ties
func (ss *StandingsScreen) sortRows() {
	sort.SliceStable(ss.filtered, func(i, j int) bool {
		a, b := ss.filtered[i], ss.filtered[j]
		var less, equal bool
		switch ss.sortBy {
		case SortByRating:
			less, equal = ratingGreater(a.Rating, b.Rating), a.Rating == b.Rating || (math.IsNaN(a.Rating) && math.IsNaN(b.Rating))
		case SortByCooperation:
			less, equal = a.MeanCooperations > b.MeanCooperations, a.MeanCooperations == b.MeanCooperations
		case SortByName:
			less, equal = a.Name < b.Name, a.Name == b.Name
		case SortByStrategy:
			less, equal = a.Strategy < b.Strategy, a.Strategy == b.Strategy
		default:
			less, equal = a.Rank < b.Rank, a.Rank == b.Rank
		}
		if equal {
			return a.Rank < b.Rank
		}
		if ss.order == SortDesc {
			return !less
		}
		return less
	})
}

// ratingGreater places rated players before unrated ones
func ratingGreater(a, b float64) bool {
	switch {
	case math.IsNaN(a):
		return false
	case math.IsNaN(b):
		return true
	default:
		return a > b
	}
}

func (ss *StandingsScreen) updateDisplay() {
	ss.standingsTable.Clear()
	ss.setupTableHeaders()

	for i, row := range ss.filtered {
		ss.addStandingRow(i+1, row)
	}
	ss.updateStatusBar()

	if ss.selected >= len(ss.filtered) {
		ss.selected = len(ss.filtered) - 1
	}
	if ss.selected < 0 {
		ss.selected = 0
	}
	if len(ss.filtered) > 0 {
		ss.standingsTable.Select(ss.selected+1, 0)
	}
}

func (ss *StandingsScreen) addStandingRow(line int, row StandingRow) {
	cells := []*tview.TableCell{
		tview.NewTableCell(strconv.Itoa(row.Rank)).SetAlign(tview.AlignCenter),
		tview.NewTableCell(row.Name).SetAlign(tview.AlignLeft).SetExpansion(2),
		tview.NewTableCell(row.Strategy).SetAlign(tview.AlignLeft).SetTextColor(tcell.ColorLightBlue),
		tview.NewTableCell(string(row.Attitude)).SetAlign(tview.AlignCenter).SetTextColor(attitudeColor(row.Attitude)),
		tview.NewTableCell(components.FormatValue(row.MeanPayoff, 2)).SetAlign(tview.AlignRight),
		tview.NewTableCell(components.FormatValue(row.TotalPayoff, 2)).SetAlign(tview.AlignRight),
		tview.NewTableCell(components.FormatValue(row.MeanCooperations, 2)).SetAlign(tview.AlignRight),
		tview.NewTableCell(components.FormatValue(row.Rating, 1)).SetAlign(tview.AlignRight).SetTextColor(ss.ratingColor(row.Rating)),
	}
	for col, cell := range cells {
		ss.standingsTable.SetCell(line, col, cell)
	}
}

func attitudeColor(a game.Attitude) tcell.Color {
	switch a {
	case game.Cooperative:
		return tcell.ColorGreen
	case game.Aggressive:
		return tcell.ColorRed
	default:
		return tcell.ColorGray
	}
}

// ratingColor compares a rating with the engine's starting rating
func (ss *StandingsScreen) ratingColor(rating float64) tcell.Color {
	if ss.ledger == nil || math.IsNaN(rating) {
		return tcell.ColorGray
	}
	initial := ss.ledger.Engine().InitialRating
	switch {
	case rating >= initial+50:
		return tcell.ColorGreen
	case rating >= initial-50:
		return tcell.ColorYellow
	default:
		return tcell.ColorRed
	}
}

func (ss *StandingsScreen) updateStatusBar() {
	arrow := "↑"
	if ss.order == SortDesc {
		arrow = "↓"
	}
	status := fmt.Sprintf("[blue]Showing %d/%d players | Sort: %s %s | ",
		len(ss.filtered), len(ss.rows), ss.sortBy, arrow)
	if ss.filter.Attitude != "" {
		status += fmt.Sprintf("Attitude: %s | ", ss.filter.Attitude)
	}
	if ss.filter.SearchText != "" {
		status += fmt.Sprintf("Search: '%s' | ", ss.filter.SearchText)
	}
	if exp, ok := ss.app.(exportStatus); ok {
		if path, at := exp.LastExport(); at != nil {
			status += fmt.Sprintf("Exported %s | ", path)
		}
	}
	ss.statusBar.SetText(status + "Use arrow keys to navigate[white]")
}

func (ss *StandingsScreen) updateStatistics() {
	if ss.results == nil || len(ss.rows) == 0 {
		ss.statisticsPanel.SetText("[gray]No players to show[white]")
		return
	}

	minPayoff, maxPayoff := math.Inf(1), math.Inf(-1)
	total := 0.0
	attitudes := map[game.Attitude]int{}
	for _, row := range ss.rows {
		minPayoff = math.Min(minPayoff, row.MeanPayoff)
		maxPayoff = math.Max(maxPayoff, row.MeanPayoff)
		total += row.MeanPayoff
		attitudes[row.Attitude]++
	}

	d := ss.results.Config().GameDescription
	ss.statisticsPanel.SetText(fmt.Sprintf(`[yellow]Game:[white] %s
Group size: %d, rounds: %d
Repetitions: %d, games per player: %d

[yellow]Mean payoff:[white]
Average: %.2f
Range: %.2f - %.2f

[yellow]Players:[white]
Cooperative: %d
Aggressive: %d
Neutral: %d`,
		d.TypeName(), d.NPlayers(), d.NRounds(),
		ss.results.Config().Repetitions, ss.results.GamesPlayed(),
		total/float64(len(ss.rows)), minPayoff, maxPayoff,
		attitudes[game.Cooperative], attitudes[game.Aggressive], attitudes[game.Neutral]))
}

func (ss *StandingsScreen) updateRatings() {
	if ss.ledger == nil {
		ss.ratingsPanel.SetText("[gray]Ratings disabled[white]")
		return
	}
	var b strings.Builder
	for _, s := range ss.ledger.Strategies() {
		fmt.Fprintf(&b, "[%s]%-22s[white] %7.1f (%d)\n",
			attitudeColor(s.Attitude).Name(), s.Strategy, s.MeanRating, s.Players)
	}
	ss.ratingsPanel.SetText(b.String())
}

func (ss *StandingsScreen) cycleSortField() {
	ss.sortBy = (ss.sortBy + 1) % sortFieldCount
	ss.applyFilterAndSort()
	ss.updateDisplay()
}

func (ss *StandingsScreen) toggleSortOrder() {
	if ss.order == SortAsc {
		ss.order = SortDesc
	} else {
		ss.order = SortAsc
	}
	ss.applyFilterAndSort()
	ss.updateDisplay()
}

// cycleAttitude steps through all, cooperative, aggressive and neutral
func (ss *StandingsScreen) cycleAttitude() {
	switch ss.filter.Attitude {
	case "":
		ss.filter.Attitude = game.Cooperative
	case game.Cooperative:
		ss.filter.Attitude = game.Aggressive
	case game.Aggressive:
		ss.filter.Attitude = game.Neutral
	default:
		ss.filter.Attitude = ""
	}
	ss.applyFilterAndSort()
	ss.updateDisplay()
}

func (ss *StandingsScreen) clearFilters() {
	ss.filter = FilterCriteria{}
	if field, ok := ss.filterForm.GetFormItemByLabel("Search:").(*tview.InputField); ok {
		field.SetText("")
	}
	ss.applyFilterAndSort()
	ss.updateDisplay()
}

func (ss *StandingsScreen) goBack() {
	if nav, ok := ss.app.(navigator); ok {
		_ = nav.GoBack()
	}
}
