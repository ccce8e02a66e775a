package screens

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pashagolub/dilemma/pkg/tournament"
	"github.com/pashagolub/dilemma/pkg/tui/components"
)

// SchellingBarWidth is the width of a bar in the Schelling panel
const SchellingBarWidth = 24

// mixtureSource is implemented by the application holding mixture results
type mixtureSource interface {
	MixtureResults() *tournament.MixtureResults
}

// MixtureScreen shows the composition table and the Schelling diagram of a mixture sweep
type MixtureScreen struct {
	container *tview.Flex

	compositionTable *tview.Table
	schellingPanel   *tview.TextView
	gauge            *components.Gauge
	statusBar        *tview.TextView
	helpBar          *tview.TextView

	results   *tournament.MixtureResults
	rows      []tournament.MixtureRow
	schelling tournament.SchellingSeries

	app any
}

// NewMixtureScreen creates a new composition screen instance
func NewMixtureScreen() *MixtureScreen {
	ms := &MixtureScreen{
		container:        tview.NewFlex(),
		compositionTable: tview.NewTable(),
		schellingPanel:   tview.NewTextView(),
		gauge:            components.NewGauge(components.DefaultGaugeConfig()),
		statusBar:        tview.NewTextView(),
		helpBar:          tview.NewTextView(),
	}

	ms.setupUI()
	ms.setupKeyBindings()
	return ms
}

// GetPrimitive returns the main primitive for the screen
func (ms *MixtureScreen) GetPrimitive() tview.Primitive {
	return ms.container
}

// OnEnter loads the mixture results from the application
func (ms *MixtureScreen) OnEnter(app any) error {
	source, ok := app.(mixtureSource)
	if !ok || source.MixtureResults() == nil {
		return ErrNoMixtureResults
	}
	ms.app = app
	ms.Load(source.MixtureResults())
	return nil
}

// OnExit is called when leaving the screen
func (ms *MixtureScreen) OnExit(app any) error {
	return nil
}

// GetTitle returns the screen title
func (ms *MixtureScreen) GetTitle() string {
	return fmt.Sprintf("Compositions (%d)", len(ms.rows))
}

// Load replaces the displayed results
func (ms *MixtureScreen) Load(results *tournament.MixtureResults) {
	ms.results = results
	ms.rows = results.Table()
	ms.schelling = results.Schelling()
	ms.gauge.Update(components.Compute(results, nil, 0, 0))

	ms.updateTable()
	ms.updateSchelling()
	ms.statusBar.SetText(fmt.Sprintf("[blue]%s, N=%d | %d matches per composition | %d cooperative and %d aggressive strategies[white]",
		results.Config().GameDescription.TypeName(), results.GroupSize(), results.MatchesPerMixture(),
		len(results.CooperativeIDs()), len(results.AggressiveIDs())))
}

// Rows returns the composition rows in sweep order
func (ms *MixtureScreen) Rows() []tournament.MixtureRow {
	return append([]tournament.MixtureRow(nil), ms.rows...)
}

func (ms *MixtureScreen) setupUI() {
	ms.compositionTable.SetBorder(true).
		SetTitle(" Compositions ").
		SetTitleAlign(tview.AlignLeft)
	ms.compositionTable.SetSelectable(true, false).SetFixed(1, 0)
	ms.setupTableHeaders()

	ms.schellingPanel.SetBorder(true).
		SetTitle(" Schelling Diagram ").
		SetTitleAlign(tview.AlignLeft)
	ms.schellingPanel.SetDynamicColors(true).SetScrollable(true)

	ms.statusBar.SetDynamicColors(true)
	ms.helpBar.SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]Arrows:Navigate  Q:Back[white]")

	top := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(ms.compositionTable, 0, 3, true).
		AddItem(ms.schellingPanel, 0, 2, false)

	ms.container.SetDirection(tview.FlexRow).
		AddItem(top, 0, 1, true).
		AddItem(ms.gauge.GetContainer(), 10, 0, false).
		AddItem(ms.statusBar, 1, 1, false).
		AddItem(ms.helpBar, 1, 1, false)
}

func (ms *MixtureScreen) setupTableHeaders() {
	headers := []string{"(c,a)", "Coop %", "Cooperator", "Defector", "Welfare", "Matches"}
	for col, header := range headers {
		ms.compositionTable.SetCell(0, col, tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetAlign(tview.AlignCenter).
			SetSelectable(false).
			SetExpansion(1))
	}
}

func (ms *MixtureScreen) setupKeyBindings() {
	ms.compositionTable.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc || event.Rune() == 'q' || event.Rune() == 'Q' {
			if nav, ok := ms.app.(navigator); ok {
				_ = nav.GoBack()
			}
			return nil
		}
		return event
	})
}

func (ms *MixtureScreen) updateTable() {
	ms.compositionTable.Clear()
	ms.setupTableHeaders()
	for i, row := range ms.rows {
		comp := tournament.Composition{Cooperative: row.NCooperative, Aggressive: row.NAggressive}
		cells := []*tview.TableCell{
			tview.NewTableCell(comp.String()).SetAlign(tview.AlignCenter),
			tview.NewTableCell(fmt.Sprintf("%.0f%%", row.CooperativeRatio*100)).SetAlign(tview.AlignRight),
			tview.NewTableCell(components.FormatValue(row.AvgCooperativeScore, 2)).SetAlign(tview.AlignRight).SetTextColor(tcell.ColorGreen),
			tview.NewTableCell(components.FormatValue(row.AvgAggressiveScore, 2)).SetAlign(tview.AlignRight).SetTextColor(tcell.ColorRed),
			tview.NewTableCell(components.FormatValue(row.AvgSocialWelfare, 2)).SetAlign(tview.AlignRight),
			tview.NewTableCell(strconv.Itoa(row.MatchesPlayed)).SetAlign(tview.AlignRight),
		}
		for col, cell := range cells {
			ms.compositionTable.SetCell(i+1, col, cell)
		}
	}
	if len(ms.rows) > 0 {
		ms.compositionTable.Select(1, 0)
	}
}

// updateSchelling draws one pair of bars per cooperator count, scaled between the
// game's payoff bounds
func (ms *MixtureScreen) updateSchelling() {
	ms.schellingPanel.SetText(SchellingText(ms.schelling, SchellingBarWidth))
}

// SchellingText renders the series as text bars
func SchellingText(s tournament.SchellingSeries, width int) string {
	span := s.MaxPayoff - s.MinPayoff
	scale := func(v float64) float64 {
		if span <= 0 {
			return 0
		}
		return (v - s.MinPayoff) / span
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[gray]payoff %.2f .. %.2f[white]\n\n", s.MinPayoff, s.MaxPayoff)
	for i, c := range s.Cooperators {
		coop, agg := s.CooperativeScores[i], s.AggressiveScores[i]
		fmt.Fprintf(&b, "[yellow]%2d others cooperate[white]\n", c)
		fmt.Fprintf(&b, " C %s %s\n", components.ProgressBar(scale(coop), width, true), components.FormatValue(coop, 2))
		fmt.Fprintf(&b, " D %s %s\n", components.ProgressBar(scale(agg), width, false), components.FormatValue(agg, 2))
	}
	return b.String()
}
