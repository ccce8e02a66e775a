// Package components provides reusable TUI components for tournament results.
// This file implements the outcome gauge: progress-style bars for cooperation and
// social welfare plus a metrics panel with Elo rating stability.
package components

import (
	"fmt"
	"math"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pashagolub/dilemma/pkg/elo"
	"github.com/pashagolub/dilemma/pkg/tournament"
)

// BarWidth is the number of cells used by a bar
const BarWidth = 30

// Metrics summarises a set of matches for display
type Metrics struct {
	Matches          int
	MeanWelfare      float64
	MinSocialWelfare float64
	MaxSocialWelfare float64
	CooperationRate  float64 // cooperative actions per player-round
	AvgRatingChange  float64 // NaN when no ratings are available
	RatingsStable    bool
}

// WelfareProgress places the mean welfare between the game's bounds
func (m Metrics) WelfareProgress() float64 {
	span := m.MaxSocialWelfare - m.MinSocialWelfare
	if span <= 0 || math.IsNaN(m.MeanWelfare) {
		return 0
	}
	return clamp((m.MeanWelfare - m.MinSocialWelfare) / span)
}

// Gauge displays cooperation and welfare bars with a metrics panel
type Gauge struct {
	container       *tview.Flex
	cooperationBar  *tview.TextView
	welfareBar      *tview.TextView
	metricsText     *tview.TextView
	statusText      *tview.TextView
	metrics         *Metrics
	stabilityWindow int

	showBars    bool
	showMetrics bool

	progressColor tcell.Color
	completeColor tcell.Color
	textColor     tcell.Color
	borderColor   tcell.Color
}

// GaugeConfig holds configuration options for the gauge
type GaugeConfig struct {
	ShowBars        bool
	ShowMetrics     bool
	StabilityWindow int // matches considered by the rating stability check
	ProgressColor   tcell.Color
	CompleteColor   tcell.Color
	TextColor       tcell.Color
	BorderColor     tcell.Color
}

// DefaultGaugeConfig returns sensible defaults for the gauge
func DefaultGaugeConfig() GaugeConfig {
	return GaugeConfig{
		ShowBars:        true,
		ShowMetrics:     true,
		StabilityWindow: 20,
		ProgressColor:   tcell.ColorBlue,
		CompleteColor:   tcell.ColorGreen,
		TextColor:       tcell.ColorWhite,
		BorderColor:     tcell.ColorDarkGray,
	}
}

// NewGauge creates a new gauge component
func NewGauge(config GaugeConfig) *Gauge {
	g := &Gauge{
		container:       tview.NewFlex(),
		cooperationBar:  tview.NewTextView(),
		welfareBar:      tview.NewTextView(),
		metricsText:     tview.NewTextView(),
		statusText:      tview.NewTextView(),
		stabilityWindow: config.StabilityWindow,
		showBars:        config.ShowBars,
		showMetrics:     config.ShowMetrics,
		progressColor:   config.ProgressColor,
		completeColor:   config.CompleteColor,
		textColor:       config.TextColor,
		borderColor:     config.BorderColor,
	}

	if g.stabilityWindow <= 0 {
		g.stabilityWindow = 20
	}
	if g.progressColor == 0 {
		g.progressColor = tcell.ColorBlue
	}
	if g.completeColor == 0 {
		g.completeColor = tcell.ColorGreen
	}
	if g.textColor == 0 {
		g.textColor = tcell.ColorWhite
	}
	if g.borderColor == 0 {
		g.borderColor = tcell.ColorDarkGray
	}

	g.initializeUI()
	return g
}

func (g *Gauge) initializeUI() {
	for _, view := range []struct {
		tv    *tview.TextView
		title string
	}{
		{g.cooperationBar, "Cooperation"},
		{g.welfareBar, "Social Welfare"},
		{g.metricsText, "Metrics"},
		{g.statusText, "Ratings"},
	} {
		view.tv.SetBorder(true).SetTitle(view.title)
		view.tv.SetBorderColor(g.borderColor)
		view.tv.SetTextColor(g.textColor)
		view.tv.SetDynamicColors(true)
	}
	g.cooperationBar.SetTextAlign(tview.AlignCenter)
	g.welfareBar.SetTextAlign(tview.AlignCenter)

	g.container.SetDirection(tview.FlexRow)
	if g.showBars {
		bars := tview.NewFlex().SetDirection(tview.FlexColumn)
		bars.AddItem(g.cooperationBar, 0, 1, false)
		bars.AddItem(g.welfareBar, 0, 1, false)
		g.container.AddItem(bars, 4, 0, false)
	}
	if g.showMetrics {
		text := tview.NewFlex().SetDirection(tview.FlexColumn)
		text.AddItem(g.metricsText, 0, 1, false)
		text.AddItem(g.statusText, 0, 1, false)
		g.container.AddItem(text, 0, 1, false)
	}
}

// Compute derives the gauge metrics from results and an optional rating history
func Compute(results tournament.Results, history *elo.History, window int, threshold float64) Metrics {
	d := results.Config().GameDescription
	m := Metrics{
		MinSocialWelfare: d.MinSocialWelfare(),
		MaxSocialWelfare: d.MaxSocialWelfare(),
		MeanWelfare:      math.NaN(),
		AvgRatingChange:  math.NaN(),
	}

	matches := results.Matches()
	m.Matches = len(matches)
	if m.Matches > 0 {
		var welfare float64
		var cooperations, slots int
		for _, match := range matches {
			welfare += match.SocialWelfare()
			for _, c := range match.TotalCooperations {
				cooperations += c
			}
			slots += len(match.TotalCooperations) * d.NRounds()
		}
		m.MeanWelfare = welfare / float64(m.Matches)
		if slots > 0 {
			m.CooperationRate = float64(cooperations) / float64(slots)
		}
	}

	if history != nil {
		m.AvgRatingChange = history.AvgRatingChange(window)
		m.RatingsStable = history.IsStable(window, threshold)
	}
	return m
}

// Update refreshes the gauge with new metrics
func (g *Gauge) Update(m Metrics) {
	g.metrics = &m
	if g.showBars {
		g.updateBars()
	}
	if g.showMetrics {
		g.updateMetricsDisplay()
		g.updateStatusDisplay()
	}
}

func (g *Gauge) updateBars() {
	coop := g.metrics.CooperationRate
	g.cooperationBar.SetText(ProgressBar(coop, BarWidth, coop >= 0.95) +
		fmt.Sprintf("\n[white]%.1f%% of actions", coop*100))

	welfare := g.metrics.WelfareProgress()
	g.welfareBar.SetText(ProgressBar(welfare, BarWidth, welfare >= 0.95) +
		fmt.Sprintf("\n[white]%.1f%% of optimum", welfare*100))
}

func (g *Gauge) updateMetricsDisplay() {
	var b strings.Builder
	fmt.Fprintf(&b, "Matches: [yellow]%d[white]\n", g.metrics.Matches)
	fmt.Fprintf(&b, "Mean welfare: [green]%s[white]\n", FormatValue(g.metrics.MeanWelfare, 2))
	fmt.Fprintf(&b, "Welfare bounds: [blue]%.2f .. %.2f[white]\n", g.metrics.MinSocialWelfare, g.metrics.MaxSocialWelfare)
	fmt.Fprintf(&b, "Cooperation: [cyan]%.1f%%[white]\n", g.metrics.CooperationRate*100)
	g.metricsText.SetText(b.String())
}

func (g *Gauge) updateStatusDisplay() {
	if math.IsNaN(g.metrics.AvgRatingChange) {
		g.statusText.SetText("[gray]No ratings[white]")
		return
	}
	status := "[yellow]Moving[white]"
	if g.metrics.RatingsStable {
		status = "[green]Stable[white]"
	}
	g.statusText.SetText(fmt.Sprintf("Avg change (last %d): [yellow]%.2f[white]\nStatus: %s",
		g.stabilityWindow, g.metrics.AvgRatingChange, status))
}

// GetContainer returns the main container for embedding in other layouts
func (g *Gauge) GetContainer() tview.Primitive {
	return g.container
}

// GetMetrics returns the last metrics shown, or nil
func (g *Gauge) GetMetrics() *Metrics {
	return g.metrics
}

// StabilityWindow returns the number of matches used by the stability check
func (g *Gauge) StabilityWindow() int {
	return g.stabilityWindow
}

// ProgressBar renders a bar of width cells filled to fraction, which is clamped to [0, 1]
func ProgressBar(fraction float64, width int, complete bool) string {
	if width <= 0 {
		return ""
	}
	filled := int(clamp(fraction) * float64(width))

	color := "[blue]"
	if complete {
		color = "[green]"
	}
	return color + strings.Repeat("█", filled) + "[gray]" + strings.Repeat("░", width-filled) + "[white]"
}

// FormatValue prints v with the given precision, or n/a when v is not finite
func FormatValue(v float64, precision int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", precision, v)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
