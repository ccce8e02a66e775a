// This file implements the help screen that displays keyboard shortcuts and a short
// guide to reading the result screens.

package tui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// HelpScreen provides help and keyboard shortcut information
type HelpScreen struct {
	root     *tview.Flex
	textView *tview.TextView
	app      *App
}

// NewHelpScreen creates a new help screen
func NewHelpScreen() *HelpScreen {
	hs := &HelpScreen{
		root:     tview.NewFlex(),
		textView: tview.NewTextView(),
	}

	hs.setupLayout()
	return hs
}

// GetPrimitive returns the root primitive for this screen
func (hs *HelpScreen) GetPrimitive() tview.Primitive {
	return hs.root
}

// OnEnter is called when the help screen becomes active
func (hs *HelpScreen) OnEnter(app any) error {
	hs.app, _ = app.(*App)
	hs.updateContent()
	return nil
}

// OnExit is called when leaving the help screen
func (hs *HelpScreen) OnExit(app any) error {
	return nil
}

// GetTitle returns the screen title
func (hs *HelpScreen) GetTitle() string {
	return "Help"
}

// Text returns the rendered help text
func (hs *HelpScreen) Text() string {
	return hs.textView.GetText(false)
}

func (hs *HelpScreen) setupLayout() {
	hs.textView.
		SetBorder(true).
		SetTitle("Help - Social Dilemma Tournament").
		SetTitleAlign(tview.AlignCenter)

	hs.textView.SetWrap(true).
		SetDynamicColors(true).
		SetScrollable(true)

	hs.textView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc || event.Rune() == 'q' || event.Rune() == 'Q' {
			if hs.app != nil {
				_ = hs.app.GoBack()
			}
			return nil
		}
		return event
	})

	hs.root.AddItem(hs.textView, 0, 1, true)
}

func (hs *HelpScreen) updateContent() {
	var content strings.Builder

	content.WriteString("[yellow]Social Dilemma Tournament[-]\n\n")
	content.WriteString("Strategies play repeated N-player public goods, collective risk and common pool games.\n")
	content.WriteString("A fair tournament rotates every player through the same number of groups; a mixture\n")
	content.WriteString("tournament sweeps every split of cooperative and aggressive players.\n\n")

	content.WriteString("[green]Global Keyboard Shortcuts[-]\n")
	content.WriteString("═════════════════════════════\n")
	for _, binding := range globalKeyBindings {
		content.WriteString("[white]")
		content.WriteString(keyName(binding))
		content.WriteString("[-]  - ")
		content.WriteString(binding.Description)
		content.WriteString("\n")
	}

	content.WriteString("\n[green]Screens[-]\n")
	content.WriteString("═══════\n")
	content.WriteString("[white]Standings[-]    - Fair results: payoff rank, cooperation and Elo ratings\n")
	content.WriteString("[white]Compositions[-] - Mixture results: scores per (cooperators, defectors) split\n")
	content.WriteString("[white]Help[-]         - This help screen\n")

	content.WriteString("\n[green]Reading the Results[-]\n")
	content.WriteString("═════════════════════\n")
	content.WriteString("• Social welfare is the mean payoff of the players in a match\n")
	content.WriteString("• Elo ratings treat each match as a multi-way contest ordered by payoff\n")
	content.WriteString("• In the Schelling diagram, C is a cooperator's payoff and D a defector's\n")
	content.WriteString("  payoff for the given number of cooperating co-players\n")
	content.WriteString("• n/a marks compositions without a player of that attitude\n")

	if hs.app != nil && hs.app.Source() != "" {
		content.WriteString("\n[green]Source[-]\n")
		content.WriteString("══════\n")
		content.WriteString(hs.app.Source())
		content.WriteString("\n")
	}

	hs.textView.SetText(content.String())
}
