// Package tui provides the terminal viewer for tournament results. It implements the
// application frame with screen management, keyboard shortcuts and a help screen; the
// result screens live in the screens subpackage.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pashagolub/dilemma/pkg/elo"
	"github.com/pashagolub/dilemma/pkg/journal"
	"github.com/pashagolub/dilemma/pkg/tournament"
)

// Viewer errors
var (
	ErrNoResults          = errors.New("no results to show")
	ErrNilScreen          = errors.New("screen cannot be nil")
	ErrScreenNotFound     = errors.New("screen not registered")
	ErrNoExportDirectory  = errors.New("no export directory configured")
	ErrNoPreviousScreen   = errors.New("no previous screen")
	ErrUnsupportedResults = errors.New("unsupported results type")
)

// ExportFileName is the summary written by the export shortcut
const ExportFileName = "summary_export.csv"

// ScreenType represents different screens in the TUI application
type ScreenType int

const (
	ScreenStandings ScreenType = iota
	ScreenMixture
	ScreenHelp
)

// String returns the string representation of ScreenType
func (s ScreenType) String() string {
	switch s {
	case ScreenStandings:
		return "standings"
	case ScreenMixture:
		return "mixture"
	case ScreenHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Screen interface defines the contract for all TUI screens
type Screen interface {
	// GetPrimitive returns the tview.Primitive for this screen
	GetPrimitive() tview.Primitive

	// OnEnter is called when the screen becomes active
	OnEnter(app any) error

	// OnExit is called when leaving the screen
	OnExit(app any) error

	// GetTitle returns the screen title for display
	GetTitle() string
}

// Options configures the viewer
type Options struct {
	Engine    *elo.Engine // rates fair results; nil disables ratings
	ExportDir string      // target of the export shortcut
	Source    string      // shown in the header, usually the results directory
}

// AppState represents the current application state
type AppState struct {
	mu             sync.RWMutex
	results        tournament.Results
	ledger         *elo.Ledger
	source         string
	exportDir      string
	currentScreen  ScreenType
	previousScreen ScreenType
	hasPrevious    bool
	isRunning      bool
	lastExportTime *time.Time
	lastExportPath string
}

// App represents the main TUI application
type App struct {
	tviewApp *tview.Application
	pages    *tview.Pages
	header   *tview.TextView
	footer   *tview.TextView
	state    *AppState
	screens  map[ScreenType]Screen
	exporter *journal.Exporter
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
}

// KeyBinding represents a keyboard shortcut
type KeyBinding struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func(app *App) error
}

// Global key bindings available across all screens
var globalKeyBindings = []KeyBinding{
	{Key: tcell.KeyCtrlC, Description: "Exit", Handler: (*App).Exit},
	{Key: tcell.KeyRune, Rune: '1', Description: "Standings", Handler: (*App).ShowStandings},
	{Key: tcell.KeyRune, Rune: '2', Description: "Compositions", Handler: (*App).ShowMixture},
	{Key: tcell.KeyRune, Rune: '?', Description: "Help", Handler: (*App).ShowHelp},
	{Key: tcell.KeyRune, Rune: 'e', Description: "Export to CSV", Handler: (*App).ExportSummary},
}

// NewApp creates a viewer for fair or mixture results
func NewApp(results tournament.Results, opts Options) (*App, error) {
	if results == nil {
		return nil, ErrNoResults
	}

	state := &AppState{
		results:       results,
		source:        opts.Source,
		exportDir:     opts.ExportDir,
		currentScreen: ScreenMixture,
	}
	switch r := results.(type) {
	case *tournament.FairResults:
		state.currentScreen = ScreenStandings
		if opts.Engine != nil {
			ledger, err := elo.RateFair(opts.Engine, r)
			if err != nil {
				return nil, fmt.Errorf("failed to rate players: %w", err)
			}
			state.ledger = ledger
		}
	case *tournament.MixtureResults:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedResults, results)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		tviewApp: tview.NewApplication(),
		pages:    tview.NewPages(),
		header:   tview.NewTextView(),
		footer:   tview.NewTextView(),
		state:    state,
		screens:  make(map[ScreenType]Screen),
		exporter: journal.NewExporter(opts.Engine),
		ctx:      ctx,
		cancel:   cancel,
	}

	app.setupUI()
	return app, nil
}

// setupUI initializes the UI components and layout
func (a *App) setupUI() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.header.SetBorder(true).
		SetTitle("Social Dilemma Tournament").
		SetTitleAlign(tview.AlignCenter).
		SetBackgroundColor(tcell.ColorDarkBlue)
	a.header.SetTextColor(tcell.ColorWhite)

	a.footer.SetBorder(true).
		SetTitle("Keyboard Shortcuts").
		SetTitleAlign(tview.AlignCenter).
		SetBackgroundColor(tcell.ColorDarkGreen)
	a.footer.SetTextColor(tcell.ColorWhite)

	a.updateFooter()

	mainLayout := tview.NewFlex().SetDirection(tview.FlexRow)
	mainLayout.AddItem(a.header, 3, 0, false)
	mainLayout.AddItem(a.pages, 0, 1, true)
	mainLayout.AddItem(a.footer, 3, 0, false)
	mainLayout.SetInputCapture(a.handleGlobalInput)

	a.tviewApp.SetRoot(mainLayout, true)
	a.tviewApp.EnableMouse(true)
	a.tviewApp.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		a.updateHeader()
		return false
	})
}

// RegisterScreen registers a screen with the application
func (a *App) RegisterScreen(screenType ScreenType, screen Screen) error {
	if screen == nil {
		return ErrNilScreen
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.screens[screenType] = screen
	a.pages.AddPage(screenType.String(), screen.GetPrimitive(), true, false)
	return nil
}

// NavigateTo switches to the specified screen. A screen refusing to open leaves the
// current screen active.
func (a *App) NavigateTo(screenType ScreenType) error {
	a.mu.RLock()
	screen, exists := a.screens[screenType]
	a.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrScreenNotFound, screenType)
	}

	a.state.mu.RLock()
	current := a.state.currentScreen
	a.state.mu.RUnlock()

	if err := screen.OnEnter(a); err != nil {
		return fmt.Errorf("failed to enter screen %s: %w", screenType, err)
	}

	a.mu.RLock()
	currentScreen, hasCurrent := a.screens[current]
	a.mu.RUnlock()
	if hasCurrent && current != screenType {
		if err := currentScreen.OnExit(a); err != nil {
			return fmt.Errorf("failed to exit screen %s: %w", current, err)
		}
	}

	a.state.mu.Lock()
	if current != screenType {
		a.state.previousScreen = current
		a.state.hasPrevious = true
	}
	a.state.currentScreen = screenType
	a.state.mu.Unlock()

	a.pages.SwitchToPage(screenType.String())
	return nil
}

// GoBack returns to the previously shown screen
func (a *App) GoBack() error {
	a.state.mu.RLock()
	previous, ok := a.state.previousScreen, a.state.hasPrevious
	a.state.mu.RUnlock()
	if !ok {
		return ErrNoPreviousScreen
	}
	return a.NavigateTo(previous)
}

// ShowStandings displays the fair standings screen
func (a *App) ShowStandings() error {
	return a.NavigateTo(ScreenStandings)
}

// ShowMixture displays the composition screen
func (a *App) ShowMixture() error {
	return a.NavigateTo(ScreenMixture)
}

// ShowHelp displays the help screen
func (a *App) ShowHelp() error {
	return a.NavigateTo(ScreenHelp)
}

// Exit stops the application
func (a *App) Exit() error {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()

	a.state.isRunning = false
	a.cancel()
	a.tviewApp.Stop()
	return nil
}

// ExportSummary writes the summary table, with Elo ratings for fair results, as CSV
// into the export directory
func (a *App) ExportSummary() error {
	a.state.mu.RLock()
	results := a.state.results
	dir := a.state.exportDir
	a.state.mu.RUnlock()

	if dir == "" {
		a.showErrorDialog("Export Error", "No export directory configured")
		return ErrNoExportDirectory
	}

	path := filepath.Join(dir, ExportFileName)
	err := a.exporter.ExportToFile(results, path, journal.ExportOptions{Format: journal.FormatCSV, IncludeRatings: true})
	if err != nil {
		a.showErrorDialog("Export Failed", fmt.Sprintf("Failed to export summary:\n\n%v", err))
		return fmt.Errorf("failed to export summary: %w", err)
	}

	now := time.Now()
	a.state.mu.Lock()
	a.state.lastExportTime = &now
	a.state.lastExportPath = path
	a.state.mu.Unlock()

	a.updateHeader()
	return nil
}

// Run starts the TUI application on the screen matching the results
func (a *App) Run() error {
	a.state.mu.Lock()
	a.state.isRunning = true
	initial := a.state.currentScreen
	a.state.mu.Unlock()

	if err := a.NavigateTo(initial); err != nil {
		return fmt.Errorf("failed to open %s screen: %w", initial, err)
	}
	return a.tviewApp.Run()
}

// Stop gracefully stops the application
func (a *App) Stop() {
	if a.IsRunning() {
		_ = a.Exit()
	}
}

// Context is cancelled when the application exits
func (a *App) Context() context.Context {
	return a.ctx
}

// Results returns the results shown by the viewer
func (a *App) Results() tournament.Results {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.results
}

// FairResults returns the fair results, or nil when a mixture is shown
func (a *App) FairResults() *tournament.FairResults {
	r, _ := a.Results().(*tournament.FairResults)
	return r
}

// MixtureResults returns the mixture results, or nil when fair results are shown
func (a *App) MixtureResults() *tournament.MixtureResults {
	r, _ := a.Results().(*tournament.MixtureResults)
	return r
}

// Ledger returns the Elo ledger of fair results, or nil
func (a *App) Ledger() *elo.Ledger {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.ledger
}

// Source describes where the results came from
func (a *App) Source() string {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.source
}

// LastExport returns the path and time of the last successful export
func (a *App) LastExport() (string, *time.Time) {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.lastExportPath, a.state.lastExportTime
}

// GetTViewApp returns the underlying tview application for advanced usage
func (a *App) GetTViewApp() *tview.Application {
	return a.tviewApp
}

// handleGlobalInput handles global keyboard shortcuts
func (a *App) handleGlobalInput(event *tcell.EventKey) *tcell.EventKey {
	// runes typed into a filter field belong to the field
	if _, editing := a.tviewApp.GetFocus().(*tview.InputField); editing && event.Key() == tcell.KeyRune {
		return event
	}
	for _, binding := range globalKeyBindings {
		if (binding.Key != tcell.KeyRune && event.Key() == binding.Key) ||
			(binding.Key == tcell.KeyRune && event.Key() == tcell.KeyRune && event.Rune() == binding.Rune) {
			if err := binding.Handler(a); err != nil && !errors.Is(err, ErrNoExportDirectory) {
				a.showErrorDialog("Error", err.Error())
			}
			return nil
		}
	}
	return event
}

// updateHeader updates the header text with current screen information
func (a *App) updateHeader() {
	a.state.mu.RLock()
	currentScreen := a.state.currentScreen
	results := a.state.results
	source := a.state.source
	lastExport := a.state.lastExportTime
	a.state.mu.RUnlock()

	a.mu.RLock()
	screen, exists := a.screens[currentScreen]
	a.mu.RUnlock()
	if !exists {
		return
	}

	info := fmt.Sprintf(" | %s, N=%d, %d matches", results.Config().GameDescription.TypeName(),
		results.GroupSize(), len(results.Matches()))
	if source != "" {
		info += " | " + source
	}

	exportStatus := " | Not exported yet"
	if lastExport != nil {
		elapsed := time.Since(*lastExport)
		switch {
		case elapsed < time.Minute:
			exportStatus = fmt.Sprintf(" | Last exported: %ds ago", int(elapsed.Seconds()))
		case elapsed < time.Hour:
			exportStatus = fmt.Sprintf(" | Last exported: %dm ago", int(elapsed.Minutes()))
		default:
			exportStatus = fmt.Sprintf(" | Last exported: %s", lastExport.Format("15:04"))
		}
	}

	a.header.SetText(fmt.Sprintf("Screen: %s%s%s", screen.GetTitle(), info, exportStatus))
}

// showErrorDialog displays an error message in a modal dialog
func (a *App) showErrorDialog(title, message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			a.pages.RemovePage("error-dialog")
		})

	modal.SetTitle(title).
		SetBorder(true).
		SetBackgroundColor(tcell.ColorDarkRed)

	a.pages.AddPage("error-dialog", modal, true, true)
}

// updateFooter updates the footer with current key bindings
func (a *App) updateFooter() {
	a.footer.SetText(bindingsText(" | "))
}

func bindingsText(sep string) string {
	text := ""
	for i, binding := range globalKeyBindings {
		if i > 0 {
			text += sep
		}
		text += fmt.Sprintf("%s: %s", keyName(binding), binding.Description)
	}
	return text
}

func keyName(binding KeyBinding) string {
	if binding.Key != tcell.KeyRune {
		return tcell.KeyNames[binding.Key]
	}
	return string(binding.Rune)
}

// IsRunning returns whether the application is currently running
func (a *App) IsRunning() bool {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.isRunning
}

// GetCurrentScreen returns the current screen type
func (a *App) GetCurrentScreen() ScreenType {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.currentScreen
}
