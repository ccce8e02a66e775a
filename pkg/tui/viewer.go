package tui

import (
	"github.com/pashagolub/dilemma/pkg/tournament"
	"github.com/pashagolub/dilemma/pkg/tui/screens"
)

// NewViewer creates an application with the screens matching the results registered
func NewViewer(results tournament.Results, opts Options) (*App, error) {
	app, err := NewApp(results, opts)
	if err != nil {
		return nil, err
	}

	registered := map[ScreenType]Screen{ScreenHelp: NewHelpScreen()}
	switch results.(type) {
	case *tournament.FairResults:
		registered[ScreenStandings] = screens.NewStandingsScreen()
	case *tournament.MixtureResults:
		registered[ScreenMixture] = screens.NewMixtureScreen()
	}
	for screenType, screen := range registered {
		if err := app.RegisterScreen(screenType, screen); err != nil {
			return nil, err
		}
	}
	return app, nil
}
