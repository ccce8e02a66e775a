package tournament

import (
	"fmt"

	"github.com/pashagolub/dilemma/pkg/game"
	"github.com/pashagolub/dilemma/pkg/strategy"
)

// PlayerName names the index-th member of a strategy pool
func PlayerName(label string, index int) string {
	return fmt.Sprintf("%s#%d", label, index)
}

// NewPlayers builds one fresh player per spec for the description d
func NewPlayers(specs []strategy.Spec, d game.Description) []game.Player {
	players := make([]game.Player, len(specs))
	for i, spec := range specs {
		players[i] = spec.CreatePlayer(PlayerName(spec.Label, i), d)
	}
	return players
}

func playerIDs(players []game.Player) []game.PlayerID {
	ids := make([]game.PlayerID, len(players))
	for i, p := range players {
		ids[i] = p.ID()
	}
	return ids
}
