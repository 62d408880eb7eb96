package serverdb

import (
	"fmt"
	"strings"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

// PlayerLimits bounds the players a session accepts.
type PlayerLimits struct {
	// Total is the limit across every team, spectators included.
	Total int
	// ActiveTarget reserves this many of Total for blue/orange players.
	// Zero means no reservation.
	ActiveTarget int
}

// DefaultLimits applies to game types without their own entry.
var DefaultLimits = PlayerLimits{Total: 16}

var gameTypeLimits = map[string]PlayerLimits{
	"echo_arena":  {Total: 16, ActiveTarget: 8},
	"echo_combat": {Total: 16, ActiveTarget: 8},
}

// NewPlayerLimits validates and builds limits.
func NewPlayerLimits(total, activeTarget int) (PlayerLimits, error) {
	if total <= 0 || total > 0xFF {
		return PlayerLimits{}, fmt.Errorf("total player limit %d out of range 1-255", total)
	}
	if activeTarget < 0 || activeTarget > total {
		return PlayerLimits{}, fmt.Errorf("active player target %d exceeds total limit %d", activeTarget, total)
	}
	return PlayerLimits{Total: total, ActiveTarget: activeTarget}, nil
}

// LimitsFor returns the limits of a game type by name.
func LimitsFor(gameType string) PlayerLimits {
	if l, ok := gameTypeLimits[strings.ToLower(gameType)]; ok {
		return l
	}
	return DefaultLimits
}

func isActiveTeam(t protocol.TeamIndex) bool {
	return t == protocol.TeamAny || t == protocol.TeamBlue || t == protocol.TeamOrange
}

// TeamAvailable reports whether a player requesting team fits alongside
// players already holding the given teams. Any counts as an active team.
func (l PlayerLimits) TeamAvailable(taken []protocol.TeamIndex, team protocol.TeamIndex) bool {
	if len(taken) >= l.Total {
		return false
	}
	if l.ActiveTarget == 0 {
		return true
	}

	active := 0
	for _, t := range taken {
		if isActiveTeam(t) {
			active++
		}
	}
	if isActiveTeam(team) {
		return l.ActiveTarget-active > 0
	}
	return (l.Total-l.ActiveTarget)-(len(taken)-active) > 0
}
