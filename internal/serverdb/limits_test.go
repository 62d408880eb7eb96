package serverdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

func TestLimitsFor(t *testing.T) {
	tests := []struct {
		name string
		want PlayerLimits
	}{
		{"echo_arena", PlayerLimits{Total: 16, ActiveTarget: 8}},
		{"ECHO_COMBAT", PlayerLimits{Total: 16, ActiveTarget: 8}},
		{"social_2.0", DefaultLimits},
		{"", DefaultLimits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LimitsFor(tt.name))
		})
	}
}

func TestNewPlayerLimits(t *testing.T) {
	l, err := NewPlayerLimits(12, 6)
	require.NoError(t, err)
	assert.Equal(t, PlayerLimits{Total: 12, ActiveTarget: 6}, l)

	_, err = NewPlayerLimits(0, 0)
	assert.Error(t, err)
	_, err = NewPlayerLimits(256, 0)
	assert.Error(t, err)
	_, err = NewPlayerLimits(8, 9)
	assert.Error(t, err)
}

func repeatTeam(team protocol.TeamIndex, n int) []protocol.TeamIndex {
	out := make([]protocol.TeamIndex, n)
	for i := range out {
		out[i] = team
	}
	return out
}

func TestTeamAvailable(t *testing.T) {
	arena := LimitsFor("echo_arena")

	assert.True(t, arena.TeamAvailable(nil, protocol.TeamBlue))
	assert.True(t, arena.TeamAvailable(repeatTeam(protocol.TeamBlue, 7), protocol.TeamOrange))
	assert.False(t, arena.TeamAvailable(repeatTeam(protocol.TeamBlue, 8), protocol.TeamOrange))
	assert.False(t, arena.TeamAvailable(repeatTeam(protocol.TeamAny, 8), protocol.TeamAny))
	assert.True(t, arena.TeamAvailable(repeatTeam(protocol.TeamBlue, 8), protocol.TeamSpectator))

	taken := append(repeatTeam(protocol.TeamOrange, 8), repeatTeam(protocol.TeamSpectator, 8)...)
	assert.False(t, arena.TeamAvailable(taken, protocol.TeamSpectator))
	assert.False(t, arena.TeamAvailable(taken, protocol.TeamModerator))

	social := DefaultLimits
	assert.True(t, social.TeamAvailable(repeatTeam(protocol.TeamBlue, 15), protocol.TeamBlue))
	assert.False(t, social.TeamAvailable(repeatTeam(protocol.TeamBlue, 16), protocol.TeamSpectator))
}

func TestTeamAvailableNeverExceedsLimits(t *testing.T) {
	teams := []protocol.TeamIndex{
		protocol.TeamAny, protocol.TeamBlue, protocol.TeamOrange,
		protocol.TeamSpectator, protocol.TeamModerator,
	}
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(1, 32).Draw(t, "total")
		limits := PlayerLimits{Total: total, ActiveTarget: rapid.IntRange(0, total).Draw(t, "active")}

		var taken []protocol.TeamIndex
		requests := rapid.SliceOfN(rapid.SampledFrom(teams), 0, 64).Draw(t, "requests")
		for _, team := range requests {
			if limits.TeamAvailable(taken, team) {
				taken = append(taken, team)
			}
		}

		if len(taken) > limits.Total {
			t.Fatalf("admitted %d players over a limit of %d", len(taken), limits.Total)
		}
		if limits.ActiveTarget == 0 {
			return
		}
		active := 0
		for _, team := range taken {
			if isActiveTeam(team) {
				active++
			}
		}
		if active > limits.ActiveTarget {
			t.Fatalf("admitted %d active players over a target of %d", active, limits.ActiveTarget)
		}
		if len(taken)-active > limits.Total-limits.ActiveTarget {
			t.Fatalf("admitted %d inactive players over %d reserved", len(taken)-active, limits.Total-limits.ActiveTarget)
		}
	})
}
