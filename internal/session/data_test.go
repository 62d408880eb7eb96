package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

func TestData_Variants(t *testing.T) {
	var zero Data
	assert.True(t, zero.IsNone())
	_, ok := zero.LoginToken()
	assert.False(t, ok)

	token := uuid.New()
	d := LoginToken(token)
	assert.Equal(t, KindLoginToken, d.Kind())
	got, ok := d.LoginToken()
	assert.True(t, ok)
	assert.Equal(t, token, got)
	_, ok = d.Matching()
	assert.False(t, ok)

	m := &Matching{UserID: protocol.XPlatformID{Platform: protocol.PlatformOVR, AccountID: 1}}
	d = WithMatching(m)
	gotM, ok := d.Matching()
	assert.True(t, ok)
	assert.Same(t, m, gotM)
	_, ok = d.LoginToken()
	assert.False(t, ok)

	assert.True(t, WithMatching(nil).IsNone())
}

func TestMatching_AllowedLobbyTypes(t *testing.T) {
	private := FromCreate(&protocol.LobbyCreateSessionRequestv9{LobbyType: protocol.LobbyPrivate})
	assert.Equal(t, []protocol.LobbyType{protocol.LobbyUnassigned}, private.LobbyTypes)
	assert.False(t, private.AllowsLobbyType(protocol.LobbyPublic))

	public := FromCreate(&protocol.LobbyCreateSessionRequestv9{LobbyType: protocol.LobbyPublic})
	assert.True(t, public.AllowsLobbyType(protocol.LobbyPublic))
	assert.True(t, public.AllowsLobbyType(protocol.LobbyUnassigned))

	find := FromFind(&protocol.LobbyFindSessionRequestv11{GameType: 5})
	assert.Equal(t, protocol.LobbyPublic, find.LobbyType)
	assert.Equal(t, protocol.Symbol(5), find.GameTypeOrZero())
	assert.Nil(t, find.Level)
	assert.False(t, find.Channel.Valid)
	assert.False(t, find.LobbyID.Valid)
}

func TestMatching_FromJoinCarriesLobby(t *testing.T) {
	lobby := uuid.New()
	m := FromJoin(&protocol.LobbyJoinSessionRequestv7{LobbyID: lobby, TeamIndex: protocol.TeamSpectator})
	assert.True(t, m.LobbyID.Valid)
	assert.Equal(t, lobby, m.LobbyID.UUID)
	assert.Equal(t, protocol.TeamSpectator, m.TeamIndex)
	assert.Equal(t, RequestJoin, m.Request)

	_, _, ok := m.Matched()
	assert.False(t, ok)
	m.SetMatched(7, lobby)
	id, l, ok := m.Matched()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), id)
	assert.Equal(t, lobby, l)
}
