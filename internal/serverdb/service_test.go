package serverdb

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/matching"
	"github.com/echorelay-project/echorelay/internal/network/networktest"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/storage"
)

var (
	alice = protocol.XPlatformID{Platform: protocol.PlatformOVR, AccountID: 1001}
	token = uuid.MustParse("0f6e3c1a-5d2b-4a8e-b7c4-91d2e3f4a5b6")
)

type staticValidator struct{}

func (staticValidator) CheckUserSession(t uuid.UUID, id protocol.XPlatformID) bool {
	return t == token && id == alice
}

type serverdbHarness struct {
	*networktest.Harness
	resources *storage.Resources
	registry  *Registry
	service   *Service
	bus       *events.EventBus
}

func newServerDBHarness(t *testing.T, opts Options) *serverdbHarness {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	resources := storage.NewResources(store)
	t.Cleanup(func() { resources.Close() })
	require.NoError(t, storage.EnsureDeployed(ctx, resources))

	account, err := storage.NewAccount(alice, "Alice", time.Now())
	require.NoError(t, err)
	require.NoError(t, resources.SaveAccount(ctx, account))

	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	registry := NewRegistry(resources, bus)
	service := NewService(registry, opts)
	engine := matching.NewEngine(registry, resources, staticValidator{}, matching.Options{}, bus)

	h := networktest.New(t, bus)
	h.Handle("/serverdb", service)
	h.Handle("/matching", matching.NewService(engine))
	return &serverdbHarness{Harness: h, resources: resources, registry: registry, service: service, bus: bus}
}

func registration(id uint64) *protocol.GameServerRegistrationRequest {
	return &protocol.GameServerRegistrationRequest{
		ServerID:        id,
		InternalAddress: netip.MustParseAddr("10.0.0.5"),
		Port:            6792,
		Region:          protocol.Symbol(-3703264716592587717),
		VersionLock:     0x0C180FB4F5C5FE4D,
	}
}

func (h *serverdbHarness) register(t *testing.T, id uint64) *networktest.Client {
	t.Helper()
	c := h.Dial(t, "/serverdb", "")
	c.Send(registration(id))
	success := networktest.Expect[*protocol.LobbyRegistrationSuccess](c)
	assert.Equal(t, id, success.ServerID)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), success.ExternalAddress)
	networktest.Expect[*protocol.TcpConnectionUnrequireEvent](c)
	return c
}

func TestRegisterAndUnregister(t *testing.T) {
	h := newServerDBHarness(t, Options{})

	var mu sync.Mutex
	var seen []events.EventType
	record := func(_ context.Context, e events.Event) error {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
		return nil
	}
	h.bus.Subscribe(events.EventServerRegistered, "test", record)
	h.bus.Subscribe(events.EventServerUnregistered, "test", record)

	c := h.register(t, 42)
	require.Equal(t, 1, h.registry.Count())
	g, ok := h.registry.Get(42)
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("10.0.0.5"), g.Endpoint().InternalAddress)
	assert.EqualValues(t, 6792, g.Endpoint().Port)

	c.Close()
	require.Eventually(t, func() bool { return h.registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegisterRequiresAPIKey(t *testing.T) {
	h := newServerDBHarness(t, Options{APIKey: "hunter2"})

	c := h.Dial(t, "/serverdb", "api_key=wrong")
	c.Send(registration(7))
	failure := networktest.Expect[*protocol.LobbyRegistrationFailure](c)
	assert.Equal(t, protocol.RegistrationDatabaseError, failure.Result)
	assert.Zero(t, h.registry.Count())

	ok := h.Dial(t, "/serverdb", "api_key=hunter2")
	ok.Send(registration(7))
	networktest.Expect[*protocol.LobbyRegistrationSuccess](ok)
	assert.Equal(t, 1, h.registry.Count())
}

func TestRegisterValidatesEndpoint(t *testing.T) {
	pinged := make(chan netip.AddrPort, 1)
	h := newServerDBHarness(t, Options{
		ValidateEndpoint: true,
		ValidateTimeout:  50 * time.Millisecond,
		Ping: func(_ context.Context, addr netip.AddrPort, timeout time.Duration) error {
			pinged <- addr
			if timeout != 50*time.Millisecond {
				return errors.New("unexpected timeout")
			}
			return errors.New("no acknowledgement")
		},
	})

	c := h.Dial(t, "/serverdb", "")
	c.Send(registration(9))
	failure := networktest.Expect[*protocol.LobbyRegistrationFailure](c)
	assert.Equal(t, protocol.RegistrationConnectionFailed, failure.Result)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:6792"), <-pinged)
	assert.Zero(t, h.registry.Count())
}

func TestPrivatePeerUsesPublicIP(t *testing.T) {
	h := newServerDBHarness(t, Options{})
	h.registry.SetPublicIP(netip.MustParseAddr("203.0.113.77"))

	h.register(t, 3)
	g, ok := h.registry.Get(3)
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("203.0.113.77"), g.ExternalAddress())
}

func TestReregistrationReplacesServer(t *testing.T) {
	h := newServerDBHarness(t, Options{})
	first := h.register(t, 5)
	h.register(t, 5)
	assert.Equal(t, 1, h.registry.Count())

	first.Close()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.registry.Count())
}

func TestFilterGameServers(t *testing.T) {
	h := newServerDBHarness(t, Options{})
	for id := uint64(1); id <= 3; id++ {
		h.register(t, id)
	}

	all := h.registry.FilterGameServers(matching.Criteria{})
	require.Len(t, all, 3)
	for i, gs := range all {
		assert.EqualValues(t, i+1, gs.State().ServerID)
	}

	assert.Len(t, h.registry.FilterGameServers(matching.Criteria{Limit: 2}), 2)

	id := uint64(2)
	only := h.registry.FilterGameServers(matching.Criteria{ServerID: &id})
	require.Len(t, only, 1)
	assert.EqualValues(t, 2, only[0].State().ServerID)

	g, _ := h.registry.Get(1)
	pair := matching.AddressPair{Internal: netip.MustParseAddr("10.0.0.5"), External: g.ExternalAddress()}
	assert.Len(t, h.registry.FilterGameServers(matching.Criteria{Addresses: map[matching.AddressPair]struct{}{pair: {}}}), 3)
	assert.Empty(t, h.registry.FilterGameServers(matching.Criteria{Addresses: map[matching.AddressPair]struct{}{{}: {}}}))
}

func TestLobbySessionLifecycle(t *testing.T) {
	h := newServerDBHarness(t, Options{})
	ctx := context.Background()
	server := h.register(t, 42)

	arena, ok := h.resources.Symbol(ctx, "echo_arena")
	require.True(t, ok)

	player := h.Dial(t, "/matching", "")
	player.Send(&protocol.LobbyCreateSessionRequestv9{
		GameType:  arena,
		Session:   token,
		LobbyType: protocol.LobbyPublic,
		UserID:    alice,
		TeamIndex: protocol.TeamBlue,
	})

	start := networktest.Expect[*protocol.GameServerStartSession](server)
	assert.EqualValues(t, 16, start.PlayerLimit)
	assert.Equal(t, protocol.LobbyPublic, start.LobbyType)
	require.NotNil(t, start.Settings.AppID)
	assert.Equal(t, DefaultAppID, *start.Settings.AppID)
	require.NotNil(t, start.Settings.GameType)
	assert.EqualValues(t, arena, *start.Settings.GameType)

	toServer := networktest.Expect[*protocol.LobbySessionSuccessv4](server)
	networktest.Expect[*protocol.LobbySessionSuccessv5](server)
	assert.Equal(t, start.SessionID, toServer.MatchingSession)

	networktest.Expect[*protocol.LobbyMatchmakerStatus](player)
	toPlayer := networktest.Expect[*protocol.LobbySessionSuccessv4](player)
	networktest.Expect[*protocol.LobbySessionSuccessv5](player)
	networktest.Expect[*protocol.TcpConnectionUnrequireEvent](player)
	assert.Equal(t, start.SessionID, toPlayer.MatchingSession)
	assert.Equal(t, protocol.TeamBlue, toPlayer.TeamIndex)
	assert.Equal(t, toServer.ServerKeys, toPlayer.ServerKeys)
	assert.Len(t, toPlayer.ServerKeys.MacKey, serverEncoder.MacKeySize)
	assert.Equal(t, 1, h.registry.SessionCount())

	_, ok = h.registry.GameServerBySession(start.SessionID)
	assert.True(t, ok)

	player.Send(&protocol.LobbyPlayerSessionsRequestv5{Session: token, UserID: alice, MatchingSession: start.SessionID})
	unk1 := networktest.Expect[*protocol.LobbyPlayerSessionsSuccessUnk1](player)
	networktest.Expect[*protocol.LobbyPlayerSessionsSuccessv2](player)
	v3 := networktest.Expect[*protocol.LobbyPlayerSessionsSuccessv3](player)
	require.Len(t, unk1.PlayerSessions, 1)
	playerSession := unk1.PlayerSessions[0]
	assert.Equal(t, playerSession, v3.PlayerSession)
	assert.Equal(t, protocol.TeamBlue, v3.TeamIndex)
	require.Eventually(t, func() bool { return h.registry.PlayerCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	server.Send(&protocol.GameServerAcceptPlayers{PlayerSessions: []uuid.UUID{playerSession}})
	accepted := networktest.Expect[*protocol.GameServerPlayersAccepted](server)
	assert.Equal(t, []uuid.UUID{playerSession}, accepted.PlayerSessions)

	g, _ := h.registry.Get(42)
	info := g.GetInfo(ctx)
	assert.Equal(t, "echo_arena", info.GameType)
	require.Len(t, info.Players, 1)
	assert.True(t, info.Players[0].Accepted)
	assert.Equal(t, "Alice", info.Players[0].DisplayName)

	server.Send(&protocol.GameServerRemovePlayer{PlayerSession: playerSession})
	require.Eventually(t, func() bool {
		st := g.State()
		return st.PlayerCount == 0 && st.Locked
	}, 2*time.Second, 10*time.Millisecond)

	server.Send(&protocol.GameServerEndSession{})
	require.Eventually(t, func() bool { return h.registry.SessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, g.State().SessionStarted())
}

func TestSessionCriteriaSkipLockedServers(t *testing.T) {
	h := newServerDBHarness(t, Options{})
	ctx := context.Background()
	server := h.register(t, 11)
	arena, _ := h.resources.Symbol(ctx, "echo_arena")

	player := h.Dial(t, "/matching", "")
	player.Send(&protocol.LobbyFindSessionRequestv11{GameType: arena, Session: token, UserID: alice, TeamIndex: protocol.TeamAny})
	start := networktest.Expect[*protocol.GameServerStartSession](server)
	networktest.Expect[*protocol.LobbySessionSuccessv4](server)
	networktest.Expect[*protocol.LobbySessionSuccessv5](server)
	assert.Equal(t, protocol.LobbyPublic, start.LobbyType)

	server.Send(&protocol.GameServerPlayersLocked{})
	g, _ := h.registry.Get(11)
	require.Eventually(t, func() bool { return g.State().Locked }, 2*time.Second, 10*time.Millisecond)

	locked := false
	assert.Empty(t, h.registry.FilterGameServers(matching.Criteria{Locked: &locked}))

	server.Send(&protocol.GameServerPlayersUnlocked{})
	require.Eventually(t, func() bool { return !g.State().Locked }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, h.registry.FilterGameServers(matching.Criteria{Locked: &locked}), 1)
}

func TestBanKicksPlayers(t *testing.T) {
	h := newServerDBHarness(t, Options{})
	server := h.register(t, 21)

	player := h.Dial(t, "/matching", "")
	player.Send(&protocol.LobbyFindSessionRequestv11{Session: token, UserID: alice, TeamIndex: protocol.TeamAny})
	start := networktest.Expect[*protocol.GameServerStartSession](server)
	networktest.Expect[*protocol.LobbySessionSuccessv4](server)
	networktest.Expect[*protocol.LobbySessionSuccessv5](server)
	networktest.Expect[*protocol.LobbyMatchmakerStatus](player)
	networktest.Expect[*protocol.LobbySessionSuccessv4](player)
	networktest.Expect[*protocol.LobbySessionSuccessv5](player)
	networktest.Expect[*protocol.TcpConnectionUnrequireEvent](player)

	player.Send(&protocol.LobbyPlayerSessionsRequestv5{Session: token, UserID: alice, MatchingSession: start.SessionID})
	unk1 := networktest.Expect[*protocol.LobbyPlayerSessionsSuccessUnk1](player)
	require.Eventually(t, func() bool { return h.registry.PlayerCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.bus.EmitSync(context.Background(), events.Event{
		Type:    events.EventAccountBanned,
		Payload: events.AccountPayload{UserID: alice.String()},
	}))
	rejected := networktest.Expect[*protocol.GameServerPlayersRejected](server)
	assert.Equal(t, protocol.RejectKickedFromServer, rejected.ErrorCode)
	assert.Equal(t, unk1.PlayerSessions, rejected.PlayerSessions)
}
