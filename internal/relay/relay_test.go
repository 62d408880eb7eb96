package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/network/networktest"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/storage"
)

var player = protocol.XPlatformID{Platform: protocol.PlatformOVR, AccountID: 4242}

func newTestRelay(t *testing.T, mutate func(*config.Config)) (*Relay, *networktest.Harness, *events.EventBus) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	bus := events.NewEventBus()
	r, err := New(context.Background(), cfg, bus, Options{Store: store})
	require.NoError(t, err)

	ts := httptest.NewServer(r.Server())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, r.Shutdown(ctx))
		bus.Stop()
	})
	return r, &networktest.Harness{Server: r.Server(), HTTP: ts}, bus
}

func loginPlayer(t *testing.T, h *networktest.Harness, id protocol.XPlatformID) *networktest.Client {
	t.Helper()
	c := h.Dial(t, "/login", "displayname=Pilot")
	c.Send(&protocol.LoginRequest{UserID: id})
	networktest.Expect[*protocol.LoginSuccess](c)
	networktest.Expect[*protocol.TcpConnectionUnrequireEvent](c)
	networktest.Expect[*protocol.LoginSettings](c)
	return c
}

func TestNewMountsEveryService(t *testing.T) {
	r, _, _ := newTestRelay(t, nil)

	assert.ElementsMatch(t, []string{"/login", "/config", "/matching", "/serverdb", "/transaction"}, r.Server().Paths())
	require.Len(t, r.Services(), len(ServiceNames))
	for i, svc := range r.Services() {
		assert.Equal(t, ServiceNames[i], svc.Name())
	}
	_, ok := r.Service("nope")
	assert.False(t, ok)
}

func TestStatsCountsPeers(t *testing.T) {
	r, h, _ := newTestRelay(t, nil)
	loginPlayer(t, h, player)
	h.Dial(t, "/transaction", "")

	require.Eventually(t, func() bool {
		return r.Stats().Peers[ServiceTransaction] == 1
	}, 2*time.Second, 10*time.Millisecond)

	stats := r.Stats()
	assert.Equal(t, 1, stats.Peers[ServiceLogin])
	assert.Equal(t, 0, stats.Peers[ServiceMatching])
	assert.Equal(t, 1, stats.LoginSessions)
	assert.Zero(t, stats.GameServers)

	peers := r.Peers(ServiceLogin)
	require.Len(t, peers, 1)
	assert.Equal(t, player.String(), peers[0].UserID)
	assert.Equal(t, "Pilot", peers[0].DisplayName)
	assert.Equal(t, "login_token", peers[0].Session)
	assert.Len(t, r.Peers(""), 2)
}

func TestMountServesAlongsideServices(t *testing.T) {
	r, h, _ := newTestRelay(t, nil)
	r.Mount("/api", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	resp, err := http.Get(h.HTTP.URL + "/api/public/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestBanAndUnban(t *testing.T) {
	r, h, bus := newTestRelay(t, nil)
	banned := make(chan events.AccountPayload, 1)
	bus.Subscribe(events.EventAccountBanned, "test", func(_ context.Context, e events.Event) error {
		banned <- e.Payload.(events.AccountPayload)
		return nil
	})
	loginPlayer(t, h, player).Close()

	until := time.Now().Add(time.Hour).Truncate(time.Second)
	account, err := r.Ban(context.Background(), player.String(), until)
	require.NoError(t, err)
	assert.True(t, account.Banned(time.Now()))

	select {
	case p := <-banned:
		assert.Equal(t, player.String(), p.UserID)
		assert.Equal(t, until.Unix(), p.Until)
	default:
		t.Fatal("ban event was not delivered synchronously")
	}

	stored, err := r.Account(context.Background(), player.String())
	require.NoError(t, err)
	assert.True(t, stored.Banned(time.Now()))

	c := h.Dial(t, "/login", "")
	c.Send(&protocol.LoginRequest{UserID: player})
	failure := networktest.Expect[*protocol.LoginFailure](c)
	assert.Contains(t, failure.Message, "Banned until")

	_, err = r.Unban(context.Background(), player.String())
	require.NoError(t, err)
	stored, err = r.Account(context.Background(), player.String())
	require.NoError(t, err)
	assert.False(t, stored.Banned(time.Now()))
}

func TestModerationErrors(t *testing.T) {
	r, _, _ := newTestRelay(t, nil)
	ctx := context.Background()

	_, err := r.Ban(ctx, "OVR-99", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = r.Ban(ctx, "OVR-99", time.Now().Add(-time.Hour))
	assert.Error(t, err)

	_, err = r.SetModerator(ctx, "bogus", true)
	assert.Error(t, err)
}

func TestSetModerator(t *testing.T) {
	r, h, _ := newTestRelay(t, nil)
	loginPlayer(t, h, player).Close()

	account, err := r.SetModerator(context.Background(), player.String(), true)
	require.NoError(t, err)
	assert.True(t, account.IsModerator)

	stored, err := r.Account(context.Background(), player.String())
	require.NoError(t, err)
	assert.True(t, stored.IsModerator)
}

func TestServiceConfig(t *testing.T) {
	r, _, _ := newTestRelay(t, func(c *config.Config) {
		c.ServerDB.APIKey = "a key&more"
	})

	client := r.ServiceConfig("203.0.113.9", false)
	assert.Equal(t, "http://203.0.113.9:777/api", client.APIServiceHost)
	assert.Equal(t, "ws://203.0.113.9:777/config", client.ConfigServiceHost)
	assert.Equal(t, "ws://203.0.113.9:777/login?auth=AccountPassword&displayname=AccountName", client.LoginServiceHost)
	assert.Equal(t, "ws://203.0.113.9:777/matching", client.MatchingServiceHost)
	assert.Equal(t, "ws://203.0.113.9:777/transaction", client.TransactionServiceHost)
	assert.Equal(t, DefaultPublisherLock, client.PublisherLock)
	assert.Empty(t, client.ServerDBHost)

	server := r.ServiceConfig("203.0.113.9", true)
	assert.Equal(t, "ws://203.0.113.9:777/serverdb?api_key=a+key%26more", server.ServerDBHost)
}

func TestWriteServiceConfig(t *testing.T) {
	r, _, _ := newTestRelay(t, func(c *config.Config) {
		c.Server.PublicHost = "relay.example.net"
	})
	path := filepath.Join(t.TempDir(), "out", "config.json")

	require.NoError(t, r.WriteServiceConfig(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"serverdb_host": "ws://relay.example.net:777/serverdb"`)
	assert.Contains(t, string(data), `"publisher_lock": "rad15_live"`)
}
