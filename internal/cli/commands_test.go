package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/api"
	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/relay"
	"github.com/echorelay-project/echorelay/internal/storage"
)

var pilot = protocol.XPlatformID{Platform: protocol.PlatformOVR, AccountID: 31337}

func newTestCLI(t *testing.T, input string) (*CLI, *bytes.Buffer, *relay.Relay) {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.UpdateField("api", "jwt_secret", strings.Repeat("k", 32)))

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	bus := events.NewEventBus()
	r, err := relay.New(context.Background(), cfg, bus, relay.Options{Store: store})
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Shutdown(context.Background())
		bus.Stop()
	})

	account, err := storage.NewAccount(pilot, "Pilot", time.Now())
	require.NoError(t, err)
	require.NoError(t, r.Resources().SaveAccount(context.Background(), account))

	var out bytes.Buffer
	return NewCLI(cfg, r, strings.NewReader(input), &out), &out, r
}

func TestHelpAndStatus(t *testing.T) {
	c, out, _ := newTestCLI(t, "")
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, "help"))
	assert.Contains(t, out.String(), "ban <user> <minutes>")

	out.Reset()
	require.NoError(t, c.Execute(ctx, "status"))
	assert.Contains(t, out.String(), "Game servers")
	assert.Contains(t, out.String(), "Peers: matching")

	out.Reset()
	require.NoError(t, c.Execute(ctx, "sessions"))
	assert.Contains(t, out.String(), "Match attempts")
	assert.Contains(t, out.String(), "Login sessions")

	out.Reset()
	require.NoError(t, c.Execute(ctx, "frobnicate"))
	assert.Contains(t, out.String(), "Unknown command")

	assert.NoError(t, c.Execute(ctx, "   "))
	assert.Error(t, c.Execute(ctx, "peers bogus"))
	assert.Error(t, c.Execute(ctx, "servers 12"))
}

func TestModerationCommands(t *testing.T) {
	c, out, r := newTestCLI(t, "")
	ctx := context.Background()
	id := pilot.String()

	assert.Error(t, c.Execute(ctx, "ban "+id))
	assert.Error(t, c.Execute(ctx, "ban "+id+" soon"))

	require.NoError(t, c.Execute(ctx, "ban "+id+" 60"))
	assert.Contains(t, out.String(), "Banned until")
	account, err := r.Account(ctx, id)
	require.NoError(t, err)
	assert.True(t, account.Banned(time.Now()))

	require.NoError(t, c.Execute(ctx, "unban "+id))
	require.NoError(t, c.Execute(ctx, "mod "+id+" on"))
	account, err = r.Account(ctx, id)
	require.NoError(t, err)
	assert.False(t, account.Banned(time.Now()))
	assert.True(t, account.IsModerator)

	out.Reset()
	require.NoError(t, c.Execute(ctx, "account "+id))
	assert.Contains(t, out.String(), `"Pilot" moderator=true`)

	require.NoError(t, c.Execute(ctx, "kick "+id))
	assert.Error(t, c.Execute(ctx, "mod "+id+" maybe"))
	assert.Error(t, c.Execute(ctx, "account OVR-1"))
}

func TestSetConfig(t *testing.T) {
	c, out, _ := newTestCLI(t, "")
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, "setconfig matching.max_candidates 30"))
	assert.Equal(t, 30, c.cfg.GetMatching().MaxCandidates)
	assert.Contains(t, out.String(), "restart to apply")

	assert.Error(t, c.Execute(ctx, "setconfig matching.max_candidates 0"))
	assert.Equal(t, 30, c.cfg.GetMatching().MaxCandidates)
	assert.Error(t, c.Execute(ctx, "setconfig nodot 1"))
}

func TestServiceConfigAndToken(t *testing.T) {
	c, out, _ := newTestCLI(t, "")
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, "serviceconfig server"))
	assert.Contains(t, out.String(), "ws://127.0.0.1:777/serverdb")

	out.Reset()
	require.NoError(t, c.Execute(ctx, "token monitor"))
	claims, err := api.ParseToken(strings.Repeat("k", 32), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, []string{api.PermMonitor}, claims.Perms)

	assert.Error(t, c.Execute(ctx, "token root"))
}

func TestStartProcessesInputAndQuit(t *testing.T) {
	c, out, r := newTestCLI(t, "status\nquit\n")
	shutdown := make(chan struct{}, 1)
	r.EventBus().Subscribe(events.EventShutdown, "test", func(context.Context, events.Event) error {
		shutdown <- struct{}{}
		return nil
	})

	c.Start(context.Background())

	select {
	case <-shutdown:
	case <-time.After(time.Second):
		t.Fatal("quit did not emit shutdown")
	}
	assert.Contains(t, out.String(), "Login sessions")
	assert.Contains(t, out.String(), "Shutting down")
}
