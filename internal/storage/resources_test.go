package storage

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

func init() {
	lockCost = bcrypt.MinCost
}

func newResources(t *testing.T) *Resources {
	t.Helper()
	return NewResources(newSQLite(t))
}

func TestDeploy(t *testing.T) {
	ctx := context.Background()
	r := newResources(t)

	ok, err := Deployed(ctx, r)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, EnsureDeployed(ctx, r))
	ok, err = Deployed(ctx, r)
	require.NoError(t, err)
	assert.True(t, ok)

	cfg, err := r.Config(ctx, "main_menu", "main_menu")
	require.NoError(t, err)
	assert.Contains(t, string(cfg), `"splash_version":1`)

	doc, err := r.Document(ctx, "eula", "en")
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"mark_as_read_profile_key":"legal|eula_version"`)

	channels, err := r.ChannelInfo(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(channels), "THE PLAYGROUND")

	settings, err := r.LoginSettings(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(settings), `"env":"live"`)

	sym, ok := r.Symbol(ctx, "echo_arena")
	require.True(t, ok)
	assert.Equal(t, protocol.Symbol(-3791849610740453517), sym)

	assert.True(t, r.Authorized(netip.MustParseAddr("203.0.113.9")))
}

func TestAuthorizedWithoutACL(t *testing.T) {
	r := newResources(t)
	assert.False(t, r.Authorized(netip.MustParseAddr("127.0.0.1")))
}

func TestAccessControlList(t *testing.T) {
	acl := &AccessControlList{
		AllowRules:    []string{"192.168.*", "10.0.0.1"},
		DisallowRules: []string{"192.168.1.*"},
	}
	tests := []struct {
		addr string
		want bool
	}{
		{"192.168.2.4", true},
		{"192.168.1.4", false},
		{"10.0.0.1", true},
		{"10.0.0.10", false},
		{"8.8.8.8", false},
		{"::ffff:192.168.2.4", true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, acl.Authorized(netip.MustParseAddr(tt.addr)))
		})
	}
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newResources(t)
	id := protocol.XPlatformID{Platform: protocol.PlatformOVR, AccountID: 3963667097037078}

	_, err := r.Account(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	now := time.Unix(1700000000, 0)
	a, err := NewAccount(id, "Pilot", now)
	require.NoError(t, err)
	a.Ban(now.Add(time.Hour))
	require.NoError(t, r.SaveAccount(ctx, a))

	got, err := r.Account(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Pilot", got.DisplayName())
	assert.Equal(t, "Pilot", got.Profile.Client["displayname"])
	assert.True(t, got.Banned(now))
	assert.False(t, got.Banned(now.Add(2*time.Hour)))

	ids, err := r.AccountIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []protocol.XPlatformID{id}, ids)
}

func TestNewAccountRejectsInvalidID(t *testing.T) {
	_, err := NewAccount(protocol.XPlatformID{Platform: 99, AccountID: 1}, "x", time.Now())
	assert.Error(t, err)
}

func TestAccountLock(t *testing.T) {
	a, err := NewAccount(protocol.XPlatformID{Platform: protocol.PlatformSTM, AccountID: 1}, "x", time.Now())
	require.NoError(t, err)

	ok, err := a.Authenticate("")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, a.Locked())

	ok, err = a.Authenticate("hunter2")
	require.NoError(t, err)
	assert.True(t, ok, "first lock is adopted")
	assert.True(t, a.Locked())

	ok, err = a.Authenticate("hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Authenticate("wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.Authenticate("")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSymbolCacheRebinding(t *testing.T) {
	c := NewSymbolCache(map[string]protocol.Symbol{"a": 1})
	c.Add("b", 1)

	_, ok := c.Symbol("a")
	assert.False(t, ok)
	name, ok := c.Name(1)
	require.True(t, ok)
	assert.Equal(t, "b", name)

	data, err := c.MarshalJSON()
	require.NoError(t, err)
	var back SymbolCache
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, 1, back.Len())
}

func TestSetConfigRequiresIdentity(t *testing.T) {
	r := newResources(t)
	assert.Error(t, r.SetConfig(context.Background(), protocol.RawJSON(`{"type":"main_menu"}`)))
	assert.Error(t, r.SetDocument(context.Background(), protocol.RawJSON(`not json`)))
}
