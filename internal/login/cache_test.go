package login

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var (
	alice = protocol.XPlatformID{Platform: protocol.PlatformOVR, AccountID: 1001}
	bob   = protocol.XPlatformID{Platform: protocol.PlatformSTM, AccountID: 2002}
)

func TestSessionCacheCheckValid(t *testing.T) {
	cache := NewSessionCache(newFakeClock(), 0)

	s, err := cache.Authenticate(alice)
	require.NoError(t, err)
	assert.Equal(t, alice, s.UserID)

	assert.True(t, cache.CheckValid(s.Token, alice))
	assert.False(t, cache.CheckValid(s.Token, bob))
	assert.False(t, cache.CheckValid(uuid.New(), alice))
}

func TestSessionCacheRejectsInvalidUser(t *testing.T) {
	cache := NewSessionCache(newFakeClock(), 0)
	_, err := cache.Authenticate(protocol.XPlatformID{})
	assert.Error(t, err)
	assert.Zero(t, cache.Len())
}

func TestSessionCacheTokensAreDistinct(t *testing.T) {
	cache := NewSessionCache(newFakeClock(), 0)
	a, err := cache.Authenticate(alice)
	require.NoError(t, err)
	b, err := cache.Authenticate(alice)
	require.NoError(t, err)

	assert.NotEqual(t, a.Token, b.Token)
	cache.Invalidate(a.Token)
	assert.False(t, cache.CheckValid(a.Token, alice))
	assert.True(t, cache.CheckValid(b.Token, alice))
}

func TestSessionCacheConnectedLifetime(t *testing.T) {
	clock := newFakeClock()
	cache := NewSessionCache(clock, 0)
	s, err := cache.Authenticate(alice)
	require.NoError(t, err)

	clock.Advance(365 * 24 * time.Hour)
	assert.True(t, cache.CheckValid(s.Token, alice))
}

func TestSessionCacheDisconnectGrace(t *testing.T) {
	clock := newFakeClock()
	cache := NewSessionCache(clock, 30*time.Second)
	s, err := cache.Authenticate(alice)
	require.NoError(t, err)

	cache.Disconnected(s.Token)
	clock.Advance(29 * time.Second)
	assert.True(t, cache.CheckValid(s.Token, alice))

	clock.Advance(time.Second)
	assert.False(t, cache.CheckValid(s.Token, alice))
	assert.Zero(t, cache.Len(), "expired entry is evicted on read")
}

func TestSessionCacheDisconnectUnknownToken(t *testing.T) {
	cache := NewSessionCache(newFakeClock(), 0)
	cache.Disconnected(uuid.New())
	assert.Zero(t, cache.Len())
}

func TestSessionCachePurge(t *testing.T) {
	clock := newFakeClock()
	cache := NewSessionCache(clock, time.Minute)

	gone, err := cache.Authenticate(alice)
	require.NoError(t, err)
	kept, err := cache.Authenticate(bob)
	require.NoError(t, err)

	cache.Disconnected(gone.Token)
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, cache.Purge())
	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.CheckValid(kept.Token, bob))

	cache.Clear()
	assert.Zero(t, cache.Len())
}
