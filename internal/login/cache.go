// Package login implements the login service: account authentication,
// session tokens, profiles and the documents clients fetch after login.
package login

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

const (
	// ConnectedTTL is the lifetime of a token while its connection is open.
	ConnectedTTL = 3000 * 24 * time.Hour
	// DefaultDisconnectGrace is how long a token survives its connection.
	DefaultDisconnectGrace = 60 * time.Second
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Session is an issued login token.
type Session struct {
	Token     uuid.UUID
	UserID    protocol.XPlatformID
	ExpiresAt time.Time
}

// SessionCache maps login tokens to users. Entries expire individually
// and are checked lazily; Purge drops expired entries in bulk.
type SessionCache struct {
	mu      sync.Mutex
	clock   Clock
	grace   time.Duration
	entries map[uuid.UUID]Session
}

// NewSessionCache creates a cache. A nil clock means the wall clock and a
// non-positive grace means DefaultDisconnectGrace.
func NewSessionCache(clock Clock, grace time.Duration) *SessionCache {
	if clock == nil {
		clock = SystemClock
	}
	if grace <= 0 {
		grace = DefaultDisconnectGrace
	}
	return &SessionCache{
		clock:   clock,
		grace:   grace,
		entries: make(map[uuid.UUID]Session),
	}
}

// Authenticate mints a token for userID.
func (c *SessionCache) Authenticate(userID protocol.XPlatformID) (Session, error) {
	if !userID.Valid() {
		return Session{}, fmt.Errorf("invalid user id %s", userID)
	}
	token, err := uuid.NewRandom()
	if err != nil {
		return Session{}, fmt.Errorf("failed to generate session token: %w", err)
	}

	s := Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: c.clock.Now().Add(ConnectedTTL),
	}
	c.mu.Lock()
	c.entries[token] = s
	c.mu.Unlock()
	return s, nil
}

// lookup returns the live entry for token, evicting it if expired. The
// caller holds c.mu.
func (c *SessionCache) lookup(token uuid.UUID) (Session, bool) {
	s, ok := c.entries[token]
	if !ok {
		return Session{}, false
	}
	if !c.clock.Now().Before(s.ExpiresAt) {
		delete(c.entries, token)
		return Session{}, false
	}
	return s, true
}

// CheckValid reports whether token is live and bound to exactly userID.
func (c *SessionCache) CheckValid(token uuid.UUID, userID protocol.XPlatformID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.lookup(token)
	return ok && s.UserID == userID
}

// Lookup returns the live session for token.
func (c *SessionCache) Lookup(token uuid.UUID) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(token)
}

// Invalidate removes token.
func (c *SessionCache) Invalidate(token uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
}

// Disconnected shortens the token's lifetime to the grace period.
func (c *SessionCache) Disconnected(token uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.lookup(token); ok {
		s.ExpiresAt = c.clock.Now().Add(c.grace)
		c.entries[token] = s
	}
}

// Purge removes expired entries and returns how many were removed.
func (c *SessionCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	removed := 0
	for token, s := range c.entries {
		if !now.Before(s.ExpiresAt) {
			delete(c.entries, token)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including expired ones not yet
// purged.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes every entry.
func (c *SessionCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[uuid.UUID]Session)
	c.mu.Unlock()
}
