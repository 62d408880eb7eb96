// Package serverdb tracks the game servers registered with the relay and
// implements the serverdb service they connect to.
package serverdb

import (
	"context"
	"net/netip"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/matching"
	"github.com/echorelay-project/echorelay/internal/network"
	"github.com/echorelay-project/echorelay/internal/protocol"
)

// SymbolNamer resolves symbols to names.
type SymbolNamer interface {
	SymbolName(ctx context.Context, sym protocol.Symbol) (string, bool)
}

// Registry holds every registered game server, indexed by server id, by
// session id and by serverdb peer. Searches snapshot the server set and
// never hold the registry lock while inspecting a server.
type Registry struct {
	mu        sync.RWMutex
	servers   map[uint64]*GameServer
	bySession map[uuid.UUID]*GameServer
	byPeer    map[uint64]*GameServer
	publicIP  netip.Addr

	symbols  SymbolNamer
	eventBus *events.EventBus
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry. symbols and eventBus may be nil.
func NewRegistry(symbols SymbolNamer, eventBus *events.EventBus) *Registry {
	r := &Registry{
		servers:   make(map[uint64]*GameServer),
		bySession: make(map[uuid.UUID]*GameServer),
		byPeer:    make(map[uint64]*GameServer),
		symbols:   symbols,
		eventBus:  eventBus,
		logger:    log.With().Str("component", "registry").Logger(),
	}
	if eventBus != nil {
		eventBus.Subscribe(events.EventAccountBanned, "registry.kickBanned", r.onAccountBanned)
	}
	return r
}

// SetPublicIP sets the address announced for game servers that connect
// from a private network.
func (r *Registry) SetPublicIP(ip netip.Addr) {
	r.mu.Lock()
	r.publicIP = ip.Unmap()
	r.mu.Unlock()
	r.logger.Info().Str("public_ip", ip.String()).Msg("public address updated")
}

// PublicIP returns the configured public address.
func (r *Registry) PublicIP() netip.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publicIP
}

// isPrivate reports whether addr is only reachable from the local network.
func isPrivate(addr netip.Addr) bool {
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}

func (r *Registry) externalAddress(peer *network.Peer) netip.Addr {
	addr := peer.RemoteAddr().Addr()
	if isPrivate(addr) {
		if public := r.PublicIP(); public.IsValid() {
			return public
		}
	}
	return addr
}

func (r *Registry) symbolName(ctx context.Context, sym protocol.Symbol) (string, bool) {
	if r.symbols == nil {
		return "", false
	}
	return r.symbols.SymbolName(ctx, sym)
}

func (r *Registry) describeSymbol(ctx context.Context, sym protocol.Symbol) string {
	if name, ok := r.symbolName(ctx, sym); ok {
		return name
	}
	return sym.String()
}

func (r *Registry) emit(ctx context.Context, t events.EventType, payload any) {
	if r.eventBus == nil {
		return
	}
	r.eventBus.Emit(ctx, events.Event{Type: t, Source: "serverdb", Payload: payload})
}

// Register adds a game server for peer. A server registering an id already
// in use replaces the previous registration.
func (r *Registry) Register(ctx context.Context, peer *network.Peer, req protocol.GameServerRegistrationRequest) *GameServer {
	g := newGameServer(r, peer, req)

	r.mu.Lock()
	previous := r.servers[req.ServerID]
	r.servers[req.ServerID] = g
	r.byPeer[peer.ID()] = g
	if previous != nil && previous.peer != peer {
		delete(r.byPeer, previous.peer.ID())
	}
	r.mu.Unlock()

	if previous != nil {
		r.dropSessionIndex(previous)
		r.logger.Warn().Uint64("server_id", req.ServerID).Msg("server id re-registered, replacing previous registration")
	}

	g.logger.Info().
		Str("internal", req.InternalAddress.String()).
		Str("external", g.ExternalAddress().String()).
		Uint16("port", req.Port).
		Msg("game server registered")
	r.emit(ctx, events.EventServerRegistered, events.GameServerPayload{
		ServerID:    req.ServerID,
		Address:     g.ExternalAddress().String(),
		Port:        req.Port,
		Region:      int64(req.Region),
		VersionLock: req.VersionLock,
	})
	return g
}

func (r *Registry) dropSessionIndex(g *GameServer) {
	if state := g.State(); state.SessionID.Valid {
		r.unindexSession(state.SessionID.UUID, g)
	}
}

// UnregisterPeer removes the game server registered by peer, if any.
func (r *Registry) UnregisterPeer(ctx context.Context, peer *network.Peer) {
	r.mu.Lock()
	g, ok := r.byPeer[peer.ID()]
	if ok {
		delete(r.byPeer, peer.ID())
		if r.servers[g.ID()] == g {
			delete(r.servers, g.ID())
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.dropSessionIndex(g)
	g.logger.Info().Msg("game server unregistered")
	r.emit(ctx, events.EventServerUnregistered, events.GameServerPayload{
		ServerID: g.ID(),
		Address:  g.ExternalAddress().String(),
		Port:     g.registration.Port,
	})
}

func (r *Registry) indexSession(id uuid.UUID, g *GameServer) {
	r.mu.Lock()
	r.bySession[id] = g
	r.mu.Unlock()
}

func (r *Registry) unindexSession(id uuid.UUID, g *GameServer) {
	r.mu.Lock()
	if r.bySession[id] == g {
		delete(r.bySession, id)
	}
	r.mu.Unlock()
}

// ForPeer returns the game server registered by peer.
func (r *Registry) ForPeer(peer *network.Peer) (*GameServer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byPeer[peer.ID()]
	return g, ok
}

// Get returns the game server registered under serverID.
func (r *Registry) Get(serverID uint64) (*GameServer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.servers[serverID]
	return g, ok
}

// GameServer implements matching.Registry.
func (r *Registry) GameServer(serverID uint64) (matching.GameServer, bool) {
	g, ok := r.Get(serverID)
	if !ok {
		return nil, false
	}
	return g, true
}

// GameServerBySession implements matching.Registry.
func (r *Registry) GameServerBySession(sessionID uuid.UUID) (matching.GameServer, bool) {
	r.mu.RLock()
	g, ok := r.bySession[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return g, true
}

// Servers returns the registered servers ordered by server id.
func (r *Registry) Servers() []*GameServer {
	r.mu.RLock()
	out := make([]*GameServer, 0, len(r.servers))
	for _, g := range r.servers {
		out = append(out, g)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// FilterGameServers implements matching.Registry.
func (r *Registry) FilterGameServers(c matching.Criteria) []matching.GameServer {
	var out []matching.GameServer
	for _, g := range r.Servers() {
		if c.Limit > 0 && len(out) >= c.Limit {
			break
		}
		if g.matches(c) {
			out = append(out, g)
		}
	}
	return out
}

// Count returns the number of registered servers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// SessionCount returns the number of servers hosting a session.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}

// PlayerCount returns the number of player sessions across all servers.
func (r *Registry) PlayerCount() int {
	total := 0
	for _, g := range r.Servers() {
		total += g.State().PlayerCount
	}
	return total
}

// GetAllInfo returns API summaries of every server, ordered by server id.
func (r *Registry) GetAllInfo(ctx context.Context) []Info {
	servers := r.Servers()
	out := make([]Info, 0, len(servers))
	for _, g := range servers {
		out = append(out, g.GetInfo(ctx))
	}
	return out
}

// KickUser kicks userID from every game server and returns the number of
// player sessions kicked.
func (r *Registry) KickUser(ctx context.Context, userID protocol.XPlatformID) int {
	total := 0
	for _, g := range r.Servers() {
		n, err := g.KickUser(ctx, userID)
		if err != nil {
			g.logger.Warn().Err(err).Str("user", userID.String()).Msg("failed to kick user")
			continue
		}
		total += n
	}
	return total
}

func (r *Registry) onAccountBanned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AccountPayload)
	if !ok {
		return nil
	}
	userID, err := protocol.ParseXPlatformID(payload.UserID)
	if err != nil {
		return err
	}
	if n := r.KickUser(ctx, userID); n > 0 {
		r.logger.Info().Str("user", payload.UserID).Int("sessions", n).Msg("kicked banned user from game servers")
	}
	return nil
}

var _ matching.Registry = (*Registry)(nil)
