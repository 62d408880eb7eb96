package matching

import (
	"context"
	"errors"
	"net/netip"

	"github.com/google/uuid"

	"github.com/echorelay-project/echorelay/internal/network"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/session"
)

// ErrTeamFull is returned by a game server that has no room on the
// requested team.
var ErrTeamFull = errors.New("team is full")

// ErrNotMatched is returned when a player-session request arrives for an
// attempt that never reached a lobby.
var ErrNotMatched = errors.New("matching attempt has no lobby")

// AddressPair identifies a game server by the addresses it announces.
type AddressPair struct {
	Internal netip.Addr
	External netip.Addr
}

// ServerState is a point-in-time view of a registered game server.
type ServerState struct {
	ServerID    uint64
	Endpoint    protocol.Endpoint
	Region      protocol.Symbol
	VersionLock int64

	SessionID   uuid.NullUUID
	LobbyType   protocol.LobbyType
	GameType    *protocol.Symbol
	Level       *protocol.Symbol
	Channel     uuid.UUID
	Locked      bool
	PlayerCount int
	PlayerLimit int
}

// SessionStarted reports whether the server is hosting a session.
func (s ServerState) SessionStarted() bool { return s.SessionID.Valid }

// Addresses returns the address pair the server is known by.
func (s ServerState) Addresses() AddressPair {
	return AddressPair{Internal: s.Endpoint.InternalAddress, External: s.Endpoint.ExternalAddress}
}

// Occupancy returns the filled fraction of the player limit.
func (s ServerState) Occupancy() float64 {
	if s.PlayerLimit <= 0 {
		return 0
	}
	return float64(s.PlayerCount) / float64(s.PlayerLimit)
}

// GameServer is a registered game server that can host matched players.
type GameServer interface {
	State() ServerState
	// ProcessLobbySessionRequest hands the peer's attempt to the server,
	// starting a session if none is running. It records the match on m.
	ProcessLobbySessionRequest(ctx context.Context, peer *network.Peer, m *session.Matching) error
	// ProcessPlayerSessionRequest admits the peer into the matched session.
	ProcessPlayerSessionRequest(ctx context.Context, peer *network.Peer, m *session.Matching) error
}

// Criteria restricts a registry search. Nil and zero fields do not filter.
// Session criteria apply only to servers with a started session.
type Criteria struct {
	Limit        int
	ServerID     *uint64
	Addresses    map[AddressPair]struct{}
	GameType     *protocol.Symbol
	Level        *protocol.Symbol
	Channel      uuid.NullUUID
	Locked       *bool
	LobbyTypes   []protocol.LobbyType
	Team         *protocol.TeamIndex
	UnfilledOnly bool
}

// Registry is the set of registered game servers.
type Registry interface {
	FilterGameServers(c Criteria) []GameServer
	GameServer(serverID uint64) (GameServer, bool)
	GameServerBySession(sessionID uuid.UUID) (GameServer, bool)
}
