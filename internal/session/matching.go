package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

// Request kinds a Matching can originate from.
type RequestKind int

const (
	RequestCreate RequestKind = iota
	RequestFind
	RequestJoin
)

func (k RequestKind) String() string {
	switch k {
	case RequestCreate:
		return "create"
	case RequestFind:
		return "find"
	case RequestJoin:
		return "join"
	}
	return "unknown"
}

// Matching is one caller's matchmaking intent. The criteria are fixed once
// built; only the match result is recorded later.
type Matching struct {
	Request         RequestKind
	SessionToken    uuid.UUID
	UserID          protocol.XPlatformID
	LobbyID         uuid.NullUUID
	Channel         uuid.NullUUID
	GameType        *protocol.Symbol
	Level           *protocol.Symbol
	LobbyType       protocol.LobbyType
	LobbyTypes      []protocol.LobbyType
	TeamIndex       protocol.TeamIndex
	SessionSettings protocol.SessionSettings

	mu              sync.Mutex
	matchedServerID uint64
	matchedSession  uuid.UUID
	matched         bool
}

func optionalGUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func optionalSymbol(s protocol.Symbol) *protocol.Symbol {
	if s == 0 {
		return nil
	}
	return &s
}

// allowedLobbyTypes returns the lobby types a search may land in. Private
// requests only take fresh servers; everything else may also join public
// sessions.
func allowedLobbyTypes(requested protocol.LobbyType) []protocol.LobbyType {
	if requested == protocol.LobbyPrivate {
		return []protocol.LobbyType{protocol.LobbyUnassigned}
	}
	return []protocol.LobbyType{protocol.LobbyUnassigned, protocol.LobbyPublic}
}

// FromCreate builds a matching attempt from a create-session request.
func FromCreate(req *protocol.LobbyCreateSessionRequestv9) *Matching {
	return &Matching{
		Request:         RequestCreate,
		SessionToken:    req.Session,
		UserID:          req.UserID,
		Channel:         optionalGUID(req.Channel),
		GameType:        optionalSymbol(req.GameType),
		Level:           optionalSymbol(req.Level),
		LobbyType:       req.LobbyType,
		LobbyTypes:      allowedLobbyTypes(req.LobbyType),
		TeamIndex:       req.TeamIndex,
		SessionSettings: req.SessionSettings,
	}
}

// FromFind builds a matching attempt from a find-session request.
func FromFind(req *protocol.LobbyFindSessionRequestv11) *Matching {
	return &Matching{
		Request:         RequestFind,
		SessionToken:    req.Session,
		UserID:          req.UserID,
		Channel:         optionalGUID(req.Channel),
		GameType:        optionalSymbol(req.GameType),
		Level:           optionalSymbol(req.Level),
		LobbyType:       protocol.LobbyPublic,
		LobbyTypes:      allowedLobbyTypes(protocol.LobbyPublic),
		TeamIndex:       req.TeamIndex,
		SessionSettings: req.SessionSettings,
	}
}

// FromJoin builds a matching attempt from a join-session request.
func FromJoin(req *protocol.LobbyJoinSessionRequestv7) *Matching {
	return &Matching{
		Request:         RequestJoin,
		SessionToken:    req.Session,
		UserID:          req.UserID,
		LobbyID:         optionalGUID(req.LobbyID),
		LobbyType:       protocol.LobbyPublic,
		LobbyTypes:      allowedLobbyTypes(protocol.LobbyPublic),
		TeamIndex:       req.TeamIndex,
		SessionSettings: req.SessionSettings,
	}
}

// AllowsLobbyType reports whether t is in the allowed search set.
func (m *Matching) AllowsLobbyType(t protocol.LobbyType) bool {
	for _, allowed := range m.LobbyTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// ChannelOrNil returns the requested channel, or the zero GUID.
func (m *Matching) ChannelOrNil() uuid.UUID {
	if m.Channel.Valid {
		return m.Channel.UUID
	}
	return uuid.Nil
}

// GameTypeOrZero returns the requested game type, or zero.
func (m *Matching) GameTypeOrZero() protocol.Symbol {
	if m.GameType != nil {
		return *m.GameType
	}
	return 0
}

// SetMatched records the game server and lobby selected for this attempt.
func (m *Matching) SetMatched(serverID uint64, lobbyID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchedServerID = serverID
	m.matchedSession = lobbyID
	m.matched = true
}

// Matched returns the recorded game server and lobby.
func (m *Matching) Matched() (serverID uint64, lobbyID uuid.UUID, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchedServerID, m.matchedSession, m.matched
}
