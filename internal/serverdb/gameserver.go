package serverdb

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/matching"
	"github.com/echorelay-project/echorelay/internal/network"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/session"
)

// DefaultAppID is announced to game servers when a session request does
// not carry one.
const DefaultAppID = "1369078409873402"

var (
	serverEncoder = protocol.PacketEncoderSettings{
		EncryptionEnabled: true,
		MacEnabled:        true,
		MacDigestSize:     32,
		MacKeySize:        32,
		EncryptionKeySize: 32,
		RandomKeySize:     32,
	}
	clientEncoder = protocol.PacketEncoderSettings{
		EncryptionEnabled: true,
		MacEnabled:        true,
		MacDigestSize:     64,
		MacKeySize:        32,
		EncryptionKeySize: 32,
		RandomKeySize:     32,
	}
)

type player struct {
	peer     *network.Peer
	userID   protocol.XPlatformID
	team     protocol.TeamIndex
	joinedAt time.Time
	accepted bool
}

// GameServer is a game server registered over a serverdb connection.
type GameServer struct {
	registry     *Registry
	peer         *network.Peer
	registration protocol.GameServerRegistrationRequest
	registeredAt time.Time
	logger       zerolog.Logger

	mu        sync.Mutex
	sessionID uuid.NullUUID
	lobbyType protocol.LobbyType
	gameType  *protocol.Symbol
	level     *protocol.Symbol
	channel   uuid.UUID
	limits    PlayerLimits
	locked    bool
	startedAt time.Time
	players   map[uuid.UUID]player
}

func newGameServer(r *Registry, peer *network.Peer, req protocol.GameServerRegistrationRequest) *GameServer {
	return &GameServer{
		registry:     r,
		peer:         peer,
		registration: req,
		registeredAt: time.Now(),
		logger: peer.Logger().With().
			Str("component", "gameserver").
			Uint64("server_id", req.ServerID).
			Logger(),
		lobbyType: protocol.LobbyUnassigned,
		limits:    DefaultLimits,
		players:   make(map[uuid.UUID]player),
	}
}

// ID returns the server id the game server registered with.
func (g *GameServer) ID() uint64 { return g.registration.ServerID }

// Peer returns the serverdb connection of the game server.
func (g *GameServer) Peer() *network.Peer { return g.peer }

// ExternalAddress returns the address clients should connect to.
func (g *GameServer) ExternalAddress() netip.Addr {
	return g.registry.externalAddress(g.peer)
}

// Endpoint returns the addresses announced to clients.
func (g *GameServer) Endpoint() protocol.Endpoint {
	return protocol.Endpoint{
		InternalAddress: g.registration.InternalAddress,
		ExternalAddress: g.ExternalAddress(),
		Port:            g.registration.Port,
	}
}

// State returns a snapshot of the server and its session.
func (g *GameServer) State() matching.ServerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

func (g *GameServer) stateLocked() matching.ServerState {
	return matching.ServerState{
		ServerID:    g.registration.ServerID,
		Endpoint:    g.Endpoint(),
		Region:      g.registration.Region,
		VersionLock: g.registration.VersionLock,
		SessionID:   g.sessionID,
		LobbyType:   g.lobbyType,
		GameType:    g.gameType,
		Level:       g.level,
		Channel:     g.channel,
		Locked:      g.locked,
		PlayerCount: len(g.players),
		PlayerLimit: g.limits.Total,
	}
}

func (g *GameServer) takenTeamsLocked() []protocol.TeamIndex {
	teams := make([]protocol.TeamIndex, 0, len(g.players))
	for _, p := range g.players {
		teams = append(teams, p.team)
	}
	return teams
}

// TeamAvailable reports whether a player could join team now. A server
// without a session has room on every team.
func (g *GameServer) TeamAvailable(team protocol.TeamIndex) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.teamAvailableLocked(team)
}

func (g *GameServer) teamAvailableLocked(team protocol.TeamIndex) bool {
	if !g.sessionID.Valid {
		return true
	}
	return g.limits.TeamAvailable(g.takenTeamsLocked(), team)
}

// matches applies c to the server. Session criteria only apply to a
// started session.
func (g *GameServer) matches(c matching.Criteria) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c.ServerID != nil && *c.ServerID != g.registration.ServerID {
		return false
	}
	if c.Addresses != nil {
		pair := matching.AddressPair{Internal: g.registration.InternalAddress, External: g.ExternalAddress()}
		if _, ok := c.Addresses[pair]; !ok {
			return false
		}
	}
	if !g.sessionID.Valid {
		return true
	}

	switch {
	case c.GameType != nil && (g.gameType == nil || *g.gameType != *c.GameType):
		return false
	case c.Level != nil && (g.level == nil || *g.level != *c.Level):
		return false
	case c.Channel.Valid && c.Channel.UUID != uuid.Nil && g.channel != uuid.Nil && c.Channel.UUID != g.channel:
		return false
	case c.Locked != nil && *c.Locked != g.locked:
		return false
	case c.LobbyTypes != nil && !containsLobbyType(c.LobbyTypes, g.lobbyType):
		return false
	case c.UnfilledOnly && len(g.players) >= g.limits.Total:
		return false
	case c.UnfilledOnly && c.Team != nil && !g.teamAvailableLocked(*c.Team):
		return false
	}
	return true
}

func containsLobbyType(types []protocol.LobbyType, t protocol.LobbyType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func symbolFromSettings(v *int64) *protocol.Symbol {
	if v == nil {
		return nil
	}
	s := protocol.Symbol(*v)
	return &s
}

func settingsSymbol(s *protocol.Symbol) *int64 {
	if s == nil {
		return nil
	}
	v := int64(*s)
	return &v
}

// startSessionLocked starts a new session for the attempt m. The caller
// holds g.mu.
func (g *GameServer) startSessionLocked(ctx context.Context, m *session.Matching) error {
	if g.sessionID.Valid {
		g.registry.unindexSession(g.sessionID.UUID, g)
	}

	gameType := m.GameType
	if gameType == nil {
		gameType = symbolFromSettings(m.SessionSettings.GameType)
	}
	level := m.Level
	if level == nil {
		level = symbolFromSettings(m.SessionSettings.Level)
	}

	settings := m.SessionSettings
	if settings.AppID == nil {
		appID := DefaultAppID
		settings.AppID = &appID
	}
	if settings.GameType == nil {
		settings.GameType = settingsSymbol(gameType)
	}
	if settings.Level == nil {
		settings.Level = settingsSymbol(level)
	}

	limits := DefaultLimits
	if settings.GameType != nil {
		if name, ok := g.registry.symbolName(ctx, protocol.Symbol(*settings.GameType)); ok {
			limits = LimitsFor(name)
		}
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("failed to generate session id: %w", err)
	}

	g.sessionID = uuid.NullUUID{UUID: id, Valid: true}
	g.lobbyType = m.LobbyType
	g.channel = m.ChannelOrNil()
	g.gameType = gameType
	g.level = level
	g.limits = limits
	g.locked = false
	g.startedAt = time.Now()
	g.players = make(map[uuid.UUID]player)

	start := &protocol.GameServerStartSession{
		SessionID:   id,
		Channel:     g.channel,
		PlayerLimit: uint8(limits.Total),
		LobbyType:   g.lobbyType,
		Settings:    settings,
	}
	if err := g.peer.Send(ctx, start); err != nil {
		return fmt.Errorf("failed to start session on game server: %w", err)
	}
	g.registry.indexSession(id, g)

	g.logger.Info().
		Str("session", id.String()).
		Str("lobby_type", g.lobbyType.String()).
		Int("player_limit", limits.Total).
		Msg("session started")
	return nil
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return b
}

func randomUint64() uint64 {
	return binary.LittleEndian.Uint64(randomBytes(8))
}

func sessionKeys(s protocol.PacketEncoderSettings) protocol.SessionKeys {
	return protocol.SessionKeys{
		MacKey:    randomBytes(s.MacKeySize),
		EncKey:    randomBytes(s.EncryptionKeySize),
		RandomKey: randomBytes(s.RandomKeySize),
	}
}

// ProcessLobbySessionRequest implements matching.GameServer.
func (g *GameServer) ProcessLobbySessionRequest(ctx context.Context, peer *network.Peer, m *session.Matching) error {
	g.mu.Lock()
	started := false
	if !g.sessionID.Valid {
		if err := g.startSessionLocked(ctx, m); err != nil {
			g.mu.Unlock()
			return err
		}
		started = true
	}

	if !g.teamAvailableLocked(m.TeamIndex) {
		g.mu.Unlock()
		if started {
			g.emitLobby(ctx, events.EventLobbyStarted)
		}
		return matching.ErrTeamFull
	}

	sessionID := g.sessionID.UUID
	m.SetMatched(g.registration.ServerID, sessionID)

	gameType := protocol.Symbol(-1)
	if g.gameType != nil {
		gameType = *g.gameType
	}
	success := protocol.SessionSuccess{
		GameType:         gameType,
		MatchingSession:  sessionID,
		Channel:          g.channel,
		Endpoint:         g.Endpoint(),
		TeamIndex:        m.TeamIndex,
		ServerEncoder:    serverEncoder,
		ClientEncoder:    clientEncoder,
		ServerSequenceID: randomUint64(),
		ServerKeys:       sessionKeys(serverEncoder),
		ClientSequenceID: randomUint64(),
		ClientKeys:       sessionKeys(clientEncoder),
	}
	v4 := &protocol.LobbySessionSuccessv4{SessionSuccess: success}
	v5 := &protocol.LobbySessionSuccessv5{SessionSuccess: success}

	err := g.peer.Send(ctx, v4, v5)
	if err == nil {
		err = peer.Send(ctx, v4, v5)
	}
	g.mu.Unlock()

	if started {
		g.emitLobby(ctx, events.EventLobbyStarted)
	}
	if err != nil {
		return fmt.Errorf("failed to deliver session success: %w", err)
	}
	return nil
}

// ProcessPlayerSessionRequest implements matching.GameServer.
func (g *GameServer) ProcessPlayerSessionRequest(ctx context.Context, peer *network.Peer, m *session.Matching) error {
	_, lobbyID, ok := m.Matched()
	if !ok {
		return matching.ErrNotMatched
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.sessionID.Valid || g.sessionID.UUID != lobbyID {
		return fmt.Errorf("session %s is no longer hosted by server %d", lobbyID, g.registration.ServerID)
	}

	playerSession, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("failed to generate player session: %w", err)
	}

	if len(g.players)+1 > g.limits.Total {
		reject := &protocol.GameServerPlayersRejected{
			ErrorCode:      protocol.RejectLobbyFull,
			PlayerSessions: []uuid.UUID{playerSession},
		}
		if err := g.peer.Send(ctx, reject); err != nil {
			g.logger.Warn().Err(err).Msg("failed to reject player session")
		}
		return matching.ErrTeamFull
	}

	err = peer.Send(ctx,
		&protocol.LobbyPlayerSessionsSuccessUnk1{MatchingSession: lobbyID, PlayerSessions: []uuid.UUID{playerSession}},
		&protocol.LobbyPlayerSessionsSuccessv2{Unk0: 0xFF, UserID: m.UserID, PlayerSession: playerSession},
		&protocol.LobbyPlayerSessionsSuccessv3{Unk0: 0xFF, UserID: m.UserID, PlayerSession: playerSession, TeamIndex: m.TeamIndex},
	)
	if err != nil {
		return err
	}

	g.players[playerSession] = player{
		peer:     peer,
		userID:   m.UserID,
		team:     m.TeamIndex,
		joinedAt: time.Now(),
	}
	g.logger.Debug().
		Str("player_session", playerSession.String()).
		Str("user", m.UserID.String()).
		Str("team", m.TeamIndex.String()).
		Msg("player session issued")
	return nil
}

// AcceptPlayers confirms player sessions the game server asked about.
func (g *GameServer) AcceptPlayers(ctx context.Context, playerSessions []uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.sessionID.Valid {
		return nil
	}
	if err := g.peer.Send(ctx, &protocol.GameServerPlayersAccepted{PlayerSessions: playerSessions}); err != nil {
		return err
	}
	for _, ps := range playerSessions {
		if p, ok := g.players[ps]; ok {
			p.accepted = true
			g.players[ps] = p
		}
	}
	return nil
}

// KickPlayer asks the game server to drop a player session.
func (g *GameServer) KickPlayer(ctx context.Context, playerSession uuid.UUID) error {
	return g.peer.Send(ctx, &protocol.GameServerPlayersRejected{
		ErrorCode:      protocol.RejectKickedFromServer,
		PlayerSessions: []uuid.UUID{playerSession},
	})
}

// KickUser kicks every player session held by userID and returns how many
// were kicked.
func (g *GameServer) KickUser(ctx context.Context, userID protocol.XPlatformID) (int, error) {
	g.mu.Lock()
	var sessions []uuid.UUID
	for ps, p := range g.players {
		if p.userID == userID {
			sessions = append(sessions, ps)
		}
	}
	g.mu.Unlock()

	for _, ps := range sessions {
		if err := g.KickPlayer(ctx, ps); err != nil {
			return 0, err
		}
	}
	return len(sessions), nil
}

// RemovePlayer drops a player session. The server locks itself once the
// last player leaves, since the session is expected to end.
func (g *GameServer) RemovePlayer(playerSession uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.players, playerSession)
	if g.sessionID.Valid && len(g.players) == 0 {
		g.locked = true
	}
}

// SetLocked records whether the session accepts new players.
func (g *GameServer) SetLocked(locked bool) {
	g.mu.Lock()
	changed := g.locked != locked
	g.locked = locked
	g.mu.Unlock()
	if changed {
		g.logger.Debug().Bool("locked", locked).Msg("lock state changed")
	}
}

// EndSession resets the server to an idle state.
func (g *GameServer) EndSession(ctx context.Context) {
	g.mu.Lock()
	ended := g.sessionID
	if ended.Valid {
		g.registry.unindexSession(ended.UUID, g)
	}
	g.sessionID = uuid.NullUUID{}
	g.lobbyType = protocol.LobbyUnassigned
	g.channel = uuid.Nil
	g.gameType = nil
	g.level = nil
	g.locked = false
	g.limits = DefaultLimits
	g.startedAt = time.Time{}
	g.players = make(map[uuid.UUID]player)
	g.mu.Unlock()

	if ended.Valid {
		g.logger.Info().Str("session", ended.UUID.String()).Msg("session ended")
		g.registry.emit(ctx, events.EventLobbyEnded, events.LobbyPayload{
			ServerID:  g.registration.ServerID,
			SessionID: ended.UUID.String(),
		})
	}
}

func (g *GameServer) emitLobby(ctx context.Context, t events.EventType) {
	state := g.State()
	payload := events.LobbyPayload{
		ServerID:  state.ServerID,
		LobbyType: state.LobbyType.String(),
	}
	if state.SessionID.Valid {
		payload.SessionID = state.SessionID.UUID.String()
	}
	g.registry.emit(ctx, t, payload)
}

// PlayerInfo describes a player session for the admin API.
type PlayerInfo struct {
	PlayerSession string    `json:"player_session"`
	UserID        string    `json:"user_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	Team          string    `json:"team"`
	Accepted      bool      `json:"accepted"`
	JoinedAt      time.Time `json:"joined_at"`
}

// Info is a JSON-serializable summary of a game server.
type Info struct {
	ServerID     uint64       `json:"server_id"`
	Address      string       `json:"address"`
	Internal     string       `json:"internal_address"`
	Port         uint16       `json:"port"`
	Region       string       `json:"region"`
	VersionLock  int64        `json:"version_lock"`
	RegisteredAt time.Time    `json:"registered_at"`
	SessionID    string       `json:"session_id,omitempty"`
	LobbyType    string       `json:"lobby_type"`
	GameType     string       `json:"game_type,omitempty"`
	Level        string       `json:"level,omitempty"`
	Channel      string       `json:"channel,omitempty"`
	Locked       bool         `json:"locked"`
	PlayerCount  int          `json:"player_count"`
	PlayerLimit  int          `json:"player_limit"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	Players      []PlayerInfo `json:"players"`
}

// GetInfo returns a summary of the server for API responses.
func (g *GameServer) GetInfo(ctx context.Context) Info {
	g.mu.Lock()
	state := g.stateLocked()
	startedAt := g.startedAt
	players := make([]PlayerInfo, 0, len(g.players))
	for ps, p := range g.players {
		info := PlayerInfo{
			PlayerSession: ps.String(),
			UserID:        p.userID.String(),
			Team:          p.team.String(),
			Accepted:      p.accepted,
			JoinedAt:      p.joinedAt,
		}
		if name, ok := p.peer.DisplayName(); ok {
			info.DisplayName = name
		}
		players = append(players, info)
	}
	g.mu.Unlock()

	sort.Slice(players, func(i, j int) bool { return players[i].JoinedAt.Before(players[j].JoinedAt) })

	info := Info{
		ServerID:     state.ServerID,
		Address:      state.Endpoint.ExternalAddress.String(),
		Internal:     state.Endpoint.InternalAddress.String(),
		Port:         state.Endpoint.Port,
		Region:       g.registry.describeSymbol(ctx, state.Region),
		VersionLock:  state.VersionLock,
		RegisteredAt: g.registeredAt,
		LobbyType:    state.LobbyType.String(),
		Locked:       state.Locked,
		PlayerCount:  state.PlayerCount,
		PlayerLimit:  state.PlayerLimit,
		Players:      players,
	}
	if state.SessionID.Valid {
		info.SessionID = state.SessionID.UUID.String()
		info.StartedAt = &startedAt
	}
	if state.GameType != nil {
		info.GameType = g.registry.describeSymbol(ctx, *state.GameType)
	}
	if state.Level != nil {
		info.Level = g.registry.describeSymbol(ctx, *state.Level)
	}
	if state.Channel != uuid.Nil {
		info.Channel = state.Channel.String()
	}
	return info
}

var _ matching.GameServer = (*GameServer)(nil)
