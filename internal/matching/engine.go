// Package matching resolves lobby create/find/join requests to a
// registered game server.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/network"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/session"
	"github.com/echorelay-project/echorelay/internal/storage"
)

// DefaultMaxCandidates caps how many servers a single search considers.
const DefaultMaxCandidates = 100

// Probe parameters sent with LobbyPingRequestv3.
const (
	probeUnk1    = 4
	probeTimeout = 100
)

// SessionValidator checks a login session token for a user.
type SessionValidator interface {
	CheckUserSession(token uuid.UUID, userID protocol.XPlatformID) bool
}

// AccountStore loads accounts.
type AccountStore interface {
	Account(ctx context.Context, id protocol.XPlatformID) (*storage.Account, error)
}

// Options tunes candidate selection.
type Options struct {
	// ForceIntoAnySession places the caller in the most populated open
	// server when its own criteria match nothing.
	ForceIntoAnySession bool
	// FavorPopulationOverPing picks the fullest responding server instead
	// of the closest one.
	FavorPopulationOverPing bool
	MaxCandidates           int
}

// Stats counts matching outcomes since the engine started.
type Stats struct {
	Attempts  uint64 `json:"attempts"`
	Probes    uint64 `json:"probes"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
}

// Engine runs the matching flow for peers holding a session.Matching.
type Engine struct {
	registry Registry
	accounts AccountStore
	sessions SessionValidator
	opts     Options
	bus      *events.EventBus
	now      func() time.Time
	logger   zerolog.Logger

	attempts  atomic.Uint64
	probes    atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// NewEngine creates a matching engine.
func NewEngine(registry Registry, accounts AccountStore, sessions SessionValidator, opts Options, bus *events.EventBus) *Engine {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	return &Engine{
		registry: registry,
		accounts: accounts,
		sessions: sessions,
		opts:     opts,
		bus:      bus,
		now:      time.Now,
		logger:   log.With().Str("component", "matching").Logger(),
	}
}

// Options returns the engine options.
func (e *Engine) Options() Options { return e.opts }

// Stats returns a snapshot of the outcome counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Attempts:  e.attempts.Load(),
		Probes:    e.probes.Load(),
		Succeeded: e.succeeded.Load(),
		Failed:    e.failed.Load(),
	}
}

func (e *Engine) emit(ctx context.Context, t events.EventType, payload events.MatchPayload) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(ctx, events.Event{Type: t, Source: "matching", Payload: payload})
}

// criteria builds the registry search for m.
func (e *Engine) criteria(m *session.Matching) Criteria {
	locked := false
	team := m.TeamIndex
	return Criteria{
		Limit:        e.opts.MaxCandidates,
		GameType:     m.GameType,
		Level:        m.Level,
		Channel:      m.Channel,
		Locked:       &locked,
		LobbyTypes:   m.LobbyTypes,
		Team:         &team,
		UnfilledOnly: true,
	}
}

// ResolveSession runs the matching flow for the session attached to peer.
// It either hands the peer to a server, sends a probe, or fails the
// attempt. Errors are returned only when the peer cannot be written to.
func (e *Engine) ResolveSession(ctx context.Context, peer *network.Peer) error {
	m, ok := peer.Session().Matching()
	if !ok {
		return nil
	}
	e.attempts.Add(1)

	if !e.sessions.CheckUserSession(m.SessionToken, m.UserID) {
		return e.Fail(ctx, peer, protocol.FailureBadRequest, "Unauthorized")
	}

	account, err := e.accounts.Account(ctx, m.UserID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			peer.Logger().Error().Err(err).Msg("failed to load account")
		}
		return e.Fail(ctx, peer, protocol.FailureBadRequest, "Failed to obtain profile")
	}
	if account.Banned(e.now()) {
		return e.Fail(ctx, peer, protocol.FailureBannedFromLobbyGroup, account.BanMessage())
	}
	peer.Authenticate(m.UserID, account.DisplayName())

	if m.TeamIndex == protocol.TeamModerator && !account.IsModerator {
		return e.Fail(ctx, peer, protocol.FailureNotALobbyGroupMod, "User is not a moderator")
	}

	if err := peer.Send(ctx, &protocol.LobbyMatchmakerStatus{}); err != nil {
		return err
	}

	if err := e.dispatch(ctx, peer, m); err != nil {
		return err
	}
	return peer.Send(ctx, &protocol.TcpConnectionUnrequireEvent{})
}

// dispatch looks up the requested lobby, or searches for candidates and
// hands off, probes, or falls back depending on how many match.
func (e *Engine) dispatch(ctx context.Context, peer *network.Peer, m *session.Matching) error {
	if m.LobbyID.Valid {
		gs, ok := e.registry.GameServerBySession(m.LobbyID.UUID)
		if !ok {
			return e.Fail(ctx, peer, protocol.FailureServerDoesNotExist, "Could not find requested lobby id")
		}
		return e.handoff(ctx, peer, m, gs)
	}

	candidates := e.registry.FilterGameServers(e.criteria(m))
	switch len(candidates) {
	case 0:
		return e.fallback(ctx, peer, m)
	case 1:
		return e.handoff(ctx, peer, m, candidates[0])
	default:
		return e.probe(ctx, peer, candidates)
	}
}

// probe asks the client to measure round trips to each candidate.
func (e *Engine) probe(ctx context.Context, peer *network.Peer, candidates []GameServer) error {
	req := &protocol.LobbyPingRequestv3{
		Unk1:      probeUnk1,
		Unk2:      probeTimeout,
		Endpoints: make([]protocol.Endpoint, 0, len(candidates)),
	}
	for _, gs := range candidates {
		req.Endpoints = append(req.Endpoints, gs.State().Endpoint)
	}
	e.probes.Add(1)
	peer.Logger().Debug().Int("candidates", len(candidates)).Msg("probing candidate servers")
	return peer.Send(ctx, req)
}

// fallback handles a search that matched nothing.
func (e *Engine) fallback(ctx context.Context, peer *network.Peer, m *session.Matching) error {
	if e.opts.ForceIntoAnySession {
		if gs := e.mostPopulated(m); gs != nil {
			return e.handoff(ctx, peer, m, gs)
		}
	}
	return e.Fail(ctx, peer, protocol.FailureServerFindFailed, "Could not obtain registered game server to serve request.")
}

// mostPopulated returns the fullest open Unassigned/Public server that has
// room on the caller's team, ignoring the rest of the caller's criteria.
func (e *Engine) mostPopulated(m *session.Matching) GameServer {
	locked := false
	team := m.TeamIndex
	servers := e.registry.FilterGameServers(Criteria{
		Locked:       &locked,
		Team:         &team,
		UnfilledOnly: true,
		LobbyTypes:   []protocol.LobbyType{protocol.LobbyUnassigned, protocol.LobbyPublic},
	})
	var best GameServer
	bestRatio := -1.0
	for _, gs := range servers {
		if r := gs.State().Occupancy(); r > bestRatio {
			best, bestRatio = gs, r
		}
	}
	return best
}

// HandlePingResponse completes a probed search using the client's round
// trip measurements.
func (e *Engine) HandlePingResponse(ctx context.Context, peer *network.Peer, resp *protocol.LobbyPingResponse) error {
	m, ok := peer.Session().Matching()
	if !ok {
		peer.Logger().Warn().Msg("ping response given, but no matching session exists")
		return e.Fail(ctx, peer, protocol.FailureInternalError, "Ping response given, but no matching session exists")
	}

	if len(resp.Results) == 0 {
		if e.opts.ForceIntoAnySession {
			if gs := e.mostPopulated(m); gs != nil {
				return e.handoff(ctx, peer, m, gs)
			}
		}
		return e.Fail(ctx, peer, protocol.FailureServerFindFailed, "Could not receive a ping response from any game servers")
	}

	rtt := make(map[AddressPair]uint32, len(resp.Results))
	c := e.criteria(m)
	c.Addresses = make(map[AddressPair]struct{}, len(resp.Results))
	for _, res := range resp.Results {
		pair := AddressPair{Internal: res.InternalAddress, External: res.ExternalAddress}
		rtt[pair] = res.PingMillis
		c.Addresses[pair] = struct{}{}
	}

	gs := e.selectServer(e.registry.FilterGameServers(c), rtt)
	if gs == nil {
		return e.Fail(ctx, peer, protocol.FailureServerFindFailed, "Could not obtain registered game server to serve request.")
	}
	return e.handoff(ctx, peer, m, gs)
}

// selectServer orders responding candidates by the configured strategy and
// returns the best, or nil when there are none.
func (e *Engine) selectServer(candidates []GameServer, rtt map[AddressPair]uint32) GameServer {
	if len(candidates) == 0 {
		return nil
	}
	type ranked struct {
		gs      GameServer
		started bool
		ping    uint32
		ratio   float64
	}
	list := make([]ranked, 0, len(candidates))
	for _, gs := range candidates {
		st := gs.State()
		ping, ok := rtt[st.Addresses()]
		if !ok {
			ping = math.MaxUint32
		}
		list = append(list, ranked{gs: gs, started: st.SessionStarted(), ping: ping, ratio: st.Occupancy()})
	}

	if e.opts.FavorPopulationOverPing {
		sort.SliceStable(list, func(i, j int) bool { return list[i].ratio > list[j].ratio })
		return list[0].gs
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.started != b.started {
			return a.started
		}
		if a.ping != b.ping {
			return a.ping < b.ping
		}
		return a.ratio > b.ratio
	})
	return list[0].gs
}

// handoff passes the attempt to gs and maps its errors onto failures.
func (e *Engine) handoff(ctx context.Context, peer *network.Peer, m *session.Matching, gs GameServer) error {
	st := gs.State()
	err := gs.ProcessLobbySessionRequest(ctx, peer, m)
	switch {
	case err == nil:
	case errors.Is(err, ErrTeamFull):
		return e.Fail(ctx, peer, protocol.FailureServerIsFull, "Team is full")
	case !peer.IsOpen():
		return err
	default:
		peer.Logger().Error().Err(err).Uint64("server_id", st.ServerID).Msg("game server failed to take session request")
		return e.Fail(ctx, peer, protocol.FailureInternalError, "Game server could not start the session")
	}

	e.succeeded.Add(1)
	_, lobbyID, _ := m.Matched()
	peer.Logger().Info().
		Uint64("server_id", st.ServerID).
		Str("session", lobbyID.String()).
		Str("request", m.Request.String()).
		Msg("matched to game server")
	e.emit(ctx, events.EventMatchSucceeded, events.MatchPayload{
		UserID:    m.UserID.String(),
		Request:   m.Request.String(),
		ServerID:  st.ServerID,
		SessionID: lobbyID.String(),
	})
	return nil
}

// HandlePlayerSessions admits the peer into the session it was matched to.
// The matching session is cleared whatever the outcome.
func (e *Engine) HandlePlayerSessions(ctx context.Context, peer *network.Peer, req *protocol.LobbyPlayerSessionsRequestv5) error {
	if !e.sessions.CheckUserSession(req.Session, req.UserID) {
		return e.Fail(ctx, peer, protocol.FailureBadRequest, "Unauthorized")
	}

	m, ok := peer.Session().Matching()
	if !ok {
		peer.Logger().Warn().Msg("player sessions requested, but no matching session exists")
		return nil
	}
	serverID, _, matched := m.Matched()
	if !matched {
		return e.Fail(ctx, peer, protocol.FailureInternalError, "Player sessions requested, but no matched game server exists")
	}
	gs, ok := e.registry.GameServer(serverID)
	if !ok {
		return e.Fail(ctx, peer, protocol.FailureInternalError, "Matched game server is no longer registered")
	}

	err := gs.ProcessPlayerSessionRequest(ctx, peer, m)
	switch {
	case err == nil:
		e.clear(peer, m)
		return nil
	case errors.Is(err, ErrTeamFull):
		return e.Fail(ctx, peer, protocol.FailureServerIsFull, "Lobby is full")
	case errors.Is(err, ErrNotMatched):
		return e.Fail(ctx, peer, protocol.FailureInternalError, "Player sessions requested for a different lobby")
	case !peer.IsOpen():
		e.clear(peer, m)
		return err
	default:
		peer.Logger().Error().Err(err).Uint64("server_id", serverID).Msg("failed to process player session request")
		return e.Fail(ctx, peer, protocol.FailureInternalError, "Failed to process player session request")
	}
}

// clear detaches m from peer if it is still the attached session.
func (e *Engine) clear(peer *network.Peer, m *session.Matching) {
	d := peer.TakeSession()
	if cur, ok := d.Matching(); ok && cur != m {
		peer.SetSession(d)
	}
}

// Cancel drops the peer's matching session without notifying it.
func (e *Engine) Cancel(peer *network.Peer) {
	d := peer.TakeSession()
	if _, ok := d.Matching(); !ok && !d.IsNone() {
		peer.SetSession(d)
	}
}

// Fail sends the failure burst for the peer's matching session and clears
// it. It does nothing when no matching session is attached, so concurrent
// or repeated calls notify the client once.
func (e *Engine) Fail(ctx context.Context, peer *network.Peer, code protocol.SessionFailureCode, message string) error {
	d := peer.TakeSession()
	m, ok := d.Matching()
	if !ok {
		if !d.IsNone() {
			peer.SetSession(d)
		}
		return nil
	}

	gameType := protocol.Symbol(-1)
	if m.GameType != nil {
		gameType = *m.GameType
	}
	channel := uuid.Nil
	switch {
	case m.Channel.Valid:
		channel = m.Channel.UUID
	case m.LobbyID.Valid:
		channel = m.LobbyID.UUID
	}

	e.failed.Add(1)
	peer.Logger().Info().
		Str("code", code.String()).
		Str("reason", message).
		Str("request", m.Request.String()).
		Msg("matching failed")
	e.emit(ctx, events.EventMatchFailed, events.MatchPayload{
		UserID:  m.UserID.String(),
		Request: m.Request.String(),
		Code:    code.String(),
		Message: message,
	})

	err := peer.Send(ctx,
		&protocol.LobbySessionFailurev1{ErrorCode: uint8(code)},
		&protocol.LobbySessionFailurev2{Channel: channel, ErrorCode: code},
		&protocol.LobbySessionFailurev3{GameType: gameType, Channel: channel, ErrorCode: code},
		&protocol.LobbySessionFailurev4{GameType: gameType, Channel: channel, ErrorCode: code, Message: message},
	)
	if err != nil {
		return fmt.Errorf("failed to send session failure: %w", err)
	}
	return nil
}
