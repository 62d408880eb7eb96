package serverdb

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/network"
	"github.com/echorelay-project/echorelay/internal/protocol"
)

// Options configures registration checks.
type Options struct {
	// APIKey, when set, must match the api_key query parameter.
	APIKey string
	// ValidateEndpoint pings a registering server over UDP before
	// accepting it.
	ValidateEndpoint bool
	ValidateTimeout  time.Duration
	// Ping replaces the UDP validation ping. Nil uses network.PingGameServer.
	Ping PingFunc
}

// PingFunc checks that a game server answers on its UDP port.
type PingFunc func(ctx context.Context, addr netip.AddrPort, timeout time.Duration) error

// Service handles the serverdb endpoint game servers connect to.
type Service struct {
	registry *Registry
	opts     Options
	ping     PingFunc
	logger   zerolog.Logger
}

// NewService creates the serverdb service.
func NewService(registry *Registry, opts Options) *Service {
	if opts.ValidateTimeout <= 0 {
		opts.ValidateTimeout = 3 * time.Second
	}
	ping := opts.Ping
	if ping == nil {
		ping = network.PingGameServer
	}
	return &Service{
		registry: registry,
		opts:     opts,
		ping:     ping,
		logger:   log.With().Str("component", "serverdb").Logger(),
	}
}

// Registry returns the game server registry.
func (s *Service) Registry() *Registry { return s.registry }

// HandlePacket implements network.Handler.
func (s *Service) HandlePacket(ctx context.Context, peer *network.Peer, packet []protocol.Message) error {
	for _, msg := range packet {
		if req, ok := msg.(*protocol.GameServerRegistrationRequest); ok {
			if err := s.handleRegistration(ctx, peer, req); err != nil {
				return err
			}
			continue
		}

		g, ok := s.registry.ForPeer(peer)
		if !ok {
			peer.Logger().Debug().Str("message", fmt.Sprint(msg)).Msg("ignoring message from unregistered game server")
			continue
		}

		switch m := msg.(type) {
		case *protocol.GameServerSessionStarted:
			g.logger.Debug().Msg("game server reports session started")
		case *protocol.GameServerEndSession:
			g.EndSession(ctx)
		case *protocol.GameServerPlayersLocked:
			g.SetLocked(true)
		case *protocol.GameServerPlayersUnlocked:
			g.SetLocked(false)
		case *protocol.GameServerAcceptPlayers:
			if err := g.AcceptPlayers(ctx, m.PlayerSessions); err != nil {
				return err
			}
		case *protocol.GameServerRemovePlayer:
			g.RemovePlayer(m.PlayerSession)
		case *protocol.GameServerChallengeRequest:
			g.logger.Debug().Int("size", len(m.Payload)).Msg("ignoring challenge request")
		default:
			g.logger.Debug().Str("message", fmt.Sprint(msg)).Msg("ignoring unhandled message")
		}
	}
	return nil
}

// HandleDisconnect implements network.DisconnectHandler.
func (s *Service) HandleDisconnect(ctx context.Context, peer *network.Peer) {
	s.registry.UnregisterPeer(ctx, peer)
}

func (s *Service) rejectRegistration(ctx context.Context, peer *network.Peer, code protocol.RegistrationFailureCode, reason string) error {
	peer.Logger().Warn().Str("reason", reason).Msg("game server registration rejected")
	return peer.Send(ctx, &protocol.LobbyRegistrationFailure{Result: code})
}

func (s *Service) handleRegistration(ctx context.Context, peer *network.Peer, req *protocol.GameServerRegistrationRequest) error {
	s.registry.UnregisterPeer(ctx, peer)

	if s.opts.APIKey != "" && peer.Query("api_key") != s.opts.APIKey {
		return s.rejectRegistration(ctx, peer, protocol.RegistrationDatabaseError, "invalid api key")
	}

	if s.opts.ValidateEndpoint {
		addr := netip.AddrPortFrom(s.registry.externalAddress(peer), req.Port)
		if err := s.ping(ctx, addr, s.opts.ValidateTimeout); err != nil {
			peer.Logger().Warn().Err(err).Str("endpoint", addr.String()).Msg("game server endpoint did not answer")
			return s.rejectRegistration(ctx, peer, protocol.RegistrationConnectionFailed, "endpoint validation failed")
		}
	}

	s.registry.Register(ctx, peer, *req)
	return peer.Send(ctx,
		&protocol.LobbyRegistrationSuccess{ServerID: req.ServerID, ExternalAddress: peer.RemoteAddr().Addr()},
		&protocol.TcpConnectionUnrequireEvent{},
	)
}

var (
	_ network.Handler           = (*Service)(nil)
	_ network.DisconnectHandler = (*Service)(nil)
)
