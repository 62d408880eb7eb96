package matching

import (
	"context"
	"fmt"

	"github.com/echorelay-project/echorelay/internal/network"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/session"
)

// Service handles the matching endpoint.
type Service struct {
	engine *Engine
}

// NewService creates the matching endpoint handler.
func NewService(engine *Engine) *Service {
	return &Service{engine: engine}
}

// Engine returns the engine driving the service.
func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) HandlePacket(ctx context.Context, peer *network.Peer, packet []protocol.Message) error {
	for _, msg := range packet {
		var err error
		switch m := msg.(type) {
		case *protocol.LobbyCreateSessionRequestv9:
			err = s.begin(ctx, peer, session.FromCreate(m))
		case *protocol.LobbyFindSessionRequestv11:
			err = s.begin(ctx, peer, session.FromFind(m))
		case *protocol.LobbyJoinSessionRequestv7:
			err = s.begin(ctx, peer, session.FromJoin(m))
		case *protocol.LobbyMatchmakerStatusRequest:
			err = peer.Send(ctx, &protocol.LobbyMatchmakerStatus{})
		case *protocol.LobbyPendingSessionCancel:
			s.engine.Cancel(peer)
			err = peer.Send(ctx, &protocol.TcpConnectionUnrequireEvent{})
		case *protocol.LobbyPingResponse:
			err = s.engine.HandlePingResponse(ctx, peer, m)
		case *protocol.LobbyPlayerSessionsRequestv5:
			err = s.engine.HandlePlayerSessions(ctx, peer, m)
		default:
			peer.Logger().Debug().Str("message", fmt.Sprint(msg)).Msg("ignoring unhandled message")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// begin replaces the peer's matching session with m and resolves it.
func (s *Service) begin(ctx context.Context, peer *network.Peer, m *session.Matching) error {
	peer.SetSession(session.WithMatching(m))
	return s.engine.ResolveSession(ctx, peer)
}

// HandleDisconnect drops any pending attempt.
func (s *Service) HandleDisconnect(_ context.Context, peer *network.Peer) {
	s.engine.Cancel(peer)
}
