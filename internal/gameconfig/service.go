// Package gameconfig serves game configuration resources to clients.
package gameconfig

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/network"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/storage"
)

// configErrorCode is the only failure code clients are sent.
const configErrorCode = 1

// Service handles the config endpoint. It keeps no per-peer state.
type Service struct {
	resources *storage.Resources
	logger    zerolog.Logger
}

// NewService creates the config service.
func NewService(resources *storage.Resources) *Service {
	return &Service{
		resources: resources,
		logger:    log.With().Str("component", "gameconfig").Logger(),
	}
}

func (s *Service) HandlePacket(ctx context.Context, peer *network.Peer, packet []protocol.Message) error {
	for _, msg := range packet {
		req, ok := msg.(*protocol.ConfigRequestv2)
		if !ok {
			peer.Logger().Debug().Str("message", fmt.Sprint(msg)).Msg("ignoring unhandled message")
			continue
		}
		if err := s.handleConfigRequest(ctx, peer, req); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) fail(ctx context.Context, peer *network.Peer, info protocol.ConfigIdentity, reason string) error {
	peer.Logger().Debug().Str("type", info.Type).Str("id", info.ID).Str("reason", reason).Msg("config request failed")
	return peer.Send(ctx, &protocol.ConfigFailurev2{Info: protocol.ConfigErrorInfo{
		Type:      info.Type,
		ID:        info.ID,
		ErrorCode: configErrorCode,
		Error:     reason,
	}})
}

func (s *Service) handleConfigRequest(ctx context.Context, peer *network.Peer, req *protocol.ConfigRequestv2) error {
	info := req.Info
	typeSymbol, ok := s.resources.Symbol(ctx, info.Type)
	if !ok {
		return s.fail(ctx, peer, info, fmt.Sprintf("Could not resolve symbol for type (type = %s, id = %s)", info.Type, info.ID))
	}
	idSymbol, ok := s.resources.Symbol(ctx, info.ID)
	if !ok {
		return s.fail(ctx, peer, info, fmt.Sprintf("Could not resolve symbol for id (type = %s, id = %s)", info.Type, info.ID))
	}

	resource, err := s.resources.Config(ctx, info.Type, info.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error().Err(err).Str("type", info.Type).Str("id", info.ID).Msg("failed to load config")
		}
		return s.fail(ctx, peer, info, fmt.Sprintf("Could not find specified config data with the provided identifier (type = %s, id = %s)", info.Type, info.ID))
	}

	return peer.Send(ctx,
		&protocol.ConfigSuccessv2{TypeSymbol: typeSymbol, IDSymbol: idSymbol, Resource: resource},
		&protocol.TcpConnectionUnrequireEvent{},
	)
}
