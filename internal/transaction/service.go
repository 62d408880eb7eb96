// Package transaction answers in-app purchase reconciliation. Purchases are
// not supported, so every account reports an empty balance.
package transaction

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/echorelay-project/echorelay/internal/network"
	"github.com/echorelay-project/echorelay/internal/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// emptyResult is the purchase state reported for every user.
var emptyResult = protocol.IAPResult{TransID: 1}

// Service handles the transaction endpoint.
type Service struct {
	result protocol.RawJSON
}

// NewService creates the transaction service.
func NewService() (*Service, error) {
	data, err := json.Marshal(emptyResult)
	if err != nil {
		return nil, fmt.Errorf("failed to encode purchase result: %w", err)
	}
	return &Service{result: data}, nil
}

func (s *Service) HandlePacket(ctx context.Context, peer *network.Peer, packet []protocol.Message) error {
	for _, msg := range packet {
		switch m := msg.(type) {
		case *protocol.ReconcileIAP:
			if err := peer.Send(ctx, &protocol.ReconcileIAPResult{UserID: m.UserID, IAPData: s.result}); err != nil {
				return err
			}
		default:
			peer.Logger().Debug().Str("message", fmt.Sprint(msg)).Msg("ignoring unhandled message")
		}
	}
	return nil
}
