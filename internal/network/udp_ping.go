package network

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

// ErrPingMismatch is returned when a game server answers the UDP
// validation ping with something other than the expected acknowledgement.
var ErrPingMismatch = errors.New("unexpected ping acknowledgement")

const rawPingSize = 16

// encodeRawPing builds a 16-byte raw ping datagram.
func encodeRawPing(symbol, token uint64) []byte {
	buf := make([]byte, rawPingSize)
	binary.LittleEndian.PutUint64(buf[0:8], symbol)
	binary.LittleEndian.PutUint64(buf[8:16], token)
	return buf
}

// PingGameServer sends the raw validation ping to a game server's UDP port
// and waits up to timeout for an acknowledgement carrying the same token.
func PingGameServer(ctx context.Context, addr netip.AddrPort, timeout time.Duration) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr.String())
	if err != nil {
		return fmt.Errorf("failed to dial game server %s: %w", addr, err)
	}
	defer conn.Close()

	var tokenBytes [8]byte
	if _, err := rand.Read(tokenBytes[:]); err != nil {
		return fmt.Errorf("failed to generate ping token: %w", err)
	}
	token := binary.LittleEndian.Uint64(tokenBytes[:])

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	if _, err := conn.Write(encodeRawPing(protocol.SymbolRawPingRequest, token)); err != nil {
		return fmt.Errorf("failed to send ping to %s: %w", addr, err)
	}

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("no ping acknowledgement from %s: %w", addr, err)
	}
	if n != rawPingSize ||
		binary.LittleEndian.Uint64(buf[0:8]) != protocol.SymbolRawPingAcknowledge ||
		binary.LittleEndian.Uint64(buf[8:16]) != token {
		return ErrPingMismatch
	}

	log.Debug().Str("addr", addr.String()).Msg("game server answered validation ping")
	return nil
}
