package network

import (
	"context"
	"encoding/binary"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

// startResponder answers raw pings on a loopback UDP port using reply to
// build the acknowledgement. It stops when the test ends.
func startResponder(t *testing.T, reply func(token uint64) []byte) netip.AddrPort {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			if n != rawPingSize || binary.LittleEndian.Uint64(buf) != protocol.SymbolRawPingRequest {
				continue
			}
			if out := reply(binary.LittleEndian.Uint64(buf[8:])); out != nil {
				pc.WriteTo(out, addr)
			}
		}
	}()
	t.Cleanup(func() {
		pc.Close()
		<-done
	})
	return netip.MustParseAddrPort(pc.LocalAddr().String())
}

func TestPingGameServer(t *testing.T) {
	addr := startResponder(t, func(token uint64) []byte {
		return encodeRawPing(protocol.SymbolRawPingAcknowledge, token)
	})
	assert.NoError(t, PingGameServer(context.Background(), addr, time.Second))
}

func TestPingGameServerWrongToken(t *testing.T) {
	addr := startResponder(t, func(token uint64) []byte {
		return encodeRawPing(protocol.SymbolRawPingAcknowledge, token+1)
	})
	assert.ErrorIs(t, PingGameServer(context.Background(), addr, time.Second), ErrPingMismatch)
}

func TestPingGameServerTimeout(t *testing.T) {
	addr := startResponder(t, func(uint64) []byte { return nil })

	start := time.Now()
	err := PingGameServer(context.Background(), addr, 100*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
