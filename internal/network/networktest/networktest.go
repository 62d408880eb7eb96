// Package networktest runs relay services behind an httptest server and
// provides websocket clients that speak the packet codec.
package networktest

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/network"
	"github.com/echorelay-project/echorelay/internal/protocol"
)

// ReceiveTimeout bounds every client read.
const ReceiveTimeout = 2 * time.Second

// Harness is a running relay server.
type Harness struct {
	Server *network.Server
	HTTP   *httptest.Server
}

// New starts an empty server. Services must be registered with Handle
// before clients dial them.
func New(t *testing.T, bus *events.EventBus) *Harness {
	t.Helper()
	srv := network.NewServer(network.ServerOptions{}, bus)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Shutdown(ctx))
	})
	return &Harness{Server: srv, HTTP: ts}
}

// Handle mounts handler as a service on path and returns the service.
func (h *Harness) Handle(path string, handler network.Handler) *network.Service {
	svc := network.NewService(strings.TrimPrefix(path, "/"), handler, network.DefaultServiceOptions())
	h.Server.Handle(path, svc)
	return svc
}

// Client is a test websocket client.
type Client struct {
	t       *testing.T
	conn    *websocket.Conn
	codec   *protocol.Codec
	pending []protocol.Message
}

// Dial connects to path. query is appended verbatim when non-empty.
func (h *Harness) Dial(t *testing.T, path, query string) *Client {
	t.Helper()
	return h.DialRegistry(t, path, query, protocol.DefaultRegistry())
}

// DialRegistry is Dial with the client decoding through registry.
func (h *Harness) DialRegistry(t *testing.T, path, query string, registry *protocol.Registry) *Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.HTTP.URL, "http") + path
	if query != "" {
		url += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	return &Client{t: t, conn: conn, codec: protocol.NewCodec(registry, false)}
}

// Send writes one packet.
func (c *Client) Send(messages ...protocol.Message) {
	c.t.Helper()
	data, err := c.codec.EncodePacket(messages...)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.BinaryMessage, data))
}

// Next returns the next message, reading a packet when none is buffered.
func (c *Client) Next() protocol.Message {
	c.t.Helper()
	for len(c.pending) == 0 {
		c.conn.SetReadDeadline(time.Now().Add(ReceiveTimeout))
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err)
		packet, err := c.codec.DecodePacket(data)
		require.NoError(c.t, err)
		c.pending = packet
	}
	m := c.pending[0]
	c.pending = c.pending[1:]
	return m
}

// Expect returns the next message as T, failing the test on any other type.
func Expect[T protocol.Message](c *Client) T {
	c.t.Helper()
	m := c.Next()
	out, ok := m.(T)
	require.True(c.t, ok, "expected %T, got %s", *new(T), describe(m))
	return out
}

// ExpectSilence fails if a message arrives within d.
func (c *Client) ExpectSilence(d time.Duration) {
	c.t.Helper()
	require.Empty(c.t, c.pending)
	c.conn.SetReadDeadline(time.Now().Add(d))
	_, _, err := c.conn.ReadMessage()
	require.Error(c.t, err, "unexpected packet")
}

// Conn exposes the underlying connection.
func (c *Client) Conn() *websocket.Conn { return c.conn }

// Close closes the connection.
func (c *Client) Close() { c.conn.Close() }

func describe(m protocol.Message) string {
	if s, ok := m.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", m)
}
