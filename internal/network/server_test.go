package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/protocol"
)

type denyAll struct{}

func (denyAll) Authorized(netip.Addr) bool { return false }

// recorder is a handler that records packets and optionally echoes them.
type recorder struct {
	mu        sync.Mutex
	packets   [][]protocol.Message
	echo      bool
	onConnect func(p *Peer)
}

func (r *recorder) HandlePacket(ctx context.Context, p *Peer, packet []protocol.Message) error {
	r.mu.Lock()
	r.packets = append(r.packets, packet)
	r.mu.Unlock()
	if r.echo {
		return p.Send(ctx, packet...)
	}
	return nil
}

func (r *recorder) HandleConnect(_ context.Context, p *Peer) {
	if r.onConnect != nil {
		r.onConnect(p)
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}

type harness struct {
	server  *Server
	service *Service
	http    *httptest.Server
}

func newHarness(t *testing.T, h Handler, bus *events.EventBus) *harness {
	t.Helper()
	srv := NewServer(ServerOptions{}, bus)
	svc := NewService("login", h, DefaultServiceOptions())
	srv.Handle("/login", svc)
	srv.Mount("/api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	ts := httptest.NewServer(srv)

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Shutdown(ctx))
	})
	return &harness{server: srv, service: svc, http: ts}
}

func (h *harness) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (h *harness) waitPeer(t *testing.T) *Peer {
	t.Helper()
	require.Eventually(t, func() bool { return h.service.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	return h.service.Peers()[0]
}

func testMessage() protocol.Message {
	return &protocol.LoginSuccess{
		Session: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		UserID:  protocol.XPlatformID{Platform: protocol.PlatformOVR, AccountID: 42},
	}
}

func TestServerRouting(t *testing.T) {
	h := newHarness(t, &recorder{}, nil)
	client := h.http.Client()

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown path", "/nowhere", http.StatusNotFound},
		{"service without upgrade", "/login", http.StatusBadRequest},
		{"trailing slash", "/login/", http.StatusBadRequest},
		{"mounted handler", "/api/public/ping", http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Get(h.http.URL + tt.path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestServerAccessControl(t *testing.T) {
	h := newHarness(t, &recorder{}, nil)
	h.server.SetAccessChecker(denyAll{})

	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/login"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, h.service.Count())
}

func TestPeerEchoAndObserverOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) Observer {
		return Observer{Received: func(*Peer, []protocol.Message) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}}
	}

	rec := &recorder{echo: true, onConnect: func(p *Peer) { p.AddObserver(record("peer")) }}
	h := newHarness(t, rec, nil)
	h.server.AddObserver(record("server"))
	h.service.AddObserver(record("service"))

	conn := h.dial(t, "/login")
	data, err := protocol.EncodePacket(testMessage())
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, data, reply)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"peer", "service", "server"}, order)
}

func TestMalformedFrameClosesWithProtocolError(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, rec, nil)
	conn := h.dial(t, "/login")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("definitely not a packet header")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseProtocolError), "got %v", err)
	assert.Zero(t, rec.count())
	require.Eventually(t, func() bool { return h.service.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownSymbolReachesHandler(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, rec, nil)
	conn := h.dial(t, "/login")

	data, err := protocol.EncodePacket(&protocol.UnimplementedMessage{TypeSymbol: 0x1234, Data: []byte{1, 2, 3}})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	msg, ok := rec.packets[0][0].(*protocol.UnimplementedMessage)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, msg.Data)
}

func TestDisconnectFiresOnce(t *testing.T) {
	var disconnects atomic.Int32
	h := newHarness(t, &recorder{}, nil)
	h.service.AddObserver(Observer{Disconnected: func(*Peer) { disconnects.Add(1) }})

	conn := h.dial(t, "/login")
	peer := h.waitPeer(t)

	_, ok := h.service.PeerByAddr(peer.Key())
	require.True(t, ok)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.service.Disconnect(context.Background(), peer)
		}()
	}
	wg.Wait()
	conn.Close()

	require.Eventually(t, func() bool { return h.service.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, disconnects.Load())
	_, ok = h.service.PeerByAddr(peer.Key())
	assert.False(t, ok)
	assert.Equal(t, StateClosed, peer.State())
}

func TestSendToClosedPeer(t *testing.T) {
	h := newHarness(t, &recorder{}, nil)
	h.dial(t, "/login")
	peer := h.waitPeer(t)

	require.NoError(t, peer.Send(context.Background(), testMessage()))
	peer.Close()
	assert.ErrorIs(t, peer.Send(context.Background(), testMessage()), ErrNotConnected)
}

func TestPeerQueryAndIdentity(t *testing.T) {
	h := newHarness(t, &recorder{}, nil)
	h.dial(t, "/login?displayname=Tester&auth=secret")
	peer := h.waitPeer(t)

	assert.Equal(t, "Tester", peer.Query("displayname"))
	assert.Equal(t, "secret", peer.Query("auth"))
	assert.True(t, peer.RemoteAddr().Addr().IsLoopback())

	_, ok := peer.UserID()
	assert.False(t, ok)
	id := protocol.XPlatformID{Platform: protocol.PlatformSTM, AccountID: 7}
	peer.Authenticate(id, "Tester")
	got, ok := peer.UserID()
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Len(t, h.service.PeersByUser(id), 1)
}

func TestEventsForwardedToBus(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()

	got := make(chan events.PeerPayload, 2)
	handler := func(_ context.Context, e events.Event) error {
		got <- e.Payload.(events.PeerPayload)
		return nil
	}
	bus.Subscribe(events.EventPeerConnected, "test", handler)
	bus.Subscribe(events.EventPeerDisconnected, "test", handler)

	h := newHarness(t, &recorder{}, bus)
	conn := h.dial(t, "/login")

	select {
	case p := <-got:
		assert.Equal(t, "login", p.Service)
	case <-time.After(2 * time.Second):
		t.Fatal("connect event not forwarded")
	}

	conn.Close()
	select {
	case p := <-got:
		assert.Equal(t, "login", p.Service)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect event not forwarded")
	}
}

func TestAcceptLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	l := newAcceptLimiter(2)
	l.now = func() time.Time { return now }
	ip := netip.MustParseAddr("10.0.0.1")
	other := netip.MustParseAddr("10.0.0.2")

	assert.True(t, l.allow(ip))
	assert.True(t, l.allow(ip))
	assert.False(t, l.allow(ip))
	assert.True(t, l.allow(other))

	now = now.Add(time.Second)
	assert.True(t, l.allow(ip))

	var disabled *acceptLimiter
	assert.True(t, disabled.allow(ip))
}
