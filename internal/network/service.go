package network

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/session"
)

// Handler processes decoded packets for one service. HandlePacket runs on
// the peer's receive goroutine, so packets from one peer are handled in
// order.
type Handler interface {
	HandlePacket(ctx context.Context, peer *Peer, packet []protocol.Message) error
}

// ConnectHandler is implemented by handlers that need to know when a peer
// has been accepted.
type ConnectHandler interface {
	HandleConnect(ctx context.Context, peer *Peer)
}

// DisconnectHandler is implemented by handlers that need to release state
// when a peer goes away.
type DisconnectHandler interface {
	HandleDisconnect(ctx context.Context, peer *Peer)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, peer *Peer, packet []protocol.Message) error

func (f HandlerFunc) HandlePacket(ctx context.Context, peer *Peer, packet []protocol.Message) error {
	return f(ctx, peer, packet)
}

// RateLimitConfig bounds inbound frames per peer.
type RateLimitConfig struct {
	MessagesPerSecond float64
	Burst             int
}

// ServiceOptions tunes the peers of a service.
type ServiceOptions struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	RateLimit    RateLimitConfig
	Strict       bool
	Registry     *protocol.Registry
}

// DefaultServiceOptions returns the timings used when none are given.
func DefaultServiceOptions() ServiceOptions {
	return ServiceOptions{
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		PingInterval: 54 * time.Second,
		RateLimit: RateLimitConfig{
			MessagesPerSecond: 50,
			Burst:             100,
		},
	}
}

func (o *ServiceOptions) normalize() {
	def := DefaultServiceOptions()
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.ReadTimeout {
		o.PingInterval = o.ReadTimeout * 9 / 10
	}
}

// Service owns the peers connected on one path.
type Service struct {
	name    string
	handler Handler
	codec   *protocol.Codec
	opts    ServiceOptions
	server  *Server
	logger  zerolog.Logger

	observers observerList

	mu     sync.RWMutex
	peers  map[uint64]*Peer
	byAddr map[string]*Peer

	wg sync.WaitGroup
}

// NewService creates a service that dispatches packets to handler.
func NewService(name string, handler Handler, opts ServiceOptions) *Service {
	opts.normalize()
	return &Service{
		name:    name,
		handler: handler,
		codec:   protocol.NewCodec(opts.Registry, opts.Strict),
		opts:    opts,
		logger:  log.With().Str("component", "service").Str("service", name).Logger(),
		peers:   make(map[uint64]*Peer),
		byAddr:  make(map[string]*Peer),
	}
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Codec returns the codec used for the service's peers.
func (s *Service) Codec() *protocol.Codec { return s.codec }

// AddObserver registers an observer for every peer of the service.
func (s *Service) AddObserver(o Observer) {
	s.observers.add(o)
}

// Serve runs a peer on an upgraded connection until it disconnects.
func (s *Service) Serve(ctx context.Context, conn *websocket.Conn, r *http.Request) {
	s.wg.Add(1)
	defer s.wg.Done()

	peer := newPeer(s, conn, r)
	s.add(peer)
	peer.setState(StateOpen)
	peer.logger.Debug().Msg("peer connected")

	peer.notify(connectedFn(peer))
	if h, ok := s.handler.(ConnectHandler); ok {
		h.HandleConnect(ctx, peer)
	}

	go peer.keepalive()

	stop := context.AfterFunc(ctx, peer.Close)
	defer stop()

	err := peer.readLoop(ctx)
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		peer.logger.Debug().Err(err).Msg("receive loop ended")
	}
	s.Disconnect(ctx, peer)
}

func (s *Service) add(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.id] = p
	s.byAddr[p.key] = p
}

// Disconnect closes the peer and removes it from the service. The
// disconnect notification fires once no matter how many paths call it.
func (s *Service) Disconnect(ctx context.Context, p *Peer) {
	p.disconnectOnce.Do(func() {
		p.Close()

		s.mu.Lock()
		delete(s.peers, p.id)
		if s.byAddr[p.key] == p {
			delete(s.byAddr, p.key)
		}
		s.mu.Unlock()

		p.logger.Debug().Msg("peer disconnected")
		p.notify(disconnectedFn(p))
		if h, ok := s.handler.(DisconnectHandler); ok {
			h.HandleDisconnect(ctx, p)
		}
	})
}

// Peer returns the peer with the given id.
func (s *Service) Peer(id uint64) (*Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[id]
	return p, ok
}

// PeerByAddr returns the peer connected from the given ip:port.
func (s *Service) PeerByAddr(key string) (*Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byAddr[key]
	return p, ok
}

// Peers returns a snapshot of the connected peers.
func (s *Service) Peers() []*Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// PeersByUser returns the peers authenticated as userID.
func (s *Service) PeersByUser(userID protocol.XPlatformID) []*Peer {
	var out []*Peer
	for _, p := range s.Peers() {
		if id, ok := p.UserID(); ok && id == userID {
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of connected peers.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// SessionCounts returns how many peers hold each session kind.
func (s *Service) SessionCounts() map[session.Kind]int {
	counts := make(map[session.Kind]int)
	for _, p := range s.Peers() {
		counts[p.Session().Kind()]++
	}
	return counts
}

// Broadcast sends a packet to every open peer.
func (s *Service) Broadcast(ctx context.Context, messages ...protocol.Message) {
	for _, p := range s.Peers() {
		if err := p.Send(ctx, messages...); err != nil {
			p.logger.Warn().Err(err).Msg("failed to broadcast")
		}
	}
}

// CleanStale closes peers that have been silent for longer than timeout.
func (s *Service) CleanStale(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)
	cleaned := 0
	for _, p := range s.Peers() {
		if p.LastActivity().Before(cutoff) {
			p.logger.Warn().Time("last_activity", p.LastActivity()).Msg("closing stale peer")
			p.CloseWithCode(websocket.CloseGoingAway, "idle")
			cleaned++
		}
	}
	return cleaned
}

// CloseAll closes every peer and waits for their receive loops to finish.
func (s *Service) CloseAll(ctx context.Context) error {
	for _, p := range s.Peers() {
		p.CloseWithCode(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
