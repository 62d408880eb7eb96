package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/protocol"
)

// AccessChecker decides whether a remote address may connect.
type AccessChecker interface {
	Authorized(ip netip.Addr) bool
}

// ServerOptions configures the HTTP listener.
type ServerOptions struct {
	Address              string
	TLSCertFile          string
	TLSKeyFile           string
	ConnectionsPerSecond int
	CheckOrigin          func(r *http.Request) bool
}

// Server accepts websocket connections on one HTTP listener and routes each
// path to its service. Other paths may be mounted for plain HTTP handlers.
type Server struct {
	opts     ServerOptions
	eventBus *events.EventBus
	upgrader websocket.Upgrader
	limiter  *acceptLimiter
	logger   zerolog.Logger

	mu       sync.RWMutex
	services map[string]*Service
	mounts   map[string]http.Handler
	acl      AccessChecker

	observers   observerList
	busObserver Observer

	ctx        context.Context
	cancel     context.CancelFunc
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a server. Peer notifications are forwarded onto
// eventBus after every registered observer has run; eventBus may be nil.
func NewServer(opts ServerOptions, eventBus *events.EventBus) *Server {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:     opts,
		eventBus: eventBus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		limiter:  newAcceptLimiter(opts.ConnectionsPerSecond),
		logger:   log.With().Str("component", "server").Logger(),
		services: make(map[string]*Service),
		mounts:   make(map[string]http.Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.busObserver = s.forwardToBus()
	return s
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// Handle routes websocket connections on path to svc.
func (s *Server) Handle(path string, svc *Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc.server = s
	s.services[cleanPath(path)] = svc
	s.logger.Debug().Str("path", cleanPath(path)).Str("service", svc.Name()).Msg("service registered")
}

// Mount routes every request under prefix to h.
func (s *Server) Mount(prefix string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts[cleanPath(prefix)] = h
}

// SetAccessChecker installs the ACL consulted for every request.
func (s *Server) SetAccessChecker(acl AccessChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acl = acl
}

// AddObserver registers an observer for every peer on every service.
func (s *Server) AddObserver(o Observer) {
	s.observers.add(o)
}

// Services returns the registered services keyed by path.
func (s *Server) Services() map[string]*Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Service, len(s.services))
	for k, v := range s.services {
		out[k] = v
	}
	return out
}

// Paths returns the registered service paths in order.
func (s *Server) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.services))
	for k := range s.services {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Server) route(path string) (*Service, http.Handler) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path = cleanPath(path)
	if svc, ok := s.services[path]; ok {
		return svc, nil
	}
	for prefix, h := range s.mounts {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return nil, h
		}
	}
	return nil, nil
}

func (s *Server) authorized(ip netip.Addr) bool {
	s.mu.RLock()
	acl := s.acl
	s.mu.RUnlock()
	return acl == nil || acl.Authorized(ip)
}

func remoteIP(r *http.Request) netip.Addr {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr.Unmap()
}

// ServeHTTP applies the ACL, then upgrades service paths or hands the
// request to a mounted handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)
	if !s.authorized(ip) {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("rejected by access control list")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	svc, mounted := s.route(r.URL.Path)
	if svc == nil {
		if mounted != nil {
			mounted.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}

	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}

	if !s.limiter.allow(ip) {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("connection rate exceeded")
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	svc.Serve(s.ctx, conn, r)
}

// Start listens on the configured address and serves until ctx is done or
// Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Strs("paths", s.Paths()).
		Msg("relay server listening")

	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(shutdownCtx)
	}()

	if s.opts.TLSCertFile != "" && s.opts.TLSKeyFile != "" {
		err = srv.ServeTLS(ln, s.opts.TLSCertFile, s.opts.TLSKeyFile)
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		s.logger.Info().Msg("relay server stopped")
		return nil
	}
	return err
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting requests and closes every peer.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
		}
	}
	for path, svc := range s.Services() {
		if err := svc.CloseAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close peers on %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) forwardToBus() Observer {
	if s.eventBus == nil {
		return Observer{}
	}

	peerEvent := func(t events.EventType, p *Peer) events.Event {
		payload := events.PeerPayload{
			Service: p.service.Name(),
			PeerID:  p.ID(),
			Remote:  p.Key(),
		}
		if id, ok := p.UserID(); ok {
			payload.UserID = id.String()
		}
		return events.Event{Type: t, Source: "network", Payload: payload}
	}

	packetEvent := func(t events.EventType, p *Peer, packet []protocol.Message) {
		if s.eventBus.HandlerCount(t) == 0 {
			return
		}
		names := make([]string, len(packet))
		for i, m := range packet {
			names[i] = p.service.codec.Registry().NameOf(m)
		}
		s.eventBus.Emit(context.Background(), events.Event{
			Type:   t,
			Source: "network",
			Payload: events.PacketPayload{
				Service:  p.service.Name(),
				PeerID:   p.ID(),
				Messages: names,
			},
		})
	}

	return Observer{
		Connected: func(p *Peer) {
			s.eventBus.Emit(context.Background(), peerEvent(events.EventPeerConnected, p))
		},
		Disconnected: func(p *Peer) {
			s.eventBus.Emit(context.Background(), peerEvent(events.EventPeerDisconnected, p))
		},
		Received: func(p *Peer, packet []protocol.Message) {
			packetEvent(events.EventPacketReceived, p, packet)
		},
		Sent: func(p *Peer, packet []protocol.Message) {
			packetEvent(events.EventPacketSent, p, packet)
		},
	}
}
