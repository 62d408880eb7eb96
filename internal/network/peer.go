// Package network implements the websocket transport shared by every relay
// service: peers, the per-path services that own them, and the HTTP server
// that accepts them.
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/session"
)

// ErrNotConnected is returned when sending to a peer that is not open.
var ErrNotConnected = errors.New("peer is not connected")

// PeerState is the lifecycle state of a peer.
type PeerState int32

const (
	StateConnecting PeerState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s PeerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s PeerState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

var peerIDs atomic.Uint64

// Peer is one websocket connection bound to a service.
type Peer struct {
	id      uint64
	service *Service
	conn    *websocket.Conn
	remote  netip.AddrPort
	key     string
	query   url.Values
	logger  zerolog.Logger
	limiter *rate.Limiter

	state atomic.Int32

	// sendMu serializes writes; gorilla allows one concurrent writer.
	sendMu sync.Mutex

	mu           sync.RWMutex
	userID       *protocol.XPlatformID
	displayName  *string
	session      session.Data
	connectedAt  time.Time
	lastActivity time.Time

	observers      observerList
	closeOnce      sync.Once
	disconnectOnce sync.Once
	done           chan struct{}
}

func newPeer(svc *Service, conn *websocket.Conn, r *http.Request) *Peer {
	remote, _ := netip.ParseAddrPort(r.RemoteAddr)
	key := r.RemoteAddr
	if remote.IsValid() {
		remote = netip.AddrPortFrom(remote.Addr().Unmap(), remote.Port())
		key = remote.String()
	}

	now := time.Now()
	p := &Peer{
		id:           peerIDs.Add(1),
		service:      svc,
		conn:         conn,
		remote:       remote,
		key:          key,
		query:        r.URL.Query(),
		connectedAt:  now,
		lastActivity: now,
		done:         make(chan struct{}),
	}
	p.logger = log.With().
		Str("component", "peer").
		Str("service", svc.Name()).
		Str("remote", key).
		Uint64("peer", p.id).
		Logger()

	limits := svc.opts.RateLimit
	if limits.MessagesPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(limits.MessagesPerSecond), limits.Burst)
	}
	return p
}

// ID returns the process-unique peer id.
func (p *Peer) ID() uint64 { return p.id }

// Service returns the service that owns the peer.
func (p *Peer) Service() *Service { return p.service }

// Logger returns the peer's logger, tagged with service and remote address.
func (p *Peer) Logger() *zerolog.Logger { return &p.logger }

// RemoteAddr returns the remote ip:port. It is invalid if the request
// address could not be parsed.
func (p *Peer) RemoteAddr() netip.AddrPort { return p.remote }

// Key returns the address index key of the peer.
func (p *Peer) Key() string { return p.key }

// Query returns a request query parameter, or "" when absent.
func (p *Peer) Query(name string) string { return p.query.Get(name) }

// State returns the current lifecycle state.
func (p *Peer) State() PeerState { return PeerState(p.state.Load()) }

// IsOpen reports whether the peer can send and receive.
func (p *Peer) IsOpen() bool { return p.State() == StateOpen }

func (p *Peer) setState(s PeerState) { p.state.Store(int32(s)) }

// UserID returns the authenticated user, if any.
func (p *Peer) UserID() (protocol.XPlatformID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.userID == nil {
		return protocol.XPlatformID{}, false
	}
	return *p.userID, true
}

// DisplayName returns the authenticated display name, if any.
func (p *Peer) DisplayName() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.displayName == nil {
		return "", false
	}
	return *p.displayName, true
}

// Authenticate records the user and display name for the connection.
func (p *Peer) Authenticate(userID protocol.XPlatformID, displayName string) {
	p.mu.Lock()
	p.userID = &userID
	p.displayName = &displayName
	p.mu.Unlock()

	p.logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("user", userID.String())
	})
}

// Session returns the attached session payload.
func (p *Peer) Session() session.Data {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// SetSession replaces the attached session payload.
func (p *Peer) SetSession(d session.Data) {
	p.mu.Lock()
	p.session = d
	p.mu.Unlock()
}

// TakeSession detaches and returns the session payload, leaving None. Only
// one of several concurrent callers receives a non-None value.
func (p *Peer) TakeSession() session.Data {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.session
	p.session = session.None()
	return d
}

// ConnectedAt returns when the peer was accepted.
func (p *Peer) ConnectedAt() time.Time { return p.connectedAt }

// LastActivity returns the time of the last frame read or written.
func (p *Peer) LastActivity() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastActivity
}

func (p *Peer) touch() {
	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()
}

// AddObserver registers an observer for this peer only.
func (p *Peer) AddObserver(o Observer) {
	p.observers.add(o)
}

// notify runs fn over peer, service and server observers in that order.
func (p *Peer) notify(fn func(Observer)) {
	p.observers.each(fn)
	p.service.observers.each(fn)
	if srv := p.service.server; srv != nil {
		srv.observers.each(fn)
		fn(srv.busObserver)
	}
}

// Send encodes messages into one packet and writes it. Concurrent sends are
// serialized and each call returns once its frame is written.
func (p *Peer) Send(ctx context.Context, messages ...protocol.Message) error {
	if !p.IsOpen() {
		return ErrNotConnected
	}

	data, err := p.service.codec.EncodePacket(messages...)
	if err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}

	p.sendMu.Lock()
	if !p.IsOpen() {
		p.sendMu.Unlock()
		return ErrNotConnected
	}
	deadline := time.Now().Add(p.service.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	p.conn.SetWriteDeadline(deadline)
	err = p.conn.WriteMessage(websocket.BinaryMessage, data)
	p.sendMu.Unlock()

	if err != nil {
		p.logger.Debug().Err(err).Msg("write failed, closing peer")
		p.closeConn()
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	p.touch()
	p.notify(sentFn(p, messages))
	return nil
}

// CloseWithCode sends a websocket close frame and closes the connection.
func (p *Peer) CloseWithCode(code int, reason string) {
	if p.State() == StateOpen {
		p.setState(StateClosing)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			p.logger.Debug().Err(err).Msg("failed to write close frame")
		}
	}
	p.closeConn()
}

// Close closes the connection with a normal closure status.
func (p *Peer) Close() {
	p.CloseWithCode(websocket.CloseNormalClosure, "")
}

func (p *Peer) closeConn() {
	p.closeOnce.Do(func() {
		p.setState(StateClosing)
		close(p.done)
		p.conn.Close()
		p.setState(StateClosed)
	})
}

// keepalive pings the remote end until the peer closes.
func (p *Peer) keepalive() {
	ticker := time.NewTicker(p.service.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(p.service.opts.WriteTimeout)
			if err := p.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				p.logger.Debug().Err(err).Msg("ping failed")
				p.closeConn()
				return
			}
		}
	}
}

// readLoop receives frames until the connection fails. Frames are decoded
// and dispatched one at a time.
func (p *Peer) readLoop(ctx context.Context) error {
	opts := p.service.opts
	p.conn.SetReadLimit(protocol.MaxPacketSize)
	p.conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		return nil
	})

	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			return err
		}
		p.conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		p.touch()

		if kind != websocket.BinaryMessage {
			p.logger.Debug().Int("type", kind).Msg("ignoring non-binary frame")
			continue
		}

		if p.limiter != nil && !p.limiter.Allow() {
			p.logger.Warn().Msg("rate limit exceeded")
			p.CloseWithCode(websocket.ClosePolicyViolation, "rate limit exceeded")
			return fmt.Errorf("rate limit exceeded")
		}

		packet, err := p.service.codec.DecodePacket(data)
		if err != nil {
			p.logger.Warn().Err(err).Msg("malformed packet")
			p.CloseWithCode(websocket.CloseProtocolError, "malformed packet")
			return err
		}

		p.notify(receivedFn(p, packet))

		if err := p.service.handler.HandlePacket(ctx, p, packet); err != nil {
			if errors.Is(err, ErrNotConnected) {
				return err
			}
			p.logger.Error().Err(err).Msg("failed to handle packet")
		}
	}
}
