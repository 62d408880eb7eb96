package network

import (
	"sync"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

// Observer receives peer lifecycle and traffic notifications. Any field may
// be nil. Callbacks run on the peer's goroutine and must not block.
type Observer struct {
	Connected    func(p *Peer)
	Disconnected func(p *Peer)
	Received     func(p *Peer, packet []protocol.Message)
	Sent         func(p *Peer, packet []protocol.Message)
}

type observerList struct {
	mu   sync.RWMutex
	list []Observer
}

func (l *observerList) add(o Observer) {
	l.mu.Lock()
	l.list = append(l.list, o)
	l.mu.Unlock()
}

func (l *observerList) each(fn func(o Observer)) {
	l.mu.RLock()
	list := make([]Observer, len(l.list))
	copy(list, l.list)
	l.mu.RUnlock()

	for _, o := range list {
		fn(o)
	}
}

func connectedFn(p *Peer) func(Observer) {
	return func(o Observer) {
		if o.Connected != nil {
			o.Connected(p)
		}
	}
}

func disconnectedFn(p *Peer) func(Observer) {
	return func(o Observer) {
		if o.Disconnected != nil {
			o.Disconnected(p)
		}
	}
}

func receivedFn(p *Peer, packet []protocol.Message) func(Observer) {
	return func(o Observer) {
		if o.Received != nil {
			o.Received(p, packet)
		}
	}
}

func sentFn(p *Peer, packet []protocol.Message) func(Observer) {
	return func(o Observer) {
		if o.Sent != nil {
			o.Sent(p, packet)
		}
	}
}
