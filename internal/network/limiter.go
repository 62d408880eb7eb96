package network

import (
	"net/netip"
	"sync"
	"time"
)

// acceptLimiter caps new connections per source IP within a rolling
// one-second window.
type acceptLimiter struct {
	mu        sync.Mutex
	buckets   map[netip.Addr]*acceptBucket
	maxPerSec int
	lastSweep time.Time
	now       func() time.Time
}

type acceptBucket struct {
	count       int
	windowStart time.Time
}

func newAcceptLimiter(maxPerSec int) *acceptLimiter {
	return &acceptLimiter{
		buckets:   make(map[netip.Addr]*acceptBucket),
		maxPerSec: maxPerSec,
		now:       time.Now,
	}
}

// allow reports whether ip may open another connection. A limit of zero or
// less disables the check.
func (l *acceptLimiter) allow(ip netip.Addr) bool {
	if l == nil || l.maxPerSec <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= time.Minute {
		for addr, b := range l.buckets {
			if now.Sub(b.windowStart) >= time.Second {
				delete(l.buckets, addr)
			}
		}
		l.lastSweep = now
	}

	b, exists := l.buckets[ip]
	if !exists || now.Sub(b.windowStart) >= time.Second {
		l.buckets[ip] = &acceptBucket{count: 1, windowStart: now}
		return true
	}

	b.count++
	return b.count <= l.maxPerSec
}
