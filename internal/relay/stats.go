package relay

import (
	"sort"
	"time"

	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/network"
)

// PeerInfo describes one connected peer for the API and console.
type PeerInfo struct {
	ID           uint64    `json:"id"`
	Service      string    `json:"service"`
	RemoteAddr   string    `json:"remote_addr"`
	UserID       string    `json:"user_id,omitempty"`
	DisplayName  string    `json:"display_name,omitempty"`
	Session      string    `json:"session"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

func describePeer(p *network.Peer) PeerInfo {
	info := PeerInfo{
		ID:           p.ID(),
		Service:      p.Service().Name(),
		RemoteAddr:   p.RemoteAddr().String(),
		Session:      p.Session().Kind().String(),
		ConnectedAt:  p.ConnectedAt(),
		LastActivity: p.LastActivity(),
	}
	if id, ok := p.UserID(); ok {
		info.UserID = id.String()
	}
	if name, ok := p.DisplayName(); ok {
		info.DisplayName = name
	}
	return info
}

// Peers lists connected peers across every service, or only the named one.
func (r *Relay) Peers(service string) []PeerInfo {
	var out []PeerInfo
	for _, svc := range r.Services() {
		if service != "" && svc.Name() != service {
			continue
		}
		for _, p := range svc.Peers() {
			out = append(out, describePeer(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Uptime returns how long the relay has existed.
func (r *Relay) Uptime() time.Duration {
	return time.Since(r.startedAt)
}

// Stats snapshots peer and game server counts.
func (r *Relay) Stats() events.StatsPayload {
	stats := events.StatsPayload{
		UptimeSec:     int64(r.Uptime().Seconds()),
		Peers:         make(map[string]int, len(r.services)),
		GameServers:   r.registry.Count(),
		Sessions:      r.registry.SessionCount(),
		Players:       r.registry.PlayerCount(),
		LoginSessions: r.sessions.Len(),
	}
	for name, svc := range r.services {
		stats.Peers[name] = svc.Count()
	}
	if ip := r.registry.PublicIP(); ip.IsValid() {
		stats.PublicIP = ip.String()
	}
	return stats
}

// LogStats writes one peer statistics line.
func (r *Relay) LogStats() {
	stats := r.Stats()
	ev := r.logger.Info().
		Str("elapsed", r.Uptime().Truncate(time.Second).String()).
		Int("game_servers", stats.GameServers).
		Int("sessions", stats.Sessions).
		Int("players", stats.Players)
	for _, name := range ServiceNames {
		ev = ev.Int(name, stats.Peers[name])
	}
	ev.Msg("peer stats")
}
