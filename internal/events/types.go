// Package events defines the event types published on the relay's event bus.
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Peer lifecycle events
	EventPeerConnected    EventType = "peer_connected"
	EventPeerDisconnected EventType = "peer_disconnected"
	EventPacketReceived   EventType = "packet_received"
	EventPacketSent       EventType = "packet_sent"

	// Login events
	EventUserAuthenticated EventType = "user_authenticated"
	EventLoginRejected     EventType = "login_rejected"

	// Game server events
	EventServerRegistered   EventType = "server_registered"
	EventServerUnregistered EventType = "server_unregistered"
	EventLobbyStarted       EventType = "lobby_started"
	EventLobbyEnded         EventType = "lobby_ended"

	// Matchmaking events
	EventMatchSucceeded EventType = "match_succeeded"
	EventMatchFailed    EventType = "match_failed"

	// Moderation events
	EventAccountBanned   EventType = "account_banned"
	EventAccountUnbanned EventType = "account_unbanned"

	// System events
	EventConfigChanged   EventType = "config_changed"
	EventPublicIPChanged EventType = "public_ip_changed"
	EventHealthWarning   EventType = "health_warning"
	EventHeartbeat       EventType = "heartbeat"
	EventShutdown        EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// PeerPayload describes a peer connecting or disconnecting.
type PeerPayload struct {
	Service string
	PeerID  uint64
	Remote  string
	UserID  string
}

// PacketPayload describes a packet moving through a peer.
type PacketPayload struct {
	Service  string
	PeerID   uint64
	Messages []string
}

// LoginPayload describes the outcome of a login request.
type LoginPayload struct {
	UserID      string
	DisplayName string
	Reason      string
}

// GameServerPayload describes a registered game server.
type GameServerPayload struct {
	ServerID    uint64
	Address     string
	Port        uint16
	Region      int64
	VersionLock int64
}

// LobbyPayload describes a lobby session on a game server.
type LobbyPayload struct {
	ServerID  uint64
	SessionID string
	LobbyType string
}

// MatchPayload describes the outcome of a matchmaking attempt.
type MatchPayload struct {
	UserID    string
	Request   string
	ServerID  uint64
	SessionID string
	Code      string
	Message   string
}

// AccountPayload is emitted on moderation actions.
type AccountPayload struct {
	UserID string
	Until  int64
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}

// PublicIPPayload is emitted when the detected public address changes.
type PublicIPPayload struct {
	Old string
	New string
}

// HealthPayload describes a failed or degraded health check.
type HealthPayload struct {
	Check   string
	Level   string
	Message string
}

// StatsPayload is a point-in-time summary of the relay.
type StatsPayload struct {
	UptimeSec     int64          `json:"uptime_sec"`
	Peers         map[string]int `json:"peers"`
	GameServers   int            `json:"game_servers"`
	Sessions      int            `json:"sessions"`
	Players       int            `json:"players"`
	LoginSessions int            `json:"login_sessions"`
	PublicIP      string         `json:"public_ip,omitempty"`
}
