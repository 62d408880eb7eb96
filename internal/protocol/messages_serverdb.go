package protocol

import (
	"fmt"
	"net/netip"

	"github.com/google/uuid"
)

// GameServerRegistrationRequest is the first message a game server sends
// to the server database.
type GameServerRegistrationRequest struct {
	ServerID        uint64
	InternalAddress netip.Addr
	Port            uint16
	Region          Symbol
	VersionLock     int64
}

func (m *GameServerRegistrationRequest) Symbol() Symbol { return SymbolGameServerRegistrationRequest }

func (m *GameServerRegistrationRequest) Encode(w *Writer) error {
	w.WriteUint64(m.ServerID).
		WriteIPv4BE(m.InternalAddress).
		WriteUint16(m.Port).
		WriteUint16(0).
		WriteSymbol(m.Region).
		WriteInt64(m.VersionLock)
	return nil
}

func (m *GameServerRegistrationRequest) Decode(r *Reader) error {
	m.ServerID = r.Uint64()
	m.InternalAddress = r.IPv4BE()
	m.Port = r.Uint16()
	r.Uint16()
	m.Region = r.Symbol()
	m.VersionLock = r.Int64()
	return r.Err()
}

func (m *GameServerRegistrationRequest) String() string {
	return fmt.Sprintf("GameServerRegistrationRequest(server_id=%d, address=%s:%d, region=%s, version_lock=%d)",
		m.ServerID, m.InternalAddress, m.Port, m.Region, m.VersionLock)
}

// LobbyRegistrationSuccess accepts a game server registration.
type LobbyRegistrationSuccess struct {
	ServerID        uint64
	ExternalAddress netip.Addr
	Unk0            uint64
}

func (m *LobbyRegistrationSuccess) Symbol() Symbol { return SymbolLobbyRegistrationSuccess }

func (m *LobbyRegistrationSuccess) Encode(w *Writer) error {
	w.WriteUint64(m.ServerID).WriteIPv4LE(m.ExternalAddress).WriteUint64(m.Unk0)
	return nil
}

func (m *LobbyRegistrationSuccess) Decode(r *Reader) error {
	m.ServerID = r.Uint64()
	m.ExternalAddress = r.IPv4LE()
	m.Unk0 = r.Uint64()
	return r.Err()
}

// LobbyRegistrationFailure rejects a game server registration.
type LobbyRegistrationFailure struct {
	Result RegistrationFailureCode
}

func (m *LobbyRegistrationFailure) Symbol() Symbol { return SymbolLobbyRegistrationFailure }

func (m *LobbyRegistrationFailure) Encode(w *Writer) error {
	w.WriteUint8(uint8(m.Result))
	return nil
}

func (m *LobbyRegistrationFailure) Decode(r *Reader) error {
	m.Result = RegistrationFailureCode(r.Uint8())
	return r.Err()
}

// DefaultEntrantFlags is the flag value observed for entrants.
const DefaultEntrantFlags uint64 = 0x0044BB8000

// EntrantDescriptor describes a player expected in a new session.
type EntrantDescriptor struct {
	Unk0     uuid.UUID
	PlayerID XPlatformID
	Flags    uint64
}

// GameServerStartSession tells a game server to start a session.
type GameServerStartSession struct {
	SessionID   uuid.UUID
	Channel     uuid.UUID
	PlayerLimit uint8
	LobbyType   LobbyType
	Settings    SessionSettings
	Entrants    []EntrantDescriptor
}

func (m *GameServerStartSession) Symbol() Symbol { return SymbolGameServerStartSession }

func (m *GameServerStartSession) Encode(w *Writer) error {
	if len(m.Entrants) > 0xFF {
		return fmt.Errorf("too many entrants: %d", len(m.Entrants))
	}
	w.WriteGUID(m.SessionID).
		WriteGUID(m.Channel).
		WriteUint8(m.PlayerLimit).
		WriteUint8(uint8(len(m.Entrants))).
		WriteUint8(uint8(m.LobbyType)).
		WriteUint8(0)
	if err := w.WriteJSON(m.Settings, JSONPlain); err != nil {
		return err
	}
	for _, e := range m.Entrants {
		w.WriteGUID(e.Unk0).WriteXPlatformID(e.PlayerID).WriteUint64(e.Flags)
	}
	return nil
}

func (m *GameServerStartSession) Decode(r *Reader) error {
	m.SessionID = r.GUID()
	m.Channel = r.GUID()
	m.PlayerLimit = r.Uint8()
	count := r.Uint8()
	m.LobbyType = LobbyType(r.Uint8())
	r.Uint8()
	r.JSON(&m.Settings, JSONPlain)
	if r.Err() != nil {
		return r.Err()
	}
	m.Entrants = make([]EntrantDescriptor, 0, count)
	for i := 0; i < int(count); i++ {
		m.Entrants = append(m.Entrants, EntrantDescriptor{
			Unk0:     r.GUID(),
			PlayerID: r.XPlatformID(),
			Flags:    r.Uint64(),
		})
	}
	return r.Err()
}

func (m *GameServerStartSession) String() string {
	return fmt.Sprintf("GameServerStartSession(session=%s, channel=%s, player_limit=%d, lobby_type=%s, entrants=%d)",
		m.SessionID, m.Channel, m.PlayerLimit, m.LobbyType, len(m.Entrants))
}

// gameServerSignal is a game server notification with no content.
type gameServerSignal struct {
	Unused uint8
}

func (m *gameServerSignal) Encode(w *Writer) error {
	w.WriteUint8(m.Unused)
	return nil
}

func (m *gameServerSignal) Decode(r *Reader) error {
	m.Unused = r.Uint8()
	return r.Err()
}

// GameServerSessionStarted reports that a session has started.
type GameServerSessionStarted struct{ gameServerSignal }

func (m *GameServerSessionStarted) Symbol() Symbol { return SymbolGameServerSessionStarted }

// GameServerEndSession reports that a session has ended.
type GameServerEndSession struct{ gameServerSignal }

func (m *GameServerEndSession) Symbol() Symbol { return SymbolGameServerEndSession }

// GameServerPlayersLocked reports that the session accepts no new players.
type GameServerPlayersLocked struct{ gameServerSignal }

func (m *GameServerPlayersLocked) Symbol() Symbol { return SymbolGameServerPlayersLocked }

// GameServerPlayersUnlocked reports that the session accepts players again.
type GameServerPlayersUnlocked struct{ gameServerSignal }

func (m *GameServerPlayersUnlocked) Symbol() Symbol { return SymbolGameServerPlayersUnlocked }

func readGUIDs(r *Reader) []uuid.UUID {
	if r.Err() != nil {
		return nil
	}
	if rem := r.Remaining(); rem%16 != 0 {
		r.Fail(fmt.Errorf("player session list of %d bytes is not a multiple of 16", rem))
		return nil
	}
	out := make([]uuid.UUID, 0, r.Remaining()/16)
	for r.Remaining() > 0 {
		out = append(out, r.GUID())
	}
	return out
}

func writeGUIDs(w *Writer, ids []uuid.UUID) {
	for _, id := range ids {
		w.WriteGUID(id)
	}
}

// GameServerAcceptPlayers asks the relay to validate joining players.
type GameServerAcceptPlayers struct {
	PlayerSessions []uuid.UUID
}

func (m *GameServerAcceptPlayers) Symbol() Symbol { return SymbolGameServerAcceptPlayers }

func (m *GameServerAcceptPlayers) Encode(w *Writer) error {
	writeGUIDs(w, m.PlayerSessions)
	return nil
}

func (m *GameServerAcceptPlayers) Decode(r *Reader) error {
	m.PlayerSessions = readGUIDs(r)
	return r.Err()
}

// GameServerPlayersAccepted lists the player sessions the relay accepted.
type GameServerPlayersAccepted struct {
	Unk0           uint8
	PlayerSessions []uuid.UUID
}

func (m *GameServerPlayersAccepted) Symbol() Symbol { return SymbolGameServerPlayersAccepted }

func (m *GameServerPlayersAccepted) Encode(w *Writer) error {
	w.WriteUint8(m.Unk0)
	writeGUIDs(w, m.PlayerSessions)
	return nil
}

func (m *GameServerPlayersAccepted) Decode(r *Reader) error {
	m.Unk0 = r.Uint8()
	m.PlayerSessions = readGUIDs(r)
	return r.Err()
}

// GameServerPlayersRejected lists the player sessions the relay rejected.
type GameServerPlayersRejected struct {
	ErrorCode      PlayerRejectionCode
	PlayerSessions []uuid.UUID
}

func (m *GameServerPlayersRejected) Symbol() Symbol { return SymbolGameServerPlayersRejected }

func (m *GameServerPlayersRejected) Encode(w *Writer) error {
	w.WriteUint8(uint8(m.ErrorCode))
	writeGUIDs(w, m.PlayerSessions)
	return nil
}

func (m *GameServerPlayersRejected) Decode(r *Reader) error {
	m.ErrorCode = PlayerRejectionCode(r.Uint8())
	m.PlayerSessions = readGUIDs(r)
	return r.Err()
}

// GameServerRemovePlayer reports that a player left the session.
type GameServerRemovePlayer struct {
	PlayerSession uuid.UUID
}

func (m *GameServerRemovePlayer) Symbol() Symbol { return SymbolGameServerRemovePlayer }

func (m *GameServerRemovePlayer) Encode(w *Writer) error {
	w.WriteGUID(m.PlayerSession)
	return nil
}

func (m *GameServerRemovePlayer) Decode(r *Reader) error {
	m.PlayerSession = r.GUID()
	return r.Err()
}

// GameServerChallengeRequest is an opaque challenge from a game server.
type GameServerChallengeRequest struct {
	Payload []byte
}

func (m *GameServerChallengeRequest) Symbol() Symbol { return SymbolGameServerChallengeRequest }

func (m *GameServerChallengeRequest) Encode(w *Writer) error {
	w.WriteBytes(m.Payload)
	return nil
}

func (m *GameServerChallengeRequest) Decode(r *Reader) error {
	m.Payload = r.Rest()
	return r.Err()
}

// GameServerChallengeResponse answers GameServerChallengeRequest.
type GameServerChallengeResponse struct {
	Payload []byte
}

func (m *GameServerChallengeResponse) Symbol() Symbol { return SymbolGameServerChallengeResponse }

func (m *GameServerChallengeResponse) Encode(w *Writer) error {
	w.WriteBytes(m.Payload)
	return nil
}

func (m *GameServerChallengeResponse) Decode(r *Reader) error {
	m.Payload = r.Rest()
	return r.Err()
}
