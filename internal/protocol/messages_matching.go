package protocol

import (
	"fmt"
	"net/netip"

	"github.com/google/uuid"
)

// SessionSettings is the settings document of a lobby session. It is sent
// by clients with lobby requests and forwarded to game servers.
type SessionSettings struct {
	AppID    *string `json:"appid,omitempty"`
	GameType *int64  `json:"gametype,omitempty"`
	Level    *int64  `json:"level,omitempty"`
	Extras   Extras  `json:"-"`
}

type sessionSettings SessionSettings

func (s SessionSettings) MarshalJSON() ([]byte, error) {
	return marshalWithExtras(sessionSettings(s), s.Extras)
}

func (s *SessionSettings) UnmarshalJSON(data []byte) error {
	var known sessionSettings
	extras, err := unmarshalWithExtras(data, &known)
	if err != nil {
		return err
	}
	*s = SessionSettings(known)
	s.Extras = extras
	return nil
}

// readTeamIndex reads the optional trailing team index.
func readTeamIndex(r *Reader) TeamIndex {
	if r.Err() == nil && r.Remaining() >= 2 {
		return TeamIndex(r.Int16())
	}
	return TeamAny
}

func writeTeamIndex(w *Writer, team TeamIndex) {
	if team != TeamAny {
		w.WriteInt16(int16(team))
	}
}

// FindServerRegionInfo is sent by clients looking up available regions.
type FindServerRegionInfo struct {
	Unk0 uint16
	Unk1 uint16
	Unk2 uint16
	Info RawJSON
}

func (m *FindServerRegionInfo) Symbol() Symbol { return SymbolFindServerRegionInfo }

func (m *FindServerRegionInfo) Encode(w *Writer) error {
	w.WriteUint16(m.Unk0).WriteUint16(m.Unk1).WriteUint16(m.Unk2)
	return w.WriteJSON(m.Info, JSONPlainUnterminated)
}

func (m *FindServerRegionInfo) Decode(r *Reader) error {
	m.Unk0 = r.Uint16()
	m.Unk1 = r.Uint16()
	m.Unk2 = r.Uint16()
	r.JSON(&m.Info, JSONPlainUnterminated)
	return r.Err()
}

// LobbyCreateSessionRequestv9 asks for a new lobby session on a game server.
type LobbyCreateSessionRequestv9 struct {
	Unk0            uint64
	VersionLock     int64
	GameType        Symbol
	Level           Symbol
	Platform        Symbol
	Session         uuid.UUID
	Unk1            uint64
	LobbyType       LobbyType
	Unk2            uint32
	Channel         uuid.UUID
	SessionSettings SessionSettings
	UserID          XPlatformID
	TeamIndex       TeamIndex
}

func (m *LobbyCreateSessionRequestv9) Symbol() Symbol { return SymbolLobbyCreateSessionRequestv9 }

func (m *LobbyCreateSessionRequestv9) Encode(w *Writer) error {
	w.WriteUint64(m.Unk0).
		WriteInt64(m.VersionLock).
		WriteSymbol(m.GameType).
		WriteSymbol(m.Level).
		WriteSymbol(m.Platform).
		WriteGUID(m.Session).
		WriteUint64(m.Unk1).
		WriteUint32(uint32(m.LobbyType)).
		WriteUint32(m.Unk2).
		WriteGUID(m.Channel)
	if err := w.WriteJSON(m.SessionSettings, JSONPlain); err != nil {
		return err
	}
	w.WriteXPlatformID(m.UserID)
	writeTeamIndex(w, m.TeamIndex)
	return nil
}

func (m *LobbyCreateSessionRequestv9) Decode(r *Reader) error {
	m.Unk0 = r.Uint64()
	m.VersionLock = r.Int64()
	m.GameType = r.Symbol()
	m.Level = r.Symbol()
	m.Platform = r.Symbol()
	m.Session = r.GUID()
	m.Unk1 = r.Uint64()
	m.LobbyType = LobbyType(r.Uint32())
	m.Unk2 = r.Uint32()
	m.Channel = r.GUID()
	r.JSON(&m.SessionSettings, JSONPlain)
	m.UserID = r.XPlatformID()
	m.TeamIndex = readTeamIndex(r)
	return r.Err()
}

func (m *LobbyCreateSessionRequestv9) String() string {
	return fmt.Sprintf("LobbyCreateSessionRequestv9(user_id=%s, game_type=%s, level=%s, lobby_type=%s, channel=%s, team=%s)",
		m.UserID, m.GameType, m.Level, m.LobbyType, m.Channel, m.TeamIndex)
}

// LobbyFindSessionRequestv11 asks to be matched into an existing session.
type LobbyFindSessionRequestv11 struct {
	VersionLock     uint64
	GameType        Symbol
	Level           Symbol
	Platform        Symbol
	Session         uuid.UUID
	Unk1            uint64
	Unk2            Uint128
	Channel         uuid.UUID
	SessionSettings SessionSettings
	UserID          XPlatformID
	TeamIndex       TeamIndex
}

func (m *LobbyFindSessionRequestv11) Symbol() Symbol { return SymbolLobbyFindSessionRequestv11 }

func (m *LobbyFindSessionRequestv11) Encode(w *Writer) error {
	w.WriteUint64(m.VersionLock).
		WriteSymbol(m.GameType).
		WriteSymbol(m.Level).
		WriteSymbol(m.Platform).
		WriteGUID(m.Session).
		WriteUint64(m.Unk1).
		WriteUint128(m.Unk2).
		WriteGUID(m.Channel)
	if err := w.WriteJSON(m.SessionSettings, JSONPlain); err != nil {
		return err
	}
	w.WriteXPlatformID(m.UserID)
	writeTeamIndex(w, m.TeamIndex)
	return nil
}

func (m *LobbyFindSessionRequestv11) Decode(r *Reader) error {
	m.VersionLock = r.Uint64()
	m.GameType = r.Symbol()
	m.Level = r.Symbol()
	m.Platform = r.Symbol()
	m.Session = r.GUID()
	m.Unk1 = r.Uint64()
	m.Unk2 = r.Uint128()
	m.Channel = r.GUID()
	r.JSON(&m.SessionSettings, JSONPlain)
	m.UserID = r.XPlatformID()
	m.TeamIndex = readTeamIndex(r)
	return r.Err()
}

func (m *LobbyFindSessionRequestv11) String() string {
	return fmt.Sprintf("LobbyFindSessionRequestv11(user_id=%s, game_type=%s, level=%s, channel=%s, team=%s)",
		m.UserID, m.GameType, m.Level, m.Channel, m.TeamIndex)
}

// LobbyJoinSessionRequestv7 asks to join a specific lobby.
type LobbyJoinSessionRequestv7 struct {
	LobbyID         uuid.UUID
	VersionLock     int64
	Platform        Symbol
	Session         uuid.UUID
	Unk1            uint64
	Unk2            uint64
	SessionSettings SessionSettings
	UserID          XPlatformID
	TeamIndex       TeamIndex
}

func (m *LobbyJoinSessionRequestv7) Symbol() Symbol { return SymbolLobbyJoinSessionRequestv7 }

func (m *LobbyJoinSessionRequestv7) Encode(w *Writer) error {
	w.WriteGUID(m.LobbyID).
		WriteInt64(m.VersionLock).
		WriteSymbol(m.Platform).
		WriteGUID(m.Session).
		WriteUint64(m.Unk1).
		WriteUint64(m.Unk2)
	if err := w.WriteJSON(m.SessionSettings, JSONPlain); err != nil {
		return err
	}
	w.WriteXPlatformID(m.UserID)
	writeTeamIndex(w, m.TeamIndex)
	return nil
}

func (m *LobbyJoinSessionRequestv7) Decode(r *Reader) error {
	m.LobbyID = r.GUID()
	m.VersionLock = r.Int64()
	m.Platform = r.Symbol()
	m.Session = r.GUID()
	m.Unk1 = r.Uint64()
	m.Unk2 = r.Uint64()
	r.JSON(&m.SessionSettings, JSONPlain)
	m.UserID = r.XPlatformID()
	m.TeamIndex = readTeamIndex(r)
	return r.Err()
}

func (m *LobbyJoinSessionRequestv7) String() string {
	return fmt.Sprintf("LobbyJoinSessionRequestv7(user_id=%s, lobby_id=%s, team=%s)", m.UserID, m.LobbyID, m.TeamIndex)
}

// LobbyMatchmakerStatusRequest polls the matchmaker status.
type LobbyMatchmakerStatusRequest struct {
	Unk0 uint8
}

func (m *LobbyMatchmakerStatusRequest) Symbol() Symbol { return SymbolLobbyMatchmakerStatusRequest }

func (m *LobbyMatchmakerStatusRequest) Encode(w *Writer) error {
	w.WriteUint8(m.Unk0)
	return nil
}

func (m *LobbyMatchmakerStatusRequest) Decode(r *Reader) error {
	m.Unk0 = r.Uint8()
	return r.Err()
}

// LobbyMatchmakerStatus answers LobbyMatchmakerStatusRequest.
type LobbyMatchmakerStatus struct {
	StatusCode uint32
}

func (m *LobbyMatchmakerStatus) Symbol() Symbol { return SymbolLobbyMatchmakerStatus }

func (m *LobbyMatchmakerStatus) Encode(w *Writer) error {
	w.WriteUint32(m.StatusCode)
	return nil
}

func (m *LobbyMatchmakerStatus) Decode(r *Reader) error {
	m.StatusCode = r.Uint32()
	return r.Err()
}

// LobbyPendingSessionCancel cancels an in-flight lobby request.
type LobbyPendingSessionCancel struct {
	Session uuid.UUID
}

func (m *LobbyPendingSessionCancel) Symbol() Symbol { return SymbolLobbyPendingSessionCancel }

func (m *LobbyPendingSessionCancel) Encode(w *Writer) error {
	w.WriteGUID(m.Session)
	return nil
}

func (m *LobbyPendingSessionCancel) Decode(r *Reader) error {
	m.Session = r.GUID()
	return r.Err()
}

// Endpoint is a game server address as announced to clients.
type Endpoint struct {
	InternalAddress netip.Addr
	ExternalAddress netip.Addr
	Port            uint16
}

// EndpointSize is the encoded size of an Endpoint.
const EndpointSize = 10

func (e Endpoint) write(w *Writer) {
	w.WriteIPv4BE(e.InternalAddress).WriteIPv4BE(e.ExternalAddress).WriteUint16BE(e.Port)
}

func readEndpoint(r *Reader) Endpoint {
	return Endpoint{
		InternalAddress: r.IPv4BE(),
		ExternalAddress: r.IPv4BE(),
		Port:            r.Uint16BE(),
	}
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s/%s:%d", e.InternalAddress, e.ExternalAddress, e.Port)
}

// LobbyPingRequestv3 asks the client to ping a set of game servers.
type LobbyPingRequestv3 struct {
	Unk0      uint16
	Unk1      uint16
	Unk2      uint32
	Endpoints []Endpoint
}

func (m *LobbyPingRequestv3) Symbol() Symbol { return SymbolLobbyPingRequestv3 }

func (m *LobbyPingRequestv3) Encode(w *Writer) error {
	w.WriteUint16(m.Unk0).WriteUint16(m.Unk1).WriteUint32(m.Unk2)
	for _, e := range m.Endpoints {
		e.write(w)
		w.WriteUint16(0)
	}
	return nil
}

func (m *LobbyPingRequestv3) Decode(r *Reader) error {
	m.Unk0 = r.Uint16()
	m.Unk1 = r.Uint16()
	m.Unk2 = r.Uint32()
	if r.Err() != nil {
		return r.Err()
	}
	count := r.Remaining() / (EndpointSize + 2)
	m.Endpoints = make([]Endpoint, 0, count)
	for i := 0; i < count; i++ {
		m.Endpoints = append(m.Endpoints, readEndpoint(r))
		r.Uint16()
	}
	return r.Err()
}

// EndpointPingResult is one measured round trip.
type EndpointPingResult struct {
	InternalAddress netip.Addr
	ExternalAddress netip.Addr
	PingMillis      uint32
}

// LobbyPingResponse reports the client's measured round trips.
type LobbyPingResponse struct {
	Results []EndpointPingResult
}

func (m *LobbyPingResponse) Symbol() Symbol { return SymbolLobbyPingResponse }

func (m *LobbyPingResponse) Encode(w *Writer) error {
	w.WriteUint64(uint64(len(m.Results)))
	for _, res := range m.Results {
		w.WriteIPv4BE(res.InternalAddress).WriteIPv4BE(res.ExternalAddress).WriteUint32(res.PingMillis)
	}
	return nil
}

func (m *LobbyPingResponse) Decode(r *Reader) error {
	count := r.Uint64()
	if r.Err() != nil {
		return r.Err()
	}
	if count > uint64(r.Remaining()/12) {
		return fmt.Errorf("ping result count %d exceeds payload", count)
	}
	m.Results = make([]EndpointPingResult, 0, count)
	for i := uint64(0); i < count; i++ {
		m.Results = append(m.Results, EndpointPingResult{
			InternalAddress: r.IPv4BE(),
			ExternalAddress: r.IPv4BE(),
			PingMillis:      r.Uint32(),
		})
	}
	return r.Err()
}

// LobbyPlayerSessionsRequestv5 asks for player session tokens for a set of
// users joining a matched lobby.
type LobbyPlayerSessionsRequestv5 struct {
	Session         uuid.UUID
	UserID          XPlatformID
	MatchingSession uuid.UUID
	Platform        Symbol
	PlayerXPIDs     []XPlatformID
}

func (m *LobbyPlayerSessionsRequestv5) Symbol() Symbol { return SymbolLobbyPlayerSessionsRequestv5 }

func (m *LobbyPlayerSessionsRequestv5) Encode(w *Writer) error {
	w.WriteGUID(m.Session).
		WriteXPlatformID(m.UserID).
		WriteGUID(m.MatchingSession).
		WriteSymbol(m.Platform).
		WriteUint64(uint64(len(m.PlayerXPIDs)))
	for _, id := range m.PlayerXPIDs {
		w.WriteXPlatformID(id)
	}
	return nil
}

func (m *LobbyPlayerSessionsRequestv5) Decode(r *Reader) error {
	m.Session = r.GUID()
	m.UserID = r.XPlatformID()
	m.MatchingSession = r.GUID()
	m.Platform = r.Symbol()
	count := r.Uint64()
	if r.Err() != nil {
		return r.Err()
	}
	if count > uint64(r.Remaining()/16) {
		return fmt.Errorf("player count %d exceeds payload", count)
	}
	m.PlayerXPIDs = make([]XPlatformID, 0, count)
	for i := uint64(0); i < count; i++ {
		m.PlayerXPIDs = append(m.PlayerXPIDs, r.XPlatformID())
	}
	return r.Err()
}

// LobbyPlayerSessionsSuccessUnk1 returns player sessions for a matched lobby.
type LobbyPlayerSessionsSuccessUnk1 struct {
	MatchingSession uuid.UUID
	PlayerSessions  []uuid.UUID
}

func (m *LobbyPlayerSessionsSuccessUnk1) Symbol() Symbol {
	return SymbolLobbyPlayerSessionsSuccessUnk1
}

func (m *LobbyPlayerSessionsSuccessUnk1) Encode(w *Writer) error {
	w.WriteUint64(uint64(len(m.PlayerSessions))).WriteGUID(m.MatchingSession)
	for _, s := range m.PlayerSessions {
		w.WriteGUID(s)
	}
	return nil
}

func (m *LobbyPlayerSessionsSuccessUnk1) Decode(r *Reader) error {
	count := r.Uint64()
	m.MatchingSession = r.GUID()
	if r.Err() != nil {
		return r.Err()
	}
	if count > uint64(r.Remaining()/16) {
		return fmt.Errorf("session count %d exceeds payload", count)
	}
	m.PlayerSessions = make([]uuid.UUID, 0, count)
	for i := uint64(0); i < count; i++ {
		m.PlayerSessions = append(m.PlayerSessions, r.GUID())
	}
	return r.Err()
}

// LobbyPlayerSessionsSuccessv2 returns a single player session.
type LobbyPlayerSessionsSuccessv2 struct {
	Unk0          uint8
	UserID        XPlatformID
	PlayerSession uuid.UUID
}

func (m *LobbyPlayerSessionsSuccessv2) Symbol() Symbol { return SymbolLobbyPlayerSessionsSuccessv2 }

func (m *LobbyPlayerSessionsSuccessv2) Encode(w *Writer) error {
	w.WriteUint8(m.Unk0).WriteXPlatformID(m.UserID).WriteGUID(m.PlayerSession)
	return nil
}

func (m *LobbyPlayerSessionsSuccessv2) Decode(r *Reader) error {
	m.Unk0 = r.Uint8()
	m.UserID = r.XPlatformID()
	m.PlayerSession = r.GUID()
	return r.Err()
}

// LobbyPlayerSessionsSuccessv3 returns a single player session with its
// team assignment.
type LobbyPlayerSessionsSuccessv3 struct {
	Unk0          uint8
	UserID        XPlatformID
	PlayerSession uuid.UUID
	TeamIndex     TeamIndex
	Unk1          uint16
	Unk2          uint32
}

func (m *LobbyPlayerSessionsSuccessv3) Symbol() Symbol { return SymbolLobbyPlayerSessionsSuccessv3 }

func (m *LobbyPlayerSessionsSuccessv3) Encode(w *Writer) error {
	w.WriteUint8(m.Unk0).
		WriteXPlatformID(m.UserID).
		WriteGUID(m.PlayerSession).
		WriteInt16(int16(m.TeamIndex)).
		WriteUint16(m.Unk1).
		WriteUint32(m.Unk2)
	return nil
}

func (m *LobbyPlayerSessionsSuccessv3) Decode(r *Reader) error {
	m.Unk0 = r.Uint8()
	m.UserID = r.XPlatformID()
	m.PlayerSession = r.GUID()
	m.TeamIndex = TeamIndex(r.Int16())
	m.Unk1 = r.Uint16()
	m.Unk2 = r.Uint32()
	return r.Err()
}

// SessionKeys are the per-direction packet encoder keys of a session.
type SessionKeys struct {
	MacKey    []byte
	EncKey    []byte
	RandomKey []byte
}

func (k SessionKeys) write(w *Writer, s PacketEncoderSettings) error {
	if len(k.MacKey) != s.MacKeySize || len(k.EncKey) != s.EncryptionKeySize || len(k.RandomKey) != s.RandomKeySize {
		return fmt.Errorf("session key sizes (%d, %d, %d) do not match encoder settings (%d, %d, %d)",
			len(k.MacKey), len(k.EncKey), len(k.RandomKey), s.MacKeySize, s.EncryptionKeySize, s.RandomKeySize)
	}
	w.WriteBytes(k.MacKey).WriteBytes(k.EncKey).WriteBytes(k.RandomKey)
	return nil
}

func readSessionKeys(r *Reader, s PacketEncoderSettings) SessionKeys {
	return SessionKeys{
		MacKey:    r.Bytes(s.MacKeySize),
		EncKey:    r.Bytes(s.EncryptionKeySize),
		RandomKey: r.Bytes(s.RandomKeySize),
	}
}

// SessionSuccess is the content of a successful lobby match, shared by
// LobbySessionSuccessv4 and LobbySessionSuccessv5.
type SessionSuccess struct {
	GameType         Symbol
	MatchingSession  uuid.UUID
	Channel          uuid.UUID
	Endpoint         Endpoint
	TeamIndex        TeamIndex
	Unk1             uint32
	ServerEncoder    PacketEncoderSettings
	ClientEncoder    PacketEncoderSettings
	ServerSequenceID uint64
	ServerKeys       SessionKeys
	ClientSequenceID uint64
	ClientKeys       SessionKeys
}

func (s *SessionSuccess) encode(w *Writer, withChannel bool) error {
	w.WriteSymbol(s.GameType).WriteGUID(s.MatchingSession)
	if withChannel {
		w.WriteGUID(s.Channel)
	}
	s.Endpoint.write(w)
	w.WriteInt16(int16(s.TeamIndex)).
		WriteUint32(s.Unk1).
		WriteUint64(s.ServerEncoder.Flags()).
		WriteUint64(s.ClientEncoder.Flags()).
		WriteUint64(s.ServerSequenceID)
	if err := s.ServerKeys.write(w, s.ServerEncoder); err != nil {
		return fmt.Errorf("server keys: %w", err)
	}
	w.WriteUint64(s.ClientSequenceID)
	if err := s.ClientKeys.write(w, s.ClientEncoder); err != nil {
		return fmt.Errorf("client keys: %w", err)
	}
	return nil
}

func (s *SessionSuccess) decode(r *Reader, withChannel bool) error {
	s.GameType = r.Symbol()
	s.MatchingSession = r.GUID()
	if withChannel {
		s.Channel = r.GUID()
	}
	s.Endpoint = readEndpoint(r)
	s.TeamIndex = TeamIndex(r.Int16())
	s.Unk1 = r.Uint32()
	s.ServerEncoder = ParseEncoderSettings(r.Uint64())
	s.ClientEncoder = ParseEncoderSettings(r.Uint64())
	s.ServerSequenceID = r.Uint64()
	s.ServerKeys = readSessionKeys(r, s.ServerEncoder)
	s.ClientSequenceID = r.Uint64()
	s.ClientKeys = readSessionKeys(r, s.ClientEncoder)
	return r.Err()
}

// LobbySessionSuccessv4 directs a client to a game server without a channel.
type LobbySessionSuccessv4 struct {
	SessionSuccess
}

func (m *LobbySessionSuccessv4) Symbol() Symbol { return SymbolLobbySessionSuccessv4 }

func (m *LobbySessionSuccessv4) Encode(w *Writer) error { return m.encode(w, false) }

func (m *LobbySessionSuccessv4) Decode(r *Reader) error { return m.decode(r, false) }

// LobbySessionSuccessv5 directs a client to a game server.
type LobbySessionSuccessv5 struct {
	SessionSuccess
}

func (m *LobbySessionSuccessv5) Symbol() Symbol { return SymbolLobbySessionSuccessv5 }

func (m *LobbySessionSuccessv5) Encode(w *Writer) error { return m.encode(w, true) }

func (m *LobbySessionSuccessv5) Decode(r *Reader) error { return m.decode(r, true) }

func (m *LobbySessionSuccessv5) String() string {
	return fmt.Sprintf("LobbySessionSuccessv5(game_type=%s, session=%s, channel=%s, endpoint=%s, team=%s)",
		m.GameType, m.MatchingSession, m.Channel, m.Endpoint, m.TeamIndex)
}

// LobbySessionFailurev1 is the oldest failure form, carrying only a code.
type LobbySessionFailurev1 struct {
	ErrorCode uint8
}

func (m *LobbySessionFailurev1) Symbol() Symbol { return SymbolLobbySessionFailurev1 }

func (m *LobbySessionFailurev1) Encode(w *Writer) error {
	w.WriteUint8(m.ErrorCode)
	return nil
}

func (m *LobbySessionFailurev1) Decode(r *Reader) error {
	m.ErrorCode = r.Uint8()
	return r.Err()
}

// LobbySessionFailurev2 reports a failure on a channel.
type LobbySessionFailurev2 struct {
	Channel   uuid.UUID
	ErrorCode SessionFailureCode
}

func (m *LobbySessionFailurev2) Symbol() Symbol { return SymbolLobbySessionFailurev2 }

func (m *LobbySessionFailurev2) Encode(w *Writer) error {
	w.WriteGUID(m.Channel).WriteUint32(uint32(m.ErrorCode))
	return nil
}

func (m *LobbySessionFailurev2) Decode(r *Reader) error {
	m.Channel = r.GUID()
	m.ErrorCode = SessionFailureCode(r.Uint32())
	return r.Err()
}

// LobbySessionFailurev3 reports a failure for a game type and channel.
type LobbySessionFailurev3 struct {
	GameType  Symbol
	Channel   uuid.UUID
	ErrorCode SessionFailureCode
	Unk0      uint32
}

func (m *LobbySessionFailurev3) Symbol() Symbol { return SymbolLobbySessionFailurev3 }

func (m *LobbySessionFailurev3) Encode(w *Writer) error {
	w.WriteSymbol(m.GameType).WriteGUID(m.Channel).WriteUint32(uint32(m.ErrorCode)).WriteUint32(m.Unk0)
	return nil
}

func (m *LobbySessionFailurev3) Decode(r *Reader) error {
	m.GameType = r.Symbol()
	m.Channel = r.GUID()
	m.ErrorCode = SessionFailureCode(r.Uint32())
	m.Unk0 = r.Uint32()
	return r.Err()
}

// LobbySessionFailurev4 reports a failure with a message shown to the user.
type LobbySessionFailurev4 struct {
	GameType  Symbol
	Channel   uuid.UUID
	ErrorCode SessionFailureCode
	Unk0      uint32
	Message   string
}

func (m *LobbySessionFailurev4) Symbol() Symbol { return SymbolLobbySessionFailurev4 }

func (m *LobbySessionFailurev4) Encode(w *Writer) error {
	w.WriteSymbol(m.GameType).
		WriteGUID(m.Channel).
		WriteUint32(uint32(m.ErrorCode)).
		WriteUint32(m.Unk0).
		WriteNullString(m.Message)
	return nil
}

func (m *LobbySessionFailurev4) Decode(r *Reader) error {
	m.GameType = r.Symbol()
	m.Channel = r.GUID()
	m.ErrorCode = SessionFailureCode(r.Uint32())
	m.Unk0 = r.Uint32()
	m.Message = r.NullString()
	return r.Err()
}

func (m *LobbySessionFailurev4) String() string {
	return fmt.Sprintf("LobbySessionFailurev4(game_type=%s, channel=%s, code=%s, message=%q)",
		m.GameType, m.Channel, m.ErrorCode, m.Message)
}

// StatusMessageSize is the fixed size of a LobbyStatusNotifyv2 message.
const StatusMessageSize = 64

// LobbyStatusNotifyv2 tells a client about a moderation action.
type LobbyStatusNotifyv2 struct {
	Channel    uuid.UUID
	Message    string
	ExpiryTime uint64
	Reason     StatusUpdateReason
}

func (m *LobbyStatusNotifyv2) Symbol() Symbol { return SymbolLobbyStatusNotifyv2 }

func (m *LobbyStatusNotifyv2) Encode(w *Writer) error {
	w.WriteGUID(m.Channel).
		WriteFixedString(m.Message, StatusMessageSize).
		WriteUint64(m.ExpiryTime).
		WriteUint64(uint64(m.Reason))
	return nil
}

func (m *LobbyStatusNotifyv2) Decode(r *Reader) error {
	m.Channel = r.GUID()
	m.Message = r.FixedString(StatusMessageSize)
	m.ExpiryTime = r.Uint64()
	m.Reason = StatusUpdateReason(r.Uint64())
	return r.Err()
}
