package protocol

import (
	"net/netip"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func roundTrip(t require.TestingT, m Message) Message {
	packet, err := EncodePacket(m)
	require.NoError(t, err)
	out, err := NewCodec(nil, true).DecodePacket(packet)
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0]
}

func drawGUID(t *rapid.T, label string) uuid.UUID {
	var id uuid.UUID
	copy(id[:], rapid.SliceOfN(rapid.Byte(), 16, 16).Draw(t, label))
	return id
}

func drawXPID(t *rapid.T, label string) XPlatformID {
	return XPlatformID{
		Platform:  PlatformCode(rapid.Uint64Range(1, 8).Draw(t, label+"_platform")),
		AccountID: rapid.Uint64().Draw(t, label+"_account"),
	}
}

func drawAddr(t *rapid.T, label string) netip.Addr {
	var b [4]byte
	copy(b[:], rapid.SliceOfN(rapid.Byte(), 4, 4).Draw(t, label))
	return netip.AddrFrom4(b)
}

func TestLobbyFindSessionRequest_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		level := rapid.Int64().Draw(t, "level")
		in := &LobbyFindSessionRequestv11{
			VersionLock:     rapid.Uint64().Draw(t, "version"),
			GameType:        Symbol(rapid.Int64().Draw(t, "gametype")),
			Level:           Symbol(level),
			Platform:        Symbol(rapid.Int64().Draw(t, "platform")),
			Session:         drawGUID(t, "session"),
			Unk2:            Uint128{Lo: rapid.Uint64().Draw(t, "lo"), Hi: rapid.Uint64().Draw(t, "hi")},
			Channel:         drawGUID(t, "channel"),
			SessionSettings: SessionSettings{Level: &level},
			UserID:          drawXPID(t, "user"),
			TeamIndex:       TeamIndex(rapid.Int16Range(-1, 4).Draw(t, "team")),
		}
		assert.Equal(t, in, roundTrip(t, in))
	})
}

func TestLobbyCreateSessionRequest_OptionalTeamIndex(t *testing.T) {
	in := &LobbyCreateSessionRequestv9{LobbyType: LobbyPrivate, TeamIndex: TeamAny}
	w := NewWriter()
	require.NoError(t, in.Encode(w))
	withoutTeam := w.Len()

	in.TeamIndex = TeamOrange
	w.Reset()
	require.NoError(t, in.Encode(w))
	assert.Equal(t, withoutTeam+2, w.Len())

	assert.Equal(t, in, roundTrip(t, in))
}

func TestGameServerStartSession_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		appID := rapid.StringMatching(`[0-9]{1,16}`).Draw(t, "appid")
		count := rapid.IntRange(0, 15).Draw(t, "entrants")
		in := &GameServerStartSession{
			SessionID:   drawGUID(t, "session"),
			Channel:     drawGUID(t, "channel"),
			PlayerLimit: rapid.Uint8().Draw(t, "limit"),
			LobbyType:   LobbyType(rapid.Uint8Range(0, 2).Draw(t, "lobbytype")),
			Settings:    SessionSettings{AppID: &appID},
			Entrants:    make([]EntrantDescriptor, 0, count),
		}
		for i := 0; i < count; i++ {
			in.Entrants = append(in.Entrants, EntrantDescriptor{
				Unk0:     drawGUID(t, "unk0"),
				PlayerID: drawXPID(t, "player"),
				Flags:    DefaultEntrantFlags,
			})
		}
		assert.Equal(t, in, roundTrip(t, in))
	})
}

func TestRemoteLogSet_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := &RemoteLogSetv3{
			UserID:   drawXPID(t, "user"),
			Unk0:     rapid.Uint64().Draw(t, "unk0"),
			LogLevel: LogLevel(rapid.SampledFrom([]uint64{1, 2, 4, 8, 0xE, 0xF}).Draw(t, "level")),
			Logs:     rapid.SliceOfN(rapid.StringMatching(`\{"message":"[a-z ]{0,20}"\}`), 0, 8).Draw(t, "logs"),
		}
		out := roundTrip(t, in).(*RemoteLogSetv3)
		if len(in.Logs) == 0 {
			assert.Empty(t, out.Logs)
			out.Logs = in.Logs
		}
		assert.Equal(t, in, out)
	})
}

func TestLobbySessionSuccess_RoundTrip(t *testing.T) {
	settings := ParseEncoderSettings(0x80080080000083)
	keys := func(seed byte) SessionKeys {
		k := SessionKeys{
			MacKey:    make([]byte, settings.MacKeySize),
			EncKey:    make([]byte, settings.EncryptionKeySize),
			RandomKey: make([]byte, settings.RandomKeySize),
		}
		k.MacKey[0], k.EncKey[0], k.RandomKey[0] = seed, seed+1, seed+2
		return k
	}
	success := SessionSuccess{
		GameType:        Symbol(-3791849610740453517),
		MatchingSession: uuid.New(),
		Channel:         uuid.New(),
		Endpoint: Endpoint{
			InternalAddress: netip.MustParseAddr("192.168.1.10"),
			ExternalAddress: netip.MustParseAddr("203.0.113.7"),
			Port:            6792,
		},
		TeamIndex:        TeamBlue,
		ServerEncoder:    settings,
		ClientEncoder:    settings,
		ServerSequenceID: 9,
		ServerKeys:       keys(1),
		ClientSequenceID: 11,
		ClientKeys:       keys(4),
	}

	v5 := &LobbySessionSuccessv5{SessionSuccess: success}
	assert.Equal(t, v5, roundTrip(t, v5))

	v4 := &LobbySessionSuccessv4{SessionSuccess: success}
	got := roundTrip(t, v4).(*LobbySessionSuccessv4)
	assert.Equal(t, uuid.Nil, got.Channel)
	got.Channel = success.Channel
	assert.Equal(t, v4, got)

	bad := &LobbySessionSuccessv5{SessionSuccess: success}
	bad.ClientKeys.MacKey = bad.ClientKeys.MacKey[:3]
	_, err := EncodePacket(bad)
	assert.Error(t, err)
}

func TestLobbyPingRequest_EndpointsFillPayload(t *testing.T) {
	in := &LobbyPingRequestv3{
		Unk0: 4, Unk1: 2, Unk2: 0xffffffff,
		Endpoints: []Endpoint{
			{InternalAddress: netip.MustParseAddr("10.0.0.1"), ExternalAddress: netip.MustParseAddr("1.2.3.4"), Port: 6792},
			{InternalAddress: netip.MustParseAddr("10.0.0.2"), ExternalAddress: netip.MustParseAddr("1.2.3.5"), Port: 6793},
		},
	}
	payload, err := EncodeMessage(in)
	require.NoError(t, err)
	assert.Len(t, payload, 8+2*12)
	assert.Equal(t, in, roundTrip(t, in))
}

func TestPlayerSessionLists_RejectPartialGUID(t *testing.T) {
	accept := &GameServerAcceptPlayers{PlayerSessions: []uuid.UUID{uuid.New(), uuid.New()}}
	assert.Equal(t, accept, roundTrip(t, accept))

	payload, err := EncodeMessage(accept)
	require.NoError(t, err)
	packet := append(header(SymbolGameServerAcceptPlayers, uint64(len(payload)+3)), payload...)
	packet = append(packet, 1, 2, 3)
	_, err = DecodePacket(packet)
	assert.ErrorIs(t, err, ErrFraming)

	rejected := &GameServerPlayersRejected{ErrorCode: RejectLobbyFull, PlayerSessions: []uuid.UUID{uuid.New()}}
	assert.Equal(t, rejected, roundTrip(t, rejected))
}

func TestLoginRequest_KeepsUnknownAccountFields(t *testing.T) {
	name := "pilot"
	in := &LoginRequest{
		Session: uuid.New(),
		UserID:  XPlatformID{Platform: PlatformOVRORG, AccountID: 12},
		AccountInfo: LoginAccountInfo{
			AccountID:    12,
			DisplayName:  &name,
			BuildVersion: 631547,
			Extras:       Extras{"graphics": RawJSON(`{"msaa":4}`)},
		},
	}
	out := roundTrip(t, in).(*LoginRequest)
	assert.Equal(t, in.Session, out.Session)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, "pilot", *out.AccountInfo.DisplayName)
	assert.JSONEq(t, `{"msaa":4}`, string(out.AccountInfo.Extras["graphics"]))
}

func TestLobbyStatusNotify_FixedMessage(t *testing.T) {
	in := &LobbyStatusNotifyv2{Channel: uuid.New(), Message: "kicked by moderator", ExpiryTime: 1700000000, Reason: StatusKicked}
	payload, err := EncodeMessage(in)
	require.NoError(t, err)
	assert.Len(t, payload, 16+StatusMessageSize+16)
	assert.Equal(t, in, roundTrip(t, in))
}

func TestLobbyPingResponse_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(t, "n")
		in := &LobbyPingResponse{Results: make([]EndpointPingResult, 0, n)}
		for i := 0; i < n; i++ {
			in.Results = append(in.Results, EndpointPingResult{
				InternalAddress: drawAddr(t, "internal"),
				ExternalAddress: drawAddr(t, "external"),
				PingMillis:      rapid.Uint32().Draw(t, "ping"),
			})
		}
		assert.Equal(t, in, roundTrip(t, in))
	})
}
