package protocol

import "fmt"

// LobbyType is the visibility of a lobby.
type LobbyType uint8

const (
	LobbyPublic     LobbyType = 0
	LobbyPrivate    LobbyType = 1
	LobbyUnassigned LobbyType = 2
)

func (t LobbyType) String() string {
	switch t {
	case LobbyPublic:
		return "public"
	case LobbyPrivate:
		return "private"
	case LobbyUnassigned:
		return "unassigned"
	}
	return fmt.Sprintf("LobbyType(%d)", uint8(t))
}

// TeamIndex is the team a player requests or is assigned to.
type TeamIndex int16

const (
	TeamAny                    TeamIndex = -1
	TeamBlue                   TeamIndex = 0
	TeamOrange                 TeamIndex = 1
	TeamSpectator              TeamIndex = 2
	TeamSocialLobbyParticipant TeamIndex = 3
	TeamModerator              TeamIndex = 4
)

func (t TeamIndex) String() string {
	switch t {
	case TeamAny:
		return "any"
	case TeamBlue:
		return "blue"
	case TeamOrange:
		return "orange"
	case TeamSpectator:
		return "spectator"
	case TeamSocialLobbyParticipant:
		return "social"
	case TeamModerator:
		return "moderator"
	}
	return fmt.Sprintf("TeamIndex(%d)", int16(t))
}

// SessionFailureCode is sent to clients when a lobby request fails.
type SessionFailureCode uint32

const (
	FailureTimeout0             SessionFailureCode = 0
	FailureUpdateRequired       SessionFailureCode = 1
	FailureBadRequest           SessionFailureCode = 2
	FailureTimeout3             SessionFailureCode = 3
	FailureServerDoesNotExist   SessionFailureCode = 4
	FailureServerIsIncompatible SessionFailureCode = 5
	FailureServerFindFailed     SessionFailureCode = 6
	FailureServerIsLocked       SessionFailureCode = 7
	FailureServerIsFull         SessionFailureCode = 8
	FailureInternalError        SessionFailureCode = 9
	FailureMissingEntitlement   SessionFailureCode = 10
	FailureBannedFromLobbyGroup SessionFailureCode = 11
	FailureKickedFromLobbyGroup SessionFailureCode = 12
	FailureNotALobbyGroupMod    SessionFailureCode = 13
)

var sessionFailureNames = map[SessionFailureCode]string{
	FailureTimeout0:             "timeout",
	FailureUpdateRequired:       "update_required",
	FailureBadRequest:           "bad_request",
	FailureTimeout3:             "timeout",
	FailureServerDoesNotExist:   "server_does_not_exist",
	FailureServerIsIncompatible: "server_is_incompatible",
	FailureServerFindFailed:     "server_find_failed",
	FailureServerIsLocked:       "server_is_locked",
	FailureServerIsFull:         "server_is_full",
	FailureInternalError:        "internal_error",
	FailureMissingEntitlement:   "missing_entitlement",
	FailureBannedFromLobbyGroup: "banned_from_lobby_group",
	FailureKickedFromLobbyGroup: "kicked_from_lobby_group",
	FailureNotALobbyGroupMod:    "not_a_lobby_group_mod",
}

func (c SessionFailureCode) String() string {
	if s, ok := sessionFailureNames[c]; ok {
		return s
	}
	return fmt.Sprintf("SessionFailureCode(%d)", uint32(c))
}

// PlayerRejectionCode explains why a game server refused players.
type PlayerRejectionCode uint8

const (
	RejectInternal         PlayerRejectionCode = 0
	RejectBadRequest       PlayerRejectionCode = 1
	RejectTimeout          PlayerRejectionCode = 2
	RejectDuplicate        PlayerRejectionCode = 3
	RejectLobbyLocked      PlayerRejectionCode = 4
	RejectLobbyFull        PlayerRejectionCode = 5
	RejectLobbyEnding      PlayerRejectionCode = 6
	RejectKickedFromServer PlayerRejectionCode = 7
	RejectDisconnected     PlayerRejectionCode = 8
	RejectInactive         PlayerRejectionCode = 9
)

// RegistrationFailureCode is sent to game servers whose registration failed.
type RegistrationFailureCode uint8

const (
	RegistrationInvalidRequest      RegistrationFailureCode = 0
	RegistrationTimeout             RegistrationFailureCode = 1
	RegistrationCryptographyError   RegistrationFailureCode = 2
	RegistrationDatabaseError       RegistrationFailureCode = 3
	RegistrationAccountDoesNotExist RegistrationFailureCode = 4
	RegistrationConnectionFailed    RegistrationFailureCode = 5
	RegistrationConnectionLost      RegistrationFailureCode = 6
	RegistrationProviderError       RegistrationFailureCode = 7
	RegistrationRestricted          RegistrationFailureCode = 8
	RegistrationUnknown             RegistrationFailureCode = 9
	RegistrationFailure             RegistrationFailureCode = 10
	RegistrationSuccess             RegistrationFailureCode = 11
)

// StatusUpdateReason is carried by LobbyStatusNotifyv2.
type StatusUpdateReason uint64

const (
	StatusBanned  StatusUpdateReason = 0
	StatusKicked  StatusUpdateReason = 1
	StatusDemoted StatusUpdateReason = 2
	StatusUnknown StatusUpdateReason = 3
)

// LogLevel is the bitmask attached to client remote logs.
type LogLevel uint64

const (
	LogDebug   LogLevel = 0x1
	LogInfo    LogLevel = 0x2
	LogWarning LogLevel = 0x4
	LogError   LogLevel = 0x8
	LogDefault LogLevel = 0xE
	LogAny     LogLevel = 0xF
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarning:
		return "warning"
	case LogError:
		return "error"
	case LogDefault:
		return "default"
	case LogAny:
		return "any"
	}
	return fmt.Sprintf("LogLevel(0x%x)", uint64(l))
}
