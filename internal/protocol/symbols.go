package protocol

// Message type symbols.
const (
	SymbolTcpConnectionUnrequireEvent Symbol = 0x43e6963ac76beee4

	SymbolConfigRequestv2 Symbol = -9041364331368070280
	SymbolConfigSuccessv2 Symbol = -5058194012104830958
	SymbolConfigFailurev2 Symbol = -7032236248796415888

	SymbolLoginRequest                   Symbol = -4777159589668118518
	SymbolLoginSuccess                   Symbol = -6508614429644632505
	SymbolLoginFailure                   Symbol = -6504933290668142767
	SymbolLoginSettings                  Symbol = -1343230735030331919
	SymbolChannelInfoRequest             Symbol = -8037361449999850272
	SymbolChannelInfoResponse            Symbol = 7822496150166529221
	SymbolDocumentRequestv2              Symbol = -230010198603715656
	SymbolDocumentSuccess                Symbol = -3422738499139816183
	SymbolDocumentFailure                Symbol = -7032236248796415888
	SymbolLoggedInUserProfileRequest     Symbol = -326745984434664080
	SymbolLoggedInUserProfileSuccess     Symbol = -327009806726689417
	SymbolOtherUserProfileRequest        Symbol = 1310854393570331826
	SymbolOtherUserProfileSuccess        Symbol = 1310555403549215925
	SymbolUpdateProfile                  Symbol = 7878099332047717397
	SymbolUpdateProfileSuccess           Symbol = -985002095917729961
	SymbolUserServerProfileUpdateRequest Symbol = -3271750463532589966
	SymbolUserServerProfileUpdateSuccess Symbol = -3271451319295304587
	SymbolRemoteLogSetv3                 Symbol = 2615262521988737761

	SymbolFindServerRegionInfo           Symbol = -8261057723629147028
	SymbolLobbyCreateSessionRequestv9    Symbol = 6456590782678944787
	SymbolLobbyFindSessionRequestv11     Symbol = 3543253192791466997
	SymbolLobbyJoinSessionRequestv7      Symbol = 3387628926720258577
	SymbolLobbyMatchmakerStatusRequest   Symbol = 1336293084088743504
	SymbolLobbyMatchmakerStatus          Symbol = -8131021305597149493
	SymbolLobbyPendingSessionCancel      Symbol = -8238795091130540074
	SymbolLobbyPingRequestv3             Symbol = -378478809818600461
	SymbolLobbyPingResponse              Symbol = 6937742467394678351
	SymbolLobbyPlayerSessionsRequestv5   Symbol = -7281482002396079611
	SymbolLobbyPlayerSessionsSuccessUnk1 Symbol = -40104227197879335
	SymbolLobbyPlayerSessionsSuccessv2   Symbol = -6793175491028678296
	SymbolLobbyPlayerSessionsSuccessv3   Symbol = -6793175491028678295
	SymbolLobbySessionSuccessv4          Symbol = 7876201346521829645
	SymbolLobbySessionSuccessv5          Symbol = 7876201346521829646
	SymbolLobbySessionFailurev1          Symbol = -5071315040643272207
	SymbolLobbySessionFailurev2          Symbol = 5397623933917067626
	SymbolLobbySessionFailurev3          Symbol = 5397623933917067627
	SymbolLobbySessionFailurev4          Symbol = 5397623933917067628
	SymbolLobbyStatusNotifyv2            Symbol = -1965344278184031864

	SymbolGameServerRegistrationRequest Symbol = 0x7777777777777777
	SymbolLobbyRegistrationSuccess      Symbol = -5369924845641990433
	SymbolLobbyRegistrationFailure      Symbol = -5373034290044534839
	SymbolGameServerStartSession        Symbol = 0x7777777777770000
	SymbolGameServerSessionStarted      Symbol = 0x7777777777770100
	SymbolGameServerEndSession          Symbol = 0x7777777777770200
	SymbolGameServerPlayersLocked       Symbol = 0x7777777777770300
	SymbolGameServerPlayersUnlocked     Symbol = 0x7777777777770400
	SymbolGameServerAcceptPlayers       Symbol = 0x7777777777770500
	SymbolGameServerPlayersAccepted     Symbol = 0x7777777777770600
	SymbolGameServerPlayersRejected     Symbol = 0x7777777777770700
	SymbolGameServerRemovePlayer        Symbol = 0x7777777777770800
	SymbolGameServerChallengeRequest    Symbol = 0x7777777777770900
	SymbolGameServerChallengeResponse   Symbol = 0x7777777777770a00

	SymbolReconcileIAP       Symbol = 2004379208746620732
	SymbolReconcileIAPResult Symbol = 985094533933992578
)

// Raw UDP ping datagrams exchanged with game servers. These are not framed
// as packets: each is a symbol followed by a u64 token.
const (
	SymbolRawPingRequest     uint64 = 0x997279DE065A03B0
	SymbolRawPingAcknowledge uint64 = 0x4F7AE556E0B77891
)
