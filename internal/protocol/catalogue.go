package protocol

func registerCatalogue(r *Registry) {
	r.MustRegister("TcpConnectionUnrequireEvent", func() Message { return &TcpConnectionUnrequireEvent{} })

	r.MustRegister("ConfigRequestv2", func() Message { return &ConfigRequestv2{} })
	r.MustRegister("ConfigSuccessv2", func() Message { return &ConfigSuccessv2{} })
	r.MustRegister("ConfigFailurev2", func() Message { return &ConfigFailurev2{} })

	r.MustRegister("LoginRequest", func() Message { return &LoginRequest{} })
	r.MustRegister("LoginSuccess", func() Message { return &LoginSuccess{} })
	r.MustRegister("LoginFailure", func() Message { return &LoginFailure{} })
	r.MustRegister("LoginSettings", func() Message { return &LoginSettings{} })
	r.MustRegister("ChannelInfoRequest", func() Message { return &ChannelInfoRequest{} })
	r.MustRegister("ChannelInfoResponse", func() Message { return &ChannelInfoResponse{} })
	r.MustRegister("DocumentRequestv2", func() Message { return &DocumentRequestv2{} })
	r.MustRegister("DocumentSuccess", func() Message { return &DocumentSuccess{} })
	r.MustRegister("LoggedInUserProfileRequest", func() Message { return &LoggedInUserProfileRequest{} })
	r.MustRegister("LoggedInUserProfileSuccess", func() Message { return &LoggedInUserProfileSuccess{} })
	r.MustRegister("OtherUserProfileRequest", func() Message { return &OtherUserProfileRequest{} })
	r.MustRegister("OtherUserProfileSuccess", func() Message { return &OtherUserProfileSuccess{} })
	r.MustRegister("UpdateProfile", func() Message { return &UpdateProfile{} })
	r.MustRegister("UpdateProfileSuccess", func() Message { return &UpdateProfileSuccess{} })
	r.MustRegister("UserServerProfileUpdateRequest", func() Message { return &UserServerProfileUpdateRequest{} })
	r.MustRegister("UserServerProfileUpdateSuccess", func() Message { return &UserServerProfileUpdateSuccess{} })
	r.MustRegister("RemoteLogSetv3", func() Message { return &RemoteLogSetv3{} })

	r.MustRegister("FindServerRegionInfo", func() Message { return &FindServerRegionInfo{} })
	r.MustRegister("LobbyCreateSessionRequestv9", func() Message { return &LobbyCreateSessionRequestv9{} })
	r.MustRegister("LobbyFindSessionRequestv11", func() Message { return &LobbyFindSessionRequestv11{} })
	r.MustRegister("LobbyJoinSessionRequestv7", func() Message { return &LobbyJoinSessionRequestv7{} })
	r.MustRegister("LobbyMatchmakerStatusRequest", func() Message { return &LobbyMatchmakerStatusRequest{} })
	r.MustRegister("LobbyMatchmakerStatus", func() Message { return &LobbyMatchmakerStatus{} })
	r.MustRegister("LobbyPendingSessionCancel", func() Message { return &LobbyPendingSessionCancel{} })
	r.MustRegister("LobbyPingRequestv3", func() Message { return &LobbyPingRequestv3{} })
	r.MustRegister("LobbyPingResponse", func() Message { return &LobbyPingResponse{} })
	r.MustRegister("LobbyPlayerSessionsRequestv5", func() Message { return &LobbyPlayerSessionsRequestv5{} })
	r.MustRegister("LobbyPlayerSessionsSuccessUnk1", func() Message { return &LobbyPlayerSessionsSuccessUnk1{} })
	r.MustRegister("LobbyPlayerSessionsSuccessv2", func() Message { return &LobbyPlayerSessionsSuccessv2{} })
	r.MustRegister("LobbyPlayerSessionsSuccessv3", func() Message { return &LobbyPlayerSessionsSuccessv3{} })
	r.MustRegister("LobbySessionSuccessv4", func() Message { return &LobbySessionSuccessv4{} })
	r.MustRegister("LobbySessionSuccessv5", func() Message { return &LobbySessionSuccessv5{} })
	r.MustRegister("LobbySessionFailurev1", func() Message { return &LobbySessionFailurev1{} })
	r.MustRegister("LobbySessionFailurev2", func() Message { return &LobbySessionFailurev2{} })
	r.MustRegister("LobbySessionFailurev3", func() Message { return &LobbySessionFailurev3{} })
	r.MustRegister("LobbySessionFailurev4", func() Message { return &LobbySessionFailurev4{} })
	r.MustRegister("LobbyStatusNotifyv2", func() Message { return &LobbyStatusNotifyv2{} })

	r.MustRegister("GameServerRegistrationRequest", func() Message { return &GameServerRegistrationRequest{} })
	r.MustRegister("LobbyRegistrationSuccess", func() Message { return &LobbyRegistrationSuccess{} })
	r.MustRegister("LobbyRegistrationFailure", func() Message { return &LobbyRegistrationFailure{} })
	r.MustRegister("GameServerStartSession", func() Message { return &GameServerStartSession{} })
	r.MustRegister("GameServerSessionStarted", func() Message { return &GameServerSessionStarted{} })
	r.MustRegister("GameServerEndSession", func() Message { return &GameServerEndSession{} })
	r.MustRegister("GameServerPlayersLocked", func() Message { return &GameServerPlayersLocked{} })
	r.MustRegister("GameServerPlayersUnlocked", func() Message { return &GameServerPlayersUnlocked{} })
	r.MustRegister("GameServerAcceptPlayers", func() Message { return &GameServerAcceptPlayers{} })
	r.MustRegister("GameServerPlayersAccepted", func() Message { return &GameServerPlayersAccepted{} })
	r.MustRegister("GameServerPlayersRejected", func() Message { return &GameServerPlayersRejected{} })
	r.MustRegister("GameServerRemovePlayer", func() Message { return &GameServerRemovePlayer{} })
	r.MustRegister("GameServerChallengeRequest", func() Message { return &GameServerChallengeRequest{} })
	r.MustRegister("GameServerChallengeResponse", func() Message { return &GameServerChallengeResponse{} })

	r.MustRegister("ReconcileIAP", func() Message { return &ReconcileIAP{} })
	r.MustRegister("ReconcileIAPResult", func() Message { return &ReconcileIAPResult{} })
}
