package login

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/network"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/session"
	"github.com/echorelay-project/echorelay/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxDisplayNameLength = 20
	demoSuffix           = " [DEMO]"
	demoDisplayName      = "Anonymous [DEMO]"
)

// Service handles the login endpoint.
type Service struct {
	resources *storage.Resources
	sessions  *SessionCache
	clock     Clock
	bus       *events.EventBus
	logger    zerolog.Logger
}

// NewService creates the login service. bus may be nil.
func NewService(resources *storage.Resources, sessions *SessionCache, bus *events.EventBus) *Service {
	return &Service{
		resources: resources,
		sessions:  sessions,
		clock:     sessions.clock,
		bus:       bus,
		logger:    log.With().Str("component", "login").Logger(),
	}
}

// Sessions returns the session cache shared with the matching service.
func (s *Service) Sessions() *SessionCache { return s.sessions }

// CheckUserSession reports whether token is a live session of userID.
func (s *Service) CheckUserSession(token uuid.UUID, userID protocol.XPlatformID) bool {
	return s.sessions.CheckValid(token, userID)
}

// HandlePacket implements network.Handler.
func (s *Service) HandlePacket(ctx context.Context, peer *network.Peer, packet []protocol.Message) error {
	for _, msg := range packet {
		var err error
		switch m := msg.(type) {
		case *protocol.LoginRequest:
			err = s.handleLogin(ctx, peer, m)
		case *protocol.LoggedInUserProfileRequest:
			err = s.handleLoggedInProfile(ctx, peer, m)
		case *protocol.OtherUserProfileRequest:
			err = s.handleOtherProfile(ctx, peer, m)
		case *protocol.UserServerProfileUpdateRequest:
			err = s.handleServerProfileUpdate(ctx, peer, m)
		case *protocol.UpdateProfile:
			err = s.handleUpdateProfile(ctx, peer, m)
		case *protocol.ChannelInfoRequest:
			err = s.handleChannelInfo(ctx, peer)
		case *protocol.DocumentRequestv2:
			err = s.handleDocument(ctx, peer, m)
		case *protocol.RemoteLogSetv3:
			s.handleRemoteLogs(peer, m)
		default:
			peer.Logger().Debug().Str("message", fmt.Sprint(msg)).Msg("ignoring unhandled message")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// HandleDisconnect starts the grace period of the peer's token.
func (s *Service) HandleDisconnect(ctx context.Context, peer *network.Peer) {
	if token, ok := peer.Session().LoginToken(); ok {
		s.sessions.Disconnected(token)
	}
}

func (s *Service) invalidatePeerSession(peer *network.Peer) {
	if token, ok := peer.TakeSession().LoginToken(); ok {
		s.sessions.Invalidate(token)
	}
}

func (s *Service) emit(ctx context.Context, t events.EventType, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(ctx, events.Event{Type: t, Source: "login", Payload: payload})
}

func (s *Service) reject(ctx context.Context, peer *network.Peer, userID protocol.XPlatformID, reason string) error {
	peer.Logger().Info().Str("user", userID.String()).Str("reason", reason).Msg("login rejected")
	s.emit(ctx, events.EventLoginRejected, events.LoginPayload{UserID: userID.String(), Reason: reason})
	return peer.Send(ctx, &protocol.LoginFailure{
		UserID:     userID,
		StatusCode: http.StatusBadRequest,
		Message:    reason,
	})
}

// defaultDisplayName names a newly created account.
func defaultDisplayName(id protocol.XPlatformID) string {
	if id.Platform == protocol.PlatformDMO {
		return demoDisplayName
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("User [%016X]", id.AccountID)
	}
	return fmt.Sprintf("User [%016X]", binary.LittleEndian.Uint64(b[:]))
}

// normalizeDisplayName trims and truncates a requested display name. It
// returns "" when nothing usable remains.
func normalizeDisplayName(name string, platform protocol.PlatformCode) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		name = string([]rune(name)[:maxDisplayNameLength])
	}
	if platform == protocol.PlatformDMO {
		name += demoSuffix
	}
	return name
}

func (s *Service) handleLogin(ctx context.Context, peer *network.Peer, req *protocol.LoginRequest) error {
	s.invalidatePeerSession(peer)

	if !req.UserID.Valid() {
		return s.reject(ctx, peer, req.UserID, "User identifier invalid")
	}

	now := s.clock.Now().UTC()
	account, err := s.resources.Account(ctx, req.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		account, err = storage.NewAccount(req.UserID, defaultDisplayName(req.UserID), now)
		if err != nil {
			return s.reject(ctx, peer, req.UserID, "User identifier invalid")
		}
		account.Touch(now, "createtime")
	case err != nil:
		s.logger.Error().Err(err).Str("user", req.UserID.String()).Msg("failed to load account")
		return s.reject(ctx, peer, req.UserID, "Failed to load account")
	}

	lock := peer.Query("auth")
	if lock == "" {
		lock = peer.Query("password")
	}
	ok, err := account.Authenticate(lock)
	if err != nil {
		s.logger.Error().Err(err).Str("user", req.UserID.String()).Msg("failed to check account lock")
	}
	if !ok {
		return s.reject(ctx, peer, req.UserID, "Invalid account password/authentication lock")
	}

	if account.Banned(now) {
		return s.reject(ctx, peer, req.UserID, account.BanMessage())
	}
	account.BannedUntil = nil

	if name := normalizeDisplayName(peer.Query("displayname"), req.UserID.Platform); name != "" {
		account.SetDisplayName(name)
	}

	account.Touch(now, "logintime", "updatetime", "modifytime")
	if req.AccountInfo.LobbyVersion != nil {
		account.Profile.Server["lobbyversion"] = *req.AccountInfo.LobbyVersion
	}

	if err := s.resources.SaveAccount(ctx, account); err != nil {
		s.logger.Error().Err(err).Str("user", req.UserID.String()).Msg("failed to save account")
		return s.reject(ctx, peer, req.UserID, "Failed to save account")
	}

	sess, err := s.sessions.Authenticate(req.UserID)
	if err != nil {
		return s.reject(ctx, peer, req.UserID, "Authentication failed")
	}
	peer.SetSession(session.LoginToken(sess.Token))
	peer.Authenticate(req.UserID, account.DisplayName())

	peer.Logger().Info().Str("display_name", account.DisplayName()).Msg("user logged in")
	s.emit(ctx, events.EventUserAuthenticated, events.LoginPayload{
		UserID:      req.UserID.String(),
		DisplayName: account.DisplayName(),
	})

	if err := peer.Send(ctx,
		&protocol.LoginSuccess{Session: sess.Token, UserID: req.UserID},
		&protocol.TcpConnectionUnrequireEvent{},
	); err != nil {
		return err
	}

	settings, err := s.resources.LoginSettings(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error().Err(err).Msg("failed to load login settings")
		}
		return nil
	}
	return peer.Send(ctx, &protocol.LoginSettings{Settings: settings})
}

func (s *Service) handleLoggedInProfile(ctx context.Context, peer *network.Peer, req *protocol.LoggedInUserProfileRequest) error {
	logger := peer.Logger().With().Str("user", req.UserID.String()).Logger()
	if !s.sessions.CheckValid(req.Session, req.UserID) {
		logger.Warn().Msg("profile request with invalid session")
		return nil
	}

	account, err := s.resources.Account(ctx, req.UserID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to obtain profile")
		return nil
	}
	profile, err := json.Marshal(account.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return peer.Send(ctx, &protocol.LoggedInUserProfileSuccess{UserID: req.UserID, Profile: profile})
}

func (s *Service) handleOtherProfile(ctx context.Context, peer *network.Peer, req *protocol.OtherUserProfileRequest) error {
	account, err := s.resources.Account(ctx, req.UserID)
	if err != nil {
		peer.Logger().Debug().Err(err).Str("target", req.UserID.String()).Msg("failed to obtain other profile")
		return nil
	}
	profile, err := json.Marshal(account.Profile.Server)
	if err != nil {
		return fmt.Errorf("failed to encode server profile: %w", err)
	}
	return peer.Send(ctx, &protocol.OtherUserProfileSuccess{UserID: req.UserID, ServerProfile: profile})
}

// mergeObjects deep-merges src into dst. Nested objects merge key by key
// and every other value replaces the existing one.
func mergeObjects(dst, src protocol.Object) protocol.Object {
	if dst == nil {
		dst = protocol.Object{}
	}
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				dst[k] = mergeObjects(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

func (s *Service) handleServerProfileUpdate(ctx context.Context, peer *network.Peer, req *protocol.UserServerProfileUpdateRequest) error {
	logger := peer.Logger().With().Str("target", req.UserID.String()).Logger()
	account, err := s.resources.Account(ctx, req.UserID)
	if err != nil {
		logger.Warn().Err(err).Msg("server profile update for unknown account")
		return nil
	}

	if update, ok := req.UpdateInfo["update"].(map[string]any); ok {
		merged := mergeObjects(cloneObject(account.Profile.Server), update)
		if merged["xplatformid"] != req.UserID.String() {
			logger.Warn().Msg("server profile update would change the account identifier")
			return nil
		}
		account.Profile.Server = merged
		if err := s.resources.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to save account: %w", err)
		}
	}
	return peer.Send(ctx, &protocol.UserServerProfileUpdateSuccess{UserID: req.UserID})
}

// cloneObject deep-copies o through its JSON form.
func cloneObject(o protocol.Object) protocol.Object {
	data, err := json.Marshal(o)
	if err != nil {
		return protocol.Object{}
	}
	var out protocol.Object
	if err := json.Unmarshal(data, &out); err != nil {
		return protocol.Object{}
	}
	return out
}

func (s *Service) handleUpdateProfile(ctx context.Context, peer *network.Peer, req *protocol.UpdateProfile) error {
	logger := peer.Logger().With().Str("user", req.UserID.String()).Logger()
	if !s.sessions.CheckValid(req.Session, req.UserID) {
		logger.Warn().Msg("profile update with invalid session")
		return nil
	}

	account, err := s.resources.Account(ctx, req.UserID)
	if err != nil {
		logger.Warn().Err(err).Msg("profile update for unknown account")
		return nil
	}

	var client protocol.Object
	if err := json.Unmarshal(req.ClientProfile, &client); err != nil {
		logger.Warn().Err(err).Msg("malformed client profile")
		return nil
	}
	if client["xplatformid"] != req.UserID.String() {
		logger.Warn().Msg("client profile does not belong to the session user")
		return nil
	}

	account.Profile.Client = client
	account.Touch(s.clock.Now(), "updatetime", "modifytime")
	if err := s.resources.SaveAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return peer.Send(ctx,
		&protocol.UpdateProfileSuccess{UserID: req.UserID},
		&protocol.TcpConnectionUnrequireEvent{},
	)
}

func (s *Service) handleChannelInfo(ctx context.Context, peer *network.Peer) error {
	info, err := s.resources.ChannelInfo(ctx)
	if err == nil {
		if err := peer.Send(ctx, &protocol.ChannelInfoResponse{ChannelInfo: info}); err != nil {
			return err
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error().Err(err).Msg("failed to load channel info")
	}
	return peer.Send(ctx, &protocol.TcpConnectionUnrequireEvent{})
}

func (s *Service) documentFailure(ctx context.Context, peer *network.Peer, reason string) error {
	return peer.Send(ctx, &protocol.DocumentFailure{Unk0: 1, Message: reason})
}

func (s *Service) handleDocument(ctx context.Context, peer *network.Peer, req *protocol.DocumentRequestv2) error {
	nameSymbol, ok := s.resources.Symbol(ctx, req.Name)
	if !ok {
		return s.documentFailure(ctx, peer, "Could not resolve symbol for document name")
	}
	if req.Language == "" {
		return s.documentFailure(ctx, peer, "Could not resolve symbol for document language")
	}

	doc, err := s.resources.Document(ctx, req.Name, req.Language)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error().Err(err).Str("document", req.Name).Msg("failed to load document")
		}
		return s.documentFailure(ctx, peer, "Could not find document")
	}
	return peer.Send(ctx,
		&protocol.DocumentSuccess{NameSymbol: nameSymbol, Document: doc},
		&protocol.TcpConnectionUnrequireEvent{},
	)
}

func remoteLogLevel(l protocol.LogLevel) zerolog.Level {
	switch {
	case l&protocol.LogError != 0:
		return zerolog.ErrorLevel
	case l&protocol.LogWarning != 0:
		return zerolog.WarnLevel
	case l&protocol.LogInfo != 0:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

func (s *Service) handleRemoteLogs(peer *network.Peer, req *protocol.RemoteLogSetv3) {
	level := remoteLogLevel(req.LogLevel)
	for _, entry := range req.Logs {
		ev := peer.Logger().WithLevel(level).Str("client", req.UserID.String())
		if jsoniter.Valid([]byte(entry)) {
			ev = ev.RawJSON("entry", []byte(entry))
		} else {
			ev = ev.Str("entry", entry)
		}
		ev.Msg("remote log")
	}
}

// Purge drops expired session tokens.
func (s *Service) Purge(ctx context.Context) error {
	if n := s.sessions.Purge(); n > 0 {
		s.logger.Debug().Int("purged", n).Msg("purged expired login sessions")
	}
	return nil
}

// Stop clears every session token.
func (s *Service) Stop() {
	s.sessions.Clear()
}

var (
	_ network.Handler           = (*Service)(nil)
	_ network.DisconnectHandler = (*Service)(nil)
)
