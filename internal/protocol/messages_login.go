package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// LoginAccountInfo is the account document sent with a login request.
type LoginAccountInfo struct {
	AccountID                   uint64  `json:"accountid"`
	DisplayName                 *string `json:"displayname"`
	BypassAuth                  *bool   `json:"bypassauth"`
	AccessToken                 *string `json:"access_token"`
	Nonce                       *string `json:"nonce"`
	BuildVersion                int64   `json:"buildversion"`
	LobbyVersion                *uint64 `json:"lobbyversion"`
	AppID                       *uint64 `json:"appid"`
	PublisherLock               *string `json:"publisher_lock"`
	HMDSerialNumber             *string `json:"hmdserialnumber"`
	DesiredClientProfileVersion *int64  `json:"desiredclientprofileversion"`
	Extras                      Extras  `json:"-"`
}

type loginAccountInfo LoginAccountInfo

func (a LoginAccountInfo) MarshalJSON() ([]byte, error) {
	return marshalWithExtras(loginAccountInfo(a), a.Extras)
}

func (a *LoginAccountInfo) UnmarshalJSON(data []byte) error {
	var known loginAccountInfo
	extras, err := unmarshalWithExtras(data, &known)
	if err != nil {
		return err
	}
	*a = LoginAccountInfo(known)
	a.Extras = extras
	return nil
}

// LoginRequest is a client's request to log in.
type LoginRequest struct {
	Session     uuid.UUID
	UserID      XPlatformID
	AccountInfo LoginAccountInfo
}

func (m *LoginRequest) Symbol() Symbol { return SymbolLoginRequest }

func (m *LoginRequest) Encode(w *Writer) error {
	w.WriteGUID(m.Session).WriteXPlatformID(m.UserID)
	return w.WriteJSON(m.AccountInfo, JSONPlain)
}

func (m *LoginRequest) Decode(r *Reader) error {
	m.Session = r.GUID()
	m.UserID = r.XPlatformID()
	r.JSON(&m.AccountInfo, JSONPlain)
	return r.Err()
}

func (m *LoginRequest) String() string {
	return fmt.Sprintf("LoginRequest(session=%s, user_id=%s)", m.Session, m.UserID)
}

// LoginSuccess carries the session token issued to a logged in user.
type LoginSuccess struct {
	Session uuid.UUID
	UserID  XPlatformID
}

func (m *LoginSuccess) Symbol() Symbol { return SymbolLoginSuccess }

func (m *LoginSuccess) Encode(w *Writer) error {
	w.WriteGUID(m.Session).WriteXPlatformID(m.UserID)
	return nil
}

func (m *LoginSuccess) Decode(r *Reader) error {
	m.Session = r.GUID()
	m.UserID = r.XPlatformID()
	return r.Err()
}

func (m *LoginSuccess) String() string {
	return fmt.Sprintf("LoginSuccess(session=%s, user_id=%s)", m.Session, m.UserID)
}

// LoginFailure rejects a login request.
type LoginFailure struct {
	UserID     XPlatformID
	StatusCode uint64
	Message    string
}

func (m *LoginFailure) Symbol() Symbol { return SymbolLoginFailure }

func (m *LoginFailure) Encode(w *Writer) error {
	w.WriteXPlatformID(m.UserID).WriteUint64(m.StatusCode).WriteNullString(m.Message)
	return nil
}

func (m *LoginFailure) Decode(r *Reader) error {
	m.UserID = r.XPlatformID()
	m.StatusCode = r.Uint64()
	m.Message = r.NullString()
	return r.Err()
}

func (m *LoginFailure) String() string {
	return fmt.Sprintf("LoginFailure(user_id=%s, status=%d, message=%q)", m.UserID, m.StatusCode, m.Message)
}

// LoginSettings carries the login settings resource.
type LoginSettings struct {
	Settings RawJSON
}

func (m *LoginSettings) Symbol() Symbol { return SymbolLoginSettings }

func (m *LoginSettings) Encode(w *Writer) error {
	return w.WriteJSON(m.Settings, JSONZlib)
}

func (m *LoginSettings) Decode(r *Reader) error {
	r.JSON(&m.Settings, JSONZlib)
	return r.Err()
}

// ChannelInfoRequest asks for the channel info resource.
type ChannelInfoRequest struct {
	Unused uint8
}

func (m *ChannelInfoRequest) Symbol() Symbol { return SymbolChannelInfoRequest }

func (m *ChannelInfoRequest) Encode(w *Writer) error {
	w.WriteUint8(m.Unused)
	return nil
}

func (m *ChannelInfoRequest) Decode(r *Reader) error {
	m.Unused = r.Uint8()
	return r.Err()
}

// ChannelInfoResponse carries the channel info resource.
type ChannelInfoResponse struct {
	ChannelInfo RawJSON
}

func (m *ChannelInfoResponse) Symbol() Symbol { return SymbolChannelInfoResponse }

func (m *ChannelInfoResponse) Encode(w *Writer) error {
	return w.WriteJSON(m.ChannelInfo, JSONZlib)
}

func (m *ChannelInfoResponse) Decode(r *Reader) error {
	r.JSON(&m.ChannelInfo, JSONZlib)
	return r.Err()
}

// DocumentRequestv2 asks for a localized document such as the EULA.
type DocumentRequestv2 struct {
	Language string
	Name     string
}

func (m *DocumentRequestv2) Symbol() Symbol { return SymbolDocumentRequestv2 }

func (m *DocumentRequestv2) Encode(w *Writer) error {
	w.WriteNullString(m.Language).WriteNullString(m.Name)
	return nil
}

func (m *DocumentRequestv2) Decode(r *Reader) error {
	m.Language = r.NullString()
	m.Name = r.NullString()
	return r.Err()
}

func (m *DocumentRequestv2) String() string {
	return fmt.Sprintf("DocumentRequestv2(lang=%s, name=%s)", m.Language, m.Name)
}

// DocumentSuccess carries a document resource.
type DocumentSuccess struct {
	NameSymbol Symbol
	Document   RawJSON
}

func (m *DocumentSuccess) Symbol() Symbol { return SymbolDocumentSuccess }

func (m *DocumentSuccess) Encode(w *Writer) error {
	w.WriteSymbol(m.NameSymbol)
	return w.WriteJSON(m.Document, JSONZstd)
}

func (m *DocumentSuccess) Decode(r *Reader) error {
	m.NameSymbol = r.Symbol()
	r.JSON(&m.Document, JSONZstd)
	return r.Err()
}

// DocumentFailure reports a failed document lookup. Its symbol collides
// with ConfigFailurev2, so it is encoded directly and never registered.
type DocumentFailure struct {
	Unk0    uint64
	Unk1    uint64
	Message string
}

func (m *DocumentFailure) Symbol() Symbol { return SymbolDocumentFailure }

func (m *DocumentFailure) Encode(w *Writer) error {
	w.WriteUint64(m.Unk0).WriteUint64(m.Unk1).WriteNullString(m.Message)
	return nil
}

func (m *DocumentFailure) Decode(r *Reader) error {
	m.Unk0 = r.Uint64()
	m.Unk1 = r.Uint64()
	m.Message = r.NullString()
	return r.Err()
}

// LoggedInUserProfileRequest asks for the caller's own profile.
type LoggedInUserProfileRequest struct {
	Session     uuid.UUID
	UserID      XPlatformID
	RequestData Object
}

func (m *LoggedInUserProfileRequest) Symbol() Symbol { return SymbolLoggedInUserProfileRequest }

func (m *LoggedInUserProfileRequest) Encode(w *Writer) error {
	w.WriteGUID(m.Session).WriteXPlatformID(m.UserID)
	return w.WriteJSON(objectOrEmpty(m.RequestData), JSONPlain)
}

func (m *LoggedInUserProfileRequest) Decode(r *Reader) error {
	m.Session = r.GUID()
	m.UserID = r.XPlatformID()
	r.JSON(&m.RequestData, JSONPlain)
	return r.Err()
}

// LoggedInUserProfileSuccess returns the caller's full profile.
type LoggedInUserProfileSuccess struct {
	UserID  XPlatformID
	Profile RawJSON
}

func (m *LoggedInUserProfileSuccess) Symbol() Symbol { return SymbolLoggedInUserProfileSuccess }

func (m *LoggedInUserProfileSuccess) Encode(w *Writer) error {
	w.WriteXPlatformID(m.UserID)
	return w.WriteJSON(m.Profile, JSONZstd)
}

func (m *LoggedInUserProfileSuccess) Decode(r *Reader) error {
	m.UserID = r.XPlatformID()
	r.JSON(&m.Profile, JSONZstd)
	return r.Err()
}

// OtherUserProfileRequest asks for another user's server profile.
type OtherUserProfileRequest struct {
	UserID      XPlatformID
	RequestData Object
}

func (m *OtherUserProfileRequest) Symbol() Symbol { return SymbolOtherUserProfileRequest }

func (m *OtherUserProfileRequest) Encode(w *Writer) error {
	w.WriteXPlatformID(m.UserID)
	return w.WriteJSON(objectOrEmpty(m.RequestData), JSONPlain)
}

func (m *OtherUserProfileRequest) Decode(r *Reader) error {
	m.UserID = r.XPlatformID()
	r.JSON(&m.RequestData, JSONPlain)
	return r.Err()
}

// OtherUserProfileSuccess returns another user's server profile.
type OtherUserProfileSuccess struct {
	UserID        XPlatformID
	ServerProfile RawJSON
}

func (m *OtherUserProfileSuccess) Symbol() Symbol { return SymbolOtherUserProfileSuccess }

func (m *OtherUserProfileSuccess) Encode(w *Writer) error {
	w.WriteXPlatformID(m.UserID)
	return w.WriteJSON(m.ServerProfile, JSONZstd)
}

func (m *OtherUserProfileSuccess) Decode(r *Reader) error {
	m.UserID = r.XPlatformID()
	r.JSON(&m.ServerProfile, JSONZstd)
	return r.Err()
}

// UpdateProfile replaces the caller's client profile.
type UpdateProfile struct {
	Session       uuid.UUID
	UserID        XPlatformID
	ClientProfile RawJSON
}

func (m *UpdateProfile) Symbol() Symbol { return SymbolUpdateProfile }

func (m *UpdateProfile) Encode(w *Writer) error {
	w.WriteGUID(m.Session).WriteXPlatformID(m.UserID)
	return w.WriteJSON(m.ClientProfile, JSONPlain)
}

func (m *UpdateProfile) Decode(r *Reader) error {
	m.Session = r.GUID()
	m.UserID = r.XPlatformID()
	r.JSON(&m.ClientProfile, JSONPlain)
	return r.Err()
}

// UpdateProfileSuccess acknowledges UpdateProfile.
type UpdateProfileSuccess struct {
	UserID XPlatformID
}

func (m *UpdateProfileSuccess) Symbol() Symbol { return SymbolUpdateProfileSuccess }

func (m *UpdateProfileSuccess) Encode(w *Writer) error {
	w.WriteXPlatformID(m.UserID)
	return nil
}

func (m *UpdateProfileSuccess) Decode(r *Reader) error {
	m.UserID = r.XPlatformID()
	return r.Err()
}

// UserServerProfileUpdateRequest is sent by game servers to update a
// player's server profile.
type UserServerProfileUpdateRequest struct {
	UserID     XPlatformID
	UpdateInfo Object
}

func (m *UserServerProfileUpdateRequest) Symbol() Symbol {
	return SymbolUserServerProfileUpdateRequest
}

func (m *UserServerProfileUpdateRequest) Encode(w *Writer) error {
	w.WriteXPlatformID(m.UserID)
	return w.WriteJSON(objectOrEmpty(m.UpdateInfo), JSONPlain)
}

func (m *UserServerProfileUpdateRequest) Decode(r *Reader) error {
	m.UserID = r.XPlatformID()
	r.JSON(&m.UpdateInfo, JSONPlain)
	return r.Err()
}

// UserServerProfileUpdateSuccess acknowledges UserServerProfileUpdateRequest.
type UserServerProfileUpdateSuccess struct {
	UserID XPlatformID
}

func (m *UserServerProfileUpdateSuccess) Symbol() Symbol {
	return SymbolUserServerProfileUpdateSuccess
}

func (m *UserServerProfileUpdateSuccess) Encode(w *Writer) error {
	w.WriteXPlatformID(m.UserID)
	return nil
}

func (m *UserServerProfileUpdateSuccess) Decode(r *Reader) error {
	m.UserID = r.XPlatformID()
	return r.Err()
}

// RemoteLogSetv3 carries a batch of client log lines.
//
// After the fixed fields come a u64 log count, a table of u32 offsets for
// every log but the first, and the null-terminated logs themselves. Offsets
// are relative to the end of the table.
type RemoteLogSetv3 struct {
	UserID   XPlatformID
	Unk0     uint64
	Unk1     uint64
	Unk2     uint64
	Unk3     uint64
	LogLevel LogLevel
	Logs     []string
}

func (m *RemoteLogSetv3) Symbol() Symbol { return SymbolRemoteLogSetv3 }

func (m *RemoteLogSetv3) Encode(w *Writer) error {
	w.WriteXPlatformID(m.UserID).
		WriteUint64(m.Unk0).WriteUint64(m.Unk1).WriteUint64(m.Unk2).WriteUint64(m.Unk3).
		WriteUint64(uint64(m.LogLevel)).
		WriteUint64(uint64(len(m.Logs)))

	body := NewWriter()
	for i, log := range m.Logs {
		body.WriteNullString(log)
		if i < len(m.Logs)-1 {
			w.WriteUint32(uint32(body.Len()))
		}
	}
	w.WriteBytes(body.Bytes())
	return nil
}

func (m *RemoteLogSetv3) Decode(r *Reader) error {
	m.UserID = r.XPlatformID()
	m.Unk0 = r.Uint64()
	m.Unk1 = r.Uint64()
	m.Unk2 = r.Uint64()
	m.Unk3 = r.Uint64()
	m.LogLevel = LogLevel(r.Uint64())
	count := r.Uint64()
	if r.Err() != nil {
		return r.Err()
	}
	if count > uint64(r.Remaining()) {
		return fmt.Errorf("log count %d exceeds payload", count)
	}

	offsets := make([]uint32, count)
	for i := 1; i < len(offsets); i++ {
		offsets[i] = r.Uint32()
	}
	body := r.Rest()
	if err := r.Err(); err != nil {
		return err
	}

	m.Logs = make([]string, count)
	for i, off := range offsets {
		if int(off) > len(body) {
			return fmt.Errorf("log %d offset %d exceeds payload", i, off)
		}
		m.Logs[i] = NewReader(body[off:]).NullString()
	}
	return nil
}

func (m *RemoteLogSetv3) String() string {
	return fmt.Sprintf("RemoteLogSetv3(user_id=%s, level=%s, logs=%d)", m.UserID, m.LogLevel, len(m.Logs))
}

func objectOrEmpty(o Object) Object {
	if o == nil {
		return Object{}
	}
	return o
}
