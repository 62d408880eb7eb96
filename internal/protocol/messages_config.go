package protocol

import "fmt"

// TcpConnectionUnrequireEvent tells the peer a service no longer needs the
// connection.
type TcpConnectionUnrequireEvent struct {
	Unused uint8
}

func (m *TcpConnectionUnrequireEvent) Symbol() Symbol { return SymbolTcpConnectionUnrequireEvent }

func (m *TcpConnectionUnrequireEvent) Encode(w *Writer) error {
	w.WriteUint8(m.Unused)
	return nil
}

func (m *TcpConnectionUnrequireEvent) Decode(r *Reader) error {
	m.Unused = r.Uint8()
	return r.Err()
}

// ConfigIdentity names a config resource by type and id.
type ConfigIdentity struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Extras Extras `json:"-"`
}

type configIdentity ConfigIdentity

func (c ConfigIdentity) MarshalJSON() ([]byte, error) {
	return marshalWithExtras(configIdentity(c), c.Extras)
}

func (c *ConfigIdentity) UnmarshalJSON(data []byte) error {
	var known configIdentity
	extras, err := unmarshalWithExtras(data, &known)
	if err != nil {
		return err
	}
	*c = ConfigIdentity(known)
	c.Extras = extras
	return nil
}

// ConfigRequestv2 asks for a config resource.
type ConfigRequestv2 struct {
	TypeTail uint8
	Info     ConfigIdentity
}

func (m *ConfigRequestv2) Symbol() Symbol { return SymbolConfigRequestv2 }

func (m *ConfigRequestv2) Encode(w *Writer) error {
	w.WriteUint8(m.TypeTail)
	return w.WriteJSON(m.Info, JSONPlain)
}

func (m *ConfigRequestv2) Decode(r *Reader) error {
	m.TypeTail = r.Uint8()
	r.JSON(&m.Info, JSONPlain)
	return r.Err()
}

func (m *ConfigRequestv2) String() string {
	return fmt.Sprintf("ConfigRequestv2(type=%s, id=%s)", m.Info.Type, m.Info.ID)
}

// ConfigSuccessv2 returns a config resource.
type ConfigSuccessv2 struct {
	TypeSymbol Symbol
	IDSymbol   Symbol
	Resource   RawJSON
}

func (m *ConfigSuccessv2) Symbol() Symbol { return SymbolConfigSuccessv2 }

func (m *ConfigSuccessv2) Encode(w *Writer) error {
	w.WriteSymbol(m.TypeSymbol).WriteSymbol(m.IDSymbol)
	return w.WriteJSON(m.Resource, JSONZstd)
}

func (m *ConfigSuccessv2) Decode(r *Reader) error {
	m.TypeSymbol = r.Symbol()
	m.IDSymbol = r.Symbol()
	r.JSON(&m.Resource, JSONZstd)
	return r.Err()
}

// ConfigErrorInfo describes a failed config lookup.
type ConfigErrorInfo struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ErrorCode int64  `json:"errorcode"`
	Error     string `json:"error"`
}

// ConfigFailurev2 reports a failed config lookup.
type ConfigFailurev2 struct {
	Unk0 Uint128
	Info ConfigErrorInfo
}

func (m *ConfigFailurev2) Symbol() Symbol { return SymbolConfigFailurev2 }

func (m *ConfigFailurev2) Encode(w *Writer) error {
	w.WriteUint128(m.Unk0)
	return w.WriteJSON(m.Info, JSONPlain)
}

func (m *ConfigFailurev2) Decode(r *Reader) error {
	m.Unk0 = r.Uint128()
	r.JSON(&m.Info, JSONPlain)
	return r.Err()
}

func (m *ConfigFailurev2) String() string {
	return fmt.Sprintf("ConfigFailurev2(type=%s, id=%s, errorcode=%d, error=%q)",
		m.Info.Type, m.Info.ID, m.Info.ErrorCode, m.Info.Error)
}
