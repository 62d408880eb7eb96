// Package protocol implements the binary message protocol spoken by game
// clients and game servers over the relay's websocket endpoints.
//
// A packet is one websocket binary frame holding a sequence of messages.
// Each message is framed as [magic:8][symbol:8][length:8][payload] with all
// header fields little-endian. Payload layouts are fixed per message type.
package protocol

import "fmt"

// PacketMagic prefixes every message header inside a packet.
const PacketMagic uint64 = 0xbb8ce7a278bb40f6

// MaxPacketSize is the maximum size of a single websocket frame.
const MaxPacketSize = 0x8000

// HeaderSize is the size of a message header in bytes.
const HeaderSize = 24

// Symbol is a 64-bit identifier for a message type or a named game resource.
type Symbol int64

// String returns the symbol as an unsigned hex value.
func (s Symbol) String() string {
	return fmt.Sprintf("0x%016x", uint64(s))
}

// Message is a single typed unit of application data carried in a packet.
type Message interface {
	// Symbol returns the fixed type symbol for this message.
	Symbol() Symbol
	// Encode writes the payload of the message.
	Encode(w *Writer) error
	// Decode reads the payload of the message.
	Decode(r *Reader) error
}

// UnimplementedMessage holds a well-framed message whose symbol is not
// registered. Its payload is kept verbatim.
type UnimplementedMessage struct {
	TypeSymbol Symbol
	Data       []byte
}

func (m *UnimplementedMessage) Symbol() Symbol { return m.TypeSymbol }

func (m *UnimplementedMessage) Encode(w *Writer) error {
	w.WriteBytes(m.Data)
	return nil
}

func (m *UnimplementedMessage) Decode(r *Reader) error {
	m.Data = r.Rest()
	return r.Err()
}

func (m *UnimplementedMessage) String() string {
	return fmt.Sprintf("UnimplementedMessage(symbol=%s, data=%x)", m.TypeSymbol, m.Data)
}
