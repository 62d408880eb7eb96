package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFraming matches every FramingError via errors.Is.
var ErrFraming = errors.New("protocol: malformed packet")

// FramingError reports a packet that could not be split into messages.
type FramingError struct {
	Offset int
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed packet at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed packet at offset %d: %s", e.Offset, e.Reason)
}

func (e *FramingError) Is(target error) bool {
	return target == ErrFraming
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// Codec encodes and decodes packets against a registry.
type Codec struct {
	registry *Registry
	strict   bool
}

// NewCodec creates a codec. In strict mode unknown symbols fail decoding.
func NewCodec(registry *Registry, strict bool) *Codec {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Codec{registry: registry, strict: strict}
}

// Registry returns the codec's registry.
func (c *Codec) Registry() *Registry {
	return c.registry
}

// EncodeMessage encodes a single message payload without its header.
func EncodeMessage(m Message) ([]byte, error) {
	w := NewWriter()
	if err := m.Encode(w); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m.Symbol(), err)
	}
	return w.Bytes(), nil
}

// EncodePacket encodes messages into one packet.
func (c *Codec) EncodePacket(messages ...Message) ([]byte, error) {
	out := make([]byte, 0, HeaderSize*len(messages))
	for _, m := range messages {
		payload, err := EncodeMessage(m)
		if err != nil {
			return nil, err
		}
		out = binary.LittleEndian.AppendUint64(out, PacketMagic)
		out = binary.LittleEndian.AppendUint64(out, uint64(m.Symbol()))
		out = binary.LittleEndian.AppendUint64(out, uint64(len(payload)))
		out = append(out, payload...)
	}
	return out, nil
}

// DecodePacket splits data into messages. It never returns a partial
// packet: any malformed message fails the whole packet with a FramingError.
func (c *Codec) DecodePacket(data []byte) ([]Message, error) {
	var messages []Message
	off := 0
	for off < len(data) {
		if len(data)-off < HeaderSize {
			return nil, &FramingError{Offset: off, Reason: "truncated header"}
		}
		if magic := binary.LittleEndian.Uint64(data[off:]); magic != PacketMagic {
			return nil, &FramingError{Offset: off, Reason: fmt.Sprintf("bad magic 0x%016x", magic)}
		}
		symbol := Symbol(binary.LittleEndian.Uint64(data[off+8:]))
		length := binary.LittleEndian.Uint64(data[off+16:])
		body := off + HeaderSize
		if length > uint64(len(data)-body) {
			return nil, &FramingError{Offset: off, Reason: fmt.Sprintf("declared length %d exceeds remaining %d bytes", length, len(data)-body)}
		}
		payload := data[body : body+int(length)]

		m, err := c.registry.CreateMessage(symbol, c.strict)
		if err != nil {
			return nil, &FramingError{Offset: off, Reason: "unknown symbol", Err: err}
		}
		r := NewReader(payload)
		if err := m.Decode(r); err != nil {
			return nil, &FramingError{Offset: off, Reason: "failed to decode " + c.registry.NameOf(m), Err: err}
		}
		messages = append(messages, m)
		off = body + int(length)
	}
	return messages, nil
}

var defaultCodec = NewCodec(nil, false)

// EncodePacket encodes messages with the default registry.
func EncodePacket(messages ...Message) ([]byte, error) {
	return defaultCodec.EncodePacket(messages...)
}

// DecodePacket decodes data with the default registry, tolerating unknown
// symbols.
func DecodePacket(data []byte) ([]Message, error) {
	return defaultCodec.DecodePacket(data)
}
