package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
)

// Writer builds message payloads. Values are little-endian unless the
// method name says otherwise.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Reset clears the writer for reuse.
func (w *Writer) Reset() {
	w.buf.Reset()
}

// WriteUint8 writes a single byte.
func (w *Writer) WriteUint8(v uint8) *Writer {
	w.buf.WriteByte(v)
	return w
}

// WriteBool writes a boolean as a single byte.
func (w *Writer) WriteBool(v bool) *Writer {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

// WriteUint16 writes a uint16 in little-endian order.
func (w *Writer) WriteUint16(v uint16) *Writer {
	w.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
	return w
}

// WriteUint16BE writes a uint16 in network byte order.
func (w *Writer) WriteUint16BE(v uint16) *Writer {
	w.buf.Write(binary.BigEndian.AppendUint16(nil, v))
	return w
}

// WriteInt16 writes an int16 in little-endian order.
func (w *Writer) WriteInt16(v int16) *Writer {
	return w.WriteUint16(uint16(v))
}

// WriteUint32 writes a uint32 in little-endian order.
func (w *Writer) WriteUint32(v uint32) *Writer {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
	return w
}

// WriteUint64 writes a uint64 in little-endian order.
func (w *Writer) WriteUint64(v uint64) *Writer {
	w.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
	return w
}

// WriteInt64 writes an int64 in little-endian order.
func (w *Writer) WriteInt64(v int64) *Writer {
	return w.WriteUint64(uint64(v))
}

// WriteSymbol writes a symbol as an int64.
func (w *Writer) WriteSymbol(s Symbol) *Writer {
	return w.WriteInt64(int64(s))
}

// WriteUint128 writes a 128-bit value as two little-endian halves, low first.
func (w *Writer) WriteUint128(v Uint128) *Writer {
	return w.WriteUint64(v.Lo).WriteUint64(v.Hi)
}

// WriteGUID writes a GUID in its mixed-endian wire layout.
func (w *Writer) WriteGUID(id uuid.UUID) *Writer {
	b := swapGUID(id)
	w.buf.Write(b[:])
	return w
}

// WriteIPv4BE writes an IPv4 address in network byte order.
func (w *Writer) WriteIPv4BE(addr netip.Addr) *Writer {
	b := ipv4Bytes(addr)
	w.buf.Write(b[:])
	return w
}

// WriteIPv4LE writes an IPv4 address with its octets reversed.
func (w *Writer) WriteIPv4LE(addr netip.Addr) *Writer {
	b := ipv4Bytes(addr)
	w.buf.Write([]byte{b[3], b[2], b[1], b[0]})
	return w
}

// WriteXPlatformID writes a platform code and account id.
func (w *Writer) WriteXPlatformID(id XPlatformID) *Writer {
	return w.WriteUint64(uint64(id.Platform)).WriteUint64(id.AccountID)
}

// WriteNullString writes a null-terminated UTF-8 string.
func (w *Writer) WriteNullString(s string) *Writer {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
	return w
}

// WriteFixedString writes s truncated or zero-padded to exactly size bytes.
func (w *Writer) WriteFixedString(s string, size int) *Writer {
	data := []byte(s)
	if len(data) > size {
		data = data[:size]
	}
	w.buf.Write(data)
	if pad := size - len(data); pad > 0 {
		w.buf.Write(make([]byte, pad))
	}
	return w
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(data []byte) *Writer {
	w.buf.Write(data)
	return w
}

// WriteJSON writes v using the given embedding convention.
func (w *Writer) WriteJSON(v any, mode JSONMode) error {
	data, err := encodeJSON(v, mode)
	if err != nil {
		return err
	}
	w.buf.Write(data)
	return nil
}

// Bytes returns the constructed payload.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the current size of the payload being built.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// String returns a hex dump of the current payload for debugging.
func (w *Writer) String() string {
	data := w.buf.Bytes()
	return fmt.Sprintf("Writer[%d bytes]: %x", len(data), data)
}

// Uint128 is an opaque 128-bit little-endian value.
type Uint128 struct {
	Lo uint64
	Hi uint64
}

// swapGUID converts between RFC 4122 byte order and the wire layout, where
// the first three groups are little-endian. The transform is its own inverse.
func swapGUID(id [16]byte) [16]byte {
	return [16]byte{
		id[3], id[2], id[1], id[0],
		id[5], id[4],
		id[7], id[6],
		id[8], id[9], id[10], id[11], id[12], id[13], id[14], id[15],
	}
}

func ipv4Bytes(addr netip.Addr) [4]byte {
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	if !addr.Is4() {
		return [4]byte{}
	}
	return addr.As4()
}
