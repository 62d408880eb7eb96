package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
)

// ErrShortBuffer is returned when a payload ends before a field is complete.
var ErrShortBuffer = errors.New("protocol: short buffer")

// Reader decodes message payloads. The first error is sticky: once a read
// fails, every later read returns a zero value and Err reports the failure.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Fail records err unless an earlier error is already set.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, r.Remaining())
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Bool reads a single byte as a boolean.
func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Uint16BE reads a uint16 in network byte order.
func (r *Reader) Uint16BE() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

// Int16 reads a little-endian int16.
func (r *Reader) Int16() int16 {
	return int16(r.Uint16())
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Int64 reads a little-endian int64.
func (r *Reader) Int64() int64 {
	return int64(r.Uint64())
}

// Symbol reads an int64 symbol.
func (r *Reader) Symbol() Symbol {
	return Symbol(r.Int64())
}

// Uint128 reads two little-endian halves, low first.
func (r *Reader) Uint128() Uint128 {
	lo := r.Uint64()
	hi := r.Uint64()
	return Uint128{Lo: lo, Hi: hi}
}

// GUID reads a GUID from its mixed-endian wire layout.
func (r *Reader) GUID() uuid.UUID {
	b := r.take(16)
	if b == nil {
		return uuid.Nil
	}
	return uuid.UUID(swapGUID([16]byte(b)))
}

// IPv4BE reads an IPv4 address in network byte order.
func (r *Reader) IPv4BE() netip.Addr {
	b := r.take(4)
	if b == nil {
		return netip.IPv4Unspecified()
	}
	return netip.AddrFrom4([4]byte{b[0], b[1], b[2], b[3]})
}

// IPv4LE reads an IPv4 address whose octets are reversed.
func (r *Reader) IPv4LE() netip.Addr {
	b := r.take(4)
	if b == nil {
		return netip.IPv4Unspecified()
	}
	return netip.AddrFrom4([4]byte{b[3], b[2], b[1], b[0]})
}

// XPlatformID reads a platform code and account id.
func (r *Reader) XPlatformID() XPlatformID {
	platform := r.Uint64()
	account := r.Uint64()
	return XPlatformID{Platform: PlatformCode(platform), AccountID: account}
}

// NullString reads a null-terminated UTF-8 string. A string running to the end
// of the payload without a terminator is accepted.
func (r *Reader) NullString() string {
	if r.err != nil {
		return ""
	}
	rest := r.data[r.off:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		r.off += i + 1
		return string(rest[:i])
	}
	r.off = len(r.data)
	return string(rest)
}

// FixedString reads size bytes and trims trailing null padding.
func (r *Reader) FixedString(size int) string {
	b := r.take(size)
	return string(bytes.TrimRight(b, "\x00"))
}

// Bytes reads n raw bytes into a new slice.
func (r *Reader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return bytes.Clone(b)
}

// Rest reads every remaining byte.
func (r *Reader) Rest() []byte {
	b := r.Bytes(r.Remaining())
	if b == nil {
		return []byte{}
	}
	return b
}

// JSON decodes an embedded JSON value into dst using the given convention.
func (r *Reader) JSON(dst any, mode JSONMode) {
	if r.err != nil {
		return
	}
	var body []byte
	switch mode {
	case JSONPlain:
		rest := r.data[r.off:]
		if i := bytes.IndexByte(rest, 0); i >= 0 {
			body = rest[:i]
			r.off += i + 1
		} else {
			body = rest
			r.off = len(r.data)
		}
	case JSONPlainUnterminated:
		body = r.take(r.Remaining())
	case JSONZstd:
		size := r.Uint32()
		raw, err := decompressZstd(r.take(r.Remaining()), int(size))
		if err != nil {
			r.Fail(err)
			return
		}
		body = trimNull(raw)
	case JSONZlib:
		size := r.Uint64()
		raw, err := decompressZlib(r.take(r.Remaining()), size)
		if err != nil {
			r.Fail(err)
			return
		}
		body = trimNull(raw)
	default:
		r.Fail(fmt.Errorf("unsupported json mode %d", mode))
		return
	}
	if r.err != nil {
		return
	}
	if err := decodeJSON(body, dst); err != nil {
		r.Fail(err)
	}
}

func trimNull(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}
