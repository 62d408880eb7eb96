package protocol

import "fmt"

// PacketEncoderSettings describes the cryptographic parameters of the
// encrypted channel a client and game server establish after matchmaking.
// Only the parameter encoding lives here; the channel itself is external.
type PacketEncoderSettings struct {
	EncryptionEnabled       bool
	MacEnabled              bool
	MacDigestSize           int
	MacPBKDF2IterationCount int
	MacKeySize              int
	EncryptionKeySize       int
	RandomKeySize           int
}

const fieldMask = 0xFFF

// Bit offsets of the 12-bit fields.
const (
	offsetMacDigestSize     = 2
	offsetMacPBKDF2         = 14
	offsetMacKeySize        = 26
	offsetEncryptionKeySize = 38
	offsetRandomKeySize     = 50
)

// ParseEncoderSettings unpacks a settings bitfield.
func ParseEncoderSettings(flags uint64) PacketEncoderSettings {
	field := func(offset uint) int {
		return int((flags >> offset) & fieldMask)
	}
	return PacketEncoderSettings{
		EncryptionEnabled:       flags&1 != 0,
		MacEnabled:              flags&2 != 0,
		MacDigestSize:           field(offsetMacDigestSize),
		MacPBKDF2IterationCount: field(offsetMacPBKDF2),
		MacKeySize:              field(offsetMacKeySize),
		EncryptionKeySize:       field(offsetEncryptionKeySize),
		RandomKeySize:           field(offsetRandomKeySize),
	}
}

// Flags packs the settings into their 64-bit wire form. Numeric fields are
// masked to 12 bits.
func (s PacketEncoderSettings) Flags() uint64 {
	var flags uint64
	if s.EncryptionEnabled {
		flags |= 1
	}
	if s.MacEnabled {
		flags |= 2
	}
	put := func(v int, offset uint) {
		flags |= (uint64(v) & fieldMask) << offset
	}
	put(s.MacDigestSize, offsetMacDigestSize)
	put(s.MacPBKDF2IterationCount, offsetMacPBKDF2)
	put(s.MacKeySize, offsetMacKeySize)
	put(s.EncryptionKeySize, offsetEncryptionKeySize)
	put(s.RandomKeySize, offsetRandomKeySize)
	return flags
}

func (s PacketEncoderSettings) String() string {
	return fmt.Sprintf("PacketEncoderSettings(enc=%t, mac=%t, digest=%d, pbkdf2=%d, mac_key=%d, enc_key=%d, random_key=%d)",
		s.EncryptionEnabled, s.MacEnabled, s.MacDigestSize, s.MacPBKDF2IterationCount,
		s.MacKeySize, s.EncryptionKeySize, s.RandomKeySize)
}
