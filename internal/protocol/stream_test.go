package protocol

import (
	"net/netip"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGUID_MixedEndianLayout(t *testing.T) {
	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	w := NewWriter().WriteGUID(id)
	assert.Equal(t, []byte{
		0x33, 0x22, 0x11, 0x00,
		0x55, 0x44,
		0x77, 0x66,
		0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
	}, w.Bytes())

	r := NewReader(w.Bytes())
	assert.Equal(t, id, r.GUID())
	require.NoError(t, r.Err())
}

func TestIPv4_ByteOrders(t *testing.T) {
	addr := netip.MustParseAddr("10.1.2.3")
	w := NewWriter().WriteIPv4BE(addr).WriteIPv4LE(addr)
	assert.Equal(t, []byte{10, 1, 2, 3, 3, 2, 1, 10}, w.Bytes())

	r := NewReader(w.Bytes())
	assert.Equal(t, addr, r.IPv4BE())
	assert.Equal(t, addr, r.IPv4LE())
}

func TestReader_StickyError(t *testing.T) {
	r := NewReader([]byte{1, 2})
	assert.Zero(t, r.Uint32())
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
	assert.Zero(t, r.Uint8())
	assert.Equal(t, 2, r.Remaining())
}

func TestReader_NullString(t *testing.T) {
	r := NewReader([]byte("abc\x00def"))
	assert.Equal(t, "abc", r.NullString())
	assert.Equal(t, "def", r.NullString())
	assert.Zero(t, r.Remaining())
	require.NoError(t, r.Err())
}

func TestFixedString_PadsAndTruncates(t *testing.T) {
	w := NewWriter().WriteFixedString("hi", 4).WriteFixedString("toolong", 3)
	assert.Equal(t, []byte("hi\x00\x00too"), w.Bytes())

	r := NewReader(w.Bytes())
	assert.Equal(t, "hi", r.FixedString(4))
	assert.Equal(t, "too", r.FixedString(3))
}

func TestXPlatformID_Parse(t *testing.T) {
	tests := []struct {
		in   string
		want XPlatformID
	}{
		{"OVR-ORG-3963667097037078", XPlatformID{Platform: PlatformOVRORG, AccountID: 3963667097037078}},
		{"STM-76561198000000000", XPlatformID{Platform: PlatformSTM, AccountID: 76561198000000000}},
		{"DMO-1", XPlatformID{Platform: PlatformDMO, AccountID: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseXPlatformID(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
			assert.True(t, got.Valid())
		})
	}

	_, err := ParseXPlatformID("nodash")
	assert.Error(t, err)
	_, err = ParseXPlatformID("OVR-abc")
	assert.Error(t, err)

	unknown, err := ParseXPlatformID("XYZ-5")
	require.NoError(t, err)
	assert.False(t, unknown.Valid())
}

func TestExtras_PreservedThroughSessionSettings(t *testing.T) {
	var s SessionSettings
	require.NoError(t, json.Unmarshal([]byte(`{"appid":"1369078409873402","gametype":301069346851901302,"custom":{"x":1}}`), &s))
	require.NotNil(t, s.AppID)
	assert.Equal(t, "1369078409873402", *s.AppID)
	require.NotNil(t, s.GameType)
	assert.Equal(t, int64(301069346851901302), *s.GameType)
	assert.Nil(t, s.Level)
	assert.Contains(t, s.Extras, "custom")

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"appid":"1369078409873402","gametype":301069346851901302,"custom":{"x":1}}`, string(out))
}
