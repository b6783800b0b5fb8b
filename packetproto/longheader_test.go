package packetproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongHeaderRoundTripUnestablished(t *testing.T) {
	h := &LongHeader{
		Established:   false,
		RandomID:      0xCAFEBABE,
		CallID:        [16]byte{1, 2, 3, 4},
		LastRemoteSeq: 9,
		Seq:           10,
		AckMask:       0xFF00FF00,
	}
	wire := h.Serialize([]byte("hello"), nil)

	ph, err := ParseLongHeader(wire)
	require.NoError(t, err)
	assert.Equal(t, Long, ph.Dialect)
	assert.False(t, ph.Established)
	assert.True(t, ph.HasCallID)
	assert.Equal(t, h.CallID, ph.CallID)
	assert.Equal(t, uint32(9), ph.LastRemoteSeq)
	assert.Equal(t, uint32(10), ph.Seq)
	assert.Equal(t, uint32(0xFF00FF00), ph.AckMask)
	assert.Equal(t, []byte("hello"), ph.Body)
}

func TestLongHeaderRoundTripEstablished(t *testing.T) {
	h := &LongHeader{Established: true, CallID: [16]byte{9}}
	wire := h.Serialize([]byte("x"), nil)

	ph, err := ParseLongHeader(wire)
	require.NoError(t, err)
	assert.True(t, ph.Established)
}

func TestLongHeaderRejectsWrongMagic(t *testing.T) {
	h := &LongHeader{CallID: [16]byte{1}}
	wire := h.Serialize([]byte("x"), nil)

	// Flip a byte inside the 4-byte magic field to corrupt it without
	// touching any length-prefixed field.
	magicOffset := 4 + 4 + 4 + 16 + 4 + 4 + 4
	wire[magicOffset] ^= 0xFF

	_, err := ParseLongHeader(wire)
	assert.ErrorIs(t, err, ErrProtocolMagic)
}

func TestLongHeaderTruncated(t *testing.T) {
	_, err := ParseLongHeader([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestRandomPaddingLength(t *testing.T) {
	pad, err := RandomPadding(8)
	require.NoError(t, err)
	assert.Len(t, pad, 8)
}
