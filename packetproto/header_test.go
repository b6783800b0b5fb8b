package packetproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortHeaderRoundTrip(t *testing.T) {
	h := &ShortHeader{
		Type:          4,
		LastRemoteSeq: 100,
		Seq:           101,
		AckMask:       0xABCD1234,
	}
	wire := h.Serialize([]byte("payload"))

	ph, err := ParseShortHeader(wire)
	require.NoError(t, err)
	assert.Equal(t, Short, ph.Dialect)
	assert.Equal(t, uint8(4), ph.Type)
	assert.Equal(t, uint32(100), ph.LastRemoteSeq)
	assert.Equal(t, uint32(101), ph.Seq)
	assert.Equal(t, uint32(0xABCD1234), ph.AckMask)
	assert.False(t, ph.HasExtra)
	assert.False(t, ph.HasRecvTS)
	assert.Equal(t, []byte("payload"), ph.Body)
}

func TestShortHeaderWithExtraAndRecvTS(t *testing.T) {
	h := &ShortHeader{
		Type:          1,
		LastRemoteSeq: 5,
		Seq:           6,
		AckMask:       0,
		Extra:         []byte{0xAA, 0xBB, 0xCC},
		HasRecvTS:     true,
		RecvTS:        123456,
	}
	wire := h.Serialize([]byte("body-data"))

	ph, err := ParseShortHeader(wire)
	require.NoError(t, err)
	assert.True(t, ph.HasExtra)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, ph.Extra)
	assert.True(t, ph.HasRecvTS)
	assert.Equal(t, uint32(123456), ph.RecvTS)
	assert.Equal(t, []byte("body-data"), ph.Body)
}

func TestParseShortHeaderTruncated(t *testing.T) {
	_, err := ParseShortHeader([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParseShortHeaderTruncatedExtra(t *testing.T) {
	h := &ShortHeader{Type: 1, Extra: []byte{1, 2, 3, 4}}
	wire := h.Serialize(nil)
	// Cut off mid-extra-blob.
	truncated := wire[:len(wire)-2]
	_, err := ParseShortHeader(truncated)
	assert.ErrorIs(t, err, ErrTruncated)
}
