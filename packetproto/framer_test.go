package packetproto

import (
	"testing"

	"github.com/opd-ai/vvoip/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) crypto.SharedKey {
	t.Helper()
	var key crypto.SharedKey
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestPeerTagPrefixRelay(t *testing.T) {
	key := testKey(t)
	tag := [16]byte{1, 2, 3}
	prefix := PeerTagPrefix(true, tag, 9, key)
	assert.Equal(t, tag[:], prefix)
}

func TestPeerTagPrefixDirectLegacy(t *testing.T) {
	key := testKey(t)
	prefix := PeerTagPrefix(false, [16]byte{}, 3, key)
	want := crypto.CallID(key[:])
	assert.Equal(t, want[:], prefix)
}

func TestPeerTagPrefixDirectModern(t *testing.T) {
	key := testKey(t)
	prefix := PeerTagPrefix(false, [16]byte{}, 9, key)
	assert.Nil(t, prefix)
}

func TestSelectDialect(t *testing.T) {
	assert.Equal(t, Short, SelectDialect(8, true, 0))
	assert.Equal(t, Long, SelectDialect(7, true, 0))
	assert.Equal(t, Short, SelectDialect(0, false, 92))
	assert.Equal(t, Long, SelectDialect(0, false, 91))
}

func TestEnvelopeVersionSelection(t *testing.T) {
	assert.Equal(t, crypto.MTProto1, EnvelopeVersion(4))
	assert.Equal(t, crypto.MTProto2, EnvelopeVersion(5))
}

func TestFramerEncodeDecodeShortDirect(t *testing.T) {
	key := testKey(t)
	f := NewFramer(key, Short)

	h := &ShortHeader{Type: 2, LastRemoteSeq: 1, Seq: 2, AckMask: 0}
	wire, err := f.EncodeShort(h, []byte("audio-frame"), false, [16]byte{}, 9)
	require.NoError(t, err)

	ph, err := f.DecodeShort(wire, 0, 9)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), ph.Type)
	assert.Equal(t, []byte("audio-frame"), ph.Body)
}

func TestFramerEncodeDecodeShortViaRelay(t *testing.T) {
	key := testKey(t)
	f := NewFramer(key, Short)
	tag := [16]byte{0xAA, 0xBB}

	h := &ShortHeader{Type: 1, LastRemoteSeq: 0, Seq: 1, AckMask: 0}
	wire, err := f.EncodeShort(h, []byte("x"), true, tag, 9)
	require.NoError(t, err)

	assert.Equal(t, tag[:], wire[:16])
	ph, err := f.DecodeShort(wire, 16, 9)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), ph.Body)
}

func TestFramerEncodeDecodeLong(t *testing.T) {
	key := testKey(t)
	f := NewFramer(key, Long)

	h := &LongHeader{Established: true, CallID: [16]byte{7}, LastRemoteSeq: 3, Seq: 4, AckMask: 0xF}
	wire, err := f.EncodeLong(h, []byte("legacy-body"), false, [16]byte{}, 3)
	require.NoError(t, err)

	prefixLen := len(crypto.CallID(key[:]))
	ph, err := f.DecodeLong(wire, prefixLen, 3)
	require.NoError(t, err)
	assert.True(t, ph.Established)
	assert.Equal(t, []byte("legacy-body"), ph.Body)
}

func TestFramerDecodeShortRejectsTampering(t *testing.T) {
	key := testKey(t)
	f := NewFramer(key, Short)

	h := &ShortHeader{Type: 1, LastRemoteSeq: 0, Seq: 1}
	wire, err := f.EncodeShort(h, []byte("data"), false, [16]byte{}, 9)
	require.NoError(t, err)

	wire[len(wire)-1] ^= 0xFF
	_, err = f.DecodeShort(wire, 0, 9)
	assert.Error(t, err)
}
