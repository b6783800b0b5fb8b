package packetproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitBodyRoundTrip(t *testing.T) {
	b := &InitBody{
		ProtoVer:      ProtocolVersion,
		MinProtoVer:   MinProtocolVersion,
		Flags:         InitFlagDataSaving | InitFlagVideoRecvSupported,
		AudioCodecs:   []uint32{0x53555047}, // arbitrary fourcc-style codec id
		VideoDecoders: []uint32{},
		MaxVideoRes:   3,
	}
	wire := b.Serialize()

	got, err := ParseInitBody(wire)
	require.NoError(t, err)
	assert.Equal(t, b.ProtoVer, got.ProtoVer)
	assert.Equal(t, b.Flags, got.Flags)
	assert.Equal(t, b.AudioCodecs, got.AudioCodecs)
	assert.Equal(t, b.MaxVideoRes, got.MaxVideoRes)
}

func TestInitBodyTruncated(t *testing.T) {
	_, err := ParseInitBody([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestInitAckBodyRoundTrip(t *testing.T) {
	b := &InitAckBody{
		ProtoVer:    ProtocolVersion,
		MinProtoVer: MinProtocolVersion,
		Streams: []InitAckStream{
			{StreamID: 1, Type: 1, Codec: 0x53555047, FrameDuration: 60, Enabled: 1},
		},
	}
	wire := b.Serialize()
	got, err := ParseInitAckBody(wire)
	require.NoError(t, err)
	require.Len(t, got.Streams, 1)
	assert.Equal(t, b.Streams[0], got.Streams[0])
}

func TestStreamDataSubPacketRoundTrip(t *testing.T) {
	s := &StreamDataSubPacket{
		StreamID:   1,
		PTS:        12345,
		Fragmented: true,
		FragmentIndex: 1,
		FragmentCount: 3,
		Keyframe:   true,
		Payload:    []byte("encoded-audio-bytes"),
	}
	wire := s.Serialize()

	got, n, err := ParseStreamDataSubPacket(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, s.StreamID, got.StreamID)
	assert.Equal(t, s.PTS, got.PTS)
	assert.True(t, got.Fragmented)
	assert.True(t, got.Keyframe)
	assert.Equal(t, s.FragmentIndex, got.FragmentIndex)
	assert.Equal(t, s.FragmentCount, got.FragmentCount)
	assert.Equal(t, s.Payload, got.Payload)
}

func TestStreamDataSubPacketWithExtraFEC(t *testing.T) {
	s := &StreamDataSubPacket{
		StreamID: 1,
		PTS:      99,
		Payload:  []byte("abc"),
		ExtraFEC: []StreamDataECChunk{{Data: []byte("redundant-1")}, {Data: []byte("r2")}},
	}
	wire := s.Serialize()
	got, n, err := ParseStreamDataSubPacket(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	require.Len(t, got.ExtraFEC, 2)
	assert.Equal(t, []byte("redundant-1"), got.ExtraFEC[0].Data)
	assert.Equal(t, []byte("r2"), got.ExtraFEC[1].Data)
}

func TestParseStreamDataSubPacketsX3(t *testing.T) {
	subs := []*StreamDataSubPacket{
		{StreamID: 1, PTS: 1, Payload: []byte("a")},
		{StreamID: 1, PTS: 2, Payload: []byte("bb")},
		{StreamID: 1, PTS: 3, Payload: []byte("ccc")},
	}
	var wire []byte
	for _, s := range subs {
		wire = append(wire, s.Serialize()...)
	}

	got, err := ParseStreamDataSubPackets(wire, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, s := range subs {
		assert.Equal(t, s.Payload, got[i].Payload)
		assert.Equal(t, s.PTS, got[i].PTS)
	}
}

func TestStreamECBodyRoundTrip(t *testing.T) {
	b := &StreamECBody{
		StreamID:       1,
		FrameSeq:       7,
		Scheme:         StreamECXOR,
		PrevFrameCount: 3,
		Payload:        []byte("xor-parity-bytes"),
	}
	wire := b.Serialize()
	got, err := ParseStreamECBody(wire)
	require.NoError(t, err)
	assert.Equal(t, b.StreamID, got.StreamID)
	assert.Equal(t, b.FrameSeq, got.FrameSeq)
	assert.Equal(t, b.Scheme, got.Scheme)
	assert.Equal(t, b.PrevFrameCount, got.PrevFrameCount)
	assert.Equal(t, b.Payload, got.Payload)
}

func TestPongBodyRoundTrip(t *testing.T) {
	b := &PongBody{PingSeq: 42}
	got, err := ParsePongBody(b.Serialize())
	require.NoError(t, err)
	assert.Equal(t, uint32(42), got.PingSeq)
}

func TestStreamDataSubPacketCount(t *testing.T) {
	assert.Equal(t, 1, StreamDataSubPacketCount(PacketStreamData))
	assert.Equal(t, 2, StreamDataSubPacketCount(PacketStreamDataX2))
	assert.Equal(t, 3, StreamDataSubPacketCount(PacketStreamDataX3))
	assert.Equal(t, 0, StreamDataSubPacketCount(PacketPing))
}
