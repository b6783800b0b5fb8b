package packetproto

import (
	"encoding/binary"
)

// Init flags (spec §6).
const (
	InitFlagDataSaving          uint32 = 1 << 0
	InitFlagGroupCallsSupported uint32 = 1 << 1
	InitFlagVideoRecvSupported  uint32 = 1 << 2
	InitFlagVideoSendSupported  uint32 = 1 << 3
)

// PROTOCOL_VERSION and MIN_PROTOCOL_VERSION (spec §6).
const (
	ProtocolVersion    uint32 = 9
	MinProtocolVersion uint32 = 3
)

// InitBody is the handshake's opening message body (spec §6 INIT).
type InitBody struct {
	ProtoVer      uint32
	MinProtoVer   uint32
	Flags         uint32
	AudioCodecs   []uint32
	VideoDecoders []uint32
	MaxVideoRes   uint8
}

// Serialize encodes an InitBody.
func (b *InitBody) Serialize() []byte {
	out := make([]byte, 0, 4+4+4+1+4*len(b.AudioCodecs)+1+4*len(b.VideoDecoders)+1)
	out = appendU32(out, b.ProtoVer)
	out = appendU32(out, b.MinProtoVer)
	out = appendU32(out, b.Flags)
	out = append(out, uint8(len(b.AudioCodecs)))
	for _, c := range b.AudioCodecs {
		out = appendU32(out, c)
	}
	out = append(out, uint8(len(b.VideoDecoders)))
	for _, c := range b.VideoDecoders {
		out = appendU32(out, c)
	}
	out = append(out, b.MaxVideoRes)
	return out
}

// ParseInitBody decodes an InitBody, dropping the packet (returning an
// error) on any truncated field rather than panicking (spec §7).
func ParseInitBody(data []byte) (*InitBody, error) {
	if len(data) < 13 {
		return nil, ErrTruncated
	}
	b := &InitBody{}
	off := 0
	b.ProtoVer = binary.LittleEndian.Uint32(data[off:])
	off += 4
	b.MinProtoVer = binary.LittleEndian.Uint32(data[off:])
	off += 4
	b.Flags = binary.LittleEndian.Uint32(data[off:])
	off += 4

	n := int(data[off])
	off++
	if len(data) < off+4*n+1 {
		return nil, ErrTruncated
	}
	b.AudioCodecs = make([]uint32, n)
	for i := 0; i < n; i++ {
		b.AudioCodecs[i] = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}

	m := int(data[off])
	off++
	if len(data) < off+4*m+1 {
		return nil, ErrTruncated
	}
	b.VideoDecoders = make([]uint32, m)
	for i := 0; i < m; i++ {
		b.VideoDecoders[i] = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}

	b.MaxVideoRes = data[off]
	return b, nil
}

// InitAckStream describes one outgoing stream advertised in an
// INIT_ACK (spec §6).
type InitAckStream struct {
	StreamID       uint8
	Type           uint8
	Codec          uint32
	FrameDuration  uint16
	Enabled        uint8
}

// InitAckBody is the INIT_ACK reply body (spec §6).
type InitAckBody struct {
	ProtoVer    uint32
	MinProtoVer uint32
	Streams     []InitAckStream
}

// Serialize encodes an InitAckBody.
func (b *InitAckBody) Serialize() []byte {
	out := make([]byte, 0, 4+4+1+9*len(b.Streams))
	out = appendU32(out, b.ProtoVer)
	out = appendU32(out, b.MinProtoVer)
	out = append(out, uint8(len(b.Streams)))
	for _, s := range b.Streams {
		out = append(out, s.StreamID, s.Type)
		out = appendU32(out, s.Codec)
		out = append(out, byte(s.FrameDuration), byte(s.FrameDuration>>8))
		out = append(out, s.Enabled)
	}
	return out
}

// ParseInitAckBody decodes an InitAckBody.
func ParseInitAckBody(data []byte) (*InitAckBody, error) {
	if len(data) < 9 {
		return nil, ErrTruncated
	}
	b := &InitAckBody{}
	off := 0
	b.ProtoVer = binary.LittleEndian.Uint32(data[off:])
	off += 4
	b.MinProtoVer = binary.LittleEndian.Uint32(data[off:])
	off += 4
	n := int(data[off])
	off++
	if len(data) < off+9*n {
		return nil, ErrTruncated
	}
	b.Streams = make([]InitAckStream, n)
	for i := 0; i < n; i++ {
		s := &b.Streams[i]
		s.StreamID = data[off]
		s.Type = data[off+1]
		off += 2
		s.Codec = binary.LittleEndian.Uint32(data[off:])
		off += 4
		s.FrameDuration = binary.LittleEndian.Uint16(data[off:])
		off += 2
		s.Enabled = data[off]
		off++
	}
	return b, nil
}

// Sub-packet length-field extra bits (spec §6).
const (
	StreamDataKeyframe   uint16 = 0x8000
	StreamDataFragmented uint16 = 0x4000
	StreamDataExtraFEC   uint16 = 0x2000
	streamDataLenMask    uint16 = 0x1FFF

	// SubPacketFlagLen16 widens the length field to 16 bits (spec §6
	// "LEN16=0x40").
	SubPacketFlagLen16 uint8 = 0x40
)

// StreamDataECChunk is one redundant prior-frame chunk appended to a
// sub-packet when STREAM_DATA_XFLAG_EXTRA_FEC is set (spec §6).
type StreamDataECChunk struct {
	Data []byte
}

// StreamDataSubPacket is one fragment of encoded media (spec §6
// STREAM_DATA grammar).
type StreamDataSubPacket struct {
	StreamID       uint8
	PTS            uint32
	Fragmented     bool
	FragmentIndex  uint8
	FragmentCount  uint8
	Keyframe       bool
	Payload        []byte
	ExtraFEC       []StreamDataECChunk
}

// Serialize encodes one STREAM_DATA sub-packet.
func (s *StreamDataSubPacket) Serialize() []byte {
	lenField := uint16(len(s.Payload)) & streamDataLenMask
	if s.Keyframe {
		lenField |= StreamDataKeyframe
	}
	if s.Fragmented {
		lenField |= StreamDataFragmented
	}
	hasEC := len(s.ExtraFEC) > 0
	if hasEC {
		lenField |= StreamDataExtraFEC
	}

	size := 1 + 2 + 4 + len(s.Payload)
	if s.Fragmented {
		size += 2
	}
	if hasEC {
		size += 1
		for _, c := range s.ExtraFEC {
			size += 1 + len(c.Data)
		}
	}

	out := make([]byte, 0, size)
	out = append(out, s.StreamID|SubPacketFlagLen16)
	out = append(out, byte(lenField), byte(lenField>>8))
	out = appendU32(out, s.PTS)
	if s.Fragmented {
		out = append(out, s.FragmentIndex, s.FragmentCount)
	}
	out = append(out, s.Payload...)
	if hasEC {
		out = append(out, uint8(len(s.ExtraFEC)))
		for _, c := range s.ExtraFEC {
			out = append(out, uint8(len(c.Data)))
			out = append(out, c.Data...)
		}
	}
	return out
}

// ParseStreamDataSubPacket decodes one sub-packet starting at data[0]
// and returns it along with the number of bytes consumed.
func ParseStreamDataSubPacket(data []byte) (*StreamDataSubPacket, int, error) {
	if len(data) < 1 {
		return nil, 0, ErrTruncated
	}
	streamIDAndFlags := data[0]
	off := 1

	s := &StreamDataSubPacket{StreamID: streamIDAndFlags &^ SubPacketFlagLen16}

	var lenField uint16
	if streamIDAndFlags&SubPacketFlagLen16 != 0 {
		if len(data) < off+2 {
			return nil, 0, ErrTruncated
		}
		lenField = binary.LittleEndian.Uint16(data[off:])
		off += 2
	} else {
		if len(data) < off+1 {
			return nil, 0, ErrTruncated
		}
		lenField = uint16(data[off])
		off++
	}

	s.Keyframe = lenField&StreamDataKeyframe != 0
	s.Fragmented = lenField&StreamDataFragmented != 0
	hasEC := lenField&StreamDataExtraFEC != 0
	payloadLen := int(lenField & streamDataLenMask)

	if len(data) < off+4 {
		return nil, 0, ErrTruncated
	}
	s.PTS = binary.LittleEndian.Uint32(data[off:])
	off += 4

	if s.Fragmented {
		if len(data) < off+2 {
			return nil, 0, ErrTruncated
		}
		s.FragmentIndex = data[off]
		s.FragmentCount = data[off+1]
		off += 2
	}

	if len(data) < off+payloadLen {
		return nil, 0, ErrTruncated
	}
	s.Payload = data[off : off+payloadLen]
	off += payloadLen

	if hasEC {
		if len(data) < off+1 {
			return nil, 0, ErrTruncated
		}
		count := int(data[off])
		off++
		s.ExtraFEC = make([]StreamDataECChunk, count)
		for i := 0; i < count; i++ {
			if len(data) < off+1 {
				return nil, 0, ErrTruncated
			}
			n := int(data[off])
			off++
			if len(data) < off+n {
				return nil, 0, ErrTruncated
			}
			s.ExtraFEC[i] = StreamDataECChunk{Data: data[off : off+n]}
			off += n
		}
	}

	return s, off, nil
}

// ParseStreamDataSubPackets decodes count back-to-back sub-packets
// from a STREAM_DATA/x2/x3 body.
func ParseStreamDataSubPackets(data []byte, count int) ([]*StreamDataSubPacket, error) {
	out := make([]*StreamDataSubPacket, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		s, n, err := ParseStreamDataSubPacket(data[off:])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		off += n
	}
	return out, nil
}

// StreamECScheme identifies the redundancy scheme carried by a
// PacketStreamEC body: XOR parity or literal redundant prior-frame
// copies (spec §4.3, §4.4, §6).
type StreamECScheme uint8

// StreamECXOR is the fragment-parity scheme: one parity packet
// recovers one missing fragment of the frame it covers.
const StreamECXOR StreamECScheme = 1

// StreamECRedundant carries literal copies of redundant prior frames,
// for peers whose negotiated protocol version predates inline
// STREAM_DATA_XFLAG_EXTRA_FEC support (spec §4.3: "a separate
// STREAM_EC packet for peers older than v7"). Its Payload is encoded
// by EncodeECChunks/decoded by DecodeECChunks rather than being raw
// XOR parity bytes.
const StreamECRedundant StreamECScheme = 2

// StreamECBody is a PacketStreamEC body (spec §6).
type StreamECBody struct {
	StreamID       uint8
	FrameSeq       uint8
	Scheme         StreamECScheme
	PrevFrameCount uint8
	Payload        []byte
}

// Serialize encodes a StreamECBody.
func (b *StreamECBody) Serialize() []byte {
	out := make([]byte, 0, 6+len(b.Payload))
	out = append(out, b.StreamID, b.FrameSeq, uint8(b.Scheme), b.PrevFrameCount)
	out = append(out, byte(len(b.Payload)), byte(len(b.Payload)>>8))
	out = append(out, b.Payload...)
	return out
}

// ParseStreamECBody decodes a StreamECBody.
func ParseStreamECBody(data []byte) (*StreamECBody, error) {
	if len(data) < 6 {
		return nil, ErrTruncated
	}
	b := &StreamECBody{
		StreamID:       data[0],
		FrameSeq:       data[1],
		Scheme:         StreamECScheme(data[2]),
		PrevFrameCount: data[3],
	}
	n := int(binary.LittleEndian.Uint16(data[4:]))
	if len(data) < 6+n {
		return nil, ErrTruncated
	}
	b.Payload = data[6 : 6+n]
	return b, nil
}

// EncodeECChunks packs a PTS and a set of redundant-frame chunks into
// a StreamECBody's opaque Payload: `pts:u32 count:u8 {len:u8
// data:bytes}×count`. The PTS is carried explicitly here because
// StreamECBody's own frame_seq field is one byte and cannot
// reconstruct an arbitrary PTS for a packet that may arrive out of
// order relative to its STREAM_DATA companion.
func EncodeECChunks(pts uint32, chunks []StreamDataECChunk) []byte {
	size := 4 + 1
	for _, c := range chunks {
		size += 1 + len(c.Data)
	}
	out := make([]byte, 0, size)
	out = appendU32(out, pts)
	out = append(out, uint8(len(chunks)))
	for _, c := range chunks {
		out = append(out, uint8(len(c.Data)))
		out = append(out, c.Data...)
	}
	return out
}

// DecodeECChunks reverses EncodeECChunks.
func DecodeECChunks(data []byte) (uint32, []StreamDataECChunk, error) {
	if len(data) < 5 {
		return 0, nil, ErrTruncated
	}
	pts := binary.LittleEndian.Uint32(data)
	off := 4
	count := int(data[off])
	off++
	chunks := make([]StreamDataECChunk, 0, count)
	for i := 0; i < count; i++ {
		if len(data) < off+1 {
			return 0, nil, ErrTruncated
		}
		n := int(data[off])
		off++
		if len(data) < off+n {
			return 0, nil, ErrTruncated
		}
		chunks = append(chunks, StreamDataECChunk{Data: data[off : off+n]})
		off += n
	}
	return pts, chunks, nil
}

// PongBody echoes the ping sequence being answered (spec §6).
type PongBody struct {
	PingSeq uint32
}

// Serialize encodes a PongBody.
func (b *PongBody) Serialize() []byte {
	return appendU32(nil, b.PingSeq)
}

// ParsePongBody decodes a PongBody.
func ParsePongBody(data []byte) (*PongBody, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	return &PongBody{PingSeq: binary.LittleEndian.Uint32(data)}, nil
}
