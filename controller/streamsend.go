package controller

import (
	"errors"

	"github.com/opd-ai/vvoip/congestion"
	"github.com/opd-ai/vvoip/packetproto"
	"github.com/opd-ai/vvoip/stream"
)

// ErrUnknownStream is returned by SendStreamFrame for a stream ID this
// controller did not advertise in its INIT/INIT_ACK exchange.
var ErrUnknownStream = errors.New("controller: unknown stream id")

// ErrFrameTooLarge is returned when a frame would fragment into more
// sub-packets than the wire's one-byte fragment_count field can carry.
var ErrFrameTooLarge = errors.New("controller: frame exceeds maximum fragment count")

// maxFragmentPayload bounds one STREAM_DATA sub-packet's payload so a
// fragmented frame stays within a conservative path MTU (spec §6
// STREAM_DATA grammar; fragment_index/fragment_count are one byte
// each, so at most 255 fragments per frame).
const maxFragmentPayload = 1100

// SendStreamFrame encodes one encoder-produced media frame as one or
// more STREAM_DATA packets and sends it on the stream's current path.
// When shitty-internet mode is active (spec §4.3) it also attaches
// redundant copies of recently sent frames: inline on the sub-packet
// via STREAM_DATA_XFLAG_EXTRA_FEC for peers that negotiated protocol
// version ≥7, or as a separate legacy STREAM_EC packet otherwise.
// Genuinely fragmented frames instead get a STREAM_EC XOR-parity
// packet covering their own fragments (spec §4.4), the only shape
// reassembler.tryRecover can actually use. It is the message-thread
// entry point that "stream data encoding happens on an audio-I/O
// callback thread and is immediately marshalled to" (spec §5);
// callers on another goroutine must do that marshalling themselves
// before calling in.
func (c *Controller) SendStreamFrame(streamID uint8, pts uint32, keyframe bool, payload []byte) error {
	s, ok := c.Streams[streamID]
	if !ok {
		return ErrUnknownStream
	}
	if !s.Enabled {
		return nil
	}

	fragCount := (len(payload) + maxFragmentPayload - 1) / maxFragmentPayload
	if fragCount == 0 {
		fragCount = 1
	}
	if fragCount > 255 {
		return ErrFrameTooLarge
	}

	ecEnabled, ecLevel := c.Bitrate.ExtraEC()
	wantEC := ecEnabled && ecLevel != congestion.ExtraEC0

	var priorChunks []packetproto.StreamDataECChunk
	useInlineEC := fragCount == 1 && wantEC && c.peerSupportsInlineExtraFEC()
	if fragCount == 1 && wantEC {
		priorChunks = redundantChunks(s, ecLevel)
	}

	fragPayloads := make([][]byte, 0, fragCount)
	for i := 0; i < fragCount; i++ {
		start := i * maxFragmentPayload
		end := start + maxFragmentPayload
		if end > len(payload) {
			end = len(payload)
		}
		frag := payload[start:end]
		fragPayloads = append(fragPayloads, frag)

		sub := &packetproto.StreamDataSubPacket{
			StreamID:      streamID,
			PTS:           pts,
			Fragmented:    fragCount > 1,
			FragmentIndex: uint8(i),
			FragmentCount: uint8(fragCount),
			Keyframe:      keyframe,
			Payload:       frag,
		}
		if i == 0 && useInlineEC && len(priorChunks) > 0 {
			sub.ExtraFEC = priorChunks
		}
		c.sendToCurrentEndpoint(packetproto.PacketStreamData, sub.Serialize(), true)
	}

	if fragCount == 1 {
		s.RecordSentFrame(payload)
		if wantEC && !useInlineEC {
			c.sendLegacyStreamEC(s, pts, priorChunks)
		}
	} else {
		s.AdvanceFrameSeq()
		if wantEC {
			c.maybeSendStreamEC(s, fragPayloads)
		}
	}

	return nil
}

// peerSupportsInlineExtraFEC reports whether the negotiated peer
// protocol version carries redundant-frame chunks inline on
// STREAM_DATA (spec §4.3: "... or a separate STREAM_EC packet for
// peers older than v7").
func (c *Controller) peerSupportsInlineExtraFEC() bool {
	return c.peerVersionKnown && c.peerVersion >= 7
}

// redundantChunks returns literal copies of up to level of the
// stream's most recently sent unfragmented frames (oldest first), the
// shared source window for both the inline ExtraFEC path and
// sendLegacyStreamEC (spec §4.3).
func redundantChunks(s *stream.Stream, level congestion.ExtraECLevel) []packetproto.StreamDataECChunk {
	window := int(level)
	if window > len(s.RecentFrames) {
		window = len(s.RecentFrames)
	}
	if window == 0 {
		return nil
	}
	covered := s.RecentFrames[len(s.RecentFrames)-window:]
	chunks := make([]packetproto.StreamDataECChunk, len(covered))
	for i, f := range covered {
		chunks[i] = packetproto.StreamDataECChunk{Data: f}
	}
	return chunks
}

// sendLegacyStreamEC emits a STREAM_EC packet carrying literal
// redundant prior frames for peers whose negotiated protocol version
// predates inline STREAM_DATA_XFLAG_EXTRA_FEC support (spec §4.3).
func (c *Controller) sendLegacyStreamEC(s *stream.Stream, pts uint32, chunks []packetproto.StreamDataECChunk) {
	if len(chunks) == 0 {
		return
	}
	ec := &packetproto.StreamECBody{
		StreamID:       s.ID,
		FrameSeq:       uint8(s.OutFrameSeq),
		Scheme:         packetproto.StreamECRedundant,
		PrevFrameCount: uint8(len(chunks)),
		Payload:        packetproto.EncodeECChunks(pts, chunks),
	}
	c.sendToCurrentEndpoint(packetproto.PacketStreamEC, ec.Serialize(), false)
}

// maybeSendStreamEC emits a STREAM_EC XOR-parity packet covering this
// fragmented frame's own fragments (spec §4.4): unlike
// sendLegacyStreamEC's whole-frame redundant copies, this covers
// fragments of the SAME frame, matching what reassembler.tryRecover
// actually recovers (one missing fragment of a multi-fragment frame).
func (c *Controller) maybeSendStreamEC(s *stream.Stream, fragPayloads [][]byte) {
	if len(fragPayloads) < 2 {
		return
	}
	parity := xorFrames(fragPayloads)
	ec := &packetproto.StreamECBody{
		StreamID:       s.ID,
		FrameSeq:       uint8(s.OutFrameSeq),
		Scheme:         packetproto.StreamECXOR,
		PrevFrameCount: 1,
		Payload:        parity,
	}
	c.sendToCurrentEndpoint(packetproto.PacketStreamEC, ec.Serialize(), false)
}

// xorFrames XORs frames together into a buffer sized to the longest
// one, then appends the newest frame's length as a little-endian u16
// trailer so a peer missing exactly one of the covered frames can
// recover it (mirrors reassembler.xorRecover's expected layout).
func xorFrames(frames [][]byte) []byte {
	maxLen := 0
	for _, f := range frames {
		if len(f) > maxLen {
			maxLen = len(f)
		}
	}
	acc := make([]byte, maxLen+2)
	for _, f := range frames {
		for i, b := range f {
			acc[i] ^= b
		}
	}
	newest := frames[len(frames)-1]
	acc[maxLen] = byte(len(newest))
	acc[maxLen+1] = byte(len(newest) >> 8)
	return acc
}
