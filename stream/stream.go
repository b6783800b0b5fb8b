// Package stream implements the per-call media stream data model
// (spec §3 Stream): one outgoing audio stream created at startup, and
// incoming streams created from the peer's INIT_ACK. Video streams are
// carried with the same transport contract but never decoded (spec §1,
// §9 REDESIGN FLAGS: "the reassembler path may be stubbed to a
// discard").
package stream

import (
	"github.com/opd-ai/vvoip/reassembler"
)

// Kind distinguishes audio from video streams (spec §3).
type Kind uint8

const (
	// Audio is the one stream type this core ever decodes.
	Audio Kind = 1
	// Video is carried with an identical transport contract but is
	// never decoded by this core (spec §1 Non-goals).
	Video Kind = 2
)

// Stream is one call's audio or video stream (spec §3).
type Stream struct {
	ID      uint8
	Kind    Kind
	Codec   uint32
	Enabled bool
	Paused  bool
	ExtraEC bool

	// FrameDurationMS is the encoder's frame duration in milliseconds.
	FrameDurationMS uint16

	// Width, Height are only meaningful for Kind==Video.
	Width, Height uint16

	// Reassembler is present for streams that may receive fragmented
	// frames (populated for incoming streams; nil for the local
	// outgoing stream, which never reassembles its own output).
	Reassembler *reassembler.Reassembler

	// RecentFrames retains this stream's most recently sent unfragmented
	// frame payloads, the source window for redundant prior-frame copies
	// (inline ExtraFEC or legacy STREAM_EC, spec §4.3). OutFrameSeq is
	// this controller's own count of frames sent on the stream
	// (fragmented ones included, via AdvanceFrameSeq), carried on the wire as
	// STREAM_EC's frame_seq (spec §6); it approximates the peer's
	// arrival-order reassembly sequence under the assumption that frames
	// mostly arrive in send order.
	RecentFrames [][]byte
	OutFrameSeq  uint32
}

// maxRecentFrames bounds RecentFrames to the largest ExtraEC
// redundancy level (spec §4.3: up to 4 prior frames).
const maxRecentFrames = 4

// RecordSentFrame appends payload to RecentFrames, trims it to
// maxRecentFrames, and advances OutFrameSeq.
func (s *Stream) RecordSentFrame(payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.RecentFrames = append(s.RecentFrames, cp)
	if len(s.RecentFrames) > maxRecentFrames {
		s.RecentFrames = s.RecentFrames[1:]
	}
	s.OutFrameSeq++
}

// AdvanceFrameSeq increments OutFrameSeq for a sent fragmented frame,
// which is not itself added to RecentFrames (a fragmented frame is
// never a whole-frame redundancy source; see RecordSentFrame).
func (s *Stream) AdvanceFrameSeq() {
	s.OutFrameSeq++
}

// New constructs a Stream. For incoming streams, attach a Reassembler
// via SetReassembler once a Clock is available.
func New(id uint8, kind Kind, codec uint32, frameDurationMS uint16, enabled bool) *Stream {
	return &Stream{
		ID:              id,
		Kind:            kind,
		Codec:           codec,
		FrameDurationMS: frameDurationMS,
		Enabled:         enabled,
	}
}

// SetReassembler attaches a reassembler to an incoming stream.
func (s *Stream) SetReassembler(r *reassembler.Reassembler) {
	s.Reassembler = r
}

// SetEnabled toggles the stream's enabled flag (spec §4.7
// STREAM_STATE handler).
func (s *Stream) SetEnabled(enabled bool) {
	s.Enabled = enabled
}
