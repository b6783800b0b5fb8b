// Package reassembler implements the jitter-aware packet reassembler
// (component H): reconstruction of fragmented media frames with
// single-fragment XOR-parity recovery plus whole-frame redundant-copy
// recovery (spec §4.3's STREAM_DATA_XFLAG_EXTRA_FEC/legacy STREAM_EC
// path), modeled on the teacher's RTP session/packet bookkeeping
// (av/rtp/session.go, av/rtp/packet.go) adapted from RTP sequence
// numbers to this wire's (frame sequence, PTS, fragment index/count)
// framing (spec §4.4).
package reassembler

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vvoip/clock"
)

// numOldPackets bounds how many completed frames are retained for
// reference after emission (spec §4.4: "3 recently completed frames").
const numOldPackets = 3

// numInFlight bounds how many incomplete frames may be tracked at
// once (spec §4.4: "up to 3 in-flight frames").
const numInFlight = 3

// numFECPackets bounds how many recent FEC packets are retained
// waiting for a covered frame to need them (spec §4.4: "up to 10
// recent parity-FEC packets").
const numFECPackets = 10

// Frame is a ReassemblyPacket (spec §3): one media frame identified by
// an arrival-order sequence and the PTS carried on the wire, with its
// fragment slots.
type Frame struct {
	Seq           uint32
	PTS           uint32
	Keyframe      bool
	PartCount     int
	ReceivedCount int
	Parts         [][]byte

	done bool
}

// MissingIndex returns the index of the single missing fragment, or -1
// if zero or more-than-one fragments are missing.
func (f *Frame) MissingIndex() int {
	if f.PartCount-f.ReceivedCount != 1 {
		return -1
	}
	for i, p := range f.Parts {
		if p == nil {
			return i
		}
	}
	return -1
}

// FECPacket is the retained form of a received PacketStreamEC body
// (spec §3 parity packet, §6).
type FECPacket struct {
	Seq            uint32 // the frame_seq the FEC packet identifies itself by
	PrevFrameCount uint8
	Payload        []byte
}

// covers reports whether frameSeq falls in the FEC packet's coverage
// window (spec §4.4: "fec.seq ≥ frame.seq > fec.seq − fec.prevFrameCount").
func (p *FECPacket) covers(frameSeq uint32) bool {
	if frameSeq > p.Seq {
		return false
	}
	return p.Seq-frameSeq < uint32(p.PrevFrameCount)
}

// Reassembler reconstructs fragmented frames for one stream, applying
// XOR-parity recovery when exactly one fragment of a frame is missing
// and a covering FEC packet has arrived (spec §4.4).
type Reassembler struct {
	clock clock.Clock

	nextSeq uint32

	inflight   []*Frame // order of first-seen, oldest first
	oldPackets []*Frame
	fecPackets []*FECPacket

	lastFrameSeq uint32
	haveFrame    bool

	// emittedPTS bounds the PTS values already handed to onFrame, so a
	// late-arriving duplicate (the real fragment after a redundant copy
	// already recovered it, or vice versa) does not re-trigger delivery.
	emittedPTS []uint32

	onFrame func(*Frame)
}

// maxEmittedPTSTracked bounds the emitted-PTS dedup history (spec §4.4
// capacity posture, sized like the other bounded rings in this type).
const maxEmittedPTSTracked = 16

func (r *Reassembler) alreadyEmitted(pts uint32) bool {
	for _, p := range r.emittedPTS {
		if p == pts {
			return true
		}
	}
	return false
}

func (r *Reassembler) recordEmitted(pts uint32) {
	r.emittedPTS = append(r.emittedPTS, pts)
	if len(r.emittedPTS) > maxEmittedPTSTracked {
		r.emittedPTS = r.emittedPTS[1:]
	}
}

// New returns an empty Reassembler.
func New(c clock.Clock) *Reassembler {
	return &Reassembler{clock: c}
}

// OnFrame registers the callback invoked when a frame completes,
// either by direct reception of all fragments or by FEC recovery
// (spec §4.4: "hand it to the callback").
func (r *Reassembler) OnFrame(cb func(*Frame)) {
	r.onFrame = cb
}

func (r *Reassembler) findInflight(pts uint32) *Frame {
	for _, f := range r.inflight {
		if f.PTS == pts {
			return f
		}
	}
	return nil
}

// PushFragment accepts one STREAM_DATA sub-packet's fragment into the
// frame identified by pts. fragmentIndex/fragmentCount describe this
// frame's fragmentation (spec §6); an unfragmented sub-packet should
// be pushed with fragmentCount=1, fragmentIndex=0.
func (r *Reassembler) PushFragment(pts uint32, fragmentIndex, fragmentCount uint8, keyframe bool, payload []byte) {
	logger := logrus.WithFields(logrus.Fields{
		"function":       "Reassembler.PushFragment",
		"package":        "reassembler",
		"pts":            pts,
		"fragment_index": fragmentIndex,
		"fragment_count": fragmentCount,
	})

	if r.alreadyEmitted(pts) {
		logger.Debug("pts already delivered, dropping fragment")
		return
	}

	if fragmentIndex >= fragmentCount {
		logger.Warn("fragment index out of range, dropping")
		return
	}

	f := r.findInflight(pts)
	if f == nil {
		f = &Frame{
			Seq:       r.nextSeq,
			PTS:       pts,
			PartCount: int(fragmentCount),
			Parts:     make([][]byte, fragmentCount),
		}
		r.nextSeq++
		r.inflight = append(r.inflight, f)
		r.trimInflight()
	}

	if f.PartCount != int(fragmentCount) {
		logger.Warn("inconsistent fragment count for frame, dropping fragment")
		return
	}
	if r.haveFrame && f.Seq+numInFlight <= r.lastFrameSeq {
		logger.Debug("frame too old, dropping fragment")
		return
	}

	if keyframe {
		f.Keyframe = true
	}
	if f.Parts[fragmentIndex] == nil {
		f.Parts[fragmentIndex] = payload
		f.ReceivedCount++
	}

	r.drainCompleted()
}

// trimInflight drops the oldest in-flight frame once the backlog
// exceeds numInFlight (spec §4.4 capacity bound).
func (r *Reassembler) trimInflight() {
	for len(r.inflight) > numInFlight {
		dropped := r.inflight[0]
		r.inflight = r.inflight[1:]
		r.declareLost(dropped)
	}
}

// PushFEC accepts a received STREAM_EC body for later parity recovery
// (spec §4.4, §6).
func (r *Reassembler) PushFEC(frameSeq uint32, prevFrameCount uint8, payload []byte) {
	r.fecPackets = append(r.fecPackets, &FECPacket{Seq: frameSeq, PrevFrameCount: prevFrameCount, Payload: payload})
	if len(r.fecPackets) > numFECPackets {
		r.fecPackets = r.fecPackets[1:]
	}
	r.drainCompleted()
}

// drainCompleted emits every in-flight frame that now has all
// fragments, then attempts FEC recovery for frames missing exactly
// one; it rescans every in-flight frame and repeats until none is
// complete or single-fragment-recoverable (spec §4.4).
func (r *Reassembler) drainCompleted() {
	for {
		progressed := false
		for i := 0; i < len(r.inflight); i++ {
			f := r.inflight[i]
			if f.ReceivedCount == f.PartCount {
				r.emit(f)
				r.inflight = append(r.inflight[:i], r.inflight[i+1:]...)
				progressed = true
				break
			}
			if idx := f.MissingIndex(); idx >= 0 {
				if r.tryRecover(f, idx) {
					r.emit(f)
					r.inflight = append(r.inflight[:i], r.inflight[i+1:]...)
					progressed = true
					break
				}
			}
		}
		if !progressed {
			return
		}
	}
}

// tryRecover attempts XOR-parity recovery of the single missing
// fragment at idx using any FEC packet that covers f.Seq (spec §4.4:
// this core attempts recovery for every frame with exactly one
// missing fragment that has a covering FEC packet, not only the
// oldest backlog frame — the documented divergence from the source's
// ambiguous TryDecodeFEC, per spec §9 Open Questions).
func (r *Reassembler) tryRecover(f *Frame, idx int) bool {
	for _, fec := range r.fecPackets {
		if !fec.covers(f.Seq) {
			continue
		}
		recovered, ok := xorRecover(fec.Payload, f.Parts)
		if !ok {
			continue
		}
		f.Parts[idx] = recovered
		f.ReceivedCount++
		return true
	}
	return false
}

// xorRecover recomputes the missing fragment: XOR the FEC payload
// against every present fragment; the recovered fragment's true length
// is carried in the last two bytes of the XOR result (spec §4.4).
func xorRecover(fecPayload []byte, parts [][]byte) ([]byte, bool) {
	if len(fecPayload) < 2 {
		return nil, false
	}
	acc := make([]byte, len(fecPayload))
	copy(acc, fecPayload)

	for _, p := range parts {
		if p == nil {
			continue
		}
		for i, b := range p {
			if i >= len(acc) {
				break
			}
			acc[i] ^= b
		}
	}

	if len(acc) < 2 {
		return nil, false
	}
	length := int(acc[len(acc)-2]) | int(acc[len(acc)-1])<<8
	if length < 0 || length > len(acc)-2 {
		return nil, false
	}
	return acc[:length], true
}

// PushRedundant accepts a literal redundant copy of the frame
// identified by pts (spec §4.3: the STREAM_DATA_XFLAG_EXTRA_FEC inline
// path and the legacy STREAM_EC redundant-frame packet both deliver
// whole-frame copies here, not XOR parity). Unlike PushFEC, this can
// complete a frame that never received any fragment at all — the gap
// single-fragment XOR parity cannot close, since a fully-lost
// unfragmented frame never creates a reassembler entry in the first
// place (PushFragment is never called for it).
func (r *Reassembler) PushRedundant(pts uint32, payload []byte) {
	if r.alreadyEmitted(pts) {
		return
	}

	if f := r.findInflight(pts); f != nil {
		if f.ReceivedCount == f.PartCount {
			return
		}
		if f.PartCount == 1 {
			f.Parts[0] = payload
			f.ReceivedCount = 1
			r.drainCompleted()
		}
		// A partially-received multi-fragment frame can't be safely
		// completed from a single whole-frame redundant copy: there is
		// no way to tell which missing slot the bytes belong to.
		return
	}

	f := &Frame{
		Seq:           r.nextSeq,
		PTS:           pts,
		PartCount:     1,
		ReceivedCount: 1,
		Parts:         [][]byte{payload},
	}
	r.nextSeq++
	r.emit(f)
}

func (r *Reassembler) emit(f *Frame) {
	f.done = true
	if f.Seq > r.lastFrameSeq || !r.haveFrame {
		r.lastFrameSeq = f.Seq
		r.haveFrame = true
	}
	r.oldPackets = append(r.oldPackets, f)
	if len(r.oldPackets) > numOldPackets {
		r.oldPackets = r.oldPackets[1:]
	}
	r.recordEmitted(f.PTS)
	if r.onFrame != nil {
		r.onFrame(f)
	}
}

// declareLost marks a frame unrecoverable (two or more fragments
// missing with no covering FEC, or the backlog evicted it first) and
// moves on without invoking the frame callback (spec §4.4: "the frame
// is declared lost and the reassembler moves on").
func (r *Reassembler) declareLost(f *Frame) {
	logrus.WithFields(logrus.Fields{
		"function": "Reassembler.declareLost",
		"package":  "reassembler",
		"seq":      f.Seq,
		"pts":      f.PTS,
		"received": f.ReceivedCount,
		"of":       f.PartCount,
	}).Debug("frame declared lost")

	if f.Seq > r.lastFrameSeq || !r.haveFrame {
		r.lastFrameSeq = f.Seq
		r.haveFrame = true
	}
}

// Concat returns the frame's fragments joined in order, for callers
// that want the reconstructed byte stream rather than the individual
// parts.
func (f *Frame) Concat() []byte {
	var total int
	for _, p := range f.Parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range f.Parts {
		out = append(out, p...)
	}
	return out
}
