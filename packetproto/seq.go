// Package packetproto implements the packet framer and cryptor
// (component F): the two wire dialects, ack-mask bookkeeping, and
// sequence-number wraparound comparison that the rest of the transport
// core builds on.
package packetproto

// SeqGT reports whether sequence a is strictly ahead of sequence b,
// using the half-space wraparound rule (spec §3 invariant, §8 testable
// property): for |a-b| < 2^31, SeqGT(a,b) equals interpreting
// (a-b) mod 2^32 as a signed 32-bit integer and testing > 0.
func SeqGT(a, b uint32) bool {
	return int32(a-b) > 0
}

// SeqGE reports whether a is at or ahead of b under the same
// wraparound rule as SeqGT.
func SeqGE(a, b uint32) bool {
	return int32(a-b) >= 0
}

// recentWindowSize bounds recent_incoming_packets at 128 entries (spec
// §3 invariant).
const recentWindowSize = 128

// RecentWindow tracks recently seen inbound sequence numbers to reject
// duplicates and build the outgoing ack_mask (spec §3, §4.1).
type RecentWindow struct {
	lastRemoteSeq uint32
	hasSeq        bool
	seen          map[uint32]struct{}
}

// NewRecentWindow returns an empty dedup window.
func NewRecentWindow() *RecentWindow {
	return &RecentWindow{seen: make(map[uint32]struct{}, recentWindowSize)}
}

// Observe records an inbound sequence number. It returns false (and
// does not update state) if the sequence is a duplicate already in the
// window, or if it is older than lastRemoteSeq-127 and therefore
// outside the window (spec §3 invariant: "dropped").
func (w *RecentWindow) Observe(seq uint32) bool {
	if w.hasSeq {
		if SeqGT(w.lastRemoteSeq, seq) && w.lastRemoteSeq-seq > recentWindowSize-1 {
			return false
		}
		if _, dup := w.seen[seq]; dup {
			return false
		}
	}

	w.seen[seq] = struct{}{}
	if !w.hasSeq || SeqGT(seq, w.lastRemoteSeq) {
		w.lastRemoteSeq = seq
		w.hasSeq = true
	}
	w.evictOld()
	return true
}

func (w *RecentWindow) evictOld() {
	if !w.hasSeq {
		return
	}
	for seq := range w.seen {
		if SeqGT(w.lastRemoteSeq, seq) && w.lastRemoteSeq-seq > recentWindowSize-1 {
			delete(w.seen, seq)
		}
	}
}

// LastRemoteSeq returns the highest sequence number observed so far.
func (w *RecentWindow) LastRemoteSeq() uint32 {
	return w.lastRemoteSeq
}

// Contains reports whether seq is currently within the recent window.
func (w *RecentWindow) Contains(seq uint32) bool {
	_, ok := w.seen[seq]
	return ok
}

// BuildAckMask constructs the 32-bit ack_mask for the next outgoing
// header: bit i (MSB-first counting from 0) is set iff
// lastRemoteSeq-(i+1) appears in the window (spec §4.1).
func (w *RecentWindow) BuildAckMask() uint32 {
	var mask uint32
	for i := uint32(0); i < 32; i++ {
		target := w.lastRemoteSeq - (i + 1)
		if w.Contains(target) {
			mask |= 1 << (31 - i)
		}
	}
	return mask
}
