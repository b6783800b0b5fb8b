// Package pacer implements the send-side pacer and outgoing-sequence
// bookkeeping (component J): a bounded FIFO between the message
// thread and the wire, generation-sequence assignment, and the
// unsent-stream-packet backlog cutoff, modeled on the teacher's
// ConnectionMultiplexer stats/queue bookkeeping
// (transport/connection_multiplexer.go) adapted from per-connection
// routing stats to per-connection send pacing (spec §4.6).
package pacer

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vvoip/clock"
)

// recentOutgoingCap bounds RecentOutgoingPacket bookkeeping at 128
// entries (spec §3).
const recentOutgoingCap = 128

// Config holds the pacer's tunables (spec §4.6, §6).
type Config struct {
	// MaxUnsentStreamPackets bounds the in-flight stream-data backlog
	// (default 2).
	MaxUnsentStreamPackets int
	// FlushAfterTicks is how many consecutive over-backlog ticks
	// trigger a flush and pause (default 30; one tick is one
	// CheckBacklog call, which the controller makes once per Tick).
	FlushAfterTicks int
	// PauseSeconds is how long sends are paused after a flush
	// (default 1.0).
	PauseSeconds float64
}

// DefaultConfig returns the values named in spec §4.6.
func DefaultConfig() Config {
	return Config{
		MaxUnsentStreamPackets: 2,
		FlushAfterTicks:        30,
		PauseSeconds:           1.0,
	}
}

// OutgoingPacket is a RecentOutgoingPacket record (spec §3): one
// packet the pacer handed to the socket, tracked until acked, lost, or
// evicted by the 128-entry ring.
type OutgoingPacket struct {
	Seq     uint32
	SentAt  float64
	AckedAt float64
	Lost    bool
	Type    uint8
	Size    int
}

// PendingPacket is a packet parked in the send queue because the
// socket was not ready to send when it was generated (spec §4.6).
type PendingPacket struct {
	Seq  uint32
	Type uint8
	Wire []byte
	// IsStreamData marks packets counted against
	// MaxUnsentStreamPackets.
	IsStreamData bool
}

// Pacer owns outgoing sequence generation, the recent-outgoing ring,
// the parked send queue, and the stream-data backlog cutoff.
type Pacer struct {
	clock  clock.Clock
	config Config

	nextSeq uint32

	ring     [recentOutgoingCap]OutgoingPacket
	ringUsed [recentOutgoingCap]bool
	ringHead int

	queue []*PendingPacket

	unsentStreamPackets int
	overBacklogTicks    int
	pausedUntil         float64
}

// New returns a Pacer starting sequence generation at 1 (spec scenario
// 1: "Controller sends INIT with seq=1").
func New(c clock.Clock, config Config) *Pacer {
	return &Pacer{clock: c, config: config, nextSeq: 1}
}

// GenerateOutSeq returns the next strictly-monotonic outgoing sequence
// number (spec §3 invariant, §4.6).
func (p *Pacer) GenerateOutSeq() uint32 {
	seq := p.nextSeq
	p.nextSeq++
	return seq
}

// RecordSent appends a sent packet into the recent-outgoing ring,
// evicting the oldest entry once full.
func (p *Pacer) RecordSent(seq uint32, packetType uint8, size int) {
	slot := &p.ring[p.ringHead]
	*slot = OutgoingPacket{Seq: seq, SentAt: p.clock.Now(), Type: packetType, Size: size}
	p.ringUsed[p.ringHead] = true
	p.ringHead = (p.ringHead + 1) % recentOutgoingCap
}

// MarkAcked records that seq was acknowledged, for later inspection
// (e.g. retransmit bookkeeping for legacy QueuedPacket flows outside
// this package).
func (p *Pacer) MarkAcked(seq uint32) {
	for i := range p.ring {
		if p.ringUsed[i] && p.ring[i].Seq == seq && p.ring[i].AckedAt == 0 {
			p.ring[i].AckedAt = p.clock.Now()
			return
		}
	}
}

// MarkLost records that seq was declared lost.
func (p *Pacer) MarkLost(seq uint32) {
	for i := range p.ring {
		if p.ringUsed[i] && p.ring[i].Seq == seq {
			p.ring[i].Lost = true
			return
		}
	}
}

// Enqueue parks a packet in the send queue because the socket
// signaled it is not ready to send (spec §4.6: "the pending packet is
// parked in sendQueue").
func (p *Pacer) Enqueue(pk *PendingPacket) {
	p.queue = append(p.queue, pk)
	if pk.IsStreamData {
		p.unsentStreamPackets++
	}
}

// DrainReady releases every parked packet, clearing the queue and the
// stream backlog counter, for when the socket signals writable (spec
// §4.6: "released when the socket signals writable").
func (p *Pacer) DrainReady() []*PendingPacket {
	out := p.queue
	p.queue = nil
	p.unsentStreamPackets = 0
	return out
}

// QueueDepth reports how many packets are currently parked.
func (p *Pacer) QueueDepth() int {
	return len(p.queue)
}

// IsPaused reports whether the pacer is in its post-flush send pause
// (spec §4.6).
func (p *Pacer) IsPaused() bool {
	return p.clock.Now() < p.pausedUntil
}

// CheckBacklog must be called once per pacer tick to enforce the
// unsent-stream-packet backlog cutoff: if the backlog has exceeded
// MaxUnsentStreamPackets for FlushAfterTicks consecutive ticks, it
// flushes the queue and enters a PauseSeconds send pause (spec §4.6).
func (p *Pacer) CheckBacklog() {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Pacer.CheckBacklog",
		"package":  "pacer",
		"unsent":   p.unsentStreamPackets,
	})

	if p.unsentStreamPackets <= p.config.MaxUnsentStreamPackets {
		p.overBacklogTicks = 0
		return
	}

	p.overBacklogTicks++
	if p.overBacklogTicks < p.config.FlushAfterTicks {
		return
	}

	logger.Warn("stream-data backlog exceeded for full window, flushing and pausing")
	p.queue = nil
	p.unsentStreamPackets = 0
	p.overBacklogTicks = 0
	p.pausedUntil = p.clock.Now() + p.config.PauseSeconds
}

// UnsentStreamPackets reports the current stream-data backlog depth.
func (p *Pacer) UnsentStreamPackets() int {
	return p.unsentStreamPackets
}
