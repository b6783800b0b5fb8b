package pacer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opd-ai/vvoip/clock"
)

func TestGenerateOutSeqMonotonic(t *testing.T) {
	p := New(clock.NewFake(), DefaultConfig())
	a := p.GenerateOutSeq()
	b := p.GenerateOutSeq()
	c := p.GenerateOutSeq()
	assert.Equal(t, uint32(1), a)
	assert.Equal(t, uint32(2), b)
	assert.Equal(t, uint32(3), c)
}

func TestEnqueueTracksStreamBacklog(t *testing.T) {
	p := New(clock.NewFake(), DefaultConfig())
	p.Enqueue(&PendingPacket{Seq: 1, IsStreamData: true})
	p.Enqueue(&PendingPacket{Seq: 2, IsStreamData: true})
	p.Enqueue(&PendingPacket{Seq: 3, IsStreamData: false})
	assert.Equal(t, 2, p.UnsentStreamPackets())
	assert.Equal(t, 3, p.QueueDepth())
}

func TestDrainReadyClearsQueue(t *testing.T) {
	p := New(clock.NewFake(), DefaultConfig())
	p.Enqueue(&PendingPacket{Seq: 1, IsStreamData: true})
	drained := p.DrainReady()
	assert.Len(t, drained, 1)
	assert.Equal(t, 0, p.QueueDepth())
	assert.Equal(t, 0, p.UnsentStreamPackets())
}

func TestCheckBacklogFlushesAfterSustainedOverage(t *testing.T) {
	fc := clock.NewFake()
	cfg := DefaultConfig()
	cfg.MaxUnsentStreamPackets = 1
	cfg.FlushAfterTicks = 3
	p := New(fc, cfg)

	p.Enqueue(&PendingPacket{Seq: 1, IsStreamData: true})
	p.Enqueue(&PendingPacket{Seq: 2, IsStreamData: true}) // backlog = 2 > 1

	p.CheckBacklog()
	assert.False(t, p.IsPaused())
	p.CheckBacklog()
	assert.False(t, p.IsPaused())
	p.CheckBacklog() // third consecutive tick over threshold
	assert.True(t, p.IsPaused())
	assert.Equal(t, 0, p.QueueDepth())
}

func TestCheckBacklogResetsWhenUnderThreshold(t *testing.T) {
	fc := clock.NewFake()
	cfg := DefaultConfig()
	cfg.MaxUnsentStreamPackets = 1
	cfg.FlushAfterTicks = 2
	p := New(fc, cfg)

	p.Enqueue(&PendingPacket{Seq: 1, IsStreamData: true})
	p.Enqueue(&PendingPacket{Seq: 2, IsStreamData: true})
	p.CheckBacklog()

	p.DrainReady() // backlog clears
	p.CheckBacklog()
	p.Enqueue(&PendingPacket{Seq: 3, IsStreamData: true})
	p.Enqueue(&PendingPacket{Seq: 4, IsStreamData: true})
	p.CheckBacklog() // only the first over-threshold tick since reset
	assert.False(t, p.IsPaused())
}

func TestRecordSentAndMarkAcked(t *testing.T) {
	fc := clock.NewFake()
	p := New(fc, DefaultConfig())
	p.RecordSent(5, 4, 128)
	// AckedAt == 0 means "not acked", so ack at a non-zero clock time.
	fc.Advance(0.05)
	p.MarkAcked(5)
	assert.NotZero(t, p.ring[0].AckedAt)
	assert.False(t, p.ring[0].Lost)
}
