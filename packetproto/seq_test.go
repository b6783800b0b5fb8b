package packetproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeqGTWraparound(t *testing.T) {
	assert.True(t, SeqGT(5, 3))
	assert.False(t, SeqGT(3, 5))
	assert.False(t, SeqGT(5, 5))

	// Wraparound: a just past the 32-bit boundary is still "ahead" of b.
	assert.True(t, SeqGT(1, 0xFFFFFFFF))
	assert.False(t, SeqGT(0xFFFFFFFF, 1))
}

func TestSeqGE(t *testing.T) {
	assert.True(t, SeqGE(5, 5))
	assert.True(t, SeqGE(6, 5))
	assert.False(t, SeqGE(4, 5))
}

func TestRecentWindowDedup(t *testing.T) {
	w := NewRecentWindow()
	assert.True(t, w.Observe(1))
	assert.False(t, w.Observe(1), "duplicate seq must be rejected")
	assert.True(t, w.Observe(2))
	assert.Equal(t, uint32(2), w.LastRemoteSeq())
}

func TestRecentWindowEvictsOld(t *testing.T) {
	w := NewRecentWindow()
	for seq := uint32(1); seq <= recentWindowSize+5; seq++ {
		assert.True(t, w.Observe(seq))
	}
	assert.False(t, w.Contains(1), "sequence far behind the window must be evicted")
	assert.True(t, w.Contains(recentWindowSize+5))
}

func TestRecentWindowRejectsTooOld(t *testing.T) {
	w := NewRecentWindow()
	for seq := uint32(1); seq <= recentWindowSize+1; seq++ {
		w.Observe(seq)
	}
	assert.False(t, w.Observe(1), "seq older than the window must be dropped, not re-admitted")
}

func TestBuildAckMask(t *testing.T) {
	w := NewRecentWindow()
	w.Observe(10)
	w.Observe(9)
	w.Observe(7)

	mask := w.BuildAckMask()
	// lastRemoteSeq=10: bit31 -> seq9 (present), bit30 -> seq8 (absent), bit29 -> seq7 (present)
	assert.NotZero(t, mask&(1<<31))
	assert.Zero(t, mask&(1<<30))
	assert.NotZero(t, mask&(1<<29))
}

func TestBuildAckMaskEmpty(t *testing.T) {
	w := NewRecentWindow()
	w.Observe(5)
	assert.Equal(t, uint32(0), w.BuildAckMask())
}
