package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New(4, 128)

	buf, idx := p.Acquire()
	require.Len(t, buf, 128)
	assert.Equal(t, 1, p.InUse())

	p.Release(idx)
	assert.Equal(t, 0, p.InUse())
}

func TestAcquireDistinctSlots(t *testing.T) {
	p := New(3, 16)

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		_, idx := p.Acquire()
		assert.False(t, seen[idx], "slot %d acquired twice", idx)
		seen[idx] = true
	}
	assert.Equal(t, 3, p.InUse())
}

func TestAcquireExhaustionPanics(t *testing.T) {
	p := New(1, 8)
	p.Acquire()

	assert.Panics(t, func() {
		p.Acquire()
	})
}

func TestCloseDetectsLeak(t *testing.T) {
	p := New(2, 8)
	p.Acquire()

	assert.Panics(t, func() {
		p.Close()
	})
}

func TestCloseCleanWhenEmpty(t *testing.T) {
	p := New(2, 8)
	_, idx := p.Acquire()
	p.Release(idx)

	assert.NotPanics(t, func() {
		p.Close()
	})
}

func TestOddSlotCountBitsetBoundary(t *testing.T) {
	// Exercise the trailing-bits mask for slot counts not a multiple of 64.
	p := New(65, 4)
	for i := 0; i < 65; i++ {
		p.Acquire()
	}
	assert.Equal(t, 65, p.InUse())
	assert.Panics(t, func() {
		p.Acquire()
	})
}
