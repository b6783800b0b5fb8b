// Package bufferpool implements a fixed-size slot allocator for audio
// payload buffers (component C of the transport core).
//
// Every outgoing and incoming media payload is copied into a slot owned
// by a Pool instead of allocating a fresh slice per packet. The pool is
// sized once at construction and never grows: exhaustion is treated as
// a programming error (spec §7, "Resource" error class) rather than a
// recoverable condition, so Acquire aborts instead of returning an
// error when every slot is in use. A bitset under a mutex tracks slot
// occupancy; at teardown, Close asserts that every acquired slot has
// been released.
package bufferpool

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/sirupsen/logrus"
)

// Pool is a fixed-capacity allocator of equally sized byte slices.
type Pool struct {
	mu        sync.Mutex
	slots     [][]byte
	free      []uint64 // bitset, one bit per slot; 1 = free
	slotSize  int
	numSlots  int
}

// New creates a Pool with numSlots buffers of slotSize bytes each.
func New(numSlots, slotSize int) *Pool {
	logger := logrus.WithFields(logrus.Fields{
		"function":  "New",
		"package":   "bufferpool",
		"num_slots": numSlots,
		"slot_size": slotSize,
	})
	logger.Debug("allocating fixed-size buffer pool")

	words := (numSlots + 63) / 64
	p := &Pool{
		slots:    make([][]byte, numSlots),
		free:     make([]uint64, words),
		slotSize: slotSize,
		numSlots: numSlots,
	}
	for i := range p.slots {
		p.slots[i] = make([]byte, slotSize)
	}
	for i := range p.free {
		p.free[i] = ^uint64(0)
	}
	// Clear any trailing bits beyond numSlots in the last word.
	if rem := numSlots % 64; rem != 0 && len(p.free) > 0 {
		p.free[len(p.free)-1] = (uint64(1) << uint(rem)) - 1
	}
	return p
}

// Acquire returns an unused slot and its index. It aborts the process
// if the pool is exhausted: the controller sizes pools so that this
// cannot happen in correct operation (spec §7).
func (p *Pool) Acquire() (buf []byte, index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for w, word := range p.free {
		if word == 0 {
			continue
		}
		bit := bits.TrailingZeros64(word)
		idx := w*64 + bit
		if idx >= p.numSlots {
			continue
		}
		p.free[w] &^= 1 << uint(bit)
		return p.slots[idx], idx
	}
	panic(fmt.Sprintf("bufferpool: exhausted (%d slots in use)", p.numSlots))
}

// Release returns a slot to the pool by index.
func (p *Pool) Release(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, bit := index/64, index%64
	p.free[w] |= 1 << uint(bit)
}

// InUse reports how many slots are currently acquired.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	free := 0
	for _, word := range p.free {
		free += bits.OnesCount64(word)
	}
	return p.numSlots - free
}

// Close asserts no leaked slots remain acquired. It panics on leak,
// matching the teardown invariant in spec §5 ("asserts no leaks at
// teardown").
func (p *Pool) Close() {
	if n := p.InUse(); n != 0 {
		panic(fmt.Sprintf("bufferpool: %d slot(s) leaked at teardown", n))
	}
}
