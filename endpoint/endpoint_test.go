package endpoint

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTTRingBufferWraps(t *testing.T) {
	ep := New(UDPRelay, net.ParseIP("1.2.3.4"), nil, 443, [16]byte{})
	for i := 1; i <= 8; i++ {
		ep.AddRTT(float64(i) * 0.01)
	}
	// Only the last 6 samples (3..8) survive.
	avg := ep.AverageRTT()
	assert.InDelta(t, (0.03+0.04+0.05+0.06+0.07+0.08)/6, avg, 1e-9)
}

func TestAverageRTTEmptyIsNegative(t *testing.T) {
	ep := New(UDPP2PInet, net.ParseIP("1.1.1.1"), nil, 1000, [16]byte{})
	assert.Equal(t, -1.0, ep.AverageRTT())
}

func TestRecordPongMatchesOutstandingPing(t *testing.T) {
	ep := New(UDPP2PInet, net.ParseIP("1.1.1.1"), nil, 1000, [16]byte{})
	ep.RecordPingSent(42, fakeClock{5})

	ok := ep.RecordPong(42, 5.2)
	assert.True(t, ok)
	assert.InDelta(t, 0.2, ep.AverageRTT(), 1e-9)
	assert.Equal(t, uint32(1), ep.UDPPongCount)
}

func TestRecordPongRejectsMismatchedSeq(t *testing.T) {
	ep := New(UDPP2PInet, net.ParseIP("1.1.1.1"), nil, 1000, [16]byte{})
	ep.RecordPingSent(42, fakeClock{0})

	ok := ep.RecordPong(99, 1)
	assert.False(t, ok)
	assert.Equal(t, uint32(0), ep.UDPPongCount)
}

func TestRegistryAddIsIdempotentByID(t *testing.T) {
	r := NewRegistry()
	a := New(UDPRelay, net.ParseIP("5.5.5.5"), nil, 80, [16]byte{})
	a.AddRTT(0.1)

	got := r.Add(a)
	require.Same(t, a, got)

	dup := New(UDPRelay, net.ParseIP("5.5.5.5"), nil, 80, [16]byte{})
	got2 := r.Add(dup)
	assert.Same(t, a, got2, "re-adding the same endpoint must preserve existing RTT history")
	assert.Equal(t, 1, r.Len())
}

func TestRegistryFindByAddr(t *testing.T) {
	r := NewRegistry()
	ep := New(UDPP2PInet, net.ParseIP("10.0.0.5"), nil, 33445, [16]byte{})
	r.Add(ep)

	found, ok := r.FindByAddr(&net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 33445})
	require.True(t, ok)
	assert.Equal(t, ep.ID, found.ID)

	_, ok = r.FindByAddr(&net.UDPAddr{IP: net.ParseIP("10.0.0.6"), Port: 33445})
	assert.False(t, ok)
}

func TestRegistryOfKindFilters(t *testing.T) {
	r := NewRegistry()
	r.Add(New(UDPRelay, net.ParseIP("1.1.1.1"), nil, 1, [16]byte{}))
	r.Add(New(TCPRelay, net.ParseIP("2.2.2.2"), nil, 2, [16]byte{}))
	r.Add(New(UDPRelay, net.ParseIP("3.3.3.3"), nil, 3, [16]byte{}))

	assert.Len(t, r.OfKind(UDPRelay), 2)
	assert.Len(t, r.OfKind(TCPRelay), 1)
	assert.Len(t, r.OfKind(UDPP2PLAN), 0)
}

func TestMakeIDDistinguishesKind(t *testing.T) {
	ip := net.ParseIP("8.8.8.8")
	a := MakeID(UDPP2PInet, ip, 1000)
	b := MakeID(TCPRelay, ip, 1000)
	assert.NotEqual(t, a, b)
}

type fakeClock struct{ t float64 }

func (f fakeClock) Now() float64 { return f.t }
