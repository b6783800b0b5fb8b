package endpoint

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relayWithRTT(t *testing.T, kind Kind, rtt float64) *Endpoint {
	t.Helper()
	ep := New(kind, net.ParseIP("1.2.3.4"), nil, 443, [16]byte{})
	ep.AddRTT(rtt)
	return ep
}

func TestPreferredRelayPicksLowestRTT(t *testing.T) {
	cfg := DefaultSelectionConfig()
	a := relayWithRTT(t, UDPRelay, 0.120)
	b := relayWithRTT(t, UDPRelay, 0.080)

	best := cfg.PreferredRelay([]*Endpoint{a, b}, true, true)
	require.NotNil(t, best)
	// a and b share an address and so an ID; compare identity instead.
	assert.Same(t, b, best)
}

func TestPreferredRelayRespectsTCPWeight(t *testing.T) {
	cfg := DefaultSelectionConfig()
	udp := relayWithRTT(t, UDPRelay, 0.100)
	tcp := relayWithRTT(t, TCPRelay, 0.060) // weighted: 0.12, worse than udp

	best := cfg.PreferredRelay([]*Endpoint{udp, tcp}, true, true)
	require.NotNil(t, best)
	assert.Equal(t, udp.ID, best.ID)
}

func TestPreferredRelayHonorsTransportFlags(t *testing.T) {
	cfg := DefaultSelectionConfig()
	udp := relayWithRTT(t, UDPRelay, 0.050)
	tcp := relayWithRTT(t, TCPRelay, 0.010)

	best := cfg.PreferredRelay([]*Endpoint{udp, tcp}, false, true)
	require.NotNil(t, best)
	assert.Equal(t, tcp.ID, best.ID)
}

func TestShouldSwitchToP2PAndBack(t *testing.T) {
	cfg := DefaultSelectionConfig()
	p2p := relayWithRTT(t, UDPP2PInet, 0.050)

	assert.True(t, cfg.ShouldSwitchToP2P(p2p, 0.100))
	assert.False(t, cfg.ShouldSwitchToP2P(p2p, 0.055))
}

func TestShouldSwitchToRelayOnDegradation(t *testing.T) {
	cfg := DefaultSelectionConfig()
	assert.True(t, cfg.ShouldSwitchToRelay(0.200, 0.100))
	assert.False(t, cfg.ShouldSwitchToRelay(0.050, 0.100))
}
