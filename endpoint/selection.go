package endpoint

// SelectionConfig holds the RTT-ratio thresholds that govern relay
// preference and relay/P2P switching (spec §4.2, §6 server-config
// floats).
type SelectionConfig struct {
	// RelaySwitchThreshold gates switching preferred relay to a
	// measurably-better one (default 0.8).
	RelaySwitchThreshold float64
	// RelayToP2PSwitchThreshold: switch from relay to P2P once a P2P
	// endpoint's RTT drops below this fraction of the current relay's
	// RTT (default 0.8).
	RelayToP2PSwitchThreshold float64
	// P2PToRelaySwitchThreshold: switch from P2P back to relay once
	// its RTT rises above this fraction of the relay's RTT (default
	// 0.6).
	P2PToRelaySwitchThreshold float64
	// TCPRTTWeight multiplies a TCP relay's RTT before comparison,
	// penalizing TCP relative to UDP relays (spec §4.2: "TCP weighted
	// ×2").
	TCPRTTWeight float64
}

// DefaultSelectionConfig returns the values named in spec §6.
func DefaultSelectionConfig() SelectionConfig {
	return SelectionConfig{
		RelaySwitchThreshold:      0.8,
		RelayToP2PSwitchThreshold: 0.8,
		P2PToRelaySwitchThreshold: 0.6,
		TCPRTTWeight:              2.0,
	}
}

func (c SelectionConfig) weightedRTT(ep *Endpoint) float64 {
	rtt := ep.AverageRTT()
	if rtt < 0 {
		return -1
	}
	if ep.Kind.IsTCP() {
		return rtt * c.TCPRTTWeight
	}
	return rtt
}

// PreferredRelay picks a low-weighted-RTT relay endpoint among
// candidates the caller is permitted to use (spec §4.2). Candidates are
// scanned in order, and a later one replaces the current pick only when
// its weighted RTT is below RelaySwitchThreshold times the pick's, so
// of two relays within that margin the earlier one is kept. It returns
// nil if no relay has an RTT sample yet.
func (c SelectionConfig) PreferredRelay(candidates []*Endpoint, useUDP, useTCP bool) *Endpoint {
	var best *Endpoint
	var bestRTT float64 = -1

	for _, ep := range candidates {
		if !ep.Kind.IsRelay() {
			continue
		}
		if ep.Kind == UDPRelay && !useUDP {
			continue
		}
		if ep.Kind == TCPRelay && !useTCP {
			continue
		}
		rtt := c.weightedRTT(ep)
		if rtt < 0 {
			continue
		}
		if best == nil || rtt < bestRTT*c.RelaySwitchThreshold {
			best, bestRTT = ep, rtt
		}
	}
	return best
}

// ShouldSwitchToP2P reports whether a candidate P2P endpoint's RTT
// justifies abandoning the current relay (spec §4.2).
func (c SelectionConfig) ShouldSwitchToP2P(p2p *Endpoint, currentRelayRTT float64) bool {
	rtt := p2p.AverageRTT()
	if rtt < 0 || currentRelayRTT < 0 {
		return false
	}
	return rtt < c.RelayToP2PSwitchThreshold*currentRelayRTT
}

// ShouldSwitchToRelay reports whether the current P2P path has
// degraded enough to fall back to the relay (spec §4.2).
func (c SelectionConfig) ShouldSwitchToRelay(currentP2PRTT, relayRTT float64) bool {
	if currentP2PRTT < 0 || relayRTT < 0 {
		return false
	}
	return currentP2PRTT > c.P2PToRelaySwitchThreshold*relayRTT
}
