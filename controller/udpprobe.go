package controller

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vvoip/endpoint"
	"github.com/opd-ai/vvoip/packetproto"
)

// UDPConnectivity is the outcome of the UDP availability probe (spec
// §4.2).
type UDPConnectivity int

// UDPConnectivity values (spec §4.2).
const (
	UDPConnectivityUnknown UDPConnectivity = iota
	UDPConnectivityPending
	UDPConnectivityAvailable
	UDPConnectivityBad
	UDPConnectivityNotAvailable
)

func (s UDPConnectivity) String() string {
	switch s {
	case UDPConnectivityPending:
		return "pending"
	case UDPConnectivityAvailable:
		return "available"
	case UDPConnectivityBad:
		return "bad"
	case UDPConnectivityNotAvailable:
		return "not_available"
	default:
		return "unknown"
	}
}

// udpProbeRoundInterval and udpProbeTotalRounds implement spec §4.2's
// "10 ping-probes over 5 s to relays".
const (
	udpProbeRoundInterval = 0.5
	udpProbeTotalRounds   = 10
)

// StartUDPProbe begins the UDP-availability probing state machine
// (spec §4.2). If config names a proxy server and a persisted state
// file records that server as previously marked UDP-incapable, the
// probe is skipped and connectivity is set directly from the
// persisted capability — "remembers whether a SOCKS5 proxy supports
// UDP to skip the probe next call" (spec §6 persistent state).
func (c *Controller) StartUDPProbe() {
	if !c.Config.UseUDP {
		c.finalizeUDPNotAvailable()
		return
	}

	if c.Config.ProxyServer != "" && c.Config.StateFilePath != "" {
		if state, err := LoadState(c.Config.StateFilePath); err == nil &&
			state.Proxy.Server == c.Config.ProxyServer && !state.Proxy.UDP {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.StartUDPProbe",
				"package":  "controller",
				"proxy":    c.Config.ProxyServer,
			}).Info("proxy previously marked UDP-incapable, skipping probe")
			c.markProxyUDPIncapable()
			return
		}
	}

	c.udpConnectivity = UDPConnectivityPending
	c.udpProbeRound = 0
	c.udpProbeLastRoundAt = 0

	for _, ep := range c.Registry.All() {
		if ep.Kind == endpoint.UDPRelay {
			ep.UDPPongCount = 0
			ep.UDPPingsSent = 0
			ep.UDPRepliesGot = 0
		}
	}
}

// tickUDPProbe drives the probe's 10 rounds at 0.5 s spacing and
// evaluates the outcome once the window closes.
func (c *Controller) tickUDPProbe(now float64) {
	if c.udpConnectivity != UDPConnectivityPending {
		return
	}
	if c.udpProbeRound == 0 || now-c.udpProbeLastRoundAt >= udpProbeRoundInterval {
		c.sendUDPProbeRound()
		c.udpProbeLastRoundAt = now
		c.udpProbeRound++
	}
	if c.udpProbeRound >= udpProbeTotalRounds {
		c.evaluateUDPProbe()
	}
}

func (c *Controller) sendUDPProbeRound() {
	for _, ep := range c.Registry.All() {
		if ep.Kind != endpoint.UDPRelay {
			continue
		}
		c.pingSeqCounter++
		ep.RecordPingSent(c.pingSeqCounter, c.Clock)
		c.sendPacketTo(ep, packetproto.PacketPing, nil, false)
	}
}

// evaluateUDPProbe classifies UDP connectivity from the average pong
// replies received across UDP relays (spec §4.2 thresholds) and wires
// the outcome into UseUDP/UseTCP selection, the current endpoint, and
// persisted proxy capability.
func (c *Controller) evaluateUDPProbe() {
	var totalReplies, probedRelays int
	proxyGotAnyPong := false
	for _, ep := range c.Registry.All() {
		if ep.Kind != endpoint.UDPRelay || ep.UDPPingsSent == 0 {
			continue
		}
		totalReplies += int(ep.UDPRepliesGot)
		probedRelays++
		if ep.UDPRepliesGot > 0 {
			proxyGotAnyPong = true
		}
	}

	logger := logrus.WithFields(logrus.Fields{
		"function": "Controller.evaluateUDPProbe",
		"package":  "controller",
		"relays":   probedRelays,
		"replies":  totalReplies,
	})

	if probedRelays == 0 {
		logger.Warn("no UDP relays to probe, treating UDP as unavailable")
		c.finalizeUDPNotAvailable()
	} else {
		avg := float64(totalReplies) / float64(probedRelays)
		switch {
		case avg >= 3:
			c.udpConnectivity = UDPConnectivityAvailable
			c.Config.UseUDP = true
			logger.Info("UDP available")
		case avg > 1:
			c.udpConnectivity = UDPConnectivityBad
			c.Config.UseUDP = true
			c.Config.UseTCP = true
			logger.Warn("UDP bad, preferring TCP but still trying UDP")
		default:
			logger.Warn("UDP not available, switching to TCP relays")
			c.finalizeUDPNotAvailable()
		}
	}

	if c.Config.ProxyServer != "" && !proxyGotAnyPong {
		c.markProxyUDPIncapable()
		return
	}

	c.recomputePreferredRelay()
	if c.udpConnectivity != UDPConnectivityAvailable && c.preferredRelay != nil &&
		c.currentEndpoint != nil && !c.currentEndpoint.Kind.IsTCP() {
		c.currentEndpoint = c.preferredRelay
	}
	c.persistProxyState()
}

// finalizeUDPNotAvailable sets the UDP_NOT_AVAILABLE outcome and
// switches endpoint selection to TCP relays only (spec §4.2).
func (c *Controller) finalizeUDPNotAvailable() {
	c.udpConnectivity = UDPConnectivityNotAvailable
	c.Config.UseUDP = false
	c.Config.UseTCP = true
}

// markProxyUDPIncapable records that the active SOCKS5 proxy cannot
// carry UDP, falls back to treating UDP as unavailable through it, and
// notifies the network layer so it can swap the proxy-wrapped socket
// for a real UDP one (spec §4.2: "the proxy is marked UDP-incapable
// and the controller falls back to the real UDP socket"). Controller
// does not itself own sockets (component boundary, spec §9), so the
// actual socket swap is the OnProxyUDPIncapable callback's
// responsibility.
func (c *Controller) markProxyUDPIncapable() {
	c.proxyUDPIncapable = true
	c.finalizeUDPNotAvailable()
	if c.cb.OnProxyUDPIncapable != nil {
		c.cb.OnProxyUDPIncapable()
	}
	c.persistProxyState()
}

// persistProxyState writes the current proxy/UDP capability to
// Config.StateFilePath (spec §6 persistent state), a no-op if no path
// is configured.
func (c *Controller) persistProxyState() {
	if c.Config.StateFilePath == "" {
		return
	}
	state := PersistedState{
		Proxy: ProxySettings{
			Server: c.Config.ProxyServer,
			UDP:    !c.proxyUDPIncapable && c.udpConnectivity == UDPConnectivityAvailable,
			TCP:    c.Config.UseTCP,
		},
	}
	if err := SaveState(c.Config.StateFilePath, state); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.persistProxyState",
			"package":  "controller",
			"error":    err.Error(),
		}).Warn("failed to persist proxy state")
	}
}

// GetUDPConnectivity returns the current UDP availability probe
// outcome (spec §4.2).
func (c *Controller) GetUDPConnectivity() UDPConnectivity {
	return c.udpConnectivity
}
