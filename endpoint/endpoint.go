// Package endpoint implements the candidate-endpoint registry (component
// E): direct peers and relays, each with per-endpoint RTT history, ping
// bookkeeping, and an optional owned TCP socket.
package endpoint

import (
	"net"

	"github.com/opd-ai/vvoip/clock"
)

// Kind identifies the category of a candidate endpoint (spec §3).
type Kind uint8

const (
	// UDPP2PInet is a direct UDP path to the peer's public address.
	UDPP2PInet Kind = iota
	// UDPP2PLAN is a direct UDP path to a peer discovered on the LAN.
	UDPP2PLAN
	// UDPRelay routes datagrams through a UDP relay server.
	UDPRelay
	// TCPRelay routes datagrams through a TCP relay server.
	TCPRelay
)

func (k Kind) String() string {
	switch k {
	case UDPP2PInet:
		return "udp_p2p_inet"
	case UDPP2PLAN:
		return "udp_p2p_lan"
	case UDPRelay:
		return "udp_relay"
	case TCPRelay:
		return "tcp_relay"
	default:
		return "unknown"
	}
}

// IsRelay reports whether this endpoint kind is a relay rather than a
// direct peer path.
func (k Kind) IsRelay() bool {
	return k == UDPRelay || k == TCPRelay
}

// IsTCP reports whether this endpoint kind communicates over TCP.
func (k Kind) IsTCP() bool {
	return k == TCPRelay
}

// rttHistorySize is the ring buffer capacity for recent RTT samples
// (spec §3: "ring buffer of recent RTTs (size 6)").
const rttHistorySize = 6

// ID uniquely identifies an endpoint; type bits are embedded in the
// high byte to disambiguate IPv6 and TCP variants sharing an address
// (spec §3).
type ID uint64

// MakeID derives an endpoint ID from its kind and address, embedding
// the kind in the top byte so two endpoints that differ only by
// transport never collide.
func MakeID(kind Kind, ip net.IP, port uint16) ID {
	var h uint64
	for _, b := range ip.To16() {
		h = h*31 + uint64(b)
	}
	h = h*31 + uint64(port)
	return ID((uint64(kind) << 56) | (h & 0x00FFFFFFFFFFFFFF))
}

// Endpoint is a potential network destination: a direct peer address or
// a relay server (spec §3 DATA MODEL).
type Endpoint struct {
	ID   ID
	Kind Kind

	IPv4 net.IP
	IPv6 net.IP
	Port uint16

	// PeerTag authenticates this client to a relay session (16 bytes,
	// zero for direct P2P endpoints).
	PeerTag [16]byte

	LastPingSeq  uint32
	LastPingTime float64

	rtts     [rttHistorySize]float64
	rttCount int
	rttNext  int

	UDPPongCount  uint32
	UDPPingsSent  uint32
	UDPRepliesGot uint32

	// TCPConn is the owned TCP socket handle for TCPRelay endpoints;
	// nil otherwise. The endpoint is the sole owner (spec §9: "no
	// back-pointers except a borrowed reference").
	TCPConn net.Conn
}

// New creates an Endpoint for a direct or relay destination.
func New(kind Kind, ipv4, ipv6 net.IP, port uint16, peerTag [16]byte) *Endpoint {
	return &Endpoint{
		ID:      MakeID(kind, firstNonNil(ipv4, ipv6), port),
		Kind:    kind,
		IPv4:    ipv4,
		IPv6:    ipv6,
		Port:    port,
		PeerTag: peerTag,
	}
}

func firstNonNil(a, b net.IP) net.IP {
	if a != nil {
		return a
	}
	return b
}

// AddRTT records a new round-trip sample, overwriting the oldest entry
// once the ring is full.
func (e *Endpoint) AddRTT(rtt float64) {
	e.rtts[e.rttNext] = rtt
	e.rttNext = (e.rttNext + 1) % rttHistorySize
	if e.rttCount < rttHistorySize {
		e.rttCount++
	}
}

// AverageRTT returns the mean of the recorded RTT samples, or -1 if no
// samples have been recorded yet.
func (e *Endpoint) AverageRTT() float64 {
	if e.rttCount == 0 {
		return -1
	}
	var sum float64
	for i := 0; i < e.rttCount; i++ {
		sum += e.rtts[i]
	}
	return sum / float64(e.rttCount)
}

// RecordPingSent stores the sequence and timestamp of an outgoing ping
// probe so a later PONG can be matched and timed.
func (e *Endpoint) RecordPingSent(seq uint32, c clock.Clock) {
	e.LastPingSeq = seq
	e.LastPingTime = c.Now()
	e.UDPPingsSent++
}

// RecordPong updates RTT history and pong accounting for a PONG that
// matches the endpoint's outstanding ping (spec §4.2 endpoint probing).
func (e *Endpoint) RecordPong(seq uint32, now float64) bool {
	if seq != e.LastPingSeq {
		return false
	}
	e.UDPPongCount++
	e.UDPRepliesGot++
	e.AddRTT(now - e.LastPingTime)
	return true
}

// Addr returns the preferred net.Addr for this endpoint (IPv4 if
// present, else IPv6), suitable for a UDP socket's WriteTo.
func (e *Endpoint) Addr() net.Addr {
	ip := e.IPv4
	if ip == nil {
		ip = e.IPv6
	}
	return &net.UDPAddr{IP: ip, Port: int(e.Port)}
}
