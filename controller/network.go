package controller

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vvoip/endpoint"
	"github.com/opd-ai/vvoip/packetproto"
	"github.com/opd-ai/vvoip/transport"
)

// tickInterval drives Controller.Tick, matching the message thread's
// timer cadence (spec §5).
const tickInterval = 100 * time.Millisecond

// Network wires one or more transport.Socket instances (UDP, or TCP
// relay, optionally dialing through SOCKS5) to a Controller: it decodes inbound datagrams
// into ParsedHeaders and hands them to HandleDecoded, and implements
// Sender by picking the socket that owns an endpoint's address (spec
// §5: "receive thread" decodes and dispatches; "send thread" drains
// the raw send queue). Both roles are modeled here as goroutines
// registered against the socket's own callback-driven receive loop,
// grounded on the teacher's ConnectionMultiplexer packetLoop/stopChannel
// shutdown pattern (transport/connection_multiplexer.go).
type Network struct {
	ctrl    *Controller
	sockets []transport.Socket

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewNetwork binds ctrl to every socket in sockets, registering a
// decode-and-dispatch handler on each.
func NewNetwork(ctrl *Controller, sockets ...transport.Socket) *Network {
	n := &Network{
		ctrl:    ctrl,
		sockets: sockets,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, s := range sockets {
		s.RegisterHandler(n.handleInbound)
	}
	ctrl.sender = n
	return n
}

// Start launches the message-thread timer loop that drives
// Controller.Tick. Stop must be called before the Network is
// discarded; a Network that is never stopped leaks its timer
// goroutine (spec §5 destructor-aborts-if-Stop-not-called invariant).
func (n *Network) Start() {
	go n.tickLoop()
}

// Stop signals the timer loop to exit and closes every owned socket.
func (n *Network) Stop() error {
	close(n.stopCh)
	<-n.doneCh

	var firstErr error
	for _, s := range n.sockets {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *Network) tickLoop() {
	defer close(n.doneCh)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.ctrl.Tick()
		}
	}
}

// SendTo implements controller.Sender by writing to the first socket
// whose kind matches the endpoint (UDP sockets handle direct and
// UDP-relay endpoints; TCP-flavored sockets handle TCPRelay).
// tcpReadyPollMS bounds how long SendTo waits for a congested TCP
// relay connection to become writable before falling back to the
// pacer's parked queue (spec §4.6).
const tcpReadyPollMS = 5

func (n *Network) SendTo(ep *endpoint.Endpoint, wire []byte) error {
	s := n.socketFor(ep)
	if s == nil {
		return transport.ErrClosed
	}
	if tcpSocket, ok := s.(*transport.TCPSocket); ok {
		ready, err := tcpSocket.IsReadyToSend(ep.Addr(), tcpReadyPollMS)
		if err == nil && !ready {
			return transport.ErrNotReadyToSend
		}
	}
	return s.Send(wire, ep.Addr())
}

func (n *Network) socketFor(ep *endpoint.Endpoint) transport.Socket {
	for _, s := range n.sockets {
		if _, ok := s.(*transport.UDPSocket); ok && !ep.Kind.IsTCP() {
			return s
		}
		if _, isUDP := s.(*transport.UDPSocket); !isUDP && ep.Kind.IsTCP() {
			return s
		}
	}
	if len(n.sockets) > 0 {
		return n.sockets[0]
	}
	return nil
}

// handleInbound decodes one raw datagram and dispatches it to the
// controller. Decode failures (truncation, decrypt failure) are
// dropped silently per spec §7 ("malformed packets are dropped, never
// crash the session"); a protocol magic mismatch fails the call with
// ErrorIncompatible.
func (n *Network) handleInbound(data []byte, addr net.Addr) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Network.handleInbound",
		"package":  "controller",
		"addr":     addr.String(),
	})

	ep, ok := n.ctrl.Registry.FindByAddr(addr)
	if !ok {
		logger.Debug("datagram from unknown address, dropping")
		return
	}

	prefixLen := n.prefixLenFor(ep)
	if len(data) < prefixLen {
		return
	}
	if IsReflectorSpecial(data[prefixLen:]) {
		n.handleReflectorSpecial(ep, data[prefixLen:])
		return
	}

	framer := packetproto.NewFramer(n.ctrl.Key, n.ctrl.dialect())

	var ph *packetproto.ParsedHeader
	var err error
	switch n.ctrl.dialect() {
	case packetproto.Short:
		ph, err = framer.DecodeShort(data, prefixLen, n.ctrl.peerVersion)
	default:
		ph, err = framer.DecodeLong(data, prefixLen, n.ctrl.peerVersion)
	}
	if err != nil {
		if errors.Is(err, packetproto.ErrProtocolMagic) {
			logger.Warn("protocol magic mismatch, failing the call")
			n.ctrl.fail(ErrorIncompatible)
			return
		}
		logger.WithField("error", err.Error()).Debug("failed to decode packet, dropping")
		return
	}

	n.ctrl.HandleDecoded(ep, ph)
}

func (n *Network) prefixLenFor(ep *endpoint.Endpoint) int {
	if ep.Kind.IsRelay() {
		return 16
	}
	if !n.ctrl.peerVersionKnown || n.ctrl.peerVersion < 9 {
		return 16
	}
	return 0
}

func (n *Network) handleReflectorSpecial(ep *endpoint.Endpoint, data []byte) {
	tlID, self, peer, ok := ParseReflectorSpecial(data)
	if !ok {
		return
	}
	logger := logrus.WithFields(logrus.Fields{
		"function": "Network.handleReflectorSpecial",
		"package":  "controller",
		"tl_id":    tlID,
	})
	switch {
	case self != nil:
		logger.WithField("port", self.Port).Debug("reflector reported our own address")
	case peer != nil:
		port := peer.Port
		var newEP *endpoint.Endpoint
		if peer.HasIPv6 {
			newEP = endpoint.New(endpoint.UDPP2PInet, nil, peer.IPv6[:], port, ep.PeerTag)
		} else {
			newEP = endpoint.New(endpoint.UDPP2PInet, peer.IPv4[:], nil, port, ep.PeerTag)
		}
		n.ctrl.Registry.Add(newEP)
	default:
		logger.Debug("reflector acknowledgement with no address payload")
	}
}
