package controller

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vvoip/clock"
	"github.com/opd-ai/vvoip/congestion"
	"github.com/opd-ai/vvoip/crypto"
	"github.com/opd-ai/vvoip/endpoint"
	"github.com/opd-ai/vvoip/extras"
	"github.com/opd-ai/vvoip/pacer"
	"github.com/opd-ai/vvoip/packetproto"
	"github.com/opd-ai/vvoip/reassembler"
	"github.com/opd-ai/vvoip/stream"
)

// pingInterval and pingRefreshAge implement the endpoint probing cadence
// from spec §4.2: "every 2s, to every endpoint not pinged in >=10s".
const (
	pingInterval   = 2.0
	pingRefreshAge = 10.0
	initRetransmit = 0.5
)

// Sender is the narrow capability the controller needs to hand a
// framed, encrypted datagram to an endpoint; it is the borrowed
// "PacketSender" reference of spec §9 ("a borrowed reference to the
// controller for PacketSenders, scoped to the controller's
// lifetime") turned the other way: here the controller borrows a
// Sender instead of owning one, to keep this package free of any
// concrete socket/transport dependency.
type Sender interface {
	SendTo(ep *endpoint.Endpoint, wire []byte) error
}

// Callbacks groups the user-visible notification surface (spec §7):
// connection-state transitions and terminal errors, mirroring the
// teacher's SetQualityCallback-style registration in av/manager.go
// applied to transport state instead of call quality.
type Callbacks struct {
	OnConnectionStateChanged func(State)
	OnError                  func(ErrorReason)
	OnGroupCallKey           func([]byte)
	OnRequestGroup           func()
	// OnProxyUDPIncapable fires when the UDP availability probe
	// determines the configured SOCKS5 proxy cannot carry UDP (spec
	// §4.2). The controller does not own sockets, so swapping the
	// proxy-wrapped socket for a direct UDP one is the caller's
	// responsibility.
	OnProxyUDPIncapable func()
}

// Controller owns every subcomponent (A-K) and runs the transport
// state machine (component L, spec §4.7). All public methods are
// documented as running on the single message thread (spec §5,
// ENFORCE_MSG_THREAD); this package does not itself spawn the
// receive/send threads described there — see Network (network.go) for
// the goroutine wiring that calls into this Controller.
type Controller struct {
	Clock  clock.Clock
	Config Config
	Key    crypto.SharedKey

	Registry   *endpoint.Registry
	Streams    map[uint8]*stream.Stream
	OutgoingID uint8

	ExtrasOut *extras.Outbox
	ExtrasIn  *extras.Inbox

	Congestion *congestion.Controller
	Bitrate    *congestion.BitrateAdapter

	Pacer        *pacer.Pacer
	RecentWindow *packetproto.RecentWindow

	sender Sender
	cb     Callbacks

	state     State
	lastError ErrorReason

	peerVersion      uint32
	peerVersionKnown bool

	startedAt          float64
	lastInitSentAt     float64
	initDeadline       float64
	lastRecvPacketTime float64
	haveRecvPacket     bool

	establishArmed bool
	establishAt    float64

	currentEndpoint *endpoint.Endpoint
	preferredRelay  *endpoint.Endpoint

	lastPingProbeAt float64
	pingSeqCounter  uint32

	totalPacketsSent  int
	lastBitrateTickAt float64

	udpConnectivity     UDPConnectivity
	udpProbeRound       int
	udpProbeLastRoundAt float64
	proxyUDPIncapable   bool
}

// New constructs a Controller. key must be the pre-shared 256-byte
// symmetric key (spec §1).
func New(c clock.Clock, cfg Config, key crypto.SharedKey, sender Sender, cb Callbacks) *Controller {
	ctrl := &Controller{
		Clock:        c,
		Config:       cfg,
		Key:          key,
		Registry:     endpoint.NewRegistry(),
		Streams:      make(map[uint8]*stream.Stream),
		ExtrasOut:    extras.NewOutbox(),
		ExtrasIn:     extras.NewInbox(),
		Congestion:   congestion.NewController(c),
		Bitrate:      congestion.NewBitrateAdapter(cfg.Congestion, cfg.Congestion.MinAudioBitrate),
		Pacer:        pacer.New(c, cfg.Pacer),
		RecentWindow: packetproto.NewRecentWindow(),
		sender:       sender,
		cb:           cb,
		state:        StateWaitInit,
	}

	ctrl.ExtrasOut.OnDelivered(extras.TypeGroupCallKey, func(data []byte) {
		if ctrl.cb.OnGroupCallKey != nil {
			ctrl.cb.OnGroupCallKey(data)
		}
	})
	ctrl.ExtrasOut.OnDelivered(extras.TypeRequestGroup, func([]byte) {
		if ctrl.cb.OnRequestGroup != nil {
			ctrl.cb.OnRequestGroup()
		}
	})

	return ctrl
}

// GetConnectionState returns the current transport state.
func (c *Controller) GetConnectionState() State { return c.state }

// GetLastError returns the reason the connection failed, or
// ErrorNone if it has not failed.
func (c *Controller) GetLastError() ErrorReason { return c.lastError }

// GetPreferredRelayID returns the currently preferred relay's ID, or
// false if none has been selected yet.
func (c *Controller) GetPreferredRelayID() (endpoint.ID, bool) {
	if c.preferredRelay == nil {
		return 0, false
	}
	return c.preferredRelay.ID, true
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Controller.setState",
		"package":  "controller",
		"from":     c.state.String(),
		"to":       s.String(),
	}).Info("transport state transition")
	c.state = s
	if c.cb.OnConnectionStateChanged != nil {
		c.cb.OnConnectionStateChanged(s)
	}
}

func (c *Controller) fail(reason ErrorReason) {
	c.lastError = reason
	c.setState(StateFailed)
	if c.cb.OnError != nil {
		c.cb.OnError(reason)
	}
}

// Start adds every candidate endpoint, creates the outgoing audio
// stream, and broadcasts INIT to all known endpoints (spec §4.2:
// "Start() opens UDP socket and sends an INIT packet to every known
// endpoint").
func (c *Controller) Start(candidates []*endpoint.Endpoint, outgoingCodec uint32, frameDurationMS uint16) {
	for _, ep := range candidates {
		c.Registry.Add(ep)
	}

	c.OutgoingID = 1
	c.Streams[c.OutgoingID] = stream.New(c.OutgoingID, stream.Audio, outgoingCodec, frameDurationMS, true)

	c.startedAt = c.Clock.Now()
	c.initDeadline = c.startedAt + c.Config.InitTimeout
	c.setState(StateWaitInitAck)
	c.broadcastInit()
	c.lastInitSentAt = c.Clock.Now()

	// UDP availability probing begins as soon as the transport starts,
	// independent of handshake progress (spec §4.2; grounded on the
	// original's receive-thread startup scheduling its first probe
	// round unconditionally rather than waiting for INIT_ACK).
	c.StartUDPProbe()
}

func (c *Controller) broadcastInit() {
	body := &packetproto.InitBody{
		ProtoVer:      packetproto.ProtocolVersion,
		MinProtoVer:   packetproto.MinProtocolVersion,
		Flags:         c.initFlags(),
		AudioCodecs:   []uint32{c.Streams[c.OutgoingID].Codec},
		VideoDecoders: nil,
		MaxVideoRes:   0,
	}
	wire := body.Serialize()
	for _, ep := range c.Registry.All() {
		c.sendPacketTo(ep, packetproto.PacketInit, wire, false)
	}
}

func (c *Controller) initFlags() uint32 {
	var f uint32
	if c.Config.DataSaving != DataSavingNever {
		f |= packetproto.InitFlagDataSaving
	}
	if c.Config.EnableVideoReceive {
		f |= packetproto.InitFlagVideoRecvSupported
	}
	if c.Config.EnableVideoSend {
		f |= packetproto.InitFlagVideoSendSupported
	}
	return f
}

// Tick must be called regularly (matching the message thread's timer
// callbacks, spec §5) to drive retransmits, timeouts, the
// ESTABLISHED-transition delays, reconnection detection, and endpoint
// probing.
func (c *Controller) Tick() {
	now := c.Clock.Now()

	switch c.state {
	case StateWaitInitAck:
		c.tickWaitInitAck(now)
	case StateEstablished, StateReconnecting:
		c.tickConnected(now)
	}

	if c.establishArmed && now >= c.establishAt {
		c.establishArmed = false
		if c.state == StateWaitInitAck {
			c.setState(StateEstablished)
		}
	}

	c.tickEndpointProbing(now)
	c.tickUDPProbe(now)
	c.Congestion.Tick()
	c.tickBitrateAdaptation(now)
	c.Pacer.CheckBacklog()
}

// bitrateTickInterval is how often the congestion action feeds the
// bitrate adapter (spec §4.3: "every 300ms").
const bitrateTickInterval = 0.3

func (c *Controller) tickBitrateAdaptation(now float64) {
	if now-c.lastBitrateTickAt < bitrateTickInterval {
		return
	}
	c.lastBitrateTickAt = now

	c.Bitrate.Apply(c.Congestion.GetBandwidthControlAction())
	c.Bitrate.UpdateLoss(c.Congestion.SendLossRatio(c.totalPacketsSent))
}

func (c *Controller) tickWaitInitAck(now float64) {
	if now >= c.initDeadline {
		c.fail(ErrorTimeout)
		return
	}
	if now-c.lastInitSentAt >= initRetransmit {
		c.broadcastInit()
		c.lastInitSentAt = now
	}
}

func (c *Controller) tickConnected(now float64) {
	if !c.haveRecvPacket {
		return
	}
	elapsed := now - c.lastRecvPacketTime

	if c.state == StateEstablished && elapsed >= c.Config.ReconnectingTimeout {
		c.setState(StateReconnecting)
	}

	if elapsed >= c.Config.RecvTimeout {
		c.handleRecvTimeout()
	}
}

// handleRecvTimeout implements spec §4.2: on a P2P path, switch to the
// preferred relay and notify the peer; already on a relay, fail.
func (c *Controller) handleRecvTimeout() {
	if c.currentEndpoint != nil && !c.currentEndpoint.Kind.IsRelay() && c.preferredRelay != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.handleRecvTimeout",
			"package":  "controller",
		}).Warn("recv timeout on P2P path, switching to preferred relay")
		c.currentEndpoint = c.preferredRelay
		c.ExtrasOut.Send(extras.TypeNetworkChanged, []byte{0})
		return
	}
	c.fail(ErrorTimeout)
}

func (c *Controller) tickEndpointProbing(now float64) {
	if now-c.lastPingProbeAt < pingInterval {
		return
	}
	c.lastPingProbeAt = now

	for _, ep := range c.Registry.All() {
		if now-ep.LastPingTime < pingRefreshAge && ep.LastPingSeq != 0 {
			continue
		}
		c.pingSeqCounter++
		ep.RecordPingSent(c.pingSeqCounter, c.Clock)
		c.sendPacketTo(ep, packetproto.PacketPing, nil, false)
	}

	c.recomputePreferredRelay()
}

func (c *Controller) recomputePreferredRelay() {
	candidates := c.Registry.All()
	relay := c.Config.Selection.PreferredRelay(candidates, c.Config.UseUDP, c.Config.UseTCP)
	if relay != nil {
		c.preferredRelay = relay
	}
}

// reassemblerFor lazily creates a stream's reassembler on first
// fragmented-capable dispatch.
func (c *Controller) reassemblerFor(s *stream.Stream) *reassembler.Reassembler {
	if s.Reassembler == nil {
		s.SetReassembler(reassembler.New(c.Clock))
	}
	return s.Reassembler
}
