package controller

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vvoip/endpoint"
	"github.com/opd-ai/vvoip/extras"
	"github.com/opd-ai/vvoip/packetproto"
	"github.com/opd-ai/vvoip/reassembler"
	"github.com/opd-ai/vvoip/stream"
)

// HandleDecoded processes one already-decrypted-and-parsed packet
// from ep (spec §4.7 dispatch table). Decoding (prefix stripping,
// envelope decryption, header parsing) happens in Network (network.go)
// or directly by a caller driving tests; everything downstream of a
// successful parse lives here so the dispatch logic is independent of
// which socket it arrived on.
func (c *Controller) HandleDecoded(ep *endpoint.Endpoint, ph *packetproto.ParsedHeader) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Controller.HandleDecoded",
		"package":  "controller",
		"type":     ph.Type,
		"seq":      ph.Seq,
	})

	c.lastRecvPacketTime = c.Clock.Now()
	c.haveRecvPacket = true
	if c.state == StateReconnecting {
		c.setState(StateEstablished)
	}

	isNew := c.RecentWindow.Observe(ph.Seq)
	c.processAcks(ph.LastRemoteSeq, ph.AckMask)

	if ph.HasExtra {
		c.processExtras(ep, ph.Extra)
	}

	if !isNew {
		logger.Debug("duplicate sequence, dropping body dispatch")
		return
	}

	switch packetproto.PacketType(ph.Type) {
	case packetproto.PacketInit:
		c.handleInit(ep, ph.Body)
	case packetproto.PacketInitAck:
		c.handleInitAck(ep, ph.Body)
	case packetproto.PacketStreamData, packetproto.PacketStreamDataX2, packetproto.PacketStreamDataX3:
		c.handleStreamData(packetproto.PacketType(ph.Type), ph.Body)
	case packetproto.PacketStreamEC:
		c.handleStreamEC(ph.Body)
	case packetproto.PacketPing:
		c.handlePing(ep)
	case packetproto.PacketPong:
		c.handlePong(ep, ph.Body)
	case packetproto.PacketStreamState:
		c.handleStreamState(ph.Body)
	case packetproto.PacketNop:
		// keep-alive only; lastRecvPacketTime update above suffices.
	default:
		logger.Debug("unknown packet type, dropping")
	}
}

// processAcks applies the peer's report of what they've received from
// us to the extras outbox and the congestion controller (spec §4.1
// ack_mask, §4.3, §4.5).
func (c *Controller) processAcks(lastRemoteSeq, ackMask uint32) {
	c.ExtrasOut.AckUpTo(lastRemoteSeq)
	c.Congestion.PacketAcknowledged(lastRemoteSeq)
	for i := uint32(0); i < 32; i++ {
		if ackMask&(1<<(31-i)) != 0 {
			c.Congestion.PacketAcknowledged(lastRemoteSeq - (i + 1))
		}
	}
}

func (c *Controller) processExtras(ep *endpoint.Endpoint, blob []byte) {
	entries, err := extras.ParseEntries(blob)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.processExtras",
			"package":  "controller",
			"error":    err.Error(),
		}).Debug("malformed extras blob, dropping trailing entries")
	}
	for _, e := range entries {
		if !c.ExtrasIn.Receive(e.Type, e.Data) {
			continue
		}
		c.dispatchExtra(ep, e.Type, e.Data)
	}
}

func (c *Controller) dispatchExtra(ep *endpoint.Endpoint, t extras.Type, data []byte) {
	switch t {
	case extras.TypeNetworkChanged:
		c.handleNetworkChanged()
	case extras.TypeLANEndpoint:
		c.handleLANEndpointExtra(data)
	case extras.TypeIPv6Endpoint:
		c.handleIPv6EndpointExtra(data)
	case extras.TypeGroupCallKey:
		if c.cb.OnGroupCallKey != nil {
			c.cb.OnGroupCallKey(data)
		}
	case extras.TypeRequestGroup:
		if c.cb.OnRequestGroup != nil {
			c.cb.OnRequestGroup()
		}
	case extras.TypeStreamFlags, extras.TypeStreamCSD:
		// Carried for completeness; no additional local stream-state
		// beyond StreamState toggling is modeled by this core.
	}
}

func (c *Controller) handleInit(ep *endpoint.Endpoint, body []byte) {
	in, err := packetproto.ParseInitBody(body)
	if err != nil {
		return
	}
	if in.ProtoVer < packetproto.MinProtocolVersion {
		c.fail(ErrorIncompatible)
		return
	}
	c.peerVersion = in.ProtoVer
	c.peerVersionKnown = true

	c.sendInitAck(ep)
}

func (c *Controller) sendInitAck(ep *endpoint.Endpoint) {
	var streams []packetproto.InitAckStream
	for _, s := range c.Streams {
		streams = append(streams, packetproto.InitAckStream{
			StreamID:      s.ID,
			Type:          uint8(s.Kind),
			Codec:         s.Codec,
			FrameDuration: s.FrameDurationMS,
			Enabled:       boolToU8(s.Enabled),
		})
	}
	ack := &packetproto.InitAckBody{
		ProtoVer:    packetproto.ProtocolVersion,
		MinProtoVer: packetproto.MinProtocolVersion,
		Streams:     streams,
	}
	c.sendPacketTo(ep, packetproto.PacketInitAck, ack.Serialize(), false)
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (c *Controller) handleInitAck(ep *endpoint.Endpoint, body []byte) {
	ack, err := packetproto.ParseInitAckBody(body)
	if err != nil {
		return
	}
	c.peerVersion = ack.ProtoVer
	c.peerVersionKnown = true

	for _, s := range ack.Streams {
		kind := stream.Audio
		if s.Type == uint8(stream.Video) {
			kind = stream.Video
		}
		st := stream.New(s.StreamID, kind, s.Codec, s.FrameDuration, s.Enabled != 0)
		c.Streams[s.StreamID] = st
		c.reassemblerFor(st)
	}

	if ep.Kind.IsRelay() {
		c.preferredRelay = ep
	}
	c.currentEndpoint = ep

	c.establishArmed = true
	c.establishAt = c.Clock.Now() + c.Config.EstablishedDelayIfNoStreamData
}

func (c *Controller) handleStreamData(t packetproto.PacketType, body []byte) {
	count := packetproto.StreamDataSubPacketCount(t)
	subs, err := packetproto.ParseStreamDataSubPackets(body, count)
	if err != nil {
		return
	}

	if c.state == StateWaitInitAck {
		c.establishArmed = true
		c.establishAt = c.Clock.Now() + c.Config.EstablishedDelayOnFirstStreamData
	}

	for _, s := range subs {
		st, ok := c.Streams[s.StreamID]
		if !ok || !st.Enabled {
			continue
		}
		fragCount := s.FragmentCount
		fragIndex := s.FragmentIndex
		if !s.Fragmented {
			fragCount, fragIndex = 1, 0
		}
		c.reassemblerFor(st).PushFragment(s.PTS, fragIndex, fragCount, s.Keyframe, s.Payload)
		if len(s.ExtraFEC) > 0 {
			pushRedundantChunks(c.reassemblerFor(st), s.PTS, st.FrameDurationMS, s.ExtraFEC)
		}
	}
}

// pushRedundantChunks feeds the redundant prior-frame chunks carried
// inline on a STREAM_DATA sub-packet (spec §4.3
// STREAM_DATA_XFLAG_EXTRA_FEC) or decoded from a legacy STREAM_EC
// redundant packet into the reassembler. Chunk j of count covers the
// frame frameDurationMS*(count-j) milliseconds before pts, mirroring
// how sendLegacyStreamEC/redundantChunks order the window (oldest
// first).
func pushRedundantChunks(r *reassembler.Reassembler, pts uint32, frameDurationMS uint16, chunks []packetproto.StreamDataECChunk) {
	step := uint32(frameDurationMS)
	count := len(chunks)
	for j, chunk := range chunks {
		offset := uint32(count-j) * step
		if offset > pts {
			continue
		}
		r.PushRedundant(pts-offset, chunk.Data)
	}
}

func (c *Controller) handleStreamEC(body []byte) {
	ec, err := packetproto.ParseStreamECBody(body)
	if err != nil {
		return
	}
	st, ok := c.Streams[ec.StreamID]
	if !ok {
		return
	}
	switch ec.Scheme {
	case packetproto.StreamECXOR:
		c.reassemblerFor(st).PushFEC(uint32(ec.FrameSeq), ec.PrevFrameCount, ec.Payload)
	case packetproto.StreamECRedundant:
		c.handleRedundantStreamEC(st, ec)
	}
}

// handleRedundantStreamEC decodes a legacy (pre-v7 peer) STREAM_EC
// redundant-frame packet and feeds its chunks into the reassembler
// (spec §4.3).
func (c *Controller) handleRedundantStreamEC(st *stream.Stream, ec *packetproto.StreamECBody) {
	pts, chunks, err := packetproto.DecodeECChunks(ec.Payload)
	if err != nil {
		return
	}
	pushRedundantChunks(c.reassemblerFor(st), pts, st.FrameDurationMS, chunks)
}

func (c *Controller) handlePing(ep *endpoint.Endpoint) {
	c.sendPacketTo(ep, packetproto.PacketPong, (&packetproto.PongBody{PingSeq: ep.LastPingSeq}).Serialize(), false)
}

// handlePong echoes PING's own sequence per spec §6 ("PONG:
// ping_seq:u32"); since PING has no body, the peer's PONG actually
// carries back whatever sequence WE used when we pinged THEM, i.e.
// the receiver's own prior PacketPing seq — here that is read off
// the wire body and matched against ep.LastPingSeq.
func (c *Controller) handlePong(ep *endpoint.Endpoint, body []byte) {
	pong, err := packetproto.ParsePongBody(body)
	if err != nil {
		return
	}
	ep.RecordPong(pong.PingSeq, c.Clock.Now())
	c.recomputePreferredRelay()
}

func (c *Controller) handleNetworkChanged() {
	for _, ep := range c.Registry.All() {
		ep.UDPPongCount = 0
		ep.UDPPingsSent = 0
		ep.UDPRepliesGot = 0
	}
	c.StartUDPProbe()
}

func (c *Controller) handleLANEndpointExtra(data []byte) {
	if len(data) < 6 {
		return
	}
	ip := data[0:4]
	port := uint16(data[4]) | uint16(data[5])<<8
	ep := endpoint.New(endpoint.UDPP2PLAN, ip, nil, port, [16]byte{})
	c.Registry.Add(ep)
}

func (c *Controller) handleIPv6EndpointExtra(data []byte) {
	if len(data) < 18 {
		return
	}
	ip := data[0:16]
	port := uint16(data[16]) | uint16(data[17])<<8
	ep := endpoint.New(endpoint.UDPP2PInet, nil, ip, port, [16]byte{})
	c.Registry.Add(ep)
}

func (c *Controller) handleStreamState(body []byte) {
	if len(body) < 2 {
		return
	}
	st, ok := c.Streams[body[0]]
	if !ok {
		return
	}
	st.SetEnabled(body[1] != 0)
}
