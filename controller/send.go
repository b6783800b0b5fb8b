package controller

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vvoip/crypto"
	"github.com/opd-ai/vvoip/endpoint"
	"github.com/opd-ai/vvoip/extras"
	"github.com/opd-ai/vvoip/pacer"
	"github.com/opd-ai/vvoip/packetproto"
)

// dialect picks the wire dialect for the negotiated (or not-yet-known)
// peer protocol version (spec §4.1). Before the peer's version is
// known this controller, itself running PROTOCOL_VERSION=9, assumes
// the modern short dialect (maxLayer fixed at 92, spec §4.1 "or v
// unknown but connection's max layer is >=92").
func (c *Controller) dialect() packetproto.Dialect {
	return packetproto.SelectDialect(c.peerVersion, c.peerVersionKnown, 92)
}

func (c *Controller) envelopeVersion() crypto.Version {
	if !c.peerVersionKnown {
		return crypto.MTProto2
	}
	return packetproto.EnvelopeVersion(c.peerVersion)
}

// sendPacketTo builds and sends one packet of type t carrying body to
// ep, assigning the next outgoing sequence and attaching any pending
// reliable extras (spec §4.5, §4.6). Extras ride only on short-dialect
// headers; long-dialect packets carry none and leave the extras pending.
// isStreamData marks packets that count against the pacer's backlog
// cutoff.
func (c *Controller) sendPacketTo(ep *endpoint.Endpoint, t packetproto.PacketType, body []byte, isStreamData bool) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Controller.sendPacketTo",
		"package":  "controller",
		"type":     t,
		"endpoint": ep.Kind.String(),
	})

	seq := c.Pacer.GenerateOutSeq()

	var extraBlob []byte
	pending := c.ExtrasOut.Pending()
	if len(pending) > 0 {
		extraBlob = extras.SerializeEntries(pending)
	}

	framer := packetproto.NewFramer(c.Key, c.dialect())
	destIsRelay := ep.Kind.IsRelay()

	var wire []byte
	var err error
	switch c.dialect() {
	case packetproto.Short:
		h := &packetproto.ShortHeader{
			Type:          uint8(t),
			LastRemoteSeq: c.RecentWindow.LastRemoteSeq(),
			Seq:           seq,
			AckMask:       c.RecentWindow.BuildAckMask(),
			Extra:         extraBlob,
		}
		env := crypto.NewEnvelope(c.envelopeVersion(), crypto.LengthPrefixU16, c.Key)
		wire, err = encodeShortWithEnvelope(framer, h, body, destIsRelay, ep.PeerTag, c.peerVersion, env)
	default:
		h := &packetproto.LongHeader{
			Established:   c.state != StateWaitInit && c.state != StateWaitInitAck,
			CallID:        crypto.CallID(c.Key[:]),
			LastRemoteSeq: c.RecentWindow.LastRemoteSeq(),
			Seq:           seq,
			AckMask:       c.RecentWindow.BuildAckMask(),
		}
		wire, err = framer.EncodeLong(h, body, destIsRelay, ep.PeerTag, c.peerVersion)
	}

	if err != nil {
		logger.WithField("error", err.Error()).Error("failed to encode outgoing packet")
		return
	}

	if len(pending) > 0 && c.dialect() == packetproto.Short {
		c.ExtrasOut.MarkSent(seq)
	}
	c.Pacer.RecordSent(seq, uint8(t), len(wire))
	c.totalPacketsSent++
	if isStreamData {
		c.Congestion.PacketSent(seq, len(wire))
	}

	if c.sender == nil {
		return
	}
	if err := c.sender.SendTo(ep, wire); err != nil {
		logger.WithField("error", err.Error()).Debug("send failed, will retry on next tick")
		c.Pacer.Enqueue(&pacer.PendingPacket{Seq: seq, Type: uint8(t), Wire: wire, IsStreamData: isStreamData})
	}
}

// encodeShortWithEnvelope mirrors Framer.EncodeShort but accepts an
// already-configured Envelope, since the controller decides MTProto
// version based on whether the peer's protocol version is known yet
// rather than purely from peerVersion (spec §4.1).
func encodeShortWithEnvelope(f *packetproto.Framer, h *packetproto.ShortHeader, body []byte, destIsRelay bool, peerTag [16]byte, peerVersion uint32, env *crypto.Envelope) ([]byte, error) {
	plain := h.Serialize(body)
	cipherText, err := env.Encrypt(plain, true)
	if err != nil {
		return nil, err
	}
	prefix := packetproto.PeerTagPrefix(destIsRelay, peerTag, peerVersion, f.Key)
	out := make([]byte, 0, len(prefix)+len(cipherText))
	out = append(out, prefix...)
	out = append(out, cipherText...)
	return out, nil
}

// sendToCurrentEndpoint sends to whichever endpoint the transport is
// currently routed through, or does nothing if no path has been
// selected yet (used by SendStreamFrame, streamsend.go).
func (c *Controller) sendToCurrentEndpoint(t packetproto.PacketType, body []byte, isStreamData bool) {
	if c.currentEndpoint == nil {
		return
	}
	c.sendPacketTo(c.currentEndpoint, t, body, isStreamData)
}

// SendGroupCallKey queues the group call key as a reliable extra
// (spec §4.5 type 5). The outbox truncates payloads longer than 255
// bytes.
func (c *Controller) SendGroupCallKey(key []byte) {
	c.ExtrasOut.Send(extras.TypeGroupCallKey, key)
}

// SendLANEndpoint queues a detected local IPv4+port as a reliable
// extra (spec §4.5 type 3).
func (c *Controller) SendLANEndpoint(data []byte) {
	c.ExtrasOut.Send(extras.TypeLANEndpoint, data)
}

// SendStreamFlags queues a stream id + flag bitmap as a reliable extra
// (spec §4.5 type 1).
func (c *Controller) SendStreamFlags(data []byte) {
	c.ExtrasOut.Send(extras.TypeStreamFlags, data)
}
