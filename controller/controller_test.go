package controller

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vvoip/clock"
	"github.com/opd-ai/vvoip/congestion"
	"github.com/opd-ai/vvoip/crypto"
	"github.com/opd-ai/vvoip/endpoint"
	"github.com/opd-ai/vvoip/packetproto"
	"github.com/opd-ai/vvoip/stream"
)

type sentPacket struct {
	ep   *endpoint.Endpoint
	wire []byte
}

type fakeSender struct {
	sent []sentPacket
	fail bool
}

func (f *fakeSender) SendTo(ep *endpoint.Endpoint, wire []byte) error {
	if f.fail {
		return net.ErrClosed
	}
	f.sent = append(f.sent, sentPacket{ep: ep, wire: wire})
	return nil
}

func newTestController(t *testing.T) (*Controller, *clock.Fake, *fakeSender) {
	t.Helper()
	fc := clock.NewFake()
	sender := &fakeSender{}
	cfg := DefaultConfig()
	var key crypto.SharedKey
	ctrl := New(fc, cfg, key, sender, Callbacks{})
	return ctrl, fc, sender
}

func relayEndpoint() *endpoint.Endpoint {
	return endpoint.New(endpoint.UDPRelay, net.IPv4(10, 0, 0, 1), nil, 33445, [16]byte{1, 2, 3})
}

func TestStartBroadcastsInitToEveryCandidate(t *testing.T) {
	ctrl, _, sender := newTestController(t)
	ep := relayEndpoint()

	ctrl.Start([]*endpoint.Endpoint{ep}, 0xDEADBEEF, 20)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, StateWaitInitAck, ctrl.GetConnectionState())
	assert.Equal(t, ep, sender.sent[0].ep)
}

func TestHandshakeReachesEstablishedOnInitAck(t *testing.T) {
	ctrl, fc, _ := newTestController(t)
	ep := relayEndpoint()
	ctrl.Registry.Add(ep)
	ctrl.Start([]*endpoint.Endpoint{ep}, 0xDEADBEEF, 20)

	ack := &packetproto.InitAckBody{
		ProtoVer:    packetproto.ProtocolVersion,
		MinProtoVer: packetproto.MinProtocolVersion,
		Streams: []packetproto.InitAckStream{
			{StreamID: 2, Type: 1, Codec: 0xDEADBEEF, FrameDuration: 20, Enabled: 1},
		},
	}
	ctrl.HandleDecoded(ep, &packetproto.ParsedHeader{
		Type: uint8(packetproto.PacketInitAck),
		Seq:  1,
		Body: ack.Serialize(),
	})

	require.Equal(t, StateWaitInitAck, ctrl.GetConnectionState())
	require.Contains(t, ctrl.Streams, uint8(2))

	fc.Advance(ctrl.Config.EstablishedDelayIfNoStreamData)
	ctrl.Tick()

	assert.Equal(t, StateEstablished, ctrl.GetConnectionState())
	relayID, ok := ctrl.GetPreferredRelayID()
	require.True(t, ok)
	assert.Equal(t, ep.ID, relayID)
}

func TestInitRetransmitsThenFails(t *testing.T) {
	ctrl, fc, sender := newTestController(t)
	ep := relayEndpoint()
	ctrl.Start([]*endpoint.Endpoint{ep}, 0xDEADBEEF, 20)
	require.Len(t, sender.sent, 1)

	// The tick retransmits INIT and also sends the first UDP-probe ping
	// to the relay (the probe starts with Start).
	fc.Advance(initRetransmit)
	ctrl.Tick()
	assert.Len(t, sender.sent, 3)

	fc.Advance(ctrl.Config.InitTimeout)
	ctrl.Tick()

	assert.Equal(t, StateFailed, ctrl.GetConnectionState())
	assert.Equal(t, ErrorTimeout, ctrl.GetLastError())
}

func TestDuplicateSequenceDroppedFromDispatch(t *testing.T) {
	ctrl, _, sender := newTestController(t)
	ep := relayEndpoint()
	ctrl.Registry.Add(ep)
	ep.LastPingSeq = 7
	ep.RecordPingSent(7, ctrl.Clock)

	ph := &packetproto.ParsedHeader{
		Type: uint8(packetproto.PacketPing),
		Seq:  100,
	}
	ctrl.HandleDecoded(ep, ph)
	ctrl.HandleDecoded(ep, ph)

	// Only the first PING should have produced a PONG reply.
	assert.Len(t, sender.sent, 1)
	assert.True(t, ctrl.RecentWindow.Contains(100))
}

func TestGroupCallKeyCallbackFiresOnceOnAck(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	ep := relayEndpoint()
	ctrl.Registry.Add(ep)

	ctrl.SendGroupCallKey([]byte("groupkey"))
	require.Len(t, ctrl.ExtrasOut.Pending(), 1)

	// First outgoing packet after SendGroupCallKey carries the extra at
	// whatever seq the pacer assigns next.
	ctrl.sendPacketTo(ep, packetproto.PacketNop, nil, false)

	fired := 0
	ctrl.cb.OnGroupCallKey = func([]byte) { fired++ }

	ctrl.HandleDecoded(ep, &packetproto.ParsedHeader{
		Type:          uint8(packetproto.PacketPing),
		Seq:           200,
		LastRemoteSeq: 1,
	})
	ctrl.HandleDecoded(ep, &packetproto.ParsedHeader{
		Type:          uint8(packetproto.PacketPing),
		Seq:           201,
		LastRemoteSeq: 1,
	})

	assert.Equal(t, 1, fired)
	assert.Empty(t, ctrl.ExtrasOut.Pending())
}

func TestRelaySwitchPrefersLowerRTT(t *testing.T) {
	ctrl, fc, _ := newTestController(t)
	relayA := endpoint.New(endpoint.UDPRelay, net.IPv4(10, 0, 0, 1), nil, 1, [16]byte{1})
	relayB := endpoint.New(endpoint.UDPRelay, net.IPv4(10, 0, 0, 2), nil, 2, [16]byte{2})
	ctrl.Registry.Add(relayA)
	ctrl.Registry.Add(relayB)

	relayA.RecordPingSent(1, fc)
	fc.Advance(0.2)
	relayA.RecordPong(1, fc.Now())

	relayB.RecordPingSent(1, fc)
	fc.Advance(0.05)
	relayB.RecordPong(1, fc.Now())

	ctrl.recomputePreferredRelay()

	id, ok := ctrl.GetPreferredRelayID()
	require.True(t, ok)
	assert.Equal(t, relayB.ID, id)
}

func TestHandleInitRejectsIncompatiblePeer(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	ep := relayEndpoint()
	ctrl.Registry.Add(ep)

	in := &packetproto.InitBody{ProtoVer: 1, MinProtoVer: 1}
	ctrl.HandleDecoded(ep, &packetproto.ParsedHeader{
		Type: uint8(packetproto.PacketInit),
		Seq:  1,
		Body: in.Serialize(),
	})

	assert.Equal(t, StateFailed, ctrl.GetConnectionState())
	assert.Equal(t, ErrorIncompatible, ctrl.GetLastError())
}

func TestStreamStateTogglesEnabled(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	ep := relayEndpoint()
	ctrl.Registry.Add(ep)

	ack := &packetproto.InitAckBody{
		ProtoVer:    packetproto.ProtocolVersion,
		MinProtoVer: packetproto.MinProtocolVersion,
		Streams:     []packetproto.InitAckStream{{StreamID: 5, Type: 1, Codec: 1, FrameDuration: 20, Enabled: 1}},
	}
	ctrl.HandleDecoded(ep, &packetproto.ParsedHeader{
		Type: uint8(packetproto.PacketInitAck),
		Seq:  1,
		Body: ack.Serialize(),
	})
	require.True(t, ctrl.Streams[5].Enabled)

	ctrl.HandleDecoded(ep, &packetproto.ParsedHeader{
		Type: uint8(packetproto.PacketStreamState),
		Seq:  2,
		Body: []byte{5, 0},
	})

	assert.False(t, ctrl.Streams[5].Enabled)
}

func TestSendStreamFrameRejectsUnknownStream(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	err := ctrl.SendStreamFrame(9, 0, false, []byte("payload"))
	assert.ErrorIs(t, err, ErrUnknownStream)
}

func TestSendStreamFrameIsNoOpForDisabledStream(t *testing.T) {
	ctrl, _, sender := newTestController(t)
	ctrl.Registry.Add(relayEndpoint())
	ctrl.currentEndpoint = relayEndpoint()
	ctrl.Streams[1] = stream.New(1, stream.Audio, 1, 20, false)

	err := ctrl.SendStreamFrame(1, 0, false, []byte("payload"))

	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}

func TestSendStreamFrameFragmentsLargePayload(t *testing.T) {
	ctrl, _, sender := newTestController(t)
	ep := relayEndpoint()
	ctrl.Registry.Add(ep)
	ctrl.currentEndpoint = ep
	ctrl.Streams[1] = stream.New(1, stream.Audio, 1, 20, true)

	payload := make([]byte, maxFragmentPayload*2+10)
	err := ctrl.SendStreamFrame(1, 1234, true, payload)

	require.NoError(t, err)
	assert.Len(t, sender.sent, 3)
}

func TestSendStreamFrameEmitsRedundantECUnderShittyInternet(t *testing.T) {
	ctrl, _, sender := newTestController(t)
	ep := relayEndpoint()
	ctrl.Registry.Add(ep)
	ctrl.currentEndpoint = ep
	ctrl.Streams[1] = stream.New(1, stream.Audio, 1, 20, true)

	// One unfragmented frame, EC disabled: only the STREAM_DATA packet.
	require.NoError(t, ctrl.SendStreamFrame(1, 1, false, []byte("frame-one")))
	require.Len(t, sender.sent, 1)

	ctrl.Bitrate.UpdateLoss(0.03)
	enabled, level := ctrl.Bitrate.ExtraEC()
	require.True(t, enabled)
	require.Equal(t, congestion.ExtraEC2, level)

	require.NoError(t, ctrl.SendStreamFrame(1, 2, false, []byte("frame-two")))

	// The second call should have produced a STREAM_DATA packet plus a
	// legacy STREAM_EC packet carrying a redundant copy of frame one
	// (the peer's version is not known, so nothing goes inline).
	assert.Len(t, sender.sent, 3)
}
