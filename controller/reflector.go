package controller

import "encoding/binary"

// TL type identifiers carried by reflector-special responses (spec §6
// "UDP reflector special packets": a run of 24 0xFF bytes immediately
// after the peer tag marks a reflector response rather than an
// ordinary encrypted packet).
const (
	TLUDPReflectorSelfInfo uint32 = 0xc01572c7
	TLUDPReflectorPeerInfo uint32 = 0x27D9371C
	TLPeerInfoIPv6         uint32 = 0x83fc73b1
	TLRequestPacketsInfo   uint32 = 0x1a06fc96
	TLLastPacketsInfo      uint32 = 0x0e107305
	TLVector               uint32 = 0x1cb5c415
)

// reflectorMarkerLen is the length of the all-0xFF marker that
// distinguishes a reflector special from an ordinary encrypted packet
// (spec §6).
const reflectorMarkerLen = 24

// IsReflectorSpecial reports whether data (the bytes immediately
// following the peer tag prefix) begins with the reflector marker.
func IsReflectorSpecial(data []byte) bool {
	if len(data) < reflectorMarkerLen {
		return false
	}
	for _, b := range data[:reflectorMarkerLen] {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// SelfInfo describes this client's own address as reported back by a
// reflector (TLUDPReflectorSelfInfo).
type SelfInfo struct {
	IPv4 [4]byte
	Port uint16
}

// PeerInfo describes a peer address learned from a reflector response
// (TLUDPReflectorPeerInfo / TLPeerInfoIPv6).
type PeerInfo struct {
	IPv4    [4]byte
	IPv6    [16]byte
	HasIPv6 bool
	Port    uint16
}

// ParseReflectorSpecial decodes the TL-tagged payload that follows the
// 24-byte marker. Unrecognized TL ids are reported back to the caller
// unparsed rather than dropped, matching the "one unknown field never
// tears down the connection" posture used elsewhere in this core
// (spec §7).
func ParseReflectorSpecial(data []byte) (tlID uint32, self *SelfInfo, peer *PeerInfo, ok bool) {
	body := data[reflectorMarkerLen:]
	if len(body) < 4 {
		return 0, nil, nil, false
	}
	tlID = binary.LittleEndian.Uint32(body)
	body = body[4:]

	switch tlID {
	case TLUDPReflectorSelfInfo:
		if len(body) < 6 {
			return tlID, nil, nil, false
		}
		self = &SelfInfo{}
		copy(self.IPv4[:], body[0:4])
		self.Port = binary.LittleEndian.Uint16(body[4:6])
		return tlID, self, nil, true

	case TLUDPReflectorPeerInfo:
		if len(body) < 6 {
			return tlID, nil, nil, false
		}
		peer = &PeerInfo{}
		copy(peer.IPv4[:], body[0:4])
		peer.Port = binary.LittleEndian.Uint16(body[4:6])
		return tlID, nil, peer, true

	case TLPeerInfoIPv6:
		if len(body) < 18 {
			return tlID, nil, nil, false
		}
		peer = &PeerInfo{HasIPv6: true}
		copy(peer.IPv6[:], body[0:16])
		peer.Port = binary.LittleEndian.Uint16(body[16:18])
		return tlID, nil, peer, true

	case TLRequestPacketsInfo, TLLastPacketsInfo, TLVector:
		// Loss-recovery bookkeeping specific to the relay protocol; this
		// core's own congestion controller (component I) already infers
		// loss from ack_mask gaps, so these are acknowledged but not
		// acted on.
		return tlID, nil, nil, true

	default:
		return tlID, nil, nil, false
	}
}
