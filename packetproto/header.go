package packetproto

import (
	"encoding/binary"
	"errors"
)

// Dialect selects which wire header layout is in effect, negotiated by
// peer protocol version (spec §4.1): short for v≥8 (or unknown peer
// version when the connection's negotiated max layer is ≥92), long
// otherwise.
type Dialect int

const (
	// Short is the compact v≥8 header.
	Short Dialect = iota
	// Long is the TL-wrapped legacy v<8 header.
	Long
)

// ProtocolMagic is the 4-byte constant every long-header packet must
// carry; a mismatch is the one fatal parse failure (spec §4.1, §6:
// PROTOCOL_VERSION=9, MIN_PROTOCOL_VERSION=3).
const ProtocolMagic uint32 = 0x50567247

// TL type identifiers for the long-header container (spec §4.1, §6).
const (
	TLDecryptedAudioBlock uint32 = 0xDBF948C1
	TLSimpleAudioBlock    uint32 = 0xCC0D0E76
)

// Short-header flag bits (spec §4.1).
const (
	FlagHasExtra  uint8 = 1 << 0
	FlagHasRecvTS uint8 = 1 << 1
)

// Long-header flag bits (spec §4.1: "HAS_DATA/EXTRA/CALL_ID/PROTO/SEQ/RECENT_RECV").
const (
	LongFlagHasData       uint32 = 1 << 0
	LongFlagHasExtra      uint32 = 1 << 1
	LongFlagHasCallID     uint32 = 1 << 2
	LongFlagHasProto      uint32 = 1 << 3
	LongFlagHasSeq        uint32 = 1 << 4
	LongFlagHasRecentRecv uint32 = 1 << 5
)

// ErrTruncated indicates a buffer too short to contain a declared field.
var ErrTruncated = errors.New("packetproto: truncated header")

// ErrProtocolMagic indicates a long-header packet with the wrong magic
// constant — the one fatal (non-dropped) parse failure (spec §4.1).
var ErrProtocolMagic = errors.New("packetproto: protocol magic mismatch")

// ParsedHeader is the dialect-independent result of decoding a wire
// header, so the rest of the controller never branches on Short vs.
// Long (spec §9 REDESIGN FLAGS: "tagged variants... uniform ParsedPacket").
type ParsedHeader struct {
	Dialect       Dialect
	Type          uint8
	LastRemoteSeq uint32
	Seq           uint32
	AckMask       uint32
	HasExtra      bool
	Extra         []byte
	HasRecvTS     bool
	RecvTS        uint32
	CallID        [16]byte
	HasCallID     bool
	Established   bool // long dialect: which TL id selected this parse
	Body          []byte
}

// ShortHeader is the v≥8 wire header: [type][last_remote_seq][seq][ack_mask][flags][extras?][recv_ts?].
type ShortHeader struct {
	Type          uint8
	LastRemoteSeq uint32
	Seq           uint32
	AckMask       uint32
	Extra         []byte // serialized reliable-extras blob, nil if absent
	RecvTS        uint32 // present only if HasRecvTS and video (v≥9)
	HasRecvTS     bool
}

// Serialize encodes the short header followed by body.
func (h *ShortHeader) Serialize(body []byte) []byte {
	var flags uint8
	if len(h.Extra) > 0 {
		flags |= FlagHasExtra
	}
	if h.HasRecvTS {
		flags |= FlagHasRecvTS
	}

	size := 1 + 4 + 4 + 4 + 1
	if len(h.Extra) > 0 {
		size += 2 + len(h.Extra) // u16 length prefix + blob
	}
	if h.HasRecvTS {
		size += 4
	}
	size += len(body)

	out := make([]byte, 0, size)
	out = append(out, h.Type)
	out = appendU32(out, h.LastRemoteSeq)
	out = appendU32(out, h.Seq)
	out = appendU32(out, h.AckMask)
	out = append(out, flags)
	if len(h.Extra) > 0 {
		out = appendU16(out, uint16(len(h.Extra)))
		out = append(out, h.Extra...)
	}
	if h.HasRecvTS {
		out = appendU32(out, h.RecvTS)
	}
	out = append(out, body...)
	return out
}

// ParseShortHeader decodes a short-header packet into a ParsedHeader.
func ParseShortHeader(data []byte) (*ParsedHeader, error) {
	if len(data) < 14 {
		return nil, ErrTruncated
	}
	ph := &ParsedHeader{Dialect: Short}
	off := 0
	ph.Type = data[off]
	off++
	ph.LastRemoteSeq = binary.LittleEndian.Uint32(data[off:])
	off += 4
	ph.Seq = binary.LittleEndian.Uint32(data[off:])
	off += 4
	ph.AckMask = binary.LittleEndian.Uint32(data[off:])
	off += 4
	flags := data[off]
	off++
	ph.HasExtra = flags&FlagHasExtra != 0
	ph.HasRecvTS = flags&FlagHasRecvTS != 0

	if ph.HasExtra {
		if len(data) < off+2 {
			return nil, ErrTruncated
		}
		n := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if len(data) < off+n {
			return nil, ErrTruncated
		}
		ph.Extra = data[off : off+n]
		off += n
	}
	if ph.HasRecvTS {
		if len(data) < off+4 {
			return nil, ErrTruncated
		}
		ph.RecvTS = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}
	ph.Body = data[off:]
	return ph, nil
}

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
