package packetproto

import (
	"github.com/opd-ai/vvoip/crypto"
)

// PeerTagPrefix computes the bytes that must precede the encrypted
// envelope on the wire: the relay's peer tag when sending to a relay,
// the call id for direct v<9 datagrams, or nothing for direct v≥9
// datagrams (spec §4.1 "Peer tag prefix").
func PeerTagPrefix(destIsRelay bool, peerTag [16]byte, peerVersion uint32, key crypto.SharedKey) []byte {
	if destIsRelay {
		out := make([]byte, 16)
		copy(out, peerTag[:])
		return out
	}
	if peerVersion < 9 {
		id := crypto.CallID(key[:])
		out := make([]byte, 16)
		copy(out, id[:])
		return out
	}
	return nil
}

// SelectDialect picks the wire dialect for a negotiated peer protocol
// version, or a connection whose max layer is ≥92 when the version is
// unknown (spec §4.1).
func SelectDialect(peerVersion uint32, versionKnown bool, maxLayer uint32) Dialect {
	if versionKnown {
		if peerVersion >= 8 {
			return Short
		}
		return Long
	}
	if maxLayer >= 92 {
		return Short
	}
	return Long
}

// EnvelopeVersion picks MTProto1 or MTProto2 from the negotiated peer
// protocol version (spec §4.1: MTProto2 default from v≥5).
func EnvelopeVersion(peerVersion uint32) crypto.Version {
	if peerVersion < 5 {
		return crypto.MTProto1
	}
	return crypto.MTProto2
}

// Framer turns (header fields, body) into an on-the-wire datagram and
// back: peer-tag/call-id prefix, then the MTProto envelope (spec
// §4.1). One Framer instance is built per connection, since the
// envelope is keyed off one shared key.
type Framer struct {
	Key    crypto.SharedKey
	Dialect Dialect
}

// NewFramer builds a Framer for the given shared key and dialect.
func NewFramer(key crypto.SharedKey, dialect Dialect) *Framer {
	return &Framer{Key: key, Dialect: dialect}
}

// EncodeShort serializes a short-header packet, encrypts it with the
// envelope matching peerVersion, and prepends the peer-tag/call-id
// prefix.
func (f *Framer) EncodeShort(h *ShortHeader, body []byte, destIsRelay bool, peerTag [16]byte, peerVersion uint32) ([]byte, error) {
	plain := h.Serialize(body)

	env := crypto.NewEnvelope(EnvelopeVersion(peerVersion), crypto.LengthPrefixU16, f.Key)
	cipherText, err := env.Encrypt(plain, true)
	if err != nil {
		return nil, err
	}

	prefix := PeerTagPrefix(destIsRelay, peerTag, peerVersion, f.Key)
	out := make([]byte, 0, len(prefix)+len(cipherText))
	out = append(out, prefix...)
	out = append(out, cipherText...)
	return out, nil
}

// DecodeShort strips an expected prefix length, decrypts, and parses a
// short-header packet.
func (f *Framer) DecodeShort(wire []byte, prefixLen int, peerVersion uint32) (*ParsedHeader, error) {
	if len(wire) < prefixLen {
		return nil, ErrTruncated
	}
	cipherText := wire[prefixLen:]

	// Every sender encrypts as outgoing (EncodeShort), so the receiver
	// decrypts with that same direction's KDF offset.
	env := crypto.NewEnvelope(EnvelopeVersion(peerVersion), crypto.LengthPrefixU16, f.Key)
	plain, err := env.Decrypt(cipherText, true)
	if err != nil {
		return nil, err
	}
	return ParseShortHeader(plain)
}

// EncodeLong serializes and encrypts a long-header packet.
func (f *Framer) EncodeLong(h *LongHeader, body []byte, destIsRelay bool, peerTag [16]byte, peerVersion uint32) ([]byte, error) {
	padding, err := RandomPadding(0)
	if err != nil {
		return nil, err
	}
	plain := h.Serialize(body, padding)

	env := crypto.NewEnvelope(crypto.MTProto1, crypto.LengthPrefixU32, f.Key)
	if peerVersion >= 5 {
		env.Version = crypto.MTProto2
	}
	cipherText, err := env.Encrypt(plain, true)
	if err != nil {
		return nil, err
	}

	prefix := PeerTagPrefix(destIsRelay, peerTag, peerVersion, f.Key)
	out := make([]byte, 0, len(prefix)+len(cipherText))
	out = append(out, prefix...)
	out = append(out, cipherText...)
	return out, nil
}

// DecodeLong strips the expected prefix length, decrypts, and parses a
// long-header packet.
func (f *Framer) DecodeLong(wire []byte, prefixLen int, peerVersion uint32) (*ParsedHeader, error) {
	if len(wire) < prefixLen {
		return nil, ErrTruncated
	}
	cipherText := wire[prefixLen:]

	env := crypto.NewEnvelope(crypto.MTProto1, crypto.LengthPrefixU32, f.Key)
	if peerVersion >= 5 {
		env.Version = crypto.MTProto2
	}
	plain, err := env.Decrypt(cipherText, true)
	if err != nil {
		return nil, err
	}
	return ParseLongHeader(plain)
}
