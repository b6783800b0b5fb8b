package crypto

import (
	"encoding/binary"
	"errors"

	"github.com/sirupsen/logrus"
)

// Version selects the MTProto envelope variant: MTProto1 for legacy
// peers (protocol version < 5), MTProto2 otherwise (§4.1).
type Version int

const (
	// MTProto1 is the legacy envelope: inner = u32-length-prefixed
	// payload, msg_key = last 16 bytes of SHA-1(inner).
	MTProto1 Version = iota
	// MTProto2 is the default envelope from peer protocol v≥5: inner
	// length prefix is u16 for the short header dialect or u32 for the
	// long header dialect, msg_key is derived via SHA-256.
	MTProto2
)

// LengthPrefix selects the inner-frame length field width, which
// depends on which wire dialect (§4.1 short/long header) is in use.
type LengthPrefix int

const (
	// LengthPrefixU16 is used with the short header dialect (v≥8).
	LengthPrefixU16 LengthPrefix = iota
	// LengthPrefixU32 is used with the long header dialect (v<8) and
	// always for MTProto1.
	LengthPrefixU32
)

var (
	// ErrShortCiphertext indicates a wire buffer too small to contain
	// the envelope's fixed header fields.
	ErrShortCiphertext = errors.New("crypto: ciphertext too short for envelope header")
	// ErrMsgKeyMismatch indicates the recomputed msg_key does not match
	// the one carried on the wire — the packet fails authentication
	// and must be silently dropped (spec §4.1 failure modes).
	ErrMsgKeyMismatch = errors.New("crypto: msg_key mismatch")
)

// Envelope encrypts and decrypts packet payloads per the MTProto1/2
// scheme negotiated by peer protocol version (§4.1).
type Envelope struct {
	Version Version
	Prefix  LengthPrefix
	Key     SharedKey
}

// NewEnvelope builds an Envelope for the given protocol version and
// wire dialect length-prefix width.
func NewEnvelope(version Version, prefix LengthPrefix, key SharedKey) *Envelope {
	return &Envelope{Version: version, Prefix: prefix, Key: key}
}

// Encrypt builds the inner frame (length-prefixed payload plus random
// padding), derives msg_key and the AES key/iv, and returns
// [key_fingerprint?][msg_key][ciphertext] ready to follow the peer-tag
// or call-id prefix on the wire. The key fingerprint is included only
// for MTProto1, matching the legacy header layout (§4.1).
func (e *Envelope) Encrypt(payload []byte, outgoing bool) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":     "Envelope.Encrypt",
		"package":      "crypto",
		"payload_size": len(payload),
		"version":      e.Version,
	})
	logger.Debug("Function entry: encrypting packet payload")

	dir := Incoming
	if outgoing {
		dir = Outgoing
	}

	inner, innerNoLen, err := e.buildInner(payload)
	if err != nil {
		return nil, err
	}

	var msgKey [16]byte
	var aesKey, aesIV [32]byte

	switch e.Version {
	case MTProto1:
		sum := SHA1Sum(inner)
		copy(msgKey[:], sum[4:20])
		aesKey, aesIV = KDF1(msgKey, e.Key, dir)
	default:
		large := MsgKeyLarge(e.Key, dir, innerNoLen)
		copy(msgKey[:], large[8:24])
		aesKey, aesIV = KDF2(msgKey, e.Key, dir)
	}

	cipherText, err := AESIGEEncrypt(inner, aesKey[:], aesIV[:])
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Error("IGE encryption failed")
		return nil, err
	}

	var out []byte
	if e.Version == MTProto1 {
		fp := KeyFingerprint(e.Key[:])
		out = make([]byte, 0, 8+16+len(cipherText))
		out = append(out, fp[:]...)
	} else {
		out = make([]byte, 0, 16+len(cipherText))
	}
	out = append(out, msgKey[:]...)
	out = append(out, cipherText...)

	logger.Debug("Function exit: Envelope.Encrypt")
	return out, nil
}

// Decrypt reverses Encrypt: it validates the key fingerprint (MTProto1
// only), derives the AES key/iv from the carried msg_key, decrypts, and
// verifies msg_key against a fresh hash of the recovered inner frame
// before returning the original payload.
func (e *Envelope) Decrypt(wire []byte, outgoing bool) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Envelope.Decrypt",
		"package":  "crypto",
		"version":  e.Version,
	})
	logger.Debug("Function entry: decrypting packet payload")

	dir := Incoming
	if outgoing {
		dir = Outgoing
	}

	rest := wire
	if e.Version == MTProto1 {
		if len(rest) < 8 {
			return nil, ErrShortCiphertext
		}
		expected := KeyFingerprint(e.Key[:])
		if string(rest[:8]) != string(expected[:]) {
			return nil, ErrMsgKeyMismatch
		}
		rest = rest[8:]
	}

	if len(rest) < 16+blockSize {
		return nil, ErrShortCiphertext
	}
	var msgKey [16]byte
	copy(msgKey[:], rest[:16])
	cipherText := rest[16:]

	var aesKey, aesIV [32]byte
	switch e.Version {
	case MTProto1:
		aesKey, aesIV = KDF1(msgKey, e.Key, dir)
	default:
		aesKey, aesIV = KDF2(msgKey, e.Key, dir)
	}

	inner, err := AESIGEDecrypt(cipherText, aesKey[:], aesIV[:])
	if err != nil {
		return nil, err
	}

	payload, innerNoLen, err := e.splitInner(inner)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Debug("malformed inner frame, dropping packet")
		return nil, err
	}

	switch e.Version {
	case MTProto1:
		sum := SHA1Sum(inner)
		var want [16]byte
		copy(want[:], sum[4:20])
		if want != msgKey {
			return nil, ErrMsgKeyMismatch
		}
	default:
		large := MsgKeyLarge(e.Key, dir, innerNoLen)
		var want [16]byte
		copy(want[:], large[8:24])
		if want != msgKey {
			return nil, ErrMsgKeyMismatch
		}
	}

	logger.Debug("Function exit: Envelope.Decrypt")
	return payload, nil
}

// buildInner returns (inner, innerWithoutLengthPrefix). inner is padded
// to a multiple of the AES block size; MTProto2 requires at least 12
// bytes of padding (§4.1).
func (e *Envelope) buildInner(payload []byte) (inner, innerNoLen []byte, err error) {
	var lenField []byte
	if e.Version == MTProto1 || e.Prefix == LengthPrefixU32 {
		lenField = make([]byte, 4)
		binary.LittleEndian.PutUint32(lenField, uint32(len(payload)))
	} else {
		lenField = make([]byte, 2)
		binary.LittleEndian.PutUint16(lenField, uint16(len(payload)))
	}

	minPad := 0
	if e.Version == MTProto2 {
		minPad = 12
	}
	total := len(lenField) + len(payload)
	pad := (blockSize - (total+minPad)%blockSize) % blockSize
	pad += minPad
	if pad == 0 && e.Version == MTProto1 {
		pad = blockSize
	}

	padding, err := RandomBytes(pad)
	if err != nil {
		return nil, nil, err
	}

	inner = make([]byte, 0, total+pad)
	inner = append(inner, lenField...)
	inner = append(inner, payload...)
	inner = append(inner, padding...)

	// inner_without_len excludes only the length prefix, not the
	// padding: msg_key_large covers everything the wire actually
	// carries after that prefix (§4.1).
	innerNoLen = inner[len(lenField):]
	return inner, innerNoLen, nil
}

// splitInner extracts the declared-length payload from a decrypted
// inner frame, returning an error (and never panicking) on any
// out-of-range length so that a malformed or forged packet merely gets
// dropped (spec §7 propagation rule).
func (e *Envelope) splitInner(inner []byte) (payload, innerNoLen []byte, err error) {
	var declared int
	var lenFieldSize int

	if e.Version == MTProto1 || e.Prefix == LengthPrefixU32 {
		if len(inner) < 4 {
			return nil, nil, ErrShortCiphertext
		}
		declared = int(binary.LittleEndian.Uint32(inner[:4]))
		lenFieldSize = 4
	} else {
		if len(inner) < 2 {
			return nil, nil, ErrShortCiphertext
		}
		declared = int(binary.LittleEndian.Uint16(inner[:2]))
		lenFieldSize = 2
	}

	if declared < 0 || lenFieldSize+declared > len(inner) {
		return nil, nil, ErrShortCiphertext
	}

	payload = inner[lenFieldSize : lenFieldSize+declared]
	innerNoLen = inner[lenFieldSize:]
	return payload, innerNoLen, nil
}
