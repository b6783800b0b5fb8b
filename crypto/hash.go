package crypto

import (
	"crypto/sha1"
	"crypto/sha256"
)

// SHA1Sum returns the SHA-1 digest of data. MTProto1's msg_key and the
// legacy KDF1 chain both depend on SHA-1, which has no place in a
// modern AEAD scheme but is required here to match the wire format
// this core speaks (§4.1).
func SHA1Sum(data []byte) [20]byte {
	return sha1.Sum(data)
}

// SHA256Sum returns the SHA-256 digest of data, used by MTProto2's
// msg_key_large derivation and the call-id computation (§4.1, GLOSSARY).
func SHA256Sum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// KeyFingerprint returns the last 8 bytes of SHA-1(key), used to select
// a key in the MTProto1 header (§4.1).
func KeyFingerprint(key []byte) [8]byte {
	sum := SHA1Sum(key)
	var fp [8]byte
	copy(fp[:], sum[12:20])
	return fp
}

// CallID derives the 16-byte in-band call identifier used pre-v9 on
// direct paths: SHA-256(key)[16:32] (GLOSSARY, §4.1 "Peer tag prefix").
func CallID(key []byte) [16]byte {
	sum := SHA256Sum(key)
	var id [16]byte
	copy(id[:], sum[16:32])
	return id
}
