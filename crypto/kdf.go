package crypto

// SharedKey is the pre-shared 256-byte symmetric key the controller is
// constructed with (spec §1). Wire encryption keys and IVs are derived
// from slices of it via KDF1 (legacy MTProto1) or KDF2 (MTProto2,
// default from peer protocol v≥5).
type SharedKey [256]byte

// Direction selects which KDF offset (x) to use: 8 for MTProto1
// outgoing / 0 incoming, the reverse for MTProto2 (§4.1).
type Direction int

const (
	// Outgoing selects the sender-side KDF offset.
	Outgoing Direction = iota
	// Incoming selects the receiver-side KDF offset.
	Incoming
)

func mtproto1Offset(dir Direction) int {
	if dir == Outgoing {
		return 8
	}
	return 0
}

func mtproto2Offset(dir Direction) int {
	if dir == Outgoing {
		return 0
	}
	return 8
}

// KDF1 derives a 32-byte AES key and 32-byte IV from msgKey and the
// shared key using the legacy (MTProto1, peer protocol v<5) four-hash
// chain (§4.1).
func KDF1(msgKey [16]byte, key SharedKey, dir Direction) (aesKey, aesIV [32]byte) {
	x := mtproto1Offset(dir)

	sA := SHA1Sum(concat(msgKey[:], key[x:x+32]))
	sB := SHA1Sum(concat(key[32+x:48+x], msgKey[:], key[48+x:64+x]))
	sC := SHA1Sum(concat(key[64+x:96+x], msgKey[:]))
	sD := SHA1Sum(concat(msgKey[:], key[96+x:128+x]))

	copy(aesKey[0:8], sA[0:8])
	copy(aesKey[8:20], sB[8:20])
	copy(aesKey[20:32], sC[4:16])

	copy(aesIV[0:12], sA[8:20])
	copy(aesIV[12:20], sB[0:8])
	copy(aesIV[20:24], sC[16:20])
	copy(aesIV[24:32], sD[0:8])

	return aesKey, aesIV
}

// KDF2 derives a 32-byte AES key and 32-byte IV from msgKey and the
// shared key using the MTProto2 two-hash scheme (§4.1, default from
// peer protocol v≥5).
func KDF2(msgKey [16]byte, key SharedKey, dir Direction) (aesKey, aesIV [32]byte) {
	x := mtproto2Offset(dir)

	sA := SHA256Sum(concat(msgKey[:], key[x:x+36]))
	sB := SHA256Sum(concat(key[40+x:76+x], msgKey[:]))

	copy(aesKey[0:8], sA[0:8])
	copy(aesKey[8:24], sB[8:24])
	copy(aesKey[24:32], sA[24:32])

	copy(aesIV[0:8], sB[0:8])
	copy(aesIV[8:24], sA[8:24])
	copy(aesIV[24:32], sB[24:32])

	return aesKey, aesIV
}

// MsgKeyLarge computes the MTProto2 msg_key_large: SHA-256 over a slice
// of the shared key (offset by direction) concatenated with the inner
// plaintext framing sans its own length prefix (§4.1).
func MsgKeyLarge(key SharedKey, dir Direction, innerWithoutLen []byte) [32]byte {
	x := mtproto2Offset(dir)
	return SHA256Sum(concat(key[88+x:120+x], innerWithoutLen))
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
