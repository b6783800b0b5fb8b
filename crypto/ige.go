package crypto

import (
	"crypto/aes"
	"errors"
)

// ErrIGEInvalidLength indicates the data length is not a non-zero
// multiple of the AES block size.
var ErrIGEInvalidLength = errors.New("ige: data must be a non-zero multiple of the AES block size")

// ErrIGEInvalidIV indicates an IV shorter than the two chaining blocks
// IGE requires.
var ErrIGEInvalidIV = errors.New("ige: iv must be 32 bytes (two AES blocks)")

const blockSize = aes.BlockSize // 16

// AESIGEEncrypt encrypts data with AES-256 in Infinite Garble Extension
// (IGE) mode. Neither the standard library nor the reference corpus's
// x/crypto dependency implements IGE — it is specific to the MTProto
// envelope this core speaks (§4.1) — so it is built directly on
// crypto/aes's single-block cipher.Block (see DESIGN.md).
//
// iv is 32 bytes: iv[0:16] seeds the previous-ciphertext chaining value,
// iv[16:32] seeds the previous-plaintext chaining value, matching the
// MTProto convention.
func AESIGEEncrypt(data, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrIGEInvalidLength
	}
	if len(iv) != 2*blockSize {
		return nil, ErrIGEInvalidIV
	}

	prevCipher := append([]byte(nil), iv[:blockSize]...)
	prevPlain := append([]byte(nil), iv[blockSize:]...)

	out := make([]byte, len(data))
	var xored, y [blockSize]byte
	for off := 0; off < len(data); off += blockSize {
		x := data[off : off+blockSize]
		xorInto(xored[:], x, prevCipher)
		block.Encrypt(y[:], xored[:])
		xorInto(y[:], y[:], prevPlain)

		copy(out[off:off+blockSize], y[:])
		prevCipher = append(prevCipher[:0], y[:]...)
		prevPlain = append(prevPlain[:0], x...)
	}
	return out, nil
}

// AESIGEDecrypt is the inverse of AESIGEEncrypt.
func AESIGEDecrypt(data, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrIGEInvalidLength
	}
	if len(iv) != 2*blockSize {
		return nil, ErrIGEInvalidIV
	}

	prevCipher := append([]byte(nil), iv[:blockSize]...)
	prevPlain := append([]byte(nil), iv[blockSize:]...)

	out := make([]byte, len(data))
	var xored, x [blockSize]byte
	for off := 0; off < len(data); off += blockSize {
		y := data[off : off+blockSize]
		xorInto(xored[:], y, prevPlain)
		block.Decrypt(x[:], xored[:])
		xorInto(x[:], x[:], prevCipher)

		copy(out[off:off+blockSize], x[:])
		prevCipher = append(prevCipher[:0], y...)
		prevPlain = append(prevPlain[:0], x[:]...)
	}
	return out, nil
}

func xorInto(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}
