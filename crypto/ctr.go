package crypto

import (
	"crypto/aes"
	"crypto/cipher"
)

// NewCTRStream builds an AES-CTR keystream cipher.Stream for the TCPO2
// obfuscation layer (§4.1): a 64-byte nonce is split so that the second
// half seeds the send-direction key/IV and the bit-reversed first half
// seeds the receive direction. This wraps the standard library's CTR
// mode, which (unlike IGE) is already exactly what TCPO2 needs.
func NewCTRStream(key, iv []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewCTR(block, iv), nil
}
