package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe overwrites data in place so that key material does not
// linger in memory after use. It returns an error if data is nil.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	// XORing a slice with itself zeros it in a way the compiler cannot
	// elide, unlike a plain loop of data[i] = 0.
	subtle.XORBytes(data, data, data)
	runtime.KeepAlive(data)

	return nil
}

// ZeroBytes is a convenience wrapper around SecureWipe that ignores the
// nil-data error, for call sites that already know data is non-nil.
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}
