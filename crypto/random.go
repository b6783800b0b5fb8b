package crypto

import (
	"crypto/rand"

	"github.com/sirupsen/logrus"
)

// RandomBytes fills and returns a slice of n cryptographically secure
// random bytes, used throughout the framer for padding, random-ids, and
// TCPO2 nonces.
func RandomBytes(n int) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "RandomBytes",
		"package":  "crypto",
		"size":     n,
	})
	logger.Debug("Function entry: generating secure random bytes")

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		logger.WithFields(logrus.Fields{
			"error":      err.Error(),
			"error_type": "random_generation_failed",
		}).Error("failed to generate secure random bytes")
		return nil, err
	}

	logger.Debug("Function exit: RandomBytes")
	return buf, nil
}

// RandomUint32 returns a cryptographically secure random 32-bit value,
// used for random-ids in the long-header wire dialect (§4.1).
func RandomUint32() (uint32, error) {
	b, err := RandomBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}
