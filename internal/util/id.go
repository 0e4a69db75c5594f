package util

import (
	"crypto/rand"
	"encoding/hex"
)

const idEntropy = 16

// NewID returns a random identifier such as "sty_3f9c...". The prefix names
// the entity kind so IDs stay recognizable in logs and SQL sessions.
func NewID(prefix string) string {
	buf := make([]byte, idEntropy)
	_, _ = rand.Read(buf)
	suffix := hex.EncodeToString(buf)
	if prefix == "" {
		return suffix
	}
	return prefix + "_" + suffix
}
