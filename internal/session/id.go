package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateID derives a session ID from the client timestamp, user agent and a
// random salt. 128 bits of the digest are kept; collisions are negligible.
func GenerateID(timestamp int64, userAgent string) string {
	var salt [16]byte
	_, _ = rand.Read(salt[:])
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%x", timestamp, userAgent, salt)
	return hex.EncodeToString(h.Sum(nil))[:32]
}
