package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// GenerateKey hashes parts into a fixed-length key. Parts are length-prefixed
// so ("ab", "c") and ("a", "bc") never collide. Callers scope client keys with
// the method and path so two endpoints never share a record.
func GenerateKey(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}

	return hex.EncodeToString(h.Sum(nil))
}
