// Package daily derives the shared daily cube and records completed runs.
package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Seed returns a deterministic, non-zero RNG seed for a date using
// HMAC(salt, YYYY-MM-DD). Everyone playing the same day gets the same cube.
func Seed(date time.Time, salt string) int64 {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date)))
	sum := h.Sum(nil)
	// first 8 bytes, top bit cleared so the seed stays positive
	n := int64(binary.BigEndian.Uint64(sum[:8]) &^ (1 << 63))
	if n == 0 {
		n = 1
	}
	return n
}

func msDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
