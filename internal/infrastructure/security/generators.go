// Package security provides identifier generation.
package security

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateULID generates a new ULID string.
func GenerateULID() string {
	return GenerateULIDAt(time.Now())
}

// GenerateULIDAt returns a ULID stamped with t. IDs generated within the same
// millisecond still sort in creation order.
func GenerateULIDAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
