// Package ids mints the identifiers for assignments, reports and attendance
// records. ULIDs sort lexicographically by creation time, which the stores
// rely on for stable listing without a separate sequence column.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New mints the next identifier. Safe for concurrent use; ids minted within
// the same millisecond stay strictly increasing.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}
