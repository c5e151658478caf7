package lease

import (
	"time"

	"github.com/google/uuid"
	jujuclock "github.com/juju/clock"
)

// Clock is the identity/clock source component (spec §4.2): it produces
// unique version tokens and the current wall-clock time. Implementations
// must be safe for concurrent use; Client, LeaseGuard, and the background
// extender all call into the same Clock.
//
// The default Clock (see NewClock) wraps a real time source and
// google/uuid; tests substitute a fake so that extension and expiry
// scenarios (spec §8, S3/S5) don't need to sleep the test process.
type Clock interface {
	jujuclock.Clock

	// NewVersion returns an opaque token with collision probability
	// negligible over the system's lifetime.
	NewVersion() string
}

// NewClock returns the default Clock: a real wall clock paired with
// random v4 UUIDs for version tokens.
func NewClock() Clock {
	return realClock{Clock: jujuclock.WallClock}
}

type realClock struct {
	jujuclock.Clock
}

func (realClock) NewVersion() string {
	return uuid.NewString()
}

// expiryAfter returns the epoch-seconds expiry for a lease acquired or
// extended now, given a TTL.
func expiryAfter(c Clock, ttl time.Duration) int64 {
	return c.Now().Add(ttl).Unix()
}
