package lease_test

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/TrueLayer/dynamodb-lease/lease"
)

// seqClock pairs a testclock.Clock with a predictable version generator,
// so tests can assert on exact version strings instead of merely "it
// changed".
type seqClock struct {
	*testclock.Clock
	n int64
}

func newSeqClock(now time.Time) *seqClock {
	return &seqClock{Clock: testclock.NewClock(now)}
}

func (c *seqClock) NewVersion() string {
	return fmt.Sprintf("v%d", atomic.AddInt64(&c.n, 1))
}

var _ lease.Clock = (*seqClock)(nil)
