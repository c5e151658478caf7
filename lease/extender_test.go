package lease_test

import (
	"context"
	"time"

	gc "gopkg.in/check.v1"

	"github.com/TrueLayer/dynamodb-lease/lease"
	"github.com/TrueLayer/dynamodb-lease/lease/leasetest"
)

type ExtenderSuite struct{}

var _ = gc.Suite(&ExtenderSuite{})

func (s *ExtenderSuite) newClient(c *gc.C, store *leasetest.Store, clk lease.Clock) *lease.Client {
	b := lease.NewBuilder().
		TableName("leases").
		LeaseTTL(300 * time.Millisecond).
		ExtendPeriod(100 * time.Millisecond).
		Clock(clk)
	client, err := lease.NewClientWithStore(b, store)
	c.Assert(err, gc.IsNil)
	return client
}

func (s *ExtenderSuite) TestRenewalAdvancesVersion(c *gc.C) {
	clk := newSeqClock(time.Now())
	store := leasetest.New(lease.TableSchema{})
	client := s.newClient(c, store, clk)

	guard, err := client.TryAcquire(context.Background(), "widget")
	c.Assert(err, gc.IsNil)
	defer guard.Close()

	firstVersion := guard.Version()

	c.Assert(clk.WaitAdvance(100*time.Millisecond, time.Second, 1), gc.IsNil)

	// Poll for the version to change rather than asserting immediately:
	// the renewal's store call happens on a goroutine this test doesn't
	// otherwise synchronize with.
	for i := 0; i < 200; i++ {
		if guard.Version() != firstVersion {
			break
		}
		time.Sleep(time.Millisecond)
	}
	c.Check(guard.Version(), gc.Not(gc.Equals), firstVersion)

	stored, ok := store.Version("widget")
	c.Assert(ok, gc.Equals, true)
	c.Check(stored, gc.Equals, guard.Version())
	c.Check(guard.Status().State, gc.Equals, lease.GuardHeld)
}

func (s *ExtenderSuite) TestStopPreventsFurtherRenewal(c *gc.C) {
	clk := newSeqClock(time.Now())
	store := leasetest.New(lease.TableSchema{})
	client := s.newClient(c, store, clk)

	guard, err := client.TryAcquire(context.Background(), "widget")
	c.Assert(err, gc.IsNil)

	c.Assert(guard.Close(), gc.IsNil)
	c.Assert(lease.ExtenderDone(guard), gc.IsNil)

	versionAtClose := guard.Version()

	// Advancing the clock after Close should not trigger a renewal: the
	// extender has already exited.
	clk.Advance(100 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	c.Check(guard.Version(), gc.Equals, versionAtClose)
}
