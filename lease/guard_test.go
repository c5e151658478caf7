package lease_test

import (
	"context"
	"errors"
	"time"

	gc "gopkg.in/check.v1"

	"github.com/TrueLayer/dynamodb-lease/lease"
	"github.com/TrueLayer/dynamodb-lease/lease/leasetest"
)

type GuardSuite struct{}

var _ = gc.Suite(&GuardSuite{})

func (s *GuardSuite) newClient(c *gc.C, store *leasetest.Store, clk lease.Clock) *lease.Client {
	b := lease.NewBuilder().
		TableName("leases").
		LeaseTTL(300 * time.Millisecond).
		ExtendPeriod(100 * time.Millisecond).
		Clock(clk)
	client, err := lease.NewClientWithStore(b, store)
	c.Assert(err, gc.IsNil)
	return client
}

func (s *GuardSuite) TestCloseIsIdempotent(c *gc.C) {
	store := leasetest.New(lease.TableSchema{})
	client := s.newClient(c, store, lease.NewClock())

	guard, err := client.TryAcquire(context.Background(), "widget")
	c.Assert(err, gc.IsNil)

	c.Assert(guard.Close(), gc.IsNil)
	c.Assert(guard.Close(), gc.IsNil)
	c.Check(guard.Status().State, gc.Equals, lease.GuardClosed)
}

func (s *GuardSuite) TestCloseReleasesTheRecord(c *gc.C) {
	store := leasetest.New(lease.TableSchema{})
	client := s.newClient(c, store, lease.NewClock())

	guard, err := client.TryAcquire(context.Background(), "widget")
	c.Assert(err, gc.IsNil)
	c.Assert(guard.Close(), gc.IsNil)

	// Close's delete is dispatched asynchronously; give it a moment.
	for i := 0; i < 100; i++ {
		if _, ok := store.Version("widget"); !ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	c.Fatal("record was never released")
}

func (s *GuardSuite) TestStatusTransitionsToLostOnExpiry(c *gc.C) {
	clk := newSeqClock(time.Now())
	store := leasetest.New(lease.TableSchema{})
	client := s.newClient(c, store, clk)

	guard, err := client.TryAcquire(context.Background(), "widget")
	c.Assert(err, gc.IsNil)
	defer guard.Close()

	// Simulate another holder stealing the record between two extends.
	store.Expire("widget")
	c.Assert(store.PutIfAbsent(context.Background(), "widget", "intruder", 0), gc.IsNil)

	c.Assert(clk.WaitAdvance(100*time.Millisecond, time.Second, 1), gc.IsNil)
	c.Assert(lease.ExtenderDone(guard), gc.Equals, lease.ErrLeaseLost)

	status := guard.Status()
	c.Check(status.State, gc.Equals, lease.GuardLost)
	c.Check(status.Err, gc.Equals, lease.ErrLeaseLost)
}

func (s *GuardSuite) TestStatusTransitionsToFailedOnFatalExtendError(c *gc.C) {
	clk := newSeqClock(time.Now())
	store := leasetest.New(lease.TableSchema{})
	client := s.newClient(c, store, clk)

	guard, err := client.TryAcquire(context.Background(), "widget")
	c.Assert(err, gc.IsNil)
	defer guard.Close()

	store.Fail = func(op, key string) error {
		if op == "UpdateIfVersion" {
			return &lease.FatalError{Cause: errors.New("table deleted")}
		}
		return nil
	}

	c.Assert(clk.WaitAdvance(100*time.Millisecond, time.Second, 1), gc.IsNil)
	c.Assert(lease.ExtenderDone(guard), gc.NotNil)
	c.Check(guard.Status().State, gc.Equals, lease.GuardFailed)
}
