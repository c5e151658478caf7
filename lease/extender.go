package lease

import (
	"context"
	"errors"

	"github.com/juju/loggo/v2"
	"gopkg.in/tomb.v2"
)

var extenderLogger = loggo.GetLogger("lease.extender")

// extender is the background renewal task of spec §4.5: one per live
// LeaseGuard, renewing its version and expiry every ExtendPeriod until
// stopped, or until a renewal is lost to ErrConditionFailed or fails
// fatally. Its lifecycle is a tomb.Tomb, following the same
// goroutine-owns-a-tomb shape the teacher's lease manager uses for its
// own worker loop.
type extender struct {
	t tomb.Tomb
}

func startExtender(c *Client, g *LeaseGuard) *extender {
	e := &extender{}
	e.t.Go(func() error {
		return e.loop(c, g)
	})
	return e
}

// stop signals the extender to exit at its next wake, without waiting for
// it to actually do so (spec §4.4 point 1: "does not block on the
// extender exiting").
func (e *extender) stop() {
	e.t.Kill(nil)
}

// wait blocks until the extender has exited, returning its terminal
// error, if any. Production code never needs this -- Close is
// intentionally non-blocking -- but tests use it to observe the Stopped
// transition deterministically.
func (e *extender) wait() error {
	return e.t.Wait()
}

// loop is the Running state of spec §4.5: sleep ExtendPeriod
// (interruptible by the stop signal), then attempt one renewal.
func (e *extender) loop(c *Client, g *LeaseGuard) error {
	for {
		select {
		case <-e.t.Dying():
			return nil
		case <-c.cfg.clock.After(c.cfg.extendPeriod):
		}

		select {
		case <-e.t.Dying():
			// Stopping: don't perform a final extension once stop has
			// been requested, even if the sleep and the signal raced.
			return nil
		default:
		}

		if err := e.renew(c, g); err != nil {
			return err
		}
	}
}

// renew performs one UpdateIfVersion call and applies its outcome per
// spec §4.5's state table.
func (e *extender) renew(c *Client, g *LeaseGuard) error {
	oldVersion := g.Version()
	newVersion := c.cfg.clock.NewVersion()
	newExpiry := expiryAfter(c.cfg.clock, c.cfg.leaseTTL)

	err := c.store.UpdateIfVersion(context.Background(), g.key, oldVersion, newVersion, newExpiry)
	switch {
	case err == nil:
		g.setVersion(newVersion)
		return nil
	case errors.Is(err, ErrConditionFailed):
		extenderLogger.Infof("lease %q: lost (condition failed on extend)", g.key)
		g.setLost()
		return ErrLeaseLost
	case IsFatal(err):
		extenderLogger.Errorf("lease %q: fatal error extending: %v", g.key, err)
		g.setFailed(err)
		return err
	default:
		// Transient: don't change the version, try again next period.
		// The lease is still considered held locally until either a
		// later extension succeeds or lease_expiry passes in wall time.
		extenderLogger.Warningf("lease %q: transient error extending, will retry: %v", g.key, err)
		return nil
	}
}
