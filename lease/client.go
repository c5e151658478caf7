package lease

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	jujuerrors "github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("lease")

// Client is the configured entry point for acquiring leases against one
// DynamoDB table. A Client is safe for concurrent use by any number of
// goroutines, and may be shared freely (spec §5).
type Client struct {
	cfg   config
	store Store

	mu          sync.Mutex
	lastRelease map[string]time.Time
}

func newClient(cfg config, store Store) *Client {
	return &Client{
		cfg:         cfg,
		store:       store,
		lastRelease: make(map[string]time.Time),
	}
}

// TryAcquire makes one attempt to acquire the lease named key. It returns
// (nil, nil) if another holder currently owns it -- that is not an error,
// it's contention. A non-nil error is either a *TransientError (safe to
// retry) or a *FatalError.
func (c *Client) TryAcquire(ctx context.Context, key string) (*LeaseGuard, error) {
	version := c.cfg.clock.NewVersion()
	expiry := expiryAfter(c.cfg.clock, c.cfg.leaseTTL)

	err := c.store.PutIfAbsent(ctx, key, version, expiry)
	switch {
	case err == nil:
		return c.newGuard(key, version), nil
	case errors.Is(err, ErrConditionFailed):
		return nil, nil
	default:
		return nil, jujuerrors.Trace(err)
	}
}

// Acquire blocks until the lease named key is acquired or ctx is
// cancelled. It polls TryAcquire, sleeping a jittered AcquirePollPeriod
// between attempts, and swallows *TransientError from TryAcquire by
// logging and retrying rather than giving up (spec §7: "acquire handles
// internally by continuing its poll loop"). A *FatalError is returned
// immediately.
//
// If this Client most recently released key itself, the first attempt is
// delayed so a remote waiter isn't starved by the same process
// re-acquiring instantly (spec §4.3, "fairness fix").
func (c *Client) Acquire(ctx context.Context, key string) (*LeaseGuard, error) {
	if d := c.firstAttemptDelay(key); d > 0 {
		if err := c.sleep(ctx, d); err != nil {
			return nil, jujuerrors.Trace(err)
		}
	}

	for {
		guard, err := c.TryAcquire(ctx, key)
		switch {
		case err == nil && guard != nil:
			return guard, nil
		case err == nil:
			// Contended; fall through to the poll sleep below.
		case IsFatal(err):
			return nil, jujuerrors.Trace(err)
		default:
			// Transient: log and keep polling rather than surface it.
			logger.Warningf("lease %q: transient error acquiring, retrying: %v", key, err)
		}

		if err := c.sleep(ctx, jitter(c.cfg.acquirePollPeriod)); err != nil {
			return nil, jujuerrors.Trace(err)
		}
	}
}

// AcquireWithTimeout wraps Acquire, returning ErrTimedOut if the lease
// isn't acquired within timeout.
func (c *Client) AcquireWithTimeout(ctx context.Context, key string, timeout time.Duration) (*LeaseGuard, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	guard, err := c.Acquire(ctx, key)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, jujuerrors.Trace(ErrTimedOut)
		}
		return nil, jujuerrors.Trace(err)
	}
	return guard, nil
}

// firstAttemptDelay implements spec §4.3's fairness fix: if this Client
// recently released key itself, the first sleep before retrying is
// max(acquire_poll_period, acquire_poll_period - elapsed_since_release)
// rather than zero.
func (c *Client) firstAttemptDelay(key string) time.Duration {
	c.mu.Lock()
	releasedAt, ok := c.lastRelease[key]
	c.mu.Unlock()
	if !ok {
		return 0
	}

	poll := c.cfg.acquirePollPeriod
	elapsed := c.cfg.clock.Now().Sub(releasedAt)
	remaining := poll - elapsed
	if poll > remaining {
		return poll
	}
	return remaining
}

// recordRelease notes the instant key was last released locally, for
// firstAttemptDelay's benefit. Stale entries are pruned opportunistically
// so the map doesn't grow without bound across a long-lived Client.
func (c *Client) recordRelease(key string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRelease[key] = at
	if len(c.lastRelease) > 1000 {
		cutoff := at.Add(-10 * c.cfg.acquirePollPeriod)
		for k, t := range c.lastRelease {
			if t.Before(cutoff) {
				delete(c.lastRelease, k)
			}
		}
	}
}

// sleep waits for d on the configured Clock, returning ctx.Err() if ctx is
// cancelled first. Every inter-retry sleep in this package goes through
// here so it can be driven by a fake Clock in tests.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := c.cfg.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jitter perturbs d by up to ±20%, so that many waiters polling the same
// key don't do so in lock-step (spec §4.3).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	const spread = 0.2
	factor := 1 - spread + rand.Float64()*2*spread
	return time.Duration(float64(d) * factor)
}
