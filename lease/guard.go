package lease

import (
	"context"
	"sync"
	"time"

	"github.com/juju/loggo/v2"
)

var guardLogger = loggo.GetLogger("lease.guard")

// GuardState is the observable lifecycle state of a LeaseGuard, the
// concrete shape of the "guard's status slot" the spec references without
// naming (§4.4, §4.5, §7).
type GuardState int

const (
	// GuardHeld means the lease is (as far as this process knows) still
	// held and being extended.
	GuardHeld GuardState = iota
	// GuardLost means the background extender observed
	// ErrConditionFailed: the TTL expired, or another holder took over.
	GuardLost
	// GuardFailed means the background extender hit a *FatalError and
	// stopped; the lease may or may not still be held remotely, but this
	// process can no longer extend it.
	GuardFailed
	// GuardClosed means the caller closed the guard.
	GuardClosed
)

// GuardStatus is a point-in-time snapshot of a LeaseGuard's state.
type GuardStatus struct {
	State GuardState
	Err   error
}

// LeaseGuard is returned by a successful acquisition (spec §4.4). It owns
// exactly one running background extender and releases the lease when
// Close is called. There is no other way to release it -- Close is this
// module's realization of the spec's "discard" -- so callers should
// always `defer guard.Close()` immediately after a successful Acquire or
// TryAcquire.
type LeaseGuard struct {
	client    *Client
	key       string
	createdAt time.Time

	mu      sync.Mutex
	version string
	status  GuardStatus

	extender  *extender
	closeOnce sync.Once
}

func (c *Client) newGuard(key, version string) *LeaseGuard {
	g := &LeaseGuard{
		client:    c,
		key:       key,
		createdAt: c.cfg.clock.Now(),
		version:   version,
		status:    GuardStatus{State: GuardHeld},
	}
	g.extender = startExtender(c, g)
	return g
}

// Key returns the lease name this guard holds.
func (g *LeaseGuard) Key() string { return g.key }

// CreatedAt returns the instant this guard was created, i.e. the instant
// the acquiring PutIfAbsent succeeded.
func (g *LeaseGuard) CreatedAt() time.Time { return g.createdAt }

// Version returns the most recently successfully written lease_version,
// for tests and introspection (spec §3).
func (g *LeaseGuard) Version() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.version
}

// Status returns a snapshot of the guard's lifecycle state.
func (g *LeaseGuard) Status() GuardStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// setVersion is called only by the extender, after a successful renewal.
func (g *LeaseGuard) setVersion(v string) {
	g.mu.Lock()
	g.version = v
	g.mu.Unlock()
}

// setLost is called only by the extender, after observing
// ErrConditionFailed during a renewal.
func (g *LeaseGuard) setLost() {
	g.mu.Lock()
	if g.status.State == GuardHeld {
		g.status = GuardStatus{State: GuardLost, Err: ErrLeaseLost}
	}
	g.mu.Unlock()
}

// setFailed is called only by the extender, after a *FatalError.
func (g *LeaseGuard) setFailed(err error) {
	g.mu.Lock()
	if g.status.State == GuardHeld {
		g.status = GuardStatus{State: GuardFailed, Err: err}
	}
	g.mu.Unlock()
}

// Close releases the lease. It signals the background extender to stop
// and dispatches a best-effort delete using the most recently
// successfully written version, then returns immediately -- it does not
// block on the extender exiting or the delete completing (spec §4.4,
// §4.5 "ordering guarantee"). Close is idempotent and safe to call more
// than once or concurrently.
//
// Any outcome of the delete is swallowed except for a log line: a
// condition failure means the lease was already lost to TTL or another
// holder, and anything else means the record may linger until TTL. Either
// way other acquirers are not deadlocked -- they succeed no later than
// the configured lease TTL (spec §4.4 point 3).
func (g *LeaseGuard) Close() error {
	g.closeOnce.Do(func() {
		g.extender.stop()

		g.mu.Lock()
		version := g.version
		if g.status.State == GuardHeld {
			g.status = GuardStatus{State: GuardClosed}
		}
		g.mu.Unlock()

		g.client.recordRelease(g.key, g.client.cfg.clock.Now())

		go g.releaseAsync(version)
	})
	return nil
}

// releaseAsync performs the best-effort delete dispatched by Close. It
// runs detached from the caller, bounded by its own timeout so it can't
// hang the process indefinitely.
func (g *LeaseGuard) releaseAsync(version string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := g.client.store.DeleteIfVersion(ctx, g.key, version)
	switch {
	case err == nil:
		guardLogger.Debugf("lease %q: released", g.key)
	case IsFatal(err) || IsTransient(err):
		guardLogger.Warningf("lease %q: release failed, will linger until TTL: %v", g.key, err)
	default:
		// ErrConditionFailed: already lost to TTL or another holder.
		guardLogger.Infof("lease %q: release found no matching record (already lost): %v", g.key, err)
	}
}
