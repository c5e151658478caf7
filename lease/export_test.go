package lease

// NewClientWithStore builds a Client from b's configuration against an
// arbitrary Store, bypassing the DynamoDB-backed adapter Build and
// BuildAndCheckDB always construct. Exported for external tests (notably
// lease_test, using lease/leasetest) that need to drive the protocol
// against a fake store.
func NewClientWithStore(b *Builder, store Store) (*Client, error) {
	cfg := b.cfg
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newClient(cfg, store), nil
}

// ExtenderDone blocks until g's background extender has exited, for tests
// that need to observe a Lost/Failed transition deterministically instead
// of polling Status.
func ExtenderDone(g *LeaseGuard) error {
	return g.extender.wait()
}
