package lease

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/juju/errors"

	"github.com/TrueLayer/dynamodb-lease/internal/dynamodbstore"
)

// DynamoDBAPI is the subset of *dynamodb.Client the Builder needs: enough
// to build a Store and, for BuildAndCheckDB, to describe the table. It is
// the "transport SDK" collaborator the spec treats as out of scope (§1) --
// production callers pass a real *dynamodb.Client; tests pass a fake.
type DynamoDBAPI = dynamodbstore.API

// ddbStore adapts an *internal/dynamodbstore.Store -- which has no
// knowledge of this package, so that it can be built and tested in
// isolation -- to the Store interface and error vocabulary the protocol
// in this package drives.
type ddbStore struct {
	inner *dynamodbstore.Store
}

func (s ddbStore) PutIfAbsent(ctx context.Context, key, version string, expiry int64) error {
	return translateStoreErr(s.inner.PutIfAbsent(ctx, key, version, expiry))
}

func (s ddbStore) UpdateIfVersion(ctx context.Context, key, oldVersion, newVersion string, newExpiry int64) error {
	return translateStoreErr(s.inner.UpdateIfVersion(ctx, key, oldVersion, newVersion, newExpiry))
}

func (s ddbStore) DeleteIfVersion(ctx context.Context, key, version string) error {
	return translateStoreErr(s.inner.DeleteIfVersion(ctx, key, version))
}

func (s ddbStore) DescribeTable(ctx context.Context) (TableSchema, error) {
	schema, err := s.inner.DescribeTable(ctx)
	if err != nil {
		return TableSchema{}, translateStoreErr(err)
	}
	return TableSchema{
		KeyAttribute:         schema.KeyAttribute,
		KeyAttributeIsString: schema.KeyAttributeIsString,
		TTLAttribute:         schema.TTLAttribute,
		TTLEnabled:           schema.TTLEnabled,
	}, nil
}

var _ Store = ddbStore{}

// translateStoreErr maps internal/dynamodbstore's error vocabulary onto
// this package's: its ErrConditionFailed becomes ours, and its
// Transient/FatalError wrappers become ours, carrying the same cause.
func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, dynamodbstore.ErrConditionFailed) {
		return ErrConditionFailed
	}
	var transient *dynamodbstore.TransientError
	if stderrors.As(err, &transient) {
		return &TransientError{Cause: transient.Cause}
	}
	var fatal *dynamodbstore.FatalError
	if stderrors.As(err, &fatal) {
		return &FatalError{Cause: fatal.Cause}
	}
	return &FatalError{Cause: err}
}

const (
	// DefaultKeyAttribute is the hash key attribute name assumed when the
	// Builder isn't told otherwise.
	DefaultKeyAttribute = "key"
	// DefaultExpiryAttribute is the TTL attribute name assumed when the
	// Builder isn't told otherwise.
	DefaultExpiryAttribute = "lease_expiry"
	// DefaultVersionAttribute is the version attribute name assumed when
	// the Builder isn't told otherwise.
	DefaultVersionAttribute = "lease_version"
	// DefaultLeaseTTL is the lease lifetime assumed when the Builder isn't
	// told otherwise.
	DefaultLeaseTTL = 60 * time.Second
	// DefaultAcquirePollPeriod is the contention retry interval assumed
	// when the Builder isn't told otherwise.
	DefaultAcquirePollPeriod = 200 * time.Millisecond
)

// config is the frozen value backing a Client, matching spec §3's "Client
// configuration".
type config struct {
	tableName         string
	keyAttribute      string
	expiryAttribute   string
	versionAttribute  string
	leaseTTL          time.Duration
	extendPeriod      time.Duration
	acquirePollPeriod time.Duration
	clock             Clock
}

func (c config) validate() error {
	if c.tableName == "" {
		return errors.NotValidf("empty table name")
	}
	if c.leaseTTL <= 0 {
		return errors.NotValidf("non-positive lease TTL")
	}
	if c.extendPeriod <= 0 {
		return errors.NotValidf("non-positive extend period")
	}
	if c.extendPeriod >= c.leaseTTL {
		return errors.NotValidf("extend period %s not less than lease TTL %s", c.extendPeriod, c.leaseTTL)
	}
	if c.acquirePollPeriod <= 0 {
		return errors.NotValidf("non-positive acquire poll period")
	}
	return nil
}

// Builder assembles a Client with validated parameters, optionally
// checking the target table's schema and TTL settings against that
// configuration (spec §4.6).
type Builder struct {
	cfg config
}

// NewBuilder returns a Builder seeded with the package defaults.
func NewBuilder() *Builder {
	return &Builder{cfg: config{
		keyAttribute:      DefaultKeyAttribute,
		expiryAttribute:   DefaultExpiryAttribute,
		versionAttribute:  DefaultVersionAttribute,
		leaseTTL:          DefaultLeaseTTL,
		extendPeriod:      DefaultLeaseTTL / 3,
		acquirePollPeriod: DefaultAcquirePollPeriod,
	}}
}

// TableName sets the DynamoDB table the client will operate against.
func (b *Builder) TableName(name string) *Builder {
	b.cfg.tableName = name
	return b
}

// KeyAttribute overrides the hash key attribute name (default "key").
func (b *Builder) KeyAttribute(name string) *Builder {
	b.cfg.keyAttribute = name
	return b
}

// ExpiryAttribute overrides the TTL attribute name (default "lease_expiry").
func (b *Builder) ExpiryAttribute(name string) *Builder {
	b.cfg.expiryAttribute = name
	return b
}

// VersionAttribute overrides the version attribute name (default
// "lease_version").
func (b *Builder) VersionAttribute(name string) *Builder {
	b.cfg.versionAttribute = name
	return b
}

// LeaseTTL overrides the lease lifetime (default 60s). Must be greater
// than ExtendPeriod.
func (b *Builder) LeaseTTL(d time.Duration) *Builder {
	b.cfg.leaseTTL = d
	return b
}

// ExtendPeriod overrides the background extender's renewal interval
// (default 20s, a third of DefaultLeaseTTL). The default is not rescaled
// when LeaseTTL is changed: with the default extend period, a LeaseTTL of
// 20s or less fails validation. Must be less than LeaseTTL.
func (b *Builder) ExtendPeriod(d time.Duration) *Builder {
	b.cfg.extendPeriod = d
	return b
}

// AcquirePollPeriod overrides the interval between contention retries in
// Client.Acquire (default 200ms).
func (b *Builder) AcquirePollPeriod(d time.Duration) *Builder {
	b.cfg.acquirePollPeriod = d
	return b
}

// Clock overrides the identity/clock source. Production callers never
// need this; tests substitute a fake so extension and expiry scenarios
// don't require sleeping the test process.
func (b *Builder) Clock(c Clock) *Builder {
	b.cfg.clock = c
	return b
}

// Build assembles a Client without verifying the target table. Use this
// when the table has already been validated elsewhere (e.g. a prior
// BuildAndCheckDB call, or infrastructure-as-code that pins the schema).
func (b *Builder) Build(ddb DynamoDBAPI) (*Client, error) {
	cfg := b.cfg
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	store := ddbStore{inner: dynamodbstore.New(ddb, dynamodbstore.Config{
		TableName:        cfg.tableName,
		KeyAttribute:     cfg.keyAttribute,
		ExpiryAttribute:  cfg.expiryAttribute,
		VersionAttribute: cfg.versionAttribute,
	})}
	return newClient(cfg, store), nil
}

// BuildAndCheckDB assembles a Client and additionally calls DescribeTable,
// rejecting with an *ErrTableMisconfigured if the hash key isn't a single
// string attribute named as configured, or if TTL isn't enabled on the
// configured expiry attribute.
func (b *Builder) BuildAndCheckDB(ctx context.Context, ddb DynamoDBAPI) (*Client, error) {
	client, err := b.Build(ddb)
	if err != nil {
		return nil, errors.Trace(err)
	}
	schema, err := client.store.DescribeTable(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "describing lease table")
	}
	if schema.KeyAttribute != client.cfg.keyAttribute || !schema.KeyAttributeIsString {
		return nil, &ErrTableMisconfigured{Reason: fmt.Sprintf(
			"hash key must be a string attribute named %q, got %q (string=%v)",
			client.cfg.keyAttribute, schema.KeyAttribute, schema.KeyAttributeIsString,
		)}
	}
	if !schema.TTLEnabled || schema.TTLAttribute != client.cfg.expiryAttribute {
		return nil, &ErrTableMisconfigured{Reason: fmt.Sprintf(
			"TTL must be enabled on attribute %q, got enabled=%v attribute %q",
			client.cfg.expiryAttribute, schema.TTLEnabled, schema.TTLAttribute,
		)}
	}
	return client, nil
}
