package lease

import "context"

// TableSchema describes the remote table's key and TTL attributes as
// reported by Store.DescribeTable. Builder.BuildAndCheckDB
// compares it against the configured attribute names.
type TableSchema struct {
	// KeyAttribute is the name of the table's hash key attribute.
	KeyAttribute string
	// KeyAttributeIsString is false if the hash key exists but isn't a
	// string attribute.
	KeyAttributeIsString bool
	// TTLAttribute is the attribute name the table's TTL description
	// reports, or "" if it reports none; it is filled in whether or not
	// TTL is enabled.
	TTLAttribute string
	// TTLEnabled is true iff the TTL feature is switched on for the table.
	TTLEnabled bool
}

// Store is the narrow interface the protocol in this package drives. It
// wraps the remote table's three conditional writes plus DescribeTable;
// callers get a
// concrete implementation from the internal/dynamodbstore adapter via
// Builder, never by implementing this interface directly in production
// code.
//
// Every method returns nil for OK. A failed conditional check is reported
// as ErrConditionFailed (use errors.Is). Anything else is either a
// *TransientError (network error, throttling, 5xx -- safe to retry) or a
// *FatalError (auth, missing table, schema mismatch -- not safe to retry).
type Store interface {
	// PutIfAbsent writes a new lease record, failing with
	// ErrConditionFailed if one already exists for key.
	PutIfAbsent(ctx context.Context, key, version string, expiry int64) error

	// UpdateIfVersion overwrites the version and expiry of an existing
	// record, failing with ErrConditionFailed if the stored version isn't
	// oldVersion or the record is absent.
	UpdateIfVersion(ctx context.Context, key, oldVersion, newVersion string, newExpiry int64) error

	// DeleteIfVersion removes a record, failing with ErrConditionFailed if
	// the stored version isn't version or the record is absent.
	DeleteIfVersion(ctx context.Context, key, version string) error

	// DescribeTable returns the remote table's schema, for use by
	// Builder.BuildAndCheckDB.
	DescribeTable(ctx context.Context) (TableSchema, error)
}
