// Package lease implements distributed, time-bounded mutual exclusion over
// a remote key-value store that supports conditional writes and
// server-side TTL expiry.
//
// A Client acquires a named lease exclusively, extends it in the
// background for as long as the returned LeaseGuard is live, and releases
// it when the guard is closed. Other callers contending for the same key
// block in Acquire until release or TTL expiry.
//
// The store itself -- concretely DynamoDB, via the internal dynamodbstore
// adapter -- is reached only through the narrow Store interface, so the
// protocol in this package never depends on the AWS SDK directly.
package lease
