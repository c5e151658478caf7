// Package leasetest provides an in-memory lease.Store for use in tests
// that exercise the lease package's protocol without a real DynamoDB
// table, in the same spirit as the teacher's own in-package test doubles
// for its remote collaborators.
package leasetest

import (
	"context"
	"sync"

	"github.com/TrueLayer/dynamodb-lease/lease"
)

type record struct {
	version string
	expiry  int64
}

// Store is a goroutine-safe, in-memory lease.Store. The zero value is not
// usable; construct one with New. TTL expiry is not simulated
// automatically -- call Expire to evict a record as if its TTL had
// elapsed, so tests control timing explicitly rather than racing a real
// clock.
type Store struct {
	mu      sync.Mutex
	records map[string]record
	schema  lease.TableSchema

	// Fail, if set, is consulted before every call; returning a non-nil
	// error short-circuits the operation with that error instead of
	// touching records. Tests use this to inject *lease.TransientError
	// and *lease.FatalError scenarios.
	Fail func(op, key string) error
}

// New returns an empty Store reporting the given schema from
// DescribeTable.
func New(schema lease.TableSchema) *Store {
	return &Store{
		records: make(map[string]record),
		schema:  schema,
	}
}

var _ lease.Store = (*Store)(nil)

// Expire removes key's record unconditionally, simulating its TTL having
// elapsed.
func (s *Store) Expire(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

// Version returns the currently stored version for key, and whether a
// record exists at all.
func (s *Store) Version(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	return r.version, ok
}

func (s *Store) fail(op, key string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op, key)
}

// PutIfAbsent implements lease.Store.
func (s *Store) PutIfAbsent(_ context.Context, key, version string, expiry int64) error {
	if err := s.fail("PutIfAbsent", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[key]; exists {
		return lease.ErrConditionFailed
	}
	s.records[key] = record{version: version, expiry: expiry}
	return nil
}

// UpdateIfVersion implements lease.Store.
func (s *Store) UpdateIfVersion(_ context.Context, key, oldVersion, newVersion string, newExpiry int64) error {
	if err := s.fail("UpdateIfVersion", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, exists := s.records[key]
	if !exists || r.version != oldVersion {
		return lease.ErrConditionFailed
	}
	s.records[key] = record{version: newVersion, expiry: newExpiry}
	return nil
}

// DeleteIfVersion implements lease.Store.
func (s *Store) DeleteIfVersion(_ context.Context, key, version string) error {
	if err := s.fail("DeleteIfVersion", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, exists := s.records[key]
	if !exists || r.version != version {
		return lease.ErrConditionFailed
	}
	delete(s.records, key)
	return nil
}

// DescribeTable implements lease.Store.
func (s *Store) DescribeTable(_ context.Context) (lease.TableSchema, error) {
	if err := s.fail("DescribeTable", ""); err != nil {
		return lease.TableSchema{}, err
	}
	return s.schema, nil
}
