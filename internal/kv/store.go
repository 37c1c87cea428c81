package kv

import (
	"context"
	"fmt"
	"time"
)

// Store is the distributed key/value surface the auth engine relies on.
// Every method must be atomic at the store: two requests racing on the same
// key observe one consistent winner, never a lost update.
type Store interface {
	// IncrWithTTL increments the counter at key and returns the new value.
	// When the increment creates the key, the TTL is attached in the same
	// indivisible operation, so the window always starts at the first hit.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// SetWithTTL stores value at key with the given expiry.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value at key. A missing key is (_, false, nil), not an
	// error; errors mean the store itself could not answer.
	Get(ctx context.Context, key string) (string, bool, error)

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
}

// StoreError marks a store round-trip that could not complete. Callers must
// fail closed on it: an unanswerable lock or revocation check is a denial,
// never an allow.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("kv: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op, key string, err error) error {
	return &StoreError{Op: op, Key: key, Err: err}
}
