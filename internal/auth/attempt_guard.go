package auth

import (
	"context"
	"time"

	"trustgate/internal/kv"
)

const (
	failureKeyPrefix = "login:failure:"
	lockKeyPrefix    = "login:lock:"

	lockedValue = "LOCKED"

	defaultMaxLoginFailures = 5
	defaultFailureTTL       = 10 * time.Minute
	defaultLockTTL          = 10 * time.Minute
)

// AttemptGuard tracks failed logins per identity in the shared store and
// flips the identity into a self-expiring locked state once the failure
// threshold is reached.
type AttemptGuard struct {
	store      kv.Store
	failureTTL time.Duration
	lockTTL    time.Duration
}

func NewAttemptGuard(store kv.Store, failureTTL, lockTTL time.Duration) *AttemptGuard {
	if failureTTL <= 0 {
		failureTTL = defaultFailureTTL
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &AttemptGuard{store: store, failureTTL: failureTTL, lockTTL: lockTTL}
}

// IsLocked reports whether the identity is currently locked out. A store
// error propagates so the caller denies the attempt instead of assuming
// "not locked".
func (g *AttemptGuard) IsLocked(ctx context.Context, identity string) (bool, error) {
	_, found, err := g.store.Get(ctx, lockKeyPrefix+identity)
	if err != nil {
		return false, err
	}
	return found, nil
}

// RecordFailure bumps the identity's failure counter in one store round-trip
// and returns the new count. The counter's TTL window starts at the first
// failure and is not extended by later ones.
func (g *AttemptGuard) RecordFailure(ctx context.Context, identity string) (int64, error) {
	return g.store.IncrWithTTL(ctx, failureKeyPrefix+identity, g.failureTTL)
}

// Lock marks the identity locked for the configured window. The lock clears
// itself at TTL expiry; there is no explicit unlock.
func (g *AttemptGuard) Lock(ctx context.Context, identity string) error {
	return g.store.SetWithTTL(ctx, lockKeyPrefix+identity, lockedValue, g.lockTTL)
}

// Clear drops the failure counter after a successful authentication. An
// existing lock is left untouched and runs its full TTL.
func (g *AttemptGuard) Clear(ctx context.Context, identity string) error {
	return g.store.Delete(ctx, failureKeyPrefix+identity)
}
