// Package lock provides an abstraction layer for locking mechanisms used
// to guard the Vault's mounted state during concurrent mount/query/unmount
// calls. The Vault uses the local, sync.RWMutex-backed implementation in
// pkg/lock/local; the interface is kept key-based so a future distributed
// backend could slot in without touching callers.
package lock

import (
	"context"
	"time"
)

// Locker provides exclusive locking semantics.
type Locker interface {
	// Lock acquires an exclusive lock for the given key. The ttl
	// parameter is ignored by the local implementation and exists for
	// interface symmetry with possible distributed backends. The context
	// can be used to cancel acquisition attempts.
	Lock(ctx context.Context, key string, ttl time.Duration) error

	// Unlock releases an exclusive lock for the given key. It is safe to
	// call Unlock even if Lock failed, but it may return an error.
	Unlock(ctx context.Context, key string) error

	// TryLock attempts to acquire an exclusive lock without blocking.
	//
	// Returns:
	//   - (true, nil) if the lock was acquired
	//   - (false, nil) if the lock is held by someone else
	//   - (false, error) if an error occurred
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RWLocker provides read-write locking semantics.
//
// Multiple readers can hold the lock simultaneously, but writers have
// exclusive access. The Vault acquires a write lock around mount/unmount
// (the sole writers of its guarded state) and a read lock around every
// query/read operation.
type RWLocker interface {
	Locker

	// RLock acquires a shared read lock for the given key.
	RLock(ctx context.Context, key string, ttl time.Duration) error

	// RUnlock releases a shared read lock for the given key.
	RUnlock(ctx context.Context, key string) error
}
