package redis

import "context"

// RebuildLock defines interface for distributed rebuild locking.
// This allows swapping implementations (Redis, PostgreSQL, etcd, etc.)
type RebuildLock interface {
	// TryAcquire attempts to acquire exclusive lock for a rebuild pass
	// Returns true if lock was acquired, false if already locked
	TryAcquire(ctx context.Context) (bool, error)

	// Release releases the lock
	Release(ctx context.Context) error

	// Key returns the (symbol, timeframe) key this lock covers
	Key() string
}
