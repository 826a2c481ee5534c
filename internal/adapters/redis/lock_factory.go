package redis

import (
	"context"

	"github.com/amyangfei/redlock-go/v3/redlock"
)

// LockFactory creates distributed locks for rebuild passes
type LockFactory interface {
	CreateRebuildLock(symbol, timeframe string) RebuildLock
}

// RedisLockFactory creates Redis-based distributed locks
type RedisLockFactory struct {
	lockManager *redlock.RedLock
}

// NewRedisLockFactory creates new Redis lock factory
func NewRedisLockFactory(lockManager *redlock.RedLock) *RedisLockFactory {
	return &RedisLockFactory{
		lockManager: lockManager,
	}
}

// CreateRebuildLock creates a distributed lock for one (symbol, timeframe) pair
func (f *RedisLockFactory) CreateRebuildLock(symbol, timeframe string) RebuildLock {
	return NewDistributedLock(f.lockManager, symbol, timeframe)
}

// NoopLockFactory is used when Redis is disabled or in tests (always succeeds)
type NoopLockFactory struct{}

// NewNoopLockFactory creates lock factory whose locks always acquire
func NewNoopLockFactory() *NoopLockFactory {
	return &NoopLockFactory{}
}

// CreateRebuildLock creates a no-op lock
func (f *NoopLockFactory) CreateRebuildLock(symbol, timeframe string) RebuildLock {
	return &NoopLock{key: symbol + ":" + timeframe}
}

// NoopLock is a no-op lock
type NoopLock struct {
	key string
}

func (l *NoopLock) TryAcquire(ctx context.Context) (bool, error) {
	return true, nil
}

func (l *NoopLock) Release(ctx context.Context) error {
	return nil
}

func (l *NoopLock) Key() string {
	return l.key
}
