package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/selivandex/regime-engine/pkg/logger"
)

// DistributedLock wraps redlock-go so only one instance rebuilds a given
// (symbol, timeframe) pair at a time when several workers share the store
type DistributedLock struct {
	lockManager *redlock.RedLock
	key         string
	lockName    string
	ttl         time.Duration
	locked      bool
}

// NewDistributedLock creates new distributed rebuild lock
func NewDistributedLock(lockManager *redlock.RedLock, symbol, timeframe string) *DistributedLock {
	key := fmt.Sprintf("%s:%s", symbol, timeframe)
	return &DistributedLock{
		lockManager: lockManager,
		key:         key,
		lockName:    fmt.Sprintf("regime:rebuild:%s", key),
		ttl:         5 * time.Minute, // a full rebuild pass should finish well inside this
		locked:      false,
	}
}

// TryAcquire attempts to acquire the exclusive rebuild lock using Redlock.
// Returns true if acquired, false if another instance holds it.
func (dl *DistributedLock) TryAcquire(ctx context.Context) (bool, error) {
	expiry, err := dl.lockManager.Lock(ctx, dl.lockName, dl.ttl)
	if err != nil {
		logger.Debug("rebuild lock already held by another instance",
			zap.String("key", dl.key),
			zap.String("lock_name", dl.lockName),
		)
		return false, nil
	}

	if expiry <= 0 {
		return false, fmt.Errorf("failed to acquire lock: invalid expiry %v", expiry)
	}

	dl.locked = true

	logger.Debug("rebuild lock acquired",
		zap.String("key", dl.key),
		zap.Duration("ttl", dl.ttl),
	)

	return true, nil
}

// Release releases the rebuild lock
func (dl *DistributedLock) Release(ctx context.Context) error {
	if !dl.locked {
		return nil
	}

	if err := dl.lockManager.UnLock(ctx, dl.lockName); err != nil {
		// Lock may have already expired naturally
		logger.Warn("failed to release rebuild lock (may have expired)",
			zap.String("key", dl.key),
			zap.Error(err),
		)
	}

	dl.locked = false
	return nil
}

// Key returns the (symbol, timeframe) key this lock covers
func (dl *DistributedLock) Key() string {
	return dl.key
}
