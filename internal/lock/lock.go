package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker runs functions under a Redis-backed distributed mutex.
type Locker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewLocker builds a Locker on client. expiry bounds how long a crashed
// holder can block other replicas.
func NewLocker(client redis.UniversalClient, expiry time.Duration) *Locker {
	if expiry <= 0 {
		expiry = time.Minute
	}
	return &Locker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
	}
}

// TryWithLock runs fn if key can be acquired on the first attempt. It
// reports false without running fn when another holder owns the key.
func (l *Locker) TryWithLock(ctx context.Context, key string, fn func(context.Context) error) (bool, error) {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) || strings.Contains(err.Error(), "lock already taken") {
			return false, nil
		}
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	defer func() {
		// ctx may already be cancelled when fn returns.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			zap.L().Warn("release distributed lock", zap.String("key", key), zap.Bool("released", ok), zap.Error(err))
		}
	}()

	return true, fn(ctx)
}
