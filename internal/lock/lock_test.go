package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, 10*time.Second)
}

func TestTryWithLock_RunsWhenFree(t *testing.T) {
	l := newTestLocker(t)
	ran := false

	acquired, err := l.TryWithLock(context.Background(), "lock:rebalance", func(context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, ran)
}

func TestTryWithLock_SkipsWhenHeld(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	acquired, err := l.TryWithLock(ctx, "lock:rebalance", func(ctx context.Context) error {
		innerRan := false
		inner, innerErr := l.TryWithLock(ctx, "lock:rebalance", func(context.Context) error {
			innerRan = true
			return nil
		})
		require.NoError(t, innerErr)
		assert.False(t, inner)
		assert.False(t, innerRan)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, acquired)

	again, err := l.TryWithLock(ctx, "lock:rebalance", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, again, "lock should be released after the first holder returns")
}
