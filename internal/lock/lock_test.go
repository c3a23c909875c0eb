package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, sweepEvery time.Duration) *MemoryLocker {
	t.Helper()
	ml := newMemoryLocker(sweepEvery)
	t.Cleanup(func() { _ = ml.Close() })
	return ml
}

func TestLoginKey(t *testing.T) {
	assert.Equal(t, "lock:login:bond", LoginKey("bond"))
}

func TestMemoryLockerAcquireRelease(t *testing.T) {
	ml := newTestLocker(t, time.Minute)
	ctx := context.Background()

	ok, err := ml.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ml.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := ml.Release(ctx, "k")
	require.NoError(t, err)
	assert.True(t, released)

	released, err = ml.Release(ctx, "k")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestMemoryLockerExpiry(t *testing.T) {
	ml := newTestLocker(t, 5*time.Millisecond)
	ctx := context.Background()

	ok, err := ml.Acquire(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	ok, err = ml.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ml.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLockerSweepsExpiredKeys(t *testing.T) {
	ml := newTestLocker(t, 5*time.Millisecond)
	ctx := context.Background()

	ok, err := ml.Acquire(ctx, "k", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		ml.mu.Lock()
		defer ml.mu.Unlock()
		return len(ml.deadlines) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryLockerCancelledContext(t *testing.T) {
	ml := newTestLocker(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ml.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHoldRetries(t *testing.T) {
	ml := newTestLocker(t, time.Minute)
	ctx := context.Background()

	ok, err := ml.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = Hold(ctx, ml, "k", Policy{TTL: time.Minute, Retries: 2, RetryDelay: time.Millisecond})
	assert.ErrorIs(t, err, ErrNotAcquired)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = ml.Release(ctx, "k")
	}()

	h, err := Hold(ctx, ml, "k", Policy{TTL: time.Minute, Retries: 100, RetryDelay: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "k", h.Key())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Hold(cancelled, ml, "k", Policy{TTL: time.Minute, Retries: 3, RetryDelay: time.Millisecond})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHeldReleaseIsIdempotent(t *testing.T) {
	ml := newTestLocker(t, time.Minute)
	ctx := context.Background()

	h, err := Hold(ctx, ml, LoginKey("bond"), Policy{TTL: time.Minute})
	require.NoError(t, err)
	require.NoError(t, h.Release(ctx))

	other, err := Hold(ctx, ml, LoginKey("bond"), Policy{TTL: time.Minute})
	require.NoError(t, err)

	require.NoError(t, h.Release(ctx))
	ok, err := ml.Acquire(ctx, LoginKey("bond"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a second release must not free the next holder's key")
	require.NoError(t, other.Release(ctx))
}

func TestHoldSerializesCriticalSection(t *testing.T) {
	ml := newTestLocker(t, time.Minute)
	ctx := context.Background()
	policy := Policy{TTL: time.Minute, Retries: 1000, RetryDelay: time.Millisecond}

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := Hold(ctx, ml, LoginKey("bond"), policy)
			if err != nil {
				return
			}
			defer h.Release(ctx)

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}
