// Package lock serializes work on one login. A MemoryLocker covers a single
// server; the Redis locker in internal/cache/redis covers servers sharing a store.
package lock

import (
	"context"
	"time"
)

// Locker grants exclusive, expiring ownership of string keys.
type Locker interface {
	// Acquire takes key for ttl. It reports false when someone else has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release gives key back. It reports false when this locker did not hold it.
	Release(ctx context.Context, key string) (bool, error)
}

// Policy bounds the wait for a busy key and the lifetime of a granted one.
type Policy struct {
	// TTL bounds how long a crashed holder can block a login.
	TTL time.Duration

	// Retries is the number of extra attempts while the key is busy.
	Retries int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// LoginKey returns the key serializing credential checks and admin writes
// for one login.
func LoginKey(login string) string {
	return "lock:login:" + login
}

// Held is a key granted by Hold.
type Held struct {
	locker Locker
	key    string
	done   bool
}

// Hold acquires key on l, retrying while it is busy. ErrNotAcquired is
// returned when every attempt found the key taken.
func Hold(ctx context.Context, l Locker, key string, p Policy) (*Held, error) {
	for attempt := 0; ; attempt++ {
		ok, err := l.Acquire(ctx, key, p.TTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Held{locker: l, key: key}, nil
		}
		if attempt >= p.Retries {
			return nil, ErrNotAcquired
		}

		timer := time.NewTimer(p.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Key returns the held key.
func (h *Held) Key() string {
	return h.key
}

// Release gives the key back. Releasing twice is a no-op.
func (h *Held) Release(ctx context.Context) error {
	if h.done {
		return nil
	}
	h.done = true
	_, err := h.locker.Release(ctx, h.key)
	return err
}
