package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/koor-fr/security-component/internal/lock"
)

// LockPolicy controls how the per-login lock is taken.
type LockPolicy = lock.Policy

// DefaultLockPolicy returns the policy used when none is configured.
func DefaultLockPolicy() LockPolicy {
	return LockPolicy{
		TTL:        10 * time.Second,
		Retries:    50,
		RetryDelay: 20 * time.Millisecond,
	}
}

// loginLocker serializes operations touching the counters of one login.
type loginLocker struct {
	locker lock.Locker
	policy LockPolicy
	logger zerolog.Logger
}

// acquire takes the lock for login and returns the function releasing it.
func (l loginLocker) acquire(ctx context.Context, login string) (func(), error) {
	held, err := lock.Hold(ctx, l.locker, lock.LoginKey(login), l.policy)
	if err != nil {
		return nil, err
	}

	return func() {
		// Release even when the caller's context is already cancelled.
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn().Err(err).Str("lock", held.Key()).Msg("failed to release lock")
		}
	}, nil
}
