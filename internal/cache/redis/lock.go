package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/koor-fr/security-component/internal/lock"
)

// releaseScript compares the stored token before deleting the key, so a holder
// whose lock expired cannot release the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements lock.Locker with SET NX PX and per-key ownership tokens.
type Locker struct {
	client redis.UniversalClient

	mu     sync.Mutex
	tokens map[string]string
}

// NewLocker creates a Redis locker.
func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{
		client: client,
		tokens: make(map[string]string),
	}
}

// Acquire attempts to acquire a lock.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

// Release releases a lock held by this locker.
func (l *Locker) Release(ctx context.Context, key string) (bool, error) {
	token, ok := l.takeToken(key)
	if !ok {
		return false, nil
	}

	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if n == 0 {
		return false, lock.ErrNotOwned
	}
	return true, nil
}

func (l *Locker) takeToken(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token, ok := l.tokens[key]
	if ok {
		delete(l.tokens, key)
	}
	return token, ok
}

// Ensure Locker implements lock.Locker.
var _ lock.Locker = (*Locker)(nil)
