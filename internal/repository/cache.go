package repository

import (
	"context"
	"strconv"
	"time"
)

// Cache holds serialized role rows between store reads. The role directory
// is the only writer; every implementation must tolerate being flushed.
type Cache interface {
	// Get returns the bytes stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete drops key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds an unexpired value.
	Exists(ctx context.Context, key string) (bool, error)
}

// CacheError is a sentinel error returned by Cache implementations.
type CacheError string

func (e CacheError) Error() string {
	return string(e)
}

const (
	// ErrCacheMiss is returned by Get when nothing is stored under the key.
	ErrCacheMiss CacheError = "cache miss"

	// ErrCacheUnavailable wraps transport failures of a remote cache.
	ErrCacheUnavailable CacheError = "cache unavailable"
)

// RoleCacheKey is the key under which the role row with id is cached.
func RoleCacheKey(id int64) string {
	return "role:" + strconv.FormatInt(id, 10)
}
