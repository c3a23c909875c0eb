package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker keeps lock deadlines in a map. Locks live in this process
// only and are lost on restart.
type MemoryLocker struct {
	mu        sync.Mutex
	deadlines map[string]time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryLocker creates a locker that sweeps expired keys every 30 seconds.
// Close stops the sweeper.
func NewMemoryLocker() *MemoryLocker {
	return newMemoryLocker(30 * time.Second)
}

func newMemoryLocker(sweepEvery time.Duration) *MemoryLocker {
	m := &MemoryLocker{
		deadlines: make(map[string]time.Time),
		done:      make(chan struct{}),
	}
	go m.sweeper(sweepEvery)
	return m
}

func (m *MemoryLocker) sweeper(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for key, deadline := range m.deadlines {
				if !now.Before(deadline) {
					delete(m.deadlines, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Close stops the sweeper. Keys already granted stay valid until they expire.
func (m *MemoryLocker) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

// live reports whether key has an unexpired deadline, dropping it otherwise.
// The caller holds m.mu.
func (m *MemoryLocker) live(key string, now time.Time) bool {
	deadline, ok := m.deadlines[key]
	if !ok {
		return false
	}
	if !now.Before(deadline) {
		delete(m.deadlines, key)
		return false
	}
	return true
}

// Acquire takes key for ttl unless it is already held.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if m.live(key, now) {
		return false, nil
	}
	m.deadlines[key] = now.Add(ttl)
	return true, nil
}

// Release drops key.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.deadlines[key]
	delete(m.deadlines, key)
	return ok, nil
}

var _ Locker = (*MemoryLocker)(nil)
