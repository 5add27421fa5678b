package rate_limiter

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryCounter struct {
	count     int64
	expiresAt time.Time // zero means no expiry
}

// MemoryStorage keeps counters in process. It is only correct for a single
// instance and is meant for local runs and tests.
type MemoryStorage struct {
	mu  sync.Mutex
	db  map[string]*memoryCounter
	now func() time.Time
}

type MemoryStorageOption func(*MemoryStorage)

func WithClock(now func() time.Time) MemoryStorageOption {
	return func(m *MemoryStorage) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	m := &MemoryStorage{
		db:  make(map[string]*memoryCounter),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lookup must be called with mu held. Expired counters are dropped on read.
func (m *MemoryStorage) lookup(key string) (*memoryCounter, bool) {
	counter, ok := m.db[key]
	if !ok {
		return nil, false
	}

	if !counter.expiresAt.IsZero() && !m.now().Before(counter.expiresAt) {
		delete(m.db, key)
		return nil, false
	}

	return counter, true
}

func (m *MemoryStorage) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.lookup(key)
	if !ok {
		counter = &memoryCounter{}
		m.db[key] = counter
	}

	counter.count++
	return counter.count, nil
}

func (m *MemoryStorage) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.lookup(key)
	if !ok {
		return nil
	}

	if ttl <= 0 {
		delete(m.db, key)
		return nil
	}

	counter.expiresAt = m.now().Add(ttl)
	return nil
}

func (m *MemoryStorage) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.lookup(key)
	if !ok {
		return TTLKeyMissing, nil
	}

	if counter.expiresAt.IsZero() {
		return TTLNoExpiry, nil
	}

	return counter.expiresAt.Sub(m.now()), nil
}

func (m *MemoryStorage) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.lookup(key)
	if !ok {
		return 0, nil
	}
	return counter.count, nil
}

func (m *MemoryStorage) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.db, key)
	return nil
}

func (m *MemoryStorage) Ping(context.Context) error {
	return nil
}

// Cleanup removes every expired counter and returns how many were removed.
func (m *MemoryStorage) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.db {
		if _, ok := m.lookup(key); !ok {
			removed++
		}
	}
	return removed
}

// StartJanitor runs Cleanup every interval until ctx is cancelled.
func (m *MemoryStorage) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if removed := m.Cleanup(); removed > 0 {
					slog.Debug("expired counters removed", "count", removed)
				}
			}
		}
	}()
}

var (
	_ CounterStore = (*MemoryStorage)(nil)
	_ Inspector    = (*MemoryStorage)(nil)
	_ Pinger       = (*MemoryStorage)(nil)
)
