package rate_limiter

import (
	"context"
	"time"

	"github/martinmaurice/quota/pkg/enum"
)

// TTL sentinels follow the Redis TTL reply convention.
const (
	TTLKeyMissing = time.Duration(-2)
	TTLNoExpiry   = time.Duration(-1)
)

// CounterStore is the external store holding one integer counter per key.
// Incr must be atomic and linearizable across every caller of the same key.
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// WindowIncrementer is implemented by stores able to increment a counter and
// set its expiry on the first increment in a single round-trip.
type WindowIncrementer interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Inspector reads and clears counters without counting an attempt.
type Inspector interface {
	Get(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, key string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Observer interface {
	ObserveDecision(action enum.Action, allowed bool)
	ObserveStoreError(op string)
	ObserveRetryAfterFallback(action enum.Action)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(enum.Action, bool)     {}
func (nopObserver) ObserveStoreError(string)              {}
func (nopObserver) ObserveRetryAfterFallback(enum.Action) {}
