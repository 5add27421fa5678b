package rate_limiter

import (
	"context"
	"fmt"
	"log/slog"

	"github/martinmaurice/quota/pkg/enum"
)

type Servicer interface {
	CheckLimit(ctx context.Context, action enum.Action, subjectID int) (Result, error)
	Status(ctx context.Context, action enum.Action, subjectID int) (Status, error)
	Reset(ctx context.Context, action enum.Action, subjectID int) error
	Ping(ctx context.Context) error
}

// Client enforces a fixed window quota per (action, subject). It holds no
// mutable state of its own: every decision is made against the shared store.
type Client struct {
	store    CounterStore
	policy   Policy
	observer Observer
	logger   *slog.Logger
}

type Option func(c *Client)

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(store CounterStore, policy Policy, opts ...Option) *Client {
	c := &Client{
		store:    store,
		policy:   policy,
		observer: nopObserver{},
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("component", "rate_limiter")
	return c
}

func (c *Client) key(action enum.Action, subjectID int) string {
	return fmt.Sprintf("%s:%s:%d", c.policy.KeyPrefix, action, subjectID)
}

func (c *Client) limit(action enum.Action) (int64, error) {
	limit, ok := c.policy.Limits[action]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return limit, nil
}

// CheckLimit counts one attempt of action by subjectID and reports whether it
// fits in the current window. Denied attempts are counted too. An error is
// returned only when the counter could not be incremented.
func (c *Client) CheckLimit(ctx context.Context, action enum.Action, subjectID int) (Result, error) {
	limit, err := c.limit(action)
	if err != nil {
		return Result{}, err
	}

	key := c.key(action, subjectID)
	count, err := c.increment(ctx, key)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Allowed: count <= limit,
		Count:   count,
		Limit:   limit,
	}
	c.observer.ObserveDecision(action, result.Allowed)

	if result.Allowed {
		c.logger.Debug("Request allowed", "key", key, "count", count, "limit", limit)
		return result, nil
	}

	result.RetryAfterSeconds = c.retryAfter(ctx, action, key)
	c.logger.Info("Request not allowed", "key", key, "count", count, "limit", limit, "retry_after", result.RetryAfterSeconds)
	return result, nil
}

func (c *Client) increment(ctx context.Context, key string) (int64, error) {
	ttl := c.policy.windowTTL()

	if wi, ok := c.store.(WindowIncrementer); ok {
		count, err := wi.IncrWindow(ctx, key, ttl)
		if err != nil {
			c.observer.ObserveStoreError("incr")
			return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return count, nil
	}

	count, err := c.store.Incr(ctx, key)
	if err != nil {
		c.observer.ObserveStoreError("incr")
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	// Only the caller that opened the window sets its expiry.
	if count == 1 {
		if err := c.store.Expire(ctx, key, ttl); err != nil {
			c.observer.ObserveStoreError("expire")
			return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
	}

	return count, nil
}

// retryAfter never fails: any problem reading the remaining window yields the
// full window length.
func (c *Client) retryAfter(ctx context.Context, action enum.Action, key string) int {
	fallback := c.policy.windowSeconds()

	ttl, err := c.store.TTL(ctx, key)
	if err != nil {
		c.logger.Warn("could not read remaining window, using full window", "key", key, "error", err)
		c.observer.ObserveStoreError("ttl")
		c.observer.ObserveRetryAfterFallback(action)
		return fallback
	}

	if ttl <= 0 {
		if ttl == TTLNoExpiry {
			// the window opener lost its EXPIRE; without this the key never resets
			if err := c.store.Expire(ctx, key, c.policy.windowTTL()); err != nil {
				c.logger.Warn("could not restore window expiry", "key", key, "error", err)
				c.observer.ObserveStoreError("expire")
			}
		}
		c.observer.ObserveRetryAfterFallback(action)
		return fallback
	}

	return max(ceilSeconds(ttl), 1)
}

// Status reports the current window of (action, subjectID) without counting
// an attempt.
func (c *Client) Status(ctx context.Context, action enum.Action, subjectID int) (Status, error) {
	limit, err := c.limit(action)
	if err != nil {
		return Status{}, err
	}

	inspector, ok := c.store.(Inspector)
	if !ok {
		return Status{}, ErrUnsupported
	}

	key := c.key(action, subjectID)
	count, err := inspector.Get(ctx, key)
	if err != nil {
		c.observer.ObserveStoreError("get")
		return Status{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	status := Status{
		Action:    action.String(),
		SubjectID: subjectID,
		Count:     count,
		Limit:     limit,
		Remaining: max(limit-count, 0),
	}

	if count == 0 {
		return status, nil
	}

	ttl, err := c.store.TTL(ctx, key)
	if err != nil {
		c.observer.ObserveStoreError("ttl")
		return Status{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if ttl > 0 {
		status.ResetInSeconds = ceilSeconds(ttl)
	}

	return status, nil
}

// Reset drops the counter of (action, subjectID); the next attempt opens a
// new window.
func (c *Client) Reset(ctx context.Context, action enum.Action, subjectID int) error {
	if _, err := c.limit(action); err != nil {
		return err
	}

	inspector, ok := c.store.(Inspector)
	if !ok {
		return ErrUnsupported
	}

	key := c.key(action, subjectID)
	if err := inspector.Del(ctx, key); err != nil {
		c.observer.ObserveStoreError("del")
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	c.logger.Info("rate limit reset", "key", key)
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	pinger, ok := c.store.(Pinger)
	if !ok {
		return nil
	}

	if err := pinger.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
