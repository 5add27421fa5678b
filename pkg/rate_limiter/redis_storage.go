package rate_limiter

import (
	"context"
	"crypto/tls"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github/martinmaurice/quota/pkg/env"
)

//go:embed scripts/redis_lua/incr_window.lua
var incrWindowScriptSource string

var incrWindowScript = redis.NewScript(incrWindowScriptSource)

// NewRedisClient builds a pooled client from the environment and checks the
// connection once.
func NewRedisClient(ctx context.Context, envObj *env.Specification) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         envObj.RedisAddr,
		Password:     envObj.RedisPassword,
		DB:           envObj.RedisDb,
		PoolSize:     envObj.RedisPoolSize,
		DialTimeout:  envObj.RedisDialTimeout,
		ReadTimeout:  envObj.RedisReadTimeout,
		WriteTimeout: envObj.RedisWriteTimeout,
	}

	if envObj.RedisTlsEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	slog.Info("Redis connection established", "addr", envObj.RedisAddr, "db", envObj.RedisDb, "tls_enabled", envObj.RedisTlsEnabled)
	return client, nil
}

// NewRedis returns the store matching the scripted flag: plain INCR/EXPIRE
// round-trips or a single Lua call per attempt.
func NewRedis(client *redis.Client, scripted bool) CounterStore {
	storage := &RedisStorage{dB: client}
	if scripted {
		return &ScriptedRedisStorage{RedisStorage: storage}
	}
	return storage
}

type RedisStorage struct {
	dB *redis.Client
}

func (r *RedisStorage) Incr(ctx context.Context, key string) (int64, error) {
	count, err := r.dB.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return count, nil
}

func (r *RedisStorage) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.dB.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}

func (r *RedisStorage) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.dB.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}
	return ttl, nil
}

func (r *RedisStorage) Get(ctx context.Context, key string) (int64, error) {
	count, err := r.dB.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return count, nil
}

func (r *RedisStorage) Del(ctx context.Context, key string) error {
	if err := r.dB.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.dB.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// ScriptedRedisStorage opens the window with INCR and EXPIRE in one script so
// a counter can never be left without an expiry.
type ScriptedRedisStorage struct {
	*RedisStorage
}

func (s *ScriptedRedisStorage) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	seconds := max(int64(ttl/time.Second), 1)
	count, err := incrWindowScript.Run(ctx, s.dB, []string{key}, seconds).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr window script: %w", err)
	}
	return count, nil
}

var (
	_ CounterStore      = (*RedisStorage)(nil)
	_ Inspector         = (*RedisStorage)(nil)
	_ Pinger            = (*RedisStorage)(nil)
	_ WindowIncrementer = (*ScriptedRedisStorage)(nil)
)
