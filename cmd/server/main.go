package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github/martinmaurice/quota/internal/server"
	"github/martinmaurice/quota/pkg/config"
	"github/martinmaurice/quota/pkg/env"
	"github/martinmaurice/quota/pkg/logger"
	"github/martinmaurice/quota/pkg/metrics"
	"github/martinmaurice/quota/pkg/rate_limiter"
)

var (
	envFilePath        string
	disableRateLimiter bool
)

func init() {
	flag.StringVar(&envFilePath, "env", "", "Enter the env file path you want to load if any")
	flag.BoolVar(&disableRateLimiter, "disableRateLimiter", false, "Disable the rate limiters")
}

func newStore(ctx context.Context, envObj *env.Specification) (rate_limiter.CounterStore, func(), error) {
	switch envObj.Store {
	case env.MemoryStore:
		slog.Warn("using the in memory store, counters are not shared between instances")
		storage := rate_limiter.NewMemoryStorage()
		storage.StartJanitor(ctx, time.Minute)
		return storage, func() {}, nil
	case env.RedisStore:
		client, err := rate_limiter.NewRedisClient(ctx, envObj)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				slog.Error("could not close redis client", "error", err)
			}
		}
		return rate_limiter.NewRedis(client, envObj.RedisScripted), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", envObj.Store)
	}
}

func main() {
	flag.Parse()

	if envFilePath != "" {
		slog.Info(fmt.Sprintf("loading env file %s", envFilePath))
		if err := godotenv.Load(envFilePath); err != nil {
			panic(fmt.Errorf("could not be able to load the env file: %v", err))
		}
	}

	envObj := env.GetEnv()
	slog.SetDefault(logger.New(os.Stdout, envObj.LogLevel, envObj.LogFormat))
	slog.Info("quota service", "version", envObj.Version, "env", envObj.Env)

	if disableRateLimiter {
		slog.Warn("rate limiter is disabled")
	}

	if err := run(envObj, config.GetConfig()); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(envObj *env.Specification, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := newStore(ctx, envObj)
	if err != nil {
		return fmt.Errorf("could not create the counter store: %w", err)
	}
	defer closeStore()

	opts := []server.Option{
		server.WithDisableRateLimiter(disableRateLimiter),
		server.WithThrottle(envObj.ServerMaxRequestsPerSecond, envObj.ServerBurst),
	}
	clientOpts := []rate_limiter.Option{rate_limiter.WithLogger(slog.Default())}

	if cfg.Metrics.Enabled {
		recorder, err := metrics.New(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("could not register metrics: %w", err)
		}
		clientOpts = append(clientOpts, rate_limiter.WithObserver(recorder))
		opts = append(opts, server.WithMetrics(cfg.Metrics.Path, promhttp.Handler()))
	}

	rateLimiter := rate_limiter.New(store, rate_limiter.PolicyFromConfig(cfg.RateLimits), clientOpts...)

	return server.NewServer(rateLimiter, opts...).Run(ctx)
}
