package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github/martinmaurice/quota/internal/server/middleware"
	"github/martinmaurice/quota/pkg/enum"
	"github/martinmaurice/quota/pkg/env"
	"github/martinmaurice/quota/pkg/rate_limiter"
	"golang.org/x/time/rate"
)

const (
	DefaultGracefulShutdownTimeout = 10 * time.Second
)

type Config struct {
	port                  string
	readTimeoutInSeconds  time.Duration
	writeTimeoutInSeconds time.Duration
	maxHeaderBytes        int
	handler               *gin.Engine
	servicer              rate_limiter.Servicer
	disableRateLimiter    bool
	throttle              *rate.Limiter
	metricsPath           string
	metricsHandler        http.Handler
	subjects              middleware.SubjectResolver
	adminKey              string
}

type Option func(config *Config)

func WithDisableRateLimiter(value bool) Option {
	return func(config *Config) {
		config.disableRateLimiter = value
	}
}

// WithThrottle caps the requests per second served by this instance. A non
// positive rps disables it.
func WithThrottle(rps float64, burst int) Option {
	return func(config *Config) {
		if rps <= 0 {
			config.throttle = nil
			return
		}
		config.throttle = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

func WithMetrics(path string, handler http.Handler) Option {
	return func(config *Config) {
		config.metricsPath = path
		config.metricsHandler = handler
	}
}

func WithSubjectResolver(resolver middleware.SubjectResolver) Option {
	return func(config *Config) {
		config.subjects = resolver
	}
}

// WithAdminKey sets the key operator routes expect in X-ADMIN-KEY. An empty key
// closes them.
func WithAdminKey(key string) Option {
	return func(config *Config) {
		config.adminKey = key
	}
}

func NewServer(servicer rate_limiter.Servicer, opts ...Option) *Config {
	envObj := env.GetEnv()
	c := &Config{
		port:                  envObj.ServerPort,
		readTimeoutInSeconds:  envObj.ServerReadTimeoutInSecond,
		writeTimeoutInSeconds: envObj.ServerWriteTimeoutInSecond,
		maxHeaderBytes:        envObj.ServerMaxHeaderBytes,
		handler:               gin.Default(),
		servicer:              servicer,
		disableRateLimiter:    false,
		subjects:              middleware.StaticKeys(envObj.ApiKeys),
		adminKey:              envObj.AdminApiKey,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.routes()
	return c
}

func (s *Config) routes() {
	s.handler.Use(middleware.RequestIDMiddleware)
	s.handler.Use(middleware.QueueTimeMiddleware)
	if s.throttle != nil {
		s.handler.Use(middleware.ThrottleMiddleware(s.throttle))
	}
	s.handler.Use(middleware.AuthenticationMiddleware(s.subjects))

	v1 := s.handler.Group("/v1/bbaton")
	for _, action := range enum.Actions() {
		handlers := []gin.HandlerFunc{}
		if !s.disableRateLimiter {
			handlers = append(handlers, middleware.RateLimitActionMiddleware(s.servicer, action))
		}
		handlers = append(handlers, ActionAcceptedHandler(action))
		v1.POST("/"+action.String(), handlers...)
	}

	// operator routes act on any subject
	admin := s.handler.Group("/", middleware.AdminMiddleware(s.adminKey))
	admin.POST("/check", CheckHandler(s.servicer))
	admin.GET("/status/:action/:id", GetStatusHandler(s.servicer))
	admin.DELETE("/reset/:action/:id", ResetHandler(s.servicer))
	s.handler.GET("/health", HealthHandler(s.servicer))

	if s.metricsHandler != nil {
		s.handler.GET(s.metricsPath, gin.WrapH(s.metricsHandler))
	}
}

func (s *Config) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled or the process gets SIGINT/SIGTERM, then
// shuts down gracefully.
func (s *Config) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:           s.port,
		Handler:        s.handler,
		ReadTimeout:    s.readTimeoutInSeconds,
		WriteTimeout:   s.writeTimeoutInSeconds,
		MaxHeaderBytes: s.maxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", s.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down the server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultGracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("Server exited gracefully")
	return nil
}
