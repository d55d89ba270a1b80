package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/launch-dashboard/internal/auth"
	"github.com/kjstillabower/launch-dashboard/internal/cache"
	"github.com/kjstillabower/launch-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/launch-dashboard/internal/client"
	"github.com/kjstillabower/launch-dashboard/internal/config"
	httphandler "github.com/kjstillabower/launch-dashboard/internal/http"
	"github.com/kjstillabower/launch-dashboard/internal/lifecycle"
	"github.com/kjstillabower/launch-dashboard/internal/observability"
)

const breakerComponent = "status_api"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// statusCache is the cache chosen by config plus its optional health ping and closer.
type statusCache struct {
	cache cache.Cache
	ping  func() error
	close func() error
}

func buildCache(cfg *config.Config) (statusCache, error) {
	switch cfg.CacheBackend {
	case "in_memory":
		return statusCache{cache: cache.NewInMemoryCache()}, nil
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return statusCache{}, fmt.Errorf("memcached cache: %w", err)
		}
		return statusCache{cache: mc, ping: mc.Ping, close: mc.Close}, nil
	case "redis":
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout)
		return statusCache{cache: rc, ping: rc.Ping, close: rc.Close}, nil
	default:
		return statusCache{}, nil
	}
}

func buildClient(cfg *config.Config, logger *zap.Logger) (*client.HTTPClient, error) {
	simClient, err := client.NewHTTPClientWithRetry(
		cfg.StatusAPIURL,
		cfg.MonteCarloAPIURL,
		cfg.StatusAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		return nil, err
	}
	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			IsFailure:        client.IsUpstreamFault,
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("circuit breaker transition",
					zap.String("component", breakerComponent),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
				observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String(), int(to))
			},
		})
		simClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	return simClient, nil
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.IsDevelopment(), version)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	lifecycle.MarkStarted(time.Now())

	secret, err := auth.NewSecret(cfg.Password)
	if err != nil {
		return fmt.Errorf("login secret: %w", err)
	}

	simClient, err := buildClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("status client: %w", err)
	}

	sc, err := buildCache(cfg)
	if err != nil {
		return err
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		Version:          version,
		CachePing:        sc.ping,
	}
	handler := httphandler.NewHandler(simClient, sc.cache, secret, httphandler.OptionsFromConfig(cfg), healthConfig, logger)
	observability.RegisterTrafficGauges(cfg.DegradedWindow)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.Bool("hashed_secret", secret.Hashed()),
			zap.String("schema_check", cfg.SchemaCheck))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server", zap.Error(err))
			return err
		}
	case <-sigCtx.Done():
	}
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	simClient.CloseIdleConnections()

	if sc.close != nil {
		if err := sc.close(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete", zap.Duration("uptime", lifecycle.Uptime()))
	return nil
}
