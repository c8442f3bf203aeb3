// Package bootstrap assembles the shared runtime from a loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"paygate/internal/cache"
	"paygate/internal/clock"
	"paygate/internal/config"
	"paygate/internal/metrics"
	"paygate/internal/provider"
	"paygate/internal/provider/base"
	"paygate/internal/provider/catalog"
	"paygate/internal/resilience"
)

// Runtime is everything the API server and the CLI need.
type Runtime struct {
	Config      config.Cfg
	Redis       *redis.Client
	Metrics     *metrics.Metrics
	Registry    *provider.Registry
	Processor   *provider.Processor
	Idempotency cache.IdempotencyStore
}

// OpenRedis connects to redis.addr, or returns nil when it is unset.
func OpenRedis(ctx context.Context, cfg config.RedisCfg) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Limiter picks the rate-limit backend named by rate_limit.backend.
func Limiter(cfg config.RateLimitCfg, rdb *redis.Client, c clock.Clock) (resilience.Limiter, error) {
	if !cfg.Enabled {
		return resilience.NoopLimiter{}, nil
	}
	switch cfg.Backend {
	case "", "memory":
		return resilience.NewMemoryLimiter(cfg.MaxRequests, cfg.Window(), c), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("rate_limit.backend=redis but no redis connection")
		}
		return resilience.NewRedisLimiter(rdb, cfg.Prefix, cfg.MaxRequests, cfg.Window(), c), nil
	}
	return nil, fmt.Errorf("unknown rate_limit.backend %q", cfg.Backend)
}

// Deps builds the collaborators shared by every gateway.
func Deps(cfg config.Cfg, limiter resilience.Limiter, m *metrics.Metrics, c clock.Clock) base.Deps {
	return base.Deps{
		Limiter: limiter,
		Retry: resilience.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay(),
			Exponential: cfg.Retry.Exponential,
		},
		Breaker:     cfg.Breaker,
		Metrics:     m,
		Clock:       c,
		HTTPTimeout: cfg.HTTP.TimeoutSeconds,
	}
}

// New wires the runtime. With warm set, every configured gateway is built
// up front and the first configuration error is returned.
func New(ctx context.Context, cfg config.Cfg, warm bool) (*Runtime, error) {
	c := clock.System{}
	rt := &Runtime{Config: cfg, Metrics: metrics.New()}

	rdb, err := OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	rt.Redis = rdb

	limiter, err := Limiter(cfg.RateLimit, rdb, c)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Registry = catalog.NewRegistry(cfg, Deps(cfg, limiter, rt.Metrics, c))
	if warm {
		if err := rt.Registry.Warm(); err != nil {
			rt.Close()
			return nil, err
		}
	}

	rt.Processor = provider.NewProcessor(rt.Registry)
	if err := rt.Processor.UseDefault(cfg.Default); err != nil {
		log.Warn().Err(err).
			Str("country", cfg.Default.Country).
			Str("provider", cfg.Default.Provider).
			Msg("default gateway unavailable; /api/v1/payments disabled until one is selected")
	}

	if rdb != nil {
		rt.Idempotency = cache.NewRedisStore(rdb, "")
	} else {
		rt.Idempotency = cache.NewMemoryStore(c)
	}
	return rt, nil
}

func (rt *Runtime) Close() {
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}
}
