package base

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"paygate/internal/clock"
	"paygate/internal/config"
	"paygate/internal/metrics"
	"paygate/internal/provider"
	"paygate/internal/resilience"
)

// Deps are the shared collaborators handed to every gateway factory.
type Deps struct {
	Limiter     resilience.Limiter
	Retry       resilience.RetryPolicy
	RetryOpts   []resilience.RetrierOption
	Breaker     config.BreakerCfg
	Metrics     *metrics.Metrics
	Clock       clock.Clock
	HTTPTimeout int // seconds
}

func (d Deps) clock() clock.Clock {
	if d.Clock == nil {
		return clock.System{}
	}
	return d.Clock
}

// Guard wraps every outbound gateway operation: one rate-limit hit, then the
// optional circuit breaker and the retry policy around the call.
type Guard struct {
	name    string
	key     string
	limiter resilience.Limiter
	retrier *resilience.Retrier
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	clock   clock.Clock
}

// NewGuard builds a guard for the gateway name; key scopes the rate-limit
// window.
func NewGuard(name, key string, deps Deps) *Guard {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = resilience.NoopLimiter{}
	}
	policy := deps.Retry
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	g := &Guard{
		name:    name,
		key:     key,
		limiter: limiter,
		retrier: resilience.NewRetrier(policy, deps.RetryOpts...),
		metrics: deps.Metrics,
		clock:   deps.clock(),
	}
	if deps.Breaker.Enabled {
		g.breaker = newBreaker(key, deps.Breaker)
	}
	return g
}

func newBreaker(key string, cfg config.BreakerCfg) *gobreaker.CircuitBreaker {
	failures := uint32(cfg.ConsecutiveFailures)
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     time.Duration(cfg.OpenSeconds) * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// only provider-side failures count against the breaker
			switch provider.KindOf(err) {
			case provider.KindInputValidation, provider.KindVerificationFailure,
				provider.KindUnsupportedOperation, provider.KindConfiguration:
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

// Run executes fn under the guard's policies.
func (g *Guard) Run(ctx context.Context, op provider.OperationType, fn func(ctx context.Context) error) error {
	start := g.clock.Now()
	err := g.run(ctx, op, fn)

	outcome := "ok"
	if err != nil {
		outcome = string(provider.KindOf(err))
	}
	g.metrics.ObserveOperation(g.name, string(op), outcome, g.clock.Now().Sub(start))
	return err
}

func (g *Guard) run(ctx context.Context, op provider.OperationType, fn func(ctx context.Context) error) error {
	if err := g.limiter.Hit(ctx, g.key); err != nil {
		if provider.IsKind(err, provider.KindRateLimitExceeded) {
			g.metrics.RateLimited(g.name)
			log.Warn().Str("provider", g.name).Str("operation", string(op)).Msg("rate limit exceeded")
		}
		return err
	}

	call := fn
	if g.breaker != nil {
		call = func(ctx context.Context) error {
			_, err := g.breaker.Execute(func() (interface{}, error) {
				return nil, fn(ctx)
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return provider.RequestFailure(g.name, op, "circuit open", err)
			}
			return err
		}
	}

	return g.retrier.Do(ctx, g.name+"."+string(op), call)
}

// Call is Run for operations that produce a value.
func Call[T any](ctx context.Context, g *Guard, op provider.OperationType, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Run(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
