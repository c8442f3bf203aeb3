package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"paygate/internal/provider"
)

// RetryPolicy controls how many times an operation runs and how long to wait
// between runs. RetryOn whitelists retryable kinds; empty retries any
// failure that is not caller-facing.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Exponential bool
	RetryOn     []provider.Kind
}

// Delay returns the wait before attempt i (i >= 2).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if !p.Exponential || attempt < 2 {
		return p.BaseDelay
	}
	return p.BaseDelay * time.Duration(1<<uint(attempt-1))
}

// Kinds that are caller decisions or definitive provider answers; never
// retried, whatever the whitelist.
var neverRetry = map[provider.Kind]bool{
	provider.KindConfiguration:        true,
	provider.KindInvalidProvider:      true,
	provider.KindInputValidation:      true,
	provider.KindRateLimitExceeded:    true,
	provider.KindSignatureInvalid:     true,
	provider.KindUnsupportedOperation: true,
	provider.KindVerificationFailure:  true,
}

// Retryable reports whether err may be retried under the policy. Only the
// kind matters: a transport timeout wrapped as a request failure is
// retryable even though its chain matches context.DeadlineExceeded.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	kind := provider.KindOf(err)
	if neverRetry[kind] {
		return false
	}
	if len(p.RetryOn) == 0 {
		return true
	}
	for _, k := range p.RetryOn {
		if k == kind {
			return true
		}
	}
	return false
}

type RetrierOption func(*Retrier)

// WithTimer supplies the timer used between attempts. The factory runs
// once per Do call.
func WithTimer(newTimer func() backoff.Timer) RetrierOption {
	return func(r *Retrier) { r.newTimer = newTimer }
}

// Retrier runs fallible operations under a RetryPolicy. It performs no I/O
// itself.
type Retrier struct {
	policy   RetryPolicy
	newTimer func() backoff.Timer
}

func NewRetrier(policy RetryPolicy, opts ...RetrierOption) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	r := &Retrier{policy: policy}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) Policy() RetryPolicy { return r.policy }

func (r *Retrier) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if r.policy.Exponential {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = r.policy.Delay(2)
		eb.RandomizationFactor = 0
		eb.Multiplier = 2
		eb.MaxInterval = time.Duration(math.MaxInt64)
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	} else {
		b = backoff.NewConstantBackOff(r.policy.BaseDelay)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1)), ctx)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are used up. Non-retryable errors are returned unchanged; the
// last retryable error is wrapped as provider.KindRequestFailure.
func (r *Retrier) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	attempt := 0
	var last error

	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err
		// the caller's own context ending stops retrying, not the error chain
		if !r.policy.Retryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Str("operation", label).
			Int("attempt", attempt).
			Int("max_attempts", r.policy.MaxAttempts).
			Dur("next_delay", next).
			Msg("operation failed, retrying")
	}

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(op, r.backOff(ctx), notify, timer)
	if err == nil {
		return nil
	}
	if last == nil || !r.policy.Retryable(last) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return exhausted(label, attempt, last, ctxErr)
	}

	log.Error().
		Err(last).
		Str("operation", label).
		Int("attempts", attempt).
		Msg("operation failed after retries")
	return exhausted(label, attempt, last, nil)
}

func exhausted(label string, attempts int, last, cause error) error {
	e := &provider.Error{
		Kind:      provider.KindRequestFailure,
		Operation: label,
		Message:   fmt.Sprintf("failed after %d attempt(s)", attempts),
		Err:       last,
	}
	if pe, ok := provider.AsError(last); ok {
		e.Provider = pe.Provider
		e.StatusCode = pe.StatusCode
		if pe.Operation != "" {
			e.Operation = pe.Operation
		}
	}
	if cause != nil {
		e.Message += ": " + cause.Error()
	}
	return e
}

// Execute is Do for operations that return a value.
func Execute[T any](ctx context.Context, r *Retrier, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, label, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
