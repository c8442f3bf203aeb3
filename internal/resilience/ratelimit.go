package resilience

import (
	"context"
	"sync"
	"time"

	"paygate/internal/clock"
	"paygate/internal/provider"
)

// Limiter is sliding-window admission control keyed by an arbitrary string,
// usually the provider name.
type Limiter interface {
	// Allow reports whether a request for key would be admitted now. It
	// records nothing.
	Allow(ctx context.Context, key string) (bool, error)
	// Hit admits and records a request, or fails with a
	// provider.KindRateLimitExceeded error carrying the retry-after delay.
	Hit(ctx context.Context, key string) error
	Clear(ctx context.Context, key string) error
	ClearAll(ctx context.Context) error
}

// MemoryLimiter keeps windows in process memory. Check and record happen
// under one lock.
type MemoryLimiter struct {
	max    int
	window time.Duration
	clock  clock.Clock

	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewMemoryLimiter(maxRequests int, window time.Duration, c clock.Clock) *MemoryLimiter {
	if c == nil {
		c = clock.System{}
	}
	return &MemoryLimiter{
		max:     maxRequests,
		window:  window,
		clock:   c,
		windows: make(map[string][]time.Time),
	}
}

// prune drops timestamps outside the window. Caller holds mu.
func (l *MemoryLimiter) prune(key string, now time.Time) []time.Time {
	ts := l.windows[key]
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= l.window {
		i++
	}
	if i > 0 {
		ts = append(ts[:0:0], ts[i:]...)
		if len(ts) == 0 {
			delete(l.windows, key)
		} else {
			l.windows[key] = ts
		}
	}
	return ts
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key, l.clock.Now())) < l.max, nil
}

func (l *MemoryLimiter) Hit(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	ts := l.prune(key, now)
	if len(ts) >= l.max {
		retry := ts[0].Add(l.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return provider.RateLimitError(key, retry)
	}
	l.windows[key] = append(ts, now)
	return nil
}

func (l *MemoryLimiter) Clear(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
	return nil
}

func (l *MemoryLimiter) ClearAll(context.Context) error {
	l.mu.Lock()
	l.windows = make(map[string][]time.Time)
	l.mu.Unlock()
	return nil
}

// NoopLimiter admits everything. Used when rate limiting is disabled.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (NoopLimiter) Hit(context.Context, string) error           { return nil }
func (NoopLimiter) Clear(context.Context, string) error         { return nil }
func (NoopLimiter) ClearAll(context.Context) error              { return nil }
