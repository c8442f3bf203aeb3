package base

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/config"
	"paygate/internal/metrics"
	"paygate/internal/provider"
	"paygate/internal/resilience"
)

type immediateTimer struct{ c chan time.Time }

func (t *immediateTimer) Start(time.Duration) {
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}
func (t *immediateTimer) Stop()               {}
func (t *immediateTimer) C() <-chan time.Time { return t.c }

func testDeps(limiter resilience.Limiter, attempts int) Deps {
	return Deps{
		Limiter:   limiter,
		Retry:     resilience.RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond},
		RetryOpts: []resilience.RetrierOption{resilience.WithTimer(func() backoff.Timer { return &immediateTimer{} })},
		Metrics:   metrics.New(),
	}
}

func TestGuardHitsLimiterOncePerOperation(t *testing.T) {
	limiter := resilience.NewMemoryLimiter(2, time.Minute, nil)
	g := NewGuard("wave", "ivory_coast:wave", testDeps(limiter, 3))

	calls := 0
	err := g.Run(context.Background(), provider.OpPayment, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	require.NoError(t, g.Run(context.Background(), provider.OpVerify, func(context.Context) error { return nil }))
	err = g.Run(context.Background(), provider.OpVerify, func(context.Context) error { return nil })
	assert.Equal(t, provider.KindRateLimitExceeded, provider.KindOf(err))
}

func TestGuardCallReturnsValue(t *testing.T) {
	g := NewGuard("mtn", "mtn", testDeps(nil, 1))
	got, err := Call(context.Background(), g, provider.OpBalance, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestGuardBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	deps := testDeps(nil, 1)
	deps.Breaker = config.BreakerCfg{Enabled: true, ConsecutiveFailures: 2, OpenSeconds: 60}
	g := NewGuard("orange", "orange", deps)

	calls := 0
	failing := func(context.Context) error {
		calls++
		return errors.New("503")
	}
	for i := 0; i < 2; i++ {
		_ = g.Run(context.Background(), provider.OpPayment, failing)
	}
	assert.Equal(t, 2, calls)

	err := g.Run(context.Background(), provider.OpPayment, failing)
	assert.Equal(t, 2, calls, "open breaker must not reach the provider")
	assert.Equal(t, provider.KindRequestFailure, provider.KindOf(err))
	assert.Contains(t, err.Error(), "circuit open")
}

func TestGuardBreakerIgnoresCallerErrors(t *testing.T) {
	deps := testDeps(nil, 1)
	deps.Breaker = config.BreakerCfg{Enabled: true, ConsecutiveFailures: 1, OpenSeconds: 60}
	g := NewGuard("wave", "wave", deps)

	for i := 0; i < 3; i++ {
		err := g.Run(context.Background(), provider.OpVerify, func(context.Context) error {
			return provider.VerificationError("wave", "no session", nil)
		})
		assert.Equal(t, provider.KindVerificationFailure, provider.KindOf(err))
	}
}

func TestHTTPClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ping", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"n":12}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("test", 5)
	c.SetBaseURL(srv.URL + "/")
	resp, err := c.PostJSON(context.Background(), "/v1/ping", map[string]string{"a": "b"}, map[string]string{"X-Key": "secret"})
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	m := resp.Map()
	assert.Equal(t, true, m["ok"])
	assert.Equal(t, "12", m["n"].(interface{ String() string }).String())
}

func TestEnsureIdempotencyKey(t *testing.T) {
	assert.Equal(t, "given", EnsureIdempotencyKey(" given "))
	k1, k2 := EnsureIdempotencyKey(""), EnsureIdempotencyKey("")
	assert.Len(t, k1, 36)
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, byte('4'), k1[14], "version 4 uuid")
}
