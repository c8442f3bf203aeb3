package mtn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/config"
	"paygate/internal/provider"
	"paygate/internal/provider/base"
	"paygate/internal/resilience"
)

type nowTimer struct{ c chan time.Time }

func (t *nowTimer) Start(time.Duration) { t.c = make(chan time.Time, 1); t.c <- time.Now() }
func (t *nowTimer) Stop()               {}
func (t *nowTimer) C() <-chan time.Time { return t.c }

type fakeMomo struct {
	tokenCalls   atomic.Int32
	rejectTokens atomic.Int32 // number of 401s to answer on payment
	lastRefID    string
	lastBody     map[string]any
	lastEnv      string
}

func (f *fakeMomo) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/collection/token/", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "api-user", user)
		assert.Equal(t, "api-key", pass)
		assert.Equal(t, "sub-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "momo-tok", "token_type": "access_token", "expires_in": 3600})
	})
	mux.HandleFunc("/collection/v1_0/requesttopay", func(w http.ResponseWriter, r *http.Request) {
		if f.rejectTokens.Load() > 0 {
			f.rejectTokens.Add(-1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.lastRefID = r.Header.Get("X-Reference-Id")
		f.lastEnv = r.Header.Get("X-Target-Environment")
		f.lastBody = map[string]any{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastBody))
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/collection/v1_0/requesttopay/", func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimPrefix(r.URL.Path, "/collection/v1_0/requesttopay/")
		if ref == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"amount": "1000", "currency": "XOF", "externalId": "ord-9",
			"financialTransactionId": "ftx-1", "status": "SUCCESSFUL",
		})
	})
	mux.HandleFunc("/collection/v1_0/account/balance", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "access_token momo-tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"availableBalance": "12500.75", "currency": "XOF"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGateway(t *testing.T, f *fakeMomo, env string) *Gateway {
	t.Helper()
	srv := f.server(t)
	gw, err := New(config.GatewayCfg{
		Country:         "ivory_coast",
		Environment:     env,
		BaseURL:         srv.URL,
		SubscriptionKey: "sub-key",
		APIUser:         "api-user",
		APIKey:          "api-key",
	}, base.Deps{
		Retry:     resilience.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		RetryOpts: []resilience.RetrierOption{resilience.WithTimer(func() backoff.Timer { return &nowTimer{} })},
	})
	require.NoError(t, err)
	return gw
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(config.GatewayCfg{Country: "ivory_coast", APIUser: "u", APIKey: "k"}, base.Deps{})
	assert.Equal(t, provider.KindConfiguration, provider.KindOf(err))
}

func TestPaymentIsPending(t *testing.T) {
	f := &fakeMomo{}
	gw := newTestGateway(t, f, "sandbox")

	res, err := gw.Payment(context.Background(), provider.PaymentRequest{
		Amount:     decimal.NewFromInt(1000),
		Reference:  "ord-9",
		PayerPhone: "0707123456",
	})
	require.NoError(t, err)

	assert.Equal(t, provider.StatusPending, res.Status)
	assert.Equal(t, f.lastRefID, res.ProviderTransactionID)
	_, perr := uuid.Parse(f.lastRefID)
	assert.NoError(t, perr)
	assert.Equal(t, "sandbox", f.lastEnv)
	assert.Equal(t, "1000", f.lastBody["amount"])
	assert.Equal(t, "ord-9", f.lastBody["externalId"])
	payer := f.lastBody["payer"].(map[string]any)
	assert.Equal(t, "MSISDN", payer["partyIdType"])
	assert.Equal(t, "2250707123456", payer["partyId"])
}

func TestPaymentKeepsUUIDIdempotencyKey(t *testing.T) {
	f := &fakeMomo{}
	gw := newTestGateway(t, f, "production")
	key := uuid.NewString()

	res, err := gw.Payment(context.Background(), provider.PaymentRequest{
		Amount: decimal.NewFromInt(500), Reference: "r", PayerPhone: "2250501020304", IdempotencyKey: key,
	})
	require.NoError(t, err)
	assert.Equal(t, key, f.lastRefID)
	assert.Equal(t, key, res.IdempotencyKey)
	assert.Equal(t, "live", f.lastEnv)
}

func TestPaymentRefreshesRejectedToken(t *testing.T) {
	f := &fakeMomo{}
	f.rejectTokens.Store(1)
	gw := newTestGateway(t, f, "sandbox")

	_, err := gw.Payment(context.Background(), provider.PaymentRequest{
		Amount: decimal.NewFromInt(500), Reference: "r", PayerPhone: "0707123456",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestPaymentRequiresPhone(t *testing.T) {
	gw := newTestGateway(t, &fakeMomo{}, "sandbox")
	_, err := gw.Payment(context.Background(), provider.PaymentRequest{Amount: decimal.NewFromInt(500), Reference: "r"})
	assert.Equal(t, provider.KindInputValidation, provider.KindOf(err))
}

func TestVerify(t *testing.T) {
	gw := newTestGateway(t, &fakeMomo{}, "sandbox")

	res, err := gw.Verify(context.Background(), provider.VerifyRequest{TransactionID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, provider.StatusCompleted, res.Status)
	assert.Equal(t, "ftx-1", res.ProviderReference)
	assert.Equal(t, "ord-9", res.Reference)

	_, err = gw.Verify(context.Background(), provider.VerifyRequest{ProviderReference: "missing"})
	assert.Equal(t, provider.KindVerificationFailure, provider.KindOf(err))

	_, err = gw.Verify(context.Background(), provider.VerifyRequest{Reference: "ord-9"})
	assert.Equal(t, provider.KindInputValidation, provider.KindOf(err))
}

func TestBalance(t *testing.T) {
	gw := newTestGateway(t, &fakeMomo{}, "sandbox")
	res, err := gw.Balance(context.Background(), provider.BalanceRequest{})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12500.75").Equal(res.Available))
	assert.Equal(t, "XOF", res.Currency)
}

func TestTransferUnsupported(t *testing.T) {
	gw := newTestGateway(t, &fakeMomo{}, "sandbox")
	_, err := gw.Transfer(context.Background(), provider.TransferRequest{})
	assert.Equal(t, provider.KindUnsupportedOperation, provider.KindOf(err))
}

func TestNormalize(t *testing.T) {
	cases := map[string]provider.CanonicalStatus{
		"SUCCESSFUL": provider.StatusCompleted,
		"PENDING":    provider.StatusPending,
		"FAILED":     provider.StatusFailed,
		"REJECTED":   provider.StatusFailed,
		"EXPIRED":    provider.StatusExpired,
		"TIMEOUT":    provider.StatusExpired,
		"CREATED":    provider.StatusInitiated,
		"ONGOING":    provider.StatusUnknown,
	}
	for raw, want := range cases {
		if got := Normalize(raw); got != want {
			t.Fatalf("Normalize(%q) = %s, want %s", raw, got, want)
		}
	}
}
