package orange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
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

func testDeps() base.Deps {
	return base.Deps{
		Retry:     resilience.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		RetryOpts: []resilience.RetrierOption{resilience.WithTimer(func() backoff.Timer { return &nowTimer{} })},
	}
}

type fakeOrange struct {
	tokenCalls   atomic.Int32
	paymentCalls atomic.Int32
	failPayments int32
	status       string
	lastPayment  map[string]any
	lastVerify   map[string]any
	paymentPath  string
}

func (f *fakeOrange) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		assert.Equal(t, "Basic Y2xpZW50OnNlY3JldA==", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "token_type": "Bearer", "expires_in": 7776000})
	})
	payment := func(w http.ResponseWriter, r *http.Request) {
		n := f.paymentCalls.Add(1)
		f.paymentPath = r.URL.Path
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		if n <= f.failPayments {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		f.lastPayment = map[string]any{}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		require.NoError(t, dec.Decode(&f.lastPayment))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      201,
			"payment_url": "https://webpayment.orange.example/pay/abc",
			"pay_token":   "pt-123",
			"notif_token": "nt-456",
		})
	}
	mux.HandleFunc("/orange-money-webpay/dev/v1/webpayment", payment)
	mux.HandleFunc("/orange-money-webpay/sn/v1/webpayment", payment)
	mux.HandleFunc("/orange-money-webpay/dev/v1/transactionstatus", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		require.NoError(t, dec.Decode(&body))
		f.lastVerify = body
		assert.Equal(t, "ord-1", body["order_id"])
		assert.Equal(t, "pt-123", body["pay_token"])
		_ = json.NewEncoder(w).Encode(map[string]any{"status": f.status, "notif_token": "nt-456"})
	})
	return mux
}

func newTestGateway(t *testing.T, f *fakeOrange, gc config.GatewayCfg) *Gateway {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	gc.BaseURL = srv.URL
	if gc.Country == "" {
		gc.Country = "ivory_coast"
	}
	gc.ClientKey = "Y2xpZW50OnNlY3JldA=="
	gc.ClientSecret = "merchant-key"
	gc.Options = map[string]string{
		"notif_url":  "https://shop.example/notify",
		"return_url": "https://shop.example/return",
		"cancel_url": "https://shop.example/cancel",
	}
	gw, err := New(gc, testDeps())
	require.NoError(t, err)
	return gw
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(config.GatewayCfg{Country: "ivory_coast", ClientSecret: "m"}, base.Deps{})
	assert.Equal(t, provider.KindConfiguration, provider.KindOf(err))

	_, err = New(config.GatewayCfg{Country: "ivory_coast", ClientKey: "k"}, base.Deps{})
	assert.Equal(t, provider.KindConfiguration, provider.KindOf(err))

	_, err = New(config.GatewayCfg{Country: "ghana", ClientKey: "k", ClientSecret: "m"}, base.Deps{})
	assert.Equal(t, provider.KindConfiguration, provider.KindOf(err))
}

func TestPaymentSandbox(t *testing.T) {
	f := &fakeOrange{}
	gw := newTestGateway(t, f, config.GatewayCfg{Environment: "sandbox"})

	res, err := gw.Payment(context.Background(), provider.PaymentRequest{
		Amount:    decimal.NewFromInt(1500),
		Reference: "ord-1",
	})
	require.NoError(t, err)

	assert.Equal(t, provider.StatusInitiated, res.Status)
	assert.Equal(t, "pt-123", res.ProviderTransactionID)
	assert.Equal(t, "https://webpayment.orange.example/pay/abc", res.PaymentURL)
	assert.NotEmpty(t, res.IdempotencyKey)

	assert.Equal(t, "OUV", f.lastPayment["currency"])
	assert.Equal(t, "merchant-key", f.lastPayment["merchant_key"])
	assert.Equal(t, json.Number("1500"), f.lastPayment["amount"])
	assert.Equal(t, "ord-1", f.lastPayment["order_id"])
	assert.Equal(t, "fr", f.lastPayment["lang"])
	assert.Equal(t, "https://shop.example/notify", f.lastPayment["notif_url"])
}

func TestPaymentProductionUsesCountryPath(t *testing.T) {
	f := &fakeOrange{}
	gw := newTestGateway(t, f, config.GatewayCfg{Environment: "production", Country: "senegal"})

	_, err := gw.Payment(context.Background(), provider.PaymentRequest{Amount: decimal.NewFromInt(500), Reference: "ord-2"})
	require.NoError(t, err)
	assert.Equal(t, "/orange-money-webpay/sn/v1/webpayment", f.paymentPath)
	assert.Equal(t, "XOF", f.lastPayment["currency"])
}

func TestPaymentRetriesUpstreamFailureAndReusesToken(t *testing.T) {
	f := &fakeOrange{failPayments: 2}
	gw := newTestGateway(t, f, config.GatewayCfg{})

	_, err := gw.Payment(context.Background(), provider.PaymentRequest{Amount: decimal.NewFromInt(100), Reference: "ord-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.paymentCalls.Load())
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestPaymentExhaustedRetries(t *testing.T) {
	f := &fakeOrange{failPayments: 10}
	gw := newTestGateway(t, f, config.GatewayCfg{})

	_, err := gw.Payment(context.Background(), provider.PaymentRequest{Amount: decimal.NewFromInt(100), Reference: "ord-1"})
	assert.Equal(t, provider.KindRequestFailure, provider.KindOf(err))
	assert.Equal(t, int32(3), f.paymentCalls.Load())
}

func TestPaymentValidationHappensBeforeNetwork(t *testing.T) {
	f := &fakeOrange{}
	gw := newTestGateway(t, f, config.GatewayCfg{})

	_, err := gw.Payment(context.Background(), provider.PaymentRequest{Amount: decimal.RequireFromString("100.50"), Reference: "ord-1"})
	assert.Equal(t, provider.KindInputValidation, provider.KindOf(err))

	_, err = gw.Payment(context.Background(), provider.PaymentRequest{
		Amount: decimal.NewFromInt(100), Reference: "ord-1", ReturnURL: "http://insecure.example",
	})
	assert.Equal(t, provider.KindInputValidation, provider.KindOf(err))
	assert.Zero(t, f.tokenCalls.Load())
	assert.Zero(t, f.paymentCalls.Load())
}

func TestVerify(t *testing.T) {
	f := &fakeOrange{status: "SUCCESS"}
	gw := newTestGateway(t, f, config.GatewayCfg{})

	res, err := gw.Verify(context.Background(), provider.VerifyRequest{
		Reference:     "ord-1",
		TransactionID: "pt-123",
		Amount:        decimal.NewFromInt(1500),
	})
	require.NoError(t, err)
	assert.Equal(t, provider.StatusCompleted, res.Status)
	assert.Equal(t, "SUCCESS", res.RawStatus)
	assert.Equal(t, json.Number("1500"), f.lastVerify["amount"])

	// the amount keeps the payment currency's decimal places
	_, err = gw.Verify(context.Background(), provider.VerifyRequest{
		Reference:     "ord-1",
		TransactionID: "pt-123",
		Amount:        decimal.RequireFromString("12.5"),
		Currency:      "eur",
	})
	require.NoError(t, err)
	assert.Equal(t, json.Number("12.50"), f.lastVerify["amount"])

	_, err = gw.Verify(context.Background(), provider.VerifyRequest{Reference: "ord-1"})
	assert.Equal(t, provider.KindInputValidation, provider.KindOf(err))
	_, err = gw.Verify(context.Background(), provider.VerifyRequest{})
	assert.Equal(t, provider.KindInputValidation, provider.KindOf(err))
}

func TestTransferAndBalanceUnsupported(t *testing.T) {
	gw := newTestGateway(t, &fakeOrange{}, config.GatewayCfg{})
	_, err := gw.Transfer(context.Background(), provider.TransferRequest{})
	assert.Equal(t, provider.KindUnsupportedOperation, provider.KindOf(err))
	_, err = gw.Balance(context.Background(), provider.BalanceRequest{})
	assert.Equal(t, provider.KindUnsupportedOperation, provider.KindOf(err))
}

func TestNormalize(t *testing.T) {
	cases := map[string]provider.CanonicalStatus{
		"SUCCESS":   provider.StatusCompleted,
		"success":   provider.StatusCompleted,
		"PENDING":   provider.StatusPending,
		"FAIL":      provider.StatusFailed,
		"FAILED":    provider.StatusFailed,
		"INITIATED": provider.StatusInitiated,
		"EXPIRED":   provider.StatusExpired,
		"WHATEVER":  provider.StatusUnknown,
		"":          provider.StatusUnknown,
	}
	for raw, want := range cases {
		if got := Normalize(raw); got != want {
			t.Fatalf("Normalize(%q) = %s, want %s", raw, got, want)
		}
	}
}
