package wave

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"paygate/internal/config"
	"paygate/internal/provider"
	"paygate/internal/provider/base"
)

const (
	DefaultBaseURL = "https://api.wave.com"
	APIKeyPrefix   = "wave_"

	sessionsEndpoint = "/v1/checkout/sessions"
	maxReferenceLen  = 255

	opRefund provider.OperationType = "refund"
	opExpire provider.OperationType = "expire"
	opSearch provider.OperationType = "search"
)

// Operations lists what the Checkout API offers.
var Operations = []provider.OperationType{provider.OpPayment, provider.OpVerify}

// Normalize derives the canonical status from a checkout session's two
// status fields. The checks run in a fixed order because the combinations
// overlap.
func Normalize(checkoutStatus, paymentStatus string) provider.CanonicalStatus {
	checkout := strings.ToLower(strings.TrimSpace(checkoutStatus))
	payment := strings.ToLower(strings.TrimSpace(paymentStatus))
	succeeded := payment == "succeeded"

	switch {
	case payment == "cancelled" || (checkout == "expired" && !succeeded):
		return provider.StatusFailed
	case checkout == "complete" && succeeded:
		return provider.StatusCompleted
	case checkout == "open" || payment == "processing":
		return provider.StatusPending
	case checkout == "expired" && succeeded:
		return provider.StatusCompleted
	}
	return provider.StatusUnknown
}

// Session is a Wave checkout session.
type Session struct {
	ID                   string         `json:"id"`
	Amount               string         `json:"amount"`
	Currency             string         `json:"currency"`
	CheckoutStatus       string         `json:"checkout_status"`
	PaymentStatus        string         `json:"payment_status"`
	BusinessName         string         `json:"business_name"`
	SuccessURL           string         `json:"success_url"`
	ErrorURL             string         `json:"error_url"`
	WaveLaunchURL        string         `json:"wave_launch_url"`
	TransactionID        string         `json:"transaction_id"`
	ClientReference      string         `json:"client_reference"`
	AggregatedMerchantID string         `json:"aggregated_merchant_id"`
	RestrictPayerMobile  string         `json:"restrict_payer_mobile"`
	LastPaymentError     map[string]any `json:"last_payment_error"`
	WhenCreated          string         `json:"when_created"`
	WhenCompleted        string         `json:"when_completed"`
	WhenExpires          string         `json:"when_expires"`
}

func (s Session) Status() provider.CanonicalStatus {
	return Normalize(s.CheckoutStatus, s.PaymentStatus)
}

func (s Session) rawStatus() string {
	return s.CheckoutStatus + "/" + s.PaymentStatus
}

// Gateway is the Wave Checkout gateway. The same implementation serves
// every country; only the configuration slice differs.
type Gateway struct {
	cfg       config.GatewayCfg
	country   provider.Country
	http      *base.HTTPClient
	guard     *base.Guard
	validator *base.RequestValidator
}

func New(cfg config.GatewayCfg, deps base.Deps) (*Gateway, error) {
	name := string(provider.Wave)
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, provider.ConfigurationError(name, "api_key is required")
	}
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return nil, provider.ConfigurationError(name, "api_key must start with "+APIKeyPrefix)
	}

	g := &Gateway{
		cfg:     cfg,
		country: provider.Country(cfg.Country),
		http:    base.NewHTTPClient(name, deps.HTTPTimeout),
		guard:   base.NewGuard(name, cfg.Country+":"+name, deps),
		validator: base.NewRequestValidator(name,
			base.WithSecureURLs(base.URLSuccess, base.URLError),
		),
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	g.http.SetBaseURL(baseURL)
	return g, nil
}

func (g *Gateway) Name() string { return string(provider.Wave) }

func (g *Gateway) SupportedOperations() []provider.OperationType { return Operations }

func (g *Gateway) authHeaders(extra map[string]string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + g.cfg.APIKey}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func (g *Gateway) check(op provider.OperationType, resp *base.HTTPResponse) error {
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound && op != provider.OpPayment {
		return provider.VerificationError(g.Name(), "checkout session not found", nil)
	}
	return provider.UpstreamError(g.Name(), op, resp.StatusCode, resp.String())
}

func (g *Gateway) getSession(ctx context.Context, op provider.OperationType, endpoint string) (*Session, map[string]any, error) {
	var s Session
	raw, err := base.Call(ctx, g.guard, op, func(ctx context.Context) (map[string]any, error) {
		resp, err := g.http.Get(ctx, endpoint, g.authHeaders(nil))
		if err != nil {
			return nil, provider.RequestFailure(g.Name(), op, "transport error", err)
		}
		if err := g.check(op, resp); err != nil {
			return nil, err
		}
		if err := resp.Decode(&s); err != nil {
			return nil, provider.RequestFailure(g.Name(), op, "malformed response", err)
		}
		return resp.Map(), nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &s, raw, nil
}

func (g *Gateway) withDefaults(req provider.PaymentRequest) provider.PaymentRequest {
	if req.SuccessURL == "" {
		req.SuccessURL = g.cfg.Option("success_url")
	}
	if req.ErrorURL == "" {
		req.ErrorURL = g.cfg.Option("error_url")
	}
	if req.NotifyURL == "" {
		req.NotifyURL = g.cfg.Option("notify_url")
	}
	return req
}

func (g *Gateway) Validate(req provider.PaymentRequest) error {
	req = g.withDefaults(req)
	return g.validator.ValidatePayment(&req)
}

type checkoutRequest struct {
	Amount               string `json:"amount"`
	Currency             string `json:"currency"`
	SuccessURL           string `json:"success_url"`
	ErrorURL             string `json:"error_url"`
	ClientReference      string `json:"client_reference,omitempty"`
	RestrictPayerMobile  string `json:"restrict_payer_mobile,omitempty"`
	AggregatedMerchantID string `json:"aggregated_merchant_id,omitempty"`
}

// Payment opens a checkout session; the payer finishes it in the Wave app
// through PaymentURL.
func (g *Gateway) Payment(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResult, error) {
	req = g.withDefaults(req)
	if err := g.validator.ValidatePayment(&req); err != nil {
		return nil, err
	}
	req.IdempotencyKey = base.EnsureIdempotencyKey(firstNonEmpty(req.IdempotencyKey, req.Options["idempotency_key"]))

	body := checkoutRequest{
		Amount:               base.FormatAmount(req.Amount, req.CurrencyOrDefault()),
		Currency:             req.CurrencyOrDefault(),
		SuccessURL:           req.SuccessURL,
		ErrorURL:             req.ErrorURL,
		ClientReference:      truncate(req.Reference, maxReferenceLen),
		AggregatedMerchantID: firstNonEmpty(req.Options["aggregated_merchant_id"], g.cfg.Option("aggregated_merchant_id")),
	}
	if req.PayerPhone != "" {
		phone, err := base.NewPhoneValidator(g.country).ValidatePhone(g.Name(), req.PayerPhone)
		if err != nil {
			return nil, err
		}
		body.RestrictPayerMobile = "+" + phone
	}

	var s Session
	raw, err := base.Call(ctx, g.guard, provider.OpPayment, func(ctx context.Context) (map[string]any, error) {
		resp, err := g.http.PostJSON(ctx, sessionsEndpoint, body, g.authHeaders(map[string]string{
			"Idempotency-Key": req.IdempotencyKey,
		}))
		if err != nil {
			return nil, provider.RequestFailure(g.Name(), provider.OpPayment, "transport error", err)
		}
		if err := g.check(provider.OpPayment, resp); err != nil {
			return nil, err
		}
		if err := resp.Decode(&s); err != nil {
			return nil, provider.RequestFailure(g.Name(), provider.OpPayment, "malformed response", err)
		}
		return resp.Map(), nil
	})
	if err != nil {
		return nil, err
	}
	if s.ID == "" || s.WaveLaunchURL == "" {
		return nil, provider.RequestFailure(g.Name(), provider.OpPayment, "response is missing id or wave_launch_url", nil)
	}

	base.LogOperation(g.Name(), "payment", map[string]interface{}{
		"country":    g.cfg.Country,
		"reference":  req.Reference,
		"amount":     body.Amount,
		"session_id": s.ID,
	})
	return g.result(&s, req.Reference, req.IdempotencyKey, raw), nil
}

func (g *Gateway) result(s *Session, reference, idempotencyKey string, raw map[string]any) *provider.PaymentResult {
	return &provider.PaymentResult{
		Status:                s.Status(),
		RawStatus:             s.rawStatus(),
		ProviderTransactionID: s.TransactionID,
		ProviderReference:     s.ID,
		Reference:             firstNonEmpty(s.ClientReference, reference),
		PaymentURL:            s.WaveLaunchURL,
		IdempotencyKey:        idempotencyKey,
		Raw:                   raw,
	}
}

// Verify resolves the session by id (ProviderReference), then by Wave
// transaction id, then by client reference (first match).
func (g *Gateway) Verify(ctx context.Context, req provider.VerifyRequest) (*provider.PaymentResult, error) {
	var (
		s   *Session
		raw map[string]any
		err error
	)
	switch {
	case req.ProviderReference != "":
		s, raw, err = g.getSession(ctx, provider.OpVerify, sessionsEndpoint+"/"+url.PathEscape(req.ProviderReference))
	case req.TransactionID != "":
		q := url.Values{"transaction_id": {req.TransactionID}}
		s, raw, err = g.getSession(ctx, provider.OpVerify, sessionsEndpoint+"?"+q.Encode())
	case req.Reference != "":
		var found []Session
		found, err = g.Search(ctx, req.Reference)
		if err == nil && len(found) == 0 {
			err = provider.VerificationError(g.Name(), "no checkout session for client reference "+req.Reference, nil)
		}
		if err == nil {
			s = &found[0]
		}
	default:
		return nil, provider.ValidationError(g.Name(), "one of session id, transaction_id or reference is required")
	}
	if err != nil {
		return nil, err
	}

	res := g.result(s, req.Reference, "", raw)
	base.LogOperation(g.Name(), "verify", map[string]interface{}{
		"country":    g.cfg.Country,
		"session_id": s.ID,
		"raw_status": res.RawStatus,
		"status":     string(res.Status),
	})
	return res, nil
}

type searchResponse struct {
	Result []Session `json:"result"`
}

// Search lists checkout sessions carrying clientReference.
func (g *Gateway) Search(ctx context.Context, clientReference string) ([]Session, error) {
	if strings.TrimSpace(clientReference) == "" {
		return nil, provider.ValidationError(g.Name(), "client reference is required")
	}
	q := url.Values{"client_reference": {clientReference}}
	var out searchResponse
	_, err := base.Call(ctx, g.guard, opSearch, func(ctx context.Context) (struct{}, error) {
		resp, err := g.http.Get(ctx, sessionsEndpoint+"/search?"+q.Encode(), g.authHeaders(nil))
		if err != nil {
			return struct{}{}, provider.RequestFailure(g.Name(), opSearch, "transport error", err)
		}
		if err := g.check(opSearch, resp); err != nil {
			return struct{}{}, err
		}
		if err := resp.Decode(&out); err != nil {
			return struct{}{}, provider.RequestFailure(g.Name(), opSearch, "malformed response", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Refund refunds a completed checkout session.
func (g *Gateway) Refund(ctx context.Context, sessionID string) error {
	return g.sessionAction(ctx, opRefund, sessionID)
}

// Expire closes an open checkout session so it can no longer be paid.
func (g *Gateway) Expire(ctx context.Context, sessionID string) error {
	return g.sessionAction(ctx, opExpire, sessionID)
}

func (g *Gateway) sessionAction(ctx context.Context, op provider.OperationType, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return provider.ValidationError(g.Name(), "session id is required")
	}
	err := g.guard.Run(ctx, op, func(ctx context.Context) error {
		resp, err := g.http.Post(ctx, sessionsEndpoint+"/"+url.PathEscape(sessionID)+"/"+string(op), g.authHeaders(nil))
		if err != nil {
			return provider.RequestFailure(g.Name(), op, "transport error", err)
		}
		return g.check(op, resp)
	})
	if err != nil {
		return err
	}
	base.LogOperation(g.Name(), string(op), map[string]interface{}{
		"country":    g.cfg.Country,
		"session_id": sessionID,
	})
	return nil
}

func (g *Gateway) Transfer(context.Context, provider.TransferRequest) (*provider.PaymentResult, error) {
	return nil, provider.UnsupportedError(g.Name(), provider.OpTransfer)
}

func (g *Gateway) Balance(context.Context, provider.BalanceRequest) (*provider.BalanceResult, error) {
	return nil, provider.UnsupportedError(g.Name(), provider.OpBalance)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
