package orange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"paygate/internal/clock"
	"paygate/internal/config"
	"paygate/internal/provider"
	"paygate/internal/provider/base"
)

const (
	DefaultBaseURL  = "https://api.orange.com"
	tokenEndpoint   = "/oauth/v2/token"
	sandboxCurrency = "OUV"
)

// Operations lists what the Orange WebPay API offers.
var Operations = []provider.OperationType{provider.OpPayment, provider.OpVerify}

// Normalize maps Orange WebPay transaction statuses.
var Normalize = provider.TableNormalizer(map[string]provider.CanonicalStatus{
	"SUCCESS":   provider.StatusCompleted,
	"PENDING":   provider.StatusPending,
	"FAIL":      provider.StatusFailed,
	"FAILED":    provider.StatusFailed,
	"INITIATED": provider.StatusInitiated,
	"EXPIRED":   provider.StatusExpired,
})

// Gateway talks to Orange Money WebPay for one country.
type Gateway struct {
	cfg       config.GatewayCfg
	country   provider.Country
	http      *base.HTTPClient
	tokens    *base.TokenSource
	guard     *base.Guard
	validator *base.RequestValidator
	clock     clock.Clock
}

// New builds the gateway. client_key is the base64 Basic credential,
// client_secret the WebPay merchant key.
func New(cfg config.GatewayCfg, deps base.Deps) (*Gateway, error) {
	name := string(provider.Orange)
	if strings.TrimSpace(cfg.ClientKey) == "" {
		return nil, provider.ConfigurationError(name, "client_key is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, provider.ConfigurationError(name, "client_secret (merchant key) is required")
	}
	country := provider.Country(cfg.Country)
	if country.ISO() == "" {
		return nil, provider.ConfigurationError(name, "unsupported country "+cfg.Country)
	}

	g := &Gateway{
		cfg:     cfg,
		country: country,
		http:    base.NewHTTPClient(name, deps.HTTPTimeout),
		guard:   base.NewGuard(name, cfg.Country+":"+name, deps),
		validator: base.NewRequestValidator(name,
			base.WithSecureURLs(base.URLNotify, base.URLReturn, base.URLCancel),
		),
		clock: deps.Clock,
	}
	if g.clock == nil {
		g.clock = clock.System{}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	g.http.SetBaseURL(baseURL)
	g.tokens = base.NewTokenSource(name, base.TokenGeneratorFunc(g.generateToken), g.clock)
	return g, nil
}

func (g *Gateway) Name() string { return string(provider.Orange) }

func (g *Gateway) SupportedOperations() []provider.OperationType { return Operations }

// HTTPClient exposes the transport, e.g. for tests.
func (g *Gateway) HTTPClient() *base.HTTPClient { return g.http }

func (g *Gateway) endpoint(op string) string {
	if !g.cfg.IsProduction() {
		return "/orange-money-webpay/dev/v1/" + op
	}
	return "/orange-money-webpay/" + g.country.ISO() + "/v1/" + op
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (g *Gateway) generateToken(ctx context.Context) (base.AccessToken, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	resp, err := g.http.PostForm(ctx, tokenEndpoint, form, map[string]string{
		"Authorization": "Basic " + g.cfg.ClientKey,
	})
	if err != nil {
		return base.AccessToken{}, provider.TokenError(g.Name(), "token request failed", err)
	}
	if !resp.IsSuccess() {
		return base.AccessToken{}, provider.TokenError(g.Name(), "token endpoint returned "+http.StatusText(resp.StatusCode), nil)
	}
	var tr tokenResponse
	if err := resp.Decode(&tr); err != nil {
		return base.AccessToken{}, provider.TokenError(g.Name(), "malformed token response", err)
	}
	return base.NewAccessToken(tr.AccessToken, tr.TokenType, tr.ExpiresIn, g.clock.Now()), nil
}

// post sends an authorized JSON request and decodes the reply into out.
func (g *Gateway) post(ctx context.Context, op provider.OperationType, endpoint string, payload, out any) (map[string]any, error) {
	tok, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := g.http.PostJSON(ctx, endpoint, payload, map[string]string{
		"Authorization": tok.Authorization(),
	})
	if err != nil {
		return nil, provider.RequestFailure(g.Name(), op, "transport error", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		g.tokens.Invalidate()
		return nil, provider.TokenError(g.Name(), "access token rejected", nil)
	}
	if !resp.IsSuccess() {
		return nil, provider.UpstreamError(g.Name(), op, resp.StatusCode, resp.String())
	}
	if err := resp.Decode(out); err != nil {
		return nil, provider.RequestFailure(g.Name(), op, "malformed response", err)
	}
	return resp.Map(), nil
}

func (g *Gateway) withDefaults(req provider.PaymentRequest) provider.PaymentRequest {
	if req.NotifyURL == "" {
		req.NotifyURL = g.cfg.Option("notif_url")
	}
	if req.ReturnURL == "" {
		req.ReturnURL = g.cfg.Option("return_url")
	}
	if req.CancelURL == "" {
		req.CancelURL = g.cfg.Option("cancel_url")
	}
	return req
}

func (g *Gateway) Validate(req provider.PaymentRequest) error {
	req = g.withDefaults(req)
	return g.validator.ValidatePayment(&req)
}

type webPaymentRequest struct {
	MerchantKey string      `json:"merchant_key"`
	Currency    string      `json:"currency"`
	OrderID     string      `json:"order_id"`
	Amount      json.Number `json:"amount"`
	ReturnURL   string      `json:"return_url"`
	CancelURL   string      `json:"cancel_url"`
	NotifURL    string      `json:"notif_url"`
	Lang        string      `json:"lang"`
	Reference   string      `json:"reference"`
}

type webPaymentResponse struct {
	PaymentURL string `json:"payment_url"`
	PayToken   string `json:"pay_token"`
	NotifToken string `json:"notif_token"`
}

// Payment creates a WebPay session. The customer completes it at
// PaymentURL, so the result starts as initiated.
func (g *Gateway) Payment(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResult, error) {
	req = g.withDefaults(req)
	if err := g.validator.ValidatePayment(&req); err != nil {
		return nil, err
	}
	req.IdempotencyKey = base.EnsureIdempotencyKey(req.IdempotencyKey)

	currency := req.CurrencyOrDefault()
	if !g.cfg.IsProduction() {
		currency = sandboxCurrency
	}
	lang := req.Options["lang"]
	if lang == "" {
		lang = "fr"
	}
	payload := webPaymentRequest{
		MerchantKey: g.cfg.ClientSecret,
		Currency:    currency,
		OrderID:     req.Reference,
		Amount:      json.Number(base.FormatAmount(req.Amount, req.CurrencyOrDefault())),
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
		NotifURL:    req.NotifyURL,
		Lang:        lang,
		Reference:   req.Reference,
	}

	var out webPaymentResponse
	raw, err := base.Call(ctx, g.guard, provider.OpPayment, func(ctx context.Context) (map[string]any, error) {
		return g.post(ctx, provider.OpPayment, g.endpoint("webpayment"), payload, &out)
	})
	if err != nil {
		return nil, err
	}
	if out.PaymentURL == "" || out.PayToken == "" {
		return nil, provider.RequestFailure(g.Name(), provider.OpPayment, "response is missing payment_url or pay_token", nil)
	}

	base.LogOperation(g.Name(), "payment", map[string]interface{}{
		"country":   g.cfg.Country,
		"reference": req.Reference,
		"amount":    req.Amount.String(),
		"pay_token": out.PayToken,
	})
	return &provider.PaymentResult{
		Status:                provider.StatusInitiated,
		ProviderTransactionID: out.PayToken,
		ProviderReference:     out.NotifToken,
		Reference:             req.Reference,
		PaymentURL:            out.PaymentURL,
		IdempotencyKey:        req.IdempotencyKey,
		Raw:                   raw,
	}, nil
}

type transactionStatusRequest struct {
	OrderID  string      `json:"order_id"`
	Amount   json.Number `json:"amount"`
	PayToken string      `json:"pay_token"`
}

type transactionStatusResponse struct {
	Status     string `json:"status"`
	NotifToken string `json:"notif_token"`
	TxnID      string `json:"txnid"`
}

// Verify needs the order id (Reference), the pay token (TransactionID) and
// the amount of the payment, formatted in the payment's currency.
func (g *Gateway) Verify(ctx context.Context, req provider.VerifyRequest) (*provider.PaymentResult, error) {
	if req.Empty() {
		return nil, provider.ValidationError(g.Name(), "an identifier is required")
	}
	if req.Reference == "" || req.TransactionID == "" {
		return nil, provider.ValidationError(g.Name(), "reference (order_id) and transaction_id (pay_token) are required")
	}
	if !req.Amount.IsPositive() {
		return nil, provider.ValidationError(g.Name(), "amount is required to verify an Orange transaction")
	}

	payload := transactionStatusRequest{
		OrderID:  req.Reference,
		Amount:   json.Number(base.FormatAmount(req.Amount, req.CurrencyOrDefault())),
		PayToken: req.TransactionID,
	}
	var out transactionStatusResponse
	raw, err := base.Call(ctx, g.guard, provider.OpVerify, func(ctx context.Context) (map[string]any, error) {
		return g.post(ctx, provider.OpVerify, g.endpoint("transactionstatus"), payload, &out)
	})
	if err != nil {
		return nil, err
	}
	if out.Status == "" {
		return nil, provider.VerificationError(g.Name(), "response carries no status", nil)
	}

	status := Normalize(out.Status)
	base.LogOperation(g.Name(), "verify", map[string]interface{}{
		"country":    g.cfg.Country,
		"reference":  req.Reference,
		"raw_status": out.Status,
		"status":     string(status),
	})
	return &provider.PaymentResult{
		Status:                status,
		RawStatus:             out.Status,
		ProviderTransactionID: req.TransactionID,
		ProviderReference:     firstNonEmpty(out.TxnID, out.NotifToken),
		Reference:             req.Reference,
		Raw:                   raw,
	}, nil
}

func (g *Gateway) Transfer(context.Context, provider.TransferRequest) (*provider.PaymentResult, error) {
	return nil, provider.UnsupportedError(g.Name(), provider.OpTransfer)
}

func (g *Gateway) Balance(context.Context, provider.BalanceRequest) (*provider.BalanceResult, error) {
	return nil, provider.UnsupportedError(g.Name(), provider.OpBalance)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
