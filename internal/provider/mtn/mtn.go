package mtn

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paygate/internal/clock"
	"paygate/internal/config"
	"paygate/internal/provider"
	"paygate/internal/provider/base"
)

const (
	SandboxBaseURL    = "https://sandbox.momodeveloper.mtn.com"
	ProductionBaseURL = "https://momodeveloper.mtn.com"

	tokenEndpoint   = "/collection/token/"
	requestToPay    = "/collection/v1_0/requesttopay"
	balanceEndpoint = "/collection/v1_0/account/balance"
)

// Operations: the Collection API has no disbursement.
var Operations = []provider.OperationType{provider.OpPayment, provider.OpVerify, provider.OpBalance}

// Normalize maps MoMo request-to-pay statuses.
var Normalize = provider.TableNormalizer(map[string]provider.CanonicalStatus{
	"SUCCESSFUL": provider.StatusCompleted,
	"PENDING":    provider.StatusPending,
	"FAILED":     provider.StatusFailed,
	"REJECTED":   provider.StatusFailed,
	"EXPIRED":    provider.StatusExpired,
	"TIMEOUT":    provider.StatusExpired,
	"CREATED":    provider.StatusInitiated,
})

// Gateway is the MTN MoMo Collection gateway.
type Gateway struct {
	cfg       config.GatewayCfg
	http      *base.HTTPClient
	tokens    *base.TokenSource
	guard     *base.Guard
	validator *base.RequestValidator
	clock     clock.Clock
}

func New(cfg config.GatewayCfg, deps base.Deps) (*Gateway, error) {
	name := string(provider.MTN)
	for field, v := range map[string]string{
		"subscription_key": cfg.SubscriptionKey,
		"api_user":         cfg.APIUser,
		"api_key":          cfg.APIKey,
	} {
		if strings.TrimSpace(v) == "" {
			return nil, provider.ConfigurationError(name, field+" is required")
		}
	}
	country := provider.Country(cfg.Country)
	if country.DialCode() == "" {
		return nil, provider.ConfigurationError(name, "unsupported country "+cfg.Country)
	}

	g := &Gateway{
		cfg:   cfg,
		http:  base.NewHTTPClient(name, deps.HTTPTimeout),
		guard: base.NewGuard(name, cfg.Country+":"+name, deps),
		validator: base.NewRequestValidator(name,
			base.WithPayerPhone(country),
		),
		clock: deps.Clock,
	}
	if g.clock == nil {
		g.clock = clock.System{}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = SandboxBaseURL
		if cfg.IsProduction() {
			baseURL = ProductionBaseURL
		}
	}
	g.http.SetBaseURL(baseURL)
	g.tokens = base.NewTokenSource(name, base.TokenGeneratorFunc(g.generateToken), g.clock)
	return g, nil
}

func (g *Gateway) Name() string { return string(provider.MTN) }

func (g *Gateway) SupportedOperations() []provider.OperationType { return Operations }

func (g *Gateway) targetEnvironment() string {
	if g.cfg.IsProduction() {
		return "live"
	}
	return "sandbox"
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (g *Gateway) generateToken(ctx context.Context) (base.AccessToken, error) {
	basic := base64.StdEncoding.EncodeToString([]byte(g.cfg.APIUser + ":" + g.cfg.APIKey))
	resp, err := g.http.Post(ctx, tokenEndpoint, map[string]string{
		"Authorization":             "Basic " + basic,
		"Ocp-Apim-Subscription-Key": g.cfg.SubscriptionKey,
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

func (g *Gateway) headers(ctx context.Context, extra map[string]string) (map[string]string, error) {
	tok, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	h := map[string]string{
		"Authorization":             tok.Authorization(),
		"X-Target-Environment":      g.targetEnvironment(),
		"Ocp-Apim-Subscription-Key": g.cfg.SubscriptionKey,
	}
	for k, v := range extra {
		h[k] = v
	}
	return h, nil
}

func (g *Gateway) check(op provider.OperationType, resp *base.HTTPResponse) error {
	if resp.StatusCode == http.StatusUnauthorized {
		g.tokens.Invalidate()
		return provider.TokenError(g.Name(), "access token rejected", nil)
	}
	if !resp.IsSuccess() {
		return provider.UpstreamError(g.Name(), op, resp.StatusCode, resp.String())
	}
	return nil
}

func (g *Gateway) Validate(req provider.PaymentRequest) error {
	return g.validator.ValidatePayment(&req)
}

type party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type requestToPayBody struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        party  `json:"payer"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

// referenceID returns key when it is a UUID; MoMo rejects anything else.
func referenceID(key string) string {
	if _, err := uuid.Parse(key); err == nil {
		return key
	}
	return uuid.NewString()
}

// Payment submits a request-to-pay. MoMo answers 202 and the payer
// confirms on their handset, so the result is pending.
func (g *Gateway) Payment(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResult, error) {
	if err := g.validator.ValidatePayment(&req); err != nil {
		return nil, err
	}
	refID := referenceID(base.EnsureIdempotencyKey(req.IdempotencyKey))

	payerMessage := req.Description
	if payerMessage == "" {
		payerMessage = "Payment"
	}
	payeeNote := req.Options["payee_note"]
	if payeeNote == "" {
		payeeNote = "Payment received"
	}
	body := requestToPayBody{
		Amount:       base.FormatAmount(req.Amount, req.CurrencyOrDefault()),
		Currency:     req.CurrencyOrDefault(),
		ExternalID:   req.Reference,
		Payer:        party{PartyIDType: "MSISDN", PartyID: req.PayerPhone},
		PayerMessage: payerMessage,
		PayeeNote:    payeeNote,
	}

	err := g.guard.Run(ctx, provider.OpPayment, func(ctx context.Context) error {
		extra := map[string]string{"X-Reference-Id": refID}
		if cb := firstNonEmpty(req.NotifyURL, g.cfg.Option("callback_url")); cb != "" {
			extra["X-Callback-Url"] = cb
		}
		h, err := g.headers(ctx, extra)
		if err != nil {
			return err
		}
		resp, err := g.http.PostJSON(ctx, requestToPay, body, h)
		if err != nil {
			return provider.RequestFailure(g.Name(), provider.OpPayment, "transport error", err)
		}
		return g.check(provider.OpPayment, resp)
	})
	if err != nil {
		return nil, err
	}

	base.LogOperation(g.Name(), "payment", map[string]interface{}{
		"reference":    req.Reference,
		"reference_id": refID,
		"amount":       body.Amount,
	})
	return &provider.PaymentResult{
		Status:                provider.StatusPending,
		RawStatus:             "PENDING",
		ProviderTransactionID: refID,
		Reference:             req.Reference,
		IdempotencyKey:        refID,
	}, nil
}

type requestToPayStatus struct {
	Amount                 string `json:"amount"`
	Currency               string `json:"currency"`
	FinancialTransactionID string `json:"financialTransactionId"`
	ExternalID             string `json:"externalId"`
	Status                 string `json:"status"`
	Reason                 any    `json:"reason"`
}

// Verify looks a request-to-pay up by its X-Reference-Id, given as
// TransactionID or ProviderReference.
func (g *Gateway) Verify(ctx context.Context, req provider.VerifyRequest) (*provider.PaymentResult, error) {
	refID := firstNonEmpty(req.TransactionID, req.ProviderReference)
	if refID == "" {
		return nil, provider.ValidationError(g.Name(), "transaction_id (X-Reference-Id) is required")
	}

	var st requestToPayStatus
	raw, err := base.Call(ctx, g.guard, provider.OpVerify, func(ctx context.Context) (map[string]any, error) {
		h, err := g.headers(ctx, nil)
		if err != nil {
			return nil, err
		}
		resp, err := g.http.Get(ctx, requestToPay+"/"+url.PathEscape(refID), h)
		if err != nil {
			return nil, provider.RequestFailure(g.Name(), provider.OpVerify, "transport error", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, provider.VerificationError(g.Name(), "unknown reference "+refID, nil)
		}
		if err := g.check(provider.OpVerify, resp); err != nil {
			return nil, err
		}
		if err := resp.Decode(&st); err != nil {
			return nil, provider.RequestFailure(g.Name(), provider.OpVerify, "malformed response", err)
		}
		return resp.Map(), nil
	})
	if err != nil {
		return nil, err
	}
	if st.Status == "" {
		return nil, provider.VerificationError(g.Name(), "response carries no status", nil)
	}

	status := Normalize(st.Status)
	base.LogOperation(g.Name(), "verify", map[string]interface{}{
		"reference_id": refID,
		"raw_status":   st.Status,
		"status":       string(status),
	})
	return &provider.PaymentResult{
		Status:                status,
		RawStatus:             st.Status,
		ProviderTransactionID: refID,
		ProviderReference:     st.FinancialTransactionID,
		Reference:             firstNonEmpty(st.ExternalID, req.Reference),
		Raw:                   raw,
	}, nil
}

type balanceResponse struct {
	AvailableBalance string `json:"availableBalance"`
	Currency         string `json:"currency"`
}

func (g *Gateway) Balance(ctx context.Context, _ provider.BalanceRequest) (*provider.BalanceResult, error) {
	var br balanceResponse
	raw, err := base.Call(ctx, g.guard, provider.OpBalance, func(ctx context.Context) (map[string]any, error) {
		h, err := g.headers(ctx, nil)
		if err != nil {
			return nil, err
		}
		resp, err := g.http.Get(ctx, balanceEndpoint, h)
		if err != nil {
			return nil, provider.RequestFailure(g.Name(), provider.OpBalance, "transport error", err)
		}
		if err := g.check(provider.OpBalance, resp); err != nil {
			return nil, err
		}
		if err := resp.Decode(&br); err != nil {
			return nil, provider.RequestFailure(g.Name(), provider.OpBalance, "malformed response", err)
		}
		return resp.Map(), nil
	})
	if err != nil {
		return nil, err
	}

	available, err := decimal.NewFromString(br.AvailableBalance)
	if err != nil {
		return nil, provider.RequestFailure(g.Name(), provider.OpBalance, "invalid availableBalance "+br.AvailableBalance, err)
	}
	return &provider.BalanceResult{Available: available, Currency: br.Currency, Raw: raw}, nil
}

func (g *Gateway) Transfer(context.Context, provider.TransferRequest) (*provider.PaymentResult, error) {
	return nil, provider.UnsupportedError(g.Name(), provider.OpTransfer)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
