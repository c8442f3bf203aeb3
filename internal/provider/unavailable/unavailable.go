// Package unavailable provides the gateway for providers whose public API is
// not integrated yet. It satisfies the contract and fails every call.
package unavailable

import (
	"context"
	"fmt"

	"paygate/internal/config"
	"paygate/internal/provider"
	"paygate/internal/provider/base"
)

type Gateway struct {
	code      provider.Code
	product   string
	validator *base.RequestValidator
}

// New returns a gateway for code; product is the commercial name used in
// error messages (e.g. "Moov Money (Flooz)").
func New(code provider.Code, product string, _ config.GatewayCfg) *Gateway {
	return &Gateway{
		code:      code,
		product:   product,
		validator: base.NewRequestValidator(string(code)),
	}
}

func (g *Gateway) Name() string { return string(g.code) }

func (g *Gateway) SupportedOperations() []provider.OperationType { return nil }

func (g *Gateway) fail(op provider.OperationType) error {
	return provider.RequestFailure(g.Name(), op, fmt.Sprintf("%s %s is not yet implemented", g.product, op), nil)
}

func (g *Gateway) Payment(context.Context, provider.PaymentRequest) (*provider.PaymentResult, error) {
	return nil, g.fail(provider.OpPayment)
}

func (g *Gateway) Transfer(context.Context, provider.TransferRequest) (*provider.PaymentResult, error) {
	return nil, g.fail(provider.OpTransfer)
}

func (g *Gateway) Balance(context.Context, provider.BalanceRequest) (*provider.BalanceResult, error) {
	return nil, g.fail(provider.OpBalance)
}

func (g *Gateway) Verify(context.Context, provider.VerifyRequest) (*provider.PaymentResult, error) {
	return nil, g.fail(provider.OpVerify)
}

func (g *Gateway) Validate(req provider.PaymentRequest) error {
	return g.validator.ValidatePayment(&req)
}
