package provider

import (
	"context"

	"paygate/internal/config"
)

// Gateway is the uniform contract every mobile-money provider satisfies.
type Gateway interface {
	Name() string
	SupportedOperations() []OperationType

	Payment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*PaymentResult, error)
	Balance(ctx context.Context, req BalanceRequest) (*BalanceResult, error)
	Verify(ctx context.Context, req VerifyRequest) (*PaymentResult, error)

	// Validate fails with KindInputValidation without touching the network.
	Validate(req PaymentRequest) error
}

// Factory builds a gateway from its configuration slice. Missing mandatory
// settings are reported as KindConfiguration.
type Factory func(cfg config.GatewayCfg) (Gateway, error)

// Descriptor binds a (country, provider) pair to its factory.
type Descriptor struct {
	Country    Country         `json:"country"`
	Provider   Code            `json:"provider"`
	Name       string          `json:"name"`
	Operations []OperationType `json:"supported_operations"`
	Factory    Factory         `json:"-"`
}

// Supports reports whether op is in ops.
func Supports(ops []OperationType, op OperationType) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func operationTypesToStrings(ops []OperationType) []string {
	strs := make([]string, 0, len(ops))
	for _, op := range ops {
		strs = append(strs, string(op))
	}
	return strs
}
