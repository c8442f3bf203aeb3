package provider

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"paygate/internal/config"
)

// Processor is the facade over a single active gateway. Use replaces the
// active gateway; every operation delegates to whichever is active.
type Processor struct {
	reg *Registry

	mu      sync.RWMutex
	active  Gateway
	country string
	code    string
}

func NewProcessor(reg *Registry) *Processor {
	return &Processor{reg: reg}
}

// Use resolves a pair and makes its gateway the active one.
func (p *Processor) Use(country, code string) (Gateway, error) {
	gw, err := p.reg.Resolve(country, code)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.active = gw
	p.country = country
	p.code = code
	p.mu.Unlock()

	log.Info().Str("country", country).Str("provider", code).Msg("active gateway switched")
	return gw, nil
}

// UseDefault activates the configured default pair, if any.
func (p *Processor) UseDefault(d config.DefaultCfg) error {
	if d.Country == "" || d.Provider == "" {
		return nil
	}
	_, err := p.Use(d.Country, d.Provider)
	return err
}

// Active returns the active gateway and its pair.
func (p *Processor) Active() (Gateway, string, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.active == nil {
		return nil, "", "", ConfigurationError("", "no gateway selected; call Use first")
	}
	return p.active, p.country, p.code, nil
}

func (p *Processor) gateway() (Gateway, error) {
	gw, _, _, err := p.Active()
	return gw, err
}

func (p *Processor) Payment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	gw, err := p.gateway()
	if err != nil {
		return nil, err
	}
	return gw.Payment(ctx, req)
}

func (p *Processor) Transfer(ctx context.Context, req TransferRequest) (*PaymentResult, error) {
	gw, err := p.gateway()
	if err != nil {
		return nil, err
	}
	if !Supports(gw.SupportedOperations(), OpTransfer) {
		return nil, UnsupportedError(gw.Name(), OpTransfer)
	}
	return gw.Transfer(ctx, req)
}

func (p *Processor) Balance(ctx context.Context, req BalanceRequest) (*BalanceResult, error) {
	gw, err := p.gateway()
	if err != nil {
		return nil, err
	}
	if !Supports(gw.SupportedOperations(), OpBalance) {
		return nil, UnsupportedError(gw.Name(), OpBalance)
	}
	return gw.Balance(ctx, req)
}

func (p *Processor) Verify(ctx context.Context, req VerifyRequest) (*PaymentResult, error) {
	gw, err := p.gateway()
	if err != nil {
		return nil, err
	}
	return gw.Verify(ctx, req)
}

func (p *Processor) Validate(req PaymentRequest) error {
	gw, err := p.gateway()
	if err != nil {
		return err
	}
	return gw.Validate(req)
}
