// Package catalog lists which gateway serves each (country, provider) pair.
package catalog

import (
	"paygate/internal/config"
	"paygate/internal/provider"
	"paygate/internal/provider/base"
	"paygate/internal/provider/mtn"
	"paygate/internal/provider/orange"
	"paygate/internal/provider/unavailable"
	"paygate/internal/provider/wave"
)

func orangeDescriptor(country provider.Country, deps base.Deps) provider.Descriptor {
	return provider.Descriptor{
		Country:    country,
		Provider:   provider.Orange,
		Name:       "Orange Money WebPay",
		Operations: orange.Operations,
		Factory: func(cfg config.GatewayCfg) (provider.Gateway, error) {
			return orange.New(cfg, deps)
		},
	}
}

func waveDescriptor(country provider.Country, deps base.Deps) provider.Descriptor {
	return provider.Descriptor{
		Country:    country,
		Provider:   provider.Wave,
		Name:       "Wave Checkout",
		Operations: wave.Operations,
		Factory: func(cfg config.GatewayCfg) (provider.Gateway, error) {
			return wave.New(cfg, deps)
		},
	}
}

func unavailableDescriptor(country provider.Country, code provider.Code, product string) provider.Descriptor {
	return provider.Descriptor{
		Country:  country,
		Provider: code,
		Name:     product,
		Factory: func(cfg config.GatewayCfg) (provider.Gateway, error) {
			return unavailable.New(code, product, cfg), nil
		},
	}
}

// IvoryCoast returns the gateways available in Côte d'Ivoire.
func IvoryCoast(deps base.Deps) []provider.Descriptor {
	c := provider.CountryIvoryCoast
	return []provider.Descriptor{
		orangeDescriptor(c, deps),
		{
			Country:    c,
			Provider:   provider.MTN,
			Name:       "MTN Mobile Money",
			Operations: mtn.Operations,
			Factory: func(cfg config.GatewayCfg) (provider.Gateway, error) {
				return mtn.New(cfg, deps)
			},
		},
		unavailableDescriptor(c, provider.Moov, "Moov Money (Flooz)"),
		waveDescriptor(c, deps),
		unavailableDescriptor(c, provider.Djamo, "Djamo"),
	}
}

// Senegal returns the gateways available in Senegal.
func Senegal(deps base.Deps) []provider.Descriptor {
	c := provider.CountrySenegal
	return []provider.Descriptor{
		orangeDescriptor(c, deps),
		waveDescriptor(c, deps),
	}
}

// All returns every descriptor.
func All(deps base.Deps) []provider.Descriptor {
	return append(IvoryCoast(deps), Senegal(deps)...)
}

// NewRegistry builds a registry holding every known gateway.
func NewRegistry(cfg config.Cfg, deps base.Deps) *provider.Registry {
	return provider.NewProviderRegistry(cfg, All(deps)...)
}
