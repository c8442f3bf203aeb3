package provider

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"paygate/internal/config"
)

type pairKey struct {
	country Country
	code    Code
}

// Registry maps (country, provider) pairs to gateway factories and caches
// the gateways it has built.
type Registry struct {
	descriptors map[pairKey]Descriptor
	gateways    map[pairKey]Gateway
	cfg         config.Cfg
	mu          sync.RWMutex
}

// NewRegistry creates an empty registry over the loaded configuration.
func NewRegistry(cfg config.Cfg) *Registry {
	return &Registry{
		descriptors: make(map[pairKey]Descriptor),
		gateways:    make(map[pairKey]Gateway),
		cfg:         cfg,
	}
}

// Register adds a descriptor, replacing any previous one for the same pair.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := pairKey{d.Country, d.Provider}
	r.descriptors[k] = d
	delete(r.gateways, k)
	log.Debug().
		Str("country", string(d.Country)).
		Str("provider", string(d.Provider)).
		Strs("operations", operationTypesToStrings(d.Operations)).
		Msg("registered gateway descriptor")
}

// Lookup returns the descriptor for a pair.
func (r *Registry) Lookup(country, code string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[pairKey{Country(country), Code(code)}]
	return d, ok
}

// Resolve returns the gateway for a pair, building it on first use.
func (r *Registry) Resolve(country, code string) (Gateway, error) {
	k := pairKey{Country(country), Code(code)}

	r.mu.RLock()
	if gw, ok := r.gateways[k]; ok {
		r.mu.RUnlock()
		return gw, nil
	}
	d, ok := r.descriptors[k]
	r.mu.RUnlock()
	if !ok {
		return nil, InvalidProviderError(country, code)
	}

	gc, ok := r.cfg.Gateway(country, code)
	if !ok {
		gc = config.GatewayCfg{Country: country, Provider: code}
	}

	gw, err := d.Factory(gc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.gateways[k]; ok {
		return existing, nil
	}
	r.gateways[k] = gw
	log.Info().
		Str("country", country).
		Str("provider", code).
		Str("name", gw.Name()).
		Msg("gateway constructed")
	return gw, nil
}

// Warm builds every configured pair so configuration errors surface at
// startup instead of on first request.
func (r *Registry) Warm() error {
	for country, providers := range r.cfg.Countries {
		for code := range providers {
			if _, ok := r.Lookup(country, code); !ok {
				log.Warn().Str("country", country).Str("provider", code).Msg("configured provider has no gateway; ignored")
				continue
			}
			if _, err := r.Resolve(country, code); err != nil {
				return err
			}
		}
	}
	return nil
}

// Describe lists registered descriptors ordered by country then provider.
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		return out[i].Provider < out[j].Provider
	})
	return out
}
