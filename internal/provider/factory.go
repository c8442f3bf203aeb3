package provider

import "paygate/internal/config"

// NewProviderRegistry creates a registry preloaded with descriptors.
func NewProviderRegistry(cfg config.Cfg, descriptors ...Descriptor) *Registry {
	registry := NewRegistry(cfg)
	for _, d := range descriptors {
		registry.Register(d)
	}
	return registry
}

// GetAvailableProviders returns every provider code the module knows about.
func GetAvailableProviders() []Code {
	return []Code{Orange, MTN, Moov, Wave, Djamo}
}

// IsProviderSupported checks if a provider code is known
func IsProviderSupported(code string) bool {
	for _, available := range GetAvailableProviders() {
		if string(available) == code {
			return true
		}
	}
	return false
}

// GetAvailableCountries returns every country with a provider catalog.
func GetAvailableCountries() []Country {
	return []Country{CountryIvoryCoast, CountrySenegal}
}

func IsCountrySupported(country string) bool {
	for _, c := range GetAvailableCountries() {
		if string(c) == country {
			return true
		}
	}
	return false
}
