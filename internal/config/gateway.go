package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// GatewayCfg is the configuration slice handed to a single provider gateway.
// Secrets never appear in its String or log output.
type GatewayCfg struct {
	Country  string `mapstructure:"-"`
	Provider string `mapstructure:"-"`

	Environment     string            `mapstructure:"environment"` // sandbox | production
	BaseURL         string            `mapstructure:"base_url"`
	ClientKey       string            `mapstructure:"client_key"`
	ClientSecret    string            `mapstructure:"client_secret"`
	SubscriptionKey string            `mapstructure:"subscription_key"`
	APIUser         string            `mapstructure:"api_user"`
	APIKey          string            `mapstructure:"api_key"`
	WebhookSecret   string            `mapstructure:"webhook_secret"`
	Options         map[string]string `mapstructure:"options"`
}

const redacted = "***"

func (g GatewayCfg) IsProduction() bool {
	return strings.EqualFold(g.Environment, "production") || strings.EqualFold(g.Environment, "live")
}

// Option returns a named option (callback URLs and similar).
func (g GatewayCfg) Option(name string) string {
	if g.Options == nil {
		return ""
	}
	return strings.TrimSpace(g.Options[name])
}

func (g *GatewayCfg) secretFields() []*string {
	return []*string{&g.ClientKey, &g.ClientSecret, &g.SubscriptionKey, &g.APIUser, &g.APIKey, &g.WebhookSecret}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

func (g GatewayCfg) String() string {
	return fmt.Sprintf("GatewayCfg{country=%s provider=%s env=%s base_url=%s client_key=%s client_secret=%s subscription_key=%s api_user=%s api_key=%s webhook_secret=%s options=%v}",
		g.Country, g.Provider, g.Environment, g.BaseURL,
		mask(g.ClientKey), mask(g.ClientSecret), mask(g.SubscriptionKey),
		mask(g.APIUser), mask(g.APIKey), mask(g.WebhookSecret), g.Options)
}

func (g GatewayCfg) GoString() string { return g.String() }

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (g GatewayCfg) MarshalZerologObject(e *zerolog.Event) {
	e.Str("country", g.Country).
		Str("provider", g.Provider).
		Str("environment", g.Environment).
		Str("base_url", g.BaseURL).
		Str("client_key", mask(g.ClientKey)).
		Str("client_secret", mask(g.ClientSecret)).
		Str("subscription_key", mask(g.SubscriptionKey)).
		Str("api_user", mask(g.APIUser)).
		Str("api_key", mask(g.APIKey)).
		Str("webhook_secret", mask(g.WebhookSecret))
}

// Countries and providers whose secrets may be supplied through the
// environment, e.g. COUNTRIES_IVORY_COAST_WAVE_API_KEY.
var (
	envCountries = []string{"ivory_coast", "senegal"}
	envProviders = []string{"orange", "mtn", "moov", "wave", "djamo"}
	envFields    = []string{"environment", "base_url", "client_key", "client_secret", "subscription_key", "api_user", "api_key", "webhook_secret"}
)

func bindGatewayEnv(v *viper.Viper) {
	for _, country := range envCountries {
		for _, p := range envProviders {
			for _, f := range envFields {
				_ = v.BindEnv("countries." + country + "." + p + "." + f)
			}
		}
	}
}
