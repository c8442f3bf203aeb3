package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/config"
	"paygate/internal/provider"
	"paygate/internal/provider/base"
)

func testCfg() config.Cfg {
	return config.Cfg{Countries: map[string]map[string]config.GatewayCfg{
		"ivory_coast": {
			"orange": {ClientKey: "k", ClientSecret: "m"},
			"mtn":    {SubscriptionKey: "s", APIUser: "u", APIKey: "k"},
			"wave":   {APIKey: "wave_ci_key"},
		},
		"senegal": {
			"wave": {APIKey: "wave_sn_key"},
		},
	}}
}

func TestCatalogPairs(t *testing.T) {
	reg := NewRegistry(testCfg(), base.Deps{})

	var pairs []string
	for _, d := range reg.Describe() {
		pairs = append(pairs, string(d.Country)+"/"+string(d.Provider))
	}
	assert.Equal(t, []string{
		"ivory_coast/djamo", "ivory_coast/moov", "ivory_coast/mtn", "ivory_coast/orange", "ivory_coast/wave",
		"senegal/orange", "senegal/wave",
	}, pairs)

	_, err := reg.Resolve("senegal", "mtn")
	assert.Equal(t, provider.KindInvalidProvider, provider.KindOf(err))
}

func TestResolveBuildsConcreteGateways(t *testing.T) {
	reg := NewRegistry(testCfg(), base.Deps{})
	require.NoError(t, reg.Warm())

	for _, code := range []string{"orange", "mtn", "wave", "moov", "djamo"} {
		gw, err := reg.Resolve("ivory_coast", code)
		require.NoError(t, err, code)
		assert.Equal(t, code, gw.Name())
	}

	// the same implementation serves senegal with its own slice
	gw, err := reg.Resolve("senegal", "wave")
	require.NoError(t, err)
	assert.Equal(t, "wave", gw.Name())
}

func TestMissingCredentialsFailAtResolution(t *testing.T) {
	reg := NewRegistry(config.Cfg{}, base.Deps{})
	_, err := reg.Resolve("senegal", "orange")
	assert.Equal(t, provider.KindConfiguration, provider.KindOf(err))

	cfg := testCfg()
	cfg.Countries["senegal"]["wave"] = config.GatewayCfg{APIKey: "not-a-wave-key"}
	err = NewRegistry(cfg, base.Deps{}).Warm()
	assert.Equal(t, provider.KindConfiguration, provider.KindOf(err))
}

func TestProcessorUnsupportedForUnavailableProviders(t *testing.T) {
	p := provider.NewProcessor(NewRegistry(testCfg(), base.Deps{}))
	_, err := p.Use("ivory_coast", "moov")
	require.NoError(t, err)

	_, err = p.Balance(context.Background(), provider.BalanceRequest{})
	assert.Equal(t, provider.KindUnsupportedOperation, provider.KindOf(err))
	_, err = p.Payment(context.Background(), provider.PaymentRequest{Reference: "r"})
	assert.Equal(t, provider.KindRequestFailure, provider.KindOf(err))
}
