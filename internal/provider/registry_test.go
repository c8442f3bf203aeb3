package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/config"
)

type stubGateway struct {
	name string
	ops  []OperationType
	cfg  config.GatewayCfg

	transfers int
}

func (s *stubGateway) Name() string                         { return s.name }
func (s *stubGateway) SupportedOperations() []OperationType { return s.ops }
func (s *stubGateway) Validate(PaymentRequest) error        { return nil }

func (s *stubGateway) Payment(_ context.Context, req PaymentRequest) (*PaymentResult, error) {
	return &PaymentResult{Status: StatusInitiated, Reference: req.Reference, ProviderTransactionID: s.name + "-tx"}, nil
}

func (s *stubGateway) Transfer(context.Context, TransferRequest) (*PaymentResult, error) {
	s.transfers++
	return &PaymentResult{Status: StatusPending}, nil
}

func (s *stubGateway) Balance(context.Context, BalanceRequest) (*BalanceResult, error) {
	return &BalanceResult{Currency: "XOF"}, nil
}

func (s *stubGateway) Verify(_ context.Context, req VerifyRequest) (*PaymentResult, error) {
	return &PaymentResult{Status: StatusCompleted, Reference: req.Reference}, nil
}

func stubDescriptor(country Country, code Code, ops []OperationType, builds *int) Descriptor {
	return Descriptor{
		Country:    country,
		Provider:   code,
		Name:       string(code),
		Operations: ops,
		Factory: func(cfg config.GatewayCfg) (Gateway, error) {
			if builds != nil {
				*builds++
			}
			return &stubGateway{name: string(code), ops: ops, cfg: cfg}, nil
		},
	}
}

func testConfig() config.Cfg {
	return config.Cfg{
		Countries: map[string]map[string]config.GatewayCfg{
			"ivory_coast": {
				"orange": {ClientKey: "ck", ClientSecret: "cs"},
				"wave":   {APIKey: "wave_key"},
			},
		},
	}
}

func TestRegistryResolveUnknownPair(t *testing.T) {
	reg := NewProviderRegistry(testConfig(), stubDescriptor(CountryIvoryCoast, Orange, nil, nil))

	_, err := reg.Resolve("ivory_coast", "paypal")
	require.Error(t, err)
	assert.Equal(t, KindInvalidProvider, KindOf(err))
	assert.Contains(t, err.Error(), `unknown provider "paypal"`)

	_, err = reg.Resolve("ghana", "orange")
	assert.True(t, IsKind(err, KindInvalidProvider))
	assert.Contains(t, err.Error(), `unknown country "ghana"`)

	_, err = reg.Resolve("senegal", "orange")
	assert.Contains(t, err.Error(), `provider "orange" is not available in "senegal"`)
}

func TestRegistryResolvePassesConfigSliceAndCaches(t *testing.T) {
	builds := 0
	reg := NewProviderRegistry(testConfig(), stubDescriptor(CountryIvoryCoast, Orange, []OperationType{OpPayment}, &builds))

	gw, err := reg.Resolve("ivory_coast", "orange")
	require.NoError(t, err)
	stub := gw.(*stubGateway)
	assert.Equal(t, "ck", stub.cfg.ClientKey)
	assert.Equal(t, "ivory_coast", stub.cfg.Country)
	assert.Equal(t, "orange", stub.cfg.Provider)

	again, err := reg.Resolve("ivory_coast", "orange")
	require.NoError(t, err)
	assert.Same(t, gw, again)
	assert.Equal(t, 1, builds)
}

func TestRegistryFactoryErrorSurfaces(t *testing.T) {
	reg := NewRegistry(testConfig())
	reg.Register(Descriptor{
		Country:  CountryIvoryCoast,
		Provider: Wave,
		Factory: func(config.GatewayCfg) (Gateway, error) {
			return nil, ConfigurationError("wave", "api_key missing")
		},
	})

	_, err := reg.Resolve("ivory_coast", "wave")
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.Equal(t, KindConfiguration, KindOf(reg.Warm()))
}

func TestRegistryDescribeIsSorted(t *testing.T) {
	reg := NewProviderRegistry(config.Cfg{},
		stubDescriptor(CountrySenegal, Wave, nil, nil),
		stubDescriptor(CountryIvoryCoast, Wave, nil, nil),
		stubDescriptor(CountryIvoryCoast, MTN, nil, nil),
	)
	got := reg.Describe()
	require.Len(t, got, 3)
	assert.Equal(t, MTN, got[0].Provider)
	assert.Equal(t, Wave, got[1].Provider)
	assert.Equal(t, CountrySenegal, got[2].Country)
}

func TestProcessorRequiresSelection(t *testing.T) {
	p := NewProcessor(NewRegistry(config.Cfg{}))

	_, err := p.Payment(context.Background(), PaymentRequest{Reference: "r"})
	assert.Equal(t, KindConfiguration, KindOf(err))
	_, err = p.Verify(context.Background(), VerifyRequest{Reference: "r"})
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestProcessorUseReplacesActiveGateway(t *testing.T) {
	reg := NewProviderRegistry(testConfig(),
		stubDescriptor(CountryIvoryCoast, Orange, []OperationType{OpPayment, OpVerify}, nil),
		stubDescriptor(CountryIvoryCoast, Wave, []OperationType{OpPayment, OpVerify}, nil),
	)
	p := NewProcessor(reg)

	_, err := p.Use("ivory_coast", "orange")
	require.NoError(t, err)
	_, err = p.Use("ivory_coast", "wave")
	require.NoError(t, err)

	gw, country, code, err := p.Active()
	require.NoError(t, err)
	assert.Equal(t, "wave", gw.Name())
	assert.Equal(t, "ivory_coast", country)
	assert.Equal(t, "wave", code)

	res, err := p.Payment(context.Background(), PaymentRequest{Reference: "ord-1"})
	require.NoError(t, err)
	assert.Equal(t, "wave-tx", res.ProviderTransactionID)
}

func TestProcessorUseUnknownKeepsPrevious(t *testing.T) {
	reg := NewProviderRegistry(testConfig(), stubDescriptor(CountryIvoryCoast, Orange, nil, nil))
	p := NewProcessor(reg)
	_, err := p.Use("ivory_coast", "orange")
	require.NoError(t, err)

	_, err = p.Use("ivory_coast", "nope")
	assert.Equal(t, KindInvalidProvider, KindOf(err))

	gw, _, _, err := p.Active()
	require.NoError(t, err)
	assert.Equal(t, "orange", gw.Name())
}

func TestProcessorUnsupportedOperationsDoNotInvokeGateway(t *testing.T) {
	reg := NewProviderRegistry(testConfig(), stubDescriptor(CountryIvoryCoast, Wave, []OperationType{OpPayment, OpVerify}, nil))
	p := NewProcessor(reg)
	gw, err := p.Use("ivory_coast", "wave")
	require.NoError(t, err)

	_, err = p.Transfer(context.Background(), TransferRequest{Reference: "t"})
	assert.Equal(t, KindUnsupportedOperation, KindOf(err))
	_, err = p.Balance(context.Background(), BalanceRequest{})
	assert.Equal(t, KindUnsupportedOperation, KindOf(err))
	assert.Equal(t, 0, gw.(*stubGateway).transfers)
}

func TestProcessorConcurrentUse(t *testing.T) {
	reg := NewProviderRegistry(testConfig(),
		stubDescriptor(CountryIvoryCoast, Orange, nil, nil),
		stubDescriptor(CountryIvoryCoast, Wave, nil, nil),
	)
	p := NewProcessor(reg)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _, _ = p.Use("ivory_coast", "orange") }()
		go func() { defer wg.Done(); _, _ = p.Payment(context.Background(), PaymentRequest{}) }()
	}
	wg.Wait()

	gw, _, _, err := p.Active()
	require.NoError(t, err)
	assert.Equal(t, "orange", gw.Name())
}

func TestErrorKindsAndStatus(t *testing.T) {
	rl := RateLimitError("orange", 1500*time.Millisecond)
	assert.Equal(t, 2, rl.RetryAfterSeconds())
	assert.Equal(t, 429, rl.Kind.HTTPStatus())

	wrapped := errors.Join(errors.New("context"), RequestFailure("mtn", OpPayment, "boom", nil))
	assert.Equal(t, KindRequestFailure, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, KindUnknown))
	assert.Equal(t, 501, UnsupportedError("wave", OpTransfer).Kind.HTTPStatus())
}

func TestTableNormalizerIsCaseInsensitiveAndTotal(t *testing.T) {
	n := TableNormalizer(map[string]CanonicalStatus{"SUCCESS": StatusCompleted})
	assert.Equal(t, StatusCompleted, n("success"))
	assert.Equal(t, StatusCompleted, n(" Success "))
	assert.Equal(t, StatusUnknown, n("???"))
	assert.Equal(t, StatusUnknown, n(""))
}

func TestProcessorUseDefault(t *testing.T) {
	reg := NewProviderRegistry(testConfig(), stubDescriptor(CountryIvoryCoast, Orange, nil, nil))
	p := NewProcessor(reg)

	require.NoError(t, p.UseDefault(config.DefaultCfg{}))
	_, _, _, err := p.Active()
	assert.Equal(t, KindConfiguration, KindOf(err))

	require.NoError(t, p.UseDefault(config.DefaultCfg{Country: "ivory_coast", Provider: "orange"}))
	gw, _, _, err := p.Active()
	require.NoError(t, err)
	assert.Equal(t, "orange", gw.Name())

	err = p.UseDefault(config.DefaultCfg{Country: "ghana", Provider: "orange"})
	assert.Equal(t, KindInvalidProvider, KindOf(err))
}
