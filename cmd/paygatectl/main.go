package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"paygate/internal/bootstrap"
	"paygate/internal/config"
	"paygate/internal/crypto"
	"paygate/internal/provider"
)

func main() {
	if err := newRootCmd(loadConfig).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type configLoader func() (config.Cfg, error)

func loadConfig() (config.Cfg, error) {
	_ = godotenv.Load()
	path := os.Getenv("PAYGATE_CONFIG")
	if path == "" {
		path = config.DefaultConfigPath
	}
	return config.LoadFile(path)
}

func newRootCmd(load configLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "paygatectl",
		Short:         "PayGate operator tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSealCmd(load),
		newUnsealCmd(load),
		newProvidersCmd(load),
		newCheckCmd(load),
		newVerifyCmd(load),
	)
	return root
}

func aesKey(load configLoader) ([]byte, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if len(cfg.Sec.AESKey) == 0 {
		return nil, errors.New("AES_256_KEY_BASE64 is not set")
	}
	return cfg.Sec.AESKey, nil
}

func newSealCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "seal <plaintext>",
		Short: "Encrypt a secret for use in the configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := aesKey(load)
			if err != nil {
				return err
			}
			sealed, err := crypto.Seal(key, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}

func newUnsealCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "unseal <value>",
		Short: "Decrypt a sealed configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := aesKey(load)
			if err != nil {
				return err
			}
			value := args[0]
			if !crypto.IsSealed(value) {
				value = crypto.SealedPrefix + value
			}
			plain, err := crypto.Unseal(key, value)
			if err != nil {
				return fmt.Errorf("unseal: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), plain)
			return nil
		},
	}
}

func newProvidersCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported country/provider pairs and whether each is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			rt, err := bootstrap.New(cmd.Context(), withoutRedis(cfg), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COUNTRY\tPROVIDER\tOPERATIONS\tCONFIGURED")
			for _, d := range rt.Registry.Describe() {
				_, configured := cfg.Gateway(string(d.Country), string(d.Provider))
				ops := make([]string, 0, len(d.Operations))
				for _, op := range d.Operations {
					ops = append(ops, string(op))
				}
				if len(ops) == 0 {
					ops = append(ops, "-")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", d.Country, d.Provider, strings.Join(ops, ","), configured)
			}
			return tw.Flush()
		},
	}
}

func newCheckCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and build every configured gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			rt, err := bootstrap.New(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			for country, providers := range cfg.Countries {
				for code, gc := range providers {
					gc.Country, gc.Provider = country, code
					fmt.Fprintf(out, "ok  %s\n", gc)
				}
			}
			if _, country, code, err := rt.Processor.Active(); err == nil {
				fmt.Fprintf(out, "default gateway: %s/%s\n", country, code)
			}
			if cfg.App.APIKey == "" {
				fmt.Fprintln(out, "warning: app.api_key is empty")
			}
			return nil
		},
	}
}

func newVerifyCmd(load configLoader) *cobra.Command {
	var (
		country, code string
		req           provider.VerifyRequest
		timeout       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Look up a transaction on a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Empty() {
				return errors.New("one of --transaction-id, --provider-reference or --reference is required")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			rt, err := bootstrap.New(cmd.Context(), withoutRedis(cfg), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if _, err := rt.Processor.Use(country, code); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			res, err := rt.Processor.Verify(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (raw %q) provider_ref=%s\n",
				res.Reference, res.Status, res.RawStatus, res.ProviderReference)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&country, "country", string(provider.CountryIvoryCoast), "country")
	f.StringVar(&code, "provider", string(provider.Orange), "provider code")
	f.StringVar(&req.TransactionID, "transaction-id", "", "transaction id")
	f.StringVar(&req.ProviderReference, "provider-reference", "", "provider reference")
	f.StringVar(&req.Reference, "reference", "", "merchant reference")
	f.StringVar(&req.Currency, "currency", "", "currency of --amount (default XOF)")
	f.Var(&decimalFlag{&req.Amount}, "amount", "payment amount, required by orange")
	f.DurationVar(&timeout, "timeout", 60*time.Second, "overall timeout")
	return cmd
}

// withoutRedis keeps one-shot commands local: in-memory limiter and
// idempotency instead of the shared Redis state.
func withoutRedis(cfg config.Cfg) config.Cfg {
	cfg.Redis = config.RedisCfg{}
	if cfg.RateLimit.Backend == "redis" {
		cfg.RateLimit.Backend = "memory"
	}
	return cfg
}

// decimalFlag adapts decimal.Decimal to pflag.Value.
type decimalFlag struct{ d *decimal.Decimal }

func (f *decimalFlag) String() string {
	if f.d == nil {
		return ""
	}
	return f.d.String()
}

func (f *decimalFlag) Set(s string) error {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*f.d = v
	return nil
}

func (f *decimalFlag) Type() string { return "decimal" }
