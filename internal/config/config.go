package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"paygate/internal/crypto"
)

const (
	DefaultConfigPath = "config/paygate.yaml"
	DefaultCurrency   = "XOF"
)

type AppCfg struct {
	Env      string `mapstructure:"env"`
	Port     string `mapstructure:"port"`
	APIKey   string `mapstructure:"api_key"`
	LogLevel string `mapstructure:"log_level"`
}

// DefaultCfg names the gateway the processor activates at startup.
type DefaultCfg struct {
	Country  string `mapstructure:"country"`
	Provider string `mapstructure:"provider"`
}

type SecurityCfg struct {
	AESKeyBase64 string `mapstructure:"aes_key_base64"`
	AESKey       []byte `mapstructure:"-"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitCfg struct {
	Enabled       bool   `mapstructure:"enabled"`
	Backend       string `mapstructure:"backend"` // memory | redis
	MaxRequests   int    `mapstructure:"max_requests"`
	WindowSeconds int    `mapstructure:"window_seconds"`
	Prefix        string `mapstructure:"prefix"`
}

func (c RateLimitCfg) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type RetryCfg struct {
	MaxAttempts int  `mapstructure:"max_attempts"`
	BaseDelayMS int  `mapstructure:"base_delay_ms"`
	Exponential bool `mapstructure:"exponential"`
}

func (c RetryCfg) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

type BreakerCfg struct {
	Enabled             bool `mapstructure:"enabled"`
	ConsecutiveFailures int  `mapstructure:"consecutive_failures"`
	OpenSeconds         int  `mapstructure:"open_seconds"`
}

type HTTPCfg struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type WebhookCfg struct {
	RequireSignature bool `mapstructure:"require_signature"`
}

type Cfg struct {
	App       AppCfg       `mapstructure:"app"`
	Default   DefaultCfg   `mapstructure:"default"`
	Sec       SecurityCfg  `mapstructure:"security"`
	Redis     RedisCfg     `mapstructure:"redis"`
	RateLimit RateLimitCfg `mapstructure:"rate_limit"`
	Retry     RetryCfg     `mapstructure:"retry"`
	Breaker   BreakerCfg   `mapstructure:"breaker"`
	HTTP      HTTPCfg      `mapstructure:"http"`
	Webhooks  WebhookCfg   `mapstructure:"webhooks"`

	// Countries maps country -> provider code -> configuration slice.
	Countries map[string]map[string]GatewayCfg `mapstructure:"countries"`
}

// Gateway returns the configuration slice for a (country, provider) pair.
func (c Cfg) Gateway(country, provider string) (GatewayCfg, bool) {
	providers, ok := c.Countries[country]
	if !ok {
		return GatewayCfg{}, false
	}
	gc, ok := providers[provider]
	if !ok {
		return GatewayCfg{}, false
	}
	gc.Country = country
	gc.Provider = provider
	return gc, true
}

// Load reads .env, the optional YAML file and the environment, and exits on
// invalid settings.
func Load() Cfg {
	_ = godotenv.Load() // .env is optional

	path := os.Getenv("PAYGATE_CONFIG")
	if path == "" {
		path = DefaultConfigPath
	}

	cfg, err := LoadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("invalid configuration")
	}
	return cfg
}

// LoadFile builds the configuration from defaults, path (when it exists) and
// the environment.
func LoadFile(path string) (Cfg, error) {
	v := New()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Cfg{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	return FromViper(v)
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", "sandbox")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("default.country", "ivory_coast")
	v.SetDefault("default.provider", "orange")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.max_requests", 60)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("rate_limit.prefix", "paygate:ratelimit:")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.exponential", true)
	v.SetDefault("breaker.enabled", false)
	v.SetDefault("breaker.consecutive_failures", 5)
	v.SetDefault("breaker.open_seconds", 30)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("webhooks.require_signature", false)

	// Flat env names used by the deployment scripts.
	_ = v.BindEnv("app.port", "APP_PORT")
	_ = v.BindEnv("app.env", "APP_ENV")
	_ = v.BindEnv("app.api_key", "APP_API_KEY")
	_ = v.BindEnv("app.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("security.aes_key_base64", "AES_256_KEY_BASE64")

	bindGatewayEnv(v)
	return v
}

// FromViper decodes and validates a populated viper instance.
func FromViper(v *viper.Viper) (Cfg, error) {
	var cfg Cfg
	if err := v.Unmarshal(&cfg); err != nil {
		return Cfg{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.App.APIKey = strings.TrimSpace(cfg.App.APIKey)

	if keyB64 := strings.TrimSpace(cfg.Sec.AESKeyBase64); keyB64 != "" {
		key, err := base64.StdEncoding.DecodeString(keyB64)
		if err != nil || len(key) != 32 {
			return Cfg{}, errors.New("security.aes_key_base64 must be a valid 32-byte base64 key")
		}
		cfg.Sec.AESKey = key
	}

	if err := cfg.unsealSecrets(); err != nil {
		return Cfg{}, err
	}

	if cfg.Retry.MaxAttempts < 1 {
		return Cfg{}, errors.New("retry.max_attempts must be at least 1")
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.MaxRequests < 1 || cfg.RateLimit.WindowSeconds < 1) {
		return Cfg{}, errors.New("rate_limit.max_requests and rate_limit.window_seconds must be positive")
	}
	if cfg.RateLimit.Backend == "redis" && cfg.Redis.Addr == "" {
		return Cfg{}, errors.New("rate_limit.backend=redis requires redis.addr")
	}
	return cfg, nil
}

func (c *Cfg) unsealSecrets() error {
	for country, providers := range c.Countries {
		for code, gc := range providers {
			gc.Country = country
			gc.Provider = code
			for _, field := range gc.secretFields() {
				if !crypto.IsSealed(*field) {
					continue
				}
				if len(c.Sec.AESKey) == 0 {
					return fmt.Errorf("%s.%s: sealed secret present but security.aes_key_base64 is not set", country, code)
				}
				plain, err := crypto.Unseal(c.Sec.AESKey, *field)
				if err != nil {
					return fmt.Errorf("%s.%s: unseal secret: %w", country, code, err)
				}
				*field = plain
			}
			providers[code] = gc
		}
	}
	return nil
}

// ConfigureLogging applies the log level and console output for development.
func ConfigureLogging(app AppCfg) {
	level, err := zerolog.ParseLevel(strings.ToLower(app.LogLevel))
	if err != nil || app.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if app.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
