// Package config loads fundd settings from a YAML file and FUNDD_ environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
)

// Service is the config file name and the upper-cased environment prefix.
const Service = "fundd"

// Payment backends
const (
	BackendTerminal = "terminal"
	BackendDirect   = "direct"
)

type Config struct {
	Log           LogConfig           `mapstructure:"log"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Chain         ChainConfig         `mapstructure:"chain"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Relayer       RelayerConfig       `mapstructure:"relayer"`
	Cow           CowConfig           `mapstructure:"cow"`
	Price         PriceConfig         `mapstructure:"price"`
	Progress      ProgressConfig      `mapstructure:"progress"`
	Balance       BalanceConfig       `mapstructure:"balance"`
	TokenMetadata TokenMetadataConfig `mapstructure:"tokenmetadata"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// SwapRate is the sustained gasless-swap requests per second per client, 0 disables
	SwapRate  float64 `mapstructure:"swap_rate"`
	SwapBurst int     `mapstructure:"swap_burst"`
	Metrics   bool    `mapstructure:"metrics"`
}

type ChainConfig struct {
	ID     int64  `mapstructure:"id"`
	RPCURL string `mapstructure:"rpc_url"`
}

type PaymentConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID uint64 `mapstructure:"project_id"`
	Contract  string `mapstructure:"contract"`
	Directory string `mapstructure:"directory"`
	Memo      string `mapstructure:"memo"`
}

type RelayerConfig struct {
	// PrivateKey is the hex key paying relayed gas; empty disables the relayer routes
	PrivateKey    string  `mapstructure:"private_key"`
	DemoMode      bool    `mapstructure:"demo_mode"`
	MinBalanceETH string  `mapstructure:"min_balance_eth"`
	WaitForPermit bool    `mapstructure:"wait_for_permit"`
	FeeMultiplier float64 `mapstructure:"fee_multiplier"`
	// URL is where donor clients reach the relayer
	URL string `mapstructure:"url"`
}

type CowConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	SwapPageURL       string  `mapstructure:"swap_page_url"`
}

type PriceConfig struct {
	CoinGeckoURL string        `mapstructure:"coingecko_url"`
	FallbackUSD  string        `mapstructure:"fallback_usd"`
	Interval     time.Duration `mapstructure:"interval"`
}

type ProgressConfig struct {
	ProjectID       int           `mapstructure:"project_id"`
	JuiceboxURL     string        `mapstructure:"juicebox_url"`
	JBDBURL         string        `mapstructure:"jbdb_url"`
	StaticRaisedUSD string        `mapstructure:"static_raised_usd"`
	StaticPayments  int           `mapstructure:"static_payments"`
	Interval        time.Duration `mapstructure:"interval"`
}

type BalanceConfig struct {
	FastInterval time.Duration `mapstructure:"fast_interval"`
	SlowInterval time.Duration `mapstructure:"slow_interval"`
}

type TokenMetadataConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.swap_rate", 0.2)
	v.SetDefault("http.swap_burst", 3)
	v.SetDefault("http.metrics", true)

	v.SetDefault("chain.id", 8453)
	v.SetDefault("chain.rpc_url", "https://mainnet.base.org")

	v.SetDefault("payment.backend", BackendTerminal)
	v.SetDefault("payment.project_id", 107)
	v.SetDefault("payment.contract", "")
	v.SetDefault("payment.directory", "")
	v.SetDefault("payment.memo", "")

	v.SetDefault("relayer.private_key", "")
	v.SetDefault("relayer.demo_mode", false)
	v.SetDefault("relayer.min_balance_eth", "0.001")
	v.SetDefault("relayer.wait_for_permit", false)
	v.SetDefault("relayer.fee_multiplier", 1.2)
	v.SetDefault("relayer.url", "http://localhost:8080")

	v.SetDefault("cow.base_url", "")
	v.SetDefault("cow.requests_per_second", 5)
	v.SetDefault("cow.swap_page_url", "")

	v.SetDefault("price.coingecko_url", "")
	v.SetDefault("price.fallback_usd", "3500")
	v.SetDefault("price.interval", 30*time.Second)

	v.SetDefault("progress.project_id", 107)
	v.SetDefault("progress.juicebox_url", "")
	v.SetDefault("progress.jbdb_url", "")
	v.SetDefault("progress.static_raised_usd", "")
	v.SetDefault("progress.static_payments", 0)
	v.SetDefault("progress.interval", 60*time.Second)

	v.SetDefault("balance.fast_interval", 3*time.Second)
	v.SetDefault("balance.slow_interval", 12*time.Second)

	v.SetDefault("tokenmetadata.base_url", "")
}

// New returns a viper instance reading fundd.yaml from ./config or the
// working directory, with FUNDD_SECTION_KEY environment overrides.
func New(paths ...string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(Service)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(strings.ToUpper(Service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads and validates the configuration. A missing file is not an
// error; defaults and environment apply.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fund.NewFundError(fund.ErrCodeConfig, fmt.Sprintf("read config: %v", err), nil)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fund.NewFundError(fund.ErrCodeConfig, fmt.Sprintf("decode config: %v", err), nil)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Watch calls onChange with the reloaded configuration whenever the file changes.
// Changes that fail validation are passed to onError and otherwise ignored.
func Watch(v *viper.Viper, onChange func(*Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		c, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(c)
	})
	v.WatchConfig()
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Chain.ID <= 0 {
		return fund.ConfigError("chain.id")
	}
	switch c.Payment.Backend {
	case BackendTerminal:
		if c.Payment.ProjectID == 0 {
			return fund.ConfigError("payment.project_id")
		}
	case BackendDirect:
		if !common.IsHexAddress(c.Payment.Contract) {
			return fund.ConfigError("payment.contract")
		}
	default:
		return fund.ConfigError("payment.backend")
	}
	if c.HTTP.SwapRate < 0 {
		return fund.ConfigError("http.swap_rate")
	}
	if c.Progress.ProjectID <= 0 {
		return fund.ConfigError("progress.project_id")
	}
	if c.Balance.FastInterval <= 0 || c.Balance.SlowInterval < c.Balance.FastInterval {
		return fund.ConfigError("balance intervals")
	}
	return nil
}

// ChainID is the configured chain as a fund.ChainID.
func (c *Config) ChainID() fund.ChainID {
	return fund.ChainID(c.Chain.ID)
}
