package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Faucet   FaucetConfig   `mapstructure:"faucet"`
	CDP      CDPConfig      `mapstructure:"cdp"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	// Requests per second allowed across the whole API, 0 disables throttling.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type ChainConfig struct {
	RPCURL             string `mapstructure:"rpc_url"`
	BlockExplorerURL   string `mapstructure:"block_explorer_url"`
	ReceiptTimeoutSecs int    `mapstructure:"receipt_timeout_seconds"`
	AutonityAddr       string `mapstructure:"autonity_address"`
	StabilizationAddr  string `mapstructure:"stabilization_address"`
}

type WalletConfig struct {
	PrivateKey     string `mapstructure:"private_key"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
}

type FaucetConfig struct {
	MaxATN          float64 `mapstructure:"max_atn"`
	MaxNTN          float64 `mapstructure:"max_ntn"`
	DefaultATN      float64 `mapstructure:"default_atn"`
	DefaultNTN      float64 `mapstructure:"default_ntn"`
	DailyLimit      int     `mapstructure:"daily_limit"`
	CooldownMinutes int     `mapstructure:"cooldown_minutes"`
}

type CDPConfig struct {
	Mode                 string  `mapstructure:"mode"`      // auto|manual|disabled
	TargetCR             float64 `mapstructure:"target_cr"` // e.g. 2.5 for 250%
	MinCR                float64 `mapstructure:"min_cr"`    // e.g. 2.2
	MaxCR                float64 `mapstructure:"max_cr"`    // e.g. 3.0
	CheckIntervalMinutes int     `mapstructure:"check_interval_minutes"`
	EmergencyAction      string  `mapstructure:"emergency_action"` // alert|repay|pause
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. DRIPGATE_CHAIN_RPC_URL
	viper.SetEnvPrefix("dripgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.rate_limit", 10.0)
	viper.SetDefault("server.rate_burst", 20)
	viper.SetDefault("chain.receipt_timeout_seconds", 120)
	viper.SetDefault("faucet.max_atn", 5.0)
	viper.SetDefault("faucet.max_ntn", 50.0)
	viper.SetDefault("faucet.default_atn", 1.0)
	viper.SetDefault("faucet.default_ntn", 10.0)
	viper.SetDefault("faucet.daily_limit", 10)
	viper.SetDefault("faucet.cooldown_minutes", 60)
	viper.SetDefault("cdp.mode", "auto")
	viper.SetDefault("cdp.target_cr", 2.5)
	viper.SetDefault("cdp.min_cr", 2.2)
	viper.SetDefault("cdp.max_cr", 3.0)
	viper.SetDefault("cdp.check_interval_minutes", 5)
	viper.SetDefault("cdp.emergency_action", "alert")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("log.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations that would put the position at risk or
// that name unknown modes.
func (c *Config) Validate() error {
	switch c.CDP.Mode {
	case "auto", "manual", "disabled":
	default:
		return fmt.Errorf("invalid cdp mode %q (want auto, manual or disabled)", c.CDP.Mode)
	}
	switch c.CDP.EmergencyAction {
	case "alert", "repay", "pause":
	default:
		return fmt.Errorf("invalid cdp emergency action %q (want alert, repay or pause)", c.CDP.EmergencyAction)
	}
	if !(c.CDP.MinCR < c.CDP.TargetCR && c.CDP.TargetCR < c.CDP.MaxCR) {
		return fmt.Errorf("cdp ratios must satisfy min_cr < target_cr < max_cr, got %v < %v < %v",
			c.CDP.MinCR, c.CDP.TargetCR, c.CDP.MaxCR)
	}
	if c.CDP.CheckIntervalMinutes <= 0 {
		return fmt.Errorf("cdp check interval must be positive")
	}
	if c.Faucet.DailyLimit <= 0 {
		return fmt.Errorf("faucet daily limit must be positive")
	}
	if c.Faucet.MaxATN <= 0 || c.Faucet.MaxNTN <= 0 {
		return fmt.Errorf("faucet per-request maximums must be positive")
	}
	return nil
}
