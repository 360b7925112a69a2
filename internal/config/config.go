// Package config defines all configuration for the vault operator service.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via VAULT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	AI       AIConfig       `mapstructure:"ai"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Store    StoreConfig    `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// WalletConfig holds the operator wallet and chain parameters.
// PrivateKey must belong to the wallet registered as the vault's operator —
// every state-mutating contract call is signed with it.
type WalletConfig struct {
	PrivateKey   string `mapstructure:"private_key"`
	RPCURL       string `mapstructure:"rpc_url"`
	ChainID      int64  `mapstructure:"chain_id"`
	VaultAddress string `mapstructure:"vault_address"`
	AssetAddress string `mapstructure:"asset_address"` // WCRO token accepted for payment
}

// ExchangeConfig holds credentials and parameters for the exchange REST API.
// FallbackPrice is the static CRO/USD price used to convert PnL when the
// live ticker is unavailable during position close.
type ExchangeConfig struct {
	BaseURL       string  `mapstructure:"base_url"`
	APIKey        string  `mapstructure:"api_key"`
	Secret        string  `mapstructure:"secret"`
	Instrument    string  `mapstructure:"instrument"`
	FallbackPrice float64 `mapstructure:"fallback_price"`
}

// AIConfig holds the AI signal provider endpoint and model selection.
type AIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PaymentConfig tunes the x402 payment requirements issued per lock attempt.
// Amount is in the asset's smallest unit (18 decimals for WCRO).
type PaymentConfig struct {
	Amount         string `mapstructure:"amount"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Description    string `mapstructure:"description"`
}

// StoreConfig sets where the activity/status database lives.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig controls the operator HTTP API.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: VAULT_PRIVATE_KEY, VAULT_EXCHANGE_API_KEY,
// VAULT_EXCHANGE_SECRET, VAULT_AI_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("VAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("exchange.fallback_price", 0.08)
	v.SetDefault("ai.timeout", "30s")
	v.SetDefault("payment.amount", "1000000000000000000")
	v.SetDefault("payment.timeout_seconds", 300)
	v.SetDefault("payment.description", "Vault trade authorization fee")
	v.SetDefault("store.path", "data/operator.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("VAULT_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("VAULT_EXCHANGE_API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("VAULT_EXCHANGE_SECRET"); secret != "" {
		cfg.Exchange.Secret = secret
	}
	if key := os.Getenv("VAULT_AI_API_KEY"); key != "" {
		cfg.AI.APIKey = key
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set VAULT_PRIVATE_KEY)")
	}
	if c.Wallet.RPCURL == "" {
		return fmt.Errorf("wallet.rpc_url is required")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required (338 for Cronos testnet)")
	}
	if !isHexAddress(c.Wallet.VaultAddress) {
		return fmt.Errorf("wallet.vault_address must be a 0x-prefixed address")
	}
	if !isHexAddress(c.Wallet.AssetAddress) {
		return fmt.Errorf("wallet.asset_address must be a 0x-prefixed address")
	}
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	if c.Exchange.APIKey == "" || c.Exchange.Secret == "" {
		return fmt.Errorf("exchange.api_key and exchange.secret are required (set VAULT_EXCHANGE_API_KEY / VAULT_EXCHANGE_SECRET)")
	}
	if c.Exchange.Instrument == "" {
		return fmt.Errorf("exchange.instrument is required (e.g. CROUSD-PERP)")
	}
	if c.Exchange.FallbackPrice <= 0 {
		return fmt.Errorf("exchange.fallback_price must be > 0")
	}
	if c.AI.BaseURL == "" {
		return fmt.Errorf("ai.base_url is required")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}
	if c.Payment.Amount == "" {
		return fmt.Errorf("payment.amount is required")
	}
	if c.Payment.TimeoutSeconds <= 0 {
		return fmt.Errorf("payment.timeout_seconds must be > 0")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	return nil
}

func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
