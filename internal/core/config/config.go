package config

import (
	"time"

	redisclient "github.com/vietddude/pricewatch/internal/infra/redis"
	"github.com/vietddude/pricewatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Prices    PricesConfig       `yaml:"prices"`
	CoinGecko CoinGeckoConfig    `yaml:"coingecko"`
	Retry     RetryConfig        `yaml:"retry"`
	Storage   StorageConfig      `yaml:"storage"`
	Chains    []ChainConfig      `yaml:"chains"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	NATS      NATSConfig         `yaml:"nats"`
}

// ServerConfig holds the health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PricesConfig drives catalog refresh and the price sync pass.
type PricesConfig struct {
	Network           string         `yaml:"network"`
	UpdatePrices      bool           `yaml:"update_prices"`
	QuoteCurrency     string         `yaml:"quote_currency"`     // token prices are fetched in this currency
	ReferenceCurrency string         `yaml:"reference_currency"` // reference series currency
	ReferenceMarket   string         `yaml:"reference_market"`   // market id of the native asset
	Lookback          time.Duration  `yaml:"lookback"`
	CheckpointEvery   int            `yaml:"checkpoint_every"`
	Cooldown          time.Duration  `yaml:"cooldown"`
	CatalogMaxAge     time.Duration  `yaml:"catalog_max_age"` // 0 = only refresh on demand
	EmptyDataTTL      *time.Duration `yaml:"empty_data_ttl"`  // 0 = retry unpriced tokens every pass
}

// NegativeCacheTTL returns how long an unpriced token is skipped.
func (p PricesConfig) NegativeCacheTTL() time.Duration {
	if p.EmptyDataTTL == nil {
		return DefaultEmptyDataTTL
	}
	return *p.EmptyDataTTL
}

// DefaultEmptyDataTTL applies when empty_data_ttl is not set.
const DefaultEmptyDataTTL = 7 * 24 * time.Hour

// CoinGeckoConfig holds price API client settings.
type CoinGeckoConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	APIKeyHeader      string        `yaml:"api_key_header"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"` // 0 = no client-side limit
}

// RetryConfig holds the per-address retry schedule.
type RetryConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	RateLimitedStep  time.Duration `yaml:"rate_limited_step"` // multiplied by attempt number
	UnavailableDelay time.Duration `yaml:"unavailable_delay"` // fixed
	NetworkStep      time.Duration `yaml:"network_step"`      // multiplied by attempt number
}

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Backend    string        `yaml:"backend"` // file, memory, redis, postgres, badger
	DataDir    string        `yaml:"data_dir"`
	BadgerPath string        `yaml:"badger_path"`
	LockTTL    time.Duration `yaml:"lock_ttl"` // redis sync lock expiry
}

// NATSConfig enables sync notifications when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// ChainConfig holds the node endpoint for a network.
type ChainConfig struct {
	Network string        `yaml:"network"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Client  string        `yaml:"client"` // optional override of web3_clientVersion
}

// Chain returns the chain config for a network.
func (c *AppConfig) Chain(network string) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.Network == network {
			return ch, true
		}
	}
	return ChainConfig{}, false
}
