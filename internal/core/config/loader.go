package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with the defaults the sync pass was tuned for.
func (c *AppConfig) ApplyDefaults() {
	p := &c.Prices
	if p.Network == "" {
		p.Network = "ethereum"
	}
	if p.QuoteCurrency == "" {
		p.QuoteCurrency = "eth"
	}
	if p.ReferenceCurrency == "" {
		p.ReferenceCurrency = "usd"
	}
	if p.ReferenceMarket == "" {
		p.ReferenceMarket = "ethereum"
	}
	if p.Lookback == 0 {
		p.Lookback = 365 * 24 * time.Hour
	}
	if p.CheckpointEvery == 0 {
		p.CheckpointEvery = 5
	}
	if p.Cooldown == 0 {
		p.Cooldown = 2 * time.Second
	}

	if c.CoinGecko.BaseURL == "" {
		c.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.CoinGecko.APIKeyHeader == "" {
		c.CoinGecko.APIKeyHeader = "x-cg-demo-api-key"
	}
	if c.CoinGecko.Timeout == 0 {
		c.CoinGecko.Timeout = 30 * time.Second
	}

	r := &c.Retry
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.RateLimitedStep == 0 {
		r.RateLimitedStep = 30 * time.Second
	}
	if r.UnavailableDelay == 0 {
		r.UnavailableDelay = 60 * time.Second
	}
	if r.NetworkStep == 0 {
		r.NetworkStep = 10 * time.Second
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "file"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.BadgerPath == "" {
		c.Storage.BadgerPath = filepath.Join(c.Storage.DataDir, "badger")
	}
	if c.Storage.LockTTL == 0 {
		c.Storage.LockTTL = 10 * time.Minute
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "pricewatch"
	}

	for i := range c.Chains {
		if c.Chains[i].Timeout == 0 {
			c.Chains[i].Timeout = 30 * time.Second
		}
	}
}
