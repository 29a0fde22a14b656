package pricesync

import (
	"time"

	"github.com/vietddude/pricewatch/internal/core/retry"
)

// Config holds the settings of one sync pass.
type Config struct {
	Platform          string
	QuoteCurrency     string // token series are priced in this currency
	ReferenceCurrency string
	ReferenceMarket   string // market id of the native asset
	Lookback          time.Duration
	CheckpointEvery   int
	Cooldown          time.Duration
	EmptyDataTTL      time.Duration // 0 retries unpriced tokens every pass
	Policy            retry.Policy
}

// DefaultConfig returns the schedule the price API tolerates on a free plan.
func DefaultConfig(platform string) Config {
	return Config{
		Platform:          platform,
		QuoteCurrency:     "eth",
		ReferenceCurrency: "usd",
		ReferenceMarket:   "ethereum",
		Lookback:          365 * 24 * time.Hour,
		CheckpointEvery:   5,
		Cooldown:          2 * time.Second,
		EmptyDataTTL:      7 * 24 * time.Hour,
		Policy:            retry.DefaultPolicy(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig(c.Platform)
	if c.QuoteCurrency == "" {
		c.QuoteCurrency = d.QuoteCurrency
	}
	if c.ReferenceCurrency == "" {
		c.ReferenceCurrency = d.ReferenceCurrency
	}
	if c.ReferenceMarket == "" {
		c.ReferenceMarket = d.ReferenceMarket
	}
	if c.Lookback <= 0 {
		c.Lookback = d.Lookback
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = d.CheckpointEvery
	}
	if c.Policy.MaxAttempts <= 0 {
		c.Policy = d.Policy
	}
}
