package config

import (
	"time"

	"github.com/spf13/viper"
)

type Cas struct {
	// Base url of the anchor service gateway that serves proofs
	Url string

	// Max time for a single proof download
	RequestTimeout time.Duration

	// Minimum time between consecutive requests
	RateLimitInterval time.Duration

	// Burst allowed on top of the rate limit
	RateLimitBurst int

	// How long downloaded proofs stay cached
	CacheTtl time.Duration

	// How often expired proofs get evicted from the cache
	CacheCleanupInterval time.Duration
}

func setCasDefaults() {
	viper.SetDefault("Cas.Url", "https://cas.3boxlabs.com")
	viper.SetDefault("Cas.RequestTimeout", "30s")
	viper.SetDefault("Cas.RateLimitInterval", "100ms")
	viper.SetDefault("Cas.RateLimitBurst", "3")
	viper.SetDefault("Cas.CacheTtl", "10m")
	viper.SetDefault("Cas.CacheCleanupInterval", "15m")
}
