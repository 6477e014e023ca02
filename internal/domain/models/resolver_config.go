package models

import (
	"fmt"
	"time"
)

const (
	ProfileMainnet = "mainnet"
	ProfileTestnet = "testnet"

	DefaultMaxFailedWaves  = 5
	DefaultMaxScanDistance = 5000
	DefaultCallTimeout     = 10 * time.Second
)

// ResolverConfig tunes the round search and fetch stages.
type ResolverConfig struct {
	BatchSize       int
	StrideStep      int64
	MaxFailedWaves  int
	MaxScanDistance int64
	CallTimeout     time.Duration
	// RetryFailedOnly memoises successful calls of a failed wave so only the
	// failed ids are re-issued when the wave is retried.
	RetryFailedOnly bool
}

// ResolverProfile returns the built-in tuning for a deployment profile.
func ResolverProfile(name string) (ResolverConfig, error) {
	cfg := ResolverConfig{
		MaxFailedWaves:  DefaultMaxFailedWaves,
		MaxScanDistance: DefaultMaxScanDistance,
		CallTimeout:     DefaultCallTimeout,
	}
	switch name {
	case ProfileMainnet, "":
		cfg.BatchSize, cfg.StrideStep = 50, 50
	case ProfileTestnet:
		cfg.BatchSize, cfg.StrideStep = 10, 10
	default:
		return ResolverConfig{}, fmt.Errorf("unknown resolver profile %q", name)
	}
	return cfg, nil
}

// Validate checks the invariants the search stages rely on.
func (c ResolverConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.StrideStep <= 0 {
		return fmt.Errorf("stride step must be positive")
	}
	if c.MaxFailedWaves <= 0 {
		return fmt.Errorf("max failed waves must be positive")
	}
	if c.MaxScanDistance <= 0 {
		return fmt.Errorf("max scan distance must be positive")
	}
	return nil
}
