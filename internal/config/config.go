// Package config defines the keeper's configuration and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields come from a TOML file and may
// be overridden by POLYMAKER_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Market     MarketConfig     `toml:"market"`
	Feed       FeedConfig       `toml:"feed"`
	Keeper     KeeperConfig     `toml:"keeper"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Simulation SimulationConfig `toml:"simulation"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Report     ReportConfig     `toml:"report"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the trading wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost string `toml:"clob_host"`
	WsHost   string `toml:"ws_host"`
	ChainID  int    `toml:"chain_id"`
}

// MarketConfig identifies the market to quote. Token IDs are resolved
// from the condition ID at startup unless set explicitly.
type MarketConfig struct {
	ConditionID string `toml:"condition_id"`
	YesTokenID  string `toml:"yes_token_id"`
	NoTokenID   string `toml:"no_token_id"`
}

// FeedConfig tunes the market data stream and the strategy triggers.
type FeedConfig struct {
	Debounce  duration `toml:"debounce"`
	SyncEvery duration `toml:"sync_every"`
}

// KeeperConfig tunes the order state manager.
type KeeperConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
	Workers         int64    `toml:"workers"`
	CallTimeout     duration `toml:"call_timeout"`
	IntentTTL       duration `toml:"intent_ttl"`
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
}

// BandConfig is one strategy band, mirrored into the strategy package at
// wiring time.
type BandConfig struct {
	MinMargin float64 `toml:"min_margin"`
	AvgMargin float64 `toml:"avg_margin"`
	MaxMargin float64 `toml:"max_margin"`
	MinAmount float64 `toml:"min_amount"`
	AvgAmount float64 `toml:"avg_amount"`
	MaxAmount float64 `toml:"max_amount"`
}

// StrategyConfig holds the bands ladder.
type StrategyConfig struct {
	Bands []BandConfig `toml:"bands"`
}

// SimulationConfig tunes simulate mode.
type SimulationConfig struct {
	InitialCollateral float64 `toml:"initial_collateral"`
}

// PostgresConfig holds the optional fill/audit store connection.
type PostgresConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds the optional price cache and rate limiter backend.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds the optional report archive target.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ReportConfig controls the end-of-run report.
type ReportConfig struct {
	Path string `toml:"path"`
}

// duration wraps time.Duration so TOML strings like "5s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration, matching
// config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost: "https://clob.polymarket.com",
			WsHost:   "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:  137,
		},
		Feed: FeedConfig{
			Debounce:  duration{100 * time.Millisecond},
			SyncEvery: duration{30 * time.Second},
		},
		Keeper: KeeperConfig{
			RefreshInterval: duration{5 * time.Second},
			Workers:         2,
			CallTimeout:     duration{15 * time.Second},
			IntentTTL:       duration{time.Minute},
			RateLimit:       0,
			RateWindow:      duration{time.Second},
		},
		Strategy: StrategyConfig{
			Bands: []BandConfig{
				{MinMargin: 0.005, AvgMargin: 0.01, MaxMargin: 0.02, MinAmount: 20, AvgAmount: 30, MaxAmount: 40},
				{MinMargin: 0.02, AvgMargin: 0.03, MaxMargin: 0.04, MinAmount: 20, AvgAmount: 30, MaxAmount: 40},
			},
		},
		Simulation: SimulationConfig{
			InitialCollateral: 1000,
		},
		Postgres: PostgresConfig{
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Report: ReportConfig{
			Path: "report.json",
		},
		Mode:     "simulate",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"live":     true,
	"simulate": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, simulate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Market.ConditionID == "" && (c.Market.YesTokenID == "" || c.Market.NoTokenID == "") {
		errs = append(errs, "market: condition_id (or both token IDs) must be set")
	}

	if strings.ToLower(c.Mode) == "live" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for live mode")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Polymarket.ClobHost == "" {
			errs = append(errs, "polymarket: clob_host must not be empty")
		}
		if c.Polymarket.WsHost == "" {
			errs = append(errs, "polymarket: ws_host must not be empty")
		}
		if c.Polymarket.ChainID <= 0 {
			errs = append(errs, "polymarket: chain_id must be positive")
		}
	}

	if strings.ToLower(c.Mode) == "simulate" && c.Simulation.InitialCollateral <= 0 {
		errs = append(errs, "simulation: initial_collateral must be > 0")
	}

	if c.Keeper.Workers < 1 || c.Keeper.Workers > 4 {
		errs = append(errs, fmt.Sprintf("keeper: workers must be 1-4, got %d", c.Keeper.Workers))
	}
	if c.Keeper.RefreshInterval.Duration <= 0 {
		errs = append(errs, "keeper: refresh_interval must be positive")
	}
	if c.Keeper.CallTimeout.Duration <= 0 {
		errs = append(errs, "keeper: call_timeout must be positive")
	}
	if c.Keeper.RateLimit > 0 && c.Keeper.RateWindow.Duration <= 0 {
		errs = append(errs, "keeper: rate_window must be positive when rate_limit is set")
	}

	if c.Feed.Debounce.Duration < 0 {
		errs = append(errs, "feed: debounce must not be negative")
	}

	if len(c.Strategy.Bands) == 0 {
		errs = append(errs, "strategy: at least one band must be configured")
	}

	if c.Postgres.Enabled {
		if c.Postgres.DSN == "" {
			errs = append(errs, "postgres: dsn must be set when enabled")
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be within [0, pool_max_conns]")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
