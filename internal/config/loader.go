package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over the built-in defaults, then
// applies POLYMAKER_* environment overrides. Call Validate on the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// A .env file is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields from well-known POLYMAKER_*
// variables so secrets stay out of the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "POLYMAKER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYMAKER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYMAKER_WALLET_KEY_PASSWORD")

	setStr(&cfg.Polymarket.ClobHost, "POLYMAKER_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYMAKER_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYMAKER_POLYMARKET_CHAIN_ID")

	setStr(&cfg.Market.ConditionID, "POLYMAKER_MARKET_CONDITION_ID")
	setStr(&cfg.Market.YesTokenID, "POLYMAKER_MARKET_YES_TOKEN_ID")
	setStr(&cfg.Market.NoTokenID, "POLYMAKER_MARKET_NO_TOKEN_ID")

	setDuration(&cfg.Feed.Debounce, "POLYMAKER_FEED_DEBOUNCE")
	setDuration(&cfg.Feed.SyncEvery, "POLYMAKER_FEED_SYNC_EVERY")

	setDuration(&cfg.Keeper.RefreshInterval, "POLYMAKER_KEEPER_REFRESH_INTERVAL")
	setInt64(&cfg.Keeper.Workers, "POLYMAKER_KEEPER_WORKERS")
	setDuration(&cfg.Keeper.CallTimeout, "POLYMAKER_KEEPER_CALL_TIMEOUT")
	setDuration(&cfg.Keeper.IntentTTL, "POLYMAKER_KEEPER_INTENT_TTL")
	setInt(&cfg.Keeper.RateLimit, "POLYMAKER_KEEPER_RATE_LIMIT")
	setDuration(&cfg.Keeper.RateWindow, "POLYMAKER_KEEPER_RATE_WINDOW")

	setFloat64(&cfg.Simulation.InitialCollateral, "POLYMAKER_SIMULATION_INITIAL_COLLATERAL")

	setBool(&cfg.Postgres.Enabled, "POLYMAKER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYMAKER_POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYMAKER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYMAKER_POSTGRES_POOL_MIN_CONNS")

	setBool(&cfg.Redis.Enabled, "POLYMAKER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYMAKER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYMAKER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYMAKER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYMAKER_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "POLYMAKER_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "POLYMAKER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYMAKER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYMAKER_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYMAKER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYMAKER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYMAKER_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "POLYMAKER_S3_FORCE_PATH_STYLE")

	setStr(&cfg.Report.Path, "POLYMAKER_REPORT_PATH")

	setStr(&cfg.Mode, "POLYMAKER_MODE")
	setStr(&cfg.LogLevel, "POLYMAKER_LOG_LEVEL")
}

// Typed helpers. Each mutates the target only when the variable is set
// and parses cleanly.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
