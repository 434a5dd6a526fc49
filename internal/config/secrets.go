package config

// RedactedConfig returns a copy of cfg with secret fields replaced by
// "***", safe to log at startup.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Postgres.DSN)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Copy the bands so the redacted copy cannot mutate the original.
	if cfg.Strategy.Bands != nil {
		out.Strategy.Bands = make([]BandConfig, len(cfg.Strategy.Bands))
		copy(out.Strategy.Bands, cfg.Strategy.Bands)
	}
	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
