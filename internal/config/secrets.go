package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by
// "***", safe to log when announcing the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Auth.Secret)
	redact(&out.Redis.Password)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	return out
}

func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}
