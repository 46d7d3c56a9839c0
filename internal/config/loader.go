package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML file at path, merges it over the built-in defaults, and
// applies TRADEDESK_* environment overrides. The result has NOT been
// validated; call Config.Validate after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env if present; missing files are fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites config fields from well-known TRADEDESK_*
// variables when set, so operators can inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Exchange.WsURL, "TRADEDESK_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.BaseURI, "TRADEDESK_EXCHANGE_BASE_URI")

	setStr(&cfg.Auth.Identity, "TRADEDESK_AUTH_IDENTITY")
	setStr(&cfg.Auth.Secret, "TRADEDESK_AUTH_SECRET")

	setInt(&cfg.Session.MaxRetries, "TRADEDESK_SESSION_MAX_RETRIES")

	setBool(&cfg.Redis.Enabled, "TRADEDESK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADEDESK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEDESK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEDESK_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "TRADEDESK_REDIS_TLS_ENABLED")

	setStr(&cfg.Postgres.DSN, "TRADEDESK_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEDESK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEDESK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEDESK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEDESK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEDESK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEDESK_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.MaxConns, "TRADEDESK_POSTGRES_MAX_CONNS")

	setStr(&cfg.S3.Endpoint, "TRADEDESK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEDESK_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEDESK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEDESK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEDESK_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "TRADEDESK_S3_FORCE_PATH_STYLE")

	setStr(&cfg.Mode, "TRADEDESK_MODE")
	setStr(&cfg.LogLevel, "TRADEDESK_LOG_LEVEL")
}

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

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
