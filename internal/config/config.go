// Package config defines the client configuration and validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields are populated from a TOML file
// and then optionally overridden by TRADEDESK_* environment variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Auth     AuthConfig     `toml:"auth"`
	Session  SessionConfig  `toml:"session"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig locates the exchange endpoint.
type ExchangeConfig struct {
	// WsURL is the websocket endpoint, e.g. "wss://exchange.example.com:9000".
	WsURL string `toml:"ws_url"`
	// BaseURI is the URI root procedure and topic names hang off.
	BaseURI string `toml:"base_uri"`
}

// AuthConfig holds login credentials.
type AuthConfig struct {
	Identity string `toml:"identity"`
	Secret   string `toml:"secret"`
}

// SessionConfig tunes the connect retry policy.
type SessionConfig struct {
	MaxRetries int      `toml:"max_retries"`
	RetryDelay duration `toml:"retry_delay"`
}

// RedisConfig holds connection parameters for the safe-price mirror.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds connection parameters for the trade archive.
type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"max_conns"`
}

// S3Config holds object-storage parameters for book snapshot archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig tunes the archive mode loops.
type ArchiveConfig struct {
	Interval    duration `toml:"interval"`
	TradeWindow duration `toml:"trade_window"`
	Prefix      string   `toml:"prefix"`
}

// duration lets TOML fields carry Go duration strings ("5s", "1m").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Defaults returns the built-in configuration a TOML file is merged over.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			WsURL:   "ws://localhost:9000",
			BaseURI: "http://example.com/",
		},
		Session: SessionConfig{
			MaxRetries: 60,
			RetryDelay: duration{time.Second},
		},
		Archive: ArchiveConfig{
			Interval:    duration{time.Minute},
			TradeWindow: duration{7 * 24 * time.Hour},
			Prefix:      "books",
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// Validate checks the configuration for the selected mode.
func (c *Config) Validate() error {
	var problems []string

	if c.Exchange.WsURL == "" {
		problems = append(problems, "exchange.ws_url is required")
	}
	if c.Exchange.BaseURI == "" {
		problems = append(problems, "exchange.base_uri is required")
	}
	if c.Auth.Identity == "" {
		problems = append(problems, "auth.identity is required")
	}
	if c.Auth.Secret == "" {
		problems = append(problems, "auth.secret is required")
	}
	if c.Session.MaxRetries <= 0 {
		problems = append(problems, "session.max_retries must be positive")
	}
	if c.Session.RetryDelay.Duration <= 0 {
		problems = append(problems, "session.retry_delay must be positive")
	}

	switch strings.ToLower(c.Mode) {
	case "watch":
	case "archive":
		if c.Postgres.DSN == "" && c.Postgres.Host == "" {
			problems = append(problems, "archive mode requires postgres.dsn or postgres.host")
		}
		if c.S3.Bucket == "" {
			problems = append(problems, "archive mode requires s3.bucket")
		}
		if c.Archive.Interval.Duration <= 0 {
			problems = append(problems, "archive.interval must be positive")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported mode %q", c.Mode))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when redis is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
