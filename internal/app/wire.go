package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/quantevo/tradedesk/internal/blob/s3"
	"github.com/quantevo/tradedesk/internal/cache/redis"
	"github.com/quantevo/tradedesk/internal/config"
	"github.com/quantevo/tradedesk/internal/domain"
	"github.com/quantevo/tradedesk/internal/store/postgres"
)

// Dependencies bundles the optional backing services the modes use. Absent
// services stay nil and the corresponding feature is skipped.
type Dependencies struct {
	PriceCache domain.PriceCache   // safe price mirror
	TradeStore domain.TradeStore   // trade history archive
	Archiver   *s3blob.BookArchiver // book snapshot archive
}

// Wire constructs the configured backing services and returns them with a
// cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		deps.PriceCache = redis.NewPriceCache(rc)
		logger.Info("safe price mirror enabled", slog.String("addr", cfg.Redis.Addr))
	}

	if strings.ToLower(cfg.Mode) == "archive" {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pg.Close)

		if err := pg.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		deps.TradeStore = postgres.NewTradeStore(pg.Pool())

		s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewBookArchiver(s3blob.NewWriter(s3c), cfg.Archive.Prefix)
	}

	return deps, cleanup, nil
}
