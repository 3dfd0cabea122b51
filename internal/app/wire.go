package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/mmsim/internal/blob/s3"
	"github.com/alanyoungcy/mmsim/internal/cache/redis"
	"github.com/alanyoungcy/mmsim/internal/config"
	"github.com/alanyoungcy/mmsim/internal/store/postgres"
)

// Dependencies bundles the optional sinks the modes write results to. Any of
// them may be nil when the corresponding backend is not configured; the run
// itself never requires external services.
type Dependencies struct {
	ResultStore *postgres.ResultStore
	ResultCache *redis.ResultCache
	FillBus     *redis.FillBus
	Archiver    *s3blob.Archiver
}

// Wire constructs the configured dependency implementations and returns them
// together with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		deps.ResultStore = postgres.NewResultStore(pgClient.Pool())
		logger.Info("result store wired")
	}

	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.ResultCache = redis.NewResultCache(redisClient)
		deps.FillBus = redis.NewFillBus(redisClient)
		logger.Info("summary cache and fill bus wired")
	}

	if cfg.S3.Enabled() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
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
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3Client, cfg.S3.Prefix)
		logger.Info("artifact archiver wired", slog.String("bucket", cfg.S3.Bucket))
	}

	return deps, cleanup, nil
}
