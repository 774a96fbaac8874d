// Package storage selects and connects the stock.Store named by the
// configuration.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"stockroom/internal/config"
	"stockroom/internal/stock"
	"stockroom/internal/storage/memory"
	"stockroom/internal/storage/mongostore"
	"stockroom/internal/storage/redisstore"
	"stockroom/internal/storage/sqlstore"
)

// Open builds the configured store. The returned close func releases the
// backend connection and is never nil.
func Open(ctx context.Context, cfg config.Storage, logger logr.Logger) (stock.Store, func() error, error) {
	logger = logger.WithValues("driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverMemory:
		var seed []stock.Item
		if cfg.Seed {
			seed = memory.Seed
		}
		logger.Info("using in-memory store", "items", len(seed))
		return memory.NewStore(seed...), func() error { return nil }, nil

	case config.DriverPostgres, config.DriverMySQL:
		db, err := connect(ctx, logger, cfg.ConnectTimeout, func(ctx context.Context) (*sqlx.DB, error) {
			return sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
		})
		if err != nil {
			return nil, nil, err
		}
		store := sqlstore.New(db, cfg.PageSize)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	case config.DriverMongo:
		client, err := connect(ctx, logger, cfg.ConnectTimeout, func(ctx context.Context) (*mongo.Client, error) {
			return mongostore.Connect(ctx, cfg.DSN)
		})
		if err != nil {
			return nil, nil, err
		}
		store := mongostore.New(client.Database(cfg.Database), cfg.PageSize)
		if err := store.Init(ctx); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, func() error { return client.Disconnect(context.Background()) }, nil

	case config.DriverRedis:
		client, err := connect(ctx, logger, cfg.ConnectTimeout, func(ctx context.Context) (*redis.Client, error) {
			return redisstore.Connect(ctx, cfg.DSN, cfg.Password, cfg.RedisDB)
		})
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(client, cfg.PageSize), client.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// connect retries dial with exponential backoff until it succeeds, ctx is
// done or maxElapsed has passed.
func connect[T any](ctx context.Context, logger logr.Logger, maxElapsed time.Duration, dial func(context.Context) (T, error)) (T, error) {
	conn, err := backoff.Retry[T](ctx,
		func() (T, error) { return dial(ctx) },
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Info("storage not reachable, retrying", "error", err.Error(), "retryIn", next)
		}),
	)
	if err != nil {
		return conn, fmt.Errorf("connect storage: %w", err)
	}
	logger.Info("connected to storage")
	return conn, nil
}
