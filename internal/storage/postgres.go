package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"salon-pos/internal/config"
	"salon-pos/pkg/redis"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Cache is the read-through cache in front of reference data.
type Cache interface {
	GetJSON(ctx context.Context, key string, v any) error
	SetJSON(ctx context.Context, key string, v any) error
	Del(ctx context.Context, keys ...string) error
}

var _ Cache = (*redis.Client)(nil)

type PostgresStorage struct {
	db     *sqlx.DB
	cache  Cache
	logger *zap.Logger
}

func NewPostgresStorage(ctx context.Context, cfg config.Database, cache Cache, logger *zap.Logger) (*PostgresStorage, error) {
	const operation = "storage.NewPostgresStorage"

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	var db *sqlx.DB
	var err error

	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.MaxElapsedTime = 2 * time.Minute
	retryPolicy.MaxInterval = 15 * time.Second

	logger.Info("Connecting to PostgreSQL...")

	err = backoff.RetryNotify(
		func() error {
			db, err = sqlx.ConnectContext(ctx, "postgres", connStr)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			if err = db.PingContext(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
		backoff.WithContext(retryPolicy, ctx),
		func(err error, duration time.Duration) {
			logger.Warn("PostgreSQL connection failed, retrying...",
				zap.Error(err),
				zap.Duration("next_attempt_in", duration))
		},
	)

	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect after retries: %w", operation, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	logger.Info("Successfully connected to PostgreSQL")
	return &PostgresStorage{
		db:     db,
		cache:  cache,
		logger: logger,
	}, nil
}

func (s *PostgresStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// cached serves dst from the cache or fills it with load and stores the result.
func (s *PostgresStorage) cached(ctx context.Context, key string, dst any, load func() error) error {
	if s.cache != nil {
		err := s.cache.GetJSON(ctx, key, dst)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.ErrMiss) {
			s.logger.Warn("Cache read failed, falling back to PostgreSQL",
				zap.String("key", key),
				zap.Error(err))
		}
	}

	if err := load(); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, dst); err != nil {
			s.logger.Warn("Cache write failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}
	return nil
}

func (s *PostgresStorage) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.Warn("Cache invalidation failed",
			zap.Strings("keys", keys),
			zap.Error(err))
	}
}
