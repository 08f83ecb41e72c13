package session

import (
	"context"

	"salon-pos/internal/pricing"
	"salon-pos/internal/storage"
	"salon-pos/internal/storage/redis"
)

type RedisStorage interface {
	GetSessionState(ctx context.Context, sessionID string) (*redis.SessionState, error)
	SetSessionState(ctx context.Context, state *redis.SessionState) error
	DropSessionState(ctx context.Context, sessionID string) error
}

var _ RedisStorage = (*redis.Storage)(nil)

// ConfigProvider returns the latest settings and package definitions.
type ConfigProvider interface {
	PricingConfig(ctx context.Context) (pricing.Config, error)
}

type Catalog interface {
	ListActiveServices(ctx context.Context) ([]pricing.Service, error)
}

var (
	_ ConfigProvider = (*storage.PostgresStorage)(nil)
	_ Catalog        = (*storage.PostgresStorage)(nil)
)
