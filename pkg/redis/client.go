package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key does not exist.
var ErrMiss = errors.New("redis: key not found")

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a new Redis client. ttl is the default lifetime for JSON values.
func New(addr, password string, db int, ttl time.Duration) *Client {
	return &Client{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			PoolSize:     100,
			MinIdleConns: 10,
		}),
		ttl: ttl,
	}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get retrieves a key's value
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return data, err
}

// Set sets a key's value with TTL
func (c *Client) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Del deletes keys
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Expire sets a key's time to live (TTL)
func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	return c.client.Expire(ctx, key, expiration).Result()
}

// SetJSON stores v under key with the client's default TTL.
func (c *Client) SetJSON(ctx context.Context, key string, v any) error {
	return c.SetJSONTTL(ctx, key, v, c.ttl)
}

func (c *Client) SetJSONTTL(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON loads key into v. A missing key yields ErrMiss.
func (c *Client) GetJSON(ctx context.Context, key string, v any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection
func (c *Client) Close() {
	if c.client != nil {
		_ = c.client.Close()
	}
}
