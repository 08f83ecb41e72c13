package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salon-pos/pkg/redis"
)

// ErrSessionNotFound is returned when no state is stored for a session id.
var ErrSessionNotFound = errors.New("session state not found")

const defaultStateTTL = 12 * time.Hour

// KV is the subset of the redis client the session store needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var _ KV = (*redis.Client)(nil)

type Storage struct {
	client KV
	ttl    time.Duration
}

// New creates a session store. A non-positive ttl falls back to 12h.
func New(client KV, ttl time.Duration) *Storage {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &Storage{client: client, ttl: ttl}
}

func (s *Storage) SetSessionState(ctx context.Context, state *SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	return s.client.Set(ctx, buildStateKey(state.ID), data, s.ttl)
}

// GetSessionState loads a session and slides its TTL forward.
func (s *Storage) GetSessionState(ctx context.Context, sessionID string) (*SessionState, error) {
	key := buildStateKey(sessionID)
	data, err := s.client.Get(ctx, key)
	if errors.Is(err, redis.ErrMiss) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal failure: %w", err)
	}
	if _, err := s.client.Expire(ctx, key, s.ttl); err != nil {
		return nil, fmt.Errorf("refresh ttl: %w", err)
	}
	return &state, nil
}

func (s *Storage) DropSessionState(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, buildStateKey(sessionID))
}

func buildStateKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}
