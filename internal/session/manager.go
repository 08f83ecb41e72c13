package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"salon-pos/internal/storage/redis"
)

// Manager keeps live sessions in memory and falls back to the redis
// snapshot for sessions created by another process or before a restart.
type Manager struct {
	deps deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(config ConfigProvider, catalog Catalog, store RedisStorage, opts Options, logger *zap.Logger) *Manager {
	if opts.ComputeTimeout <= 0 {
		opts.ComputeTimeout = DefaultOptions().ComputeTimeout
	}
	return &Manager{
		deps: deps{
			config:  config,
			catalog: catalog,
			store:   store,
			logger:  logger,
			opts:    opts,
			now:     time.Now,
		},
		sessions: make(map[string]*Session),
	}
}

// Create starts an empty session for masterID and prices it once so the
// installment default and settings are loaded.
func (m *Manager) Create(ctx context.Context, masterID string) (*Session, error) {
	const operation = "session.Manager.Create"

	s := newSession(uuid.NewString(), masterID, m.deps)
	if err := s.Settle(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.deps.logger.Info("Session created",
		zap.String("session_id", s.id),
		zap.String("master_id", masterID))
	return s, nil
}

// Get returns the session owned by masterID. An empty masterID skips the
// ownership check.
func (m *Manager) Get(ctx context.Context, id, masterID string) (*Session, error) {
	const operation = "session.Manager.Get"

	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()

	if !ok {
		restored, err := m.restore(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", operation, err)
		}
		s = restored
	}

	if masterID != "" && s.masterID != masterID {
		return nil, fmt.Errorf("%s: %s: %w", operation, id, ErrNotFound)
	}
	return s, nil
}

func (m *Manager) restore(ctx context.Context, id string) (*Session, error) {
	if m.deps.store == nil {
		return nil, ErrNotFound
	}
	state, err := m.deps.store.GetSessionState(ctx, id)
	if errors.Is(err, redis.ErrSessionNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	s := restoreSession(state, m.deps)
	if err := s.Settle(ctx); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have restored it meanwhile.
	if existing, ok := m.sessions[id]; ok {
		s.close()
		return existing, nil
	}
	m.sessions[id] = s

	m.deps.logger.Info("Session restored",
		zap.String("session_id", id),
		zap.Uint64("version", state.Version))
	return s, nil
}

// Drop forgets the session in memory and in redis.
func (m *Manager) Drop(ctx context.Context, id string) error {
	const operation = "session.Manager.Drop"

	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.close()
	}
	if m.deps.store != nil {
		if err := m.deps.store.DropSessionState(ctx, id); err != nil {
			return fmt.Errorf("%s: %w", operation, err)
		}
	}
	return nil
}

// Close stops every session timer. State already in redis is kept.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		s.close()
		delete(m.sessions, id)
	}
}
