package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"salon-pos/internal/pricing"
)

const servicesCacheKey = "catalog:services"

// ListActiveServices returns the sellable catalog, read through the cache.
func (s *PostgresStorage) ListActiveServices(ctx context.Context) ([]pricing.Service, error) {
	const operation = "storage.ListActiveServices"

	var services []pricing.Service
	err := s.cached(ctx, servicesCacheKey, &services, func() error {
		const query = `
            SELECT id, external_id, title, price, is_active
            FROM services
            WHERE is_active = TRUE
            ORDER BY title
        `
		if err := s.db.SelectContext(ctx, &services, query); err != nil {
			return fmt.Errorf("failed to get services: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return services, nil
}

func (s *PostgresStorage) GetService(ctx context.Context, id int64) (pricing.Service, error) {
	const operation = "storage.GetService"

	const query = `SELECT id, external_id, title, price, is_active FROM services WHERE id = $1`

	var service pricing.Service
	if err := s.db.GetContext(ctx, &service, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pricing.Service{}, fmt.Errorf("%s: service %d: %w", operation, id, ErrNotFound)
		}
		return pricing.Service{}, fmt.Errorf("%s: failed to get service: %w", operation, err)
	}
	return service, nil
}

// GetServicesByIDs loads the given services keyed by id. Unknown ids are
// simply absent from the result.
func (s *PostgresStorage) GetServicesByIDs(ctx context.Context, ids []int64) (map[int64]pricing.Service, error) {
	const operation = "storage.GetServicesByIDs"

	result := make(map[int64]pricing.Service, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT id, external_id, title, price, is_active FROM services WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", operation, err)
	}

	var services []pricing.Service
	if err := s.db.SelectContext(ctx, &services, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%s: failed to get services: %w", operation, err)
	}
	for _, svc := range services {
		result[svc.ID] = svc
	}
	return result, nil
}

// SyncServices upserts the catalog by external id and deactivates every
// service the booking platform no longer lists.
func (s *PostgresStorage) SyncServices(ctx context.Context, services []pricing.Service) (int, error) {
	const operation = "storage.SyncServices"

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin: %w", operation, err)
	}
	defer tx.Rollback() //nolint:errcheck

	const upsert = `
        INSERT INTO services (external_id, title, price, is_active, synced_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (external_id) DO UPDATE SET
            title = EXCLUDED.title,
            price = EXCLUDED.price,
            is_active = EXCLUDED.is_active,
            synced_at = NOW()
    `
	externalIDs := make([]string, 0, len(services))
	for _, svc := range services {
		if svc.ExternalID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert, svc.ExternalID, svc.Title, svc.Price, svc.IsActive); err != nil {
			return 0, fmt.Errorf("%s: upsert %s: %w", operation, svc.ExternalID, err)
		}
		externalIDs = append(externalIDs, svc.ExternalID)
	}

	if len(externalIDs) > 0 {
		query, args, err := sqlx.In(`UPDATE services SET is_active = FALSE WHERE external_id NOT IN (?)`, externalIDs)
		if err != nil {
			return 0, fmt.Errorf("%s: build query: %w", operation, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return 0, fmt.Errorf("%s: deactivate: %w", operation, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", operation, err)
	}

	s.InvalidateCatalog(ctx)
	s.logger.Info("Service catalog synchronized", zap.Int("services", len(externalIDs)))
	return len(externalIDs), nil
}

// InvalidateCatalog drops every cached reference key.
func (s *PostgresStorage) InvalidateCatalog(ctx context.Context) {
	s.invalidate(ctx, servicesCacheKey, settingsCacheKey, packagesCacheKey)
}
