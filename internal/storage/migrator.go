package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"salon-pos/internal/storage/migrations"
)

func (s *PostgresStorage) Migrate(ctx context.Context) error {
	const operation = "storage.Migrate"

	s.logger.Info("Running database migrations...")
	if err := migrations.RunMigrations(ctx, s.db.DB); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	s.logger.Info("Database migrations completed successfully")
	return nil
}

func (s *PostgresStorage) RollbackMigration(ctx context.Context) error {
	const operation = "storage.RollbackMigration"

	s.logger.Info("Rolling back last migration...")
	if err := migrations.RollbackMigration(ctx, s.db.DB); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	s.logger.Info("Migration rollback completed", zap.String("operation", operation))
	return nil
}

func (s *PostgresStorage) MigrationStatus(ctx context.Context) error {
	const operation = "storage.MigrationStatus"

	if err := migrations.Status(ctx, s.db.DB); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}
