package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

const dialect = "postgres"

func prepare() error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := prepare(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func RollbackMigration(ctx context.Context, db *sql.DB) error {
	if err := prepare(); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	return nil
}

func Status(ctx context.Context, db *sql.DB) error {
	if err := prepare(); err != nil {
		return err
	}
	if err := goose.StatusContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	return nil
}
