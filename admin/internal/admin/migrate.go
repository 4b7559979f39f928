package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/malbeclabs/ados/api/config"
	"github.com/pressly/goose/v3"
)

// MigrateUp applies all pending audit store migrations.
func MigrateUp(ctx context.Context, log *slog.Logger, cfg config.PgConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Migrate(ctx, log, cfg.ConnStr()); err != nil {
		return err
	}
	version, err := config.MigrationVersion(ctx, cfg.ConnStr())
	if err != nil {
		return err
	}
	log.Info("admin: audit store migrated", "version", version)
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, log *slog.Logger, cfg config.PgConfig) error {
	return withDB(cfg, func(db *sql.DB) error {
		log.Info("admin: rolling back last migration")
		if err := goose.DownContext(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
		return nil
	})
}

// MigrateStatus prints the status of every embedded migration.
func MigrateStatus(ctx context.Context, cfg config.PgConfig) error {
	return withDB(cfg, func(db *sql.DB) error {
		if err := goose.StatusContext(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		return nil
	})
}

func withDB(cfg config.PgConfig, fn func(*sql.DB) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	goose.SetBaseFS(config.EmbedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	db, err := sql.Open("pgx", cfg.ConnStr())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return fn(db)
}
