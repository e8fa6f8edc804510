package sqlcommon

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/echotree/echotree/assets"
	"github.com/echotree/echotree/pkg/logger"
)

// MigrationConfig describes a schema migration run against an open database.
type MigrationConfig struct {
	// Dialect is the goose dialect, e.g. "sqlite", "postgres" or "mysql".
	Dialect string

	// Dir is the directory of assets.EmbedMigrations holding the dialect's migrations.
	Dir string

	// TargetVersion migrates up or down to the given revision. Zero applies every migration.
	TargetVersion int64

	Verbose bool
	Logger  logger.Logger
}

// SchemaVersion returns the revision the database schema is at.
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	return goose.GetDBVersionContext(ctx, db)
}

// Migrate brings the schema of db to the configured revision.
func Migrate(ctx context.Context, db *sql.DB, cfg MigrationConfig) error {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	goose.SetLogger(goose.NopLogger())
	goose.SetVerbose(cfg.Verbose)
	goose.SetBaseFS(assets.EmbedMigrations)

	if err := goose.SetDialect(cfg.Dialect); err != nil {
		return fmt.Errorf("failed to set %s dialect: %w", cfg.Dialect, err)
	}

	currentVersion, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get %s db version: %w", cfg.Dialect, err)
	}

	log.Info("current schema version", zap.String("dialect", cfg.Dialect), zap.Int64("version", currentVersion))

	if cfg.TargetVersion == 0 {
		if err := goose.UpContext(ctx, db, cfg.Dir); err != nil {
			return fmt.Errorf("failed to run %s migrations: %w", cfg.Dialect, err)
		}
		log.Info("migration done", zap.String("dialect", cfg.Dialect))
		return nil
	}

	switch {
	case cfg.TargetVersion < currentVersion:
		if err := goose.DownToContext(ctx, db, cfg.Dir, cfg.TargetVersion); err != nil {
			return fmt.Errorf("failed to run %s migrations down to %v: %w", cfg.Dialect, cfg.TargetVersion, err)
		}
	case cfg.TargetVersion > currentVersion:
		if err := goose.UpToContext(ctx, db, cfg.Dir, cfg.TargetVersion); err != nil {
			return fmt.Errorf("failed to run %s migrations up to %v: %w", cfg.Dialect, cfg.TargetVersion, err)
		}
	default:
		log.Info("nothing to migrate", zap.String("dialect", cfg.Dialect))
		return nil
	}

	log.Info("migration done", zap.String("dialect", cfg.Dialect), zap.Int64("version", cfg.TargetVersion))
	return nil
}
