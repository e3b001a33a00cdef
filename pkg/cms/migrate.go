package cms

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func prepareGoose() error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	return nil
}

// Migrate applies every pending schema migration.
func (s *Store) Migrate(ctx context.Context) error {
	if err := prepareGoose(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	s.logger.Info().Msg("Catalog schema is up to date")
	return nil
}

// MigrateDown rolls back the most recent migration.
func (s *Store) MigrateDown(ctx context.Context) error {
	if err := prepareGoose(); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

// MigrationStatus prints the applied/pending table to stdout.
func (s *Store) MigrationStatus(ctx context.Context) error {
	if err := prepareGoose(); err != nil {
		return err
	}
	if err := goose.StatusContext(ctx, s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}

// VerifySchema checks that the catalog tables exist, without mutating
// anything. The server calls this at startup instead of migrating so an
// operator decides when schema changes run.
func (s *Store) VerifySchema(ctx context.Context) error {
	var n int
	err := s.db.QueryRowxContext(ctx, `
SELECT COUNT(*)
FROM information_schema.tables
WHERE table_schema = 'paddock_cms'
  AND table_name IN ('instances', 'instance_health_checks', 'instance_events')`).Scan(&n)
	if err != nil {
		return fmt.Errorf("verify catalog schema: %w", err)
	}
	if n < 3 {
		return fmt.Errorf("catalog schema is missing tables (found %d of 3), run 'paddock-migrate up' first", n)
	}
	return nil
}
