package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable records the applied schema version. It is namespaced so
// layerplane can share a database with other services.
const MigrationsTable = "layerplane_schema_migrations"

//go:embed migrations/*.sql
var migrationFS embed.FS

func newMigrationSource() (source.Driver, error) {
	return iofs.New(migrationFS, "migrations")
}

// Migrate brings the builds schema up to date and returns the version it
// ended at. A dirty schema (a previous run failed halfway) is an error and
// needs manual repair.
func Migrate(db *sql.DB) (uint, error) {
	src, err := newMigrationSource()
	if err != nil {
		return 0, fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return 0, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrator: %w", err)
	}

	// ErrNoChange only means we are already current
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
