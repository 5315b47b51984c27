package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrDirtySchema reports an interrupted migration that auto-migration is not
// allowed to repair.
var ErrDirtySchema = errors.New("database schema is dirty")

// MigrationFiles holds the PostgreSQL schema for the counter document.
//
//go:embed *.sql
var MigrationFiles embed.FS

// RunMigrations brings the counter_state schema up to date.
// With autoMigrate=false it only reports the current version.
func RunMigrations(db *sql.DB, autoMigrate bool) error {
	sourceDriver, err := iofs.New(MigrationFiles, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	if dirty {
		previous, err := dirtyRecovery(version, autoMigrate)
		if err != nil {
			return err
		}
		slog.Warn("[Migrations] Database is in dirty state - migration was interrupted",
			"version", version,
			"force_to", previous,
		)
		if err := m.Force(previous); err != nil {
			return fmt.Errorf("failed to recover dirty migration state at version %d: %w", version, err)
		}
	}

	if !autoMigrate {
		slog.Info("[Migrations] Auto-migration disabled, skipping",
			"current_version", version,
		)
		return nil
	}

	slog.Info("[Migrations] Running database migrations", "current_version", version)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("[Migrations] Schema is up to date", "version", version)
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get updated migration version: %w", err)
	}

	slog.Info("[Migrations] Completed",
		"from_version", version,
		"to_version", newVersion,
	)
	return nil
}

// dirtyRecovery returns the version to force before re-running Up. The schema
// is only touched when auto-migration is enabled; otherwise the operator has
// to resolve the dirty version.
func dirtyRecovery(version uint, autoMigrate bool) (int, error) {
	if !autoMigrate {
		return 0, fmt.Errorf("%w at version %d and storage.auto_migrate is disabled", ErrDirtySchema, version)
	}
	// Migrations are written with IF [NOT] EXISTS, so stepping back one
	// version and re-applying the interrupted one is safe.
	return retryVersion(version), nil
}

// retryVersion is the version to force so that Up re-runs the dirty one.
// -1 is golang-migrate's "no version applied".
func retryVersion(dirty uint) int {
	if dirty <= 1 {
		return -1
	}
	return int(dirty) - 1
}
