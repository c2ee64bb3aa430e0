package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/chatsync/internal/store/migrations"
)

// ErrDirtySchema is returned when an earlier migration stopped halfway.
var ErrDirtySchema = errors.New("schema is dirty")

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	From    uint
	Version uint
	Changed bool
}

// Migrate brings the schema up to date. A schema left dirty by an interrupted
// migration is refused rather than migrated further.
func (db *DB) Migrate() (*MigrateResult, error) {
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	from, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	to, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}
	return &MigrateResult{From: from, Version: to, Changed: to != from}, nil
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	return m, nil
}

// schemaVersion is 0 for a database that was never migrated.
func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("%w at version %d", ErrDirtySchema, v)
	}
	return v, nil
}
