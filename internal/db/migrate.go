package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/banshee-data/trail.report/internal/monitoring"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// migrateStep runs fn against a fresh migrator. Having nothing to do is not
// an error. The migrator is never closed, since that would close the shared
// *sql.DB.
func (db *DB) migrateStep(migrations fs.FS, what string, fn func(*migrate.Migrate) error) error {
	m, err := db.newMigrate(migrations)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s failed: %w", what, err)
	}
	return nil
}

// MigrateUp applies every pending migration.
func (db *DB) MigrateUp(migrations fs.FS) error {
	return db.migrateStep(migrations, "migration up", (*migrate.Migrate).Up)
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(migrations fs.FS) error {
	return db.migrateStep(migrations, "migration down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// MigrateTo migrates up or down to version.
func (db *DB) MigrateTo(migrations fs.FS, version uint) error {
	return db.migrateStep(migrations, fmt.Sprintf("migration to version %d", version), func(m *migrate.Migrate) error {
		return m.Migrate(version)
	})
}

// MigrateForce records version as applied and clears the dirty flag, to
// recover from a migration that failed halfway.
func (db *DB) MigrateForce(migrations fs.FS, version int) error {
	return db.migrateStep(migrations, fmt.Sprintf("force migration to version %d", version), func(m *migrate.Migrate) error {
		return m.Force(version)
	})
}

// MigrateVersion returns the applied version and dirty flag, or 0 when no
// migration has run.
func (db *DB) MigrateVersion(migrations fs.FS) (version uint, dirty bool, err error) {
	m, err := db.newMigrate(migrations)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate(migrations fs.FS) (*migrate.Migrate, error) {
	if migrations == nil {
		return nil, errors.New("no migrations filesystem")
	}
	source, err := iofs.New(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger routes golang-migrate output through monitoring.
type migrateLogger struct{}

var migrateLogf = monitoring.Component("migrate")

func (migrateLogger) Printf(format string, v ...interface{}) { migrateLogf(format, v...) }
func (migrateLogger) Verbose() bool                           { return false }

// MigrationStatus summarises the schema state of a database.
type MigrationStatus struct {
	CurrentVersion         uint `json:"current_version"`
	LatestVersion          uint `json:"latest_version"`
	Dirty                  bool `json:"dirty"`
	SchemaMigrationsExists bool `json:"schema_migrations_exists"`
}

// Pending reports whether migrations remain to be applied.
func (s MigrationStatus) Pending() bool {
	return s.CurrentVersion < s.LatestVersion
}

// GetMigrationStatus reports the current and latest available versions.
func (db *DB) GetMigrationStatus(migrations fs.FS) (MigrationStatus, error) {
	var status MigrationStatus

	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&status.SchemaMigrationsExists)
	if err != nil && err != sql.ErrNoRows {
		return status, fmt.Errorf("failed to check schema_migrations table: %w", err)
	}

	// checked before MigrateVersion, which creates the table
	status.CurrentVersion, status.Dirty, err = db.MigrateVersion(migrations)
	if err != nil {
		return status, fmt.Errorf("failed to get migration version: %w", err)
	}

	status.LatestVersion, err = LatestMigrationVersion(migrations)
	if err != nil {
		return status, err
	}
	return status, nil
}

// LatestMigrationVersion returns the highest version among the *.up.sql
// files in migrations.
func LatestMigrationVersion(migrations fs.FS) (uint, error) {
	entries, err := fs.Glob(migrations, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	if len(entries) == 0 {
		return 0, errors.New("no migration files found")
	}

	var latest uint
	found := false
	for _, name := range entries {
		var version uint
		if _, err := fmt.Sscanf(name, "%d_", &version); err == nil {
			latest, found = max(latest, version), true
		}
	}
	if !found {
		return 0, errors.New("could not determine latest migration version")
	}
	return latest, nil
}
