package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationSource exposes the embedded SQL migrations.
func MigrationSource() embed.FS {
	return migrationFiles
}

func newMigrator(config Config) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, config.URL("pgx5"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration.
func MigrateUp(config Config) error {
	return runMigration(config, "up", func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(config Config, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("migrate down needs a positive step count, got %d", steps)
	}
	return runMigration(config, "down", func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

func runMigration(config Config, direction string, step func(*migrate.Migrate) error) error {
	m, err := newMigrator(config)
	if err != nil {
		return err
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("failed to close migrator")
		}
	}()

	if err := step(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Str("direction", direction).Msg("migrations already up to date")
			return nil
		}
		return fmt.Errorf("failed to migrate %s: %w", direction, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	log.Info().Str("direction", direction).Uint("version", version).Bool("dirty", dirty).Msg("migrations applied")
	return nil
}
