// Package migrate applies the SQL migrations in the migrations directory.
package migrate

import (
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// DefaultSource is the migrations directory relative to the working
// directory of the binaries.
const DefaultSource = "file://migrations"

// Up migrates the database at databaseURL to the latest version. An already
// current schema is not an error.
func Up(source, databaseURL string) error {
	if source == "" {
		source = DefaultSource
	}
	m, err := migrate.New(source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			logger.Warn("[Migrate] Failed to close migrator", "source_err", srcErr, "db_err", dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database schema is dirty at version %d", version)
	}
	logger.Info("[Migrate] Database schema up to date", "version", version)
	return nil
}
