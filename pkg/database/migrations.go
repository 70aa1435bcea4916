package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunMigrations applies pending migrations (catalog tables and answer
// history) and returns the resulting schema version. Safe to call on every
// start.
func RunMigrations(db *DB, migrationsPath string, logger *zap.Logger) (uint, error) {
	sqlDB := db.SQL()
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return 0, fmt.Errorf("failed to run migrations from %s: %w", migrationsPath, err)
		}
		version, _, _ := m.Version()
		logger.Info("No migrations to apply (database up-to-date)", zap.Uint("version", version))
		return version, nil
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("migration %d left the database dirty", version)
	}
	logger.Info("Applied migrations successfully", zap.Uint("version", version))
	return version, nil
}
