// Package db provides database utilities including migration support.
package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx v5 driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate runs all pending migrations against connURL. Migrations are
// embedded at compile time; golang-migrate tracks applied versions in its
// schema_migrations table, so re-running is a no-op.
//
// connURL must be a postgres:// or postgresql:// URL.
func Migrate(connURL string) error {
	slog.Debug("running database migrations")

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbURL, err := toMigrateURL(connURL)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			slog.Warn("closing migration source", "error", srcErr)
		}
		if dbErr != nil {
			slog.Warn("closing migration database connection", "error", dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	slog.Debug("database migrations up to date")
	return nil
}

// toMigrateURL rewrites the URL scheme to pgx5:// as required by
// golang-migrate's pgx v5 driver.
func toMigrateURL(connURL string) (string, error) {
	switch {
	case strings.HasPrefix(connURL, "postgres://"):
		return "pgx5://" + strings.TrimPrefix(connURL, "postgres://"), nil
	case strings.HasPrefix(connURL, "postgresql://"):
		return "pgx5://" + strings.TrimPrefix(connURL, "postgresql://"), nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme in %q", connURL)
	}
}
