package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationFS embeds the SQL migration files applied by Migrate
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// Migrate applies the embedded migrations to the database named by dsn.
// direction must be "up" or "down". Being already at the target version is not an error.
func Migrate(dsn, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	driver, source, err := resolveDSN(dsn)
	if err != nil {
		return err
	}

	sourceDriver, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	// The migrate instance owns this connection and closes it
	conn, err := sql.Open(driver, source)
	if err != nil {
		return err
	}

	var dbDriver database.Driver
	switch driver {
	case driverPostgres:
		dbDriver, err = pgxmigrate.WithInstance(conn, &pgxmigrate.Config{})
	default:
		dbDriver, err = sqlitemigrate.WithInstance(conn, &sqlitemigrate.Config{})
	}
	if err != nil {
		conn.Close()
		return fmt.Errorf("migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driver, dbDriver)
	if err != nil {
		dbDriver.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
