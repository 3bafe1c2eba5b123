package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver, required by golang-migrate

	"github.com/marmos91/dapagg/pkg/datastore/postgres/migrations"
)

// RunMigrations applies every pending schema migration. golang-migrate
// takes a postgres advisory lock for the duration, so concurrent
// aggregator instances starting at once serialize safely.
func RunMigrations(ctx context.Context, cfg Config, logger *slog.Logger) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid postgres config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", cfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("opening database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    cfg.Database,
	})
	if err != nil {
		return fmt.Errorf("creating postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("creating migration source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	logger.Info("applying schema migrations")
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migrations: %w", err)
	} else if err == migrate.ErrNoChange {
		logger.Info("schema already up to date")
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("reading migration version: %w", err)
	}
	if err == nil {
		logger.Info("schema version", "version", version, "dirty", dirty)
		if dirty {
			logger.Warn("schema is in a dirty state, manual intervention required")
		}
	}
	return nil
}
