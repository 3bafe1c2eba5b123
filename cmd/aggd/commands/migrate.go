package commands

import (
	"context"
	"fmt"

	"github.com/marmos91/dapagg/internal/logger"
	"github.com/marmos91/dapagg/pkg/config"
	"github.com/marmos91/dapagg/pkg/datastore/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the aggregator's postgres datastore.

This command applies pending schema migrations to the configured database.
It is required after upgrading aggd when schema changes have been made, and
takes a postgres advisory lock so concurrent instances starting at once
serialize safely.

Examples:
  # Run migrations with default config
  aggd migrate

  # Run migrations with custom config
  aggd migrate --config /etc/aggd/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("running database migrations", "host", cfg.Database.Host, "database", cfg.Database.Database)

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, cfg.Database, logger.With("component", "migrate")); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("Migrations completed successfully (database: %s@%s)\n", cfg.Database.Database, cfg.Database.Host)
	return nil
}
