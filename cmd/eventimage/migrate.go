package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	var dbType, dbURL string
	cmd := &cobra.Command{
		Use:   "migrate [flags] <action> [arg]",
		Short: "Database migration commands",
		Long: `Run the embedded SQL migrations of the settings profile store.

Actions:
  up          Apply all pending migrations
  down        Rollback the last migration
  down-all    Rollback all migrations
  steps <n>   Apply (n > 0) or rollback (n < 0) n migrations
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  version     Show current migration version
  status      Show migration status
  info        Show database type and current version

Flags go before the action so negative step counts are not read as flags.`,
		Example: `  eventimage migrate up
  eventimage migrate --config /etc/eventimage/config.yaml status
  eventimage migrate --db-type sqlite --db-url file:eventimage.db steps -1`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: migration.Actions,
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, err := createMigrator(opts, dbType, dbURL)
			if err != nil {
				return fmt.Errorf("failed to create migrator: %w", err)
			}
			defer migrator.Close()

			cli := migration.NewCLI(migrator)
			cli.SetOutput(cmd.OutOrStdout())
			if err := cli.Run(cmd.Context(), args[0], args[1:]...); err != nil {
				return fmt.Errorf("migrate %s: %w", args[0], err)
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&dbType, "db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	cmd.Flags().StringVar(&dbURL, "db-url", "", "Database connection URL (default: from config)")
	return cmd
}

// createMigrator 优先使用 --db-type/--db-url, 否则读取与 serve 相同的配置
func createMigrator(opts *globalOptions, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database.OpenConfig())
}
