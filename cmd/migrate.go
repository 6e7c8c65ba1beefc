package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/folio0/folio/db"
	"github.com/folio0/folio/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run evidence index schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}
