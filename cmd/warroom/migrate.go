package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"warroom/core/store"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			db, err := store.NewDB(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.ApplyMigrations(cmd.Context(), db, logger); err != nil {
				return err
			}
			version, err := store.SchemaVersion(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, db.Dialect())
			return nil
		},
	}
}
