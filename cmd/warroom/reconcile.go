package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"warroom/core/metrics"
	"warroom/core/participants"
	"warroom/core/store"
)

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair cached role pointers from assignment history once",
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
			r := participants.NewReconciler(store.NewParticipantsStore(db), cfg.Scheduler.PointerSyncSpec, logger, metrics.New())
			n, err := r.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "repaired %d pointers\n", n)
			return nil
		},
	}
}
