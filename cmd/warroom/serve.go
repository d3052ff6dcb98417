package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"warroom/core/appbootstrap"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the pointer reconciler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if listen != "" {
				cfg.ListenAddr = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			app, err := appbootstrap.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override listen_addr")
	return cmd
}
