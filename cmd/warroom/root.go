package main

import (
	"os"

	"github.com/spf13/cobra"

	"warroom/config"
	"warroom/core/utils"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:           "warroom",
		Short:         "Incident participant and role tracking service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("WARROOM_CONFIG"), "path to the yaml config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewHashTokenCommand())
	cmd.AddCommand(NewConfigCommand(opts))
	return cmd
}

func loadConfig(opts *RootOptions) (*config.AppConfig, *utils.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := utils.NewLoggerWithConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
