package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"warroom/config"
)

const redacted = "<redacted>"

// NewConfigCommand prints the effective configuration after file, env and
// defaults are merged. Secrets are redacted.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(redact(*cfg))
		},
	}
}

func redact(cfg config.AppConfig) config.AppConfig {
	if cfg.DBURL != "" {
		cfg.DBURL = redacted
	}
	if cfg.Notify.TelegramToken != "" {
		cfg.Notify.TelegramToken = redacted
	}
	tokens := make([]config.APIToken, len(cfg.Auth.Tokens))
	for i, tok := range cfg.Auth.Tokens {
		tok.Hash = redacted
		tokens[i] = tok
	}
	cfg.Auth.Tokens = tokens
	return cfg
}
