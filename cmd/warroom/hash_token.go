package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"warroom/core/auth"
)

// NewHashTokenCommand prints a bcrypt hash for auth.tokens[].hash. Without an
// argument a fresh token is generated and printed along with its hash; "-"
// reads the token from stdin.
func NewHashTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token|-]",
		Short: "Hash an API token for the config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			generated := false
			switch {
			case len(args) == 0:
				tok, err := auth.GenerateToken()
				if err != nil {
					return err
				}
				raw, generated = tok, true
			case args[0] == "-":
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				raw = strings.TrimSpace(line)
			default:
				raw = args[0]
			}
			hash, err := auth.HashToken(raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if generated {
				fmt.Fprintf(out, "token: %s\n", raw)
			}
			fmt.Fprintf(out, "hash: %s\n", hash)
			return nil
		},
	}
}
