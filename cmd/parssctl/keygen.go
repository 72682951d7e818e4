package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"parss/internal/token"
)

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RS256 signing key for SIGNING_KEY_FILE.",
		Args:  cobra.NoArgs,
		// needs neither configuration nor a session
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			key, err := token.GenerateKey()
			if err != nil {
				return err
			}
			if err := key.WriteKeyFile(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (kid %s)\n", out, key.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "path of the PEM file to create")
	return cmd
}
