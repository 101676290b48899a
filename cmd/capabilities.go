// Copyright © 2024 The ELPS authors

package cmd

import (
	"encoding/json"

	"github.com/luthersystems/sighelp/sighelp"
	"github.com/spf13/cobra"
)

// CapabilitiesCommand creates the "capabilities" cobra command.
func CapabilitiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Print the client capabilities sent in the initialize request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sighelp.DeclaredCapabilities())
		},
	}
}

func init() {
	rootCmd.AddCommand(CapabilitiesCommand())
}
