// Package cmd provides the command-line interface for the Argus
// logtest service.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the root command. Running with no subcommand
// starts the server.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "argus",
		Short: "Interactive log analysis against a compiled decoder and rule set",
		Long: `Argus runs log lines through the decoder and rule pipeline inside
isolated sessions, so analysts can test rules against sample events
without touching live alerting.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newCheckCmd())
	return root
}
