package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"argus/config"
	"argus/ruleset"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

// newCheckCmd validates the configured ruleset without starting the
// server, so a bad edit is caught before a restart or SIGHUP.
func newCheckCmd() *cobra.Command {
	var (
		decodersPath string
		rulesPath    string
		listsPath    string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load and compile the ruleset, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				errorColor.Fprintf(cmd.ErrOrStderr(), "✗ config: %v\n", err)
				return err
			}

			paths := ruleset.Paths{
				Decoders: cfg.Ruleset.DecodersPath,
				Rules:    cfg.Ruleset.RulesPath,
				Lists:    cfg.Ruleset.ListsPath,
			}
			if decodersPath != "" {
				paths.Decoders = decodersPath
			}
			if rulesPath != "" {
				paths.Rules = rulesPath
			}
			if listsPath != "" {
				paths.Lists = listsPath
			}

			infoColor.Fprintf(cmd.OutOrStdout(), "Checking ruleset:\n")
			fmt.Fprintf(cmd.OutOrStdout(), "  decoders: %s\n", paths.Decoders)
			fmt.Fprintf(cmd.OutOrStdout(), "  rules:    %s\n", paths.Rules)
			if paths.Lists != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  lists:    %s\n", paths.Lists)
			}

			provider, err := ruleset.NewProvider(paths, ruleset.Options{
				RegexTimeout:     cfg.Logtest.RegexTimeout,
				DisablePrefilter: cfg.Logtest.DisablePrefilter,
			}, nil)
			if err != nil {
				errorColor.Fprintf(cmd.ErrOrStderr(), "✗ ruleset: %v\n", err)
				return err
			}

			gen := provider.Current()
			successColor.Fprintf(cmd.OutOrStdout(),
				"✓ ruleset OK: %d decoders, %d rules, %d lists\n",
				gen.Decoders.Len(), gen.Rules.Len(), len(gen.Lists.Names()))
			return nil
		},
	}

	cmd.Flags().StringVar(&decodersPath, "decoders", "", "decoders file (overrides config)")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "rules file (overrides config)")
	cmd.Flags().StringVar(&listsPath, "lists", "", "lists file (overrides config)")
	return cmd
}
