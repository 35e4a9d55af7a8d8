package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"argus/bootstrap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the logtest HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	app, err := bootstrap.NewApp()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	app.Start()
	err = app.WaitForShutdown()
	app.Shutdown()
	return err
}
